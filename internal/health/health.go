// Package health reports whether the worker's dependencies are reachable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type CheckFunc func(ctx context.Context) error

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentHealth struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Latency  int64  `json:"latency_ms"`
	Error    string `json:"error,omitempty"`
}

type Report struct {
	Status     Status            `json:"status"`
	Instance   string            `json:"instance,omitempty"`
	Components []ComponentHealth `json:"components,omitempty"`
	Extra      map[string]any    `json:"extra,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Checker runs its checks concurrently and reports them in registration
// order. A failing critical check makes the worker unhealthy; a failing
// non-critical one only degrades it.
type Checker struct {
	instance string
	checks   []check
	extra    func() map[string]any
	timeout  time.Duration
}

func NewChecker(instance string) *Checker {
	return &Checker{instance: instance, timeout: 5 * time.Second}
}

func (c *Checker) WithCheck(name string, fn CheckFunc) *Checker {
	c.checks = append(c.checks, check{name: name, critical: true, fn: fn})
	return c
}

func (c *Checker) WithOptionalCheck(name string, fn CheckFunc) *Checker {
	c.checks = append(c.checks, check{name: name, fn: fn})
	return c
}

func (c *Checker) WithDatabase(pool *pgxpool.Pool) *Checker {
	return c.WithCheck("database", pool.Ping)
}

func (c *Checker) WithStorage(s interface{ HealthCheck(context.Context) error }) *Checker {
	return c.WithCheck("storage", s.HealthCheck)
}

// WithLedger checks the Redis job ledger. Without it duplicate notifications
// can start a second external job, but handling continues, so it is optional.
func (c *Checker) WithLedger(client *redis.Client) *Checker {
	return c.WithOptionalCheck("ledger", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// WithExtra attaches values computed at request time, such as latency gauges.
func (c *Checker) WithExtra(fn func() map[string]any) *Checker {
	c.extra = fn
	return c
}

func (c *Checker) CheckAll(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	components := make([]ComponentHealth, len(c.checks))
	var wg sync.WaitGroup
	for i, chk := range c.checks {
		i, chk := i, chk
		wg.Add(1)
		go func() {
			defer wg.Done()
			components[i] = chk.run(ctx)
		}()
	}
	wg.Wait()

	report := Report{
		Status:     overall(components),
		Instance:   c.instance,
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
	if c.extra != nil {
		report.Extra = c.extra()
	}
	return report
}

func (chk check) run(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := chk.fn(ctx)
	comp := ComponentHealth{
		Name:     chk.name,
		Status:   StatusHealthy,
		Critical: chk.critical,
		Latency:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
	}
	return comp
}

func overall(components []ComponentHealth) Status {
	status := StatusHealthy
	for _, comp := range components {
		if comp.Status != StatusUnhealthy {
			continue
		}
		if comp.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(StatusHealthy)})
	}
}

// ReadinessHandler answers 503 only when a critical dependency is down.
func ReadinessHandler(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := checker.CheckAll(r.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
