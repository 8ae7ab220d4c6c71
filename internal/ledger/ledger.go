// Package ledger records one-shot side effects so duplicate deliveries do not
// start the same external job twice.
//
// A claim is pending while an attempt is in flight and done once the job has
// started. Pending claims expire quickly, so an attempt that crashed or could
// not release its claim blocks retries only briefly; done claims live long
// enough to cover redelivery of the triggering message.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status int

const (
	// Acquired: the caller owns the attempt and must Complete or Forget it.
	Acquired Status = iota
	// InFlight: another attempt holds a pending claim. The caller should
	// retry later rather than treat the job as started.
	InFlight
	// Done: the job already started.
	Done
)

func (s Status) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	}
	return "unknown"
}

type Ledger interface {
	Claim(ctx context.Context, key string) (Status, error)
	// Complete marks an acquired claim done.
	Complete(ctx context.Context, key string) error
	// Forget releases a claim so a failed kickoff can be retried.
	Forget(ctx context.Context, key string) error
}

type TTLs struct {
	Pending time.Duration
	Done    time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{Pending: 10 * time.Minute, Done: 24 * time.Hour}
}

const (
	keyPrefix     = "vodcoach:ledger:"
	pendingMarker = "pending:"
	doneMarker    = "done:"
)

type RedisLedger struct {
	client *redis.Client
	ttls   TTLs
}

func NewRedisLedger(client *redis.Client, ttls TTLs) *RedisLedger {
	return &RedisLedger{client: client, ttls: ttls}
}

func stamp(marker string) string {
	return marker + time.Now().UTC().Format(time.RFC3339)
}

func (l *RedisLedger) Claim(ctx context.Context, key string) (Status, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+key, stamp(pendingMarker), l.ttls.Pending).Result()
	if err != nil {
		return InFlight, fmt.Errorf("ledger claim %s: %w", key, err)
	}
	if ok {
		return Acquired, nil
	}

	val, err := l.client.Get(ctx, keyPrefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released or expired between the two calls; a retry will acquire it.
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("ledger read %s: %w", key, err)
	case strings.HasPrefix(val, doneMarker):
		return Done, nil
	default:
		return InFlight, nil
	}
}

func (l *RedisLedger) Complete(ctx context.Context, key string) error {
	if err := l.client.Set(ctx, keyPrefix+key, stamp(doneMarker), l.ttls.Done).Err(); err != nil {
		return fmt.Errorf("ledger complete %s: %w", key, err)
	}
	return nil
}

func (l *RedisLedger) Forget(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("ledger forget %s: %w", key, err)
	}
	return nil
}

type entry struct {
	done bool
	at   time.Time
}

type MemoryLedger struct {
	mu     sync.Mutex
	claims map[string]entry
	ttls   TTLs
	now    func() time.Time
}

func NewMemoryLedger(ttls TTLs) *MemoryLedger {
	return &MemoryLedger{
		claims: make(map[string]entry),
		ttls:   ttls,
		now:    time.Now,
	}
}

// SetClock replaces the ledger's time source.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLedger) live(e entry, now time.Time) bool {
	ttl := l.ttls.Pending
	if e.done {
		ttl = l.ttls.Done
	}
	return ttl <= 0 || now.Sub(e.at) < ttl
}

func (l *MemoryLedger) Claim(ctx context.Context, key string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return InFlight, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.claims[key]; ok && l.live(e, now) {
		if e.done {
			return Done, nil
		}
		return InFlight, nil
	}
	l.claims[key] = entry{at: now}
	return Acquired, nil
}

func (l *MemoryLedger) Complete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claims[key] = entry{done: true, at: l.now()}
	return nil
}

// Forget fails on a finished context, as a network-backed ledger would.
func (l *MemoryLedger) Forget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, key)
	return nil
}
