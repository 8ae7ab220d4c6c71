package metrics

import (
	"slices"
	"sync"
	"time"
)

const defaultLatencyWindow = 1000

// PipelineCollector records poller activity. It satisfies queue.Metrics and
// keeps a bounded window of recent handle latencies per queue for the
// readiness report.
type PipelineCollector struct {
	mu      sync.Mutex
	size    int
	windows map[string][]int64
}

func NewPipelineCollector() *PipelineCollector {
	return NewPipelineCollectorWithWindow(defaultLatencyWindow)
}

func NewPipelineCollectorWithWindow(size int) *PipelineCollector {
	if size < 1 {
		size = 1
	}
	return &PipelineCollector{size: size, windows: make(map[string][]int64)}
}

func (c *PipelineCollector) PollerStarted(queue string) {
	PollersActive.WithLabelValues(queue).Inc()
}

func (c *PipelineCollector) PollerStopped(queue string) {
	PollersActive.WithLabelValues(queue).Dec()
}

func (c *PipelineCollector) MessageReceived(queue string) {
	MessagesReceivedTotal.WithLabelValues(queue).Inc()
}

// MessageHandled counts every outcome. Skipped messages were never handed to
// a handler and stay out of the latency figures.
func (c *PipelineCollector) MessageHandled(queue, outcome string, duration time.Duration) {
	MessagesHandledTotal.WithLabelValues(queue, outcome).Inc()
	if outcome == "skipped" {
		return
	}
	MessageHandleDuration.WithLabelValues(queue).Observe(duration.Seconds())
	c.record(queue, duration.Milliseconds())
}

func (c *PipelineCollector) PollFailed(queue string) {
	PollErrorsTotal.WithLabelValues(queue).Inc()
}

func (c *PipelineCollector) record(queue string, ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := append(c.windows[queue], ms)
	if len(w) > c.size {
		w = w[len(w)-c.size:]
	}
	c.windows[queue] = w
}

// LatencyP95 returns the p95 handle latency in milliseconds per queue over
// the most recent messages. Queues with no handled message are absent.
func (c *PipelineCollector) LatencyP95() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.windows))
	for queue, w := range c.windows {
		if len(w) > 0 {
			out[queue] = percentile(w, 0.95)
		}
	}
	return out
}

func percentile(values []int64, p float64) int64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
