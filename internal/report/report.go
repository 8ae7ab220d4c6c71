// Package report sends pipeline failures and notable events to the
// observability stream, a JSON line log separate from the application log.
package report

import (
	"context"
	"io"
	"sync"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/rs/zerolog"
)

type Fields map[string]any

type Reporter interface {
	Error(ctx context.Context, err error, fields Fields)
	Event(ctx context.Context, name string, fields Fields)
}

type ZerologReporter struct {
	logger zerolog.Logger
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewZerologReporter(logger zerolog.Logger) *ZerologReporter {
	return &ZerologReporter{logger: logger.With().Str("stream", "report").Logger()}
}

func NewWriterReporter(w io.Writer, instance string) *ZerologReporter {
	return NewZerologReporter(zerolog.New(w).With().Timestamp().Str("instance", instance).Logger())
}

func (r *ZerologReporter) Error(ctx context.Context, err error, fields Fields) {
	ev := r.logger.Error().
		Err(err).
		Str("kind", apperror.KindOf(err).String()).
		Str("code", apperror.Code(err))
	withContext(ctx, ev).Fields(map[string]any(fields)).Msg("pipeline error")
}

func (r *ZerologReporter) Event(ctx context.Context, name string, fields Fields) {
	ev := r.logger.Info().Str("event", name)
	withContext(ctx, ev).Fields(map[string]any(fields)).Msg("pipeline event")
}

func withContext(ctx context.Context, ev *zerolog.Event) *zerolog.Event {
	if q := logger.Queue(ctx); q != "" {
		ev = ev.Str("queue", q)
	}
	if id := logger.MessageID(ctx); id != "" {
		ev = ev.Str("message_id", id)
	}
	return ev
}

// Recorder keeps reports in memory. Tests use it to assert what was reported.
type Recorder struct {
	mu     sync.Mutex
	Errors []error
	Events []string
}

func (r *Recorder) Error(ctx context.Context, err error, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

func (r *Recorder) Event(ctx context.Context, name string, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, name)
}

func (r *Recorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

func (r *Recorder) EventCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Events {
		if e == name {
			n++
		}
	}
	return n
}
