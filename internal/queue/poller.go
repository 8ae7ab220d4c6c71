package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
)

type Config struct {
	Queue          string
	Production     bool
	Wait           time.Duration
	BatchSize      int
	SkipCooldown   time.Duration
	ErrorCooldown  time.Duration
	HandlerTimeout time.Duration
}

func DefaultConfig(queue string) Config {
	return Config{
		Queue:          queue,
		Wait:           20 * time.Second,
		BatchSize:      10,
		SkipCooldown:   time.Second,
		ErrorCooldown:  5 * time.Second,
		HandlerTimeout: 5 * time.Minute,
	}
}

type Poller struct {
	cfg       Config
	transport Transport
	handler   Handler
	owner     Owner
	reporter  report.Reporter
	metrics   Metrics
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

func WithMetrics(m Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = fn }
}

func NewPoller(cfg Config, transport Transport, handler Handler, owner Owner, reporter report.Reporter, opts ...Option) *Poller {
	p := &Poller{
		cfg:       cfg,
		transport: transport,
		handler:   handler,
		owner:     owner,
		reporter:  reporter,
		metrics:   nopMetrics{},
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Queue() string {
	return p.cfg.Queue
}

// Run polls until ctx is done. Receive failures are reported and followed by
// ErrorCooldown; a batch with skipped messages is followed by SkipCooldown.
// A closed transport ends Run with the error so the supervisor restarts it.
func (p *Poller) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With("queue", p.cfg.Queue, "handler", p.handler.Name())
	log.Info("poller started", "batch_size", p.cfg.BatchSize, "wait", p.cfg.Wait)

	p.metrics.PollerStarted(p.cfg.Queue)
	defer p.metrics.PollerStopped(p.cfg.Queue)

	for {
		if err := ctx.Err(); err != nil {
			log.Info("poller stopped")
			return err
		}

		result, err := p.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("receive failed", "error", err)
			p.metrics.PollFailed(p.cfg.Queue)
			p.reporter.Error(logger.WithQueue(ctx, p.cfg.Queue), err, report.Fields{"stage": "receive"})
			if errors.Is(err, ErrClosed) {
				return err
			}
			_ = p.sleep(ctx, p.cfg.ErrorCooldown)
			continue
		}

		if result.Skipped > 0 {
			log.Debug("skipped messages for other instances", "skipped", result.Skipped)
			_ = p.sleep(ctx, p.cfg.SkipCooldown)
		}
	}
}

// PollOnce performs one long poll and handles the batch sequentially in
// arrival order.
func (p *Poller) PollOnce(ctx context.Context) (PollResult, error) {
	var result PollResult

	msgs, err := p.transport.Receive(ctx, p.cfg.BatchSize, p.cfg.Wait)
	if err != nil {
		return result, apperror.Transport(fmt.Errorf("receive from %s: %w", p.cfg.Queue, err))
	}

	result.Received = len(msgs)
	for _, m := range msgs {
		p.metrics.MessageReceived(p.cfg.Queue)
		result.add(p.process(ctx, m))
	}
	return result, nil
}

func (p *Poller) process(ctx context.Context, m Message) Outcome {
	start := time.Now()

	ctx = logger.WithQueue(ctx, p.cfg.Queue)
	ctx = logger.WithMessageID(ctx, m.ID)
	log := logger.FromContext(ctx).With("queue", p.cfg.Queue, "message_id", m.ID, "receive_count", m.ReceiveCount)
	ctx = logger.WithLogger(ctx, log)

	ctx = tracing.Extract(ctx, m.Attributes)
	ctx, span := tracing.StartMessageSpan(ctx, p.cfg.Queue, m.ID)

	outcome, err := p.dispatch(ctx, m)
	tracing.End(span, err)

	p.metrics.MessageHandled(p.cfg.Queue, string(outcome), time.Since(start))
	log.Debug("message processed", "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())
	return outcome
}

func (p *Poller) dispatch(ctx context.Context, m Message) (Outcome, error) {
	log := logger.FromContext(ctx)

	target, err := p.handler.Target(ctx, m.Body)
	if err == nil && !p.owner.Owns(target) {
		log.Debug("message belongs to another instance", "target", target)
		if verr := p.transport.ChangeVisibility(ctx, m, 0); verr != nil {
			log.Error("reset visibility failed", "error", verr)
			p.reporter.Error(ctx, apperror.Transport(verr), report.Fields{"stage": "change_visibility"})
		}
		return OutcomeSkipped, nil
	}

	if err == nil {
		hctx := ctx
		if p.cfg.HandlerTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, p.cfg.HandlerTimeout)
			defer cancel()
		}
		err = p.handler.Handle(hctx, m)
	}

	switch {
	case err == nil:
		return p.ack(ctx, m, OutcomeAcked), nil

	case apperror.IsIgnorable(err) && !p.cfg.Production:
		log.Warn("ignorable failure swallowed", "error", err)
		return p.ack(ctx, m, OutcomeSwallowed), nil

	default:
		log.Error("handler failed, message retained", "error", err, "kind", apperror.KindOf(err).String())
		p.reporter.Error(ctx, err, report.Fields{"stage": "handle", "receive_count": m.ReceiveCount})
		if rerr := p.transport.Release(ctx, m); rerr != nil {
			log.Warn("release failed", "error", rerr)
		}
		return OutcomeRetained, err
	}
}

func (p *Poller) ack(ctx context.Context, m Message, outcome Outcome) Outcome {
	if err := p.transport.Delete(ctx, m); err != nil {
		logger.FromContext(ctx).Error("delete failed, message will be redelivered", "error", err)
		p.reporter.Error(ctx, apperror.Transport(err), report.Fields{"stage": "delete"})
		return OutcomeRetained
	}
	return outcome
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
