// Package queue consumes one logical queue with long polling and decides, in
// one place, whether each message is acknowledged or left for redelivery.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStaleReceipt = errors.New("queue: receipt handle is no longer valid")
	ErrClosed       = errors.New("queue: transport closed")
)

type Message struct {
	ID            string
	Queue         string
	Body          []byte
	ReceiptHandle string
	Attributes    map[string]string
	ReceiveCount  int
}

type Transport interface {
	// Receive blocks up to wait for at most max messages.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, m Message) error
	ChangeVisibility(ctx context.Context, m Message, d time.Duration) error
	// Release gives up a message without acknowledging it.
	Release(ctx context.Context, m Message) error
	Close() error
}

type Publisher interface {
	Send(ctx context.Context, body []byte, attributes map[string]string) error
}

type Handler interface {
	Name() string
	// Target returns the instance a message belongs to, "" for any.
	Target(ctx context.Context, body []byte) (string, error)
	Handle(ctx context.Context, m Message) error
}

type Owner interface {
	Owns(target string) bool
}

type Metrics interface {
	PollerStarted(queue string)
	PollerStopped(queue string)
	MessageReceived(queue string)
	MessageHandled(queue, outcome string, duration time.Duration)
	PollFailed(queue string)
}

type Outcome string

const (
	OutcomeAcked     Outcome = "acked"
	OutcomeSwallowed Outcome = "swallowed"
	OutcomeRetained  Outcome = "retained"
	OutcomeSkipped   Outcome = "skipped"
)

type PollResult struct {
	Received  int
	Acked     int
	Swallowed int
	Retained  int
	Skipped   int
}

func (r *PollResult) add(o Outcome) {
	switch o {
	case OutcomeAcked:
		r.Acked++
	case OutcomeSwallowed:
		r.Swallowed++
	case OutcomeRetained:
		r.Retained++
	case OutcomeSkipped:
		r.Skipped++
	}
}

type nopMetrics struct{}

func (nopMetrics) PollerStarted(string)                         {}
func (nopMetrics) PollerStopped(string)                         {}
func (nopMetrics) MessageReceived(string)                       {}
func (nopMetrics) MessageHandled(string, string, time.Duration) {}
func (nopMetrics) PollFailed(string)                            {}
