package queue

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTransport is an in-process queue with SQS visibility semantics: a
// received message is hidden until its visibility timeout lapses, and only
// Delete removes it.
type MemoryTransport struct {
	mu         sync.Mutex
	name       string
	messages   []*memoryMessage
	visibility time.Duration
	now        func() time.Time
	closed     bool
	deleted    int
}

type memoryMessage struct {
	msg       Message
	visibleAt time.Time
	receipt   string
}

func NewMemoryTransport(name string, visibility time.Duration) *MemoryTransport {
	return &MemoryTransport{
		name:       name,
		visibility: visibility,
		now:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (t *MemoryTransport) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *MemoryTransport) Send(ctx context.Context, body []byte, attributes map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.messages = append(t.messages, &memoryMessage{
		msg: Message{
			ID:         uuid.NewString(),
			Queue:      t.name,
			Body:       append([]byte(nil), body...),
			Attributes: maps.Clone(attributes),
		},
		visibleAt: t.now(),
	})
	return nil
}

func (t *MemoryTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		msgs, err := t.receive(max)
		if err != nil || len(msgs) > 0 || wait <= 0 || time.Now().After(deadline) {
			return msgs, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (t *MemoryTransport) receive(max int) ([]Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	now := t.now()
	var out []Message
	for _, m := range t.messages {
		if len(out) >= max {
			break
		}
		if now.Before(m.visibleAt) {
			continue
		}
		m.receipt = uuid.NewString()
		m.visibleAt = now.Add(t.visibility)
		m.msg.ReceiveCount++
		msg := m.msg
		msg.ReceiptHandle = m.receipt
		out = append(out, msg)
	}
	return out, nil
}

func (t *MemoryTransport) find(receipt string) (int, *memoryMessage) {
	for i, m := range t.messages {
		if m.receipt != "" && m.receipt == receipt {
			return i, m
		}
	}
	return -1, nil
}

func (t *MemoryTransport) Delete(ctx context.Context, m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, _ := t.find(m.ReceiptHandle)
	if i < 0 {
		return ErrStaleReceipt
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	t.deleted++
	return nil
}

func (t *MemoryTransport) ChangeVisibility(ctx context.Context, m Message, d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, mm := t.find(m.ReceiptHandle)
	if mm == nil {
		return ErrStaleReceipt
	}
	mm.visibleAt = t.now().Add(d)
	return nil
}

// Release is a no-op; the message reappears once its visibility lapses.
func (t *MemoryTransport) Release(ctx context.Context, m Message) error {
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Len returns the number of undeleted messages, visible or not.
func (t *MemoryTransport) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Visible returns the number of messages a Receive would return now.
func (t *MemoryTransport) Visible() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for _, m := range t.messages {
		if !now.Before(m.visibleAt) {
			n++
		}
	}
	return n
}

func (t *MemoryTransport) Deleted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}
