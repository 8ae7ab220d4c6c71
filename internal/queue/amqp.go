package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultAMQPRetryDelay = 30 * time.Second

	receiveCountHeader = "x-receive-count"
)

// AMQPTransport serves local stacks from a RabbitMQ queue using basic.get
// with manual acknowledgement. Unacked deliveries stay invisible to other
// consumers until released or the channel closes.
//
// Released messages are republished to a "<queue>.retry" queue whose TTL
// dead-letters them back onto the main queue, so a retained message comes
// back after the retry delay instead of immediately.
type AMQPTransport struct {
	url        string
	name       string
	queue      string
	retryDelay time.Duration
	interval   time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	inflight map[string]amqp.Delivery
	closed   bool
}

func NewAMQPTransport(url, name, queue string, retryDelay time.Duration) (*AMQPTransport, error) {
	if retryDelay <= 0 {
		retryDelay = DefaultAMQPRetryDelay
	}
	t := &AMQPTransport{
		url:        url,
		name:       name,
		queue:      queue,
		retryDelay: retryDelay,
		interval:   500 * time.Millisecond,
		inflight:   make(map[string]amqp.Delivery),
	}
	if err := t.connect(); err != nil {
		return nil, err
	}
	return t, nil
}

func retryQueueName(queue string) string {
	return queue + ".retry"
}

func retryQueueArgs(queue string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// connect dials and declares both queues. Callers hold mu or own t exclusively.
func (t *AMQPTransport) connect() error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", t.queue, err)
	}
	retry := retryQueueName(t.queue)
	if _, err := ch.QueueDeclare(retry, true, false, false, false, retryQueueArgs(t.queue, t.retryDelay)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", retry, err)
	}

	t.conn = conn
	t.ch = ch
	// Delivery tags are scoped to the old channel; the broker requeued them.
	clear(t.inflight)
	return nil
}

// channel returns an open channel, reconnecting when the previous connection
// or channel was closed. A failed reconnect is reported as ErrClosed so the
// poller exits and its supervisor restarts it after backoff.
func (t *AMQPTransport) channel() (*amqp.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.ch != nil && !t.ch.IsClosed() && !t.conn.IsClosed() {
		return t.ch, nil
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	if err := t.connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return t.ch, nil
}

func closedErr(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

func (t *AMQPTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	var msgs []Message
	for {
		ch, err := t.channel()
		if err != nil {
			return msgs, err
		}
		for len(msgs) < max {
			d, ok, err := ch.Get(t.queue, false)
			if err != nil {
				return msgs, fmt.Errorf("amqp get: %w", closedErr(err))
			}
			if !ok {
				break
			}
			msgs = append(msgs, t.track(d))
		}
		if len(msgs) > 0 || time.Now().After(deadline) {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.interval):
		}
	}
}

// receiveCount counts the current delivery plus earlier ones recorded by the
// retry queue round trips.
func receiveCount(d amqp.Delivery) int {
	n := 1
	if s, ok := d.Headers[receiveCountHeader].(string); ok {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			n += v
		}
	}
	if d.Redelivered {
		n++
	}
	return n
}

func (t *AMQPTransport) track(d amqp.Delivery) Message {
	receipt := uuid.NewString()
	t.mu.Lock()
	t.inflight[receipt] = d
	t.mu.Unlock()

	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	msg := Message{
		ID:            id,
		Queue:         t.name,
		Body:          d.Body,
		ReceiptHandle: receipt,
		ReceiveCount:  receiveCount(d),
	}
	for k, v := range d.Headers {
		if k == receiveCountHeader {
			continue
		}
		if s, ok := v.(string); ok {
			if msg.Attributes == nil {
				msg.Attributes = make(map[string]string, len(d.Headers))
			}
			msg.Attributes[k] = s
		}
	}
	return msg
}

func (t *AMQPTransport) take(receipt string) (amqp.Delivery, *amqp.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.inflight[receipt]
	if !ok {
		return amqp.Delivery{}, nil, ErrStaleReceipt
	}
	delete(t.inflight, receipt)
	if t.ch == nil {
		return amqp.Delivery{}, nil, ErrClosed
	}
	return d, t.ch, nil
}

func (t *AMQPTransport) Delete(ctx context.Context, m Message) error {
	d, ch, err := t.take(m.ReceiptHandle)
	if err != nil {
		return err
	}
	if err := ch.Ack(d.DeliveryTag, false); err != nil {
		return fmt.Errorf("amqp ack %s: %w", m.ID, closedErr(err))
	}
	return nil
}

// ChangeVisibility requeues the delivery immediately for d <= 0; any positive
// duration takes the retry queue and its fixed delay.
func (t *AMQPTransport) ChangeVisibility(ctx context.Context, m Message, d time.Duration) error {
	if d > 0 {
		return t.Release(ctx, m)
	}
	delivery, ch, err := t.take(m.ReceiptHandle)
	if err != nil {
		return err
	}
	if err := ch.Nack(delivery.DeliveryTag, false, true); err != nil {
		return fmt.Errorf("amqp nack %s: %w", m.ID, closedErr(err))
	}
	return nil
}

// retryPublishing copies a delivery for the retry queue, bumping its receive
// count.
func retryPublishing(d amqp.Delivery) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[receiveCountHeader] = strconv.Itoa(receiveCount(d))
	return amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      headers,
		Body:         d.Body,
	}
}

// Release parks the delivery on the retry queue and acknowledges the
// original. If the republish fails the delivery is nacked with requeue so it
// is not lost.
func (t *AMQPTransport) Release(ctx context.Context, m Message) error {
	d, ch, err := t.take(m.ReceiptHandle)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(pctx, "", retryQueueName(t.queue), false, false, retryPublishing(d)); err != nil {
		if nerr := ch.Nack(d.DeliveryTag, false, true); nerr != nil {
			return fmt.Errorf("amqp nack %s: %w", m.ID, closedErr(nerr))
		}
		return fmt.Errorf("amqp retry publish %s: %w", m.ID, closedErr(err))
	}
	if err := ch.Ack(d.DeliveryTag, false); err != nil {
		return fmt.Errorf("amqp ack %s: %w", m.ID, closedErr(err))
	}
	return nil
}

func (t *AMQPTransport) Send(ctx context.Context, body []byte, attributes map[string]string) error {
	ch, err := t.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range attributes {
		headers[k] = v
	}
	err = ch.PublishWithContext(ctx, "", t.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", closedErr(err))
	}
	return nil
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn == nil {
		return nil
	}
	chErr := t.ch.Close()
	connErr := t.conn.Close()
	t.conn, t.ch = nil, nil
	if chErr != nil && !errors.Is(chErr, amqp.ErrClosed) {
		return chErr
	}
	if errors.Is(connErr, amqp.ErrClosed) {
		return nil
	}
	return connErr
}
