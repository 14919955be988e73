package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryHandlePrefix = "memory://queues/"

var _ Gateway = (*MemoryGateway)(nil)

// MemoryGateway is an in-process Gateway with SQS-like semantics: receives
// hide messages for the visibility timeout, each receive issues a fresh
// receipt handle, and only Ack removes a message. Used for local
// development and tests.
type MemoryGateway struct {
	mu         sync.Mutex
	queues     map[Handle]*memoryQueue
	visibility time.Duration
	now        func() time.Time
}

type memoryQueue struct {
	name     string
	messages []*memoryMessage
	// signal is closed and replaced on every send to wake long-polling receivers.
	signal chan struct{}
}

type memoryMessage struct {
	id             string
	body           string
	receipt        string
	invisibleUntil time.Time
}

type MemoryOption func(*MemoryGateway)

// WithVisibilityTimeout sets how long a received message stays hidden.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(g *MemoryGateway) {
		if d >= 0 {
			g.visibility = d
		}
	}
}

// WithClock replaces time.Now, for tests that need to move past a
// visibility timeout.
func WithClock(now func() time.Time) MemoryOption {
	return func(g *MemoryGateway) {
		if now != nil {
			g.now = now
		}
	}
}

func NewMemoryGateway(opts ...MemoryOption) *MemoryGateway {
	g := &MemoryGateway{
		queues:     make(map[Handle]*memoryQueue),
		visibility: 30 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MemoryGateway) CreateQueue(ctx context.Context, channelName string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyContextError(err, "create queue")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	name := QueueName(channelName, g.now())
	h := Handle(memoryHandlePrefix + name)
	for i := 1; ; i++ {
		if _, exists := g.queues[h]; !exists {
			break
		}
		h = Handle(fmt.Sprintf("%s%s-%d", memoryHandlePrefix, name, i))
	}
	g.queues[h] = &memoryQueue{name: strings.TrimPrefix(string(h), memoryHandlePrefix), signal: make(chan struct{})}
	return h, nil
}

func (g *MemoryGateway) DeleteQueue(ctx context.Context, h Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return fmt.Errorf("delete queue: %w", ErrQueueNotFound)
	}
	close(q.signal)
	delete(g.queues, h)
	return nil
}

func (g *MemoryGateway) PurgeQueue(ctx context.Context, h Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return fmt.Errorf("purge queue: %w", ErrQueueNotFound)
	}
	q.messages = nil
	return nil
}

func (g *MemoryGateway) Send(ctx context.Context, h Handle, payload Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyContextError(err, "send")
	}
	body, err := EncodePayload(payload)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return "", fmt.Errorf("send: %w", ErrQueueNotFound)
	}
	msg := &memoryMessage{id: uuid.NewString(), body: body}
	q.messages = append(q.messages, msg)

	close(q.signal)
	q.signal = make(chan struct{})
	return msg.id, nil
}

func (g *MemoryGateway) Receive(ctx context.Context, h Handle, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}

	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	for {
		deliveries, signal, err := g.take(h, max)
		if err != nil {
			return nil, err
		}
		if len(deliveries) > 0 || timer == nil {
			return deliveries, nil
		}

		select {
		case <-signal:
		case <-timer:
			return []Delivery{}, nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return []Delivery{}, nil
			}
			return nil, classifyContextError(ctx.Err(), "receive")
		}
	}
}

// take claims up to max visible messages and hides them for the visibility
// timeout. It also returns the queue's current wake-up signal so the caller
// can wait for the next send without missing one.
func (g *MemoryGateway) take(h Handle, max int) ([]Delivery, <-chan struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return nil, nil, fmt.Errorf("receive: %w", ErrQueueNotFound)
	}

	now := g.now()
	deliveries := make([]Delivery, 0, max)
	for _, m := range q.messages {
		if len(deliveries) == max {
			break
		}
		if now.Before(m.invisibleUntil) {
			continue
		}
		m.receipt = uuid.NewString()
		m.invisibleUntil = now.Add(g.visibility)
		deliveries = append(deliveries, Delivery{ProviderID: m.id, Body: m.body, ReceiptHandle: m.receipt})
	}
	return deliveries, q.signal, nil
}

func (g *MemoryGateway) Ack(ctx context.Context, h Handle, receiptHandle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return fmt.Errorf("ack: %w", ErrQueueNotFound)
	}
	for i, m := range q.messages {
		if m.receipt != "" && m.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("ack: %w", ErrInvalidReceipt)
}

func (g *MemoryGateway) Describe(ctx context.Context, h Handle) (Depth, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.queues[h]
	if !ok {
		return Depth{}, fmt.Errorf("describe: %w", ErrQueueNotFound)
	}
	now := g.now()
	var d Depth
	for _, m := range q.messages {
		if now.Before(m.invisibleUntil) {
			d.InFlight++
		} else {
			d.Available++
		}
	}
	return d, nil
}

func (g *MemoryGateway) Ping(ctx context.Context) error {
	return ctx.Err()
}

func classifyContextError(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrOperationTimeout, operation)
	}
	return fmt.Errorf("%w: %s", ErrOperationCanceled, operation)
}
