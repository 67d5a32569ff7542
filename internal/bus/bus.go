// Package bus distributes cache-invalidation and progress events with
// at-least-once, per-user ordered delivery.
package bus

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// Handler consumes events. A returned error is logged and counted but never
// propagated to the publisher; a panicking handler is likewise isolated.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Option configures optional behaviour for the Bus.
type Option func(*Bus)

// WithLogger overrides the logger used to report subscriber failures.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithQueueSize sets the per-user queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// Bus fans events out to subscribers. Each user key owns a sequential queue
// drained by its own goroutine, so events for one user are delivered in
// publish order while distinct users proceed fully in parallel.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	subs      map[int]Handler
	queues    map[string]chan Event
	closed    bool
	wg        sync.WaitGroup
	inflight  sync.WaitGroup
	logger    *log.Logger
	queueSize int
}

// New constructs a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[int]Handler),
		queues:    make(map[string]chan Event),
		logger:    log.New(log.Writer(), "[bus] ", log.LstdFlags),
		queueSize: 128,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler and returns its subscription token.
func (b *Bus) Subscribe(h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = h
	return b.nextID
}

// Unsubscribe removes a handler. In-flight deliveries to it may still finish.
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, token)
}

// Publish enqueues the event on its user's queue. It blocks only when the
// queue is full, and respects ctx cancellation while waiting.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	q, ok := b.queues[evt.UserKey()]
	if !ok {
		q = make(chan Event, b.queueSize)
		b.queues[evt.UserKey()] = q
		b.wg.Add(1)
		go b.drain(q)
	}
	// Registered under the lock so Close cannot close q before the send
	// below has finished.
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	select {
	case q <- evt:
		recordPublished(evt.EventType())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for in-flight publishers, drains
// every queue, and waits for delivery goroutines to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	// Queues keep draining while we wait, so a publisher blocked on a full
	// queue still completes its send.
	b.inflight.Wait()

	b.mu.Lock()
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) drain(q chan Event) {
	defer b.wg.Done()
	for evt := range q {
		b.deliver(evt)
	}
}

// deliver hands the event to every subscriber in subscription order. Handler
// errors and panics are isolated so one failing subscriber cannot block the
// rest or surface to the publisher.
func (b *Bus) deliver(evt Event) {
	b.mu.Lock()
	tokens := make([]int, 0, len(b.subs))
	for token := range b.subs {
		tokens = append(tokens, token)
	}
	sort.Ints(tokens)
	handlers := make([]Handler, len(tokens))
	for i, token := range tokens {
		handlers[i] = b.subs[token]
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliverOne(h, evt)
	}
	recordDelivered(evt.EventType())
}

func (b *Bus) deliverOne(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("subscriber panic (event_type=%s): %v", evt.EventType(), r)
			recordSubscriberFailure(evt.EventType())
		}
	}()
	if err := h.HandleEvent(context.Background(), evt); err != nil {
		b.logger.Printf("subscriber error (event_type=%s): %v", evt.EventType(), err)
		recordSubscriberFailure(evt.EventType())
	}
}
