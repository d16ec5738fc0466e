// Package bus decouples the session manager from its consumers: message
// batches flow point-to-point to the ingestion dispatcher, lifecycle events
// fan out to any number of subscribers.
package bus

import (
	"context"
	"sync"
	"time"

	"wagate/pkg/wire"
)

const defaultBufferSize = 100

// Lifecycle is one session state transition.
type Lifecycle struct {
	State       string        `json:"state"`
	At          time.Time     `json:"at"`
	Attempt     int           `json:"attempt,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
	CloseCode   int           `json:"close_code,omitempty"`
	PairingCode string        `json:"pairing_code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Bus carries batches and lifecycle events between components.
type Bus struct {
	batches chan wire.MessageBatch

	lifecycleSubscribers map[uint64]chan Lifecycle
	nextSubscriberID     uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func New() *Bus {
	return &Bus{
		batches:              make(chan wire.MessageBatch, defaultBufferSize),
		lifecycleSubscribers: make(map[uint64]chan Lifecycle),
		done:                 make(chan struct{}),
	}
}

// PublishBatch enqueues one inbound batch. It blocks when the dispatcher is
// behind, which backpressures the session manager's event pump.
func (b *Bus) PublishBatch(ctx context.Context, batch wire.MessageBatch) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	case b.batches <- batch:
		return true
	}
}

// ConsumeBatch blocks until a batch is available or the bus/context ends.
func (b *Bus) ConsumeBatch(ctx context.Context) (wire.MessageBatch, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return wire.MessageBatch{}, false
	case <-b.done:
		return wire.MessageBatch{}, false
	case batch := <-b.batches:
		return batch, true
	}
}

// PublishLifecycle fans one lifecycle event out to all subscribers.
func (b *Bus) PublishLifecycle(ctx context.Context, event Lifecycle) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	subs := make([]chan Lifecycle, 0, len(b.lifecycleSubscribers))
	for _, ch := range b.lifecycleSubscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// SubscribeLifecycle registers a lifecycle subscriber. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) SubscribeLifecycle(ctx context.Context, buffer int) (<-chan Lifecycle, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Lifecycle, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.lifecycleSubscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.lifecycleSubscribers[id]; ok {
				delete(b.lifecycleSubscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.lifecycleSubscribers {
			close(ch)
			delete(b.lifecycleSubscribers, id)
		}
		b.mu.Unlock()
	})
}
