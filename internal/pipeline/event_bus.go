package pipeline

import (
	"sync"
)

// ResultHandler receives pipeline results
type ResultHandler interface {
	// OnResult is called after a frame completes processing. Handlers
	// are invoked synchronously from the processing goroutine and must
	// return quickly.
	OnResult(result *Result)
}

// EventBus provides pub/sub for pipeline results. Subscribers are either
// handlers (synchronous, ordered) or buffered channels (dropped when full
// so a slow consumer never stalls the pipeline).
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	channel chan *Result
	handler ResultHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for pipeline results.
// Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler ResultHandler) func() {
	sub := &eventSubscription{handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a buffered channel that receives results and an
// unsubscribe function. Results are skipped when the channel is full.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *Result, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *Result, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish sends a result to all subscribers
func (b *EventBus) Publish(result *Result) {
	if result == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		// Handlers run synchronously to preserve frame ordering.
		if sub.handler != nil {
			sub.handler.OnResult(result)
		} else if sub.channel != nil {
			select {
			case sub.channel <- result:
			default:
				// Channel full, skip this result
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
