// Package events fans raffle events out to independent subscribers.
package events

import (
	"context"
	"errors"
	"sync"

	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"
)

// DefaultBuffer per-subscriber channel capacity
const DefaultBuffer = 256

var ErrBusClosed = errors.New("events: bus closed")

// Bus in-process event fan-out. Emit never blocks; an event is dropped for
// a subscriber whose buffer is full.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription
	closed bool
}

// Subscription receives events on C until unsubscribed or the bus closes
type Subscription struct {
	ID   int
	Name string
	C    <-chan raffle.Event

	ch      chan raffle.Event
	bus     *Bus
	mu      sync.Mutex
	dropped uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers a named subscriber with the given buffer size
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan raffle.Event, buffer)
	sub := &Subscription{Name: name, C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.nextID++
	sub.ID = b.nextID
	b.subs[sub.ID] = sub
	return sub
}

// Emit implements raffle.EventSink
func (b *Bus) Emit(evt raffle.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
			metrics.EventBusDropped.WithLabelValues(sub.Name).Inc()
		}
	}
}

// Unsubscribe removes sub and closes its channel
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; !ok {
		return
	}
	delete(b.subs, sub.ID)
	close(sub.ch)
}

// Close closes every subscription; later Emit calls are ignored
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Subscribers number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped events lost because the buffer was full
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe shorthand for bus.Unsubscribe(s)
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

// Dispatch calls handler for each event until ctx is done or the
// subscription is closed
func (s *Subscription) Dispatch(ctx context.Context, handler func(raffle.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.C:
			if !ok {
				return
			}
			handler(evt)
		}
	}
}

// WaitFor blocks until an event matching match arrives
func (s *Subscription) WaitFor(ctx context.Context, match func(raffle.Event) bool) (raffle.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return raffle.Event{}, ctx.Err()
		case evt, ok := <-s.C:
			if !ok {
				return raffle.Event{}, ErrBusClosed
			}
			if match == nil || match(evt) {
				return evt, nil
			}
		}
	}
}

// Named matches events by name
func Named(name raffle.EventName) func(raffle.Event) bool {
	return func(evt raffle.Event) bool { return evt.Name == name }
}
