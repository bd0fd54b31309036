package realtime

import (
	"log/slog"
	"sync"

	"github.com/blackmichael/wish-lanterns/internal/domain"
)

// DefaultBuffer is the number of events a subscriber may fall behind before
// it is disconnected.
const DefaultBuffer = 256

// Broker fans change events out to in-process subscribers. Stores publish to
// it after each committed write.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewBroker creates a broker. A buffer of zero or less uses DefaultBuffer.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscription.
func (b *Broker) Subscribe() *Subscription {
	s := &Subscription{
		broker: b,
		events: make(chan domain.ChangeEvent, b.buffer),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers ev to every subscriber. Publish never blocks: a
// subscriber whose buffer is full is dropped and its channel closed, so the
// consumer sees the end of the feed instead of a gap.
func (b *Broker) Publish(ev domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		select {
		case s.events <- ev:
		default:
			b.logger.Warn("subscriber too slow, disconnecting", "buffer", b.buffer)
			delete(b.subs, s)
			close(s.events)
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Shutdown closes every subscription.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		delete(b.subs, s)
		close(s.events)
	}
}

// Subscription is a broker-backed domain.Subscription.
type Subscription struct {
	broker *Broker
	events chan domain.ChangeEvent
}

// Events implements domain.Subscription.
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Close implements domain.Subscription.
func (s *Subscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.events)
	}
	return nil
}
