// Package bus is an in-memory per-topic publish/subscribe fan-out with a
// bounded, order-preserving history per topic.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// DeliveryFn receives each item published to a subscribed topic. It runs
// synchronously inside Publish and must not block; a returned error drops
// nothing and only gets logged. Delivered items are shared read-only values.
type DeliveryFn func(topic string, item any) error

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	topic string
	id    uint64
	fn    DeliveryFn
}

func (s *Subscription) Topic() string { return s.topic }

// DefaultCapacity bounds per-topic history when no other capacity is set.
// 50 matches the signals window the UI keeps.
const DefaultCapacity = 50

// Bus owns all topic history buffers. History is mutated only by Publish;
// Snapshot copies under the same lock so readers never observe a torn
// window.
type Bus struct {
	log      *zap.Logger
	capacity int

	mu     sync.Mutex
	topics map[string]*topicState
	nextID uint64
}

type topicState struct {
	// ring buffer of the last capacity items in arrival order
	ring  []any
	start int
	count int

	subs map[uint64]*Subscription
}

func New(log *zap.Logger, capacity int) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{log: log, capacity: capacity, topics: make(map[string]*topicState)}
}

func (b *Bus) state(topic string) *topicState {
	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{ring: make([]any, b.capacity), subs: make(map[uint64]*Subscription)}
		b.topics[topic] = ts
	}
	return ts
}

// Publish appends item to the topic history, evicting the oldest entry at
// capacity, then delivers it to every current subscriber. Delivery runs
// under the bus lock so each subscriber sees items in publish order. A
// panicking or failing subscriber never affects the publisher or its peers.
func (b *Bus) Publish(topic string, item any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.state(topic)
	if ts.count == len(ts.ring) {
		// full: overwrite the oldest slot
		ts.ring[ts.start] = item
		ts.start = (ts.start + 1) % len(ts.ring)
	} else {
		ts.ring[(ts.start+ts.count)%len(ts.ring)] = item
		ts.count++
	}

	for _, sub := range ts.subs {
		b.deliver(sub, topic, item)
	}
}

func (b *Bus) deliver(sub *Subscription, topic string, item any) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("subscriber panicked during delivery",
				zap.String("topic", topic), zap.Any("panic", rec))
		}
	}()
	if err := sub.fn(topic, item); err != nil {
		b.log.Warn("delivery failed",
			zap.String("topic", topic), zap.Error(err))
	}
}

// Subscribe registers fn for every future publish on topic.
func (b *Bus) Subscribe(topic string, fn DeliveryFn) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{topic: topic, id: b.nextID, fn: fn}
	b.state(topic).subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription. Idempotent; a nil handle is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if ts := b.topics[sub.topic]; ts != nil {
		delete(ts.subs, sub.id)
	}
}

// Snapshot returns up to limit retained items, most recent first, for late
// joiners to backfill. The returned slice is a copy.
func (b *Bus) Snapshot(topic string, limit int) []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.topics[topic]
	if ts == nil || ts.count == 0 || limit <= 0 {
		return nil
	}
	n := ts.count
	if limit < n {
		n = limit
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		// walk backwards from the newest entry
		idx := (ts.start + ts.count - 1 - i + len(ts.ring)) % len(ts.ring)
		out = append(out, ts.ring[idx])
	}
	return out
}

// Subscribers reports the current subscriber count for a topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ts := b.topics[topic]; ts != nil {
		return len(ts.subs)
	}
	return 0
}
