// Package hub owns the set of live subscriber connections and their topic
// subscriptions. It decides which bus items become silent data updates and
// which are surfaced as alerts; rendering either is the client's concern.
package hub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/bus"
	"marketfeed/internal/market"
	"marketfeed/internal/symbol"
)

// Conn is the transport side of a subscriber connection. Send must be
// non-blocking best-effort; it returns an error when the connection can no
// longer keep up, at which point the hub drops it.
type Conn interface {
	Send(msg Message) error
	Close()
}

// Watcher starts and stops upstream polling for market topics; satisfied by
// monitor.Poller. Nil disables polling (tests, replay setups).
type Watcher interface {
	Watch(symbol string)
	Unwatch(symbol string)
}

// Message is the tagged envelope delivered to subscribers.
type Message struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// signal fields. Price is a pointer so a zero price still serializes
	// on new_signal envelopes while every other type omits the field.
	Signals    []market.Signal       `json:"signals,omitempty"`
	Signal     market.Recommendation `json:"signal,omitempty"`
	Price      *float64              `json:"price,omitempty"`
	Indicators map[string]float64    `json:"indicators,omitempty"`
	// Alert marks an actionable item (recommendation other than HOLD).
	// Market data updates are always silent.
	Alert bool `json:"alert,omitempty"`

	// command replies
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type connState struct {
	conn Conn
	subs map[string]*bus.Subscription
}

// Manager is the connection manager. All mutation of the subscription index
// happens under mu; bus delivery callbacks never take mu, so publishing can
// never deadlock against attach/detach.
type Manager struct {
	bus     *bus.Bus
	norm    *symbol.Normalizer
	watcher Watcher
	log     *zap.Logger

	mu     sync.Mutex
	conns  map[string]*connState
	nextID uint64
}

func NewManager(b *bus.Bus, norm *symbol.Normalizer, watcher Watcher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		bus:     b,
		norm:    norm,
		watcher: watcher,
		log:     log,
		conns:   make(map[string]*connState),
	}
}

// Attach registers a connection and returns its id.
func (m *Manager) Attach(conn Conn) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("conn-%d", m.nextID)
	m.conns[id] = &connState{conn: conn, subs: make(map[string]*bus.Subscription)}
	m.log.Info("connection attached", zap.String("conn", id), zap.Int("total", len(m.conns)))
	return id
}

// Detach removes every subscription the connection holds, releases any
// polling it was the last watcher of, and closes the transport. Idempotent.
func (m *Manager) Detach(id string) {
	m.mu.Lock()
	cs, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, id)
	remaining := len(m.conns)
	m.mu.Unlock()

	for topic, sub := range cs.subs {
		m.bus.Unsubscribe(sub)
		m.releaseWatch(topic)
	}
	cs.conn.Close()
	m.log.Info("connection detached", zap.String("conn", id), zap.Int("total", remaining))
}

// CanonicalTopic maps a requested topic to its canonical form: "signals"
// stays itself, "market:<sym>" and bare symbols get the symbol normalized.
func (m *Manager) CanonicalTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == market.SignalsTopic {
		return topic
	}
	sym := strings.TrimPrefix(topic, "market:")
	return market.Topic(m.norm.Normalize(sym))
}

// Subscribe attaches the connection to a topic. Repeat subscriptions are
// no-ops. Signal subscribers get the retained window backfilled first.
func (m *Manager) Subscribe(id, topic string) error {
	topic = m.CanonicalTopic(topic)

	m.mu.Lock()
	cs, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown connection %s", id)
	}
	if _, dup := cs.subs[topic]; dup {
		m.mu.Unlock()
		return nil
	}
	conn := cs.conn
	sub := m.bus.Subscribe(topic, func(t string, item any) error {
		msg, ok := messageFor(t, item)
		if !ok {
			return nil
		}
		if err := conn.Send(msg); err != nil {
			// Slow or dead subscriber: drop it rather than backpressure
			// the publisher. Detach must not run inside the bus lock.
			go m.Detach(id)
			return fmt.Errorf("conn %s: %w", id, err)
		}
		return nil
	})
	cs.subs[topic] = sub
	m.mu.Unlock()

	if topic == market.SignalsTopic {
		m.backfillSignals(conn)
	} else {
		m.acquireWatch(topic)
	}
	m.log.Debug("subscribed", zap.String("conn", id), zap.String("topic", topic))
	return nil
}

// Unsubscribe detaches the connection from a topic. Unknown subscriptions
// are no-ops.
func (m *Manager) Unsubscribe(id, topic string) {
	topic = m.CanonicalTopic(topic)

	m.mu.Lock()
	cs, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	sub, ok := cs.subs[topic]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(cs.subs, topic)
	m.mu.Unlock()

	m.bus.Unsubscribe(sub)
	m.releaseWatch(topic)
}

// UnsubscribeAll drops every subscription the connection holds while
// keeping the connection itself attached.
func (m *Manager) UnsubscribeAll(id string) {
	m.mu.Lock()
	cs, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	subs := cs.subs
	cs.subs = make(map[string]*bus.Subscription)
	m.mu.Unlock()

	for topic, sub := range subs {
		m.bus.Unsubscribe(sub)
		m.releaseWatch(topic)
	}
}

// Subscriptions reports how many topics a connection currently holds.
func (m *Manager) Subscriptions(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.conns[id]; ok {
		return len(cs.subs)
	}
	return 0
}

// Stats summarizes live connections per topic for the ops endpoint.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := make(map[string]int)
	for _, cs := range m.conns {
		for topic := range cs.subs {
			topics[topic]++
		}
	}
	return map[string]any{
		"total_connections": len(m.conns),
		"topics":            topics,
	}
}

func (m *Manager) acquireWatch(topic string) {
	if m.watcher == nil {
		return
	}
	if sym, ok := strings.CutPrefix(topic, "market:"); ok {
		m.watcher.Watch(sym)
	}
}

func (m *Manager) releaseWatch(topic string) {
	if m.watcher == nil {
		return
	}
	if sym, ok := strings.CutPrefix(topic, "market:"); ok {
		m.watcher.Unwatch(sym)
	}
}

func (m *Manager) backfillSignals(conn Conn) {
	snap := m.bus.Snapshot(market.SignalsTopic, bus.DefaultCapacity)
	if len(snap) == 0 {
		return
	}
	signals := make([]market.Signal, 0, len(snap))
	for _, item := range snap {
		if s, ok := item.(market.Signal); ok {
			signals = append(signals, s)
		}
	}
	msg := Message{
		Type:      "trading_signals",
		Signals:   signals,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := conn.Send(msg); err != nil {
		m.log.Warn("signal backfill dropped", zap.Error(err))
	}
}

// messageFor applies the notification policy: quotes on market topics are
// silent data updates, signals are tagged and marked as alerts only when
// actionable.
func messageFor(topic string, item any) (Message, bool) {
	switch v := item.(type) {
	case market.Quote:
		return Message{
			Type:      "market_data",
			Topic:     topic,
			Symbol:    v.Symbol,
			Data:      v,
			Timestamp: v.ObservedAt.UnixMilli(),
		}, true
	case market.Signal:
		return Message{
			Type:       "new_signal",
			Topic:      topic,
			Symbol:     v.Symbol,
			Signal:     v.Recommendation,
			Price:      &v.Price,
			Indicators: v.Indicators,
			Alert:      v.Recommendation.Actionable(),
			Timestamp:  v.ObservedAt.UnixMilli(),
		}, true
	default:
		return Message{}, false
	}
}
