package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Pipeline event types.
const (
	EventMessageReceived = "message.received"
	EventMessageDropped  = "message.dropped"
	EventMessageStored   = "message.stored"
	EventGatewayFailed   = "gateway.failed"
	EventBadgeUpdated    = "badge.updated"
	EventMessagesRefresh = "messages.refresh"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

const defaultHistory = 1000

// Event is a notification about pipeline progress. Views (the live stream,
// the unread badge) react to it; it never carries message content beyond
// identifiers.
type Event struct {
	Type      string
	Source    string
	Payload   map[string]any
	Timestamp time.Time
}

// EventHandler receives events on the emitting goroutine.
type EventHandler func(Event)

type subscription struct {
	id string
	fn EventHandler
}

// EventBus fans pipeline events out to subscribers and keeps the most
// recent ones so late subscribers can catch up.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	seq    int
	logger *slog.Logger

	// ring buffer of past events
	ring  []Event
	start int
	size  int
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithHistory sets how many past events Replay can return.
func WithHistory(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.ring = make([]Event, n)
		}
	}
}

func NewEventBus(logger *slog.Logger, opts ...Option) *EventBus {
	eb := &EventBus{
		subs:   make(map[string][]subscription),
		logger: logger,
		ring:   make([]Event, defaultHistory),
	}
	for _, opt := range opts {
		opt(eb)
	}
	return eb
}

// On subscribes fn to eventType (or AllEvents) and returns an ID for Off.
func (eb *EventBus) On(eventType string, fn EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.seq++
	id := eventType + "#" + strconv.Itoa(eb.seq)
	eb.subs[eventType] = append(eb.subs[eventType], subscription{id: id, fn: fn})
	return id
}

// Off removes the subscription with the given ID. It reports whether one
// was found.
func (eb *EventBus) Off(eventType, id string) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subs := eb.subs[eventType]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		rest := make([]subscription, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		eb.subs[eventType] = append(rest, subs[i+1:]...)
		return true
	}
	return false
}

// Emit records e and calls its subscribers in subscription order, type
// subscribers before AllEvents subscribers. A panicking handler is logged
// and does not affect the others or the caller.
func (eb *EventBus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	eb.mu.Lock()
	eb.record(e)
	targets := make([]subscription, 0, len(eb.subs[e.Type])+len(eb.subs[AllEvents]))
	targets = append(targets, eb.subs[e.Type]...)
	if e.Type != AllEvents {
		targets = append(targets, eb.subs[AllEvents]...)
	}
	eb.mu.Unlock()

	for _, s := range targets {
		eb.call(s, e)
	}
}

func (eb *EventBus) call(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", e.Type, "handler", s.id, "panic", r)
		}
	}()
	s.fn(e)
}

// record appends e to the ring; callers hold mu.
func (eb *EventBus) record(e Event) {
	if eb.size < len(eb.ring) {
		eb.ring[(eb.start+eb.size)%len(eb.ring)] = e
		eb.size++
		return
	}
	eb.ring[eb.start] = e
	eb.start = (eb.start + 1) % len(eb.ring)
}

// Replay returns the recorded events of eventType (or AllEvents) emitted
// at or after since, oldest first.
func (eb *EventBus) Replay(eventType string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var out []Event
	for i := 0; i < eb.size; i++ {
		e := eb.ring[(eb.start+i)%len(eb.ring)]
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == AllEvents || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// HistoryLen returns how many events Replay can currently see.
func (eb *EventBus) HistoryLen() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.size
}
