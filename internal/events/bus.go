package events

import (
	"sync"
	"time"
)

// EventType classifies engine events.
type EventType string

const (
	EventSignalGenerated       EventType = "SIGNAL_GENERATED"
	EventSignalRejected        EventType = "SIGNAL_REJECTED"
	EventTradeOpened           EventType = "TRADE_OPENED"
	EventTradeSkipped          EventType = "TRADE_SKIPPED"
	EventTradeFailed           EventType = "TRADE_FAILED"
	EventKillSwitchActivated   EventType = "KILL_SWITCH_ACTIVATED"
	EventKillSwitchDeactivated EventType = "KILL_SWITCH_DEACTIVATED"
	EventAccountPaused         EventType = "ACCOUNT_PAUSED"
	EventAccountResumed        EventType = "ACCOUNT_RESUMED"
)

// Event is one engine event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers run synchronously on the
// publisher's goroutine and must not block.
type Subscriber func(Event)

// defaultHistory bounds the in-memory event ring.
const defaultHistory = 256

// EventBus fans events out to subscribers and keeps a bounded history for
// the ops API.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber

	history []Event
	next    int
	full    bool
}

// NewEventBus creates an event bus with the default history size.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		history:     make([]Event, defaultHistory),
	}
}

// Subscribe registers a subscriber for one event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish records the event and delivers it to subscribers.
func (eb *EventBus) Publish(eventType EventType, data map[string]interface{}) {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eb.mu.Lock()
	eb.history[eb.next] = ev
	eb.next = (eb.next + 1) % len(eb.history)
	if eb.next == 0 {
		eb.full = true
	}
	subs := make([]Subscriber, 0, len(eb.subscribers[eventType])+len(eb.allSubs))
	subs = append(subs, eb.subscribers[eventType]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// Recent returns up to limit events, newest first.
func (eb *EventBus) Recent(limit int) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	size := eb.next
	if eb.full {
		size = len(eb.history)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (eb.next - i + len(eb.history)) % len(eb.history)
		out = append(out, eb.history[idx])
	}
	return out
}
