// Package events carries status updates from background components to the UI.
//
// Publishers never touch UI state. The daemon keeps a bounded history that
// clients poll by sequence number, and in-process subscribers receive events
// on a buffered channel.
package events

import (
	"sync"
	"time"
)

// Type names what happened.
type Type string

const (
	AlarmAdded      Type = "alarm.added"
	AlarmRemoved    Type = "alarm.removed"
	AlarmRearmed    Type = "alarm.rearmed"
	AlarmFired      Type = "alarm.fired"
	AlarmAlert      Type = "alarm.alert"
	DeliveryFailed  Type = "alarm.delivery_failed"
	PlatformWarning Type = "platform.warning"
	PersistFailed   Type = "store.persist_failed"
	Recovered       Type = "boot.recovered"
)

// Event is one status update.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    Type      `json:"type"`
	AlarmID string    `json:"alarm_id,omitempty"`
	Time    string    `json:"time,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// IsError reports whether the event should render as a failure.
func (e Event) IsError() bool {
	switch e.Type {
	case DeliveryFailed, PlatformWarning, PersistFailed:
		return true
	}
	return false
}

// Publisher is the side background components depend on.
type Publisher interface {
	Publish(e Event) Event
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(e Event) Event { return e }

const (
	defaultCapacity  = 100
	subscriberBuffer = 16
)

// Bus assigns sequence numbers, keeps the newest events and fans them out.
type Bus struct {
	mu       sync.Mutex
	now      func() time.Time
	capacity int
	seq      uint64
	history  []Event
	subs     map[*Subscription]struct{}
}

// NewBus creates a bus keeping up to capacity events. capacity <= 0 uses 100.
func NewBus(capacity int, now func() time.Time) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Bus{
		now:      now,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Publish stamps e and delivers it. Subscribers whose buffer is full miss
// the event instead of blocking the publisher.
func (b *Bus) Publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	e.Seq = b.seq
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.history = append(b.history, e)
	if len(b.history) > b.capacity {
		b.history = append([]Event(nil), b.history[len(b.history)-b.capacity:]...)
	}

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
	return e
}

// Since returns retained events with a sequence number greater than after.
func (b *Bus) Since(after uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, e := range b.history {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

// Subscription receives events published after it was created.
type Subscription struct {
	bus  *Bus
	ch   chan Event
	once sync.Once
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
