package platform

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Registration is a live wake held by TimerAlarms.
type Registration struct {
	RequestCode int
	At          time.Time
	Deliverable Deliverable
}

type timerEntry struct {
	reg   Registration
	timer clockwork.Timer
}

// TimerAlarms keeps exact wakes as in-process timers. Wakes only fire while
// the process is alive.
type TimerAlarms struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	handler WakeHandler
	entries map[int]*timerEntry
}

// NewTimerAlarms creates an empty in-process registry.
func NewTimerAlarms(clock clockwork.Clock, logger *slog.Logger) *TimerAlarms {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerAlarms{
		clock:   clock,
		logger:  logger.With("component", "platform", "capability", "timer"),
		entries: make(map[int]*timerEntry),
	}
}

func (t *TimerAlarms) Name() string { return "timer" }

// SetHandler installs the callback for fired wakes.
func (t *TimerAlarms) SetHandler(h WakeHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Schedule replaces any registration for requestCode with one firing at triggerAtMillis.
func (t *TimerAlarms) Schedule(ctx context.Context, requestCode int, triggerAtMillis int64, d Deliverable) error {
	at := time.UnixMilli(triggerAtMillis)
	delay := at.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[requestCode]; ok {
		old.timer.Stop()
	}
	entry := &timerEntry{reg: Registration{RequestCode: requestCode, At: at, Deliverable: d}}
	entry.timer = t.clock.AfterFunc(delay, func() { t.fire(requestCode, entry) })
	t.entries[requestCode] = entry

	t.logger.Debug("wake registered", "request_code", requestCode, "alarm_id", d.ID, "at", at, "in", delay)
	return nil
}

// Cancel stops the registration for requestCode, if any.
func (t *TimerAlarms) Cancel(ctx context.Context, requestCode int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[requestCode]; ok {
		entry.timer.Stop()
		delete(t.entries, requestCode)
	}
	return nil
}

func (t *TimerAlarms) fire(requestCode int, entry *timerEntry) {
	t.mu.Lock()
	if t.entries[requestCode] != entry {
		// replaced or cancelled after the timer had already expired
		t.mu.Unlock()
		return
	}
	delete(t.entries, requestCode)
	h := t.handler
	t.mu.Unlock()

	if h == nil {
		t.logger.Warn("wake fired with no handler", "alarm_id", entry.reg.Deliverable.ID)
		return
	}
	h(entry.reg.Deliverable)
}

// Pending returns the live registrations ordered by trigger time.
func (t *TimerAlarms) Pending() []Registration {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Registration, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].RequestCode < out[j].RequestCode
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Close stops every pending timer.
func (t *TimerAlarms) Close() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int]*timerEntry)
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
	}
}
