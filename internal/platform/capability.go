// Package platform adapts host facilities for exact wake-ups, notifications
// and sound to small interfaces the alarm pipeline depends on.
package platform

import (
	"context"
	"hash/fnv"
)

// Deliverable is the payload handed back when a registered wake fires.
type Deliverable struct {
	ID   string `json:"id"`
	Time string `json:"time"`
	Type string `json:"type"`
}

// WakeHandler receives fired wakes. It runs on a goroutine owned by the
// capability, never on the caller of Schedule.
type WakeHandler func(d Deliverable)

// AlarmCapability registers exact wake-ups with the host.
//
// Scheduling an already registered requestCode replaces the earlier
// registration. Cancelling an unknown requestCode is a no-op.
type AlarmCapability interface {
	Name() string
	Schedule(ctx context.Context, requestCode int, triggerAtMillis int64, d Deliverable) error
	Cancel(ctx context.Context, requestCode int) error
}

// WakeSource is implemented by capabilities that deliver wakes in-process.
type WakeSource interface {
	SetHandler(h WakeHandler)
}

// RequestCode derives the registration key for an alarm id.
func RequestCode(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() & 0x7fffffff)
}

// Noop is used where the host cannot register exact wakes. The poller is
// then the only trigger.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Schedule(ctx context.Context, requestCode int, triggerAtMillis int64, d Deliverable) error {
	return nil
}

func (Noop) Cancel(ctx context.Context, requestCode int) error { return nil }

// IsNoop reports whether c never registers anything.
func IsNoop(c AlarmCapability) bool {
	switch c.(type) {
	case Noop, *Noop, nil:
		return true
	}
	return false
}
