// Package registrar turns alarm records into platform wake registrations.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/platform"
)

// ErrPlatform wraps every failure reported by the platform capability.
var ErrPlatform = errors.New("platform alarm registration failed")

// Registrar schedules and cancels exact wakes keyed by alarm id.
// Failures are returned to the caller, which carries on with polling only.
type Registrar struct {
	capability platform.AlarmCapability
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a registrar. A nil capability behaves like platform.Noop.
func New(capability platform.AlarmCapability, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Registrar {
	if capability == nil {
		capability = platform.Noop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		capability: capability,
		clock:      clock,
		logger:     logger.With("component", "registrar", "capability", capability.Name()),
		metrics:    metrics,
	}
}

// Capability names the backing capability.
func (r *Registrar) Capability() string { return r.capability.Name() }

// Degraded reports whether wakes are never registered, leaving the poller
// as the only trigger.
func (r *Registrar) Degraded() bool { return platform.IsNoop(r.capability) }

// Payload is the deliverable registered for a.
func Payload(a models.Alarm) platform.Deliverable {
	return platform.Deliverable{ID: a.ID, Time: a.Time.String(), Type: a.Kind.String()}
}

// Schedule registers a wake for id at the absolute time at.
func (r *Registrar) Schedule(ctx context.Context, id string, at time.Time, payload platform.Deliverable) error {
	code := platform.RequestCode(id)
	if err := r.capability.Schedule(ctx, code, at.UnixMilli(), payload); err != nil {
		r.count("error")
		r.logger.Warn("schedule wake", "alarm_id", id, "at", at, "error", err)
		return fmt.Errorf("%w: schedule %s: %v", ErrPlatform, id, err)
	}
	r.count("scheduled")
	r.logger.Debug("wake scheduled", "alarm_id", id, "request_code", code, "at", at)
	return nil
}

// ScheduleNext registers the next occurrence of a and returns it.
func (r *Registrar) ScheduleNext(ctx context.Context, a models.Alarm) (time.Time, error) {
	at := a.Time.Next(r.clock.Now())
	return at, r.Schedule(ctx, a.ID, at, Payload(a))
}

// Cancel removes any wake registered for id.
func (r *Registrar) Cancel(ctx context.Context, id string) error {
	if err := r.capability.Cancel(ctx, platform.RequestCode(id)); err != nil {
		r.count("error")
		r.logger.Warn("cancel wake", "alarm_id", id, "error", err)
		return fmt.Errorf("%w: cancel %s: %v", ErrPlatform, id, err)
	}
	r.count("cancelled")
	return nil
}

func (r *Registrar) count(outcome string) {
	if r.metrics != nil {
		r.metrics.Registrations.WithLabelValues(outcome).Inc()
	}
}
