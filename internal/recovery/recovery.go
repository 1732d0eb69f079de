// Package recovery re-registers platform wakes after a restart.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/audit"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
)

// Loader reads the authoritative alarm list.
type Loader interface {
	Load(ctx context.Context) []models.Alarm
}

// Scheduler registers the next occurrence of an alarm.
type Scheduler interface {
	ScheduleNext(ctx context.Context, a models.Alarm) (time.Time, error)
}

// Report summarises one recovery pass.
type Report struct {
	Scheduled int      `json:"scheduled"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	// Took is the duration of the pass.
	Took time.Duration `json:"took"`
}

// Service runs boot recovery. Running it more than once is harmless since
// scheduling the same alarm replaces its registration.
type Service struct {
	loader    Loader
	scheduler Scheduler
	clock     clockwork.Clock
	events    events.Publisher
	audit     *audit.PDRWriter
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a recovery service. clock, publisher, pdr and metrics may be nil.
func New(loader Loader, scheduler Scheduler, clock clockwork.Clock, publisher events.Publisher, pdr *audit.PDRWriter, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:    loader,
		scheduler: scheduler,
		clock:     clock,
		events:    publisher,
		audit:     pdr,
		logger:    logger.With("component", "recovery"),
		metrics:   metrics,
	}
}

// Run schedules every active alarm and leaves inactive ones alone. Failures
// are isolated per record; Run itself never fails or panics.
func (s *Service) Run(ctx context.Context) (rep Report) {
	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("recovery aborted: %v", r))
			s.logger.Error("recovery aborted", "panic", r)
		}
		rep.Took = s.clock.Since(start)
		s.finish(rep)
	}()

	for _, a := range s.loader.Load(ctx) {
		if !a.Active {
			rep.Skipped++
			s.count("skipped")
			continue
		}
		at, err := s.scheduleOne(ctx, a)
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s %s: %v", a.Time, a.ID, err))
			s.count("failed")
			s.logger.Warn("re-register alarm", "alarm_id", a.ID, "time", a.Time, "error", err)
			continue
		}
		rep.Scheduled++
		s.count("scheduled")
		s.logger.Debug("alarm re-registered", "alarm_id", a.ID, "at", at)
	}
	return rep
}

func (s *Service) scheduleOne(ctx context.Context, a models.Alarm) (at time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.scheduler.ScheduleNext(ctx, a)
}

func (s *Service) finish(rep Report) {
	outcome := "ok"
	if rep.Failed > 0 {
		outcome = "partial"
	}
	s.audit.Record(audit.ActionRecover, rep, outcome, "",
		fmt.Sprintf("scheduled=%d skipped=%d failed=%d", rep.Scheduled, rep.Skipped, rep.Failed))
	s.events.Publish(events.Event{
		Type:    events.Recovered,
		Message: fmt.Sprintf("Boot recovery: %d scheduled, %d skipped, %d failed", rep.Scheduled, rep.Skipped, rep.Failed),
	})
	s.logger.Info("boot recovery finished",
		"scheduled", rep.Scheduled, "skipped", rep.Skipped, "failed", rep.Failed, "took", rep.Took)
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Recovered.WithLabelValues(outcome).Inc()
	}
}
