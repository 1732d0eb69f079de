// Package controlplane provides the alarm lifecycle service and its HTTP API.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fentz26/timereports/internal/alarmstore"
	"github.com/fentz26/timereports/internal/audit"
	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/recovery"
	"github.com/fentz26/timereports/internal/registrar"
)

// Version is stamped at build time.
var Version = "0.1.0-dev"

// AddResult is returned by AddAlarm and RearmAlarm.
type AddResult struct {
	Alarm  models.Alarm `json:"alarm"`
	NextAt time.Time    `json:"next_at"`
	// Warning is set when the alarm was stored but no exact wake could be
	// registered. The poller still fires it while the daemon runs.
	Warning string `json:"warning,omitempty"`
}

// EventBus is what the service needs from the event feed.
type EventBus interface {
	events.Publisher
	Since(after uint64) []events.Event
}

// Deps are the collaborators of a Service.
type Deps struct {
	Alarms     *alarmstore.Store
	Registrar  *registrar.Registrar
	Dispatcher *dispatch.Dispatcher
	Recovery   *recovery.Service
	Events     EventBus
	PDR        *audit.PDRWriter
	Logger     *slog.Logger
}

// Service implements the alarm lifecycle operations.
type Service struct {
	alarms     *alarmstore.Store
	registrar  *registrar.Registrar
	dispatcher *dispatch.Dispatcher
	recovery   *recovery.Service
	events     EventBus
	pdr        *audit.PDRWriter
	logger     *slog.Logger
}

// NewService creates a lifecycle service.
func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.NewBus(0, nil)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		alarms:     d.Alarms,
		registrar:  d.Registrar,
		dispatcher: d.Dispatcher,
		recovery:   d.Recovery,
		events:     d.Events,
		pdr:        d.PDR,
		logger:     d.Logger.With("component", "lifecycle"),
	}
}

// --- Alarm Operations ---

// AddAlarm stores a new alarm and registers its next occurrence. Validation
// and duplicate errors leave no trace. A registration failure is reported
// as a warning, not an error.
func (s *Service) AddAlarm(ctx context.Context, clock, kind string) (*AddResult, error) {
	k, err := models.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	alarm, err := s.alarms.Add(ctx, clock, k)
	if err != nil {
		return nil, err
	}

	res := s.arm(ctx, alarm)
	s.events.Publish(events.Event{
		Type:    events.AlarmAdded,
		AlarmID: alarm.ID,
		Time:    alarm.Time.String(),
		Kind:    alarm.Kind.String(),
		Message: fmt.Sprintf("Added %s alarm at %s", alarm.Kind, alarm.Time),
	})
	s.pdr.Record(audit.ActionAdd, map[string]string{"time": clock, "type": kind}, "success", alarm.ID, res.Warning)
	return res, nil
}

// RemoveAlarm cancels any registration for id, then deletes the record, so
// no wake can outlive it.
func (s *Service) RemoveAlarm(ctx context.Context, id string) error {
	if err := s.registrar.Cancel(ctx, id); err != nil {
		s.warn(id, "", fmt.Sprintf("Could not cancel the system alarm: %v", err))
	}

	removed, err := s.alarms.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.events.Publish(events.Event{Type: events.AlarmRemoved, AlarmID: id, Message: "Alarm removed"})
	s.pdr.Record(audit.ActionRemove, map[string]string{"id": id}, "success", id, "")
	return nil
}

// RearmAlarm makes a fired alarm active again and registers its next occurrence.
func (s *Service) RearmAlarm(ctx context.Context, id string) (*AddResult, error) {
	alarm, err := s.alarms.Rearm(ctx, id)
	if err != nil {
		return nil, err
	}

	res := s.arm(ctx, alarm)
	s.events.Publish(events.Event{
		Type:    events.AlarmRearmed,
		AlarmID: alarm.ID,
		Time:    alarm.Time.String(),
		Kind:    alarm.Kind.String(),
		Message: fmt.Sprintf("Re-armed %s alarm at %s", alarm.Kind, alarm.Time),
	})
	s.pdr.Record(audit.ActionRearm, map[string]string{"id": id}, "success", id, res.Warning)
	return res, nil
}

// ListAlarms returns every alarm sorted by time of day, then kind.
func (s *Service) ListAlarms(ctx context.Context) []models.Alarm {
	alarms := s.alarms.Load(ctx)
	sort.SliceStable(alarms, func(i, j int) bool {
		if alarms[i].Time != alarms[j].Time {
			return alarms[i].Time.Before(alarms[j].Time)
		}
		return alarms[i].Kind < alarms[j].Kind
	})
	if alarms == nil {
		alarms = []models.Alarm{}
	}
	return alarms
}

// FireAlarm dispatches id now. Platform wakes handled by another process
// arrive here, as do manual test fires.
func (s *Service) FireAlarm(ctx context.Context, id string, trigger dispatch.Trigger) (dispatch.Result, error) {
	switch trigger {
	case "":
		trigger = dispatch.TriggerManual
	case dispatch.TriggerManual, dispatch.TriggerPlatform:
	default:
		return dispatch.Result{}, fmt.Errorf("%w: %q", ErrBadTrigger, trigger)
	}
	return s.dispatcher.Dispatch(ctx, id, trigger)
}

// Recover re-registers every active alarm.
func (s *Service) Recover(ctx context.Context) recovery.Report {
	return s.recovery.Run(ctx)
}

// Events returns feed entries newer than after.
func (s *Service) Events(after uint64) []events.Event {
	evs := s.events.Since(after)
	if evs == nil {
		evs = []events.Event{}
	}
	return evs
}

// Capability names the platform capability and whether it is the no-op one.
func (s *Service) Capability() (string, bool) {
	return s.registrar.Capability(), s.registrar.Degraded()
}

// Audit returns recent audit records, newest first.
func (s *Service) Audit(limit int) ([]models.PDREntry, error) {
	return s.pdr.Recent(limit)
}

func (s *Service) arm(ctx context.Context, alarm models.Alarm) *AddResult {
	res := &AddResult{Alarm: alarm}
	at, err := s.registrar.ScheduleNext(ctx, alarm)
	res.NextAt = at
	if err != nil {
		res.Warning = fmt.Sprintf("Saved, but the system alarm was not registered (%v). It will fire only while timereports is running.", err)
		s.warn(alarm.ID, alarm.Time.String(), res.Warning)
	}
	return res
}

func (s *Service) warn(id, clock, msg string) {
	s.logger.Warn(msg, "alarm_id", id)
	s.events.Publish(events.Event{Type: events.PlatformWarning, AlarmID: id, Time: clock, Message: msg})
}
