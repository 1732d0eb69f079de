package tui

import (
	"context"
	"time"

	"github.com/fentz26/timereports/internal/controlplane"
	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/recovery"
)

// API is the part of the daemon client the alarms tab uses.
// *controlplane.Client satisfies it.
type API interface {
	Health(ctx context.Context) (*controlplane.HealthResponse, error)
	ListAlarms(ctx context.Context) ([]models.Alarm, error)
	AddAlarm(ctx context.Context, clock, kind string) (*controlplane.AddResult, error)
	RemoveAlarm(ctx context.Context, id string) error
	RearmAlarm(ctx context.Context, id string) (*controlplane.AddResult, error)
	FireAlarm(ctx context.Context, id string, trigger dispatch.Trigger) (*dispatch.Result, error)
	Boot(ctx context.Context) (*recovery.Report, error)
	Events(ctx context.Context, after uint64) ([]events.Event, error)
}

type alarmsLoadedMsg struct {
	alarms []models.Alarm
}

type healthMsg struct {
	health *controlplane.HealthResponse
	err    error
}

type eventsMsg struct {
	events []events.Event
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

// tickMsg drives the clock header and the event poll.
type tickMsg time.Time
