package controlplane

import (
	"context"
	"time"

	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/recovery"
)

// LocalClient has the method set of Client but calls a Service in the same
// process. Commands use it when no daemon answers.
type LocalClient struct {
	service *Service
}

// NewLocalClient wraps service.
func NewLocalClient(service *Service) *LocalClient {
	return &LocalClient{service: service}
}

// Health reports the in-process pipeline. There is no poller.
func (c *LocalClient) Health(ctx context.Context) (*HealthResponse, error) {
	capability, degraded := c.service.Capability()
	return &HealthResponse{
		OK:         true,
		DB:         "ok",
		Version:    Version,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Capability: capability,
		Degraded:   degraded,
	}, nil
}

func (c *LocalClient) ListAlarms(ctx context.Context) ([]models.Alarm, error) {
	return c.service.ListAlarms(ctx), nil
}

func (c *LocalClient) AddAlarm(ctx context.Context, clock, kind string) (*AddResult, error) {
	return c.service.AddAlarm(ctx, clock, kind)
}

func (c *LocalClient) RemoveAlarm(ctx context.Context, id string) error {
	return c.service.RemoveAlarm(ctx, id)
}

func (c *LocalClient) RearmAlarm(ctx context.Context, id string) (*AddResult, error) {
	return c.service.RearmAlarm(ctx, id)
}

func (c *LocalClient) FireAlarm(ctx context.Context, id string, trigger dispatch.Trigger) (*dispatch.Result, error) {
	res, err := c.service.FireAlarm(ctx, id, trigger)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *LocalClient) Boot(ctx context.Context) (*recovery.Report, error) {
	rep := c.service.Recover(ctx)
	return &rep, nil
}

func (c *LocalClient) Events(ctx context.Context, after uint64) ([]events.Event, error) {
	return c.service.Events(after), nil
}

func (c *LocalClient) Audit(ctx context.Context, limit int) ([]models.PDREntry, error) {
	return c.service.Audit(limit)
}
