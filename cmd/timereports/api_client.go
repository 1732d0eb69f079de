package main

import (
	"context"
	"time"

	"github.com/fentz26/timereports/internal/config"
	"github.com/fentz26/timereports/internal/controlplane"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/tui"
)

// probeTimeout bounds the health check that decides daemon or local mode.
const probeTimeout = 500 * time.Millisecond

// alarmAPI is satisfied by controlplane.Client and controlplane.LocalClient.
type alarmAPI interface {
	tui.API
	Audit(ctx context.Context, limit int) ([]models.PDREntry, error)
}

// reachDaemon returns a client when a daemon answers /health at url. A
// daemon that reports an unhealthy database still counts as running.
func reachDaemon(url string) *controlplane.Client {
	c := controlplane.NewClient(url)
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if health, _ := c.Health(ctx); health == nil {
		return nil
	}
	return c
}

// connect prefers the running daemon and otherwise opens the pipeline in this
// process. The returned func releases whatever was opened.
func connect(cfg *config.Config) (alarmAPI, func(), error) {
	if c := reachDaemon(daemonURL(cfg)); c != nil {
		return c, func() {}, nil
	}

	p, err := openPipeline(cfg, observability.NewLogger(cfg), nil)
	if err != nil {
		return nil, nil, err
	}
	return controlplane.NewLocalClient(p.service), func() { p.Close() }, nil
}

// withAPI loads config, connects and runs fn with a request context.
func withAPI(fn func(ctx context.Context, api alarmAPI) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	api, done, err := connect(cfg)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), controlplane.DefaultClientTimeout)
	defer cancel()
	return fn(ctx, api)
}
