package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/alarmstore"
	"github.com/fentz26/timereports/internal/audit"
	"github.com/fentz26/timereports/internal/config"
	"github.com/fentz26/timereports/internal/connectors/localexec"
	"github.com/fentz26/timereports/internal/controlplane"
	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/platform"
	"github.com/fentz26/timereports/internal/recovery"
	"github.com/fentz26/timereports/internal/registrar"
	"github.com/fentz26/timereports/internal/store"
)

// pipeline is the alarm pipeline assembled from config. The daemon builds
// one for its lifetime; CLI commands build a short-lived one when no daemon
// answers.
type pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	clock      clockwork.Clock
	db         *store.Store
	alarms     *alarmstore.Store
	platform   *platform.Platform
	registrar  *registrar.Registrar
	dispatcher *dispatch.Dispatcher
	recovery   *recovery.Service
	bus        *events.Bus
	service    *controlplane.Service
}

// openPipeline wires the components. metrics may be nil.
func openPipeline(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline, error) {
	db, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:    cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		db:     db,
		bus:    events.NewBus(0, nil),
	}

	var backend alarmstore.Backend
	switch cfg.Storage {
	case config.StorageKV:
		backend = alarmstore.NewKVBackend(db, alarmstore.DefaultKey)
	default:
		backend = alarmstore.NewFileBackend(cfg.AlarmsPath())
	}
	// fire processes started by OS timers share the backend with the daemon
	p.alarms = alarmstore.New(backend, logger,
		alarmstore.WithMetrics(metrics),
		alarmstore.WithLocker(alarmstore.NewDBLocker(db, p.clock)),
	)

	fireCommand, err := fireCommand(cfg)
	if err != nil {
		logger.Warn("cannot resolve fire command, systemd timers are unavailable", "error", err)
	}
	workDir, _ := os.Getwd()
	conn := localexec.New(workDir)
	p.platform, err = platform.Select(cfg.Platform, platform.Deps{
		Conn:        conn,
		Available:   conn.Available,
		Clock:       p.clock,
		Logger:      logger,
		FireCommand: fireCommand,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	p.registrar = registrar.New(p.platform.Capability, p.clock, logger, metrics)
	pdr := audit.NewPDRWriter(db, logger)

	p.dispatcher, err = dispatch.New(p.alarms, p.registrar, dispatch.Config{
		Notifier:      p.platform.Notifier,
		Player:        p.platform.Player,
		SoundAsset:    cfg.SoundAsset(),
		TitleTemplate: cfg.Notification.Title,
		BodyTemplate:  cfg.Notification.Body,
		Events:        p.bus,
		Audit:         pdr,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	if ws, ok := p.platform.Capability.(platform.WakeSource); ok {
		ws.SetHandler(p.dispatcher.HandleWake)
	}

	p.recovery = recovery.New(p.alarms, p.registrar, p.clock, p.bus, pdr, logger, metrics)
	p.service = controlplane.NewService(controlplane.Deps{
		Alarms:     p.alarms,
		Registrar:  p.registrar,
		Dispatcher: p.dispatcher,
		Recovery:   p.recovery,
		Events:     p.bus,
		PDR:        pdr,
		Logger:     logger,
	})
	return p, nil
}

// Close stops in-process timers and closes the database.
func (p *pipeline) Close() error {
	if t, ok := p.platform.Capability.(*platform.TimerAlarms); ok {
		t.Close()
	}
	return p.db.Close()
}

// fireCommand is what an OS timer runs on expiry: this binary with the same
// config, to which platform.SystemdAlarms appends "fire --id ...".
func fireCommand(cfg *config.Config) ([]string, error) {
	if cfg.Platform.FireCommand != "" {
		return strings.Fields(cfg.Platform.FireCommand), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	argv := []string{exe}
	if configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	return argv, nil
}
