package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/timereports/internal/config"
	"github.com/fentz26/timereports/internal/controlplane"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/scheduler"
	"github.com/fentz26/timereports/internal/store"
)

const (
	instanceResource = "daemon"
	instanceLockType = "instance"
)

var (
	listenAddr string
	logToFile  bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the timereports daemon",
	Long: `Starts the long-lived instance: boot recovery, the minute poller and the
lifecycle HTTP API used by the TUI and the alarm commands.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().BoolVar(&logToFile, "log-file", false, "Write logs to <data_dir>/daemon.log")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	logger, closeLog, err := daemonLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("starting timereports daemon", "version", controlplane.Version, "data_dir", cfg.DataDir, "storage", cfg.Storage)

	metrics := observability.NewMetrics()
	p, err := openPipeline(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer p.Close()

	release, err := holdInstanceLock(p.db, cfg.LockTTL, logger)
	if err != nil {
		return err
	}
	defer release()

	if p.registrar.Degraded() {
		logger.Warn("no platform alarm capability, alarms fire only while the daemon runs")
	} else {
		logger.Info("platform alarm capability selected", "capability", p.registrar.Capability())
	}

	stopEventLog := logEvents(p.bus, logger)
	defer stopEventLog()

	rep := p.recovery.Run(context.Background())
	logger.Info("boot recovery complete", "scheduled", rep.Scheduled, "skipped", rep.Skipped, "failed", rep.Failed)

	poller := scheduler.New(p.alarms, p.dispatcher, p.clock, logger, metrics)
	if cfg.Poller.Enabled {
		poller.Start()
		defer poller.Stop()
	}

	server := controlplane.NewServer(p.service, p.db, cfg.Listen, logger)
	server.PollerRunning = poller.Running

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// daemonLogger logs to stderr, or to daemon.log when the TUI started us.
func daemonLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if !logToFile {
		return observability.NewLogger(cfg), func() {}, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open daemon log: %w", err)
	}
	return observability.NewLoggerTo(f, cfg.LogLevel, cfg.LogFormat), func() { f.Close() }, nil
}

// logEvents mirrors the status feed into the daemon log, so fires and
// delivery failures are on record after the TUI has gone.
func logEvents(bus *events.Bus, logger *slog.Logger) (stop func()) {
	sub := bus.Subscribe()
	logger = logger.With("component", "events")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C() {
			attrs := []any{"type", e.Type, "seq", e.Seq}
			if e.AlarmID != "" {
				attrs = append(attrs, "alarm_id", e.AlarmID)
			}
			if e.IsError() {
				logger.Warn(e.Message, attrs...)
			} else {
				logger.Info(e.Message, attrs...)
			}
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

// holdInstanceLock makes this process the single app instance for the data
// dir and keeps the lock fresh until release is called. A crashed daemon's
// lock expires after ttl.
func holdInstanceLock(db *store.Store, ttl time.Duration, logger *slog.Logger) (func(), error) {
	host, _ := os.Hostname()
	holder := fmt.Sprintf("%s:%d", host, os.Getpid())

	lock, err := db.AcquireLock(instanceResource, holder, instanceLockType, ttl)
	if err != nil {
		if errors.Is(err, store.ErrResourceLocked) {
			return nil, fmt.Errorf("another daemon is running: %w", err)
		}
		return nil, err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := db.RenewLock(lock.ID, ttl); err != nil {
					logger.Error("renew instance lock", "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		if err := db.ReleaseLock(lock.ID); err != nil {
			logger.Warn("release instance lock", "error", err)
		}
	}, nil
}
