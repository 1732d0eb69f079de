// Package scheduler runs the clock poller, the in-process trigger that fires
// alarms at minute boundaries while the daemon is alive.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
)

// Source gives the poller a fresh view of stored alarms.
type Source interface {
	Load(ctx context.Context) []models.Alarm
}

// Dispatcher fires one alarm.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, trigger dispatch.Trigger) (dispatch.Result, error)
}

// Poller wakes at the top of every minute and dispatches active alarms set
// for that minute. Alarms the platform already fired are absorbed by the
// dispatcher.
type Poller struct {
	source     Source
	dispatcher Dispatcher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	running atomic.Bool
	ticks   atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped poller.
func New(source Source, dispatcher Dispatcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger.With("component", "poller"),
		metrics:    metrics,
	}
}

// Start begins the poll loop. Starting a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.setGauge(1)

	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("poller started")
}

// Stop ends the loop and waits for it to exit, including any dispatch in
// progress.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.setGauge(0)
	p.logger.Info("poller stopped", "ticks", p.ticks.Load())
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool { return p.running.Load() }

// Ticks counts handled minute boundaries.
func (p *Poller) Ticks() uint64 { return p.ticks.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	for p.running.Load() {
		now := p.clock.Now()
		boundary := now.Truncate(time.Minute).Add(time.Minute)

		timer := p.clock.NewTimer(boundary.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		if !p.running.Load() {
			return
		}

		at := p.clock.Now()
		if at.Before(boundary) {
			at = boundary
		}
		p.tick(ctx, at)
	}
}

func (p *Poller) tick(ctx context.Context, now time.Time) {
	fired := 0
	for _, a := range p.source.Load(ctx) {
		if !a.Active || !a.Time.Matches(now) {
			continue
		}
		res, err := p.dispatcher.Dispatch(ctx, a.ID, dispatch.TriggerPoller)
		if err != nil {
			p.logger.Error("dispatch", "alarm_id", a.ID, "error", err)
			continue
		}
		if res.Fired {
			fired++
		}
	}

	p.ticks.Add(1)
	if p.metrics != nil {
		p.metrics.PollerTicks.Inc()
	}
	p.logger.Debug("tick", "at", now.Format("15:04"), "fired", fired)
}

func (p *Poller) setGauge(v float64) {
	if p.metrics != nil {
		p.metrics.PollerRunning.Set(v)
	}
}
