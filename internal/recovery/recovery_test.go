package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/timereports/internal/alarmstore"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/platform"
	"github.com/fentz26/timereports/internal/registrar"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func storeWith(t *testing.T, payload string) *alarmstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alarms.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	return alarmstore.New(alarmstore.NewFileBackend(path), quiet())
}

func TestRunRegistersOnlyActive(t *testing.T) {
	st := storeWith(t, `[
		{"id":"a","time":"08:00","type":"sound","active":true},
		{"id":"b","time":"09:30","type":"notification","active":false},
		{"id":"c","time":"12:15","type":"notification","active":true},
		{"id":"d","time":"16:00","type":"notification"},
		{"id":"e","time":"18:00","type":"sound","active":false}
	]`)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC))
	timers := platform.NewTimerAlarms(clock, quiet())
	defer timers.Close()
	reg := registrar.New(timers, clock, quiet(), nil)

	bus := events.NewBus(0, nil)
	m := observability.NewMetricsForTesting()
	rep := New(st, reg, clock, bus, nil, quiet(), m).Run(context.Background())

	assert.Equal(t, Report{Scheduled: 3, Skipped: 2}, rep)

	var ids []string
	for _, p := range timers.Pending() {
		ids = append(ids, p.Deliverable.ID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "c", "d"}, ids)

	// 08:00 already passed at 10:00, so it rolls to tomorrow
	for _, p := range timers.Pending() {
		if p.Deliverable.ID == "a" {
			assert.Equal(t, time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC), p.At.UTC())
		}
	}

	evs := bus.Since(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.Recovered, evs[0].Type)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Recovered.WithLabelValues("scheduled")))
}

func TestRunIsRepeatable(t *testing.T) {
	st := storeWith(t, `[{"id":"a","time":"08:00","type":"sound","active":true}]`)
	clock := clockwork.NewFakeClock()
	timers := platform.NewTimerAlarms(clock, quiet())
	defer timers.Close()
	svc := New(st, registrar.New(timers, clock, quiet(), nil), clock, nil, nil, quiet(), nil)

	svc.Run(context.Background())
	svc.Run(context.Background())
	assert.Len(t, timers.Pending(), 1)
}

func TestRunCorruptFile(t *testing.T) {
	st := storeWith(t, `{"this is": not json`)
	clock := clockwork.NewFakeClock()
	timers := platform.NewTimerAlarms(clock, quiet())

	rep := New(st, registrar.New(timers, clock, quiet(), nil), clock, nil, nil, quiet(), nil).Run(context.Background())
	assert.Equal(t, Report{}, rep)
	assert.Empty(t, timers.Pending())
}

type flakyScheduler struct {
	calls []string
}

func (f *flakyScheduler) ScheduleNext(ctx context.Context, a models.Alarm) (time.Time, error) {
	f.calls = append(f.calls, a.ID)
	switch a.ID {
	case "boom":
		panic("capability exploded")
	case "err":
		return time.Time{}, errors.New("denied")
	}
	return time.Now(), nil
}

func TestRunIsolatesFailures(t *testing.T) {
	st := storeWith(t, `[
		{"id":"boom","time":"01:00","type":"sound","active":true},
		{"id":"err","time":"02:00","type":"sound","active":true},
		{"id":"ok","time":"03:00","type":"sound","active":true}
	]`)
	sched := &flakyScheduler{}

	var rep Report
	require.NotPanics(t, func() {
		rep = New(st, sched, nil, nil, nil, quiet(), nil).Run(context.Background())
	})

	assert.Equal(t, []string{"boom", "err", "ok"}, sched.calls)
	assert.Equal(t, 1, rep.Scheduled)
	assert.Equal(t, 2, rep.Failed)
	require.Len(t, rep.Errors, 2)
	assert.Contains(t, rep.Errors[0], "capability exploded")
}

type panickingLoader struct{}

func (panickingLoader) Load(ctx context.Context) []models.Alarm { panic("disk gone") }

func TestRunSurvivesLoaderPanic(t *testing.T) {
	var rep Report
	require.NotPanics(t, func() {
		rep = New(panickingLoader{}, &flakyScheduler{}, nil, nil, nil, quiet(), nil).Run(context.Background())
	})
	assert.Equal(t, 1, rep.Failed)
}

// slowScheduler moves the fake clock forward on every registration.
type slowScheduler struct {
	clock *clockwork.FakeClock
	step  time.Duration
}

func (s slowScheduler) ScheduleNext(ctx context.Context, a models.Alarm) (time.Time, error) {
	s.clock.Advance(s.step)
	return s.clock.Now(), nil
}

func TestRunTimesPassWithInjectedClock(t *testing.T) {
	st := storeWith(t, `[
		{"id":"a","time":"07:00","type":"sound","active":true},
		{"id":"b","time":"08:00","type":"sound","active":true}
	]`)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC))

	rep := New(st, slowScheduler{clock: clock, step: 2 * time.Second}, clock, nil, nil, quiet(), nil).Run(context.Background())

	assert.Equal(t, 2, rep.Scheduled)
	assert.Equal(t, 4*time.Second, rep.Took)
}
