package controlplane

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/timereports/internal/alarmstore"
	"github.com/fentz26/timereports/internal/audit"
	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/platform"
	"github.com/fentz26/timereports/internal/recovery"
	"github.com/fentz26/timereports/internal/registrar"
	"github.com/fentz26/timereports/internal/store"
)

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (c *countingNotifier) Notify(ctx context.Context, title, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func (c *countingNotifier) n() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type failingCapability struct{}

func (failingCapability) Name() string { return "broken" }

func (failingCapability) Schedule(ctx context.Context, code int, at int64, d platform.Deliverable) error {
	return errors.New("permission denied")
}

func (failingCapability) Cancel(ctx context.Context, code int) error { return nil }

type testEnv struct {
	service    *Service
	db         *store.Store
	alarms     *alarmstore.Store
	alarmsPath string
	clock      *clockwork.FakeClock
	timers     *platform.TimerAlarms
	dispatcher *dispatch.Dispatcher
	notifier   *countingNotifier
	bus        *events.Bus
}

func newTestEnv(t *testing.T, capability platform.AlarmCapability) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	db, err := store.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:         db,
		alarmsPath: filepath.Join(dir, "alarms.json"),
		clock:      clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 8, 0, 0, 0, time.Local)),
		notifier:   &countingNotifier{},
		bus:        events.NewBus(0, nil),
	}
	env.alarms = alarmstore.New(alarmstore.NewFileBackend(env.alarmsPath), logger)

	if capability == nil {
		env.timers = platform.NewTimerAlarms(env.clock, logger)
		t.Cleanup(env.timers.Close)
		capability = env.timers
	}
	reg := registrar.New(capability, env.clock, logger, nil)
	pdr := audit.NewPDRWriter(db, logger)

	env.dispatcher, err = dispatch.New(env.alarms, reg, dispatch.Config{
		Notifier: env.notifier,
		Events:   env.bus,
		Audit:    pdr,
		Logger:   logger,
	})
	require.NoError(t, err)
	if env.timers != nil {
		env.timers.SetHandler(env.dispatcher.HandleWake)
	}

	env.service = NewService(Deps{
		Alarms:     env.alarms,
		Registrar:  reg,
		Dispatcher: env.dispatcher,
		Recovery:   recovery.New(env.alarms, reg, env.clock, env.bus, pdr, logger, nil),
		Events:     env.bus,
		PDR:        pdr,
		Logger:     logger,
	})
	return env
}

func TestAddAlarm_SchedulesNextOccurrence(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.service.AddAlarm(ctx, "09:00", "notification")
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.True(t, res.Alarm.Active)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.Local), res.NextAt)

	pending := env.timers.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, res.Alarm.ID, pending[0].Deliverable.ID)
}

func TestAddAlarm_EarlierTimeRollsToTomorrow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.clock.Advance(6 * time.Hour) // 14:00

	res, err := env.service.AddAlarm(context.Background(), "08:00", "sound")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 2, 8, 0, 0, 0, time.Local), res.NextAt)
}

func TestAddAlarm_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.AddAlarm(ctx, "25:00", "sound")
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = env.service.AddAlarm(ctx, "09:00", "email")
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = env.service.AddAlarm(ctx, "09:00", "sound")
	require.NoError(t, err)
	_, err = env.service.AddAlarm(ctx, "9:00", "sound")
	assert.ErrorIs(t, err, ErrDuplicateAlarm)

	// same time is fine for the other kind
	_, err = env.service.AddAlarm(ctx, "09:00", "notification")
	assert.NoError(t, err)

	assert.Len(t, env.service.ListAlarms(ctx), 2)
	assert.Len(t, env.timers.Pending(), 2)
}

func TestAddAlarm_PlatformFailureIsWarning(t *testing.T) {
	env := newTestEnv(t, failingCapability{})

	res, err := env.service.AddAlarm(context.Background(), "10:30", "notification")
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "permission denied")

	stored := env.service.ListAlarms(context.Background())
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Active)

	var warned bool
	for _, e := range env.bus.Since(0) {
		if e.Type == events.PlatformWarning {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRemoveAlarm_CancelsBeforeRemoving(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.service.AddAlarm(ctx, "09:00", "notification")
	require.NoError(t, err)
	id := res.Alarm.ID

	require.NoError(t, env.service.RemoveAlarm(ctx, id))
	assert.Empty(t, env.timers.Pending())

	// a delayed platform callback for the removed id dispatches nothing
	env.dispatcher.HandleWake(platform.Deliverable{ID: id, Time: "09:00", Type: "notification"})
	env.clock.Advance(2 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, env.notifier.n())
}

func TestRemoveAlarm_NotFoundWritesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	// a registration left behind for an id the store no longer knows
	at := env.clock.Now().Add(time.Hour).UnixMilli()
	require.NoError(t, env.timers.Schedule(ctx, platform.RequestCode("abc"), at, platform.Deliverable{ID: "abc"}))

	err := env.service.RemoveAlarm(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.timers.Pending(), "the cancel still runs")

	_, statErr := os.Stat(env.alarmsPath)
	assert.True(t, os.IsNotExist(statErr), "no file should be written")
}

func TestListAlarms_SortedByTime(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, in := range []struct{ time, kind string }{
		{"17:00", "sound"},
		{"07:30", "notification"},
		{"12:00", "notification"},
		{"07:30", "sound"},
	} {
		_, err := env.service.AddAlarm(ctx, in.time, in.kind)
		require.NoError(t, err)
	}

	var got []string
	for _, a := range env.service.ListAlarms(ctx) {
		got = append(got, a.Time.String()+" "+a.Kind.String())
	}
	assert.Equal(t, []string{"07:30 sound", "07:30 notification", "12:00 notification", "17:00 sound"}, got)
}

func TestFireAndRearm(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.service.AddAlarm(ctx, "09:00", "notification")
	require.NoError(t, err)
	id := res.Alarm.ID

	fired, err := env.service.FireAlarm(ctx, id, "")
	require.NoError(t, err)
	assert.True(t, fired.Fired)
	assert.Equal(t, dispatch.TriggerManual, fired.Trigger)
	assert.Empty(t, env.timers.Pending(), "firing cancels the registration")

	again, err := env.service.FireAlarm(ctx, id, dispatch.TriggerPlatform)
	require.NoError(t, err)
	assert.False(t, again.Fired)
	assert.Equal(t, 1, env.notifier.n())

	_, err = env.service.FireAlarm(ctx, id, "poller")
	assert.ErrorIs(t, err, ErrBadTrigger)

	rearmed, err := env.service.RearmAlarm(ctx, id)
	require.NoError(t, err)
	assert.True(t, rearmed.Alarm.Active)
	assert.Len(t, env.timers.Pending(), 1)

	_, err = env.service.RearmAlarm(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlatformWakeFiresOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.service.AddAlarm(ctx, "09:00", "notification")
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		entries, err := env.service.Audit(10)
		return err == nil && len(entries) > 0 && entries[0].Action == audit.ActionDispatch
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, env.notifier.n())
	a, ok := env.alarms.Find(res.Alarm.ID)
	require.True(t, ok)
	assert.False(t, a.Active)
}

func TestRecover(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.alarms.Save(ctx, []models.Alarm{
		{ID: "a", Time: models.ClockTime{Hour: 9}, Kind: models.KindSound, Active: true},
		{ID: "b", Time: models.ClockTime{Hour: 10}, Kind: models.KindSound, Active: false},
	}))

	rep := env.service.Recover(ctx)
	assert.Equal(t, 1, rep.Scheduled)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, env.timers.Pending(), 1)
}

func TestLocalClient(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	c := NewLocalClient(env.service)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "timer", health.Capability)
	assert.False(t, health.Poller)

	added, err := c.AddAlarm(ctx, "09:00", "sound")
	require.NoError(t, err)

	res, err := c.FireAlarm(ctx, added.Alarm.ID, dispatch.TriggerPlatform)
	require.NoError(t, err)
	assert.True(t, res.Fired)

	_, err = c.FireAlarm(ctx, added.Alarm.ID, "poller")
	assert.ErrorIs(t, err, ErrBadTrigger)

	rep, err := c.Boot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)

	entries, err := c.Audit(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
