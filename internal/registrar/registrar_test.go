package registrar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/fentz26/timereports/internal/platform"
)

type scheduled struct {
	code int
	at   int64
	d    platform.Deliverable
}

type fakeCapability struct {
	mu        sync.Mutex
	scheduled []scheduled
	cancelled []int
	err       error
}

func (f *fakeCapability) Name() string { return "fake" }

func (f *fakeCapability) Schedule(ctx context.Context, code int, at int64, d platform.Deliverable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, scheduled{code, at, d})
	return nil
}

func (f *fakeCapability) Cancel(ctx context.Context, code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, code)
	return nil
}

func newTestRegistrar(t *testing.T, now time.Time) (*Registrar, *fakeCapability, *observability.Metrics) {
	t.Helper()
	capability := &fakeCapability{}
	m := observability.NewMetricsForTesting()
	r := New(capability, clockwork.NewFakeClockAt(now), slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	return r, capability, m
}

func alarmAt(t *testing.T, clock string) models.Alarm {
	t.Helper()
	ct, err := models.ParseClockTime(clock)
	require.NoError(t, err)
	return models.Alarm{ID: "alarm-" + clock, Time: ct, Kind: models.KindNotification, Active: true}
}

func TestScheduleNext_LaterToday(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	r, capability, m := newTestRegistrar(t, now)

	a := alarmAt(t, "09:00")
	at, err := r.ScheduleNext(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), at)

	require.Len(t, capability.scheduled, 1)
	got := capability.scheduled[0]
	assert.Equal(t, platform.RequestCode(a.ID), got.code)
	assert.Equal(t, at.UnixMilli(), got.at)
	assert.Equal(t, platform.Deliverable{ID: a.ID, Time: "09:00", Type: "notification"}, got.d)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("scheduled")))
}

func TestScheduleNext_RollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	r, _, _ := newTestRegistrar(t, now)

	at, err := r.ScheduleNext(context.Background(), alarmAt(t, "09:00"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC), at)
}

func TestScheduleFailureIsWrapped(t *testing.T) {
	r, capability, m := newTestRegistrar(t, time.Now())
	cause := errors.New("bus unavailable")
	capability.err = cause

	_, err := r.ScheduleNext(context.Background(), alarmAt(t, "07:15"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatform)
	assert.Contains(t, err.Error(), "bus unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("error")))

	assert.ErrorIs(t, r.Cancel(context.Background(), "x"), ErrPlatform)
}

func TestCancelUsesSameRequestCode(t *testing.T) {
	r, capability, _ := newTestRegistrar(t, time.Now())
	require.NoError(t, r.Cancel(context.Background(), "alarm-1"))
	assert.Equal(t, []int{platform.RequestCode("alarm-1")}, capability.cancelled)
}

func TestDegraded(t *testing.T) {
	assert.True(t, New(platform.Noop{}, nil, nil, nil).Degraded())
	assert.True(t, New(nil, nil, nil, nil).Degraded())

	r, _, _ := newTestRegistrar(t, time.Now())
	assert.False(t, r.Degraded())
	assert.Equal(t, "fake", r.Capability())
}
