package alarmstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/store"
)

const (
	lockResource = "alarms"
	lockType     = "alarmstore"

	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 15 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// ErrLockTimeout is returned when another process keeps the alarm list
// locked for longer than the wait budget.
var ErrLockTimeout = errors.New("timed out waiting for alarm store lock")

// Locker serializes read-modify-write cycles across processes sharing one
// backend. unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// LockTable is the lease table backing DBLocker.
type LockTable interface {
	AcquireLock(resourceID, holderID, lockType string, ttl time.Duration) (*models.Lock, error)
	ReleaseLock(lockID string) error
}

// DBLocker takes a short lease on the "alarms" row of the locks table and
// polls until it gets it. A holder that dies releases it after the TTL.
type DBLocker struct {
	table  LockTable
	clock  clockwork.Clock
	holder string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewDBLocker creates a locker over table. Every locker gets its own
// holder id, so two stores in one process also exclude each other.
func NewDBLocker(table LockTable, clock clockwork.Clock) *DBLocker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	host, _ := os.Hostname()
	return &DBLocker{
		table:  table,
		clock:  clock,
		holder: fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8]),
		ttl:    defaultLockTTL,
		wait:   defaultLockWait,
		retry:  defaultLockRetry,
	}
}

// Lock blocks until the lease is acquired, ctx is done or the wait budget
// runs out.
func (l *DBLocker) Lock(ctx context.Context) (func() error, error) {
	deadline := l.clock.Now().Add(l.wait)
	for {
		lock, err := l.table.AcquireLock(lockResource, l.holder, lockType, l.ttl)
		if err == nil {
			return func() error { return l.table.ReleaseLock(lock.ID) }, nil
		}
		if !contended(err) {
			return nil, fmt.Errorf("acquire alarm store lock: %w", err)
		}
		if !l.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(l.retry):
		}
	}
}

// contended reports whether err means someone else holds the lease or the
// database is momentarily busy.
func contended(err error) bool {
	if errors.Is(err, store.ErrResourceLocked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
