// Package alarmstore owns the authoritative list of alarm records.
package alarmstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/observability"
	"github.com/google/uuid"
)

var (
	// ErrDuplicate is returned by Add when the (time, kind) pair already exists.
	ErrDuplicate = errors.New("alarm already exists for this time and type")
	// ErrNotFound is returned when an operation names an unknown id.
	ErrNotFound = errors.New("alarm not found")
)

// Store guards the alarm list. Every mutation re-reads the backend, applies
// the change and writes the full list back while holding the lock, so the
// backend stays the single source of truth.
type Store struct {
	backend Backend
	logger  *slog.Logger
	metrics *observability.Metrics
	newID   func() string
	locker  Locker

	mu     sync.Mutex
	alarms []models.Alarm
	// dirty is set when an in-memory transition could not be persisted.
	// Until the next successful write the cache wins over the backend.
	dirty bool
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics keeps the active-alarms gauge current.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLocker makes every read-modify-write hold l, for backends shared
// with other processes.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates a store over backend. Call Load to populate it.
func New(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With("component", "alarmstore", "backend", backend.Name()),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the backend and replaces the cached list. A missing or corrupt
// payload yields an empty list; errors are logged, never returned.
//
// While a failed write is pending, Load retries it and returns the cache
// instead, so a fired alarm never reappears as active.
func (s *Store) Load(ctx context.Context) []models.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		if unlock, err := s.lockShared(ctx); err == nil {
			if err := s.write(ctx, s.alarms); err != nil {
				s.logger.Warn("unsaved alarm changes pending", "error", err)
			}
			unlock()
		}
		return clone(s.alarms)
	}

	alarms, err := s.read(ctx)
	if err != nil {
		s.logger.Error("load alarms", "error", err)
		alarms = nil
	}
	s.setCache(alarms)
	return clone(alarms)
}

// Save atomically overwrites the backend with records.
func (s *Store) Save(ctx context.Context, records []models.Alarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockShared(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(ctx, clone(records))
}

// Add validates the input, enforces (time, kind) uniqueness and persists a
// new active alarm.
func (s *Store) Add(ctx context.Context, clock string, kind models.Kind) (models.Alarm, error) {
	ct, err := models.ParseClockTime(clock)
	if err != nil {
		return models.Alarm{}, err
	}
	if !kind.Valid() {
		return models.Alarm{}, fmt.Errorf("%w: %d", models.ErrInvalidKind, int(kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockShared(ctx)
	if err != nil {
		return models.Alarm{}, err
	}
	defer unlock()

	current, err := s.current(ctx)
	if err != nil {
		return models.Alarm{}, err
	}
	for _, a := range current {
		if a.Time == ct && a.Kind == kind {
			return models.Alarm{}, fmt.Errorf("%w: %s %s", ErrDuplicate, ct, kind)
		}
	}

	alarm := models.Alarm{ID: s.newID(), Time: ct, Kind: kind, Active: true}
	if err := s.write(ctx, append(clone(current), alarm)); err != nil {
		return models.Alarm{}, err
	}
	return alarm, nil
}

// Remove deletes the record with id. An unknown id returns false and
// performs no write.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockShared(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	idx := indexOf(current, id)
	if idx < 0 {
		return false, nil
	}

	next := make([]models.Alarm, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	if err := s.write(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// MarkFired transitions id from active to inactive. It reports true for
// exactly one caller per arming; every later call, and any call for an
// unknown id, reports false. If the write fails the transition still holds
// in memory and the error is returned. If the shared lock cannot be taken
// nothing is claimed and the error is returned.
func (s *Store) MarkFired(ctx context.Context, id string) (models.Alarm, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockShared(ctx)
	if err != nil {
		return models.Alarm{}, false, err
	}
	defer unlock()

	current, err := s.current(ctx)
	if err != nil {
		s.logger.Warn("reload before fire failed, using cached alarms", "alarm_id", id, "error", err)
		current = s.alarms
	}
	idx := indexOf(current, id)
	if idx < 0 {
		return models.Alarm{}, false, nil
	}
	if !current[idx].Active {
		return current[idx], false, nil
	}

	next := clone(current)
	next[idx].Active = false
	fired := next[idx]

	if err := s.write(ctx, next); err != nil {
		s.setCache(next)
		s.dirty = true
		return fired, true, err
	}
	return fired, true, nil
}

// Rearm makes a fired alarm active again.
func (s *Store) Rearm(ctx context.Context, id string) (models.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockShared(ctx)
	if err != nil {
		return models.Alarm{}, err
	}
	defer unlock()

	current, err := s.current(ctx)
	if err != nil {
		return models.Alarm{}, err
	}
	idx := indexOf(current, id)
	if idx < 0 {
		return models.Alarm{}, ErrNotFound
	}
	if current[idx].Active {
		return current[idx], nil
	}

	next := clone(current)
	next[idx].Active = true
	if err := s.write(ctx, next); err != nil {
		return models.Alarm{}, err
	}
	return next[idx], nil
}

// Find returns a copy of the cached record with id.
func (s *Store) Find(id string) (models.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.alarms, id)
	if idx < 0 {
		return models.Alarm{}, false
	}
	return s.alarms[idx], true
}

// List returns a copy of every cached record in storage order.
func (s *Store) List() []models.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.alarms)
}

// Active returns copies of the records that are still armed.
func (s *Store) Active() []models.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alarm
	for _, a := range s.alarms {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// lockShared takes the cross-process lock when one is configured. Caller
// holds mu.
func (s *Store) lockShared(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Lock(ctx)
	if err != nil {
		s.logger.Error("lock alarm store", "error", err)
		return nil, err
	}
	return func() {
		if err := release(); err != nil {
			s.logger.Warn("release alarm store lock", "error", err)
		}
	}, nil
}

// current returns the list mutations start from: the cache while a failed
// write is pending, the backend otherwise. Caller holds mu.
func (s *Store) current(ctx context.Context) ([]models.Alarm, error) {
	if s.dirty {
		return s.alarms, nil
	}
	alarms, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	s.setCache(alarms)
	return alarms, nil
}

// read decodes the backend. Only I/O failures are errors; a corrupt payload
// is logged and treated as empty, and invalid records are skipped.
func (s *Store) read(ctx context.Context) ([]models.Alarm, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Error("alarm storage is corrupt, starting empty", "error", err)
		return nil, nil
	}

	alarms := make([]models.Alarm, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		var a models.Alarm
		if err := json.Unmarshal(r, &a); err != nil {
			s.logger.Warn("skipping invalid alarm record", "index", i, "error", err)
			continue
		}
		if seen[a.ID] {
			s.logger.Warn("skipping duplicate alarm id", "alarm_id", a.ID)
			continue
		}
		seen[a.ID] = true
		alarms = append(alarms, a)
	}
	return alarms, nil
}

// write persists alarms and, on success, makes them the cache. Caller holds mu.
func (s *Store) write(ctx context.Context, alarms []models.Alarm) error {
	if alarms == nil {
		alarms = []models.Alarm{}
	}
	data, err := json.MarshalIndent(alarms, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alarms: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		s.logger.Error("save alarms", "error", err)
		return fmt.Errorf("save alarms: %w", err)
	}
	s.setCache(alarms)
	s.dirty = false
	return nil
}

func (s *Store) setCache(alarms []models.Alarm) {
	s.alarms = alarms
	if s.metrics != nil {
		n := 0
		for _, a := range alarms {
			if a.Active {
				n++
			}
		}
		s.metrics.ActiveAlarms.Set(float64(n))
	}
}

func indexOf(alarms []models.Alarm, id string) int {
	for i, a := range alarms {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func clone(alarms []models.Alarm) []models.Alarm {
	if alarms == nil {
		return nil
	}
	out := make([]models.Alarm, len(alarms))
	copy(out, alarms)
	return out
}
