// Package store provides SQLite-backed persistence for timereports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/timereports/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the timereports SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Other processes share this file: wait for their writers, and take the
	// write lock at BEGIN.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locks (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL UNIQUE,
		holder_id TEXT NOT NULL,
		lock_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		alarm_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pdr_timestamp ON pdr(timestamp);
	CREATE INDEX IF NOT EXISTS idx_pdr_alarm_id ON pdr(alarm_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Key/Value Operations ---

// GetValue returns the value stored under key, or nil if there is none.
func (s *Store) GetValue(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kv %s: %w", key, err)
	}
	return value, nil
}

// SetValue inserts or replaces the value stored under key.
func (s *Store) SetValue(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert kv %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// --- Lock Operations ---

// ErrResourceLocked indicates the resource is already locked by another holder.
var ErrResourceLocked = errors.New("resource already locked")

// ErrLockNotHeld is returned when renewing a lock that expired or changed hands.
var ErrLockNotHeld = errors.New("lock not held")

// AcquireLock attempts to acquire a lock on a resource atomically.
// It first cleans up expired locks, then attempts to insert a new lock.
// If a lock already exists, it returns ErrResourceLocked.
func (s *Store) AcquireLock(resourceID, holderID, lockType string, ttl time.Duration) (*models.Lock, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.Exec(`DELETE FROM locks WHERE resource_id = ? AND expires_at <= ?`, resourceID, now)
	if err != nil {
		return nil, fmt.Errorf("clean expired locks: %w", err)
	}

	var existingHolder string
	err = tx.QueryRow(
		`SELECT holder_id FROM locks WHERE resource_id = ? AND expires_at > ?`,
		resourceID, now,
	).Scan(&existingHolder)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing lock: %w", err)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("%w by %s", ErrResourceLocked, existingHolder)
	}

	lock := &models.Lock{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		HolderID:   holderID,
		LockType:   lockType,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	_, err = tx.Exec(
		`INSERT INTO locks (id, resource_id, holder_id, lock_type, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lock.ID, lock.ResourceID, lock.HolderID, lock.LockType, lock.CreatedAt, lock.ExpiresAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
			return nil, ErrResourceLocked
		}
		return nil, fmt.Errorf("insert lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return lock, nil
}

// RenewLock pushes the expiry of a held lock forward.
func (s *Store) RenewLock(lockID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE locks SET expires_at = ? WHERE id = ? AND expires_at > ?`,
		now.Add(ttl), lockID, now,
	)
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// GetLock retrieves a lock by resource ID if it exists and is not expired.
func (s *Store) GetLock(resourceID string) (*models.Lock, error) {
	now := time.Now().UTC()
	lock := &models.Lock{}

	err := s.db.QueryRow(
		`SELECT id, resource_id, holder_id, lock_type, created_at, expires_at
		 FROM locks WHERE resource_id = ? AND expires_at > ?`,
		resourceID, now,
	).Scan(&lock.ID, &lock.ResourceID, &lock.HolderID, &lock.LockType, &lock.CreatedAt, &lock.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lock: %w", err)
	}
	return lock, nil
}

// ReleaseLock releases a lock.
func (s *Store) ReleaseLock(lockID string) error {
	_, err := s.db.Exec(`DELETE FROM locks WHERE id = ?`, lockID)
	return err
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, alarmID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		AlarmID:    alarmID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, alarm_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.AlarmID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the most recent records, newest first.
func (s *Store) ListPDR(limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, alarm_id, details, timestamp
		 FROM pdr ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var alarmID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &alarmID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.AlarmID = alarmID.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
