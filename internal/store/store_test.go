package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNew_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.SetValue(ctx, "alarms", []byte(`[]`)); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	s.Close()

	// migrations must be idempotent and data must survive
	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.GetValue(ctx, "alarms")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Expected [], got %q", got)
	}
}

func TestKeyValue(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	got, err := s.GetValue(ctx, "missing")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing key, got %q", got)
	}

	if err := s.SetValue(ctx, "alarms", []byte("v1")); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := s.SetValue(ctx, "alarms", []byte("v2")); err != nil {
		t.Fatalf("SetValue overwrite failed: %v", err)
	}

	got, _ = s.GetValue(ctx, "alarms")
	if string(got) != "v2" {
		t.Errorf("Expected v2, got %q", got)
	}

	if err := s.DeleteValue(ctx, "alarms"); err != nil {
		t.Fatalf("DeleteValue failed: %v", err)
	}
	if err := s.DeleteValue(ctx, "alarms"); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
	got, _ = s.GetValue(ctx, "alarms")
	if got != nil {
		t.Errorf("Expected nil after delete, got %q", got)
	}
}

func TestLockAcquireRelease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	lock, err := s.AcquireLock("instance", "daemon@a", "instance", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	_, err = s.AcquireLock("instance", "daemon@b", "instance", time.Minute)
	if !errors.Is(err, ErrResourceLocked) {
		t.Errorf("Expected ErrResourceLocked, got %v", err)
	}

	held, err := s.GetLock("instance")
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if held == nil || held.HolderID != "daemon@a" {
		t.Errorf("Expected lock held by daemon@a, got %+v", held)
	}

	if err := s.RenewLock(lock.ID, 2*time.Minute); err != nil {
		t.Errorf("RenewLock failed: %v", err)
	}

	if err := s.ReleaseLock(lock.ID); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if err := s.RenewLock(lock.ID, time.Minute); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Expected ErrLockNotHeld after release, got %v", err)
	}

	if _, err := s.AcquireLock("instance", "daemon@b", "instance", time.Minute); err != nil {
		t.Errorf("AcquireLock after release failed: %v", err)
	}
}

func TestLockExpiry(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.AcquireLock("instance", "crashed", "instance", 50*time.Millisecond); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	held, err := s.GetLock("instance")
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if held != nil {
		t.Errorf("Expected expired lock to be invisible, got %+v", held)
	}

	if _, err := s.AcquireLock("instance", "fresh", "instance", time.Minute); err != nil {
		t.Errorf("Expected expired lock to be replaced, got %v", err)
	}
}

func TestLockConcurrentAcquire(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AcquireLock("instance", "holder", "instance", time.Minute); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestPDR(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.WritePDR("alarm.add", "hash1", "success", "a1", ""); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}
	if _, err := s.WritePDR("alarm.dispatch", "hash2", "success", "a1", "trigger=poller"); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}

	entries, err := s.ListPDR(10)
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "alarm.dispatch" {
		t.Errorf("Expected newest first, got %s", entries[0].Action)
	}
	if entries[0].Details != "trigger=poller" || entries[0].AlarmID != "a1" {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}

	entries, _ = s.ListPDR(1)
	if len(entries) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(entries))
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
