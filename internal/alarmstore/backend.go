package alarmstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend is the durable location of the serialized alarm list.
// Read returns nil data and no error when nothing has been stored yet.
type Backend interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// FileBackend stores alarms in a JSON file, replacing it atomically.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend for the file at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Name returns the backend identifier.
func (b *FileBackend) Name() string { return "file:" + b.path }

// Read returns the file contents, or nil if the file does not exist.
func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

// Write replaces the file via a temp file in the same directory and a
// rename, so a crash leaves either the old or the new contents.
func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create alarms dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace %s: %w", b.path, err)
	}
	committed = true
	return nil
}

// KV is the client-side key/value surface used when alarms live in the database.
type KV interface {
	GetValue(ctx context.Context, key string) ([]byte, error)
	SetValue(ctx context.Context, key string, value []byte) error
	DeleteValue(ctx context.Context, key string) error
}

// DefaultKey is the key the alarm list is stored under.
const DefaultKey = "alarms"

// KVBackend stores the alarm list as one value in a key/value store.
type KVBackend struct {
	kv  KV
	key string
}

// NewKVBackend creates a backend writing to key in kv. An empty key uses DefaultKey.
func NewKVBackend(kv KV, key string) *KVBackend {
	if key == "" {
		key = DefaultKey
	}
	return &KVBackend{kv: kv, key: key}
}

// Name returns the backend identifier.
func (b *KVBackend) Name() string { return "kv:" + b.key }

func (b *KVBackend) Read(ctx context.Context) ([]byte, error) {
	return b.kv.GetValue(ctx, b.key)
}

// Write stores data under the key. An empty list deletes the key instead,
// so removing the last alarm leaves no row behind.
func (b *KVBackend) Write(ctx context.Context, data []byte) error {
	if isEmptyList(data) {
		return b.kv.DeleteValue(ctx, b.key)
	}
	return b.kv.SetValue(ctx, b.key, data)
}

func isEmptyList(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "[]"
}
