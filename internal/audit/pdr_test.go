package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/timereports/internal/store"
)

func TestRecord(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	w := NewPDRWriter(st, nil)
	entry := w.Record(ActionAdd, map[string]string{"time": "09:00"}, "success", "a1", "")
	if entry == nil {
		t.Fatal("Expected an entry")
	}
	if entry.InputsHash != hashInputs(map[string]string{"time": "09:00"}) {
		t.Errorf("Unexpected inputs hash %s", entry.InputsHash)
	}

	recent, err := w.Recent(5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Action != ActionAdd {
		t.Errorf("Unexpected records: %+v", recent)
	}
}

func TestRecord_ClosedStoreDoesNotPanic(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	st.Close()

	w := NewPDRWriter(st, nil)
	if entry := w.Record(ActionRemove, nil, "success", "a1", ""); entry != nil {
		t.Error("Expected nil entry when the store is closed")
	}
}

func TestNilWriter(t *testing.T) {
	var w *PDRWriter
	if w.Record(ActionAdd, nil, "success", "", "") != nil {
		t.Error("nil writer should record nothing")
	}
	if recs, err := w.Recent(1); err != nil || recs != nil {
		t.Errorf("nil writer Recent = %v, %v", recs, err)
	}
}

func TestHashInputs_Stable(t *testing.T) {
	a := hashInputs(map[string]string{"id": "x", "time": "09:00"})
	b := hashInputs(map[string]string{"time": "09:00", "id": "x"})
	if a != b {
		t.Error("map key order should not change the hash")
	}
	if hashInputs(func() {}) != "hash_error" {
		t.Error("unmarshalable inputs should hash to hash_error")
	}
}
