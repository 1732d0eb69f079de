// Package audit provides PDR (Process Decision Record) writing for timereports.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/store"
)

// Actions recorded by the alarm pipeline.
const (
	ActionAdd      = "alarm.add"
	ActionRemove   = "alarm.remove"
	ActionRearm    = "alarm.rearm"
	ActionDispatch = "alarm.dispatch"
	ActionRecover  = "boot.recover"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store  *store.Store
	logger *slog.Logger
}

// NewPDRWriter creates a new PDR writer. A nil writer is valid and records nothing.
func NewPDRWriter(s *store.Store, logger *slog.Logger) *PDRWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDRWriter{store: s, logger: logger.With("component", "audit")}
}

// Record writes a PDR entry for a state-mutating action. Audit failures are
// logged and never fail the action itself.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, alarmID, details string) *models.PDREntry {
	if w == nil || w.store == nil {
		return nil
	}
	entry, err := w.store.WritePDR(action, hashInputs(inputs), outcome, alarmID, details)
	if err != nil {
		w.logger.Warn("write audit record", "action", action, "alarm_id", alarmID, "error", err)
		return nil
	}
	return entry
}

// Recent returns the newest records first.
func (w *PDRWriter) Recent(limit int) ([]models.PDREntry, error) {
	if w == nil || w.store == nil {
		return nil, nil
	}
	return w.store.ListPDR(limit)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
