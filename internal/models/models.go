// Package models defines the core domain types for timereports.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation errors returned when user input cannot become an alarm.
var (
	ErrInvalidTime = errors.New("invalid alarm time, expected HH:MM")
	ErrInvalidKind = errors.New("invalid alarm type, expected sound or notification")
)

// Kind selects how a fired alarm is delivered.
type Kind int

const (
	KindSound Kind = iota + 1
	KindNotification
)

// Kinds lists every delivery kind in display order.
var Kinds = []Kind{KindSound, KindNotification}

// ParseKind maps the persisted type string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sound":
		return KindSound, nil
	case "notification":
		return KindNotification, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindSound:
		return "sound"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the closed set of kinds.
func (k Kind) Valid() bool {
	return k == KindSound || k == KindNotification
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKind, string(data))
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ClockTime is a wall-clock time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (a single-digit hour is accepted).
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := parseDigits(hh)
	if err != nil || h > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := parseDigits(mm)
	if err != nil || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// parseDigits rejects signs and spaces that strconv.Atoi would accept.
func parseDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", r)
		}
	}
	return strconv.Atoi(s)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before orders clock times within a day.
func (c ClockTime) Before(o ClockTime) bool {
	if c.Hour != o.Hour {
		return c.Hour < o.Hour
	}
	return c.Minute < o.Minute
}

// Matches reports whether t falls inside this minute of the day.
func (c ClockTime) Matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

// Next returns the next absolute occurrence relative to now, in now's
// location: today if HH:MM:00 has not passed yet, otherwise tomorrow.
func (c ClockTime) Next(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if at.Before(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, c.Hour, c.Minute, 0, 0, now.Location())
	}
	return at
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTime, string(data))
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Alarm is a persisted request to be alerted at a time of day.
type Alarm struct {
	ID     string    `json:"id"`
	Time   ClockTime `json:"time"`
	Kind   Kind      `json:"type"`
	Active bool      `json:"active"`
}

// Key identifies the (time, kind) pair that must be unique in a store.
func (a Alarm) Key() string {
	return a.Time.String() + "/" + a.Kind.String()
}

// UnmarshalJSON reads current and legacy records. Records written before
// the active flag existed are active; records without a type were
// notifications; numeric ids are kept as their decimal text.
func (a *Alarm) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     json.RawMessage `json:"id"`
		Time   *ClockTime      `json:"time"`
		Kind   *Kind           `json:"type"`
		Active *bool           `json:"active"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}

	if raw.Time == nil {
		return fmt.Errorf("alarm %s: %w", id, ErrInvalidTime)
	}

	a.ID = id
	a.Time = *raw.Time
	a.Kind = KindNotification
	if raw.Kind != nil {
		a.Kind = *raw.Kind
	}
	a.Active = true
	if raw.Active != nil {
		a.Active = *raw.Active
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("alarm record without id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", errors.New("alarm record without id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("alarm id: %w", err)
	}
	return n.String(), nil
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	AlarmID    string    `json:"alarm_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Lock represents a named lease held by one process.
type Lock struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	HolderID   string    `json:"holder_id"`
	LockType   string    `json:"lock_type"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
