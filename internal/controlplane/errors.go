package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/timereports/internal/alarmstore"
	"github.com/fentz26/timereports/internal/models"
)

// Sentinel errors for lifecycle operations. They are the same values the
// store and model layers return, so errors.Is works across the API.
var (
	ErrInvalidTime    = models.ErrInvalidTime
	ErrInvalidKind    = models.ErrInvalidKind
	ErrDuplicateAlarm = alarmstore.ErrDuplicate
	ErrNotFound       = alarmstore.ErrNotFound
	ErrBadTrigger     = errors.New("invalid trigger, expected manual or platform")
)

// Error codes carried in API error bodies.
const (
	CodeInvalidTime = "invalid_time"
	CodeInvalidKind = "invalid_kind"
	CodeDuplicate   = "duplicate"
	CodeNotFound    = "not_found"
	CodeBadRequest  = "bad_request"
	CodeInternal    = "internal"
)

// errorStatus maps an error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidTime):
		return http.StatusBadRequest, CodeInvalidTime
	case errors.Is(err, ErrInvalidKind):
		return http.StatusBadRequest, CodeInvalidKind
	case errors.Is(err, ErrBadTrigger):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, ErrDuplicateAlarm):
		return http.StatusConflict, CodeDuplicate
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// codeError turns an API error code back into the matching sentinel.
func codeError(code string) error {
	switch code {
	case CodeInvalidTime:
		return ErrInvalidTime
	case CodeInvalidKind:
		return ErrInvalidKind
	case CodeDuplicate:
		return ErrDuplicateAlarm
	case CodeNotFound:
		return ErrNotFound
	case CodeBadRequest:
		return ErrBadTrigger
	}
	return nil
}
