package client

import (
	"errors"

	"github.com/cradle5/cradlesync/internal/forms"
)

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
	// ErrPending means an accepted submission has no object ID yet.
	ErrPending = errors.New("submission still being processed")
)

type FieldError = forms.FieldError

// ValidationError is returned when the server rejects form data.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + forms.Describe(e.Fields)
}
