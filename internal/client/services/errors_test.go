package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &client.ValidationError{Fields: []client.FieldError{{ControlID: forms.ControlID(1381), Message: "is required"}}}, "Please correct: Initials: is required"},
		{"validation without fields", &client.ValidationError{}, msgRejected},
		{"unavailable wrapped", fmt.Errorf("ping: %w", client.ErrUnavailable), "The server cannot be reached. Your data is saved on this device and will be sent later."},
		{"unauthorized", client.ErrUnauthorized, "Your session is not valid. Please log in again."},
		{"not found", common.ErrNotFound, "Record not found."},
		{"parent", ErrParentRequired, ErrParentRequired.Error()},
		{"canceled", context.Canceled, "Cancelled."},
		{"other", errors.New("boom"), "Unexpected error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
