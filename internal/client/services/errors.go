package services

import (
	"context"
	"errors"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/forms"
)

// UserMessage turns an error from this package or the API client into a
// sentence for the CLI.
func UserMessage(err error) string {
	var ve *client.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		if len(ve.Fields) == 0 {
			return msgRejected
		}
		return "Please correct: " + forms.Describe(ve.Fields)
	case errors.Is(err, client.ErrUnavailable):
		return "The server cannot be reached. Your data is saved on this device and will be sent later."
	case errors.Is(err, client.ErrUnauthorized):
		return "Your session is not valid. Please log in again."
	case errors.Is(err, client.ErrLocalDataNotAvailable):
		return "No offline login is set up on this device. Log in once while online."
	case errors.Is(err, ErrOtherUser):
		return "This device is registered to another user."
	case errors.Is(err, ErrKeyMismatch):
		return "Your password no longer matches the data on this device. Log in with the previous password."
	case errors.Is(err, common.ErrNotFound):
		return "Record not found."
	case errors.Is(err, common.ErrAlreadyUploaded):
		return "This record has already been sent to the server and cannot be changed here."
	case errors.Is(err, models.ErrIncompleteForm):
		return err.Error()
	case errors.Is(err, ErrParentRequired), errors.Is(err, ErrHasDependents), errors.Is(err, ErrKindMismatch):
		return err.Error()
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	default:
		return "Unexpected error: " + err.Error()
	}
}
