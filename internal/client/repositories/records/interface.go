package records

import (
	"context"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/forms"
)

type Repository interface {
	// Insert stores a new draft and returns its local ID.
	Insert(ctx context.Context, rec *models.Record) (int64, error)

	// UpdatePayload replaces the sealed payload of a record and clears an
	// error state that only a user edit can fix.
	UpdatePayload(ctx context.Context, localID int64, payload, nonce []byte, at time.Time) error

	// Get returns a record or common.ErrNotFound.
	Get(ctx context.Context, localID int64) (*models.Record, error)

	// List returns all records of a kind ordered by local ID. An empty kind
	// lists every record.
	List(ctx context.Context, kind forms.Kind) ([]*models.Record, error)

	// ListPendingUpload returns drafts of a kind that a sync should attempt:
	// everything except records waiting for a user edit or marked unresolved.
	ListPendingUpload(ctx context.Context, kind forms.Kind) ([]*models.Record, error)

	// CountNeedingAttention counts drafts of a kind that a sync skips.
	CountNeedingAttention(ctx context.Context, kind forms.Kind) (int, error)

	// SaveUploadState writes the result of an upload attempt.
	SaveUploadState(ctx context.Context, localID int64, st models.UploadState, at time.Time) error

	// InsertAttempt appends to the upload history of a record.
	InsertAttempt(ctx context.Context, localID int64, at time.Time, outcome models.UploadOutcome, message *string) error

	// ListAttempts returns the upload history of a record, oldest first.
	ListAttempts(ctx context.Context, localID int64) ([]models.UploadAttempt, error)

	// Delete removes a record and its history.
	Delete(ctx context.Context, localID int64) error
}
