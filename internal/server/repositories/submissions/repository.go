// Package submissions stores accepted form POSTs waiting for, or holding,
// a server-assigned object.
package submissions

import (
	"context"

	"github.com/cradle5/cradlesync/internal/server/models"
)

type Repository interface {
	// Create stores s as pending unless the same user already submitted the
	// same idempotency key. In that case the earlier submission is returned
	// and created is false.
	Create(ctx context.Context, s *models.Submission) (stored *models.Submission, created bool, err error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	// ListPending returns the oldest pending submissions and locks them
	// for the current transaction.
	ListPending(ctx context.Context, limit int) ([]*models.Submission, error)
	MarkAssigned(ctx context.Context, id string, objectID int64) error
}
