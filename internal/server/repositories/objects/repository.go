// Package objects stores form instances that have a server identity.
package objects

import (
	"context"

	"github.com/cradle5/cradlesync/internal/server/models"
)

type Repository interface {
	// Create inserts o and fills in ID, NodeID and the timestamps.
	Create(ctx context.Context, o *models.Object) error
	Get(ctx context.Context, id int64) (*models.Object, error)
}
