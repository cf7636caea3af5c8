// Package lookups serves enumerations and lookup lists to clients.
package lookups

import (
	"context"

	"github.com/cradle5/cradlesync/internal/server/models"
)

type Repository interface {
	Enums(ctx context.Context) (map[string][]models.EnumValue, error)
	// Items returns the entries of a lookup list, or common.ErrNotFound if
	// the list has none.
	Items(ctx context.Context, list string) ([]models.LookupItem, error)
}
