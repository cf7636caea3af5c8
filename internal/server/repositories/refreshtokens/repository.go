// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/cradle5/cradlesync/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token models.RefreshToken) error

	// Find looks up a refresh token by its opaque token string. Absent
	// tokens yield common.ErrNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token. It reports common.ErrNotFound when
	// nothing was deleted, so concurrent refreshes cannot both succeed.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes tokens that expired before now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
