package users

import (
	"context"

	"github.com/cradle5/cradlesync/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in its ID. A taken user name yields
	// common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	// SetPassword replaces the password hash of an existing user.
	SetPassword(ctx context.Context, userName string, hash []byte) error
}
