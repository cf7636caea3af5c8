// Package services contains the application services of the sync client.
// This file defines the authentication service: online and offline login,
// the liveness check and the local key material used to seal records.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/repositories/metadata"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/google/uuid"
)

var (
	// ErrOtherUser means the local database was set up by a different user.
	ErrOtherUser = errors.New("local data belongs to another user")
	// ErrKeyMismatch means the password no longer opens the local data,
	// typically because it was changed on the server.
	ErrKeyMismatch = errors.New("password does not match local data")
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server, set up or check the local
//     key material, and return the master key.
//   - OfflineLogin: verify the password against locally cached data only.
//   - Ping: check server liveness.
//   - Close: drop the server session.
type AuthService interface {
	OfflineLogin(ctx context.Context, username string, password []byte) ([]byte, error)
	OnlineLogin(ctx context.Context, username string, password []byte) ([]byte, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client client.Client
	db     *sql.DB
}

func NewAuthService(client client.Client, db *sql.DB) AuthService {
	return &authService{client: client, db: db}
}

func (a *authService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

type offlineData struct {
	username string
	salt     []byte
	verifier []byte
}

func (a *authService) loadOfflineData(ctx context.Context) (*offlineData, error) {
	values, err := a.getMetadataRepo().GetMany(ctx, metadata.KeyUsername, metadata.KeySalt, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}

	username, salt, verifier := values[metadata.KeyUsername], values[metadata.KeySalt], values[metadata.KeyVerifier]
	if username == nil || salt == nil || verifier == nil {
		return nil, nil
	}
	return &offlineData{username: string(username), salt: salt, verifier: verifier}, nil
}

// OfflineLogin derives the master key from the password and the locally
// stored salt and checks it against the stored verifier.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) ([]byte, error) {
	od, err := a.loadOfflineData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read offline data: %w", err)
	}
	if od == nil {
		return nil, client.ErrLocalDataNotAvailable
	}
	if od.username != username {
		return nil, client.ErrUnauthorized
	}

	key := cryptox.DeriveMasterKey(password, od.salt)
	if subtle.ConstantTimeCompare(od.verifier, cryptox.MakeVerifier(key)) == 0 {
		common.WipeByteArray(key)
		return nil, client.ErrUnauthorized
	}
	return key, nil
}

// OnlineLogin authenticates against the server. On first login it creates
// the salt, verifier and device ID; afterwards it checks that the password
// still opens the local data.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) ([]byte, error) {
	if err := a.client.Login(ctx, username, string(password)); err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	od, err := a.loadOfflineData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read offline data: %w", err)
	}

	if od != nil {
		if od.username != username {
			return nil, ErrOtherUser
		}
		key := cryptox.DeriveMasterKey(password, od.salt)
		if subtle.ConstantTimeCompare(od.verifier, cryptox.MakeVerifier(key)) == 0 {
			common.WipeByteArray(key)
			return nil, ErrKeyMismatch
		}
		return key, nil
	}

	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	if err := a.saveOfflineData(ctx, username, salt, cryptox.MakeVerifier(key)); err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}
	return key, nil
}

// saveOfflineData persists what offline login needs in a single transaction.
func (a *authService) saveOfflineData(ctx context.Context, username string, salt []byte, verifier []byte) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		err := repo.SetMany(ctx, map[string][]byte{
			metadata.KeyUsername: []byte(username),
			metadata.KeySalt:     salt,
			metadata.KeyVerifier: verifier,
		})
		if err != nil {
			return err
		}

		deviceID, err := repo.Get(ctx, metadata.KeyDeviceID)
		if err != nil {
			return err
		}
		if deviceID == nil {
			return repo.Set(ctx, metadata.KeyDeviceID, []byte(uuid.NewString()))
		}
		return nil
	})
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
