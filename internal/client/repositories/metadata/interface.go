// Package metadata stores small key/value facts about the local installation:
// the offline-login verifier and salt, the device ID, and sync timestamps.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyUsername     = "username"
	KeySalt         = "salt"
	KeyVerifier     = "verifier"
	KeyDeviceID     = "device_id"
	KeyLastSyncAt   = "last_sync_at"
	KeyLastBackupAt = "last_backup_at"
)

type Repository interface {
	// Get returns nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// GetMany returns the values of the keys that exist.
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	// SetMany upserts every pair. Run it in a transaction to make it atomic.
	SetMany(ctx context.Context, values map[string][]byte) error
}
