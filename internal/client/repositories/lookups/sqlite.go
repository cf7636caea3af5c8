// Package lookups caches server enumerations and dynamic lookup lists so the
// CLI can offer choices while offline.
package lookups

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
)

type Repository interface {
	// Put replaces a cached list.
	Put(ctx context.Context, l models.CachedLookup) error
	// Get returns a cached list or common.ErrNotFound.
	Get(ctx context.Context, name string) (*models.CachedLookup, error)
	// Names lists cached list names.
	Names(ctx context.Context) ([]string, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, l models.CachedLookup) error {
	items, err := json.Marshal(l.Items)
	if err != nil {
		return fmt.Errorf("failed to encode lookup %s: %w", l.Name, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lookups (name, items, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET items = excluded.items, fetched_at = excluded.fetched_at
	`, l.Name, items, l.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to put lookup %s: %w", l.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, name string) (*models.CachedLookup, error) {
	var (
		items     []byte
		fetchedAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT items, fetched_at FROM lookups WHERE name = ?`, name).Scan(&items, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup %s: %w", name, err)
	}

	l := &models.CachedLookup{Name: name}
	if err := json.Unmarshal(items, &l.Items); err != nil {
		return nil, fmt.Errorf("failed to decode lookup %s: %w", name, err)
	}
	if l.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return nil, fmt.Errorf("bad fetched_at for lookup %s: %w", name, err)
	}
	return l, nil
}

func (r *SQLiteRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM lookups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lookups: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan lookup name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lookups: %w", err)
	}
	return names, nil
}
