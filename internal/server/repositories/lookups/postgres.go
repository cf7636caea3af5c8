package lookups

import (
	"context"
	"fmt"

	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enums(ctx context.Context) (map[string][]models.EnumValue, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT enum_name, id, name FROM enum_values ORDER BY enum_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select enums: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.EnumValue)
	for rows.Next() {
		var (
			enum string
			v    models.EnumValue
		)
		if err := rows.Scan(&enum, &v.ID, &v.Name); err != nil {
			return nil, err
		}
		result[enum] = append(result[enum], v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Items(ctx context.Context, list string) ([]models.LookupItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, parent_id FROM lookup_items WHERE list_name = $1 ORDER BY name`, list)
	if err != nil {
		return nil, fmt.Errorf("failed to select lookup items: %w", err)
	}
	defer rows.Close()

	var result []models.LookupItem
	for rows.Next() {
		var it models.LookupItem
		if err := rows.Scan(&it.ID, &it.Name, &it.ParentID); err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, common.ErrNotFound
	}
	return result, nil
}
