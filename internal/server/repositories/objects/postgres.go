package objects

import (
	"context"
	"database/sql"
	"errors"
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

func (r *PostgresRepository) Create(ctx context.Context, o *models.Object) error {
	query := `
		INSERT INTO objects (form_id, user_id, parent_object_id, controls)
		VALUES ($1, $2, $3, $4)
		RETURNING id, node_id, created_time, update_time
	`
	err := r.db.QueryRowContext(ctx, query, o.FormID, o.UserID, o.ParentObjectID, []byte(o.Controls)).
		Scan(&o.ID, &o.NodeID, &o.CreatedTime, &o.UpdateTime)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Object, error) {
	query := `
		SELECT id, node_id, form_id, user_id, parent_object_id, controls, created_time, update_time
		FROM objects
		WHERE id = $1
	`
	var (
		o        models.Object
		controls []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.NodeID, &o.FormID, &o.UserID,
		&o.ParentObjectID, &controls, &o.CreatedTime, &o.UpdateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	o.Controls = controls
	return &o, nil
}
