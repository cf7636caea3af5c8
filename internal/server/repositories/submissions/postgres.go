package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/server/models"
)

// PostgresRepository implements submission storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const columns = `id, user_id, form_id, idempotency_key, controls, parent_object_id, status, object_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Submission, error) {
	var (
		s        models.Submission
		controls []byte
		status   string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.FormID, &s.IdempotencyKey, &controls,
		&s.ParentObjectID, &status, &s.ObjectID, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Controls = controls
	s.Status = models.SubmissionStatus(status)
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Submission) (*models.Submission, bool, error) {
	query := `
		INSERT INTO submissions (user_id, form_id, idempotency_key, controls, parent_object_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
		RETURNING ` + columns

	stored, err := scan(r.db.QueryRowContext(ctx, query,
		s.UserID, s.FormID, s.IdempotencyKey, []byte(s.Controls), s.ParentObjectID))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.findByKey(ctx, s.UserID, s.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) findByKey(ctx context.Context, userID, key string) (*models.Submission, error) {
	query := `SELECT ` + columns + ` FROM submissions WHERE user_id = $1 AND idempotency_key = $2`

	s, err := scan(r.db.QueryRowContext(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + columns + ` FROM submissions WHERE id = $1`

	s, err := scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*models.Submission, error) {
	query := `SELECT ` + columns + ` FROM submissions
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select submissions: %w", err)
	}
	defer rows.Close()

	var result []*models.Submission
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkAssigned(ctx context.Context, id string, objectID int64) error {
	query := `UPDATE submissions SET status = 'assigned', object_id = $2 WHERE id = $1 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, objectID)
	if err != nil {
		return fmt.Errorf("failed to mark assigned: %w", err)
	}
	return dbx.RowsAffectedOne(res)
}
