package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/forms"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `local_id, kind, client_ref, parent_local_id, payload, nonce, is_draft,
	has_server_info, node_id, object_id, created_time, update_time, location,
	server_error_message, error_kind, created_at, updated_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec                      models.Record
		kind                     string
		parent, nodeID, objectID sql.NullInt64
		createdTime, updateTime  sql.NullString
		location                 string
		msg                      sql.NullString
		errKind                  string
		createdAt, updatedAt     string
		hasServerInfo            bool
	)
	err := s.Scan(&rec.LocalID, &kind, &rec.ClientRef, &parent, &rec.Payload, &rec.Nonce, &rec.IsDraft,
		&hasServerInfo, &nodeID, &objectID, &createdTime, &updateTime, &location,
		&msg, &errKind, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Kind = forms.Kind(kind)
	rec.ErrorKind = models.ErrorKind(errKind)
	if parent.Valid {
		rec.ParentLocalID = &parent.Int64
	}
	if msg.Valid {
		rec.ServerErrorMessage = &msg.String
	}

	if hasServerInfo {
		info := &models.ServerInfo{Location: location}
		if nodeID.Valid {
			info.NodeID = &nodeID.Int64
		}
		if objectID.Valid {
			info.ObjectID = &objectID.Int64
		}
		if info.CreatedTime, err = parseNullTime(createdTime); err != nil {
			return nil, fmt.Errorf("bad created_time: %w", err)
		}
		if info.UpdateTime, err = parseNullTime(updateTime); err != nil {
			return nil, fmt.Errorf("bad update_time: %w", err)
		}
		rec.ServerInfo = info
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.Record) (int64, error) {
	query := `INSERT INTO records (kind, client_ref, parent_local_id, payload, nonce, is_draft, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, string(rec.Kind), rec.ClientRef, nullInt(rec.ParentLocalID),
		rec.Payload, rec.Nonce, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get record id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdatePayload(ctx context.Context, localID int64, payload, nonce []byte, at time.Time) error {
	query := `UPDATE records SET payload = ?, nonce = ?, updated_at = ?,
		server_error_message = CASE WHEN error_kind IN ('validation', 'blocked', 'transport') THEN NULL ELSE server_error_message END,
		error_kind = CASE WHEN error_kind IN ('validation', 'blocked', 'transport') THEN '' ELSE error_kind END
		WHERE local_id = ?`

	res, err := r.db.ExecContext(ctx, query, payload, nonce, formatTime(at), localID)
	if err != nil {
		return fmt.Errorf("failed to update record %d: %w", localID, err)
	}
	if err := dbx.RowsAffectedOne(res); err != nil {
		return fmt.Errorf("update record %d: %w", localID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, localID int64) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM records WHERE local_id = ?`, localID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", localID, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) List(ctx context.Context, kind forms.Kind) ([]*models.Record, error) {
	if kind == "" {
		return r.query(ctx, "list records", `SELECT `+selectColumns+` FROM records ORDER BY local_id`)
	}
	return r.query(ctx, "list records", `SELECT `+selectColumns+` FROM records WHERE kind = ? ORDER BY local_id`, string(kind))
}

var attentionKinds = []models.ErrorKind{models.ErrorValidation, models.ErrorUnresolved}

func attentionPlaceholders() (string, []any) {
	args := make([]any, len(attentionKinds))
	for i, k := range attentionKinds {
		args[i] = string(k)
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "), args
}

func (r *SQLiteRepository) ListPendingUpload(ctx context.Context, kind forms.Kind) ([]*models.Record, error) {
	ph, args := attentionPlaceholders()
	query := `SELECT ` + selectColumns + ` FROM records
		WHERE kind = ? AND is_draft = 1 AND error_kind NOT IN (` + ph + `)
		ORDER BY local_id`
	return r.query(ctx, "list pending records", query, append([]any{string(kind)}, args...)...)
}

func (r *SQLiteRepository) CountNeedingAttention(ctx context.Context, kind forms.Kind) (int, error) {
	ph, args := attentionPlaceholders()
	query := `SELECT COUNT(*) FROM records WHERE kind = ? AND is_draft = 1 AND error_kind IN (` + ph + `)`

	var n int
	if err := r.db.QueryRowContext(ctx, query, append([]any{string(kind)}, args...)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SaveUploadState(ctx context.Context, localID int64, st models.UploadState, at time.Time) error {
	var (
		hasInfo                 bool
		nodeID, objectID        sql.NullInt64
		createdTime, updateTime sql.NullString
		location                string
		msg                     sql.NullString
	)
	if info := st.ServerInfo; info != nil {
		hasInfo = true
		nodeID = nullInt(info.NodeID)
		objectID = nullInt(info.ObjectID)
		createdTime = nullTime(info.CreatedTime)
		updateTime = nullTime(info.UpdateTime)
		location = info.Location
	}
	if st.ServerErrorMessage != nil {
		msg = sql.NullString{String: *st.ServerErrorMessage, Valid: true}
	}

	query := `UPDATE records SET is_draft = ?, has_server_info = ?, node_id = ?, object_id = ?,
		created_time = ?, update_time = ?, location = ?, server_error_message = ?, error_kind = ?, updated_at = ?
		WHERE local_id = ?`

	res, err := r.db.ExecContext(ctx, query, st.IsDraft, hasInfo, nodeID, objectID,
		createdTime, updateTime, location, msg, string(st.ErrorKind), formatTime(at), localID)
	if err != nil {
		return fmt.Errorf("failed to save upload state of record %d: %w", localID, err)
	}
	if err := dbx.RowsAffectedOne(res); err != nil {
		return fmt.Errorf("save upload state of record %d: %w", localID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) InsertAttempt(ctx context.Context, localID int64, at time.Time, outcome models.UploadOutcome, message *string) error {
	var msg sql.NullString
	if message != nil {
		msg = sql.NullString{String: *message, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_attempts (local_id, attempted_at, outcome, message) VALUES (?, ?, ?, ?)`,
		localID, formatTime(at), outcome.String(), msg)
	if err != nil {
		return fmt.Errorf("failed to insert upload attempt: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAttempts(ctx context.Context, localID int64) ([]models.UploadAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT attempted_at, outcome, message FROM upload_attempts WHERE local_id = ? ORDER BY id`, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload attempts: %w", err)
	}
	defer rows.Close()

	var result []models.UploadAttempt
	for rows.Next() {
		var (
			a   models.UploadAttempt
			at  string
			msg sql.NullString
		)
		if err := rows.Scan(&at, &a.Outcome, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan upload attempt: %w", err)
		}
		if a.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("bad attempted_at: %w", err)
		}
		if msg.Valid {
			a.Message = &msg.String
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload attempts: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, localID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_attempts WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete upload attempts: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete record %d: %w", localID, err)
	}
	if err := dbx.RowsAffectedOne(res); err != nil {
		return fmt.Errorf("delete record %d: %w", localID, common.ErrNotFound)
	}
	return nil
}
