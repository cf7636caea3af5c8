package submissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var cols = []string{"id", "user_id", "form_id", "idempotency_key", "controls", "parent_object_id", "status", "object_id", "created_at"}

func sub() *models.Submission {
	return &models.Submission{
		UserID:         "u1",
		FormID:         49,
		IdempotencyKey: "ref-1",
		Controls:       json.RawMessage(`{"Control1381":"AK"}`),
	}
}

func TestCreate_New(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)INSERT INTO submissions .* ON CONFLICT \(user_id, idempotency_key\) DO NOTHING\s+RETURNING id,`).
		WithArgs("u1", int64(49), "ref-1", []byte(`{"Control1381":"AK"}`), nil).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t-1", "u1", int64(49), "ref-1", []byte(`{"Control1381":"AK"}`), nil, "pending", nil, now))

	got, created, err := repo.Create(context.Background(), sub())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "t-1", got.ID)
	assert.Equal(t, models.SubmissionPending, got.Status)
	assert.Nil(t, got.ObjectID)
	assert.JSONEq(t, `{"Control1381":"AK"}`, string(got.Controls))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO submissions`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM submissions WHERE user_id = \$1 AND idempotency_key = \$2`).
		WithArgs("u1", "ref-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t-1", "u1", int64(49), "ref-1", []byte(`{}`), nil, "assigned", int64(1001), time.Now()))

	got, created, err := repo.Create(context.Background(), sub())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.SubmissionAssigned, got.Status)
	require.NotNil(t, got.ObjectID)
	assert.EqualValues(t, 1001, *got.ObjectID)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO submissions`).WillReturnError(errors.New("db down"))

	_, _, err := repo.Create(context.Background(), sub())
	require.ErrorContains(t, err, "db error: db down")
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `SELECT .* FROM submissions WHERE id = \$1`
	parent := int64(5)

	mock.ExpectQuery(q).WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t-1", "u1", int64(50), "ref-2", []byte(`{}`), parent, "pending", nil, time.Now()))
	got, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	require.NotNil(t, got.ParentObjectID)
	assert.Equal(t, parent, *got.ParentObjectID)

	mock.ExpectQuery(q).WithArgs("t-2").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "t-2")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListPending(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)WHERE status = 'pending'.*LIMIT \$1\s+FOR UPDATE SKIP LOCKED`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t-1", "u1", int64(49), "a", []byte(`{}`), nil, "pending", nil, time.Now()).
			AddRow("t-2", "u1", int64(51), "b", []byte(`{}`), nil, "pending", nil, time.Now()))

	got, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-2", got[1].ID)
}

func TestListPending_QueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM submissions`).WillReturnError(errors.New("boom"))

	_, err := repo.ListPending(context.Background(), 10)
	require.ErrorContains(t, err, "failed to select submissions")
}

func TestMarkAssigned(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `UPDATE submissions SET status = 'assigned', object_id = \$2 WHERE id = \$1 AND status = 'pending'`

	mock.ExpectExec(q).WithArgs("t-1", int64(1001)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkAssigned(context.Background(), "t-1", 1001))

	mock.ExpectExec(q).WithArgs("t-1", int64(1002)).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorContains(t, repo.MarkAssigned(context.Background(), "t-1", 1002), "wrong rows affected count: 0")
}
