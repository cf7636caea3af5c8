package refreshtokens

import (
	"context"
	"database/sql"
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

const findQ = `(?s)^\s*SELECT\s+token,\s*user_id,\s*expires_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3\)`).
		WithArgs("tok123", "u1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), models.RefreshToken{Token: "tok123", UserID: "u1", Expires: exp}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), models.RefreshToken{Token: "t", UserID: "u"})
	require.ErrorContains(t, err, "error performing sql request: db down")
}

func TestFind(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		exp := time.Now().Add(10 * time.Minute)
		mock.ExpectQuery(findQ).WithArgs("tok123").
			WillReturnRows(sqlmock.NewRows([]string{"token", "user_id", "expires_at"}).AddRow("tok123", "u1", exp))

		got, err := repo.Find(context.Background(), "tok123")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.True(t, got.Expires.Equal(exp))
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(findQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.Find(context.Background(), "missing")
		require.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(findQ).WithArgs("tok").WillReturnError(errors.New("db err"))

		_, err := repo.Find(context.Background(), "tok")
		require.ErrorContains(t, err, "db error: db err")
	})
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1`

	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "tok"))

	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "tok"), common.ErrNotFound)

	mock.ExpectExec(q).WithArgs("tok").WillReturnError(errors.New("boom"))
	require.ErrorContains(t, repo.Delete(context.Background(), "tok"), "db error: boom")
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
