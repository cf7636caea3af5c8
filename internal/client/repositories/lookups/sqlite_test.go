package lookups

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE lookups (
  name       TEXT PRIMARY KEY,
  items      BLOB NOT NULL,
  fetched_at TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestPutGet_Upsert(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, r.Put(ctx, models.CachedLookup{Name: "districts", Items: []models.LookupItem{{ID: "1", Name: "Kambia"}}, FetchedAt: at}))
	require.NoError(t, r.Put(ctx, models.CachedLookup{Name: "districts", Items: []models.LookupItem{{ID: "2", Name: "Bo"}}, FetchedAt: at.Add(time.Hour)}))

	got, err := r.Get(ctx, "districts")
	require.NoError(t, err)
	assert.Equal(t, []models.LookupItem{{ID: "2", Name: "Bo"}}, got.Items)
	assert.Equal(t, at.Add(time.Hour), got.FetchedAt)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), "facilities")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestNames(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, n := range []string{"facilities", "enum:BirthOutcome", "districts"} {
		require.NoError(t, r.Put(ctx, models.CachedLookup{Name: n, FetchedAt: time.Now()}))
	}

	names, err := r.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"districts", "enum:BirthOutcome", "facilities"}, names)
}

func TestPut_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO lookups").WillReturnError(sql.ErrConnDone)

	r := NewSQLiteRepository(db)
	err = r.Put(context.Background(), models.CachedLookup{Name: "districts", FetchedAt: time.Now()})
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.ErrorContains(t, err, "failed to put lookup districts")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CorruptItems(t *testing.T) {
	db := setupDB(t)
	_, err := db.Exec(`INSERT INTO lookups (name, items, fetched_at) VALUES ('bad', 'not json', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)

	_, err = NewSQLiteRepository(db).Get(context.Background(), "bad")
	require.ErrorContains(t, err, "failed to decode lookup bad")
}
