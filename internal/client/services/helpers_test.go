package services

import (
	"bytes"
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/records"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, client.RunMigrations(context.Background(), db))
	return db
}

func testSealer(t *testing.T) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealer(bytes.Repeat([]byte{7}, cryptox.KeySize))
	require.NoError(t, err)
	return s
}

func getMeta(t *testing.T, db *sql.DB, k string) []byte {
	t.Helper()
	var v []byte
	err := db.QueryRow(`SELECT value FROM metadata WHERE key=?`, k).Scan(&v)
	require.NoError(t, err)
	return v
}

func insertMeta(t *testing.T, db *sql.DB, k string, v []byte) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO metadata(key,value) VALUES(?,?)`, k, v)
	require.NoError(t, err)
}

func loadRecord(t *testing.T, db *sql.DB, id int64) *models.Record {
	t.Helper()
	rec, err := records.NewSQLiteRepository(db).Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

type postCall struct {
	FormID int64
	Sub    client.FormSubmission
	Key    string
}

// fakeAPI implements client.Client for service tests.
type fakeAPI struct {
	mu sync.Mutex

	PingErr  error
	LoginErr error
	CloseErr error

	PostFn        func(formID int64, sub client.FormSubmission, key string) (*client.PostResult, error)
	GetLocationFn func(ctx context.Context, location string) (*client.ObjectMeta, error)
	GetObjectFn   func(id int64) (*client.ObjectMeta, error)

	EnumsRet   map[string][]models.EnumValue
	EnumsErr   error
	LookupsRet map[string][]models.LookupItem
	LookupErr  error

	Posts     []postCall
	Gets      []string
	LastLogin [2]string
	Closed    bool
}

var _ client.Client = (*fakeAPI)(nil)

func (f *fakeAPI) Close() error {
	f.Closed = true
	return f.CloseErr
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) error {
	f.LastLogin = [2]string{username, password}
	return f.LoginErr
}

func (f *fakeAPI) HasSession() bool { return f.LastLogin[0] != "" && f.LoginErr == nil }

func (f *fakeAPI) Ping(ctx context.Context) error { return f.PingErr }

func (f *fakeAPI) PostForm(ctx context.Context, formID int64, sub client.FormSubmission, key string) (*client.PostResult, error) {
	f.mu.Lock()
	f.Posts = append(f.Posts, postCall{FormID: formID, Sub: sub, Key: key})
	f.mu.Unlock()
	return f.PostFn(formID, sub, key)
}

func (f *fakeAPI) GetLocation(ctx context.Context, location string) (*client.ObjectMeta, error) {
	f.mu.Lock()
	f.Gets = append(f.Gets, location)
	f.mu.Unlock()
	return f.GetLocationFn(ctx, location)
}

func (f *fakeAPI) GetObject(ctx context.Context, id int64) (*client.ObjectMeta, error) {
	f.mu.Lock()
	f.Gets = append(f.Gets, "object")
	f.mu.Unlock()
	return f.GetObjectFn(id)
}

func (f *fakeAPI) Enums(ctx context.Context) (map[string][]models.EnumValue, error) {
	return f.EnumsRet, f.EnumsErr
}

func (f *fakeAPI) Lookup(ctx context.Context, name string) ([]models.LookupItem, error) {
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	return f.LookupsRet[name], nil
}

// objectServer answers posts with 201 and sequential object IDs, and
// metadata GETs with matching metadata.
func objectServer(f *fakeAPI) {
	var next int64 = 1000
	f.PostFn = func(formID int64, sub client.FormSubmission, key string) (*client.PostResult, error) {
		next++
		id := next
		return &client.PostResult{Location: "/api/objects/" + strconv.FormatInt(id, 10), ObjectID: &id}, nil
	}
	f.GetObjectFn = func(id int64) (*client.ObjectMeta, error) {
		return &client.ObjectMeta{ObjectID: id, NodeID: int64p(1)}, nil
	}
}

func nopLogger() logging.Logger { return logging.NewNop() }
