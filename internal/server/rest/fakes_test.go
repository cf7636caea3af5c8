package rest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/server/config"
	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/cradle5/cradlesync/internal/server/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/server/repositories/objects"
	"github.com/cradle5/cradlesync/internal/server/repositories/refreshtokens"
	"github.com/cradle5/cradlesync/internal/server/repositories/submissions"
	"github.com/cradle5/cradlesync/internal/server/repositories/users"
	"github.com/cradle5/cradlesync/internal/server/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// memStore backs every repository with maps. The sqlite handle only
// provides transactions to the services.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	tokens  map[string]models.RefreshToken
	subs    map[string]*models.Submission
	order   []string
	objects map[int64]*models.Object
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*models.User{},
		tokens:  map[string]models.RefreshToken{},
		subs:    map[string]*models.Submission{},
		objects: map[int64]*models.Object{},
	}
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *memStore) Users(dbx.DBTX) users.Repository                 { return memUsers{m} }
func (m *memStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memTokens{m} }
func (m *memStore) Submissions(dbx.DBTX) submissions.Repository     { return memSubs{m} }
func (m *memStore) Objects(dbx.DBTX) objects.Repository             { return memObjects{m} }
func (m *memStore) Lookups(dbx.DBTX) lookups.Repository             { return memLookups{} }

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.UserName]; ok {
		return nil, common.ErrAlreadyExists
	}
	u.ID = uuid.NewString()
	r.users[u.UserName] = u
	return u, nil
}

func (r memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[login]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r memUsers) SetPassword(context.Context, string, []byte) error { return nil }

type memTokens struct{ *memStore }

func (r memTokens) Create(_ context.Context, t models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Token] = t
	return nil
}

func (r memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (r memTokens) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token]; !ok {
		return common.ErrNotFound
	}
	delete(r.tokens, token)
	return nil
}

func (r memTokens) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type memSubs struct{ *memStore }

func (r memSubs) Create(_ context.Context, s *models.Submission) (*models.Submission, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if old := r.subs[id]; old.UserID == s.UserID && old.IdempotencyKey == s.IdempotencyKey {
			cp := *old
			return &cp, false, nil
		}
	}
	s.ID = uuid.NewString()
	cp := *s
	r.subs[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return s, true, nil
}

func (r memSubs) Get(_ context.Context, id string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSubs) ListPending(_ context.Context, limit int) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Submission
	for _, id := range r.order {
		if s := r.subs[id]; s.Status == models.SubmissionPending && len(out) < limit {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memSubs) MarkAssigned(_ context.Context, id string, objectID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.subs[id]
	s.Status = models.SubmissionAssigned
	s.ObjectID = &objectID
	return nil
}

type memObjects struct{ *memStore }

func (r memObjects) Create(_ context.Context, o *models.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = 500 + r.nextID
	o.NodeID = r.nextID
	o.CreatedTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o.UpdateTime = o.CreatedTime
	cp := *o
	r.objects[o.ID] = &cp
	return nil
}

func (r memObjects) Get(_ context.Context, id int64) (*models.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type memLookups struct{}

func (memLookups) Enums(context.Context) (map[string][]models.EnumValue, error) {
	return map[string][]models.EnumValue{"BirthOutcome": {{ID: 1, Name: "Live birth"}}}, nil
}

func (memLookups) Items(_ context.Context, list string) ([]models.LookupItem, error) {
	if list != "districts" {
		return nil, common.ErrNotFound
	}
	return []models.LookupItem{{ID: "D1", Name: "Kambia"}}, nil
}

type testEnv struct {
	server *Server
	store  *memStore
	users  *services.UserService
	forms  *services.FormService
}

func newTestEnv(t *testing.T, immediate bool) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	store := newMemStore()
	us := services.NewUserService(db, store, cfg)
	fs := services.NewFormService(db, store, immediate)
	ls := services.NewLookupService(db, store)

	_, err = us.Register(context.Background(), "nurse1", []byte("pw"))
	require.NoError(t, err)

	return &testEnv{
		server: NewServer("127.0.0.1:0", logging.NewNop(), us, fs, ls, time.Second),
		store:  store,
		users:  us,
		forms:  fs,
	}
}
