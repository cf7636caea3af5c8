package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/cradle5/cradlesync/internal/server/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/server/repositories/objects"
	"github.com/cradle5/cradlesync/internal/server/repositories/refreshtokens"
	"github.com/cradle5/cradlesync/internal/server/repositories/submissions"
	"github.com/cradle5/cradlesync/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeUsersRepo struct {
	byName    map[string]*models.User
	createErr error
	getErr    error
}

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.byName[u.UserName]; ok {
		return nil, common.ErrAlreadyExists
	}
	u.ID = uuid.NewString()
	r.byName[u.UserName] = u
	return u, nil
}

func (r *fakeUsersRepo) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.byName[login]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r *fakeUsersRepo) SetPassword(_ context.Context, userName string, hash []byte) error {
	u, ok := r.byName[userName]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type fakeRefreshRepo struct {
	tokens    map[string]models.RefreshToken
	createErr error
	findErr   error
	deleteErr error
}

func (r *fakeRefreshRepo) Create(_ context.Context, t models.RefreshToken) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.tokens[t.Token] = t
	return nil
}

func (r *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	t, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (r *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.tokens[token]; !ok {
		return common.ErrNotFound
	}
	delete(r.tokens, token)
	return nil
}

func (r *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range r.tokens {
		if t.Expires.Before(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeSubmissionsRepo struct {
	byID      map[string]*models.Submission
	order     []string
	createErr error
	listErr   error
	markErr   error
}

func (r *fakeSubmissionsRepo) Create(_ context.Context, s *models.Submission) (*models.Submission, bool, error) {
	if r.createErr != nil {
		return nil, false, r.createErr
	}
	for _, id := range r.order {
		old := r.byID[id]
		if old.UserID == s.UserID && old.IdempotencyKey == s.IdempotencyKey {
			cp := *old
			return &cp, false, nil
		}
	}
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now()
	cp := *s
	r.byID[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return s, true, nil
}

func (r *fakeSubmissionsRepo) Get(_ context.Context, id string) (*models.Submission, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubmissionsRepo) ListPending(_ context.Context, limit int) ([]*models.Submission, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Submission
	for _, id := range r.order {
		if len(out) == limit {
			break
		}
		if s := r.byID[id]; s.Status == models.SubmissionPending {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSubmissionsRepo) MarkAssigned(_ context.Context, id string, objectID int64) error {
	if r.markErr != nil {
		return r.markErr
	}
	s := r.byID[id]
	s.Status = models.SubmissionAssigned
	s.ObjectID = &objectID
	return nil
}

type fakeObjectsRepo struct {
	byID      map[int64]*models.Object
	nextID    int64
	createErr error
}

func (r *fakeObjectsRepo) Create(_ context.Context, o *models.Object) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	o.ID = 1000 + r.nextID
	o.NodeID = r.nextID
	o.CreatedTime = time.Now()
	o.UpdateTime = o.CreatedTime
	cp := *o
	r.byID[o.ID] = &cp
	return nil
}

func (r *fakeObjectsRepo) Get(_ context.Context, id int64) (*models.Object, error) {
	o, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type fakeLookupsRepo struct {
	enums map[string][]models.EnumValue
	items map[string][]models.LookupItem
}

func (r *fakeLookupsRepo) Enums(context.Context) (map[string][]models.EnumValue, error) {
	return r.enums, nil
}

func (r *fakeLookupsRepo) Items(_ context.Context, list string) ([]models.LookupItem, error) {
	items, ok := r.items[list]
	if !ok {
		return nil, common.ErrNotFound
	}
	return items, nil
}

type fakeRepoManager struct {
	users       *fakeUsersRepo
	refresh     *fakeRefreshRepo
	submissions *fakeSubmissionsRepo
	objects     *fakeObjectsRepo
	lookups     *fakeLookupsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:       &fakeUsersRepo{byName: map[string]*models.User{}},
		refresh:     &fakeRefreshRepo{tokens: map[string]models.RefreshToken{}},
		submissions: &fakeSubmissionsRepo{byID: map[string]*models.Submission{}},
		objects:     &fakeObjectsRepo{byID: map[int64]*models.Object{}},
		lookups:     &fakeLookupsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refresh
}
func (m *fakeRepoManager) Submissions(dbx.DBTX) submissions.Repository { return m.submissions }
func (m *fakeRepoManager) Objects(dbx.DBTX) objects.Repository         { return m.objects }
func (m *fakeRepoManager) Lookups(dbx.DBTX) lookups.Repository         { return m.lookups }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}
