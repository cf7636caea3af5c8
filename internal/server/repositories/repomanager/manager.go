package repomanager

import (
	"context"
	"database/sql"

	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/server/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/server/repositories/objects"
	"github.com/cradle5/cradlesync/internal/server/repositories/refreshtokens"
	"github.com/cradle5/cradlesync/internal/server/repositories/submissions"
	"github.com/cradle5/cradlesync/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a *sql.DB or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Submissions(db dbx.DBTX) submissions.Repository
	Objects(db dbx.DBTX) objects.Repository
	Lookups(db dbx.DBTX) lookups.Repository
}
