package services

import (
	"context"
	"database/sql"

	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/cradle5/cradlesync/internal/server/repositories/repomanager"
)

// LookupService serves the reference data clients cache for offline entry.
type LookupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewLookupService(db *sql.DB, m repomanager.RepositoryManager) *LookupService {
	return &LookupService{db: db, repomanager: m}
}

func (s *LookupService) Enums(ctx context.Context) (map[string][]models.EnumValue, error) {
	return s.repomanager.Lookups(s.db).Enums(ctx)
}

func (s *LookupService) Items(ctx context.Context, list string) ([]models.LookupItem, error) {
	return s.repomanager.Lookups(s.db).Items(ctx, list)
}
