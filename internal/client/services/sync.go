package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/client/repositories/metadata"
	"github.com/cradle5/cradlesync/internal/client/repositories/records"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultLookupNames are the dynamic lookup lists refreshed on every sync.
var DefaultLookupNames = []string{"districts", "facilities"}

// ProgressFunc receives progress after each processed record. May be nil.
type ProgressFunc func(models.Progress)

// SyncService uploads pending records and refreshes cached lookups.
type SyncService struct {
	api         client.Client
	db          *sql.DB
	uploader    *Uploader
	lookupNames []string
	logger      logging.Logger
	now         func() time.Time
}

func NewSyncService(api client.Client, db *sql.DB, sealer *cryptox.Sealer, lookupNames []string, logger logging.Logger) *SyncService {
	if lookupNames == nil {
		lookupNames = DefaultLookupNames
	}
	return &SyncService{
		api:         api,
		db:          db,
		uploader:    NewUploader(api, db, sealer, logger),
		lookupNames: lookupNames,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync runs one pass:
//
//  1. ping the server, returning client.ErrUnavailable if it cannot be reached;
//  2. upload pending records kind by kind in forms.UploadOrder;
//  3. refresh enumerations and lookups;
//  4. record the sync time.
//
// Lost authorization stops the pass and is returned along with the partial
// report. Failures of individual records are recorded on the records and
// counted in the report.
func (s *SyncService) Sync(ctx context.Context, onProgress ProgressFunc) (*models.Report, error) {
	if err := s.api.Ping(ctx); err != nil {
		if !errors.Is(err, client.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", client.ErrUnavailable, err)
		}
		return nil, err
	}

	report := models.NewReport(s.now())
	s.logger.Info(ctx, "sync started")

	for _, kind := range forms.UploadOrder {
		if err := s.syncKind(ctx, kind, report.Kinds[kind], onProgress); err != nil {
			report.FinishedAt = s.now()
			return report, err
		}
	}

	n, err := s.refreshLookups(ctx)
	switch {
	case errors.Is(err, client.ErrUnauthorized), ctx.Err() != nil && err != nil:
		report.FinishedAt = s.now()
		return report, err
	case err != nil:
		s.logger.Warn(ctx, "lookup refresh failed", "error", err)
		report.LookupError = err.Error()
	}
	report.LookupsRefreshed = n

	report.FinishedAt = s.now()
	if err := metadata.SetTime(ctx, metadata.NewSQLiteRepository(s.db), metadata.KeyLastSyncAt, report.FinishedAt); err != nil {
		return report, fmt.Errorf("save sync time: %w", err)
	}

	t := report.Totals()
	s.logger.Info(ctx, "sync finished", "uploaded", t.Uploaded, "partial", t.Partial,
		"failed", t.Failed, "blocked", t.Blocked, "skipped", t.Skipped)
	return report, nil
}

func (s *SyncService) syncKind(ctx context.Context, kind forms.Kind, kr *models.KindReport, onProgress ProgressFunc) error {
	repo := records.NewSQLiteRepository(s.db)

	skipped, err := repo.CountNeedingAttention(ctx, kind)
	if err != nil {
		return err
	}
	kr.Skipped = skipped

	pending, err := repo.ListPendingUpload(ctx, kind)
	if err != nil {
		return err
	}

	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := s.uploadOne(ctx, repo, rec)
		kr.Add(outcome)
		if onProgress != nil {
			onProgress(models.Progress{Kind: kind, Done: i + 1, Total: len(pending), LocalID: rec.LocalID, Outcome: outcome})
		}
		if err != nil {
			if errors.Is(err, client.ErrUnauthorized) || ctx.Err() != nil {
				return err
			}
			s.logger.Error(ctx, "record upload failed", "kind", kind, "local_id", rec.LocalID, "error", err)
		}
	}
	return nil
}

func (s *SyncService) uploadOne(ctx context.Context, repo records.Repository, rec *models.Record) (models.UploadOutcome, error) {
	form, _ := forms.ByKind(rec.Kind)
	if !form.HasParent || rec.ServerInfo != nil {
		return s.uploader.Upload(ctx, rec, nil)
	}

	msg := msgNoParent
	if rec.ParentLocalID != nil {
		parent, err := repo.Get(ctx, *rec.ParentLocalID)
		if err != nil {
			return models.OutcomeBlocked, fmt.Errorf("parent of record %d: %w", rec.LocalID, err)
		}
		if parent.ServerInfo != nil && parent.ServerInfo.ObjectID != nil {
			return s.uploader.Upload(ctx, rec, parent.ServerInfo.ObjectID)
		}
		msg = msgWaitingParent
	}

	if rec.ErrorKind == models.ErrorBlocked && rec.ServerErrorMessage != nil && *rec.ServerErrorMessage == msg {
		return models.OutcomeBlocked, nil
	}
	return models.OutcomeBlocked, s.uploader.save(ctx, rec.LocalID, models.OutcomeBlocked, models.UploadState{
		ServerErrorMessage: &msg,
		ErrorKind:          models.ErrorBlocked,
		IsDraft:            true,
	})
}

// refreshLookups fetches enumerations and lookup lists concurrently and
// caches them together once all have arrived.
func (s *SyncService) refreshLookups(ctx context.Context) (int, error) {
	g, gctx := errgroup.WithContext(ctx)

	var enums map[string][]models.EnumValue
	g.Go(func() error {
		var err error
		enums, err = s.api.Enums(gctx)
		if err != nil {
			return fmt.Errorf("enums: %w", err)
		}
		return nil
	})

	lists := make([][]models.LookupItem, len(s.lookupNames))
	for i, name := range s.lookupNames {
		g.Go(func() error {
			items, err := s.api.Lookup(gctx, name)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", name, err)
			}
			lists[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	at := s.now()
	var n int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := lookups.NewSQLiteRepository(tx)
		for name, values := range enums {
			if err := repo.Put(ctx, models.CachedLookup{Name: models.EnumLookupName(name), Items: models.EnumItems(values), FetchedAt: at}); err != nil {
				return err
			}
			n++
		}
		for i, name := range s.lookupNames {
			if err := repo.Put(ctx, models.CachedLookup{Name: name, Items: lists[i], FetchedAt: at}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
