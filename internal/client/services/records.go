package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/records"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/google/uuid"
)

var (
	ErrParentRequired = errors.New("outcomes must be linked to a patient")
	ErrKindMismatch   = errors.New("form kind does not match record")
	ErrHasDependents  = errors.New("record has dependent records")
)

// RecordView is a decrypted record as shown to the user.
type RecordView struct {
	models.RecordMeta
	Title string
	Form  models.Form
}

// RecordService manages local drafts.
type RecordService struct {
	db     *sql.DB
	sealer *cryptox.Sealer
	logger logging.Logger
	now    func() time.Time
}

func NewRecordService(db *sql.DB, sealer *cryptox.Sealer, logger logging.Logger) *RecordService {
	return &RecordService{db: db, sealer: sealer, logger: logger, now: time.Now}
}

func (s *RecordService) repo() records.Repository {
	return records.NewSQLiteRepository(s.db)
}

func (s *RecordService) seal(f models.Form) ([]byte, []byte, error) {
	env, err := models.Wrap(f)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap form: %w", err)
	}
	return s.sealer.Seal(env)
}

// openForm decrypts a record payload.
func openForm(sealer *cryptox.Sealer, rec *models.Record) (models.Form, error) {
	var env models.Envelope
	if err := sealer.Open(rec.Payload, rec.Nonce, &env); err != nil {
		return nil, err
	}
	if env.Kind != rec.Kind {
		return nil, fmt.Errorf("%w: payload %s, record %s", ErrKindMismatch, env.Kind, rec.Kind)
	}
	return env.Unwrap()
}

// Create validates and stores a new draft. parentLocalID is required for
// Outcomes and must point at a Patient.
func (s *RecordService) Create(ctx context.Context, f models.Form, parentLocalID *int64) (int64, error) {
	if err := f.Check(); err != nil {
		return 0, err
	}

	repo := s.repo()
	if f.Kind() == forms.KindOutcomes {
		if parentLocalID == nil {
			return 0, ErrParentRequired
		}
		parent, err := repo.Get(ctx, *parentLocalID)
		if err != nil {
			return 0, fmt.Errorf("patient %d: %w", *parentLocalID, err)
		}
		if parent.Kind != forms.KindPatient {
			return 0, fmt.Errorf("%w: record %d is a %s", ErrParentRequired, parent.LocalID, parent.Kind)
		}
	} else {
		parentLocalID = nil
	}

	payload, nonce, err := s.seal(f)
	if err != nil {
		return 0, err
	}

	now := s.now()
	id, err := repo.Insert(ctx, &models.Record{
		RecordMeta: models.RecordMeta{
			Kind:          f.Kind(),
			ClientRef:     uuid.NewString(),
			ParentLocalID: parentLocalID,
			IsDraft:       true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Payload: payload,
		Nonce:   nonce,
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "record created", "kind", f.Kind(), "local_id", id)
	return id, nil
}

// Update replaces the payload of a draft the server has not seen. A pending
// validation or blocked state is cleared so the next sync retries it. The
// record keeps its ClientRef.
func (s *RecordService) Update(ctx context.Context, localID int64, f models.Form) error {
	if err := f.Check(); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		rec, err := repo.Get(ctx, localID)
		if err != nil {
			return err
		}
		if rec.ServerInfo != nil {
			return common.ErrAlreadyUploaded
		}
		if rec.Kind != f.Kind() {
			return fmt.Errorf("%w: record %d is a %s", ErrKindMismatch, localID, rec.Kind)
		}
		// The retry reuses ClientRef, so a post that reached the server
		// before the connection dropped wins over this edit.
		if rec.ErrorKind == models.ErrorTransport {
			s.logger.Warn(ctx, "editing record after failed upload; server keeps the first copy if it arrived",
				"local_id", localID)
		}

		payload, nonce, err := s.seal(f)
		if err != nil {
			return err
		}
		return repo.UpdatePayload(ctx, localID, payload, nonce, s.now())
	})
}

// Get returns a decrypted record.
func (s *RecordService) Get(ctx context.Context, localID int64) (*RecordView, error) {
	rec, err := s.repo().Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	f, err := openForm(s.sealer, rec)
	if err != nil {
		return nil, fmt.Errorf("open record %d: %w", localID, err)
	}
	return &RecordView{RecordMeta: rec.RecordMeta, Title: f.Title(), Form: f}, nil
}

// List returns records of a kind, or all records for an empty kind.
// Records that cannot be decrypted are listed with a placeholder title.
func (s *RecordService) List(ctx context.Context, kind forms.Kind) ([]RecordView, error) {
	recs, err := s.repo().List(ctx, kind)
	if err != nil {
		return nil, err
	}

	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		v := RecordView{RecordMeta: rec.RecordMeta, Title: "<unreadable>"}
		if f, err := openForm(s.sealer, rec); err == nil {
			v.Title = f.Title()
			v.Form = f
		} else {
			s.logger.Warn(ctx, "cannot open record", "local_id", rec.LocalID, "error", err)
		}
		views = append(views, v)
	}
	return views, nil
}

// Delete removes a draft the server has not seen. Patients with outcomes
// cannot be deleted.
func (s *RecordService) Delete(ctx context.Context, localID int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		rec, err := repo.Get(ctx, localID)
		if err != nil {
			return err
		}
		if rec.ServerInfo != nil {
			return common.ErrAlreadyUploaded
		}
		if rec.Kind == forms.KindPatient {
			outcomes, err := repo.List(ctx, forms.KindOutcomes)
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				if o.ParentLocalID != nil && *o.ParentLocalID == localID {
					return fmt.Errorf("%w: outcomes record %d", ErrHasDependents, o.LocalID)
				}
			}
		}
		return repo.Delete(ctx, localID)
	})
}

// History returns the upload attempts of a record.
func (s *RecordService) History(ctx context.Context, localID int64) ([]models.UploadAttempt, error) {
	if _, err := s.repo().Get(ctx, localID); err != nil {
		return nil, err
	}
	return s.repo().ListAttempts(ctx, localID)
}
