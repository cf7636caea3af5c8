package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/cradle5/cradlesync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

var ErrUnknownForm = errors.New("unknown form")

// ValidationError lists the controls a submission got wrong.
type ValidationError struct {
	Fields []forms.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed: " + forms.Describe(e.Fields)
}

func (e *ValidationError) Unwrap() error {
	return common.ErrInvalidForm
}

type SubmitRequest struct {
	UserID         string
	FormID         int64
	Controls       map[string]any
	ParentObjectID *int64
	// IdempotencyKey makes a repeated POST return the first submission.
	IdempotencyKey string
}

type SubmitResult struct {
	SubmissionID string
	// ObjectID is nil while the submission waits for the assigner.
	ObjectID *int64
	Created  bool
}

// FormService accepts form submissions and turns them into objects.
// With immediate set, objects are created in the submitting transaction;
// otherwise AssignPending does it later.
type FormService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	immediate   bool
}

func NewFormService(db *sql.DB, m repomanager.RepositoryManager, immediate bool) *FormService {
	return &FormService{db: db, repomanager: m, immediate: immediate}
}

func (s *FormService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	form, ok := forms.ByID(req.FormID)
	if !ok {
		return nil, ErrUnknownForm
	}

	fields := form.Validate(req.Controls)
	if form.HasParent && req.ParentObjectID == nil {
		fields = append(fields, forms.FieldError{ControlID: "parentObjectId", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	controls, err := json.Marshal(req.Controls)
	if err != nil {
		return nil, fmt.Errorf("error encoding controls: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var result *SubmitResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if req.ParentObjectID != nil {
			parent, err := s.repomanager.Objects(tx).Get(ctx, *req.ParentObjectID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return &ValidationError{Fields: []forms.FieldError{{ControlID: "parentObjectId", Message: "does not exist"}}}
				}
				return fmt.Errorf("error loading parent object: %w", err)
			}
			if parent.UserID != req.UserID {
				return &ValidationError{Fields: []forms.FieldError{{ControlID: "parentObjectId", Message: "does not exist"}}}
			}
		}

		sub, created, err := s.repomanager.Submissions(tx).Create(ctx, &models.Submission{
			UserID:         req.UserID,
			FormID:         req.FormID,
			IdempotencyKey: key,
			Controls:       controls,
			ParentObjectID: req.ParentObjectID,
			Status:         models.SubmissionPending,
		})
		if err != nil {
			return fmt.Errorf("error storing submission: %w", err)
		}

		if created && s.immediate {
			objectID, err := s.assign(ctx, tx, sub)
			if err != nil {
				return err
			}
			sub.ObjectID = &objectID
		}

		result = &SubmitResult{SubmissionID: sub.ID, ObjectID: sub.ObjectID, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Submission returns a submission owned by userID. Foreign and malformed
// tickets are reported as common.ErrNotFound.
func (s *FormService) Submission(ctx context.Context, userID, id string) (*models.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrNotFound
	}
	sub, err := s.repomanager.Submissions(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, common.ErrNotFound
	}
	return sub, nil
}

// Object returns an object owned by userID.
func (s *FormService) Object(ctx context.Context, userID string, id int64) (*models.Object, error) {
	obj, err := s.repomanager.Objects(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.UserID != userID {
		return nil, common.ErrNotFound
	}
	return obj, nil
}

// AssignPending creates objects for up to limit pending submissions and
// returns how many were assigned.
func (s *FormService) AssignPending(ctx context.Context, limit int) (int, error) {
	var n int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		pending, err := s.repomanager.Submissions(tx).ListPending(ctx, limit)
		if err != nil {
			return fmt.Errorf("error listing pending submissions: %w", err)
		}
		for _, sub := range pending {
			if _, err := s.assign(ctx, tx, sub); err != nil {
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

// RunAssigner calls AssignPending every interval until ctx is done.
func (s *FormService) RunAssigner(ctx context.Context, logger logging.Logger, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.AssignPending(ctx, batch)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error(ctx, "assigning submissions failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "submissions assigned", "count", n)
			}
		}
	}
}

func (s *FormService) assign(ctx context.Context, tx dbx.DBTX, sub *models.Submission) (int64, error) {
	obj := &models.Object{
		FormID:         sub.FormID,
		UserID:         sub.UserID,
		ParentObjectID: sub.ParentObjectID,
		Controls:       sub.Controls,
	}
	if err := s.repomanager.Objects(tx).Create(ctx, obj); err != nil {
		return 0, fmt.Errorf("error creating object: %w", err)
	}
	if err := s.repomanager.Submissions(tx).MarkAssigned(ctx, sub.ID, obj.ID); err != nil {
		return 0, fmt.Errorf("error assigning submission %s: %w", sub.ID, err)
	}
	return obj.ID, nil
}
