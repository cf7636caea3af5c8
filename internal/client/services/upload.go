package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/records"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/dbx"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/logging"
)

// Messages stored on records; shown to the user as is.
const (
	msgNoReference = "The server accepted this record but returned no reference to it. " +
		"It will not be sent again automatically; please contact the data manager."
	msgPending       = "Uploaded. Waiting for the server to assign an ID."
	msgRejected      = "The server rejected this form."
	msgWaitingParent = "Waiting for the linked patient to be uploaded."
	msgNoParent      = "Not linked to a patient."
)

// Uploader runs the two-stage upload of a single record: POST the form,
// then GET the server-assigned metadata. Every outcome is written back to
// the record in one transaction together with an upload history entry.
//
// A record that already has server info is never posted again; if it is
// still a draft only the metadata GET is retried.
type Uploader struct {
	api    client.Client
	db     *sql.DB
	sealer *cryptox.Sealer
	logger logging.Logger
	now    func() time.Time
}

func NewUploader(api client.Client, db *sql.DB, sealer *cryptox.Sealer, logger logging.Logger) *Uploader {
	return &Uploader{api: api, db: db, sealer: sealer, logger: logger, now: time.Now}
}

// Upload sends rec. parentObjectID is the server object of the parent
// record, if any. The returned error is non-nil only when the caller should
// stop: lost authorization, cancellation or a local storage failure.
func (u *Uploader) Upload(ctx context.Context, rec *models.Record, parentObjectID *int64) (models.UploadOutcome, error) {
	if rec.Uploaded() {
		return models.OutcomeAlreadyUploaded, nil
	}

	log := u.logger.With("kind", rec.Kind, "local_id", rec.LocalID)

	var info models.ServerInfo
	if rec.ServerInfo != nil {
		info = *rec.ServerInfo
		log.Debug(ctx, "resuming upload at metadata retrieval", "location", info.Location)
	} else {
		res, outcome, err := u.post(ctx, log, rec, parentObjectID)
		if res == nil {
			return outcome, err
		}
		info = models.ServerInfo{Location: res.Location, ObjectID: res.ObjectID}
	}

	if info.ObjectID == nil && info.Location == "" {
		log.Warn(ctx, "server gave no reference for accepted record")
		return models.OutcomeObjectIDRetrievalFailed, u.save(ctx, rec.LocalID, models.OutcomeObjectIDRetrievalFailed, models.UploadState{
			ServerInfo:         &info,
			ServerErrorMessage: ptr(msgNoReference),
			ErrorKind:          models.ErrorUnresolved,
			IsDraft:            true,
		})
	}

	return u.fetchMeta(ctx, log, rec.LocalID, info)
}

// post is stage one. A nil result means the attempt ended here.
func (u *Uploader) post(ctx context.Context, log logging.Logger, rec *models.Record, parentObjectID *int64) (*client.PostResult, models.UploadOutcome, error) {
	form, ok := forms.ByKind(rec.Kind)
	if !ok {
		return nil, models.OutcomeAllFailed, fmt.Errorf("record %d: unknown kind %q", rec.LocalID, rec.Kind)
	}
	payload, err := openForm(u.sealer, rec)
	if err != nil {
		return nil, models.OutcomeAllFailed, fmt.Errorf("open record %d: %w", rec.LocalID, err)
	}
	controls, err := forms.Encode(payload)
	if err != nil {
		return nil, models.OutcomeAllFailed, err
	}

	log.Debug(ctx, "posting form", "form_id", form.ID)
	res, err := u.api.PostForm(ctx, form.ID, client.FormSubmission{Controls: controls, ParentObjectID: parentObjectID}, rec.ClientRef)
	if err == nil {
		return res, models.OutcomeSuccess, nil
	}

	var ve *client.ValidationError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return nil, models.OutcomeAllFailed, err
	case ctx.Err() != nil:
		return nil, models.OutcomeAllFailed, ctx.Err()
	case errors.As(err, &ve):
		msg := forms.Describe(ve.Fields)
		if msg == "" {
			msg = msgRejected
		}
		log.Info(ctx, "form rejected by server", "errors", msg)
		return nil, models.OutcomeAllFailed, u.save(ctx, rec.LocalID, models.OutcomeAllFailed, models.UploadState{
			ServerErrorMessage: &msg,
			ErrorKind:          models.ErrorValidation,
			IsDraft:            true,
		})
	default:
		msg := "Upload failed, will retry on next sync: " + err.Error()
		log.Warn(ctx, "form post failed", "error", err)
		return nil, models.OutcomeAllFailed, u.save(ctx, rec.LocalID, models.OutcomeAllFailed, models.UploadState{
			ServerErrorMessage: &msg,
			ErrorKind:          models.ErrorTransport,
			IsDraft:            true,
		})
	}
}

// fetchMeta is stage two.
func (u *Uploader) fetchMeta(ctx context.Context, log logging.Logger, localID int64, info models.ServerInfo) (models.UploadOutcome, error) {
	var (
		meta *client.ObjectMeta
		err  error
	)
	if info.ObjectID != nil {
		meta, err = u.api.GetObject(ctx, *info.ObjectID)
	} else {
		meta, err = u.api.GetLocation(ctx, info.Location)
	}

	if err != nil {
		outcome := models.OutcomeObjectIDRetrievalFailed
		var msg string
		switch {
		case info.ObjectID != nil:
			outcome = models.OutcomeMetaInfoRetrievalFailed
			msg = fmt.Sprintf("Uploaded as object %d but its details could not be retrieved, will retry: %v", *info.ObjectID, err)
		case errors.Is(err, client.ErrPending):
			msg = msgPending
		default:
			msg = "Uploaded but the server ID could not be retrieved, will retry: " + err.Error()
		}
		log.Warn(ctx, "metadata retrieval failed", "outcome", outcome, "error", err)

		if serr := u.save(ctx, localID, outcome, models.UploadState{
			ServerInfo:         &info,
			ServerErrorMessage: &msg,
			ErrorKind:          models.ErrorPartial,
			IsDraft:            true,
		}); serr != nil {
			return outcome, serr
		}
		if errors.Is(err, client.ErrUnauthorized) {
			return outcome, err
		}
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		return outcome, nil
	}

	if info.ObjectID != nil && meta.ObjectID != *info.ObjectID {
		log.Warn(ctx, "server returned a different object id", "expected", *info.ObjectID, "got", meta.ObjectID)
	}

	log.Info(ctx, "record uploaded", "object_id", meta.ObjectID)
	return models.OutcomeSuccess, u.save(ctx, localID, models.OutcomeSuccess, models.UploadState{
		ServerInfo: meta.ServerInfo(info.Location),
		IsDraft:    false,
	})
}

// save writes the upload state and history entry together. It ignores
// cancellation of ctx: once the server has the record, losing the location
// would lead to a second POST.
func (u *Uploader) save(ctx context.Context, localID int64, outcome models.UploadOutcome, st models.UploadState) error {
	ctx = context.WithoutCancel(ctx)
	at := u.now()

	err := dbx.WithTx(ctx, u.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		if err := repo.SaveUploadState(ctx, localID, st, at); err != nil {
			return err
		}
		return repo.InsertAttempt(ctx, localID, at, outcome, st.ServerErrorMessage)
	})
	if err != nil {
		return fmt.Errorf("save upload state: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
