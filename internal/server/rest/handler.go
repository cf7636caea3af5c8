package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/server/models"
	"github.com/cradle5/cradlesync/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodySize = 1 << 20

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type submitRequest struct {
	Controls       map[string]any `json:"controls"`
	ParentObjectID *int64         `json:"parentObjectId,omitempty"`
}

type submitResponse struct {
	Status       string `json:"status,omitempty"`
	SubmissionID string `json:"submissionId"`
	ObjectID     *int64 `json:"objectId,omitempty"`
}

type objectResponse struct {
	ObjectID    int64     `json:"objectId"`
	NodeID      int64     `json:"nodeId"`
	CreatedTime time.Time `json:"createdTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

type validationResponse struct {
	Errors []forms.FieldError `json:"errors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := s.users.Login(r.Context(), req.Username, []byte(req.Password))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "logged in", "username", req.Username)
	writeJSON(w, http.StatusOK, toTokenResponse(tokens))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tokens))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	formID, err := strconv.ParseInt(mux.Vars(r)["formId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown form")
		return
	}

	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.forms.Submit(r.Context(), services.SubmitRequest{
		UserID:         userIDFromContext(r.Context()),
		FormID:         formID,
		Controls:       req.Controls,
		ParentObjectID: req.ParentObjectID,
		IdempotencyKey: r.Header.Get(common.IdempotencyKeyHeaderName),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	body := submitResponse{SubmissionID: res.SubmissionID, ObjectID: res.ObjectID}
	if res.ObjectID != nil {
		w.Header().Set("Location", objectLocation(*res.ObjectID))
		writeJSON(w, http.StatusCreated, body)
		return
	}
	body.Status = string(models.SubmissionPending)
	w.Header().Set("Location", "/api/submissions/"+res.SubmissionID)
	writeJSON(w, http.StatusAccepted, body)
}

// handleSubmission answers 202 until the submission has an object, then
// the object's metadata.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	sub, err := s.forms.Submission(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if sub.Status != models.SubmissionAssigned || sub.ObjectID == nil {
		w.Header().Set("Location", "/api/submissions/"+sub.ID)
		writeJSON(w, http.StatusAccepted, submitResponse{Status: string(models.SubmissionPending), SubmissionID: sub.ID})
		return
	}

	obj, err := s.forms.Object(r.Context(), userID, *sub.ObjectID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Location", objectLocation(obj.ID))
	writeJSON(w, http.StatusOK, toObjectResponse(obj))
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, common.ErrNotFound.Error())
		return
	}

	obj, err := s.forms.Object(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toObjectResponse(obj))
}

func (s *Server) handleEnums(w http.ResponseWriter, r *http.Request) {
	enums, err := s.lookups.Enums(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enums": enums})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	items, err := s.lookups.Items(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// writeServiceError maps service errors onto HTTP statuses. Unknown errors
// are logged and hidden behind a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: verr.Fields})
	case errors.Is(err, services.ErrUnknownForm), errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, common.ErrInternal.Error())
	}
}

func objectLocation(id int64) string {
	return "/api/objects/" + strconv.FormatInt(id, 10)
}

func toTokenResponse(t *services.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int64(t.ExpiresIn / time.Second),
	}
}

func toObjectResponse(o *models.Object) objectResponse {
	return objectResponse{ObjectID: o.ID, NodeID: o.NodeID, CreatedTime: o.CreatedTime, UpdateTime: o.UpdateTime}
}

// decodeBody reads a JSON body. Numbers are kept as json.Number so control
// values round-trip unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
