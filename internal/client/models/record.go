// Package models defines the client-side records and sync bookkeeping types.
package models

import (
	"time"

	"github.com/cradle5/cradlesync/internal/forms"
)

// ErrorKind classifies the last failed upload attempt of a record.
type ErrorKind string

const (
	ErrorNone ErrorKind = ""
	// ErrorValidation means the server rejected the data; the user must edit
	// the record before it is retried.
	ErrorValidation ErrorKind = "validation"
	// ErrorTransport means the POST did not reach the server or failed there;
	// retried on the next sync.
	ErrorTransport ErrorKind = "transport"
	// ErrorPartial means the server has the record but some metadata is
	// still missing locally; the next sync retries the metadata GET only.
	ErrorPartial ErrorKind = "partial"
	// ErrorUnresolved means the server accepted the record without giving a
	// usable reference back. Never re-posted automatically.
	ErrorUnresolved ErrorKind = "unresolved"
	// ErrorBlocked means the record depends on another one not uploaded yet.
	ErrorBlocked ErrorKind = "blocked"
)

// ServerInfo holds identifiers and timestamps assigned by the server.
// A non-nil ServerInfo means the server already has the record.
type ServerInfo struct {
	NodeID      *int64
	ObjectID    *int64
	CreatedTime *time.Time
	UpdateTime  *time.Time
	// Location is the reference returned by the POST, kept so metadata
	// retrieval can be resumed without posting again.
	Location string
}

// RecordMeta is the plaintext sync state of a stored record.
type RecordMeta struct {
	LocalID   int64
	Kind      forms.Kind
	ClientRef string
	// ParentLocalID links an Outcomes record to its Patient.
	ParentLocalID *int64

	ServerInfo         *ServerInfo
	ServerErrorMessage *string
	IsDraft            bool
	ErrorKind          ErrorKind

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uploaded reports whether the record has a server identity and is no
// longer a draft.
func (m RecordMeta) Uploaded() bool {
	return m.ServerInfo != nil && !m.IsDraft
}

// Status is a one-word summary for listings.
func (m RecordMeta) Status() string {
	switch {
	case m.Uploaded():
		return "uploaded"
	case m.ErrorKind != ErrorNone:
		return string(m.ErrorKind)
	default:
		return "draft"
	}
}

// Record is a stored row: sync state plus the sealed form payload.
type Record struct {
	RecordMeta
	Payload []byte
	Nonce   []byte
}

// UploadState is everything the upload protocol writes back to a record
// after an attempt.
type UploadState struct {
	ServerInfo         *ServerInfo
	ServerErrorMessage *string
	ErrorKind          ErrorKind
	IsDraft            bool
}
