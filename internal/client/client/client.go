package client

import (
	"context"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
)

// Client is the forms API as the sync client uses it.
type Client interface {
	Close() error
	Login(ctx context.Context, username, password string) error
	// HasSession reports whether tokens from a successful login are held.
	HasSession() bool
	Ping(ctx context.Context) error

	// PostForm is stage one of an upload. It is never retried internally.
	PostForm(ctx context.Context, formID int64, sub FormSubmission, idempotencyKey string) (*PostResult, error)
	// GetLocation is stage two: it follows the reference returned by
	// PostForm. A submission still being processed yields ErrPending.
	GetLocation(ctx context.Context, location string) (*ObjectMeta, error)
	// GetObject fetches metadata of a known object.
	GetObject(ctx context.Context, objectID int64) (*ObjectMeta, error)

	Enums(ctx context.Context) (map[string][]models.EnumValue, error)
	Lookup(ctx context.Context, name string) ([]models.LookupItem, error)
}

// FormSubmission is the body of a form POST.
type FormSubmission struct {
	Controls       map[string]any `json:"controls"`
	ParentObjectID *int64         `json:"parentObjectId,omitempty"`
}

// PostResult describes an accepted POST.
type PostResult struct {
	// Location is where stage two continues. Empty if the server sent none.
	Location string
	// ObjectID is set when the server assigned the ID synchronously.
	ObjectID *int64
	// Async is set when the server queued the submission (202).
	Async bool
}

// ObjectMeta is the server-assigned metadata of an object.
type ObjectMeta struct {
	ObjectID    int64      `json:"objectId"`
	NodeID      *int64     `json:"nodeId,omitempty"`
	CreatedTime *time.Time `json:"createdTime,omitempty"`
	UpdateTime  *time.Time `json:"updateTime,omitempty"`
}

// ServerInfo converts the metadata into the locally stored form.
func (m ObjectMeta) ServerInfo(location string) *models.ServerInfo {
	id := m.ObjectID
	return &models.ServerInfo{
		NodeID:      m.NodeID,
		ObjectID:    &id,
		CreatedTime: m.CreatedTime,
		UpdateTime:  m.UpdateTime,
		Location:    location,
	}
}
