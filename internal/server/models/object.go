package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus tracks a queued form submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionAssigned SubmissionStatus = "assigned"
)

// Submission is an accepted form POST. Its ID is the ticket handed back in
// the Location header; ObjectID is filled in by the assigner.
type Submission struct {
	ID             string
	UserID         string
	FormID         int64
	IdempotencyKey string
	Controls       json.RawMessage
	ParentObjectID *int64
	Status         SubmissionStatus
	ObjectID       *int64
	CreatedAt      time.Time
}

// Object is a stored form instance with server-assigned identity.
type Object struct {
	ID             int64
	NodeID         int64
	FormID         int64
	UserID         string
	ParentObjectID *int64
	Controls       json.RawMessage
	CreatedTime    time.Time
	UpdateTime     time.Time
}
