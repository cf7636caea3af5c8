package models

import (
	"time"

	"github.com/cradle5/cradlesync/internal/forms"
)

// UploadOutcome is the result of one upload attempt for one record.
type UploadOutcome int

const (
	// OutcomeAllFailed: the POST failed, nothing reached the server.
	OutcomeAllFailed UploadOutcome = iota
	// OutcomeObjectIDRetrievalFailed: the POST succeeded but the object ID
	// could not be obtained.
	OutcomeObjectIDRetrievalFailed
	// OutcomeMetaInfoRetrievalFailed: the object ID is known but its
	// metadata could not be fetched.
	OutcomeMetaInfoRetrievalFailed
	OutcomeSuccess
	OutcomeAlreadyUploaded
	// OutcomeBlocked: not attempted because a dependency is missing.
	OutcomeBlocked
)

func (o UploadOutcome) String() string {
	switch o {
	case OutcomeAllFailed:
		return "AllFailed"
	case OutcomeObjectIDRetrievalFailed:
		return "ObjectIdRetrievalFailed"
	case OutcomeMetaInfoRetrievalFailed:
		return "MetaInfoRetrievalFailed"
	case OutcomeSuccess:
		return "Success"
	case OutcomeAlreadyUploaded:
		return "AlreadyUploaded"
	case OutcomeBlocked:
		return "Blocked"
	}
	return "Unknown"
}

// Partial reports whether the server has the record but local metadata is
// incomplete.
func (o UploadOutcome) Partial() bool {
	return o == OutcomeObjectIDRetrievalFailed || o == OutcomeMetaInfoRetrievalFailed
}

// Progress is emitted after each record a sync processes.
type Progress struct {
	Kind    forms.Kind
	Done    int
	Total   int
	LocalID int64
	Outcome UploadOutcome
}

// KindReport counts what a sync did with one record kind.
type KindReport struct {
	Attempted       int
	Uploaded        int
	AlreadyUploaded int
	Partial         int
	Failed          int
	Blocked         int
	// Skipped counts drafts left alone because they need user action.
	Skipped int
}

// Add tallies one outcome.
func (r *KindReport) Add(o UploadOutcome) {
	switch {
	case o == OutcomeBlocked:
		r.Blocked++
		return
	case o == OutcomeSuccess:
		r.Uploaded++
	case o == OutcomeAlreadyUploaded:
		r.AlreadyUploaded++
	case o.Partial():
		r.Partial++
	default:
		r.Failed++
	}
	r.Attempted++
}

// Report summarises a sync run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Kinds      map[forms.Kind]*KindReport
	// LookupsRefreshed is the number of lookup lists cached during the run.
	LookupsRefreshed int
	// LookupError is set when lookups could not be refreshed.
	LookupError string
}

func NewReport(started time.Time) *Report {
	r := &Report{StartedAt: started, Kinds: make(map[forms.Kind]*KindReport, len(forms.UploadOrder))}
	for _, k := range forms.UploadOrder {
		r.Kinds[k] = &KindReport{}
	}
	return r
}

// Totals sums all kinds.
func (r *Report) Totals() KindReport {
	var t KindReport
	for _, k := range r.Kinds {
		t.Attempted += k.Attempted
		t.Uploaded += k.Uploaded
		t.AlreadyUploaded += k.AlreadyUploaded
		t.Partial += k.Partial
		t.Failed += k.Failed
		t.Blocked += k.Blocked
		t.Skipped += k.Skipped
	}
	return t
}

// UploadAttempt is one entry of a record's upload history.
type UploadAttempt struct {
	At      time.Time
	Outcome string
	Message *string
}
