package activity

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/engage/core"
)

type Type string

const (
	TypeTask Type = "task"
	TypeQuiz Type = "quiz"
	TypeForm Type = "form"
)

var AllTypes = []Type{TypeTask, TypeQuiz, TypeForm}

func (t Type) Valid() bool {
	switch t {
	case TypeTask, TypeQuiz, TypeForm:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var AllStatuses = []Status{StatusPending, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Ptr is a convenience for optional Status fields.
func (s Status) Ptr() *Status { return &s }

type Activity struct {
	ID        string     `json:"id" db:"id"`
	Type      Type       `json:"type" db:"type"`
	Title     string     `json:"title" db:"title"`
	Points    int        `json:"points" db:"points"`
	DueAt     *time.Time `json:"due_at,omitempty" db:"due_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

func (a Activity) ItemID() string        { return a.ID }
func (a Activity) RecencyKey() time.Time { return a.CreatedAt }

// CompletionRecord is the per user, per activity record of submission state.
type CompletionRecord struct {
	Completed   bool      `json:"completed"`
	Status      *Status   `json:"status,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	Score       *float64  `json:"score,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Completions is the cached per-user blob: {type: {activityID: record}}.
type Completions map[Type]map[string]CompletionRecord

func (c Completions) Get(t Type, id string) (CompletionRecord, bool) {
	if c == nil {
		return CompletionRecord{}, false
	}
	rec, ok := c[t][id]
	return rec, ok
}

func (c Completions) Set(t Type, id string, rec CompletionRecord) {
	if c[t] == nil {
		c[t] = make(map[string]CompletionRecord)
	}
	c[t][id] = rec
}

// Clone returns a deep copy.
func (c Completions) Clone() Completions {
	cp := make(Completions, len(c))
	for t, recs := range c {
		for id, rec := range recs {
			cp.Set(t, id, rec)
		}
	}
	return cp
}

type Submission struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	ActivityType    Type            `json:"activity_type" db:"activity_type"`
	ActivityID      string          `json:"activity_id" db:"activity_id"`
	Status          Status          `json:"status" db:"status"`
	Score           *float64        `json:"score,omitempty" db:"score"`
	RejectionReason string          `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Payload         json.RawMessage `json:"payload,omitempty" db:"payload"`
	SubmittedAt     time.Time       `json:"submitted_at" db:"submitted_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy      string          `json:"reviewed_by,omitempty" db:"reviewed_by"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

func (s Submission) ItemID() string        { return s.ID }
func (s Submission) RecencyKey() time.Time { return s.SubmittedAt }

// Summary returns the fields mirrored under admin/submissions/metadata/<id>.
func (s Submission) Summary() SubmissionSummary {
	return SubmissionSummary{
		UserID:       s.UserID,
		ActivityType: s.ActivityType,
		ActivityID:   s.ActivityID,
		Status:       s.Status,
		SubmittedAt:  s.SubmittedAt,
	}
}

// Record converts the submission into the completion record it implies.
func (s Submission) Record() CompletionRecord {
	rec := CompletionRecord{
		Completed:   true,
		SubmittedAt: s.SubmittedAt,
		Score:       s.Score,
		LastUpdated: s.UpdatedAt,
	}
	if s.ActivityType == TypeTask {
		rec.Status = s.Status.Ptr()
		rec.Completed = s.Status != StatusRejected
	}
	return rec
}

type SubmissionSummary struct {
	UserID       string    `json:"userId"`
	ActivityType Type      `json:"activityType"`
	ActivityID   string    `json:"activityId"`
	Status       Status    `json:"status"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// SubmissionIndex mirrors admin/submissions: byStatus/{status} -> {id: true} and metadata/{id}.
type SubmissionIndex struct {
	ByStatus map[Status]map[string]bool   `json:"byStatus"`
	Metadata map[string]SubmissionSummary `json:"metadata"`
}

// NewSubmission contains what an attendee sends when completing an activity.
type NewSubmission struct {
	Payload json.RawMessage `json:"payload"`
	Score   *float64        `json:"score" validate:"omitempty,min=0"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate, t Type) error {
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if t == TypeQuiz && ns.Score == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "score", Error: "this field is required"})
	}
	return nil
}

// Review is an admin decision on a submission.
type Review struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

func (r *Review) Validate(validate *validator.Validate, reject bool) error {
	r.Reason = core.CleanString(r.Reason)
	if err := validate.Struct(r); err != nil {
		return err
	}
	if reject && r.Reason == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "reason", Error: "this field is required"})
	}
	return nil
}

type SubmissionFilter struct {
	UserID       string
	ActivityType Type
	ActivityID   string
	Statuses     []Status
	Ordering     []core.DBOrdering
}
