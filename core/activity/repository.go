package activity

import (
	"context"
	"errors"
)

var (
	// errors
	ErrActivityNotFound   = errors.New("activity not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Repository is the system of record for activities and submissions.
type Repository interface {
	// QueryActivities returns all activities of type t, or of every type when t is empty.
	QueryActivities(ctx context.Context, t Type) ([]Activity, error)
	GetActivity(ctx context.Context, t Type, id string) (Activity, error)

	CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	// UpdateSubmissionStatus sets the review fields of a submission and returns the updated row.
	UpdateSubmissionStatus(ctx context.Context, sub Submission) (Submission, error)

	// QueryCompletions derives a user's completion blob from their latest submission per activity.
	QueryCompletions(ctx context.Context, userID string) (Completions, error)
}

// CompletionsFromSubmissions keeps the most recent submission per activity.
func CompletionsFromSubmissions(subs []Submission) Completions {
	latest := make(map[Type]map[string]Submission)
	for _, s := range subs {
		if latest[s.ActivityType] == nil {
			latest[s.ActivityType] = make(map[string]Submission)
		}
		if prev, ok := latest[s.ActivityType][s.ActivityID]; !ok || s.SubmittedAt.After(prev.SubmittedAt) {
			latest[s.ActivityType][s.ActivityID] = s
		}
	}
	completions := make(Completions, len(latest))
	for t, byID := range latest {
		for id, s := range byID {
			completions.Set(t, id, s.Record())
		}
	}
	return completions
}
