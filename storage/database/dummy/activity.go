package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/engage/core/activity"
)

type activityRepository struct {
	activities  *activityTable
	submissions *submissionTable
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{activities: db.activity, submissions: db.submission}
}

func (repo *activityRepository) QueryActivities(_ context.Context, t activity.Type) ([]activity.Activity, error) {
	repo.activities.RLock()
	defer repo.activities.RUnlock()

	acts := make([]activity.Activity, 0)
	for typ, byID := range repo.activities.table {
		if t != "" && typ != t {
			continue
		}
		for _, a := range byID {
			acts = append(acts, *a)
		}
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].CreatedAt.After(acts[j].CreatedAt) })
	return acts, nil
}

func (repo *activityRepository) GetActivity(_ context.Context, t activity.Type, id string) (activity.Activity, error) {
	repo.activities.RLock()
	defer repo.activities.RUnlock()

	if a, ok := repo.activities.table[t][id]; ok {
		return *a, nil
	}
	return activity.Activity{}, activity.ErrActivityNotFound
}

func (repo *activityRepository) CreateSubmission(_ context.Context, sub activity.Submission) (activity.Submission, error) {
	repo.submissions.Lock()
	defer repo.submissions.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	repo.submissions.table[sub.ID] = &sub
	return sub, nil
}

func (repo *activityRepository) GetSubmission(_ context.Context, id string) (activity.Submission, error) {
	repo.submissions.RLock()
	defer repo.submissions.RUnlock()

	if s, ok := repo.submissions.table[id]; ok {
		return *s, nil
	}
	return activity.Submission{}, activity.ErrSubmissionNotFound
}

func (repo *activityRepository) QuerySubmissions(_ context.Context, filter activity.SubmissionFilter) ([]activity.Submission, error) {
	repo.submissions.RLock()
	defer repo.submissions.RUnlock()

	subs := make([]activity.Submission, 0)
	for _, s := range repo.submissions.table {
		if matches(*s, filter) {
			subs = append(subs, *s)
		}
	}
	// only submitted_at ordering is supported here
	asc := len(filter.Ordering) > 0 && filter.Ordering[0].Field == "submitted_at" && filter.Ordering[0].Ascending
	sort.Slice(subs, func(i, j int) bool {
		if asc {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	return subs, nil
}

func matches(s activity.Submission, filter activity.SubmissionFilter) bool {
	if filter.UserID != "" && s.UserID != filter.UserID {
		return false
	}
	if filter.ActivityType != "" && s.ActivityType != filter.ActivityType {
		return false
	}
	if filter.ActivityID != "" && s.ActivityID != filter.ActivityID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, st := range filter.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

func (repo *activityRepository) UpdateSubmissionStatus(_ context.Context, sub activity.Submission) (activity.Submission, error) {
	repo.submissions.Lock()
	defer repo.submissions.Unlock()

	s, ok := repo.submissions.table[sub.ID]
	if !ok {
		return activity.Submission{}, activity.ErrSubmissionNotFound
	}
	s.Status = sub.Status
	s.RejectionReason = sub.RejectionReason
	s.ReviewedAt = sub.ReviewedAt
	s.ReviewedBy = sub.ReviewedBy
	s.UpdatedAt = sub.UpdatedAt
	return *s, nil
}

func (repo *activityRepository) QueryCompletions(ctx context.Context, userID string) (activity.Completions, error) {
	subs, err := repo.QuerySubmissions(ctx, activity.SubmissionFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	return activity.CompletionsFromSubmissions(subs), nil
}
