package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
)

var submissionOrderingFields = map[string]bool{
	"submitted_at": true,
	"updated_at":   true,
	"reviewed_at":  true,
	"status":       true,
}

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *sql.DB) activity.Repository {
	return &activityRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *activityRepository) QueryActivities(ctx context.Context, t activity.Type) ([]activity.Activity, error) {
	acts := make([]activity.Activity, 0)
	q := `SELECT id, type, title, points, due_at, created_at FROM activities`
	var args []interface{}
	if t != "" {
		q += ` WHERE type = $1`
		args = append(args, t)
	}
	q += ` ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &acts, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	return acts, nil
}

func (repo *activityRepository) GetActivity(ctx context.Context, t activity.Type, id string) (activity.Activity, error) {
	var act activity.Activity
	q := `SELECT id, type, title, points, due_at, created_at FROM activities WHERE type = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &act, q, t, id); err != nil {
		if err == sql.ErrNoRows {
			return activity.Activity{}, activity.ErrActivityNotFound
		}
		return activity.Activity{}, errors.Wrap(err, "getting activity")
	}
	return act, nil
}

func (repo *activityRepository) CreateSubmission(ctx context.Context, sub activity.Submission) (activity.Submission, error) {
	q := `
		INSERT INTO submissions (
			id, user_id, activity_type, activity_id, status, score, rejection_reason,
			payload, submitted_at, reviewed_at, reviewed_by, updated_at
		) VALUES (
			:id, :user_id, :activity_type, :activity_id, :status, :score, :rejection_reason,
			:payload, :submitted_at, :reviewed_at, :reviewed_by, :updated_at
		)`
	if _, err := repo.db.NamedExecContext(ctx, q, sub); err != nil {
		return activity.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo *activityRepository) GetSubmission(ctx context.Context, id string) (activity.Submission, error) {
	var sub activity.Submission
	if err := repo.db.GetContext(ctx, &sub, `SELECT * FROM submissions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return activity.Submission{}, activity.ErrSubmissionNotFound
		}
		return activity.Submission{}, errors.Wrap(err, "getting submission")
	}
	return sub, nil
}

// submissionsQuery renders filter as a SELECT with bindvars for the postgres driver.
func submissionsQuery(filter activity.SubmissionFilter) (string, []interface{}, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ActivityType != "" {
		conds = append(conds, "activity_type = ?")
		args = append(args, filter.ActivityType)
	}
	if filter.ActivityID != "" {
		conds = append(conds, "activity_id = ?")
		args = append(args, filter.ActivityID)
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status IN (?)")
		args = append(args, filter.Statuses)
	}

	q := "SELECT * FROM submissions"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + orderBy(filter.Ordering)

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

func orderBy(orderings []core.DBOrdering) string {
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if submissionOrderingFields[ord.Field] {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		return "submitted_at DESC"
	}
	return strings.Join(clauses, ", ")
}

func (repo *activityRepository) QuerySubmissions(ctx context.Context, filter activity.SubmissionFilter) ([]activity.Submission, error) {
	q, args, err := submissionsQuery(filter)
	if err != nil {
		return nil, errors.Wrap(err, "building submissions query")
	}
	subs := make([]activity.Submission, 0)
	if err := repo.db.SelectContext(ctx, &subs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (repo *activityRepository) UpdateSubmissionStatus(ctx context.Context, sub activity.Submission) (activity.Submission, error) {
	q := `
		UPDATE submissions
		SET status = :status, rejection_reason = :rejection_reason, reviewed_at = :reviewed_at,
			reviewed_by = :reviewed_by, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, sub)
	if err != nil {
		return activity.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return activity.Submission{}, activity.ErrSubmissionNotFound
	}
	return repo.GetSubmission(ctx, sub.ID)
}

func (repo *activityRepository) QueryCompletions(ctx context.Context, userID string) (activity.Completions, error) {
	// only the latest submission per activity matters
	q := `
		SELECT DISTINCT ON (activity_type, activity_id) *
		FROM submissions
		WHERE user_id = $1
		ORDER BY activity_type, activity_id, submitted_at DESC`
	subs := make([]activity.Submission, 0)
	if err := repo.db.SelectContext(ctx, &subs, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying completions")
	}
	return activity.CompletionsFromSubmissions(subs), nil
}
