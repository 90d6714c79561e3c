package submission

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/completion"
	"github.com/trezcool/engage/core/optimistic"
	"github.com/trezcool/engage/core/rtcache"
)

type (
	Deps struct {
		Repo        activity.Repository
		Coordinator *completion.Coordinator
		Loader      *rtcache.Loader
		Volatile    *cache.Cache
		Graph       *cache.Graph
		Views       *Views
		Processing  *Processing
		Validate    *validator.Validate
		Activities  *optimistic.Tracker[activity.Activity]
		Submissions *optimistic.Tracker[activity.Submission]
		Clock       core.Clock
		Logger      core.Logger
	}

	// Service runs attendee submissions and admin reviews: guard, eligibility, optimistic render,
	// authoritative write, then invalidation.
	Service struct {
		repo        activity.Repository
		coord       *completion.Coordinator
		loader      *rtcache.Loader
		volatile    *cache.Cache
		graph       *cache.Graph
		views       *Views
		processing  *Processing
		validate    *validator.Validate
		activities  *optimistic.Tracker[activity.Activity]
		submissions *optimistic.Tracker[activity.Submission]
		now         core.Clock
		logger      core.Logger
	}
)

func NewService(deps Deps) *Service {
	svc := &Service{
		repo:        deps.Repo,
		coord:       deps.Coordinator,
		loader:      deps.Loader,
		volatile:    deps.Volatile,
		graph:       deps.Graph,
		views:       deps.Views,
		processing:  deps.Processing,
		validate:    deps.Validate,
		activities:  deps.Activities,
		submissions: deps.Submissions,
		now:         deps.Clock,
		logger:      deps.Logger,
	}
	if svc.graph == nil {
		svc.graph = cache.DefaultGraph()
	}
	if svc.views == nil {
		svc.views = NewViews(nil)
	}
	if svc.processing == nil {
		svc.processing = NewProcessing()
	}
	if svc.validate == nil {
		svc.validate = validator.New()
		core.InitValidators(svc.validate, core.NewTranslator())
	}
	if svc.now == nil {
		svc.now = core.UTCNow
	}
	if svc.logger == nil {
		svc.logger = core.NopLogger{}
	}
	if svc.activities == nil {
		svc.activities = optimistic.NewTracker[activity.Activity](optimistic.WithClock(svc.now), optimistic.WithLogger(svc.logger))
	}
	if svc.submissions == nil {
		svc.submissions = optimistic.NewTracker[activity.Submission](optimistic.WithClock(svc.now), optimistic.WithLogger(svc.logger))
	}
	return svc
}

func (svc *Service) Views() *Views           { return svc.views }
func (svc *Service) Processing() *Processing { return svc.processing }
func (svc *Service) caches() []*cache.Cache  { return []*cache.Cache{svc.loader.Cache(), svc.volatile} }

func (svc *Service) SubmitTask(ctx context.Context, userID, taskID string, ns activity.NewSubmission) (activity.Submission, error) {
	return svc.submit(ctx, userID, activity.TypeTask, taskID, ns)
}

func (svc *Service) StartQuiz(ctx context.Context, userID, quizID string, ns activity.NewSubmission) (activity.Submission, error) {
	return svc.submit(ctx, userID, activity.TypeQuiz, quizID, ns)
}

func (svc *Service) SubmitForm(ctx context.Context, userID, formID string, ns activity.NewSubmission) (activity.Submission, error) {
	return svc.submit(ctx, userID, activity.TypeForm, formID, ns)
}

func (svc *Service) submit(ctx context.Context, userID string, t activity.Type, id string, ns activity.NewSubmission) (activity.Submission, error) {
	if err := ns.Validate(svc.validate, t); err != nil {
		return activity.Submission{}, err
	}

	guard := userID + "/" + string(t) + "/" + id
	if !svc.processing.Begin(guard) {
		svc.logger.Debug("duplicate submission dropped", map[string]interface{}{"guard": guard})
		return activity.Submission{}, ErrAlreadyProcessing
	}
	defer svc.processing.End(guard)

	if _, err := svc.repo.GetActivity(ctx, t, id); err != nil {
		return activity.Submission{}, err
	}
	elig, err := svc.coord.Eligibility(ctx, userID, t, id)
	if err != nil {
		return activity.Submission{}, err
	}
	if err := deny(elig); err != nil {
		return activity.Submission{}, err
	}

	now := svc.now()
	sub := activity.Submission{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityType: t,
		ActivityID:   id,
		Status:       activity.StatusApproved,
		Score:        ns.Score,
		Payload:      ns.Payload,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	if t == activity.TypeTask {
		sub.Status = activity.StatusPending
	}

	// the activity leaves the user's pending view before the write starts
	opID, _ := svc.activities.RemoveItem(string(t), id, svc.views.RenderPending(userID), svc.views.Pending(userID))
	var created activity.Submission
	err = svc.activities.Commit(ctx, opID, func(ctx context.Context) error {
		var err error
		created, err = svc.repo.CreateSubmission(ctx, sub)
		return err
	})
	if err != nil {
		return activity.Submission{}, errors.Wrap(err, "creating submission")
	}

	svc.graph.Invalidate(cache.EventSubmissionCreated, cache.Params{
		UserID:       userID,
		ActivityType: string(t),
		ActivityID:   id,
		Status:       string(created.Status),
	}, svc.caches()...)
	svc.coord.ClearCompletionCaches(userID, t, id)
	svc.coord.MarkCompletedLocally(userID, t, id, created.Record())
	return created, nil
}

func (svc *Service) HandleApprove(ctx context.Context, reviewerID, submissionID string) (activity.Submission, error) {
	return svc.review(ctx, reviewerID, submissionID, activity.StatusApproved, "")
}

func (svc *Service) HandleReject(ctx context.Context, reviewerID, submissionID string, rv activity.Review) (activity.Submission, error) {
	if err := rv.Validate(svc.validate, true); err != nil {
		return activity.Submission{}, err
	}
	return svc.review(ctx, reviewerID, submissionID, activity.StatusRejected, rv.Reason)
}

func (svc *Service) review(ctx context.Context, reviewerID, id string, status activity.Status, reason string) (activity.Submission, error) {
	guard := reviewKey(id)
	if !svc.processing.Begin(guard) {
		svc.logger.Info("review already in progress", map[string]interface{}{"submission": id}, core.Actor{ID: reviewerID, Admin: true})
		return activity.Submission{}, ErrAlreadyProcessing
	}
	defer svc.processing.End(guard)

	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return activity.Submission{}, err
	}
	elig := CanApproveSubmission(sub)
	if status == activity.StatusRejected {
		elig = CanRejectSubmission(sub)
	}
	if err := deny(elig); err != nil {
		return activity.Submission{}, err
	}

	now := svc.now()
	reviewed := sub
	reviewed.Status = status
	reviewed.RejectionReason = reason
	reviewed.ReviewedAt = &now
	reviewed.ReviewedBy = reviewerID
	reviewed.UpdatedAt = now

	// move the row between the admin lists right away
	removeOp, _ := svc.submissions.RemoveItem(string(sub.ActivityType), id, svc.views.RenderAdmin(sub.Status), svc.views.Admin(sub.Status))
	addOp, _ := svc.submissions.AddItem(string(sub.ActivityType), reviewed, svc.views.RenderAdmin(status), svc.views.Admin(status))

	var updated activity.Submission
	err = svc.submissions.Commit(ctx, removeOp, func(ctx context.Context) error {
		var err error
		updated, err = svc.repo.UpdateSubmissionStatus(ctx, reviewed)
		return err
	})
	if err != nil {
		svc.submissions.Rollback(addOp, nil)
		return activity.Submission{}, errors.Wrap(err, "updating submission status")
	}
	svc.submissions.Confirm(addOp)

	svc.graph.Invalidate(cache.EventSubmissionReviewed, cache.Params{
		UserID:       sub.UserID,
		ActivityType: string(sub.ActivityType),
		ActivityID:   sub.ActivityID,
		Status:       string(status),
	}, svc.caches()...)
	svc.coord.ClearCompletionCaches(sub.UserID, sub.ActivityType, sub.ActivityID)
	return updated, nil
}

// AdminSubmissions returns the submissions with status, read through the submission index.
// fresh skips the local cache.
func (svc *Service) AdminSubmissions(ctx context.Context, status activity.Status, fresh bool) ([]activity.Submission, error) {
	return rtcache.Through(ctx, svc.loader, cache.AdminSubmissions(string(status)), cache.KindAdminList, fresh,
		func(ctx context.Context) ([]activity.Submission, error) {
			if subs, ok := svc.fromIndex(ctx, status); ok {
				return subs, nil
			}
			return svc.repo.QuerySubmissions(ctx, activity.SubmissionFilter{
				Statuses: []activity.Status{status},
				Ordering: []core.DBOrdering{{Field: "submitted_at"}},
			})
		})
}

// fromIndex resolves the ids under byStatus/<status> with their metadata. It reports false when the
// index is unavailable so the caller can fall back to the durable store.
func (svc *Service) fromIndex(ctx context.Context, status activity.Status) ([]activity.Submission, bool) {
	snap, err := svc.loader.Tree().Get(ctx, rtcache.SubmissionIndex())
	if err != nil {
		svc.logger.Warn(errors.Wrap(err, "reading submission index").Error())
		return nil, false
	}
	if !snap.Exists {
		return nil, false
	}
	var index activity.SubmissionIndex
	if err := snap.Decode(&index); err != nil {
		svc.logger.Warn(err.Error())
		return nil, false
	}

	subs := make([]activity.Submission, 0, len(index.ByStatus[status]))
	for id, listed := range index.ByStatus[status] {
		if !listed {
			continue
		}
		s, ok := index.Metadata[id]
		if !ok {
			s = activity.SubmissionSummary{Status: status}
		}
		subs = append(subs, fromSummary(id, s))
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, true
}

func fromSummary(id string, s activity.SubmissionSummary) activity.Submission {
	return activity.Submission{
		ID:           id,
		UserID:       s.UserID,
		ActivityType: s.ActivityType,
		ActivityID:   s.ActivityID,
		Status:       s.Status,
		SubmittedAt:  s.SubmittedAt,
	}
}
