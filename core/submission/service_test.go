package submission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/completion"
	"github.com/trezcool/engage/core/optimistic"
	"github.com/trezcool/engage/core/reconcile"
	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/core/submission"
	"github.com/trezcool/engage/storage/database/dummy"
	"github.com/trezcool/engage/storage/tree/memtree"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// repo wraps the dummy repository to count, block or fail writes.
type repo struct {
	activity.Repository
	updates   int32
	creates   int32
	block     chan struct{}
	entered   chan struct{}
	failWrite error
}

func (r *repo) CreateSubmission(ctx context.Context, sub activity.Submission) (activity.Submission, error) {
	atomic.AddInt32(&r.creates, 1)
	if r.failWrite != nil {
		return activity.Submission{}, r.failWrite
	}
	return r.Repository.CreateSubmission(ctx, sub)
}

func (r *repo) UpdateSubmissionStatus(ctx context.Context, sub activity.Submission) (activity.Submission, error) {
	atomic.AddInt32(&r.updates, 1)
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.failWrite != nil {
		return activity.Submission{}, r.failWrite
	}
	return r.Repository.UpdateSubmissionStatus(ctx, sub)
}

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) Render(topic string, _ interface{}) {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
}

type fixture struct {
	svc      *submission.Service
	coord    *completion.Coordinator
	repo     *repo
	clock    *clock
	rendered *recorder
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	db.SeedActivities(
		activity.Activity{ID: "T", Type: activity.TypeTask, Title: "Selfie with a speaker", Points: 10, CreatedAt: t0},
		activity.Activity{ID: "Q", Type: activity.TypeQuiz, Title: "Keynote quiz", Points: 5, CreatedAt: t0},
		activity.Activity{ID: "F", Type: activity.TypeForm, Title: "Feedback", Points: 2, CreatedAt: t0},
	)
	clk := &clock{t: t0}
	r := &repo{Repository: dummydb.NewActivityRepository(db)}
	persistent := cache.New("persistent", cache.NewMemoryStore(), cache.WithClock(clk.now))
	volatile := cache.New("volatile", cache.NewMemoryStore(), cache.WithClock(clk.now))
	loader := rtcache.NewLoader(memtree.New(), persistent, nil)

	coord := completion.NewCoordinator(completion.Deps{Repo: r, Loader: loader, Volatile: volatile, Clock: clk.now})
	rendered := &recorder{}
	svc := submission.NewService(submission.Deps{
		Repo:        r,
		Coordinator: coord,
		Loader:      loader,
		Volatile:    volatile,
		Views:       submission.NewViews(rendered),
		Activities:  optimistic.NewTracker[activity.Activity](optimistic.WithClock(clk.now), optimistic.WithExitDelay(0)),
		Submissions: optimistic.NewTracker[activity.Submission](optimistic.WithClock(clk.now), optimistic.WithExitDelay(0)),
		Clock:       clk.now,
	})
	return fixture{svc: svc, coord: coord, repo: r, clock: clk, rendered: rendered}
}

func TestProcessing(t *testing.T) {
	p := submission.NewProcessing()
	assert.False(t, p.Any())
	assert.True(t, p.Begin("a"))
	assert.False(t, p.Begin("a"))
	assert.True(t, p.Begin("b"))
	assert.True(t, p.Any())
	p.End("a")
	p.End("b")
	assert.False(t, p.Any())
	assert.True(t, p.Begin("a"))
}

func TestProcessing_Reviews(t *testing.T) {
	p := submission.NewProcessing()
	reviews := p.Reviews()
	assert.False(t, reviews.Any())

	require.True(t, p.Begin("u1/quiz/q1"))
	assert.False(t, reviews.Any(), "attendee submits do not hold admin reloads")
	assert.True(t, p.Any())

	require.True(t, p.Begin("review/s1"))
	assert.True(t, reviews.Any())
	p.End("review/s1")
	assert.False(t, reviews.Any())
}

func TestCanReviewSubmission(t *testing.T) {
	tests := []struct {
		name       string
		sub        activity.Submission
		canApprove bool
		canReject  bool
	}{
		{name: "pending task", sub: activity.Submission{ActivityType: activity.TypeTask, Status: activity.StatusPending}, canApprove: true, canReject: true},
		{name: "approved task", sub: activity.Submission{ActivityType: activity.TypeTask, Status: activity.StatusApproved}, canReject: true},
		{name: "rejected task", sub: activity.Submission{ActivityType: activity.TypeTask, Status: activity.StatusRejected}, canApprove: true},
		{name: "quiz", sub: activity.Submission{ActivityType: activity.TypeQuiz, Status: activity.StatusApproved}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canApprove, submission.CanApproveSubmission(tt.sub).Allowed)
			assert.Equal(t, tt.canReject, submission.CanRejectSubmission(tt.sub).Allowed)
		})
	}
}

func TestService_SubmitTask(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.svc.Views().ReplacePending("u1", []activity.Activity{{ID: "T", Type: activity.TypeTask, CreatedAt: t0}})

	sub, err := f.svc.SubmitTask(ctx, "u1", "T", activity.NewSubmission{})
	require.NoError(t, err)
	assert.Equal(t, activity.StatusPending, sub.Status)
	assert.Equal(t, 0, f.svc.Views().Pending("u1").Len())

	// second attempt in the same session
	_, err = f.svc.SubmitTask(ctx, "u1", "T", activity.NewSubmission{})
	var denied *submission.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Contains(t, denied.Reason, "pending")
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.repo.creates))
}

func TestService_SubmitRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.svc.Views().ReplacePending("u1", []activity.Activity{{ID: "F", Type: activity.TypeForm, CreatedAt: t0}})
	f.repo.failWrite = errors.New("permission denied")

	_, err := f.svc.SubmitForm(ctx, "u1", "F", activity.NewSubmission{})
	require.Error(t, err)
	_, ok := f.svc.Views().Pending("u1").Get("F")
	assert.True(t, ok, "the form is back in the pending view")

	elig, err := f.coord.CanSubmitForm(ctx, "u1", "F")
	require.NoError(t, err)
	assert.True(t, elig.Allowed)
}

func TestService_StartQuiz(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.StartQuiz(ctx, "u1", "Q", activity.NewSubmission{})
	assert.True(t, core.IsValidationError(err), "a quiz attempt needs a score")

	score := 4.0
	sub, err := f.svc.StartQuiz(ctx, "u1", "Q", activity.NewSubmission{Score: &score})
	require.NoError(t, err)
	assert.Equal(t, &score, sub.Score)

	_, err = f.svc.StartQuiz(ctx, "u1", "Q", activity.NewSubmission{Score: &score})
	var denied *submission.DeniedError
	assert.True(t, errors.As(err, &denied))
}

func TestService_UnknownActivity(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SubmitTask(context.Background(), "u1", "nope", activity.NewSubmission{})
	assert.Equal(t, activity.ErrActivityNotFound, err)
}

func TestService_DoubleApproveWritesOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sub, err := f.svc.SubmitTask(ctx, "u1", "T", activity.NewSubmission{})
	require.NoError(t, err)

	f.repo.block = make(chan struct{})
	f.repo.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.HandleApprove(ctx, "admin", sub.ID)
		done <- err
	}()
	<-f.repo.entered // first approval is mid-write

	_, err = f.svc.HandleApprove(ctx, "admin", sub.ID)
	assert.Equal(t, submission.ErrAlreadyProcessing, err)

	close(f.repo.block)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.repo.updates))

	_, ok := f.svc.Views().Admin(activity.StatusApproved).Get(sub.ID)
	assert.True(t, ok)
}

func TestService_RejectThenReapprove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sub, err := f.svc.SubmitTask(ctx, "u1", "T", activity.NewSubmission{})
	require.NoError(t, err)

	f.clock.advance(time.Minute)
	_, err = f.svc.HandleReject(ctx, "admin", sub.ID, activity.Review{})
	assert.True(t, core.IsValidationError(err), "a rejection needs a reason")

	rejected, err := f.svc.HandleReject(ctx, "admin", sub.ID, activity.Review{Reason: "blurry photo"})
	require.NoError(t, err)
	assert.Equal(t, activity.StatusRejected, rejected.Status)
	assert.Equal(t, "blurry photo", rejected.RejectionReason)

	assert.True(t, submission.CanApproveSubmission(rejected).Allowed)

	elig, err := f.coord.CanSubmitTask(ctx, "u1", "T")
	require.NoError(t, err)
	assert.True(t, elig.Allowed)

	_, err = f.svc.HandleReject(ctx, "admin", sub.ID, activity.Review{Reason: "again"})
	var denied *submission.DeniedError
	assert.True(t, errors.As(err, &denied))
}

func TestService_ReviewRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sub, err := f.svc.SubmitTask(ctx, "u1", "T", activity.NewSubmission{})
	require.NoError(t, err)
	pending, err := f.svc.AdminSubmissions(ctx, activity.StatusPending, true)
	require.NoError(t, err)
	f.svc.Views().ReplaceAdmin(activity.StatusPending, pending)

	f.repo.failWrite = errors.New("unavailable")
	_, err = f.svc.HandleApprove(ctx, "admin", sub.ID)
	require.Error(t, err)

	_, ok := f.svc.Views().Admin(activity.StatusPending).Get(sub.ID)
	assert.True(t, ok)
	_, ok = f.svc.Views().Admin(activity.StatusApproved).Get(sub.ID)
	assert.False(t, ok)
	assert.Contains(t, f.rendered.topics, submission.AdminTopic(activity.StatusApproved))
}

func TestService_AdminSubmissionsFromIndex(t *testing.T) {
	ctx := context.Background()
	db, err := dummydb.Open()
	require.NoError(t, err)
	tree := memtree.New()
	loader := rtcache.NewLoader(tree, cache.New("p", cache.NewMemoryStore()), nil)
	svc := submission.NewService(submission.Deps{
		Repo:     dummydb.NewActivityRepository(db),
		Loader:   loader,
		Volatile: cache.New("v", cache.NewMemoryStore()),
	})

	require.NoError(t, tree.Set(rtcache.SubmissionIndex(), activity.SubmissionIndex{
		ByStatus: map[activity.Status]map[string]bool{
			activity.StatusPending: {"s1": true, "s2": true},
		},
		Metadata: map[string]activity.SubmissionSummary{
			"s1": {UserID: "u1", ActivityType: activity.TypeTask, ActivityID: "T", Status: activity.StatusPending, SubmittedAt: t0},
			"s2": {UserID: "u2", ActivityType: activity.TypeTask, ActivityID: "T", Status: activity.StatusPending, SubmittedAt: t0.Add(time.Hour)},
		},
	}))

	subs, err := svc.AdminSubmissions(ctx, activity.StatusPending, false)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "s2", subs[0].ID)
	assert.Equal(t, "u1", subs[1].UserID)
}

func TestService_WatchAdminLists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := dummydb.Open()
	require.NoError(t, err)
	tree := memtree.New()
	rendered := &recorder{}
	svc := submission.NewService(submission.Deps{
		Repo:     dummydb.NewActivityRepository(db),
		Loader:   rtcache.NewLoader(tree, cache.New("p", cache.NewMemoryStore()), nil),
		Volatile: cache.New("v", cache.NewMemoryStore()),
		Views:    submission.NewViews(rendered),
	})
	watcher := reconcile.NewWatcher(tree, reconcile.WithDebounce(0), reconcile.WithQuietWindow(0))
	require.NoError(t, svc.WatchAdminLists(ctx, watcher))
	assert.Empty(t, rendered.topics, "subscribing alone reloads nothing")

	require.NoError(t, tree.Set(rtcache.SubmissionsWithStatus("pending").Child("s9"), true))
	_, ok := svc.Views().Admin(activity.StatusPending).Get("s9")
	assert.True(t, ok)
	assert.Equal(t, []string{submission.AdminTopic(activity.StatusPending)}, rendered.topics)
}
