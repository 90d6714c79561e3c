package completion

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/rtcache"
)

// cachedList is a per-user list tagged with the version token it was built under.
type cachedList struct {
	Version string              `json:"version"`
	Items   []activity.Activity `json:"items"`
}

// Coordinator derives completion and eligibility state from the cached completion blobs.
type Coordinator struct {
	repo     activity.Repository
	loader   *rtcache.Loader
	volatile *cache.Cache
	graph    *cache.Graph
	now      core.Clock
	logger   core.Logger
}

type Deps struct {
	Repo     activity.Repository
	Loader   *rtcache.Loader // over the persistent cache
	Volatile *cache.Cache
	Graph    *cache.Graph
	Clock    core.Clock
	Logger   core.Logger
}

func NewCoordinator(deps Deps) *Coordinator {
	c := &Coordinator{
		repo:     deps.Repo,
		loader:   deps.Loader,
		volatile: deps.Volatile,
		graph:    deps.Graph,
		now:      deps.Clock,
		logger:   deps.Logger,
	}
	if c.graph == nil {
		c.graph = cache.DefaultGraph()
	}
	if c.now == nil {
		c.now = core.UTCNow
	}
	if c.logger == nil {
		c.logger = core.NopLogger{}
	}
	return c
}

func (c *Coordinator) persistent() *cache.Cache { return c.loader.Cache() }

func (c *Coordinator) authoritative(userID string) rtcache.Fallback[activity.Completions] {
	return func(ctx context.Context) (activity.Completions, error) {
		return c.repo.QueryCompletions(ctx, userID)
	}
}

// Completions returns the user's completion blob, from the local cache when possible.
func (c *Coordinator) Completions(ctx context.Context, userID string) (activity.Completions, error) {
	comps, err := rtcache.Load(ctx, c.loader, cache.UserCompletions(userID), cache.KindUserCompletions,
		rtcache.UserCompletions(userID), c.authoritative(userID))
	if err != nil {
		return nil, err
	}
	return c.overlay(userID, comps), nil
}

// FreshCompletions re-reads the authoritative blob, bypassing the local cache, and re-caches it
// with the records marked locally that the authoritative copy does not reflect yet.
func (c *Coordinator) FreshCompletions(ctx context.Context, userID string) (activity.Completions, error) {
	comps, err := rtcache.LoadFresh(ctx, c.loader, cache.UserCompletions(userID), cache.KindUserCompletions,
		rtcache.UserCompletions(userID), c.authoritative(userID))
	if err != nil {
		return nil, err
	}
	merged := c.overlay(userID, comps)
	c.persistent().Set(cache.UserCompletions(userID), merged, cache.KindUserCompletions)
	return merged, nil
}

// overlay applies local marks newer than their authoritative counterpart. Marks that the
// authoritative blob caught up with are dropped.
func (c *Coordinator) overlay(userID string, comps activity.Completions) activity.Completions {
	var local activity.Completions
	if !c.volatile.Get(cache.UserLocalCompletions(userID), &local) || len(local) == 0 {
		return comps
	}

	merged := comps.Clone()
	pending := make(activity.Completions)
	var marks, kept int
	for t, recs := range local {
		for id, mark := range recs {
			marks++
			rec, found := comps.Get(t, id)
			if found && !rec.LastUpdated.Before(mark.LastUpdated) {
				continue
			}
			merged.Set(t, id, mark)
			pending.Set(t, id, mark)
			kept++
		}
	}
	switch {
	case kept == 0:
		c.volatile.Clear(cache.UserLocalCompletions(userID))
	case kept != marks:
		c.volatile.Set(cache.UserLocalCompletions(userID), pending, cache.KindFlag)
	}
	return merged
}

// IsCompleted always reads the authoritative blob fresh before answering.
func (c *Coordinator) IsCompleted(ctx context.Context, userID string, t activity.Type, id string) (activity.CompletionRecord, bool, error) {
	comps, err := c.FreshCompletions(ctx, userID)
	if err != nil {
		return activity.CompletionRecord{}, false, errors.Wrap(err, "checking completion")
	}
	rec, found := comps.Get(t, id)
	return rec, found, nil
}

// Eligibility applies the resubmission policy of t to a fresh completion record.
func (c *Coordinator) Eligibility(ctx context.Context, userID string, t activity.Type, id string) (Eligibility, error) {
	rec, found, err := c.IsCompleted(ctx, userID, t, id)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligible(t, rec, found), nil
}

func (c *Coordinator) CanSubmitTask(ctx context.Context, userID, taskID string) (Eligibility, error) {
	return c.Eligibility(ctx, userID, activity.TypeTask, taskID)
}

func (c *Coordinator) CanStartQuiz(ctx context.Context, userID, quizID string) (Eligibility, error) {
	return c.Eligibility(ctx, userID, activity.TypeQuiz, quizID)
}

func (c *Coordinator) CanSubmitForm(ctx context.Context, userID, formID string) (Eligibility, error) {
	return c.Eligibility(ctx, userID, activity.TypeForm, formID)
}

// MarkCompletedLocally records rec as the user's completion of (t, id), stamped with the current time,
// so a second attempt in the same session is blocked before the authoritative blob catches up.
func (c *Coordinator) MarkCompletedLocally(userID string, t activity.Type, id string, rec activity.CompletionRecord) activity.CompletionRecord {
	now := c.now()
	rec.LastUpdated = now
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = now
	}

	var local activity.Completions
	if !c.volatile.Get(cache.UserLocalCompletions(userID), &local) || local == nil {
		local = make(activity.Completions)
	}
	local.Set(t, id, rec)
	c.volatile.Set(cache.UserLocalCompletions(userID), local, cache.KindFlag)

	// a missing blob stays missing: the next read loads it and applies the overlay
	var comps activity.Completions
	if c.persistent().Get(cache.UserCompletions(userID), &comps) {
		if comps == nil {
			comps = make(activity.Completions)
		}
		comps.Set(t, id, rec)
		c.persistent().Set(cache.UserCompletions(userID), comps, cache.KindUserCompletions)
	}
	return rec
}

// ClearCompletionCaches drops every cached value derived from the user's completions.
// It must follow every state changing action.
func (c *Coordinator) ClearCompletionCaches(userID string, t activity.Type, id string) {
	c.graph.Invalidate(cache.EventCompletionMarked, cache.Params{
		UserID:       userID,
		ActivityType: string(t),
		ActivityID:   id,
	}, c.persistent(), c.volatile)
}

// Activities returns every activity of type t, all types when t is empty.
func (c *Coordinator) Activities(ctx context.Context, t activity.Type) ([]activity.Activity, error) {
	var acts []activity.Activity
	if c.persistent().Get(cache.ActivityList(string(t)), &acts) {
		return acts, nil
	}
	acts, err := c.repo.QueryActivities(ctx, t)
	if err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	c.persistent().Set(cache.ActivityList(string(t)), acts, cache.KindActivityList)
	return acts, nil
}

// PendingActivities is the user's PendingActivityList, of type t or merged across types when t is empty.
func (c *Coordinator) PendingActivities(ctx context.Context, userID string, t activity.Type) ([]activity.Activity, error) {
	return c.list(ctx, userID, t, ListPending)
}

func (c *Coordinator) CompletedActivities(ctx context.Context, userID string, t activity.Type) ([]activity.Activity, error) {
	return c.list(ctx, userID, t, ListCompleted)
}

func (c *Coordinator) list(ctx context.Context, userID string, t activity.Type, lt ListType) ([]activity.Activity, error) {
	key := cache.UserPending(userID, string(t))
	if lt == ListCompleted {
		key = cache.UserCompleted(userID, string(t))
	}
	version := c.version(userID)

	var cached cachedList
	if c.persistent().Get(key, &cached) && cached.Version == version {
		return cached.Items, nil
	}

	acts, err := c.Activities(ctx, t)
	if err != nil {
		return nil, err
	}
	comps, err := c.Completions(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := FilterActivities(acts, comps, lt)
	if lt == ListPending {
		SortPending(items)
	} else {
		SortCompleted(items, comps)
	}
	c.persistent().Set(key, cachedList{Version: version, Items: items}, cache.KindUserAggregate)
	return items, nil
}

// version returns the token that per-user lists must carry to be served from cache.
// Invalidation drops the token, so lists built before it are rebuilt.
func (c *Coordinator) version(userID string) string {
	var v string
	if c.persistent().Get(cache.UserVersion(userID), &v) && v != "" {
		return v
	}
	v = uuid.NewString()
	c.persistent().Set(cache.UserVersion(userID), v, cache.KindVersion)
	return v
}
