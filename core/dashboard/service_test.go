package dashboard_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/dashboard"
	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/storage/database/dummy"
	"github.com/trezcool/engage/storage/tree/memtree"
)

func setup(t *testing.T) (*dashboard.Service, *memtree.Tree, activity.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewActivityRepository(db)
	tree := memtree.New()
	loader := rtcache.NewLoader(tree, cache.New("persistent", cache.NewMemoryStore()), nil)
	return dashboard.NewService(loader, repo), tree, repo
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	svc, tree, _ := setup(t)

	_, err := svc.Stats(ctx, false)
	assert.Equal(t, rtcache.ErrNotFound, errors.Cause(err))

	require.NoError(t, tree.Set(rtcache.AdminStats(), map[string]int{"attendees": 40, "pending": 3}))
	got, err := svc.Stats(ctx, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":40,"pending":3}`, string(got))

	// served from the local cache until asked fresh
	require.NoError(t, tree.Set(rtcache.AdminStats().Child("pending"), 2))
	got, err = svc.Stats(ctx, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":40,"pending":3}`, string(got))

	got, err = svc.Stats(ctx, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attendees":40,"pending":2}`, string(got))
}

func TestService_RecentActivityFallback(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := setup(t)
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < dashboard.RecentLimit+5; i++ {
		_, err := repo.CreateSubmission(ctx, activity.Submission{
			UserID:       "u1",
			ActivityType: activity.TypeForm,
			ActivityID:   "F",
			Status:       activity.StatusApproved,
			SubmittedAt:  t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	raw, err := svc.RecentActivity(ctx, false)
	require.NoError(t, err)
	var got []activity.SubmissionSummary
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, dashboard.RecentLimit)
	assert.True(t, got[0].SubmittedAt.After(got[1].SubmittedAt))
}
