package pgtree

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/engage/core/rtcache"
)

func newTestTree(docs map[rtcache.Path]json.RawMessage, err *error) *Tree {
	return &Tree{
		subs: make(map[int]subscription),
		fetch: func(_ context.Context, path rtcache.Path) (map[rtcache.Path]json.RawMessage, error) {
			if err != nil && *err != nil {
				return nil, *err
			}
			found := make(map[rtcache.Path]json.RawMessage)
			for p, raw := range docs {
				if path.Contains(p) || p.Contains(path) {
					found[p] = raw
				}
			}
			return found, nil
		},
	}
}

func TestTree_Get(t *testing.T) {
	pending := rtcache.SubmissionsWithStatus("pending")
	docs := make(map[rtcache.Path]json.RawMessage)
	docs[rtcache.SubmissionIndex()] = json.RawMessage(`{"byStatus":{"pending":{"s1":true}}}`)
	docs[pending] = json.RawMessage(`{"s1":true,"s2":true}`)
	docs[pending.Child("s3")] = json.RawMessage(`true`)
	docs[rtcache.AdminStats()] = json.RawMessage(`{"attendees":12}`)
	tree := newTestTree(docs, nil)

	snap, err := tree.Get(context.Background(), pending)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, 3, snap.Count())

	snap, err = tree.Get(context.Background(), rtcache.Leaderboard())
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestTree_Dispatch(t *testing.T) {
	docs := map[rtcache.Path]json.RawMessage{
		rtcache.SubmissionsWithStatus("pending"): json.RawMessage(`{"s1":true}`),
	}
	var fetchErr error
	tree := newTestTree(docs, &fetchErr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var counts []int
	var errs []error
	require.NoError(t, tree.Subscribe(ctx, rtcache.SubmissionsWithStatus("pending"), func(s rtcache.Snapshot, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		counts = append(counts, s.Count())
	}))
	assert.Equal(t, []int{1}, counts, "current value is delivered on subscribe")

	docs[rtcache.SubmissionsWithStatus("pending")] = json.RawMessage(`{"s1":true,"s2":true}`)
	tree.dispatch(ctx, rtcache.SubmissionsWithStatus("pending").Child("s2"))
	tree.dispatch(ctx, rtcache.AdminStats())
	tree.dispatch(ctx, "")
	assert.Equal(t, []int{1, 2, 2}, counts)

	fetchErr = errors.New("connection reset")
	tree.dispatch(ctx, rtcache.SubmissionIndex())
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "connection reset")
}
