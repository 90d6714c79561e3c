// Package dashboard serves the precomputed aggregates: admin stats, recent activity,
// leaderboard and attendee directory.
package dashboard

import (
	"context"
	"encoding/json"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/rtcache"
)

// RecentLimit is how many submissions the durable fallback of RecentActivity returns.
const RecentLimit = 20

type Service struct {
	loader *rtcache.Loader
	repo   activity.Repository
}

func NewService(loader *rtcache.Loader, repo activity.Repository) *Service {
	return &Service{loader: loader, repo: repo}
}

// aggregate reads a value the aggregation jobs own; without a fallback it is
// rtcache.ErrNotFound until they have written it.
func (svc *Service) aggregate(ctx context.Context, key cache.Key, kind cache.Kind, path rtcache.Path, fresh bool, fallback rtcache.Fallback[json.RawMessage]) (json.RawMessage, error) {
	if fresh {
		return rtcache.LoadFresh(ctx, svc.loader, key, kind, path, fallback)
	}
	return rtcache.Load(ctx, svc.loader, key, kind, path, fallback)
}

func (svc *Service) Stats(ctx context.Context, fresh bool) (json.RawMessage, error) {
	return svc.aggregate(ctx, cache.AdminStats(), cache.KindAdminList, rtcache.AdminStats(), fresh, nil)
}

func (svc *Service) Leaderboard(ctx context.Context, fresh bool) (json.RawMessage, error) {
	return svc.aggregate(ctx, cache.Leaderboard(), cache.KindDirectory, rtcache.Leaderboard(), fresh, nil)
}

func (svc *Service) Directory(ctx context.Context, fresh bool) (json.RawMessage, error) {
	return svc.aggregate(ctx, cache.Directory(), cache.KindDirectory, rtcache.Directory(), fresh, nil)
}

// RecentActivity falls back to the latest submissions when the aggregate is missing.
func (svc *Service) RecentActivity(ctx context.Context, fresh bool) (json.RawMessage, error) {
	return svc.aggregate(ctx, cache.AdminRecentActivity(), cache.KindAdminList, rtcache.AdminRecentActivity(), fresh,
		func(ctx context.Context) (json.RawMessage, error) {
			subs, err := svc.repo.QuerySubmissions(ctx, activity.SubmissionFilter{
				Ordering: []core.DBOrdering{{Field: "submitted_at"}},
			})
			if err != nil {
				return nil, err
			}
			if len(subs) > RecentLimit {
				subs = subs[:RecentLimit]
			}
			summaries := make([]activity.SubmissionSummary, len(subs))
			for i, s := range subs {
				summaries[i] = s.Summary()
			}
			return json.Marshal(summaries)
		})
}
