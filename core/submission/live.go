package submission

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/reconcile"
	"github.com/trezcool/engage/core/rtcache"
)

// ReloadAdmin refetches the admin list for status, bypassing the local cache, and renders it.
func (svc *Service) ReloadAdmin(status activity.Status) reconcile.ReloadFunc {
	return func(ctx context.Context) error {
		subs, err := svc.AdminSubmissions(ctx, status, true)
		if err != nil {
			return err
		}
		svc.views.ReplaceAdmin(status, subs)
		return nil
	}
}

// WatchAdminLists keeps every admin submission list live until ctx is done.
func (svc *Service) WatchAdminLists(ctx context.Context, w *reconcile.Watcher) error {
	for _, status := range activity.AllStatuses {
		if err := w.Watch(ctx, rtcache.SubmissionsWithStatus(string(status)), svc.ReloadAdmin(status)); err != nil {
			return errors.Wrapf(err, "watching %s submissions", status)
		}
	}
	return nil
}
