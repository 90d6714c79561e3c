package echoapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core/dashboard"
)

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *dashboard.Service) {
	ag := g.Group("", jwt)
	ag.GET("/leaderboard", serveAggregate(svc.Leaderboard, "leaderboard"))
	ag.GET("/directory", serveAggregate(svc.Directory, "directory"))
	ag.GET("/stats", serveAggregate(svc.Stats, "stats"), adminMiddleware())
	ag.GET("/admin/recent-activity", serveAggregate(svc.RecentActivity, "recent activity"), adminMiddleware())
}

// serveAggregate writes the aggregate returned by read as is.
func serveAggregate(read func(ctx context.Context, fresh bool) (json.RawMessage, error), what string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		raw, err := read(ctx.Request().Context(), freshQuery(ctx))
		if err != nil {
			return errors.Wrapf(err, "reading %s", what)
		}
		return ctx.JSONBlob(http.StatusOK, raw)
	}
}
