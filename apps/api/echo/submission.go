package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/reconcile"
	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/core/submission"
)

type submissionApi struct {
	svc     *submission.Service
	watcher *reconcile.Watcher
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *submission.Service, watcher *reconcile.Watcher) {
	api := submissionApi{
		svc:     svc,
		watcher: watcher,
	}

	sg := g.Group("/admin/submissions", jwt, adminMiddleware())
	sg.GET("", api.query)
	sg.POST("/:id/approve", api.approve)
	sg.POST("/:id/reject", api.reject)
}

// Handlers

func (api *submissionApi) query(ctx echo.Context) error {
	var q SubmissionQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}

	// our own read must not bounce back as a live reload
	if api.watcher != nil {
		path := rtcache.SubmissionsWithStatus(string(q.Status))
		api.watcher.BeginLoad(path)
		defer api.watcher.EndLoad(path)
	}
	subs, err := api.svc.AdminSubmissions(ctx.Request().Context(), q.Status, q.Fresh)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	api.svc.Views().ReplaceAdmin(q.Status, subs)
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) approve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.HandleApprove(ctx.Request().Context(), actor.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) reject(ctx echo.Context) error {
	var data activity.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.HandleReject(ctx.Request().Context(), actor.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
