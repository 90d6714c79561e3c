package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/completion"
	"github.com/trezcool/engage/core/submission"
)

type activityApi struct {
	coord *completion.Coordinator
	svc   *submission.Service
}

func registerActivityAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	coord *completion.Coordinator,
	svc *submission.Service,
) {
	api := activityApi{
		coord: coord,
		svc:   svc,
	}

	ag := g.Group("", jwt)
	ag.GET("/activities", api.query)
	ag.GET("/activities/:type/:id/eligibility", api.eligibility)
	ag.POST("/tasks/:id/submissions", api.submitTask)
	ag.POST("/quizzes/:id/attempts", api.startQuiz)
	ag.POST("/forms/:id/submissions", api.submitForm)
}

// Handlers

func (api *activityApi) query(ctx echo.Context) error {
	var q ActivityQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	c := ctx.Request().Context()
	if q.List == completion.ListCompleted {
		acts, err := api.coord.CompletedActivities(c, actor.ID, q.Type)
		if err != nil {
			return errors.Wrap(err, "querying completed activities")
		}
		return ctx.JSON(http.StatusOK, acts)
	}

	acts, err := api.coord.PendingActivities(c, actor.ID, q.Type)
	if err != nil {
		return errors.Wrap(err, "querying pending activities")
	}
	if q.Type == "" {
		// the live view mirrors the full pending list
		api.svc.Views().ReplacePending(actor.ID, acts)
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *activityApi) eligibility(ctx echo.Context) error {
	t := activity.Type(ctx.Param("type"))
	if !t.Valid() {
		return errHttpNotFound
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	elig, err := api.coord.Eligibility(ctx.Request().Context(), actor.ID, t, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	return ctx.JSON(http.StatusOK, elig)
}

func (api *activityApi) submit(ctx echo.Context, t activity.Type) error {
	var data activity.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	c, id := ctx.Request().Context(), ctx.Param("id")
	var sub activity.Submission
	switch t {
	case activity.TypeTask:
		sub, err = api.svc.SubmitTask(c, actor.ID, id, data)
	case activity.TypeQuiz:
		sub, err = api.svc.StartQuiz(c, actor.ID, id, data)
	default:
		sub, err = api.svc.SubmitForm(c, actor.ID, id, data)
	}
	if err != nil {
		return errors.Wrapf(err, "submitting %s", t)
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *activityApi) submitTask(ctx echo.Context) error { return api.submit(ctx, activity.TypeTask) }
func (api *activityApi) startQuiz(ctx echo.Context) error  { return api.submit(ctx, activity.TypeQuiz) }
func (api *activityApi) submitForm(ctx echo.Context) error { return api.submit(ctx, activity.TypeForm) }
