package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/completion"
)

const (
	listParam   = "list"
	typeParam   = "type"
	statusParam = "status"
	freshParam  = "fresh"
)

func invalidParam(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}

// ActivityQuery is bound from `?list=pending|completed&type=task|quiz|form`.
type ActivityQuery struct {
	List completion.ListType
	Type activity.Type
}

func (q *ActivityQuery) Bind(ctx echo.Context) error {
	q.List = completion.ListPending
	if val := ctx.QueryParam(listParam); val != "" {
		q.List = completion.ListType(val)
	}
	if !q.List.Valid() {
		return invalidParam(listParam, "must be one of: pending, completed")
	}
	q.Type = activity.Type(ctx.QueryParam(typeParam))
	if q.Type != "" && !q.Type.Valid() {
		return invalidParam(typeParam, "must be one of: task, quiz, form")
	}
	return nil
}

// SubmissionQuery is bound from `?status=pending|approved|rejected&fresh=true`.
type SubmissionQuery struct {
	Status activity.Status
	Fresh  bool
}

func (q *SubmissionQuery) Bind(ctx echo.Context) error {
	q.Status = activity.StatusPending
	if val := ctx.QueryParam(statusParam); val != "" {
		q.Status = activity.Status(val)
	}
	if !q.Status.Valid() {
		return invalidParam(statusParam, "must be one of: pending, approved, rejected")
	}
	q.Fresh = freshQuery(ctx)
	return nil
}

func freshQuery(ctx echo.Context) bool {
	fresh, _ := strconv.ParseBool(ctx.QueryParam(freshParam))
	return fresh
}
