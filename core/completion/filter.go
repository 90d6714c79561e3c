package completion

import (
	"sort"

	"github.com/trezcool/engage/core/activity"
)

type ListType string

const (
	ListPending   ListType = "pending"
	ListCompleted ListType = "completed"
)

func (lt ListType) Valid() bool {
	return lt == ListPending || lt == ListCompleted
}

// FilterActivities keeps the activities belonging to the pending or completed view of comps.
// A task with no record or a rejected one is pending; a quiz or form with any record is completed.
func FilterActivities(activities []activity.Activity, comps activity.Completions, lt ListType) []activity.Activity {
	res := make([]activity.Activity, 0, len(activities))
	for _, a := range activities {
		rec, found := comps.Get(a.Type, a.ID)
		if Eligible(a.Type, rec, found).Allowed == (lt == ListPending) {
			res = append(res, a)
		}
	}
	return res
}

// SortPending orders by due date, soonest first, activities without one last, then newest first.
func SortPending(activities []activity.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		switch {
		case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
			return a.DueAt.Before(*b.DueAt)
		case a.DueAt != nil && b.DueAt == nil:
			return true
		case a.DueAt == nil && b.DueAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// SortCompleted orders by submission time, latest first.
func SortCompleted(activities []activity.Activity, comps activity.Completions) {
	sort.SliceStable(activities, func(i, j int) bool {
		ri, _ := comps.Get(activities[i].Type, activities[i].ID)
		rj, _ := comps.Get(activities[j].Type, activities[j].ID)
		return ri.SubmittedAt.After(rj.SubmittedAt)
	})
}
