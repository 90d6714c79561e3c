package submission

import (
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/completion"
)

// CanApproveSubmission allows approving anything not approved yet, reversing a rejection included.
func CanApproveSubmission(sub activity.Submission) completion.Eligibility {
	if sub.ActivityType != activity.TypeTask {
		return completion.Eligibility{Reason: "only task submissions are reviewed"}
	}
	if sub.Status == activity.StatusApproved {
		return completion.Eligibility{Reason: "this submission is already approved"}
	}
	return completion.Eligibility{Allowed: true}
}

// CanRejectSubmission allows rejecting anything not rejected yet, reversing an approval included.
func CanRejectSubmission(sub activity.Submission) completion.Eligibility {
	if sub.ActivityType != activity.TypeTask {
		return completion.Eligibility{Reason: "only task submissions are reviewed"}
	}
	if sub.Status == activity.StatusRejected {
		return completion.Eligibility{Reason: "this submission is already rejected"}
	}
	return completion.Eligibility{Allowed: true}
}

// DeniedError is returned when a policy refuses an action; Reason is user facing.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

func deny(e completion.Eligibility) error {
	if e.Allowed {
		return nil
	}
	return &DeniedError{Reason: e.Reason}
}
