package completion

import "github.com/trezcool/engage/core/activity"

// Eligibility tells whether an action is allowed and, when it is not, why.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

var (
	taskPending  = Eligibility{Reason: "your submission for this task is pending review"}
	taskApproved = Eligibility{Reason: "this task has already been approved"}
	taskDone     = Eligibility{Reason: "this task has already been submitted"}
	quizDone     = Eligibility{Reason: "you have already completed this quiz"}
	formDone     = Eligibility{Reason: "you have already submitted this form"}
	allowed      = Eligibility{Allowed: true}
)

// TaskEligibility: only a rejected submission (or none) lets a task be submitted again.
func TaskEligibility(rec activity.CompletionRecord, found bool) Eligibility {
	if !found {
		return allowed
	}
	if rec.Status == nil {
		if rec.Completed {
			return taskDone
		}
		return allowed
	}
	switch *rec.Status {
	case activity.StatusPending:
		return taskPending
	case activity.StatusApproved:
		return taskApproved
	}
	return allowed
}

// QuizEligibility: a quiz can be started once; any record blocks it whatever its fields.
func QuizEligibility(_ activity.CompletionRecord, found bool) Eligibility {
	if found {
		return quizDone
	}
	return allowed
}

// FormEligibility: a form can be submitted once; any record blocks it whatever its fields.
func FormEligibility(_ activity.CompletionRecord, found bool) Eligibility {
	if found {
		return formDone
	}
	return allowed
}

// Eligible dispatches on the activity type.
func Eligible(t activity.Type, rec activity.CompletionRecord, found bool) Eligibility {
	switch t {
	case activity.TypeTask:
		return TaskEligibility(rec, found)
	case activity.TypeQuiz:
		return QuizEligibility(rec, found)
	case activity.TypeForm:
		return FormEligibility(rec, found)
	}
	return Eligibility{Reason: "unknown activity type"}
}
