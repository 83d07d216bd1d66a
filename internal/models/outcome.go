package models

// Category is an action category produced by the classifier.
type Category string

const (
	CategoryScheduling Category = "scheduling-intent"
	CategoryGoal       Category = "goal-intent"
)

// ActionName returns the action type reported upstream for the category.
func (c Category) ActionName() string {
	switch c {
	case CategoryScheduling:
		return "meeting_to_google_calendar"
	case CategoryGoal:
		return "goal_coaching_suggestions"
	default:
		return "unknown_action"
	}
}

// Status is the result of running one action for one record.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome is produced per record per matching category.
// Outcomes are reported upstream and never persisted locally.
type Outcome struct {
	Category Category
	Status   Status
	Detail   map[string]any
}

// FailedOutcome builds a failed outcome carrying the error message.
func FailedOutcome(category Category, err error) Outcome {
	return Outcome{
		Category: category,
		Status:   StatusFailed,
		Detail:   map[string]any{"error": err.Error()},
	}
}

// Source records which path of a content strategy produced a result.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// ContentResult is the output of a content strategy.
type ContentResult struct {
	HasContent bool
	Payload    map[string]any
	Source     Source
}
