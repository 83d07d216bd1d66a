package strategy

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/memory-agent/internal/classify"
	"github.com/raphaelgruber/memory-agent/internal/models"
)

var fallbackWeeklyPlan = []string{
	"Week 1: baseline assessment and technique focus",
	"Week 2: repetition drills and consistency",
	"Week 3: simulate real conditions and track outcomes",
	"Week 4: review metrics and set next target",
}

// FallbackGoalPlan builds a deterministic plan from the record alone.
func FallbackGoalPlan(rec models.Record) GoalPlan {
	focus := classify.ExtractGoalFocus(rec.RawText)
	if focus == classify.DefaultGoalFocus {
		focus = classify.ExtractGoalFocus(rec.Summary)
	}

	suggestions := []string{
		fmt.Sprintf("Define a 4-week target for %s with a measurable result.", focus),
		fmt.Sprintf("Schedule 3 focused practice sessions each week for %s.", focus),
		"After each session, record one thing that improved and one thing to fix.",
		"Review progress weekly and adjust drills based on your weakest area.",
	}
	if len(rec.Tasks) > 0 {
		tasks := rec.Tasks
		if len(tasks) > 3 {
			tasks = tasks[:3]
		}
		suggestions = append(suggestions, fmt.Sprintf("Tie this plan to existing tasks: %s.", strings.Join(tasks, ", ")))
	}

	goal := focus
	if focus == classify.DefaultGoalFocus {
		goal = rec.Summary
	}

	return GoalPlan{
		HasGoal:     true,
		Goal:        goal,
		Suggestions: suggestions,
		WeeklyPlan:  append([]string(nil), fallbackWeeklyPlan...),
		FirstStep:   fmt.Sprintf("Block your first 45-minute practice session for %s in your calendar today.", focus),
	}
}
