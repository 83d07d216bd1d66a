package actions

import (
	"context"

	"github.com/raphaelgruber/memory-agent/internal/models"
)

// ContentStrategy produces content for a record. *strategy.GoalCoach satisfies it.
type ContentStrategy interface {
	Generate(ctx context.Context, rec models.Record) models.ContentResult
}

// Goal reports coaching content for goal-intent records.
type Goal struct {
	strategy ContentStrategy
}

// NewGoal creates a goal coaching executor.
func NewGoal(strategy ContentStrategy) *Goal {
	return &Goal{strategy: strategy}
}

// Category implements the dispatcher's executor contract.
func (g *Goal) Category() models.Category {
	return models.CategoryGoal
}

// Execute runs the strategy. A result without content is reported as skipped.
func (g *Goal) Execute(ctx context.Context, rec models.Record) (models.Outcome, error) {
	res := g.strategy.Generate(ctx, rec)
	status := models.StatusSuccess
	if !res.HasContent {
		status = models.StatusSkipped
	}
	return models.Outcome{
		Category: models.CategoryGoal,
		Status:   status,
		Detail:   res.Payload,
	}, nil
}
