// Package agent drives the poll, classify, and dispatch cycle.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/boundary"
	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/classify"
	"github.com/raphaelgruber/memory-agent/internal/memclient"
	"github.com/raphaelgruber/memory-agent/internal/metrics"
	"github.com/raphaelgruber/memory-agent/internal/models"
)

// Executor runs the side effect for one category.
type Executor interface {
	Category() models.Category
	Execute(ctx context.Context, rec models.Record) (models.Outcome, error)
}

// Reporter receives action outcomes. *memclient.Client satisfies it.
type Reporter interface {
	LogAction(ctx context.Context, entry memclient.ActionLog) error
}

// Dispatcher runs the matching executors for a record exactly once and
// records it in the checkpoint store.
type Dispatcher struct {
	store     *checkpoint.Store
	executors map[models.Category]Executor
	reporter  Reporter
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewDispatcher creates a dispatcher. A nil reporter disables outcome logging.
func NewDispatcher(store *checkpoint.Store, reporter Reporter, logger *slog.Logger, m *metrics.Collector, executors ...Executor) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byCategory := make(map[models.Category]Executor, len(executors))
	for _, e := range executors {
		byCategory[e.Category()] = e
	}
	return &Dispatcher{
		store:     store,
		executors: byCategory,
		reporter:  reporter,
		logger:    logger,
		metrics:   m,
	}
}

// Dispatch handles one record and returns the outcomes produced for it.
// A record whose ID was already seen only advances the watermark.
// The store is updated in memory; persisting is left to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.Record) []models.Outcome {
	start := time.Now()
	defer d.metrics.Since(metrics.OpDispatch, start)

	createdAt := rec.CreatedAtOr(d.store.Watermark())
	id, hasID := rec.Identifier()
	if hasID && d.store.HasSeen(id) {
		d.logger.Debug("skipping seen record", "memory_id", id)
		d.metrics.Inc(metrics.CountDuplicates)
		d.store.Advance(createdAt)
		return nil
	}
	d.metrics.Inc(metrics.CountRecords)

	categories := classify.Classify(rec)
	outcomes := make([]models.Outcome, 0, len(categories))
	for _, cat := range categories {
		outcome := d.execute(ctx, cat, rec)
		d.logger.Info("action completed",
			"memory_id", id,
			"action", cat.ActionName(),
			"status", outcome.Status,
		)
		d.report(ctx, rec, outcome)
		outcomes = append(outcomes, outcome)
	}

	d.store.RecordSeen(id, createdAt)
	return outcomes
}

func (d *Dispatcher) execute(ctx context.Context, cat models.Category, rec models.Record) (outcome models.Outcome) {
	exec, ok := d.executors[cat]
	if !ok {
		return models.FailedOutcome(cat, fmt.Errorf("no executor for %s", cat))
	}

	start := time.Now()
	defer d.metrics.Since(actionOp(cat), start)
	defer func() {
		if r := recover(); r != nil {
			outcome = models.FailedOutcome(cat, fmt.Errorf("executor panicked: %v", r))
		}
		if outcome.Status == models.StatusFailed {
			d.logger.Error("action failed", "action", cat.ActionName(), "detail", outcome.Detail)
		}
	}()

	outcome, err := exec.Execute(ctx, rec)
	if err != nil {
		return models.FailedOutcome(cat, err)
	}
	return outcome
}

func (d *Dispatcher) report(ctx context.Context, rec models.Record, outcome models.Outcome) {
	if d.reporter == nil {
		return
	}
	start := time.Now()
	err := boundary.Run(d.logger, "action log", func() error {
		return d.reporter.LogAction(ctx, memclient.NewActionLog(rec, outcome))
	}, "action", outcome.Category.ActionName())
	d.metrics.Since(metrics.OpReport, start)
	if err != nil {
		d.metrics.Inc(metrics.CountReportErrors)
	}
}

func actionOp(cat models.Category) string {
	switch cat {
	case models.CategoryScheduling:
		return metrics.OpCalendar
	case models.CategoryGoal:
		return metrics.OpGoalCoaching
	default:
		return string(cat)
	}
}
