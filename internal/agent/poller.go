package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/metrics"
	"github.com/raphaelgruber/memory-agent/internal/models"
)

// MinErrorBackoff is the shortest wait after a failed iteration.
const MinErrorBackoff = 2 * time.Second

// RecordSource lists records created after a watermark. *memclient.Client satisfies it.
type RecordSource interface {
	FetchSince(ctx context.Context, since float64, limit int) ([]models.Record, error)
}

// State is the poller lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Source     RecordSource
	Dispatcher *Dispatcher
	Store      *checkpoint.Store
	Interval   time.Duration
	PageSize   int
	MinBackoff time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	// Wait blocks for d or until ctx is done. Defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// Poller fetches new records and feeds them to the dispatcher one at a time.
type Poller struct {
	source     RecordSource
	dispatcher *Dispatcher
	store      *checkpoint.Store
	interval   time.Duration
	pageSize   int
	minBackoff time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector
	wait       func(ctx context.Context, d time.Duration) error
	state      atomic.Int32
}

// NewPoller creates a poller in the running state.
func NewPoller(opts PollerOptions) *Poller {
	p := &Poller{
		source:     opts.Source,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		interval:   opts.Interval,
		pageSize:   opts.PageSize,
		minBackoff: opts.MinBackoff,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		wait:       opts.Wait,
	}
	if p.interval <= 0 {
		p.interval = 3 * time.Second
	}
	if p.pageSize <= 0 {
		p.pageSize = 100
	}
	if p.minBackoff <= 0 {
		p.minBackoff = MinErrorBackoff
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.wait == nil {
		p.wait = waitWithContext
	}
	return p
}

// State reports whether the poller is still running.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Run polls until ctx is cancelled. Errors never end the loop: a failed
// iteration is logged and retried after max(interval, MinBackoff).
// Cancellation is only observed between records and while waiting.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("agent started",
		"watermark", p.store.Watermark(),
		"interval", p.interval,
		"page_size", p.pageSize,
	)
	defer func() {
		p.state.Store(int32(StateStopping))
		p.logger.Info("agent stopped", p.metrics.Snapshot().LogAttrs()...)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := p.PollOnce(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			p.logger.Error("poll iteration failed", "error", err)
			delay = max(p.interval, p.minBackoff)
		case n == 0:
			delay = p.interval
		default:
			continue
		}

		if err := p.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// PollOnce runs a single iteration: fetch one page after the watermark and
// dispatch each record, persisting the checkpoint after every record.
// It returns the number of records handled. In-flight calls are not
// cancelled by ctx; a cancelled ctx stops the batch before the next record.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	callCtx := context.WithoutCancel(ctx)

	start := time.Now()
	records, err := p.source.FetchSince(callCtx, p.store.Watermark(), p.pageSize)
	p.metrics.Since(metrics.OpFetch, start)
	if err != nil {
		p.metrics.Inc(metrics.CountFetchErrors)
		return 0, fmt.Errorf("fetch records: %w", err)
	}
	if len(records) > 0 {
		p.logger.Debug("fetched records", "count", len(records))
	}

	handled := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			p.state.Store(int32(StateStopping))
			break
		}
		p.dispatcher.Dispatch(callCtx, rec)
		handled++
		p.persist()
	}
	return handled, nil
}

func (p *Poller) persist() {
	start := time.Now()
	err := p.store.Persist()
	p.metrics.Since(metrics.OpPersist, start)
	if err != nil {
		p.metrics.Inc(metrics.CountPersistErrors)
		p.logger.Error("checkpoint persist failed", "path", p.store.Path(), "error", err)
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
