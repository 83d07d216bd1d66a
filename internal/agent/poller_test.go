package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/metrics"
	"github.com/raphaelgruber/memory-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoller(store *checkpoint.Store, src RecordSource, wait func(context.Context, time.Duration) error, execs ...Executor) *Poller {
	m := metrics.NewCollector()
	return NewPoller(PollerOptions{
		Source:     src,
		Dispatcher: NewDispatcher(store, nil, discardLogger(), m, execs...),
		Store:      store,
		Interval:   10 * time.Millisecond,
		PageSize:   10,
		Logger:     discardLogger(),
		Metrics:    m,
		Wait:       wait,
	})
}

func TestPollOncePersistsEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := newStore(t, path)
	cal := &fakeExecutor{category: models.CategoryScheduling}
	src := &fakeSource{records: []models.Record{
		record("a", 100, "meeting one"),
		record("b", 200, "meeting two"),
	}}
	p := newTestPoller(store, src, nil, cal)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, cal.callCount())

	st, ok, err := checkpoint.Inspect(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(200), st.Watermark)
	assert.Equal(t, []string{"a", "b"}, st.SeenIDs)

	n, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, cal.callCount())
}

func TestPollOnceFetchError(t *testing.T) {
	store := newStore(t, "")
	src := &fakeSource{errs: []error{errBoom}}
	p := newTestPoller(store, src, nil)

	_, err := p.PollOnce(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(1), p.metrics.Snapshot().Counters[metrics.CountFetchErrors])
}

func TestPollOnceStopsBetweenRecordsAndResumes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	records := []models.Record{
		record("a", 100, "meeting one"),
		record("b", 200, "meeting two"),
		record("c", 300, "meeting three"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &fakeExecutor{category: models.CategoryScheduling, onCall: func(models.Record) { cancel() }}
	p := newTestPoller(newStore(t, path), &fakeSource{records: records}, nil, first)

	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"meeting one"}, first.calls)
	assert.Equal(t, StateStopping, p.State())

	st, _, err := checkpoint.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, float64(100), st.Watermark)

	// A restarted agent picks up where the first one stopped.
	second := &fakeExecutor{category: models.CategoryScheduling}
	restarted := newTestPoller(newStore(t, path), &fakeSource{records: records}, nil, second)
	n, err = restarted.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"meeting two", "meeting three"}, second.calls)
}

func TestPollOnceReplayedBatchHasNoDuplicateSideEffects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := newStore(t, path)
	store.RecordSeen("a", 50)
	require.NoError(t, store.Persist())

	// "a" arrives again with a later timestamp, e.g. after an upstream edit.
	cal := &fakeExecutor{category: models.CategoryScheduling}
	src := &fakeSource{records: []models.Record{record("a", 150, "meeting one")}}
	p := newTestPoller(newStore(t, path), src, nil, cal)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, cal.callCount())

	st, _, err := checkpoint.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, float64(150), st.Watermark)
}

func TestPollOnceContinuesWhenPersistFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := newStore(t, path)
	cal := &fakeExecutor{category: models.CategoryScheduling}
	src := &fakeSource{records: []models.Record{
		record("a", 100, "meeting one"),
		record("b", 200, "meeting two"),
	}}
	p := newTestPoller(store, src, nil, cal)

	// Point the store at a path whose parent is a regular file.
	broken := checkpoint.New(checkpoint.Options{Path: filepath.Join(path, "nested", "state.json"), Mode: checkpoint.StartReplayHistory})
	p.store = broken
	p.dispatcher.store = broken

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), p.metrics.Snapshot().Counters[metrics.CountPersistErrors])
	assert.Equal(t, float64(200), broken.Watermark())
}

func TestRunBacksOffAndStops(t *testing.T) {
	store := newStore(t, "")
	cal := &fakeExecutor{category: models.CategoryScheduling}
	src := &fakeSource{
		errs:    []error{errBoom},
		records: []models.Record{record("a", 100, "meeting")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	wait := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	p := newTestPoller(store, src, wait, cal)

	require.NoError(t, p.Run(ctx))

	// error -> backoff, one record -> no wait, empty page -> interval
	assert.Equal(t, []time.Duration{MinErrorBackoff, 10 * time.Millisecond}, delays)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 1, cal.callCount())
	assert.Equal(t, StateStopping, p.State())
}

func TestRunBackoffUsesLongerInterval(t *testing.T) {
	store := newStore(t, "")
	src := &fakeSource{errs: []error{errBoom}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got time.Duration
	p := NewPoller(PollerOptions{
		Source:     src,
		Dispatcher: NewDispatcher(store, nil, discardLogger(), nil),
		Store:      store,
		Interval:   5 * time.Second,
		Logger:     discardLogger(),
		Wait: func(ctx context.Context, d time.Duration) error {
			got = d
			cancel()
			return ctx.Err()
		},
	})

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 5*time.Second, got)
}

func TestRunReturnsImmediatelyWhenCancelled(t *testing.T) {
	store := newStore(t, "")
	src := &fakeSource{}
	p := newTestPoller(store, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, src.calls)
	assert.Equal(t, StateStopping, p.State())
}

func TestWaitWithContext(t *testing.T) {
	assert.NoError(t, waitWithContext(context.Background(), 0))
	assert.NoError(t, waitWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitWithContext(ctx, time.Hour), context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}
