package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raphaelgruber/memory-agent/internal/checkpoint"
	"github.com/raphaelgruber/memory-agent/internal/memclient"
	"github.com/raphaelgruber/memory-agent/internal/models"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, path string) *checkpoint.Store {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "state.json")
	}
	store := checkpoint.New(checkpoint.Options{Path: path, Mode: checkpoint.StartReplayHistory})
	_, err := store.Load()
	require.NoError(t, err)
	return store
}

func record(id string, createdAt float64, summary string) models.Record {
	rec := models.Record{Summary: summary}
	if id != "" {
		rec.ID = &id
	}
	if createdAt > 0 {
		rec.CreatedAt = &createdAt
	}
	return rec
}

type fakeExecutor struct {
	category models.Category
	mu       sync.Mutex
	calls    []string
	err      error
	panicMsg string
	onCall   func(rec models.Record)
}

func (f *fakeExecutor) Category() models.Category { return f.category }

func (f *fakeExecutor) Execute(_ context.Context, rec models.Record) (models.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rec.Summary)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(rec)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return models.Outcome{}, f.err
	}
	return models.Outcome{
		Category: f.category,
		Status:   models.StatusSuccess,
		Detail:   map[string]any{"summary": rec.Summary},
	}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeReporter struct {
	mu      sync.Mutex
	entries []memclient.ActionLog
	err     error
}

func (f *fakeReporter) LogAction(_ context.Context, entry memclient.ActionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return f.err
}

// fakeSource serves records newer than the requested watermark, like the upstream store.
type fakeSource struct {
	mu      sync.Mutex
	records []models.Record
	errs    []error
	calls   int
}

func (f *fakeSource) FetchSince(_ context.Context, since float64, limit int) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	var out []models.Record
	for _, rec := range f.records {
		if rec.CreatedAtOr(0) > since {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var errBoom = errors.New("boom")
