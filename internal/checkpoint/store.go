// Package checkpoint persists the agent's watermark and recent-window dedup set.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCapacity is the maximum number of record IDs kept for dedup.
const DefaultCapacity = 2000

// StartMode selects the initial watermark when no checkpoint exists yet.
type StartMode string

const (
	// StartSkipHistory begins at the current time, ignoring existing records.
	StartSkipHistory StartMode = "skip-history"
	// StartReplayHistory begins at zero and processes every existing record.
	StartReplayHistory StartMode = "replay-history"
)

// ParseStartMode validates a start mode string. Empty means skip-history.
func ParseStartMode(s string) (StartMode, error) {
	switch StartMode(s) {
	case "", StartSkipHistory:
		return StartSkipHistory, nil
	case StartReplayHistory:
		return StartReplayHistory, nil
	default:
		return "", fmt.Errorf("unknown start mode %q (want %s or %s)", s, StartSkipHistory, StartReplayHistory)
	}
}

// fileState is the on-disk checkpoint layout.
type fileState struct {
	LastCreatedAt *float64 `json:"last_created_at"`
	ProcessedIDs  []string `json:"processed_ids"`
}

// State is a point-in-time copy of the checkpoint.
type State struct {
	Watermark float64
	SeenIDs   []string
}

// Options configures a Store.
type Options struct {
	Path     string
	Mode     StartMode
	Capacity int
	Now      func() time.Time
	FileMode os.FileMode
}

// Store holds the checkpoint in memory and writes it atomically to disk.
// Owned by a single worker; the mutex only guards readers such as status reporting.
type Store struct {
	mu        sync.RWMutex
	path      string
	mode      StartMode
	capacity  int
	now       func() time.Time
	perm      os.FileMode
	watermark float64
	order     []string
	seen      map[string]struct{}
}

// New creates a store. Call Load before use.
func New(opts Options) *Store {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	perm := opts.FileMode
	if perm == 0 {
		perm = 0o644
	}
	mode := opts.Mode
	if mode == "" {
		mode = StartSkipHistory
	}
	return &Store{
		path:     opts.Path,
		mode:     mode,
		capacity: capacity,
		now:      now,
		perm:     perm,
		seen:     make(map[string]struct{}),
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. A missing file, or one whose watermark
// is null, is initialized from the start mode and persisted immediately.
// Returns true when the checkpoint was freshly initialized.
func (s *Store) Load() (bool, error) {
	st, err := readState(s.path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.order = s.order[:0]
	s.seen = make(map[string]struct{}, len(st.ProcessedIDs))
	for _, id := range st.ProcessedIDs {
		s.insertLocked(id)
	}
	initialized := st.LastCreatedAt == nil
	if initialized {
		s.watermark = s.initialWatermark()
	} else {
		s.watermark = *st.LastCreatedAt
	}
	s.mu.Unlock()

	if initialized {
		if err := s.Persist(); err != nil {
			return true, fmt.Errorf("persist initial checkpoint: %w", err)
		}
	}
	return initialized, nil
}

// Inspect reads a checkpoint file without initializing or writing anything.
// The second return is false when no watermark has been recorded yet.
func Inspect(path string) (State, bool, error) {
	st, err := readState(path)
	if err != nil {
		return State{}, false, err
	}
	out := State{SeenIDs: st.ProcessedIDs}
	if st.LastCreatedAt == nil {
		return out, false, nil
	}
	out.Watermark = *st.LastCreatedAt
	return out, true, nil
}

func readState(path string) (fileState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return fileState{}, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return st, nil
}

func (s *Store) initialWatermark() float64 {
	if s.mode == StartReplayHistory {
		return 0
	}
	return float64(s.now().UnixMilli())
}

// Watermark returns the current watermark in milliseconds since epoch.
func (s *Store) Watermark() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// HasSeen reports whether id is in the dedup window.
func (s *Store) HasSeen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// RecordSeen advances the watermark to createdAt if it is newer and adds id
// to the dedup window, evicting the oldest IDs beyond capacity.
// An empty id only advances the watermark.
func (s *Store) RecordSeen(id string, createdAt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(createdAt)
	if id != "" {
		s.insertLocked(id)
	}
}

// Advance moves the watermark forward without touching the dedup window.
func (s *Store) Advance(createdAt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(createdAt)
}

func (s *Store) advanceLocked(createdAt float64) {
	if createdAt > s.watermark {
		s.watermark = createdAt
	}
}

func (s *Store) insertLocked(id string) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if over := len(s.order) - s.capacity; over > 0 {
		for _, old := range s.order[:over] {
			delete(s.seen, old)
		}
		s.order = append(s.order[:0], s.order[over:]...)
	}
}

// Snapshot returns a copy of the in-memory checkpoint.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return State{Watermark: s.watermark, SeenIDs: ids}
}

// Persist writes the full checkpoint atomically. On failure the in-memory
// state is untouched and the next Persist writes it again.
func (s *Store) Persist() error {
	snap := s.Snapshot()
	wm := snap.Watermark
	data, err := json.Marshal(fileState{
		LastCreatedAt: &wm,
		ProcessedIDs:  snap.SeenIDs,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	if err := writeFileAtomic(s.path, data, s.perm); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it, and renames it over path. Readers see the old or new file, never a mix.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
