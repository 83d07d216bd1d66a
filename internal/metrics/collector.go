// Package metrics provides in-memory runtime statistics for the agent loop.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64
	TotalOutputTokens *int64
	AvgInputTokens    *float64
	AvgOutputTokens   *float64
	MinInputTokens    *int64
	MaxInputTokens    *int64
	MinOutputTokens   *int64
	MaxOutputTokens   *int64
}

// Snapshot represents the agent statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Fetch         *OperationSnapshot
	Dispatch      *OperationSnapshot
	Calendar      *OperationSnapshot
	GoalCoaching  *OperationSnapshot
	LLMGenerate   *OperationSnapshot
	Report        *OperationSnapshot
	Persist       *OperationSnapshot
	Counters      map[string]int64
}

// Operation names for the collector.
const (
	OpFetch        = "fetch"
	OpDispatch     = "dispatch"
	OpCalendar     = "action_calendar"
	OpGoalCoaching = "action_goal_coaching"
	OpLLMGenerate  = "llm_generate"
	OpReport       = "report"
	OpPersist      = "persist"
)

// Counter names for the collector.
const (
	CountRecords       = "records"
	CountDuplicates    = "duplicates"
	CountFetchErrors   = "fetch_errors"
	CountPersistErrors = "persist_errors"
	CountReportErrors  = "report_errors"
	CountFallbacks     = "fallbacks"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		counters:  make(map[string]int64),
	}
}

// Inc adds one to a named counter.
func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

// Add adds delta to a named counter.
func (c *Collector) Add(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Since records the time elapsed since start for an operation.
func (c *Collector) Since(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens

	if inputTokens < m.MinInputTokens {
		m.MinInputTokens = inputTokens
	}
	if inputTokens > m.MaxInputTokens {
		m.MaxInputTokens = inputTokens
	}
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(m.TotalInputTokens) / float64(m.Count)
		avgOut := float64(m.TotalOutputTokens) / float64(m.Count)
		minIn := m.MinInputTokens
		maxIn := m.MaxInputTokens
		minOut := m.MinOutputTokens
		maxOut := m.MaxOutputTokens

		// Reset sentinel values for display
		if minIn == math.MaxInt64 {
			minIn = 0
		}
		if minOut == math.MaxInt64 {
			minOut = 0
		}

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &minIn
		snap.MaxInputTokens = &maxIn
		snap.MinOutputTokens = &minOut
		snap.MaxOutputTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Counters: map[string]int64{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Fetch:         snapshotOp(c.ops[OpFetch], false),
		Dispatch:      snapshotOp(c.ops[OpDispatch], false),
		Calendar:      snapshotOp(c.ops[OpCalendar], false),
		GoalCoaching:  snapshotOp(c.ops[OpGoalCoaching], false),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate], true),
		Report:        snapshotOp(c.ops[OpReport], false),
		Persist:       snapshotOp(c.ops[OpPersist], false),
		Counters:      counters,
	}
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s Snapshot) LogAttrs() []any {
	attrs := []any{"uptime_s", int64(s.UptimeSeconds)}
	ops := []struct {
		name string
		snap *OperationSnapshot
	}{
		{OpFetch, s.Fetch},
		{OpDispatch, s.Dispatch},
		{OpCalendar, s.Calendar},
		{OpGoalCoaching, s.GoalCoaching},
		{OpLLMGenerate, s.LLMGenerate},
		{OpReport, s.Report},
		{OpPersist, s.Persist},
	}
	for _, op := range ops {
		if op.snap == nil {
			continue
		}
		attrs = append(attrs,
			op.name+"_count", op.snap.Count,
			op.name+"_avg_ms", op.snap.AvgTimeMs,
			op.name+"_min_ms", op.snap.MinTimeMs,
			op.name+"_max_ms", op.snap.MaxTimeMs,
		)
		if op.snap.TotalInputTokens != nil {
			attrs = append(attrs,
				op.name+"_input_tokens", *op.snap.TotalInputTokens,
				op.name+"_output_tokens", *op.snap.TotalOutputTokens,
				op.name+"_avg_input_tokens", *op.snap.AvgInputTokens,
				op.name+"_avg_output_tokens", *op.snap.AvgOutputTokens,
				op.name+"_min_input_tokens", *op.snap.MinInputTokens,
				op.name+"_max_input_tokens", *op.snap.MaxInputTokens,
				op.name+"_min_output_tokens", *op.snap.MinOutputTokens,
				op.name+"_max_output_tokens", *op.snap.MaxOutputTokens,
			)
		}
	}
	keys := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		attrs = append(attrs, k, s.Counters[k])
	}
	return attrs
}
