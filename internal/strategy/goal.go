// Package strategy produces structured content for action categories,
// preferring a remote generator and falling back to a local one.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/llm"
	"github.com/raphaelgruber/memory-agent/internal/metrics"
	"github.com/raphaelgruber/memory-agent/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// Generator is the remote text-generation dependency. *llm.Model satisfies it.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (llm.Completion, error)
	Provider() string
}

var _ Generator = (*llm.Model)(nil)

const goalSystemPrompt = "Return strict JSON only."

const goalInstructions = `You are a practical personal coach. Analyze the conversation/memory and if it contains goals, ` +
	`return a concise, personalized action plan. Output JSON only with this shape: ` +
	`{"has_goal":true|false,"goal":"...","suggestions":["..."],"weekly_plan":["..."],"first_step":"..."} ` +
	`Keep suggestions specific, measurable, and realistic. If no goal exists, set has_goal=false and empty arrays.`

// GoalPlan is the structured coaching content for a goal-intent record.
type GoalPlan struct {
	HasGoal     bool     `json:"has_goal"`
	Goal        string   `json:"goal"`
	Suggestions []string `json:"suggestions"`
	WeeklyPlan  []string `json:"weekly_plan"`
	FirstStep   string   `json:"first_step"`
}

func (p GoalPlan) payload() map[string]any {
	suggestions := p.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	weekly := p.WeeklyPlan
	if weekly == nil {
		weekly = []string{}
	}
	return map[string]any{
		"has_goal":    p.HasGoal,
		"goal":        p.Goal,
		"suggestions": suggestions,
		"weekly_plan": weekly,
		"first_step":  p.FirstStep,
	}
}

// GoalCoachOptions configures a GoalCoach.
type GoalCoachOptions struct {
	// Generator may be nil, in which case every call uses the fallback.
	Generator Generator
	// Unavailable explains why Generator is nil; it is logged on fallback.
	Unavailable error
	Timeout     time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// GoalCoach generates coaching plans for goal-intent records.
type GoalCoach struct {
	gen         Generator
	unavailable error
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Collector

	mu       sync.Mutex
	disabled error // first fatal API error; set once, never cleared
}

// NewGoalCoach creates a goal coaching strategy.
func NewGoalCoach(opts GoalCoachOptions) *GoalCoach {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	unavailable := opts.Unavailable
	if opts.Generator == nil && unavailable == nil {
		unavailable = llm.ErrNoCredential
	}
	return &GoalCoach{
		gen:         opts.Generator,
		unavailable: unavailable,
		timeout:     opts.Timeout,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Generate returns coaching content for rec. It never fails: any problem with
// the remote generator falls back to the local plan. A fatal API error
// (bad credentials, exhausted quota) disables the generator for the rest
// of the process.
func (g *GoalCoach) Generate(ctx context.Context, rec models.Record) models.ContentResult {
	plan, provider, err := g.primary(ctx, rec)
	if err != nil {
		if errors.Is(err, llm.ErrFatalAPI) {
			g.disable(err)
		}
		g.logger.Info("goal suggestions unavailable, using fallback", "error", err)
		g.metrics.Inc(metrics.CountFallbacks)
		return models.ContentResult{
			HasContent: true,
			Payload:    withSource(FallbackGoalPlan(rec).payload(), models.SourceFallback, ""),
			Source:     models.SourceFallback,
		}
	}
	return models.ContentResult{
		HasContent: plan.HasGoal,
		Payload:    withSource(plan.payload(), models.SourcePrimary, provider),
		Source:     models.SourcePrimary,
	}
}

// disable turns off the generator after a fatal error, logging only the first one.
func (g *GoalCoach) disable(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disabled != nil {
		return
	}
	g.disabled = err
	g.logger.Warn("disabling remote goal suggestions for this process", "provider", g.gen.Provider(), "error", err)
}

// Disabled returns the fatal error that turned the generator off, if any.
func (g *GoalCoach) Disabled() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}

func (g *GoalCoach) primary(ctx context.Context, rec models.Record) (GoalPlan, string, error) {
	if g.gen == nil {
		return GoalPlan{}, "", g.unavailable
	}
	if err := g.Disabled(); err != nil {
		return GoalPlan{}, "", err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.gen.GenerateWithSystem(ctx, goalSystemPrompt, goalPrompt(rec),
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(500),
	)
	if err != nil {
		return GoalPlan{}, "", err
	}
	g.metrics.RecordLLMUsage(metrics.OpLLMGenerate, out.Duration, out.InputTokens, out.OutputTokens)

	plan, err := ParseGoalPlan(out.Content)
	if err != nil {
		return GoalPlan{}, "", err
	}
	return plan, g.gen.Provider(), nil
}

// ParseGoalPlan decodes a generator reply, tolerating a surrounding code fence.
func ParseGoalPlan(content string) (GoalPlan, error) {
	body := stripCodeFence(content)
	if body == "" {
		return GoalPlan{}, errors.New("empty goal plan reply")
	}
	var plan GoalPlan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return GoalPlan{}, fmt.Errorf("malformed goal plan reply: %w", err)
	}
	return plan, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func goalPrompt(rec models.Record) string {
	var b strings.Builder
	b.WriteString(goalInstructions)
	fmt.Fprintf(&b, "\n\nMemory summary: %s", rec.Summary)
	fmt.Fprintf(&b, "\nMemory text: %s", rec.RawText)
	fmt.Fprintf(&b, "\nKnown tasks: %s", jsonList(rec.Tasks))
	fmt.Fprintf(&b, "\nTopics: %s", jsonList(rec.Topics))
	fmt.Fprintf(&b, "\nPeople: %s", jsonList(rec.People))
	return b.String()
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func withSource(payload map[string]any, source models.Source, provider string) map[string]any {
	payload["source"] = string(source)
	if provider != "" {
		payload["provider"] = provider
	}
	return payload
}
