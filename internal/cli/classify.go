package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/actions"
	"github.com/raphaelgruber/memory-agent/internal/classify"
	"github.com/raphaelgruber/memory-agent/internal/models"
	"github.com/raphaelgruber/memory-agent/internal/strategy"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file|-]",
	Short: "Dry-run the classifier on a memory record",
	Long: `Classify a memory record given as JSON and show what the agent would do,
without writing invites, calling the text-generation service or reporting
anything upstream. Reads stdin when the file is omitted or "-".

Examples:
  memory-agent classify memory.json
  echo '{"summary":"Standup at 10"}' | memory-agent classify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

// classifyReport is the JSON form of the classify output.
type classifyReport struct {
	Categories []string            `json:"categories"`
	Actions    []string            `json:"actions"`
	Matched    map[string][]string `json:"matchedKeywords"`
	Event      *eventPreview       `json:"event,omitempty"`
	GoalFocus  string              `json:"goalFocus,omitempty"`
	GoalPlan   *strategy.GoalPlan  `json:"goalPlan,omitempty"`
}

type eventPreview struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open record: %w", err)
		}
		defer f.Close()
		in = f
	}

	var rec models.Record
	if err := json.NewDecoder(in).Decode(&rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	report := classifyReport{Categories: []string{}, Actions: []string{}, Matched: map[string][]string{}}
	haystack := classify.Haystack(rec)
	for _, cat := range classify.Classify(rec) {
		report.Categories = append(report.Categories, string(cat))
		report.Actions = append(report.Actions, cat.ActionName())
		report.Matched[string(cat)] = matchedKeywords(haystack, cat)
		switch cat {
		case models.CategoryScheduling:
			start, end, err := actions.EventWindow(rec, time.Now(), time.Local)
			if err != nil {
				return err
			}
			report.Event = &eventPreview{Start: start.Format(time.RFC3339), End: end.Format(time.RFC3339)}
		case models.CategoryGoal:
			report.GoalFocus = classify.ExtractGoalFocus(rec.RawText)
			if report.GoalFocus == classify.DefaultGoalFocus {
				report.GoalFocus = classify.ExtractGoalFocus(rec.Summary)
			}
			plan := strategy.FallbackGoalPlan(rec)
			report.GoalPlan = &plan
		}
	}

	out := cmd.OutOrStdout()
	if wantJSON(out) {
		return writeJSON(out, report)
	}
	printClassify(out, report)
	return nil
}

// matchedKeywords lists the category keywords found in the haystack.
func matchedKeywords(haystack string, cat models.Category) []string {
	var out []string
	for _, k := range classify.Keywords(cat) {
		if strings.Contains(haystack, k) {
			out = append(out, k)
		}
	}
	return out
}

func printClassify(w io.Writer, r classifyReport) {
	t := defaultTheme
	if len(r.Categories) == 0 {
		fmt.Fprintln(w, t.hintStyle().Render("no matching actions"))
		return
	}
	fmt.Fprintln(w, t.titleStyle().Render("Actions"))
	fmt.Fprintln(w, t.row("categories", strings.Join(r.Categories, ", ")))
	fmt.Fprintln(w, t.row("actions", strings.Join(r.Actions, ", ")))
	for _, cat := range r.Categories {
		fmt.Fprintln(w, t.row("matched", cat+": "+strings.Join(r.Matched[cat], ", ")))
	}
	if r.Event != nil {
		fmt.Fprintln(w, t.row("event", r.Event.Start+" to "+r.Event.End))
	}
	if r.GoalFocus != "" {
		fmt.Fprintln(w, t.row("goal focus", r.GoalFocus))
		if r.GoalPlan != nil {
			fmt.Fprintln(w, t.row("first step", r.GoalPlan.FirstStep))
		}
	}
}
