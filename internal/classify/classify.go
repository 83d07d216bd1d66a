// Package classify maps memory records to action categories using fixed keyword rules.
package classify

import (
	"strings"

	"github.com/raphaelgruber/memory-agent/internal/models"
)

// rule pairs a category with the keywords that select it.
type rule struct {
	category models.Category
	keywords []string
}

// rules are evaluated independently; a record can match several.
var rules = []rule{
	{
		category: models.CategoryScheduling,
		keywords: []string{"meeting", "call", "sync", "standup", "interview"},
	},
	{
		category: models.CategoryGoal,
		keywords: []string{
			"goal", "goals", "get better", "improve", "practice",
			"train", "learn", "want to", "plan to", "trying to",
		},
	},
}

// Classify returns every category whose keywords appear in the record, in rule order.
// Matching is a case-insensitive substring search over the text and list fields.
func Classify(rec models.Record) []models.Category {
	haystack := Haystack(rec)
	var out []models.Category
	for _, r := range rules {
		if containsAny(haystack, r.keywords) {
			out = append(out, r.category)
		}
	}
	return out
}

// Haystack builds the lowercased text the rules search.
func Haystack(rec models.Record) string {
	parts := []string{
		rec.Summary,
		rec.RawText,
		rec.Topics.Join(" "),
		rec.Tasks.Join(" "),
		rec.People.Join(" "),
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Keywords returns a copy of the keyword list for a category.
func Keywords(category models.Category) []string {
	for _, r := range rules {
		if r.category == category {
			return append([]string(nil), r.keywords...)
		}
	}
	return nil
}

func containsAny(haystack string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}
