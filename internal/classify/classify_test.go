package classify

import (
	"testing"

	"github.com/raphaelgruber/memory-agent/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		rec  models.Record
		want []models.Category
	}{
		{
			name: "standup summary",
			rec:  models.Record{Summary: "Standup at 10"},
			want: []models.Category{models.CategoryScheduling},
		},
		{
			name: "goal in raw text",
			rec:  models.Record{RawText: "I want to get better at golf"},
			want: []models.Category{models.CategoryGoal},
		},
		{
			name: "both categories",
			rec:  models.Record{Summary: "Interview prep", RawText: "I plan to practice system design"},
			want: []models.Category{models.CategoryScheduling, models.CategoryGoal},
		},
		{
			name: "topic match",
			rec:  models.Record{Summary: "Notes", Topics: models.StringList{"Weekly SYNC"}},
			want: []models.Category{models.CategoryScheduling},
		},
		{
			name: "task match",
			rec:  models.Record{Summary: "Errands", Tasks: models.StringList{"Learn Spanish verbs"}},
			want: []models.Category{models.CategoryGoal},
		},
		{
			name: "people match",
			rec:  models.Record{Summary: "Notes", People: models.StringList{"Interviewer Kim"}},
			want: []models.Category{models.CategoryScheduling},
		},
		{
			name: "no match",
			rec:  models.Record{Summary: "Groceries", RawText: "milk and eggs"},
			want: nil,
		},
		{
			name: "empty record",
			rec:  models.Record{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.rec))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	rec := models.Record{Summary: "Call with coach", RawText: "Goal: run a marathon"}
	first := Classify(rec)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(rec))
	}
}

func TestKeywordsReturnsCopy(t *testing.T) {
	kw := Keywords(models.CategoryScheduling)
	kw[0] = "mutated"
	assert.Equal(t, "meeting", Keywords(models.CategoryScheduling)[0])
	assert.Nil(t, Keywords(models.Category("unknown")))
}

func TestExtractGoalFocus(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"get better at", "I want to get better at golf", "golf"},
		{"trailing punctuation", "I really want to get better at chess!", "chess"},
		{"improve my", "Need to improve my putting.", "putting"},
		{"improve at", "improve at public speaking", "public speaking"},
		{"learn", "I'd like to learn rust", "rust"},
		{"practice", "practice piano daily", "piano daily"},
		{"first pattern wins", "learn guitar and get better at drums", "drums"},
		{"case insensitive", "GET BETTER AT Tennis", "tennis"},
		{"no match", "buy milk", DefaultGoalFocus},
		{"empty", "", DefaultGoalFocus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractGoalFocus(tt.text))
		})
	}
}
