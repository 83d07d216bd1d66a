package classify

import (
	"regexp"
	"strings"
)

// DefaultGoalFocus is returned when no focus pattern matches.
const DefaultGoalFocus = "your goal"

// focusPatterns are tried in order; the first match wins.
// Each pattern captures the focus phrase in group 1.
var focusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`get better at ([a-z0-9 \-]+)`),
	regexp.MustCompile(`improve (?:my|at)?\s*([a-z0-9 \-]+)`),
	regexp.MustCompile(`learn ([a-z0-9 \-]+)`),
	regexp.MustCompile(`practice ([a-z0-9 \-]+)`),
}

// ExtractGoalFocus pulls the goal focus phrase out of free text,
// e.g. "I want to get better at golf" yields "golf".
func ExtractGoalFocus(text string) string {
	lowered := strings.ToLower(text)
	for _, p := range focusPatterns {
		m := p.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}
		if focus := strings.Trim(m[1], " .,!?:;"); focus != "" {
			return focus
		}
	}
	return DefaultGoalFocus
}
