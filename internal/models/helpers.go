package models

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SafeFileName replaces runs of characters other than ASCII letters, digits,
// '_' and '-' with '_', trims leading and trailing '_', and caps the result
// at maxLen characters. Returns fallback if nothing usable remains.
func SafeFileName(s string, maxLen int, fallback string) string {
	safe := strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
	if len(safe) > maxLen {
		safe = safe[:maxLen]
	}
	if safe == "" {
		return fallback
	}
	return safe
}

// Truncate caps s at max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
