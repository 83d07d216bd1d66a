// Package models defines the data structures shared by the memory agent.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a memory created by the upstream store.
// It is read-only here; the agent never mutates upstream data.
type Record struct {
	ID        *string    `json:"_id,omitempty"`
	CreatedAt *float64   `json:"createdAt,omitempty"` // milliseconds since epoch
	Summary   string     `json:"summary,omitempty"`
	RawText   string     `json:"rawText,omitempty"`
	Topics    StringList `json:"topics,omitempty"`
	Tasks     StringList `json:"tasks,omitempty"`
	People    StringList `json:"people,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Upstream scalars are loosely
// typed: text fields accept any scalar, a non-string _id is dropped so the
// record is processed without dedup, and createdAt accepts a numeric string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"_id"`
		CreatedAt json.RawMessage `json:"createdAt"`
		Summary   json.RawMessage `json:"summary"`
		RawText   json.RawMessage `json:"rawText"`
		Topics    StringList      `json:"topics"`
		Tasks     StringList      `json:"tasks"`
		People    StringList      `json:"people"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	*r = Record{
		Summary: scalarText(raw.Summary),
		RawText: scalarText(raw.RawText),
		Topics:  raw.Topics,
		Tasks:   raw.Tasks,
		People:  raw.People,
	}
	var id string
	if !isNull(raw.ID) && json.Unmarshal(raw.ID, &id) == nil {
		r.ID = &id
	}
	if ts, ok := scalarNumber(raw.CreatedAt); ok {
		r.CreatedAt = &ts
	}
	return nil
}

// scalarText renders a JSON value as text. Missing and null values are empty.
func scalarText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// scalarNumber reads a JSON number or a numeric string.
func scalarNumber(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

// Identifier returns the record ID and whether one was present.
func (r Record) Identifier() (string, bool) {
	if r.ID == nil {
		return "", false
	}
	return *r.ID, true
}

// CreatedAtOr returns the creation timestamp, or fallback when the record has none.
func (r Record) CreatedAtOr(fallback float64) float64 {
	if r.CreatedAt == nil {
		return fallback
	}
	return *r.CreatedAt
}

// CreatedTime converts the creation timestamp to a time.Time.
// Records without a timestamp report now.
func (r Record) CreatedTime(now time.Time) time.Time {
	if r.CreatedAt == nil {
		return now
	}
	return time.UnixMilli(int64(*r.CreatedAt))
}

// StringList is a list field that tolerates non-string items.
// Upstream lists are loosely typed, so numbers and booleans are stringified.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler. A lone scalar becomes a one-item list.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		var single any
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
		if single == nil {
			*l = nil
			return nil
		}
		raw = []any{single}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case nil:
			out = append(out, "None")
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	*l = out
	return nil
}

// Join concatenates the items with sep.
func (l StringList) Join(sep string) string {
	return strings.Join(l, sep)
}
