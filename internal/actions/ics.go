package actions

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	icsTimeFormat = "20060102T150405Z"
	icsLineLimit  = 75
)

// Event is a single calendar event.
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Stamp       time.Time
}

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// escapeText escapes an iCalendar TEXT value.
func escapeText(s string) string {
	return icsEscaper.Replace(s)
}

// RenderICS renders ev as an iCalendar document with UTC timestamps and CRLF line endings.
func RenderICS(ev Event) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//memory-agent//Meeting Agent//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + ev.UID,
		"DTSTAMP:" + ev.Stamp.UTC().Format(icsTimeFormat),
		"DTSTART:" + ev.Start.UTC().Format(icsTimeFormat),
		"DTEND:" + ev.End.UTC().Format(icsTimeFormat),
		"SUMMARY:" + escapeText(ev.Summary),
		"DESCRIPTION:" + escapeText(ev.Description),
		"END:VEVENT",
		"END:VCALENDAR",
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(foldLine(line))
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// foldLine splits a content line into physical lines of at most 75 octets.
// Continuation lines start with a single space and no UTF-8 sequence is split.
func foldLine(line string) string {
	if len(line) <= icsLineLimit {
		return line
	}
	var b strings.Builder
	limit := icsLineLimit
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = icsLineLimit - 1
	}
	b.WriteString(line)
	return b.String()
}
