// Package actions implements the side-effecting executors run for classified records.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/raphaelgruber/memory-agent/internal/boundary"
	"github.com/raphaelgruber/memory-agent/internal/models"
)

const (
	eventDuration     = 30 * time.Minute
	defaultStartHour  = 9
	maxFileSummaryLen = 40
	maxLinkSummaryLen = 120
	maxLinkDescLen    = 1000
	calendarLinkBase  = "https://calendar.google.com/calendar/u/0/r/settings/createcalendar"
)

var eventDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:[ T](\d{1,2}:\d{2}))?`)

// BrowserOpener opens a URL in a local browser.
type BrowserOpener interface {
	Open(url string) error
}

// SystemBrowser opens URLs with the platform's default browser.
type SystemBrowser struct{}

// Open implements BrowserOpener.
func (SystemBrowser) Open(u string) error {
	return browser.OpenURL(u)
}

// CalendarOptions configures a Calendar executor.
type CalendarOptions struct {
	Dir         string
	OpenBrowser bool
	Browser     BrowserOpener
	Location    *time.Location
	Now         func() time.Time
	NewUID      func() string
	Logger      *slog.Logger
}

// Calendar turns scheduling-intent records into iCalendar invite files.
type Calendar struct {
	dir         string
	openBrowser bool
	browser     BrowserOpener
	loc         *time.Location
	now         func() time.Time
	newUID      func() string
	logger      *slog.Logger
}

// NewCalendar creates a calendar executor.
func NewCalendar(opts CalendarOptions) *Calendar {
	c := &Calendar{
		dir:         opts.Dir,
		openBrowser: opts.OpenBrowser,
		browser:     opts.Browser,
		loc:         opts.Location,
		now:         opts.Now,
		newUID:      opts.NewUID,
		logger:      opts.Logger,
	}
	if c.dir == "" {
		c.dir = "generated_invites"
	}
	if c.browser == nil {
		c.browser = SystemBrowser{}
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newUID == nil {
		c.newUID = func() string { return uuid.NewString() + "@memory-agent.local" }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Category implements the dispatcher's executor contract.
func (c *Calendar) Category() models.Category {
	return models.CategoryScheduling
}

// Execute writes an invite for rec and optionally opens a prefilled calendar link.
// Browser failures are reported in the detail but do not fail the action.
func (c *Calendar) Execute(_ context.Context, rec models.Record) (models.Outcome, error) {
	now := c.now()
	start, end, err := EventWindow(rec, now, c.loc)
	if err != nil {
		return models.Outcome{}, err
	}

	summary := strings.TrimSpace(rec.Summary)
	if summary == "" {
		summary = "Meeting"
	}
	event := Event{
		UID:         c.newUID(),
		Summary:     summary,
		Description: rec.RawText,
		Start:       start,
		End:         end,
		Stamp:       now,
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return models.Outcome{}, fmt.Errorf("create invite dir: %w", err)
	}
	filename := fmt.Sprintf("%d_%s.ics", now.Unix(), models.SafeFileName(summary, maxFileSummaryLen, "meeting"))
	path := filepath.Join(c.dir, filename)
	if err := os.WriteFile(path, RenderICS(event), 0o644); err != nil {
		return models.Outcome{}, fmt.Errorf("write invite: %w", err)
	}

	name := models.Truncate(summary, maxLinkSummaryLen)
	desc := models.Truncate(rec.RawText, maxLinkDescLen)
	link := CalendarLink(name, desc)

	opened := false
	var browserErr any
	if c.openBrowser {
		err := boundary.Run(c.logger, "browser open", func() error {
			return c.browser.Open(link)
		}, "ics_path", path)
		if err != nil {
			browserErr = err.Error()
		} else {
			opened = true
		}
	}

	return models.Outcome{
		Category: models.CategoryScheduling,
		Status:   models.StatusSuccess,
		Detail: map[string]any{
			"status":              "created",
			"mode":                "ics_file",
			"icsPath":             path,
			"importUrl":           link,
			"calendarName":        name,
			"calendarDescription": desc,
			"browserOpened":       opened,
			"browserError":        browserErr,
			"start":               start.Format(time.RFC3339),
			"end":                 end.Format(time.RFC3339),
		},
	}, nil
}

// EventWindow picks the event start from a YYYY-MM-DD[ HH:MM] date in the raw
// text, defaulting to 09:00 on that date when no time is given. Without a date
// the event starts at 09:00 on the day after the record was created.
// Events last 30 minutes.
func EventWindow(rec models.Record, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	var start time.Time
	if m := eventDatePattern.FindStringSubmatch(rec.RawText); m != nil {
		clock := m[2]
		if clock == "" {
			clock = "09:00"
		}
		if len(clock) == 4 {
			clock = "0" + clock
		}
		t, err := time.ParseInLocation("2006-01-02 15:04", m[1]+" "+clock, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse event date %q: %w", m[0], err)
		}
		start = t
	} else {
		created := rec.CreatedTime(now).In(loc)
		start = time.Date(created.Year(), created.Month(), created.Day()+1, defaultStartHour, 0, 0, 0, loc)
	}
	return start, start.Add(eventDuration), nil
}

// CalendarLink builds a URL that prefills the calendar creation page.
func CalendarLink(name, description string) string {
	q := url.Values{}
	q.Set("name", name)
	q.Set("description", description)
	return calendarLinkBase + "?" + q.Encode()
}
