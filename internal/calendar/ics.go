package calendar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// ImportedDay is one date covered by an imported calendar event.
type ImportedDay struct {
	Date    string
	Summary string
}

// maxEventDays caps how many days one imported event may cover.
const maxEventDays = 366

// ImportICS reads VEVENTs from an iCalendar stream and returns every date
// they cover, ordered and de-duplicated. DTEND is exclusive; an event without
// DTEND covers its start date only.
func ImportICS(r io.Reader) ([]ImportedDay, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse calendar: %w", err)
	}

	seen := make(map[string]bool)
	var out []ImportedDay
	for _, ev := range cal.Events() {
		startProp := ev.GetProperty(ical.ComponentPropertyDtStart)
		if startProp == nil {
			slog.Warn("skipping calendar event without DTSTART")
			continue
		}
		start, err := parseICSDate(startProp.Value)
		if err != nil {
			slog.Warn("skipping calendar event", "dtstart", startProp.Value, "error", err)
			continue
		}
		end := start.AddDate(0, 0, 1)
		if endProp := ev.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if e, err := parseICSDate(endProp.Value); err == nil && e.After(start) {
				end = e
				// A timed event ending mid-day still covers its end date.
				if strings.Contains(endProp.Value, "T") && !isMidnight(endProp.Value) {
					end = e.AddDate(0, 0, 1)
				}
			}
		}

		summary := ""
		if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
			summary = p.Value
		}

		for d, n := start, 0; d.Before(end) && n < maxEventDays; d, n = d.AddDate(0, 0, 1), n+1 {
			key := model.FormatDate(d)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ImportedDay{Date: key, Summary: summary})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Dates returns the date strings of days.
func Dates(days []ImportedDay) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Date
	}
	return out
}

// parseICSDate reads the calendar date of a DATE or DATE-TIME value.
func parseICSDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, v)
	}
	t, err := time.Parse("20060102", v[:8])
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidDate, err)
	}
	return t, nil
}

func isMidnight(v string) bool {
	i := strings.Index(v, "T")
	return i >= 0 && strings.HasPrefix(v[i+1:], "000000")
}
