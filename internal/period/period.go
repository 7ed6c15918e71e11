// Package period resolves program increment (PI) identifiers into dates and
// derives the planning week that follows each increment.
package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/model"
)

const (
	// PlanningDays is the number of working days in a planning week.
	PlanningDays = 5
	// MaxPlanningSpan bounds the planning window in calendar days after the PI end.
	MaxPlanningSpan = 14
)

var (
	identifierRegex = regexp.MustCompile(`^PI\.(\d{2})\.(\d+)\.([A-Z]{3})\.(\d{1,2})$`)
	// findRegex locates an identifier inside free text such as a sprint name.
	findRegex = regexp.MustCompile(`PI\.\d{2}\.\d+\.[A-Z]{3}\.\d{1,2}`)
)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParsePeriodEnd parses PI.<YY>.<N>.<MON>.<DD> into the increment end date.
// The period index is ignored.
func ParsePeriodEnd(identifier string) (time.Time, bool) {
	m := identifierRegex.FindStringSubmatch(strings.TrimSpace(identifier))
	if m == nil {
		return time.Time{}, false
	}
	month, ok := months[m[3]]
	if !ok {
		return time.Time{}, false
	}
	yy, _ := strconv.Atoi(m[1])
	dd, _ := strconv.Atoi(m[4])
	end := time.Date(2000+yy, month, dd, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March.
	if end.Month() != month || end.Day() != dd {
		return time.Time{}, false
	}
	return end, true
}

// FindIdentifier returns the first PI identifier contained in text.
func FindIdentifier(text string) (string, bool) {
	id := findRegex.FindString(text)
	return id, id != ""
}

// Classifier is the calendar capability the planning window needs.
type Classifier interface {
	Classify(date time.Time) calendar.Classification
}

// Window is the planning week: Start is the day after the PI end, End the
// date of the fifth working day.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether date is within the window, both ends inclusive.
func (w Window) Contains(date time.Time) bool {
	date = model.Day(date)
	return !date.Before(w.Start) && !date.After(w.End)
}

// PlanningWindow walks forward from the day after piEnd until PlanningDays
// working days are counted. It gives up when more than MaxPlanningSpan
// calendar days would be needed.
func PlanningWindow(piEnd time.Time, cal Classifier) (Window, bool) {
	piEnd = model.Day(piEnd)
	working := 0
	for offset := 1; offset <= MaxPlanningSpan; offset++ {
		d := piEnd.AddDate(0, 0, offset)
		if !cal.Classify(d).IsWorking() {
			continue
		}
		working++
		if working == PlanningDays {
			return Window{Start: piEnd.AddDate(0, 0, 1), End: d}, true
		}
	}
	return Window{}, false
}

// Resolver answers planning-week questions for configured increments.
type Resolver struct {
	cal Classifier
}

// NewResolver returns a resolver backed by cal.
func NewResolver(cal Classifier) *Resolver {
	return &Resolver{cal: cal}
}

// EndDate returns the explicit end date of pi, or the one derived from its identifier.
func (r *Resolver) EndDate(pi *config.PIConfig) (time.Time, bool) {
	if pi == nil {
		return time.Time{}, false
	}
	if pi.EndDate != "" {
		end, err := model.ParseDate(pi.EndDate)
		if err == nil {
			return end, true
		}
	}
	return ParsePeriodEnd(pi.Identifier)
}

// Window returns the planning window following pi.
func (r *Resolver) Window(pi *config.PIConfig) (Window, bool) {
	end, ok := r.EndDate(pi)
	if !ok {
		return Window{}, false
	}
	return PlanningWindow(end, r.cal)
}

// InPlanningWindow reports whether date falls in the planning week after pi.
func (r *Resolver) InPlanningWindow(pi *config.PIConfig, date time.Time) bool {
	w, ok := r.Window(pi)
	return ok && w.Contains(date)
}
