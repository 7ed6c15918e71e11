// Package calendar decides whether a date requires logged hours and why.
//
// Five sources are merged in a fixed priority order: compensatory working
// day overrides, PTO, weekends, organization holidays, country holidays and
// user-defined extra holidays. Anything else is a regular working day.
package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/model"
)

// ErrInvalidDate is wrapped by date and month parsing failures.
var ErrInvalidDate = errors.New("invalid date")

// Kind tags the rule that decided a classification.
type Kind int

const (
	KindWorkingDayOverride Kind = iota
	KindPTO
	KindWeekend
	KindOrgHoliday
	KindCountryHoliday
	KindExtraHoliday
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindWorkingDayOverride:
		return "working_day_override"
	case KindPTO:
		return "pto"
	case KindWeekend:
		return "weekend"
	case KindOrgHoliday:
		return "org_holiday"
	case KindCountryHoliday:
		return "country_holiday"
	case KindExtraHoliday:
		return "extra_holiday"
	default:
		return "default"
	}
}

// Classification is the outcome of Classify for one date.
type Classification struct {
	Date time.Time
	Kind Kind
	// Name is the holiday name for holiday kinds and the weekday name for weekends.
	Name string
}

// IsWorking reports whether hours must be logged on the date.
func (c Classification) IsWorking() bool {
	return c.Kind == KindWorkingDayOverride || c.Kind == KindDefault
}

// IsOffDay reports a non-working day that still books overhead time (PTO or a holiday).
func (c Classification) IsOffDay() bool {
	return !c.IsWorking() && c.Kind != KindWeekend
}

// Reason returns the human-readable label for the classification.
func (c Classification) Reason() string {
	switch c.Kind {
	case KindWorkingDayOverride:
		return "Compensatory working day"
	case KindPTO:
		return "PTO"
	case KindWeekend:
		return fmt.Sprintf("Weekend (%s)", c.Name)
	case KindOrgHoliday, KindCountryHoliday:
		return "Holiday: " + c.Name
	case KindExtraHoliday:
		return "Extra holiday"
	default:
		return "Working day"
	}
}

// HolidayCalendar looks up a named holiday on a date.
type HolidayCalendar interface {
	Lookup(date time.Time) (string, bool)
}

// ScheduleStore persists schedule mutations as one transaction.
type ScheduleStore interface {
	UpdateSchedule(fn func(*config.ScheduleConfig) error) (config.ScheduleConfig, error)
}

// Options wires the optional collaborators of a Policy.
type Options struct {
	// Org is the organization holiday table; nil means no org holidays.
	Org *OrgHolidays
	// Country is the jurisdiction calendar; nil skips country holidays.
	Country HolidayCalendar
	// Store persists mutations; nil makes the policy read-only.
	Store ScheduleStore
	Clock func() time.Time
}

// Policy classifies dates against one schedule.
type Policy struct {
	schedule config.ScheduleConfig
	pto      map[string]bool
	extra    map[string]bool
	working  map[string]bool
	org      *OrgHolidays
	country  HolidayCalendar
	store    ScheduleStore
	now      func() time.Time
}

// NewPolicy builds a policy for sched.
func NewPolicy(sched config.ScheduleConfig, opts Options) *Policy {
	p := &Policy{
		org:     opts.Org,
		country: opts.Country,
		store:   opts.Store,
		now:     opts.Clock,
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.setSchedule(sched)
	return p
}

func (p *Policy) setSchedule(sched config.ScheduleConfig) {
	p.schedule = sched
	p.pto = toSet(sched.PTODays)
	p.extra = toSet(sched.ExtraHolidays)
	p.working = toSet(sched.WorkingDays)
}

func toSet(dates []string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set
}

// DailyHours returns the standard hours per working day.
func (p *Policy) DailyHours() decimal.Decimal {
	return p.schedule.DailyHours
}

// DailySeconds returns the standard working day in seconds.
func (p *Policy) DailySeconds() int {
	return p.schedule.DailySeconds()
}

// Classify resolves the date against every source, stopping at the first match.
func (p *Policy) Classify(date time.Time) Classification {
	date = model.Day(date)
	key := model.FormatDate(date)
	c := Classification{Date: date}

	switch {
	case p.working[key]:
		c.Kind = KindWorkingDayOverride
	case p.pto[key]:
		c.Kind = KindPTO
	case date.Weekday() == time.Saturday || date.Weekday() == time.Sunday:
		c.Kind = KindWeekend
		c.Name = date.Weekday().String()
	default:
		if name, ok := p.org.Lookup(date); ok {
			c.Kind, c.Name = KindOrgHoliday, name
		} else if name, ok := p.countryLookup(date); ok {
			c.Kind, c.Name = KindCountryHoliday, name
		} else if p.extra[key] {
			c.Kind = KindExtraHoliday
		} else {
			c.Kind = KindDefault
		}
	}
	return c
}

func (p *Policy) countryLookup(date time.Time) (string, bool) {
	if p.country == nil {
		return "", false
	}
	return p.country.Lookup(date)
}

// HolidayName returns the org or country holiday name for the date.
func (p *Policy) HolidayName(date time.Time) (string, bool) {
	date = model.Day(date)
	if name, ok := p.org.Lookup(date); ok {
		return name, true
	}
	return p.countryLookup(date)
}

// Holidays lists the named org and country holidays of year, ordered by date.
func (p *Policy) Holidays(year int) []Holiday {
	var out []Holiday
	for d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
		if name, ok := p.HolidayName(d); ok {
			out = append(out, Holiday{Date: model.FormatDate(d), Name: name})
		}
	}
	return out
}

// CountWorkingDays counts working days between start and end, both inclusive.
func (p *Policy) CountWorkingDays(start, end time.Time) int {
	count := 0
	for d := model.Day(start); !d.After(model.Day(end)); d = d.AddDate(0, 0, 1) {
		if p.Classify(d).IsWorking() {
			count++
		}
	}
	return count
}

// ExpectedHours is CountWorkingDays times the daily hours.
func (p *Policy) ExpectedHours(start, end time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(p.CountWorkingDays(start, end))).Mul(p.schedule.DailyHours)
}

// YearEndWarning returns a warning in December when next year's org holiday
// data is missing for the configured country or state.
func (p *Policy) YearEndWarning() (string, bool) {
	today := p.now()
	if today.Month() != time.December {
		return "", false
	}
	next := today.Year() + 1
	country := p.schedule.CountryCode

	if !p.org.Document().HasYear(country, next) {
		msg := fmt.Sprintf("org holiday data does not contain %d holidays for %s; ask your admin to update the central holiday file", next, country)
		slog.Warn("org holidays missing for next year", "country", country, "year", next)
		return msg, true
	}
	if state := p.schedule.State; state != "" && !p.org.Document().HasGroup(country, next, state) {
		msg := fmt.Sprintf("org holiday data has %d common holidays but none for %s; ask your admin to add them", next, state)
		slog.Warn("org state holidays missing for next year", "country", country, "state", state, "year", next)
		return msg, true
	}
	return "", false
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q, use YYYY-MM", ErrInvalidDate, s)
	}
	return t.Year(), t.Month(), nil
}

// DayLabel is the short label shown in the month calendar.
type DayLabel string

const (
	LabelCompWorking DayLabel = "CW"
	LabelPTO         DayLabel = "PTO"
	LabelWeekend     DayLabel = "."
	LabelHoliday     DayLabel = "H"
	LabelWorking     DayLabel = "W"
)

// CalendarDay is one cell of MonthCalendar.
type CalendarDay struct {
	Classification
	Label DayLabel
}

// MonthCalendar classifies every day of the month.
func (p *Policy) MonthCalendar(year int, month time.Month) []CalendarDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var days []CalendarDay
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		c := p.Classify(d)
		days = append(days, CalendarDay{Classification: c, Label: labelFor(c)})
	}
	return days
}

func labelFor(c Classification) DayLabel {
	switch {
	case c.Kind == KindWorkingDayOverride:
		return LabelCompWorking
	case c.Kind == KindPTO:
		return LabelPTO
	case c.Kind == KindWeekend:
		return LabelWeekend
	case !c.IsWorking():
		return LabelHoliday
	default:
		return LabelWorking
	}
}
