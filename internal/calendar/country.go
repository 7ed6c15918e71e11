package calendar

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// observance moves a holiday that falls on a weekend.
type observance int

const (
	observeNone observance = iota
	// observeNearest moves Saturday to Friday and Sunday to Monday.
	observeNearest
	// observeNextWeekday moves the holiday to the next free weekday.
	observeNextWeekday
)

// holidayRule generates one holiday per year.
type holidayRule struct {
	name     string
	month    time.Month
	day      int
	weekday  *rrule.Weekday
	monthDay []int
	easter   *int
	offset   int
	observed observance
}

func fixed(name string, month time.Month, day int, obs observance) holidayRule {
	return holidayRule{name: name, month: month, day: day, observed: obs}
}

func nthWeekday(name string, month time.Month, wd rrule.Weekday, n int) holidayRule {
	w := wd.Nth(n)
	return holidayRule{name: name, month: month, weekday: &w}
}

func dayAfterThanksgiving() holidayRule {
	r := nthWeekday("Day After Thanksgiving", time.November, rrule.TH, 4)
	r.offset = 1
	return r
}

func easterOffset(name string, offset int) holidayRule {
	return holidayRule{name: name, easter: &offset}
}

var (
	usRules = []holidayRule{
		fixed("New Year's Day", time.January, 1, observeNearest),
		nthWeekday("Martin Luther King Jr. Day", time.January, rrule.MO, 3),
		nthWeekday("Washington's Birthday", time.February, rrule.MO, 3),
		nthWeekday("Memorial Day", time.May, rrule.MO, -1),
		fixed("Juneteenth National Independence Day", time.June, 19, observeNearest),
		fixed("Independence Day", time.July, 4, observeNearest),
		nthWeekday("Labor Day", time.September, rrule.MO, 1),
		nthWeekday("Columbus Day", time.October, rrule.MO, 2),
		fixed("Veterans Day", time.November, 11, observeNearest),
		nthWeekday("Thanksgiving", time.November, rrule.TH, 4),
		fixed("Christmas Day", time.December, 25, observeNearest),
	}

	usStateRules = map[string][]holidayRule{
		"CA": {
			fixed("Cesar Chavez Day", time.March, 31, observeNearest),
			dayAfterThanksgiving(),
		},
		"NY": {
			fixed("Lincoln's Birthday", time.February, 12, observeNearest),
		},
		"TX": {
			fixed("Texas Independence Day", time.March, 2, observeNone),
			dayAfterThanksgiving(),
		},
	}

	gbRules = []holidayRule{
		fixed("New Year's Day", time.January, 1, observeNextWeekday),
		easterOffset("Good Friday", -2),
		easterOffset("Easter Monday", 1),
		nthWeekday("May Day", time.May, rrule.MO, 1),
		nthWeekday("Spring Bank Holiday", time.May, rrule.MO, -1),
		nthWeekday("Late Summer Bank Holiday", time.August, rrule.MO, -1),
		fixed("Christmas Day", time.December, 25, observeNextWeekday),
		fixed("Boxing Day", time.December, 26, observeNextWeekday),
	}

	caRules = []holidayRule{
		fixed("New Year's Day", time.January, 1, observeNextWeekday),
		easterOffset("Good Friday", -2),
		{name: "Victoria Day", month: time.May, weekday: &rrule.MO, monthDay: []int{18, 19, 20, 21, 22, 23, 24}},
		fixed("Canada Day", time.July, 1, observeNextWeekday),
		nthWeekday("Labour Day", time.September, rrule.MO, 1),
		fixed("National Day for Truth and Reconciliation", time.September, 30, observeNextWeekday),
		nthWeekday("Thanksgiving Day", time.October, rrule.MO, 2),
		fixed("Christmas Day", time.December, 25, observeNextWeekday),
		fixed("Boxing Day", time.December, 26, observeNextWeekday),
	}

	inRules = []holidayRule{
		fixed("Republic Day", time.January, 26, observeNone),
		fixed("Independence Day", time.August, 15, observeNone),
		fixed("Gandhi Jayanti", time.October, 2, observeNone),
	}
)

// CountryCalendar computes public holidays of one jurisdiction from
// recurrence rules. Years are expanded lazily and memoized.
type CountryCalendar struct {
	country string
	state   string
	rules   []holidayRule

	mu    sync.Mutex
	years map[int]map[string]string
}

// NewCountryCalendar returns the calendar for the country and optional state.
// The bool is false when the country has no rules, in which case the
// calendar is nil and country holidays are skipped.
func NewCountryCalendar(country, state string) (*CountryCalendar, bool) {
	var rules []holidayRule
	switch country {
	case "US":
		rules = append(rules, usRules...)
		rules = append(rules, usStateRules[state]...)
	case "GB", "UK":
		rules = gbRules
	case "CA":
		rules = caRules
	case "IN":
		rules = inRules
	default:
		slog.Warn("no country holiday rules, skipping country holidays", "country", country)
		return nil, false
	}
	return &CountryCalendar{
		country: country,
		state:   state,
		rules:   rules,
		years:   make(map[int]map[string]string),
	}, true
}

// Lookup returns the holiday name on date.
func (c *CountryCalendar) Lookup(date time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	date = model.Day(date)
	name, ok := c.year(date.Year())[model.FormatDate(date)]
	return name, ok
}

func (c *CountryCalendar) year(year int) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.years[year]; ok {
		return m
	}
	m := expandYear(c.rules, year)
	c.years[year] = m
	return m
}

// expandYear computes the holidays of year. Neighbouring years are expanded
// too, so a New Year's Day on a Saturday is observed on December 31.
func expandYear(rules []holidayRule, year int) map[string]string {
	type occurrence struct {
		date     time.Time
		name     string
		observed observance
	}
	var actual []occurrence
	for y := year - 1; y <= year+1; y++ {
		for _, r := range rules {
			for _, d := range r.occurrences(y) {
				actual = append(actual, occurrence{date: d.AddDate(0, 0, r.offset), name: r.name, observed: r.observed})
			}
		}
	}
	sort.Slice(actual, func(i, j int) bool { return actual[i].date.Before(actual[j].date) })

	taken := make(map[string]string, len(actual))
	for _, o := range actual {
		taken[model.FormatDate(o.date)] = o.name
	}
	out := make(map[string]string)
	for _, o := range actual {
		if o.date.Year() == year {
			out[model.FormatDate(o.date)] = o.name
		}
	}
	for _, o := range actual {
		shifted, ok := observe(o.date, o.observed, taken)
		if !ok {
			continue
		}
		name := o.name + " (observed)"
		taken[model.FormatDate(shifted)] = name
		if shifted.Year() == year {
			out[model.FormatDate(shifted)] = name
		}
	}
	return out
}

func observe(d time.Time, obs observance, taken map[string]string) (time.Time, bool) {
	wd := d.Weekday()
	if wd != time.Saturday && wd != time.Sunday {
		return d, false
	}
	switch obs {
	case observeNearest:
		if wd == time.Saturday {
			return d.AddDate(0, 0, -1), true
		}
		return d.AddDate(0, 0, 1), true
	case observeNextWeekday:
		next := d.AddDate(0, 0, 1)
		for {
			w := next.Weekday()
			_, busy := taken[model.FormatDate(next)]
			if w != time.Saturday && w != time.Sunday && !busy {
				return next, true
			}
			next = next.AddDate(0, 0, 1)
		}
	}
	return d, false
}

func (r holidayRule) occurrences(year int) []time.Time {
	opt := rrule.ROption{
		Freq:    rrule.YEARLY,
		Dtstart: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		Until:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	switch {
	case r.easter != nil:
		opt.Byeaster = []int{*r.easter}
	case r.weekday != nil:
		opt.Bymonth = []int{int(r.month)}
		opt.Byweekday = []rrule.Weekday{*r.weekday}
		opt.Bymonthday = r.monthDay
	default:
		opt.Bymonth = []int{int(r.month)}
		opt.Bymonthday = []int{r.day}
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		slog.Warn("invalid holiday rule", "holiday", r.name, "error", err)
		return nil
	}
	return rule.All()
}
