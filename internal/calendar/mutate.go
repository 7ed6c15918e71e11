package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/model"
)

// ErrReadOnly is returned by mutations on a policy without a store.
var ErrReadOnly = errors.New("calendar policy has no config store")

var errNoChange = errors.New("no change")

// Mutation reports which requested dates were applied and why the others were skipped.
type Mutation struct {
	Applied []string
	Skipped []string
}

// dateSet names one of the user-managed override sets.
type dateSet int

const (
	setPTO dateSet = iota
	setExtraHoliday
	setWorkingDay
)

func (s dateSet) label() string {
	switch s {
	case setPTO:
		return "PTO list"
	case setExtraHoliday:
		return "extra holidays"
	default:
		return "working days"
	}
}

func (s dateSet) field(sched *config.ScheduleConfig) *[]string {
	switch s {
	case setPTO:
		return &sched.PTODays
	case setExtraHoliday:
		return &sched.ExtraHolidays
	default:
		return &sched.WorkingDays
	}
}

// AddPTO adds PTO days. Weekend dates are skipped since no PTO is needed.
func (p *Policy) AddPTO(dates []string) (Mutation, error) {
	return p.mutate(setPTO, dates, true)
}

// RemovePTO removes PTO days.
func (p *Policy) RemovePTO(dates []string) (Mutation, error) {
	return p.mutate(setPTO, dates, false)
}

// AddExtraHoliday adds user-defined holidays.
func (p *Policy) AddExtraHoliday(dates []string) (Mutation, error) {
	return p.mutate(setExtraHoliday, dates, true)
}

// RemoveExtraHoliday removes user-defined holidays.
func (p *Policy) RemoveExtraHoliday(dates []string) (Mutation, error) {
	return p.mutate(setExtraHoliday, dates, false)
}

// AddWorkingDayOverride adds compensatory working days.
func (p *Policy) AddWorkingDayOverride(dates []string) (Mutation, error) {
	return p.mutate(setWorkingDay, dates, true)
}

// RemoveWorkingDayOverride removes compensatory working days.
func (p *Policy) RemoveWorkingDayOverride(dates []string) (Mutation, error) {
	return p.mutate(setWorkingDay, dates, false)
}

// mutate applies the change inside one store transaction. The store is only
// written when at least one date was applied.
func (p *Policy) mutate(set dateSet, dates []string, add bool) (Mutation, error) {
	if p.store == nil {
		return Mutation{}, ErrReadOnly
	}

	var m Mutation
	sched, err := p.store.UpdateSchedule(func(sc *config.ScheduleConfig) error {
		m = Mutation{}
		field := set.field(sc)
		if add {
			*field, m = addDates(set, *field, dates)
		} else {
			*field, m = removeDates(set, *field, dates)
		}
		if len(m.Applied) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return m, nil
	}
	if err != nil {
		return Mutation{}, fmt.Errorf("could not update %s: %w", set.label(), err)
	}

	p.setSchedule(sched)
	slog.Info("schedule updated", "set", set.label(), "add", add, "applied", m.Applied)
	return m, nil
}

func addDates(set dateSet, current, dates []string) ([]string, Mutation) {
	var m Mutation
	existing := toSet(current)
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if err := config.ValidateDate(d); err != nil {
			m.Skipped = append(m.Skipped, fmt.Sprintf("%s: %v", d, err))
			continue
		}
		t, _ := model.ParseDate(d)
		if set == setPTO && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
			m.Skipped = append(m.Skipped, fmt.Sprintf("%s is a %s (weekend), PTO not needed", d, t.Weekday()))
			continue
		}
		if existing[d] {
			m.Skipped = append(m.Skipped, fmt.Sprintf("%s already in %s", d, set.label()))
			continue
		}
		existing[d] = true
		current = append(current, d)
		m.Applied = append(m.Applied, d)
	}
	return current, m
}

func removeDates(set dateSet, current, dates []string) ([]string, Mutation) {
	var m Mutation
	remove := make(map[string]bool)
	existing := toSet(current)
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if !existing[d] || remove[d] {
			m.Skipped = append(m.Skipped, fmt.Sprintf("%s not in %s", d, set.label()))
			continue
		}
		remove[d] = true
		m.Applied = append(m.Applied, d)
	}
	kept := current[:0:0]
	for _, d := range current {
		if !remove[d] {
			kept = append(kept, d)
		}
	}
	return kept, m
}
