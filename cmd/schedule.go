package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/report"
)

var (
	// scheduleCmd groups the calendar views
	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Show the working calendar.",
	}

	// scheduleShowCmd represents the schedule show command
	scheduleShowCmd = &cobra.Command{
		Use:   "show [YYYY-MM]",
		Short: "Print the month calendar with working days, PTO and holidays.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScheduleShowCommand,
	}

	// scheduleHolidaysCmd represents the schedule holidays command
	scheduleHolidaysCmd = &cobra.Command{
		Use:   "holidays [YYYY]",
		Short: "List the org and country holidays of a year.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScheduleHolidaysCommand,
	}

	ptoCmd = &cobra.Command{
		Use:   "pto",
		Short: "Manage PTO days.",
	}
	holidayCmd = &cobra.Command{
		Use:   "holiday",
		Short: "Manage extra holidays.",
	}
	workdayCmd = &cobra.Command{
		Use:   "workday",
		Short: "Manage compensatory working days (weekends or holidays that must be worked).",
	}
)

// dateSetCommands describes the add/remove/import verbs of one override set.
type dateSetCommands struct {
	parent *cobra.Command
	noun   string
	add    func(*calendar.Policy, []string) (calendar.Mutation, error)
	remove func(*calendar.Policy, []string) (calendar.Mutation, error)
	// importable enables "import FILE.ics".
	importable bool
}

func init() {
	sets := []dateSetCommands{
		{parent: ptoCmd, noun: "PTO list", add: (*calendar.Policy).AddPTO, remove: (*calendar.Policy).RemovePTO, importable: true},
		{parent: holidayCmd, noun: "extra holidays", add: (*calendar.Policy).AddExtraHoliday, remove: (*calendar.Policy).RemoveExtraHoliday, importable: true},
		{parent: workdayCmd, noun: "working days", add: (*calendar.Policy).AddWorkingDayOverride, remove: (*calendar.Policy).RemoveWorkingDayOverride},
	}
	for _, s := range sets {
		s.register()
		rootCmd.AddCommand(s.parent)
	}

	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleHolidaysCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func (s dateSetCommands) register() {
	s.parent.AddCommand(&cobra.Command{
		Use:   "add DATE...",
		Short: fmt.Sprintf("Add dates (YYYY-MM-DD) to the %s.", s.noun),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.apply(cmd, "Added", "to", s.add, args)
		},
	})
	s.parent.AddCommand(&cobra.Command{
		Use:   "remove DATE...",
		Short: fmt.Sprintf("Remove dates from the %s.", s.noun),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.apply(cmd, "Removed", "from", s.remove, args)
		},
	})
	if !s.importable {
		return
	}
	s.parent.AddCommand(&cobra.Command{
		Use:   "import FILE.ics",
		Short: fmt.Sprintf("Add every day covered by the events of an iCalendar file to the %s.", s.noun),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open calendar file: %w", err)
			}
			defer f.Close()
			days, err := calendar.ImportICS(f)
			if err != nil {
				return err
			}
			out := report.NewPrinter(cmd.OutOrStdout())
			if len(days) == 0 {
				out.Info("No events found in %s", args[0])
				return nil
			}
			out.Info("Found %d day(s) in %s", len(days), args[0])
			return s.apply(cmd, "Added", "to", s.add, calendar.Dates(days))
		},
	})
}

func (s dateSetCommands) apply(cmd *cobra.Command, verb, prep string, op func(*calendar.Policy, []string) (calendar.Mutation, error), dates []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	m, err := op(a.policy, dates)
	if err != nil {
		return err
	}
	out := report.NewPrinter(cmd.OutOrStdout())
	for _, d := range m.Applied {
		out.OK("%s %s %s %s", verb, d, prep, s.noun)
	}
	for _, reason := range m.Skipped {
		out.Skip("%s", reason)
	}
	return nil
}

func runScheduleShowCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	now := time.Now()
	year, month := now.Year(), now.Month()
	if len(args) == 1 {
		year, month, err = calendar.ParseMonth(args[0])
		if err != nil {
			return err
		}
	}
	out := report.NewPrinter(cmd.OutOrStdout())
	if msg, ok := a.policy.YearEndWarning(); ok {
		out.Warn("%s", msg)
	}
	out.MonthCalendar(year, month, a.policy.MonthCalendar(year, month), a.policy.DailyHours())
	return nil
}

func runScheduleHolidaysCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	year := time.Now().Year()
	if len(args) == 1 {
		year, err = strconv.Atoi(args[0])
		if err != nil || year < 1 {
			return fmt.Errorf("%w: year %q, use YYYY", calendar.ErrInvalidDate, args[0])
		}
	}
	report.NewPrinter(cmd.OutOrStdout()).Holidays(year, a.policy.Holidays(year))
	return nil
}
