package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/period"
)

// Status line prefixes.
const (
	PrefixOK   = "[OK]"
	PrefixSkip = "[SKIP]"
	PrefixFail = "[FAIL]"
	PrefixWarn = "[!]"
	PrefixInfo = "[INFO]"
)

const ruleWidth = 60

// Printer writes user-facing status lines and summaries.
type Printer struct {
	out io.Writer
}

// NewPrinter returns a printer writing to out. A nil out discards output.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{out: out}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

func (p *Printer) status(prefix, format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

func (p *Printer) OK(format string, args ...any)   { p.status(PrefixOK, format, args...) }
func (p *Printer) Skip(format string, args ...any) { p.status(PrefixSkip, format, args...) }
func (p *Printer) Fail(format string, args ...any) { p.status(PrefixFail, format, args...) }
func (p *Printer) Warn(format string, args ...any) { p.status(PrefixWarn, format, args...) }
func (p *Printer) Info(format string, args ...any) { p.status(PrefixInfo, format, args...) }

// Line prints a plain line.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Header prints a ruled section title.
func (p *Printer) Header(format string, args ...any) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", rule, fmt.Sprintf(format, args...), rule)
}

// DaySummary prints the footer of a daily sync.
func (p *Printer) DaySummary(s model.DaySummary) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(p.out, "\n%s\n", rule)
	switch s.Status {
	case model.DaySkipped:
		fmt.Fprintf(p.out, "%s %s is not a working day: %s\n", PrefixSkip, model.FormatDate(s.Date), s.Reason)
		fmt.Fprintf(p.out, "%s\n", rule)
		return
	case model.DayNotConfigured:
		fmt.Fprintf(p.out, "%s %s is %s, overhead not configured\n", PrefixSkip, model.FormatDate(s.Date), s.Reason)
		fmt.Fprintf(p.out, "%s\n", rule)
		return
	}

	fmt.Fprintf(p.out, "SYNC SUMMARY - %s\n%s\n", model.FormatDate(s.Date), rule)
	for _, e := range s.Preserved {
		fmt.Fprintf(p.out, "  = %-20s %8s  %s\n", e.TargetKey, model.Hours(e.DurationSeconds), e.Label())
	}
	for _, e := range s.Created {
		fmt.Fprintf(p.out, "  + %-20s %8s  %s\n", e.TargetKey, model.Hours(e.DurationSeconds), e.Label())
	}
	fmt.Fprintf(p.out, "Total entries: %d\n", len(s.Preserved)+len(s.Created))
	fmt.Fprintf(p.out, "Total hours: %s / %s\n", model.Hours(s.TotalSeconds()), model.Hours(s.TargetSeconds))
	if s.TotalSeconds() >= s.TargetSeconds {
		fmt.Fprintf(p.out, "Status: %s Complete\n", PrefixOK)
	} else {
		fmt.Fprintf(p.out, "Status: %s Incomplete\n", PrefixWarn)
	}
	fmt.Fprintf(p.out, "%s\n", rule)
}

// WeekDayStatus renders the status column of one weekly row.
func WeekDayStatus(d model.WeekDay) string {
	switch d.State {
	case model.WeekComplete:
		return PrefixOK + " Complete"
	case model.WeekBackfilled:
		return fmt.Sprintf("[+] Backfilled (%s)", d.Method)
	case model.WeekGap:
		return PrefixWarn + " Gap (no stories found)"
	case model.WeekOffLogged:
		if d.AddedSeconds > 0 {
			return fmt.Sprintf("[+] %s (overhead logged)", d.Reason)
		}
		return fmt.Sprintf("%s %s (%s)", PrefixOK, d.Reason, model.Hours(d.ExistingSeconds))
	default:
		return "[--] " + d.Reason
	}
}

// WeeklySummary prints the weekly verification table.
func (p *Printer) WeeklySummary(w model.WeeklySummary, threshold decimal.Decimal) {
	p.Header("WEEKLY SUMMARY")
	fmt.Fprintf(p.out, "%-12s %-12s %-34s %9s %9s\n", "Day", "Date", "Status", "Existing", "Added")
	fmt.Fprintln(p.out, strings.Repeat("-", 80))
	for _, d := range w.Days {
		fmt.Fprintf(p.out, "%-12s %-12s %-34s %9s %9s\n",
			d.Date.Weekday(), model.FormatDate(d.Date), WeekDayStatus(d),
			model.Hours(d.ExistingSeconds), model.Hours(d.AddedSeconds))
	}
	fmt.Fprintln(p.out, strings.Repeat("-", 80))
	fmt.Fprintf(p.out, "Working days: %d  |  Expected: %s  |  Actual: %s\n",
		w.WorkingDays(), model.Hours(w.ExpectedSeconds()), model.Hours(w.ActualSeconds()))
	if w.CreatedCount() > 0 {
		fmt.Fprintf(p.out, "Worklogs created: %d  |  Hours backfilled: %s\n", w.CreatedCount(), model.Hours(w.AddedSeconds()))
	}
	shortfall := w.ExpectedSeconds() - w.ActualSeconds()
	if SecondsToHours(shortfall).GreaterThan(threshold) {
		fmt.Fprintf(p.out, "Status: %s SHORTFALL %s\n", PrefixWarn, model.Hours(shortfall))
	} else {
		fmt.Fprintf(p.out, "Status: %s All hours accounted for\n", PrefixOK)
	}
}

// Submission prints the monthly hours check and the submission outcome.
func (p *Printer) Submission(r model.SubmissionResult, daily decimal.Decimal) {
	if !r.Attempted {
		p.Skip("%s", r.Reason)
		return
	}
	fmt.Fprintln(p.out, "Monthly Hours Check:")
	fmt.Fprintf(p.out, "  Expected: %s (%d working days x %sh)\n", model.Hours(r.ExpectedSeconds), r.WorkingDays, daily.String())
	fmt.Fprintf(p.out, "  Actual:   %s\n", model.Hours(r.ActualSeconds))
	if r.ShortfallSeconds() > 0 && !r.Submitted {
		fmt.Fprintf(p.out, "  %s SHORTFALL: %s missing\n", PrefixWarn, model.Hours(r.ShortfallSeconds()))
	} else {
		fmt.Fprintf(p.out, "  %s Hours complete\n", PrefixOK)
	}
	fmt.Fprintln(p.out)
	switch {
	case r.Submitted:
		p.OK("Timesheet submitted successfully for %s", r.Period)
	default:
		p.Fail("Timesheet not submitted for %s: %s", r.Period, r.Reason)
	}
}

// SecondsToHours converts seconds to decimal hours.
func SecondsToHours(seconds int) decimal.Decimal {
	return decimal.NewFromInt(int64(seconds)).Div(decimal.NewFromInt(model.SecondsPerHour))
}

// MonthCalendar prints a Monday-first grid of day labels with a summary.
func (p *Printer) MonthCalendar(year int, month time.Month, days []calendar.CalendarDay, daily decimal.Decimal) {
	fmt.Fprintf(p.out, "\n%s %d\n", month, year)
	fmt.Fprintln(p.out, strings.Repeat("=", 48))
	fmt.Fprintln(p.out, "Mon  Tue  Wed  Thu  Fri  | Sat  Sun")

	var dates, labels strings.Builder
	var holidays, pto, comp []calendar.CalendarDay
	working := 0
	for i, d := range days {
		wd := mondayIndex(d.Date.Weekday())
		if i == 0 {
			pad := strings.Repeat("     ", wd)
			if wd > 5 {
				pad += "| "
			}
			dates.WriteString(pad)
			labels.WriteString(pad)
		}
		if wd == 5 {
			dates.WriteString("| ")
			labels.WriteString("| ")
		}
		fmt.Fprintf(&dates, "%3d  ", d.Date.Day())
		fmt.Fprintf(&labels, "%3s  ", d.Label)

		switch d.Label {
		case calendar.LabelWorking:
			working++
		case calendar.LabelCompWorking:
			working++
			comp = append(comp, d)
		case calendar.LabelHoliday:
			holidays = append(holidays, d)
		case calendar.LabelPTO:
			pto = append(pto, d)
		}

		if wd == 6 || i == len(days)-1 {
			fmt.Fprintln(p.out, strings.TrimRight(dates.String(), " "))
			fmt.Fprintln(p.out, strings.TrimRight(labels.String(), " "))
			dates.Reset()
			labels.Reset()
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Legend: W=Working  H=Holiday  PTO=PTO  CW=Comp. Working  .=Weekend")
	fmt.Fprintln(p.out)
	expected := decimal.NewFromInt(int64(working)).Mul(daily)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Working days: %d  |  Expected hours: %sh\n", working, expected.StringFixed(1))
	short := month.String()[:3]
	if len(holidays) > 0 {
		names := make([]string, 0, len(holidays))
		for _, h := range holidays {
			name := h.Name
			if name == "" {
				name = h.Reason()
			}
			names = append(names, fmt.Sprintf("%s - %s %d", name, short, h.Date.Day()))
		}
		fmt.Fprintf(p.out, "  Holidays: %d (%s)\n", len(holidays), strings.Join(names, ", "))
	}
	if len(pto) > 0 {
		fmt.Fprintf(p.out, "  PTO: %d (%s)\n", len(pto), dayList(short, pto))
	}
	if len(comp) > 0 {
		fmt.Fprintf(p.out, "  Comp. working: %d (%s)\n", len(comp), dayList(short, comp))
	}
}

// Holidays prints the named holidays of a year.
func (p *Printer) Holidays(year int, holidays []calendar.Holiday) {
	if len(holidays) == 0 {
		p.Info("No holidays found for %d.", year)
		return
	}
	fmt.Fprintf(p.out, "\nHolidays %d\n", year)
	fmt.Fprintln(p.out, strings.Repeat("=", 48))
	for _, h := range holidays {
		fmt.Fprintf(p.out, "  %s  %s\n", h.Date, h.Name)
	}
}

func dayList(month string, days []calendar.CalendarDay) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%s %d", month, d.Date.Day()))
	}
	return strings.Join(parts, ", ")
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Overhead prints the overhead configuration and the planning window of the current PI.
func (p *Printer) Overhead(oh config.OverheadConfig, end time.Time, window *period.Window) {
	if !oh.Configured() {
		p.Info("No overhead stories configured.")
		fmt.Fprintln(p.out, "  Set overhead.current_pi in the config file.")
		return
	}
	fmt.Fprintln(p.out, "\nOverhead Configuration")
	fmt.Fprintln(p.out, strings.Repeat("=", 50))
	cur := oh.CurrentPI
	fmt.Fprintf(p.out, "  PI: %s\n", orNone(cur.Identifier))
	endText := ""
	if !end.IsZero() {
		endText = model.FormatDate(end)
	}
	fmt.Fprintf(p.out, "  PI End Date: %s\n", orNone(endText))
	fmt.Fprintf(p.out, "  Distribution: %s\n", orNone(string(cur.Distribution)))
	fmt.Fprintln(p.out, "  Stories:")
	p.targets(cur.Stories)
	fmt.Fprintf(p.out, "  PTO Story: %s\n", orNone(oh.PTOStoryKey))
	if pl := oh.PlanningPI; pl != nil && len(pl.Stories) > 0 {
		fmt.Fprintf(p.out, "  Planning PI: %s\n", orNone(pl.Identifier))
		fmt.Fprintf(p.out, "  Planning Distribution: %s\n", orNone(string(pl.Distribution)))
		p.targets(pl.Stories)
	}
	fmt.Fprintf(p.out, "  Fallback: %s\n", orNone(oh.FallbackIssueKey))
	fmt.Fprintf(p.out, "  Project prefix: %s\n", oh.ProjectPrefix)
	if window != nil {
		fmt.Fprintf(p.out, "\n  Planning week: %s to %s\n", model.FormatDate(window.Start), model.FormatDate(window.End))
	}
}

func (p *Printer) targets(ts []model.Target) {
	for _, t := range ts {
		weight := ""
		if t.Hours != nil {
			weight = fmt.Sprintf(" (%gh)", *t.Hours)
		}
		fmt.Fprintf(p.out, "    - %s: %s%s\n", t.Key, t.Label, weight)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// History prints journaled runs, newest first.
func (p *Printer) History(runs []history.Run) {
	if len(runs) == 0 {
		p.Info("No runs recorded yet.")
		return
	}
	fmt.Fprintf(p.out, "%-19s  %-11s  %-6s  %-10s  %-8s  %8s  %s\n", "Started", "Kind", "Via", "Date", "Status", "Hours", "Message")
	fmt.Fprintln(p.out, strings.Repeat("-", 90))
	for _, r := range runs {
		fmt.Fprintf(p.out, "%-19s  %-11s  %-6s  %-10s  %-8s  %8s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Kind, r.Trigger, r.Date, r.Status,
			model.Hours(r.Seconds), r.Message)
	}
}
