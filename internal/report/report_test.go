package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/period"
)

func day(s string) time.Time {
	d, _ := model.ParseDate(s)
	return d
}

func TestIsOverhead(t *testing.T) {
	tests := []struct {
		key, prefix string
		want        bool
	}{
		{"OVERHEAD-12", "OVERHEAD-", true},
		{"overhead-3", "OVERHEAD-", true},
		{"PROJ-1", "OVERHEAD-", false},
		{"OVERHEAD-12", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverhead(tt.key, tt.prefix))
		})
	}
}

func TestCategorizeEntries(t *testing.T) {
	entries := []model.WorkEntry{
		{TargetKey: "OVERHEAD-1", DurationSeconds: 3600},
		{TargetKey: "PROJ-1", DurationSeconds: 7200},
		{TargetKey: "PROJ-2", DurationSeconds: 1800},
	}
	p := CategorizeEntries(entries, "OVERHEAD-")
	require.Len(t, p.Overhead, 1)
	require.Len(t, p.Work, 2)
	assert.Equal(t, 3600, model.TotalSeconds(p.Overhead))
}

func TestManualOnlySeconds(t *testing.T) {
	assert.Equal(t, 0, ManualOnlySeconds(3600, 7200))
	assert.Equal(t, 0, ManualOnlySeconds(3600, 3600))
	assert.Equal(t, 1800, ManualOnlySeconds(5400, 3600))

	e := ManualEntry(1800, day("2026-03-10"))
	assert.Equal(t, ManualTargetKey, e.TargetKey)
	assert.Equal(t, 1800, e.DurationSeconds)
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.OK("Logged %s on %s", "2.00h", "PROJ-1")
	p.Skip("future date")
	p.Fail("PROJ-2")
	p.Warn("gap")
	p.Info("planning week")
	assert.Equal(t, "[OK] Logged 2.00h on PROJ-1\n[SKIP] future date\n[FAIL] PROJ-2\n[!] gap\n[INFO] planning week\n", buf.String())
}

func TestDaySummary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).DaySummary(model.DaySummary{
		Date:          day("2026-03-10"),
		Status:        model.DayComplete,
		TargetSeconds: 28800,
		Preserved:     []model.WorkEntry{{TargetKey: "OVERHEAD-1", DurationSeconds: 7200}},
		Created:       []model.WorkEntry{{TargetKey: "PROJ-1", TargetLabel: "Build", DurationSeconds: 21600}},
	})
	out := buf.String()
	assert.Contains(t, out, "SYNC SUMMARY - 2026-03-10")
	assert.Contains(t, out, "Total entries: 2")
	assert.Contains(t, out, "Total hours: 8.00h / 8.00h")
	assert.Contains(t, out, "Status: [OK] Complete")

	buf.Reset()
	NewPrinter(&buf).DaySummary(model.DaySummary{Date: day("2026-03-14"), Status: model.DaySkipped, Reason: "Weekend (Saturday)"})
	assert.Contains(t, buf.String(), "[SKIP] 2026-03-14 is not a working day: Weekend (Saturday)")
	assert.NotContains(t, buf.String(), "Total hours")
}

func TestWeekDayStatus(t *testing.T) {
	assert.Equal(t, "[OK] Complete", WeekDayStatus(model.WeekDay{State: model.WeekComplete}))
	assert.Equal(t, "[+] Backfilled (stories)", WeekDayStatus(model.WeekDay{State: model.WeekBackfilled, Method: model.BackfillStories}))
	assert.Equal(t, "[!] Gap (no stories found)", WeekDayStatus(model.WeekDay{State: model.WeekGap}))
	assert.Equal(t, "[+] PTO (overhead logged)", WeekDayStatus(model.WeekDay{State: model.WeekOffLogged, Reason: "PTO", AddedSeconds: 60}))
	assert.Equal(t, "[OK] PTO (8.00h)", WeekDayStatus(model.WeekDay{State: model.WeekOffLogged, Reason: "PTO", ExistingSeconds: 28800}))
	assert.Equal(t, "[--] Future", WeekDayStatus(model.WeekDay{State: model.WeekExcluded, Reason: "Future"}))
}

func TestWeeklySummaryShortfall(t *testing.T) {
	w := model.WeeklySummary{
		DailySeconds: 28800,
		Days: []model.WeekDay{
			{Date: day("2026-03-09"), State: model.WeekComplete, ExistingSeconds: 28800},
			{Date: day("2026-03-10"), State: model.WeekGap, ExistingSeconds: 14400},
			{Date: day("2026-03-11"), State: model.WeekExcluded, Reason: "Future"},
		},
	}
	var buf bytes.Buffer
	NewPrinter(&buf).WeeklySummary(w, decimal.RequireFromString("0.5"))
	out := buf.String()
	assert.Contains(t, out, "Working days: 2  |  Expected: 16.00h  |  Actual: 12.00h")
	assert.Contains(t, out, "Status: [!] SHORTFALL 4.00h")
	assert.Contains(t, out, "Wednesday")
}

func TestSubmission(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Submission(model.SubmissionResult{Reason: "Not the last day of the month (10/31)"}, decimal.NewFromInt(8))
	assert.Equal(t, "[SKIP] Not the last day of the month (10/31)\n", buf.String())

	buf.Reset()
	p.Submission(model.SubmissionResult{
		Attempted: true, Period: "2026-03", WorkingDays: 22,
		ExpectedSeconds: 633600, ActualSeconds: 604800, Reason: "shortfall of 8.00h",
	}, decimal.NewFromInt(8))
	assert.Contains(t, buf.String(), "Expected: 176.00h (22 working days x 8h)")
	assert.Contains(t, buf.String(), "[!] SHORTFALL: 8.00h missing")
	assert.Contains(t, buf.String(), "[FAIL] Timesheet not submitted for 2026-03")

	buf.Reset()
	p.Submission(model.SubmissionResult{Attempted: true, Submitted: true, Period: "2026-03", ExpectedSeconds: 3600, ActualSeconds: 3600}, decimal.NewFromInt(8))
	assert.Contains(t, buf.String(), "[OK] Timesheet submitted successfully for 2026-03")
}

func TestMonthCalendar(t *testing.T) {
	sched := config.Default().Schedule
	sched.PTODays = []string{"2026-03-10"}
	sched.WorkingDays = []string{"2026-03-14"}
	pol := calendar.NewPolicy(sched, calendar.Options{})

	var buf bytes.Buffer
	NewPrinter(&buf).MonthCalendar(2026, time.March, pol.MonthCalendar(2026, time.March), sched.DailyHours)
	out := buf.String()

	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 4)
	assert.Equal(t, "March 2026", lines[1])
	// March 2026 starts on a Sunday.
	assert.Equal(t, strings.Repeat("     ", 6)+"|   1", lines[4])
	assert.Contains(t, out, "PTO: 1 (Mar 10)")
	assert.Contains(t, out, "Comp. working: 1 (Mar 14)")
	assert.Contains(t, out, "Working days: 22  |  Expected hours: 176.0h")
}

func TestOverhead(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Overhead(config.OverheadConfig{}, time.Time{}, nil)
	assert.Contains(t, buf.String(), "[INFO] No overhead stories configured.")

	w := 5.0
	oh := config.OverheadConfig{
		CurrentPI: &config.PIConfig{
			Identifier:   "PI.26.2.APR.17",
			Stories:      []model.Target{{Key: "OVERHEAD-1", Label: "Ceremonies", Hours: &w}},
			Distribution: model.DistributeCustom,
		},
		PTOStoryKey:   "OVERHEAD-9",
		ProjectPrefix: "OVERHEAD-",
	}
	buf.Reset()
	NewPrinter(&buf).Overhead(oh, day("2026-04-17"), &period.Window{Start: day("2026-04-18"), End: day("2026-04-24")})
	out := buf.String()
	assert.Contains(t, out, "PI: PI.26.2.APR.17")
	assert.Contains(t, out, "PI End Date: 2026-04-17")
	assert.Contains(t, out, "    - OVERHEAD-1: Ceremonies (5h)")
	assert.Contains(t, out, "PTO Story: OVERHEAD-9")
	assert.Contains(t, out, "Fallback: (none)")
	assert.Contains(t, out, "Planning week: 2026-04-18 to 2026-04-24")
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).History(nil)
	assert.Contains(t, buf.String(), "No runs recorded yet.")

	buf.Reset()
	NewPrinter(&buf).History([]history.Run{{Kind: history.KindSync, Trigger: history.TriggerCron, Date: "2026-03-10", Status: history.StatusOK, Seconds: 28800, StartedAt: time.Now()}})
	assert.Contains(t, buf.String(), "8.00h")
	assert.Contains(t, buf.String(), "cron")
}
