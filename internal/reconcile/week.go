package reconcile

import (
	"context"
	"time"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
	"github.com/bryan-cox/tempoledger/internal/report"
)

// weekStart returns the Monday of the week containing d.
func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return model.Day(d).AddDate(0, 0, -offset)
}

// VerifyWeek checks Monday to Friday of the current week, backfilling gaps
// on past working days and logging overhead on PTO and holidays.
func (e *Engine) VerifyWeek(ctx context.Context) (model.WeeklySummary, error) {
	if err := ctx.Err(); err != nil {
		return model.WeeklySummary{}, err
	}
	started := e.now()
	today := e.today()
	monday := weekStart(today)
	summary := model.WeeklySummary{
		Start:        monday,
		End:          monday.AddDate(0, 0, 4),
		DailySeconds: e.policy.DailySeconds(),
	}

	e.out.Header("TEMPO WEEKLY VERIFICATION (started %s)\nWeek of %s", started.Format("2006-01-02 15:04:05"), monday.Format("January 02, 2006"))
	for i := 0; i < 5; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		d := monday.AddDate(0, 0, i)
		e.out.Line("\n--- %s (%s) ---", d.Weekday(), model.FormatDate(d))
		summary.Days = append(summary.Days, e.verifyDay(ctx, d, today))
	}

	e.out.WeeklySummary(summary, ShortfallThreshold)
	shortfall := summary.ExpectedSeconds() - summary.ActualSeconds()
	if report.SecondsToHours(shortfall).GreaterThan(ShortfallThreshold) {
		e.shortfall(ctx, "weekly", summary.Start, summary.End, summary.ExpectedSeconds(), summary.ActualSeconds())
	}

	status := history.StatusOK
	if shortfall > 0 {
		status = history.StatusWarning
	}
	e.journal(ctx, history.KindVerify, monday, started, status, summary.AddedSeconds(), "")
	return summary, nil
}

func (e *Engine) verifyDay(ctx context.Context, d, today time.Time) model.WeekDay {
	row := model.WeekDay{Date: d}
	if d.After(today) {
		e.out.Skip("Future date")
		row.State, row.Reason = model.WeekExcluded, "Future"
		return row
	}

	c := e.policy.Classify(d)
	if !c.IsWorking() {
		row.Reason = c.Reason()
		if !c.IsOffDay() || !e.strategy.NeedsTickets() {
			e.out.Skip("%s", c.Reason())
			row.State = model.WeekExcluded
			return row
		}
		off := e.strategy.OffDay(ctx, e, c)
		switch off.Status {
		case model.DaySkipped, model.DayNotConfigured:
			row.State = model.WeekExcluded
		default:
			row.State = model.WeekOffLogged
			row.ExistingSeconds = model.TotalSeconds(off.Preserved)
			row.AddedSeconds = model.TotalSeconds(off.Created)
			row.CreatedCount = len(off.Created)
		}
		return row
	}

	entries := e.strategy.Existing(ctx, e, d, d)
	row.ExistingSeconds = model.TotalSeconds(entries)
	if len(entries) > 0 {
		e.out.Line("  Existing: %s (%d worklogs)", model.Hours(row.ExistingSeconds), len(entries))
		for _, en := range entries {
			e.out.Line("    - %s: %s", en.TargetKey, model.Hours(en.DurationSeconds))
		}
	}

	daily := e.policy.DailySeconds()
	gap := daily - row.ExistingSeconds
	if gap <= 0 {
		e.out.OK("Complete (%s / %s)", model.Hours(row.ExistingSeconds), model.Hours(daily))
		row.State = model.WeekComplete
		return row
	}

	e.out.Warn("Gap: %s needed (have %s / %s)", model.Hours(gap), model.Hours(row.ExistingSeconds), model.Hours(daily))
	res := e.strategy.Backfill(ctx, e, d, gap, model.Keys(entries))
	row.Method = res.Method
	row.AddedSeconds = model.TotalSeconds(res.Created)
	row.CreatedCount = len(res.Created)
	if row.CreatedCount > 0 {
		row.State = model.WeekBackfilled
	} else {
		row.State = model.WeekGap
	}
	return row
}

func (e *Engine) shortfall(ctx context.Context, kind string, start, end time.Time, expected, actual int) {
	if !e.cfg.Notifications.ShortfallEnabled() {
		return
	}
	e.out.Line("\n  Sending shortfall notification...")
	e.send(ctx, notify.Shortfall(kind, model.FormatDate(start), model.FormatDate(end), expected, actual))
}
