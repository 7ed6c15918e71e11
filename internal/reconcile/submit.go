package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
	"github.com/bryan-cox/tempoledger/internal/report"
)

// SubmitMonth submits the current period on the last day of the month when
// the month's bookings cover the expected hours.
func (e *Engine) SubmitMonth(ctx context.Context) (model.SubmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return model.SubmissionResult{}, err
	}
	started := e.now()
	today := e.today()
	first := today.AddDate(0, 0, 1-today.Day())
	last := first.AddDate(0, 1, -1)

	var result model.SubmissionResult
	if today.Day() != last.Day() {
		result.Reason = fmt.Sprintf("Not the last day of the month (%d/%d). Skipping submission.", today.Day(), last.Day())
		slog.Info("skipping submission", "today", model.FormatDate(today), "last_day", model.FormatDate(last))
		e.out.Submission(result, e.policy.DailyHours())
		return result, nil
	}

	e.out.Header("TEMPO MONTHLY TIMESHEET SUBMISSION (%s)", started.Format("2006-01-02 15:04:05"))
	result.Attempted = true
	result.WorkingDays = e.policy.CountWorkingDays(first, today)
	result.ExpectedSeconds = int(e.policy.ExpectedHours(first, today).Mul(decimal.NewFromInt(model.SecondsPerHour)).IntPart())
	result.ActualSeconds = model.TotalSeconds(e.strategy.Existing(ctx, e, first, today))
	result.Period = e.bookings.CurrentPeriod(ctx)

	status := history.StatusOK
	short := report.SecondsToHours(result.ShortfallSeconds())
	switch {
	case short.GreaterThan(ShortfallThreshold):
		result.Reason = fmt.Sprintf("shortfall of %s", model.Hours(result.ShortfallSeconds()))
		status = history.StatusWarning
		e.shortfall(ctx, "monthly", first, today, result.ExpectedSeconds, result.ActualSeconds)
	default:
		if err := e.bookings.SubmitPeriod(ctx, result.Period); err != nil {
			slog.Error("timesheet submission failed", "period", result.Period, "error", err)
			result.Reason = err.Error()
			status = history.StatusFailed
			break
		}
		result.Submitted = true
		e.send(ctx, notify.SubmissionConfirmation(result.Period))
	}

	e.out.Submission(result, e.policy.DailyHours())
	slog.Info("timesheet submission finished", "period", result.Period, "submitted", result.Submitted)
	e.journal(ctx, history.KindSubmit, first, started, status, result.ActualSeconds, result.Reason)
	return result, nil
}
