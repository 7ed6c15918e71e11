package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/report"
)

// SyncStrategy decides how a role fills its day.
type SyncStrategy interface {
	Name() string
	// NeedsTickets reports whether the strategy books through the ticket system.
	NeedsTickets() bool
	// Sync reconciles a working day.
	Sync(ctx context.Context, e *Engine, date time.Time) model.DaySummary
	// OffDay handles a PTO or holiday.
	OffDay(ctx context.Context, e *Engine, c calendar.Classification) model.DaySummary
	// Existing returns the entries that count toward the daily target.
	Existing(ctx context.Context, e *Engine, from, to time.Time) []model.WorkEntry
	// Backfill fills a historical gap of seconds on date.
	Backfill(ctx context.Context, e *Engine, date time.Time, seconds int, booked map[string]bool) BackfillResult
}

// BackfillResult describes what a backfill created.
type BackfillResult struct {
	Method  model.BackfillMethod
	Created []model.WorkEntry
}

// StrategyFor selects the strategy for role.
func StrategyFor(role config.Role) SyncStrategy {
	if role.AutoLogsTickets() {
		return DeveloperAutoLog{}
	}
	return ManualActivityLog{}
}

// DeveloperAutoLog distributes the day across active tickets through the
// ticket system, preserving overhead and manual-only bookings.
type DeveloperAutoLog struct{}

func (DeveloperAutoLog) Name() string       { return "developer_auto_log" }
func (DeveloperAutoLog) NeedsTickets() bool { return true }

// Sync implements the working-day state machine.
func (DeveloperAutoLog) Sync(ctx context.Context, e *Engine, date time.Time) model.DaySummary {
	daily := e.policy.DailySeconds()
	summary := model.DaySummary{Date: date, TargetSeconds: daily}

	ticketEntries, err := e.tickets.FetchMyWorklogs(ctx, date, date)
	ticketEntries = orEmpty(e, "ticket worklogs", ticketEntries, err)
	bookingEntries, err := e.bookings.FetchUserBookings(ctx, date, date)
	bookingEntries = orEmpty(e, "booking entries", bookingEntries, err)

	part := report.CategorizeEntries(ticketEntries, e.cfg.Overhead.ProjectPrefix)
	manual := report.ManualOnlySeconds(model.TotalSeconds(bookingEntries), model.TotalSeconds(ticketEntries))

	if len(part.Work) > 0 {
		e.out.Line("Removing %d non-overhead worklog(s) for %s...", len(part.Work), model.FormatDate(date))
		for _, w := range part.Work {
			if err := e.tickets.DeleteWorklog(ctx, w.TargetKey, w.SourceID); err != nil {
				slog.Warn("failed to delete worklog", "issue", w.TargetKey, "worklog_id", w.SourceID, "error", err)
				e.out.Fail("Could not remove worklog from %s", w.TargetKey)
				continue
			}
			e.out.OK("Removed %s from %s", model.Hours(w.DurationSeconds), w.TargetKey)
		}
		e.out.Line("")
	}

	summary.Preserved = append(summary.Preserved, part.Overhead...)
	if manual > 0 {
		summary.Preserved = append(summary.Preserved, report.ManualEntry(manual, date))
	}
	overhead := model.TotalSeconds(summary.Preserved)
	if overhead > 0 {
		e.out.Line("Overhead hours detected (%s):", model.Hours(overhead))
		for _, p := range part.Overhead {
			e.out.Line("  - %s: %s (Jira)", p.TargetKey, model.Hours(p.DurationSeconds))
		}
		if manual > 0 {
			e.out.Line("  - Manual Tempo entries: %s", model.Hours(manual))
		}
		e.out.Line("")
	}

	remaining := daily - overhead
	if remaining <= 0 {
		e.out.OK("Overhead hours (%s) meet/exceed daily target (%s). No additional logging needed.",
			model.Hours(overhead), model.Hours(daily))
		return finish(summary)
	}

	if e.periods.InPlanningWindow(e.cfg.Overhead.CurrentPI, date) {
		e.out.Info("PI planning week detected -- logging to overhead stories")
		targets, mode := piTargets(e.cfg.Overhead.PlanningPI)
		if len(targets) == 0 {
			e.out.Info("No planning PI stories configured, using current PI stories")
			targets, mode = e.currentTargets()
		}
		summary.Created = e.logOverhead(ctx, date, remaining, targets, mode)
		return finish(summary)
	}

	active, err := e.tickets.FetchMyActiveIssues(ctx)
	active = orEmpty(e, "active issues", active, err)
	if len(active) == 0 {
		slog.Warn("no active issues found", "statuses", model.ActiveStatuses)
		if e.cfg.Overhead.Configured() {
			e.out.Info("No active tickets found. Logging to overhead stories.")
			targets, mode := e.currentTargets()
			summary.Created = e.logOverhead(ctx, date, remaining, targets, mode)
			return finish(summary)
		}
		e.warnOverheadNotConfigured(ctx)
		e.out.Warn("No active tickets found and no overhead configured.")
		return finish(summary)
	}

	e.out.Line("Found %d active ticket(s):", len(active))
	for _, is := range active {
		e.out.Line("  - %s: %s", is.Key, is.Title)
	}
	e.out.Line("\n%s / %d tickets = %s each\n", model.Hours(remaining), len(active), model.Hours(remaining/len(active)))
	summary.Created = e.logTickets(ctx, date, remaining, active, "Logged")
	return finish(summary)
}

// OffDay books the missing part of the daily target on the PTO target.
// Every ticket-system entry on the date counts as existing.
func (DeveloperAutoLog) OffDay(ctx context.Context, e *Engine, c calendar.Classification) model.DaySummary {
	date := c.Date
	summary := model.DaySummary{Date: date, Reason: c.Reason(), TargetSeconds: e.policy.DailySeconds()}
	if !e.cfg.Overhead.Configured() {
		e.warnOverheadNotConfigured(ctx)
		slog.Info("skipped off day, overhead not configured", "date", model.FormatDate(date), "reason", c.Reason())
		summary.Status = model.DayNotConfigured
		return summary
	}

	e.out.Header("TEMPO DAILY SYNC - %s [%s]", model.FormatDate(date), c.Reason())
	e.out.Info("%s -- logging hours to overhead story", c.Reason())

	existing, err := e.tickets.FetchMyWorklogs(ctx, date, date)
	existing = orEmpty(e, "ticket worklogs", existing, err)
	summary.Preserved = existing
	have := model.TotalSeconds(existing)
	if have >= summary.TargetSeconds {
		e.out.OK("PTO hours already logged (%s)", model.Hours(have))
		summary.Status = model.DayAlreadyLogged
		return summary
	}

	targets, mode := e.ptoTargets()
	summary.Created = e.logOverhead(ctx, date, summary.TargetSeconds-have, targets, mode)
	return finish(summary)
}

// Existing returns the ticket-system worklogs in the range.
func (DeveloperAutoLog) Existing(ctx context.Context, e *Engine, from, to time.Time) []model.WorkEntry {
	entries, err := e.tickets.FetchMyWorklogs(ctx, from, to)
	return orEmpty(e, "ticket worklogs", entries, err)
}

// Backfill books a historical gap on tickets that were active on date and
// are not yet booked, falling back to overhead stories.
func (DeveloperAutoLog) Backfill(ctx context.Context, e *Engine, date time.Time, seconds int, booked map[string]bool) BackfillResult {
	issues, err := e.tickets.FetchIssuesActiveOnDate(ctx, date)
	issues = orEmpty(e, "historical active issues", issues, err)

	var unlogged []model.Issue
	for _, is := range issues {
		if !booked[is.Key] {
			unlogged = append(unlogged, is)
		}
	}

	if len(unlogged) == 0 {
		if e.cfg.Overhead.Configured() {
			e.out.Line("  No unlogged stories found -- using overhead stories")
			targets, mode := e.currentTargets()
			return BackfillResult{
				Method:  model.BackfillOverhead,
				Created: e.logOverhead(ctx, date, seconds, targets, mode),
			}
		}
		e.out.Line("  No unlogged stories found for this date")
		return BackfillResult{Method: model.BackfillNone}
	}

	e.out.Line("  Found %d unlogged story(ies) for %s:", len(unlogged), model.FormatDate(date))
	for _, is := range unlogged {
		e.out.Line("    - %s: %s", is.Key, is.Title)
	}
	return BackfillResult{
		Method:  model.BackfillStories,
		Created: e.logTickets(ctx, date, seconds, unlogged, "Backfilled"),
	}
}

// ManualActivityLog books a fixed list of activities directly in the booking
// system for roles that do not work from tickets.
type ManualActivityLog struct{}

func (ManualActivityLog) Name() string       { return "manual_activity_log" }
func (ManualActivityLog) NeedsTickets() bool { return false }

// Sync skips dates that already have bookings and otherwise books each
// configured activity on the organization default issue.
func (ManualActivityLog) Sync(ctx context.Context, e *Engine, date time.Time) model.DaySummary {
	summary := model.DaySummary{Date: date, TargetSeconds: e.policy.DailySeconds()}
	if len(e.cfg.ManualActivities) == 0 {
		slog.Warn("no manual activities configured")
		e.out.Warn("No manual activities configured. Add manual_activities to the config file.")
		return finish(summary)
	}

	existing, err := e.bookings.FetchUserBookings(ctx, date, date)
	existing = orEmpty(e, "booking entries", existing, err)
	if len(existing) > 0 {
		slog.Info("manual entries already exist", "date", model.FormatDate(date), "count", len(existing))
		e.out.Skip("Timesheet entries already exist for %s", model.FormatDate(date))
		summary.Preserved = existing
		return finish(summary)
	}

	key := e.cfg.Organization.DefaultIssueKey
	for _, a := range e.cfg.ManualActivities {
		seconds := int(a.Hours.Mul(decimal.NewFromInt(model.SecondsPerHour)).IntPart())
		if seconds <= 0 {
			continue
		}
		if err := e.bookings.CreateBooking(ctx, key, seconds, date, a.Activity); err != nil {
			slog.Warn("failed to create booking", "issue", key, "activity", a.Activity, "error", err)
			e.out.Fail("%s", a.Activity)
			continue
		}
		e.out.OK("Created: %s - %sh", a.Activity, a.Hours.String())
		summary.Created = append(summary.Created, model.WorkEntry{
			TargetKey:       key,
			TargetLabel:     a.Activity,
			DurationSeconds: seconds,
			Date:            date,
			Comment:         a.Activity,
		})
	}
	return finish(summary)
}

// OffDay skips PTO and holidays; manual roles book nothing on them.
func (ManualActivityLog) OffDay(_ context.Context, e *Engine, c calendar.Classification) model.DaySummary {
	return e.skipped(c)
}

// Existing returns the booking-system entries in the range.
func (ManualActivityLog) Existing(ctx context.Context, e *Engine, from, to time.Time) []model.WorkEntry {
	entries, err := e.bookings.FetchUserBookings(ctx, from, to)
	return orEmpty(e, "booking entries", entries, err)
}

// Backfill never invents activities for past dates.
func (ManualActivityLog) Backfill(context.Context, *Engine, time.Time, int, map[string]bool) BackfillResult {
	return BackfillResult{Method: model.BackfillNone}
}
