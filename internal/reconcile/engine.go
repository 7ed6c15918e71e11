// Package reconcile drives the daily sync, weekly verification and monthly
// submission against the ticket and booking systems.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bryan-cox/tempoledger/internal/allocate"
	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/jira"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
	"github.com/bryan-cox/tempoledger/internal/period"
	"github.com/bryan-cox/tempoledger/internal/report"
)

// ShortfallThreshold is the number of missing hours tolerated before a
// shortfall is reported.
var ShortfallThreshold = decimal.RequireFromString("0.5")

// ErrNoTicketSystem is returned when a ticket-logging role has no ticket client.
var ErrNoTicketSystem = errors.New("ticket system client is required for this role")

// TicketSystem is the ticket-tracking capability the engine consumes.
type TicketSystem interface {
	FetchMyWorklogs(ctx context.Context, from, to time.Time) ([]model.WorkEntry, error)
	DeleteWorklog(ctx context.Context, key, worklogID string) error
	FetchMyActiveIssues(ctx context.Context) ([]model.Issue, error)
	FetchIssuesActiveOnDate(ctx context.Context, date time.Time) ([]model.Issue, error)
	FetchIssueDetails(ctx context.Context, key string) (model.IssueDetails, error)
	CreateWorklog(ctx context.Context, key string, seconds int, date time.Time, comment string) error
	FetchOverheadStories(ctx context.Context, project string) ([]jira.OverheadStory, error)
}

// BookingSystem is the time-booking capability the engine consumes.
type BookingSystem interface {
	FetchUserBookings(ctx context.Context, from, to time.Time) ([]model.WorkEntry, error)
	CreateBooking(ctx context.Context, issueKey string, seconds int, date time.Time, description string) error
	SubmitPeriod(ctx context.Context, periodKey string) error
	CurrentPeriod(ctx context.Context) string
}

// ConfigStore persists configuration changes made by the engine.
type ConfigStore interface {
	Update(fn func(*config.Config) error) (*config.Config, error)
}

// Journal records finished runs.
type Journal interface {
	Record(run *history.Run) error
}

// Deps are the collaborators of an Engine. Store, Notifier, History, Out
// and Clock are optional.
type Deps struct {
	Config   *config.Config
	Store    ConfigStore
	Policy   *calendar.Policy
	Periods  *period.Resolver
	Tickets  TicketSystem
	Bookings BookingSystem
	Notifier notify.Notifier
	History  Journal
	Out      io.Writer
	Clock    func() time.Time
}

// Engine reconciles booked time with the working calendar.
type Engine struct {
	cfg      *config.Config
	store    ConfigStore
	policy   *calendar.Policy
	periods  *period.Resolver
	tickets  TicketSystem
	bookings BookingSystem
	notifier notify.Notifier
	history  Journal
	out      *report.Printer
	now      func() time.Time
	strategy SyncStrategy
}

// New validates deps and selects the sync strategy for the configured role.
func New(d Deps) (*Engine, error) {
	if d.Config == nil || d.Policy == nil || d.Bookings == nil {
		return nil, errors.New("reconcile: config, calendar policy and booking system are required")
	}
	e := &Engine{
		cfg:      d.Config,
		store:    d.Store,
		policy:   d.Policy,
		periods:  d.Periods,
		tickets:  d.Tickets,
		bookings: d.Bookings,
		notifier: d.Notifier,
		history:  d.History,
		out:      report.NewPrinter(d.Out),
		now:      d.Clock,
		strategy: StrategyFor(d.Config.User.Role),
	}
	if e.strategy.NeedsTickets() && e.tickets == nil {
		return nil, fmt.Errorf("%w: role %s", ErrNoTicketSystem, d.Config.User.Role)
	}
	if e.periods == nil {
		e.periods = period.NewResolver(d.Policy)
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Strategy returns the selected sync strategy.
func (e *Engine) Strategy() SyncStrategy {
	return e.strategy
}

// Start prints the start-up warnings: missing org holidays for next year
// and, for ticket-logging roles, missing or stale overhead stories.
func (e *Engine) Start(ctx context.Context) {
	if msg, ok := e.policy.YearEndWarning(); ok {
		e.out.Warn("%s", msg)
	}
	if !e.strategy.NeedsTickets() {
		return
	}
	if !e.cfg.Overhead.Configured() {
		e.out.Info("Overhead stories not configured. Set overhead.current_pi in the config when ready.")
		return
	}
	if !e.checkPICurrent(ctx) {
		e.out.Warn("Overhead stories may be from a previous PI. Update overhead.current_pi.")
	}
}

func (e *Engine) today() time.Time {
	return model.Day(e.now())
}

// ReconcileDay syncs one date. A zero date means today.
func (e *Engine) ReconcileDay(ctx context.Context, date time.Time) (model.DaySummary, error) {
	if err := ctx.Err(); err != nil {
		return model.DaySummary{}, err
	}
	started := e.now()
	if date.IsZero() {
		date = e.today()
	}
	date = model.Day(date)

	c := e.policy.Classify(date)
	var summary model.DaySummary
	if !c.IsWorking() {
		if c.IsOffDay() {
			summary = e.strategy.OffDay(ctx, e, c)
		} else {
			summary = e.skipped(c)
		}
	} else {
		e.out.Header("TEMPO DAILY SYNC - %s (started %s)", model.FormatDate(date), started.Format("2006-01-02 15:04:05"))
		summary = e.strategy.Sync(ctx, e, date)
	}

	e.out.DaySummary(summary)
	switch summary.Status {
	case model.DaySkipped:
		slog.Info("skipped non-working day", "date", model.FormatDate(date), "reason", summary.Reason)
		e.out.Line("       Add it to schedule.working_days (workday add) if this day should be worked.")
	case model.DayNotConfigured:
	default:
		e.send(ctx, notify.DailySummary(summary))
		slog.Info("sync completed", "date", model.FormatDate(date), "status", summary.Status,
			"hours", report.SecondsToHours(summary.TotalSeconds()).StringFixed(2))
	}
	e.journal(ctx, history.KindSync, date, started, syncStatus(summary.Status), summary.TotalSeconds(), summary.Reason)
	return summary, nil
}

func (e *Engine) skipped(c calendar.Classification) model.DaySummary {
	return model.DaySummary{
		Date:          c.Date,
		Status:        model.DaySkipped,
		Reason:        c.Reason(),
		TargetSeconds: e.policy.DailySeconds(),
	}
}

// finish sets the completion status of a summary from its totals.
func finish(s model.DaySummary) model.DaySummary {
	if s.Status != "" {
		return s
	}
	if s.TotalSeconds() >= s.TargetSeconds {
		s.Status = model.DayComplete
	} else {
		s.Status = model.DayIncomplete
	}
	return s
}

func syncStatus(s model.DayStatus) string {
	switch s {
	case model.DayComplete, model.DayAlreadyLogged:
		return history.StatusOK
	case model.DaySkipped:
		return history.StatusSkipped
	default:
		return history.StatusWarning
	}
}

// orEmpty is the single degradation point for remote reads: a failed fetch
// is logged, surfaced as a [!] line, and replaced by the zero value.
func orEmpty[T any](e *Engine, what string, v T, err error) T {
	if err == nil {
		return v
	}
	slog.Warn("remote fetch failed, continuing without data", "fetch", what, "error", err)
	e.out.Warn("Could not fetch %s, continuing as if there were none (%v)", what, err)
	var zero T
	return zero
}

func (e *Engine) send(ctx context.Context, msg notify.Message) {
	if err := e.notifier.Notify(ctx, msg); err != nil {
		slog.Warn("notification failed", "title", msg.Title, "error", err)
	}
}

func (e *Engine) journal(ctx context.Context, kind string, date, started time.Time, status string, seconds int, message string) {
	if e.history == nil {
		return
	}
	run := &history.Run{
		Kind:       kind,
		Trigger:    history.TriggerFrom(ctx),
		Date:       model.FormatDate(date),
		Status:     status,
		Seconds:    seconds,
		Message:    message,
		StartedAt:  started,
		FinishedAt: e.now(),
	}
	if err := e.history.Record(run); err != nil {
		slog.Warn("failed to journal run", "kind", kind, "error", err)
	}
}

func (e *Engine) warnOverheadNotConfigured(ctx context.Context) {
	e.out.Warn("Overhead stories not configured for current PI.")
	e.out.Line("    Set overhead.current_pi stories in the config file.")
	slog.Warn("overhead stories not configured")
	e.send(ctx, notify.OverheadNotConfigured())
}

func (e *Engine) currentTargets() ([]model.Target, model.DistributionMode) {
	return piTargets(e.cfg.Overhead.CurrentPI)
}

func (e *Engine) ptoTargets() ([]model.Target, model.DistributionMode) {
	if key := e.cfg.Overhead.PTOStoryKey; key != "" {
		return []model.Target{{Key: key, Label: key}}, model.DistributeSingle
	}
	return e.currentTargets()
}

func piTargets(pi *config.PIConfig) ([]model.Target, model.DistributionMode) {
	if pi == nil {
		return nil, model.DistributeEqual
	}
	mode := pi.Distribution
	if !mode.Valid() {
		mode = model.DistributeEqual
	}
	return pi.Stories, mode
}

// logOverhead books seconds on overhead targets through the ticket system,
// falling back to the configured fallback key when targets is empty.
func (e *Engine) logOverhead(ctx context.Context, date time.Time, seconds int, targets []model.Target, mode model.DistributionMode) []model.WorkEntry {
	if len(targets) == 0 {
		fallback := e.cfg.Overhead.FallbackIssueKey
		if fallback == "" {
			e.out.Warn("No overhead stories configured. Set overhead.current_pi in the config file.")
			return nil
		}
		e.out.Info("Using fallback overhead: %s", fallback)
		targets = []model.Target{{Key: fallback, Label: fallback}}
		mode = model.DistributeSingle
	}

	allocs, err := allocate.Allocate(seconds, targets, mode)
	if err != nil {
		slog.Warn("overhead allocation failed", "error", err)
		e.out.Fail("Could not allocate overhead hours: %v", err)
		return nil
	}

	var created []model.WorkEntry
	for _, a := range allocs {
		comment := "Overhead - " + a.Target.DisplayLabel()
		if err := e.tickets.CreateWorklog(ctx, a.Target.Key, a.Seconds, date, comment); err != nil {
			slog.Warn("failed to create overhead worklog", "issue", a.Target.Key, "date", model.FormatDate(date), "error", err)
			e.out.Fail("%s", a.Target.Key)
			continue
		}
		e.out.OK("Logged %s on %s (overhead)", model.Hours(a.Seconds), a.Target.Key)
		created = append(created, model.WorkEntry{
			TargetKey:       a.Target.Key,
			TargetLabel:     a.Target.DisplayLabel(),
			DurationSeconds: a.Seconds,
			Date:            date,
			Comment:         comment,
		})
	}
	return created
}

// logTickets splits seconds equally across issues and books each with a
// synthesized work summary. verb is shown in the status line.
func (e *Engine) logTickets(ctx context.Context, date time.Time, seconds int, issues []model.Issue, verb string) []model.WorkEntry {
	allocs, err := allocate.Allocate(seconds, model.TargetsFromIssues(issues), model.DistributeEqual)
	if err != nil {
		slog.Warn("ticket allocation failed", "error", err)
		return nil
	}
	var created []model.WorkEntry
	for _, a := range allocs {
		comment := e.workSummary(ctx, model.Issue{Key: a.Target.Key, Title: a.Target.Label})
		if err := e.tickets.CreateWorklog(ctx, a.Target.Key, a.Seconds, date, comment); err != nil {
			slog.Warn("failed to create worklog", "issue", a.Target.Key, "date", model.FormatDate(date), "error", err)
			e.out.Fail("%s", a.Target.Key)
			continue
		}
		e.out.OK("%s %s on %s", verb, model.Hours(a.Seconds), a.Target.Key)
		e.out.Line("    Description: %s", truncate(strings.ReplaceAll(comment, "\n", " "), 80))
		created = append(created, model.WorkEntry{
			TargetKey:       a.Target.Key,
			TargetLabel:     a.Target.Label,
			DurationSeconds: a.Seconds,
			Date:            date,
			Comment:         comment,
		})
	}
	return created
}

// checkPICurrent compares the configured PI with the PIs of in-progress
// overhead stories, at most once per day.
func (e *Engine) checkPICurrent(ctx context.Context) bool {
	stored := ""
	if e.cfg.Overhead.CurrentPI != nil {
		stored = e.cfg.Overhead.CurrentPI.Identifier
	}
	if stored == "" {
		return false
	}
	today := model.FormatDate(e.today())
	if e.cfg.Overhead.LastPICheck == today {
		return true
	}

	project := strings.TrimSuffix(e.cfg.Overhead.ProjectPrefix, "-")
	stories, err := e.tickets.FetchOverheadStories(ctx, project)
	stories = orEmpty(e, "overhead stories", stories, err)
	if len(stories) == 0 {
		return true
	}
	current := false
	for _, s := range stories {
		if s.PIIdentifier == stored {
			current = true
			break
		}
	}

	e.cfg.Overhead.LastPICheck = today
	if e.store != nil {
		if _, err := e.store.Update(func(c *config.Config) error {
			c.Overhead.LastPICheck = today
			return nil
		}); err != nil {
			slog.Warn("failed to persist PI check date", "error", err)
		}
	}
	return current
}
