package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/jira"
	"github.com/bryan-cox/tempoledger/internal/notify"
	"github.com/bryan-cox/tempoledger/internal/reconcile"
	"github.com/bryan-cox/tempoledger/internal/tempo"
)

// Side files kept next to the configuration document.
const (
	orgHolidaysCache = "org_holidays.json"
	historyFile      = "history.db"
	stopFile         = "daemon.stop"
)

// app bundles what every command builds from the configuration file.
type app struct {
	store   *config.Store
	cfg     *config.Config
	secrets config.Secrets
	policy  *calendar.Policy
}

func loadApp(ctx context.Context) (*app, error) {
	store := config.NewStore(configPath)
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &app{
		store:   store,
		cfg:     cfg,
		secrets: config.LoadSecrets(store.Dir()),
		policy:  newPolicy(ctx, store, cfg),
	}, nil
}

// newPolicy assembles the working calendar from the org holiday document,
// the country rules and the user overrides.
func newPolicy(ctx context.Context, store *config.Store, cfg *config.Config) *calendar.Policy {
	src := calendar.NewHolidaySource(cfg.Organization.HolidaysURL, filepath.Join(store.Dir(), orgHolidaysCache))
	doc, _ := src.Load(ctx)
	opts := calendar.Options{
		Org:   calendar.NewOrgHolidays(doc, cfg.Schedule.CountryCode, cfg.Schedule.State),
		Store: store,
	}
	if country, ok := calendar.NewCountryCalendar(cfg.Schedule.CountryCode, cfg.Schedule.State); ok {
		opts.Country = country
	} else {
		slog.Warn("no holiday rules for country, only org and extra holidays apply", "country", cfg.Schedule.CountryCode)
	}
	return calendar.NewPolicy(cfg.Schedule, opts)
}

func (a *app) historyPath() string {
	if a.cfg.Daemon.HistoryDB != "" {
		return a.cfg.Daemon.HistoryDB
	}
	return filepath.Join(a.store.Dir(), historyFile)
}

func (a *app) stopFilePath() string {
	return filepath.Join(a.store.Dir(), stopFile)
}

// services are the remote clients and the run journal of an engine.
type services struct {
	engine   *reconcile.Engine
	notifier notify.Notifier
	history  *history.Store
}

func (s *services) Close() {
	if s.history == nil {
		return
	}
	if err := s.history.Close(); err != nil {
		slog.Warn("failed to close history store", "error", err)
	}
}

// newServices builds the engine for the configured role. Missing tokens are
// configuration errors; a history store that cannot be opened only disables
// journaling.
func (a *app) newServices(ctx context.Context, out io.Writer) (*services, error) {
	s := &services{notifier: notify.FromConfig(a.cfg.Notifications, a.secrets)}
	deps := reconcile.Deps{
		Config:   a.cfg,
		Store:    a.store,
		Policy:   a.policy,
		Notifier: s.notifier,
		Out:      out,
	}

	var tickets *jira.Client
	if a.cfg.Jira.URL != "" && a.secrets.JiraAPIToken != "" {
		email := a.cfg.Jira.Email
		if email == "" {
			email = a.cfg.User.Email
		}
		tickets = jira.NewClient(a.cfg.Jira.URL, email, a.secrets.JiraAPIToken)
	}
	if a.cfg.User.Role.AutoLogsTickets() {
		if tickets == nil {
			return nil, fmt.Errorf("%w: jira.url and %s are required for role %s", config.ErrInvalid, config.EnvJiraToken, a.cfg.User.Role)
		}
		deps.Tickets = tickets
	}

	if a.secrets.TempoAPIToken == "" {
		return nil, fmt.Errorf("%w: %s is not set (environment or %s)", config.ErrInvalid, config.EnvTempoToken, filepath.Join(a.store.Dir(), ".env"))
	}
	accountID := a.cfg.Tempo.AccountID
	if accountID == "" {
		if tickets == nil {
			return nil, fmt.Errorf("%w: set tempo.account_id or configure jira to resolve it", config.ErrInvalid)
		}
		id, err := tickets.Myself(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not resolve Tempo account from Jira: %w", err)
		}
		accountID = id
	}
	deps.Bookings = tempo.NewClient("", a.secrets.TempoAPIToken, accountID)

	if h, err := history.Open(a.historyPath()); err != nil {
		slog.Warn("run history disabled", "path", a.historyPath(), "error", err)
	} else {
		s.history = h
		deps.History = h
	}

	e, err := reconcile.New(deps)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = e
	return s, nil
}
