package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/calendar"
	"github.com/bryan-cox/tempoledger/internal/config"
	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/jira"
	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/notify"
)

var errDown = errors.New("connection refused")

// fakeTickets is an in-memory ticket system.
type fakeTickets struct {
	worklogs []model.WorkEntry
	nextID   int

	active   []model.Issue
	activeOn map[string][]model.Issue
	details  map[string]model.IssueDetails
	overhead []jira.OverheadStory

	worklogErr error
	activeErr  error
	createErr  map[string]error

	deleted     []string
	activeCalls int
}

func (f *fakeTickets) add(key string, seconds int, date string) {
	f.nextID++
	d, _ := model.ParseDate(date)
	f.worklogs = append(f.worklogs, model.WorkEntry{
		TargetKey:       key,
		TargetLabel:     key,
		DurationSeconds: seconds,
		Date:            d,
		SourceID:        fmt.Sprintf("%d", f.nextID),
	})
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(model.Day(from)) && !d.After(model.Day(to))
}

func (f *fakeTickets) FetchMyWorklogs(_ context.Context, from, to time.Time) ([]model.WorkEntry, error) {
	if f.worklogErr != nil {
		return nil, f.worklogErr
	}
	var out []model.WorkEntry
	for _, w := range f.worklogs {
		if inRange(w.Date, from, to) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeTickets) DeleteWorklog(_ context.Context, key, id string) error {
	for i, w := range f.worklogs {
		if w.SourceID == id && w.TargetKey == key {
			f.worklogs = append(f.worklogs[:i], f.worklogs[i+1:]...)
			f.deleted = append(f.deleted, key)
			return nil
		}
	}
	return fmt.Errorf("worklog %s/%s not found", key, id)
}

func (f *fakeTickets) FetchMyActiveIssues(context.Context) ([]model.Issue, error) {
	f.activeCalls++
	return f.active, f.activeErr
}

func (f *fakeTickets) FetchIssuesActiveOnDate(_ context.Context, date time.Time) ([]model.Issue, error) {
	return f.activeOn[model.FormatDate(date)], nil
}

func (f *fakeTickets) FetchIssueDetails(_ context.Context, key string) (model.IssueDetails, error) {
	d, ok := f.details[key]
	if !ok {
		return model.IssueDetails{}, errDown
	}
	return d, nil
}

func (f *fakeTickets) CreateWorklog(_ context.Context, key string, seconds int, date time.Time, comment string) error {
	if err := f.createErr[key]; err != nil {
		return err
	}
	f.add(key, seconds, model.FormatDate(date))
	f.worklogs[len(f.worklogs)-1].Comment = comment
	return nil
}

func (f *fakeTickets) FetchOverheadStories(context.Context, string) ([]jira.OverheadStory, error) {
	return f.overhead, nil
}

// snapshot renders the worklogs of date as sorted "KEY=seconds" strings.
func (f *fakeTickets) snapshot(date string) []string {
	var out []string
	for _, w := range f.worklogs {
		if model.FormatDate(w.Date) == date {
			out = append(out, fmt.Sprintf("%s=%d", w.TargetKey, w.DurationSeconds))
		}
	}
	sort.Strings(out)
	return out
}

// fakeBookings mirrors every ticket worklog and adds manual-only entries.
type fakeBookings struct {
	tickets   *fakeTickets
	manual    []model.WorkEntry
	fetchErr  error
	period    string
	submitErr error
	submitted []string
}

func (b *fakeBookings) FetchUserBookings(ctx context.Context, from, to time.Time) ([]model.WorkEntry, error) {
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	var out []model.WorkEntry
	if b.tickets != nil {
		mirrored, _ := b.tickets.FetchMyWorklogs(ctx, from, to)
		out = append(out, mirrored...)
	}
	for _, m := range b.manual {
		if inRange(m.Date, from, to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBookings) CreateBooking(_ context.Context, key string, seconds int, date time.Time, description string) error {
	b.manual = append(b.manual, model.WorkEntry{TargetKey: key, DurationSeconds: seconds, Date: model.Day(date), Comment: description})
	return nil
}

func (b *fakeBookings) SubmitPeriod(_ context.Context, key string) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	b.submitted = append(b.submitted, key)
	return nil
}

func (b *fakeBookings) CurrentPeriod(context.Context) string {
	if b.period == "" {
		return "2026-03"
	}
	return b.period
}

type recordingNotifier struct {
	msgs []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) titles() []string {
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Title)
	}
	return out
}

type fakeJournal struct {
	runs []history.Run
}

func (j *fakeJournal) Record(run *history.Run) error {
	j.runs = append(j.runs, *run)
	return nil
}

type fakeStore struct {
	cfg     *config.Config
	updates int
}

func (s *fakeStore) Update(fn func(*config.Config) error) (*config.Config, error) {
	if err := fn(s.cfg); err != nil {
		return nil, err
	}
	s.updates++
	return s.cfg, nil
}

type harness struct {
	engine   *Engine
	cfg      *config.Config
	tickets  *fakeTickets
	bookings *fakeBookings
	notes    *recordingNotifier
	journal  *fakeJournal
	store    *fakeStore
	out      *bytes.Buffer
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.User.Email = "dev@example.com"
	return cfg
}

func withOverhead(cfg *config.Config) *config.Config {
	cfg.Overhead.CurrentPI = &config.PIConfig{
		Identifier: "PI.26.2.JUN.12",
		Stories: []model.Target{
			{Key: "OVERHEAD-1", Label: "Ceremonies"},
			{Key: "OVERHEAD-2", Label: "Support"},
		},
		Distribution: model.DistributeEqual,
	}
	cfg.Overhead.PTOStoryKey = "OVERHEAD-9"
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config, now time.Time) *harness {
	t.Helper()
	h := &harness{
		cfg:     cfg,
		tickets: &fakeTickets{activeOn: map[string][]model.Issue{}, details: map[string]model.IssueDetails{}},
		notes:   &recordingNotifier{},
		journal: &fakeJournal{},
		store:   &fakeStore{cfg: cfg},
		out:     &bytes.Buffer{},
	}
	h.bookings = &fakeBookings{tickets: h.tickets}

	clock := func() time.Time { return now }
	deps := Deps{
		Config:   cfg,
		Store:    h.store,
		Policy:   calendar.NewPolicy(cfg.Schedule, calendar.Options{Clock: clock}),
		Bookings: h.bookings,
		Notifier: h.notes,
		History:  h.journal,
		Out:      h.out,
		Clock:    clock,
	}
	if cfg.User.Role.AutoLogsTickets() {
		deps.Tickets = h.tickets
	} else {
		h.bookings.tickets = nil
	}
	e, err := New(deps)
	require.NoError(t, err)
	h.engine = e
	return h
}
