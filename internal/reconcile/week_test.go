package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/model"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		day  string
		want string
	}{
		{day: "2026-03-09", want: "2026-03-09"},
		{day: "2026-03-11", want: "2026-03-09"},
		{day: "2026-03-15", want: "2026-03-09"},
		{day: "2026-03-01", want: "2026-02-23"},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			assert.Equal(t, tt.want, model.FormatDate(weekStart(mustDate(t, tt.day))))
		})
	}
}

func TestVerifyWeekBackfillsGaps(t *testing.T) {
	cfg := withOverhead(testConfig())
	cfg.Schedule.PTODays = []string{"2026-03-10"}
	h := newHarness(t, cfg, wednesday)
	h.tickets.add("PROJ-1", 28800, "2026-03-09")
	h.tickets.add("PROJ-1", 14400, "2026-03-11")
	h.tickets.activeOn["2026-03-11"] = issues("PROJ-1", "PROJ-2")

	summary, err := h.engine.VerifyWeek(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Days, 5)
	states := make([]model.WeekDayState, 0, 5)
	for _, d := range summary.Days {
		states = append(states, d.State)
	}
	assert.Equal(t, []model.WeekDayState{
		model.WeekComplete,
		model.WeekOffLogged,
		model.WeekBackfilled,
		model.WeekExcluded,
		model.WeekExcluded,
	}, states)
	assert.Equal(t, model.BackfillStories, summary.Days[2].Method)

	assert.Equal(t, []string{"OVERHEAD-9=28800"}, h.tickets.snapshot("2026-03-10"))
	assert.Equal(t, []string{"PROJ-1=14400", "PROJ-2=14400"}, h.tickets.snapshot("2026-03-11"))
	assert.Equal(t, 3*28800, summary.ExpectedSeconds())
	assert.Equal(t, 3*28800, summary.ActualSeconds())
	assert.Equal(t, 2, summary.CreatedCount())
	assert.Empty(t, h.notes.msgs)
	assert.Contains(t, h.out.String(), "Status: [OK] All hours accounted for")

	require.Len(t, h.journal.runs, 1)
	assert.Equal(t, history.KindVerify, h.journal.runs[0].Kind)
	assert.Equal(t, "2026-03-09", h.journal.runs[0].Date)
	assert.Equal(t, 43200, h.journal.runs[0].Seconds)
}

func TestVerifyWeekFallsBackToOverhead(t *testing.T) {
	h := newHarness(t, withOverhead(testConfig()), wednesday)
	h.tickets.add("PROJ-1", 28800, "2026-03-09")
	h.tickets.add("PROJ-1", 28800, "2026-03-10")
	h.tickets.add("PROJ-1", 21600, "2026-03-11")
	h.tickets.activeOn["2026-03-11"] = issues("PROJ-1")

	summary, err := h.engine.VerifyWeek(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.WeekBackfilled, summary.Days[2].State)
	assert.Equal(t, model.BackfillOverhead, summary.Days[2].Method)
	assert.Equal(t, []string{"OVERHEAD-1=3600", "OVERHEAD-2=3600", "PROJ-1=21600"}, h.tickets.snapshot("2026-03-11"))
}

func TestVerifyWeekReportsShortfall(t *testing.T) {
	tuesday := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	h := newHarness(t, testConfig(), tuesday)
	h.tickets.add("PROJ-1", 28800, "2026-03-09")

	summary, err := h.engine.VerifyWeek(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.WeekGap, summary.Days[1].State)
	assert.Equal(t, model.BackfillNone, summary.Days[1].Method)
	assert.Equal(t, 2*28800, summary.ExpectedSeconds())
	assert.Equal(t, 28800, summary.ActualSeconds())

	require.Len(t, h.notes.msgs, 1)
	msg := h.notes.msgs[0]
	assert.Equal(t, "Tempo Hours Shortfall - Weekly", msg.Title)
	assert.Contains(t, msg.Facts, notifyFact("Shortfall", "8.00h"))
	assert.Contains(t, h.out.String(), "Status: [!] SHORTFALL 8.00h")
	assert.Equal(t, history.StatusWarning, h.journal.runs[0].Status)
}

func TestVerifyWeekShortfallNotificationDisabled(t *testing.T) {
	tuesday := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	cfg := testConfig()
	off := false
	cfg.Notifications.NotifyOnShortfall = &off
	h := newHarness(t, cfg, tuesday)

	_, err := h.engine.VerifyWeek(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.notes.msgs)
	assert.NotContains(t, h.out.String(), "Sending shortfall notification")
}
