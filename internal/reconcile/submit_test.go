package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/history"
	"github.com/bryan-cox/tempoledger/internal/notify"
)

// March 2026 has 22 working days.
const marchExpected = 22 * 28800

var lastOfMarch = time.Date(2026, time.March, 31, 17, 0, 0, 0, time.UTC)

func notifyFact(name, value string) notify.Fact {
	return notify.Fact{Name: name, Value: value}
}

func TestSubmitMonthSkipsBeforeLastDay(t *testing.T) {
	h := newHarness(t, testConfig(), wednesday)

	result, err := h.engine.SubmitMonth(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Attempted)
	assert.False(t, result.Submitted)
	assert.Empty(t, h.bookings.submitted)
	assert.Contains(t, h.out.String(), "Not the last day of the month (11/31). Skipping submission.")
	assert.Empty(t, h.journal.runs)
}

func TestSubmitMonthSubmitsCompleteMonth(t *testing.T) {
	h := newHarness(t, testConfig(), lastOfMarch)
	h.tickets.add("PROJ-1", marchExpected, "2026-03-02")

	result, err := h.engine.SubmitMonth(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Attempted)
	assert.True(t, result.Submitted)
	assert.Equal(t, 22, result.WorkingDays)
	assert.Equal(t, marchExpected, result.ExpectedSeconds)
	assert.Equal(t, []string{"2026-03"}, h.bookings.submitted)
	assert.Equal(t, []string{"Timesheet Submitted"}, h.notes.titles())
	assert.Contains(t, h.out.String(), "Expected: 176.00h (22 working days x 8h)")
	assert.Contains(t, h.out.String(), "[OK] Timesheet submitted successfully for 2026-03")

	require.Len(t, h.journal.runs, 1)
	assert.Equal(t, history.KindSubmit, h.journal.runs[0].Kind)
	assert.Equal(t, history.StatusOK, h.journal.runs[0].Status)
}

func TestSubmitMonthToleratesSmallShortfall(t *testing.T) {
	h := newHarness(t, testConfig(), lastOfMarch)
	h.tickets.add("PROJ-1", marchExpected-1800, "2026-03-02")

	result, err := h.engine.SubmitMonth(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
}

func TestSubmitMonthWithholdsOnShortfall(t *testing.T) {
	h := newHarness(t, testConfig(), lastOfMarch)
	h.tickets.add("PROJ-1", marchExpected-3600, "2026-03-02")

	result, err := h.engine.SubmitMonth(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Attempted)
	assert.False(t, result.Submitted)
	assert.Equal(t, 3600, result.ShortfallSeconds())
	assert.Empty(t, h.bookings.submitted)
	require.Len(t, h.notes.msgs, 1)
	assert.Equal(t, "Tempo Hours Shortfall - Monthly", h.notes.msgs[0].Title)
	assert.Contains(t, h.out.String(), "[FAIL] Timesheet not submitted for 2026-03: shortfall of 1.00h")
	assert.Equal(t, history.StatusWarning, h.journal.runs[0].Status)
}

func TestSubmitMonthReportsSubmitError(t *testing.T) {
	h := newHarness(t, testConfig(), lastOfMarch)
	h.tickets.add("PROJ-1", marchExpected, "2026-03-02")
	h.bookings.submitErr = errDown

	result, err := h.engine.SubmitMonth(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Submitted)
	assert.Equal(t, "connection refused", result.Reason)
	assert.Empty(t, h.notes.msgs)
	assert.Equal(t, history.StatusFailed, h.journal.runs[0].Status)
}
