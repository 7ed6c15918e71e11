package tempo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-cox/tempoledger/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "tok", "acc-1")
	c.SetClock(func() time.Time { return time.Date(2026, 3, 31, 18, 0, 0, 0, time.UTC) })
	return c
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestFetchUserBookings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/worklogs/user/acc-1", r.URL.Path)
		assert.Equal(t, "2026-03-09", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-03-13", r.URL.Query().Get("to"))
		_, _ = io.WriteString(w, `{"results":[
			{"tempoWorklogId":1,"startDate":"2026-03-10","timeSpentSeconds":3600,"description":"standup","issue":{"key":"PROJ-1"}},
			{"tempoWorklogId":2,"startDate":"bad","timeSpentSeconds":60,"issue":{"key":"PROJ-2"}},
			{"tempoWorklogId":3,"startDate":"2026-03-11","timeSpentSeconds":1800,"issue":{"id":10042}}
		]}`)
	})

	entries, err := c.FetchUserBookings(context.Background(), date(t, "2026-03-09"), date(t, "2026-03-13"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "PROJ-1", entries[0].TargetKey)
	assert.Equal(t, "1", entries[0].SourceID)
	assert.Equal(t, "standup", entries[0].Comment)
	assert.Equal(t, "10042", entries[1].TargetKey)
	assert.Equal(t, 5400, model.TotalSeconds(entries))
}

func TestFetchUserBookingsFollowsNext(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/worklogs/user/acc-1", r.URL.Path)
		assert.Equal(t, "2026-03-09", r.URL.Query().Get("from"))
		if r.URL.Query().Get("offset") == "" {
			_, _ = io.WriteString(w, `{"results":[
				{"tempoWorklogId":1,"startDate":"2026-03-10","timeSpentSeconds":3600,"issue":{"key":"PROJ-1"}}
			],"metadata":{"count":1,"next":"https://api.tempo.io/4/worklogs/user/acc-1?from=2026-03-09&to=2026-03-13&offset=1&limit=1"}}`)
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"results":[
			{"tempoWorklogId":2,"startDate":"2026-03-11","timeSpentSeconds":1800,"issue":{"key":"PROJ-2"}}
		],"metadata":{"count":1}}`)
	})

	entries, err := c.FetchUserBookings(context.Background(), date(t, "2026-03-09"), date(t, "2026-03-13"))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, entries, 2)
	assert.Equal(t, "PROJ-2", entries[1].TargetKey)
	assert.Equal(t, 5400, model.TotalSeconds(entries))
}

func TestCreateBooking(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/worklogs", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.CreateBooking(context.Background(), "GENERAL-001", 7200, date(t, "2026-03-10"), "Meetings"))
	assert.Equal(t, "GENERAL-001", got["issueKey"])
	assert.Equal(t, float64(7200), got["timeSpentSeconds"])
	assert.Equal(t, "2026-03-10", got["startDate"])
	assert.Equal(t, "09:00:00", got["startTime"])
	assert.Equal(t, "acc-1", got["authorAccountId"])
	assert.Equal(t, "Meetings", got["description"])
}

func TestCurrentPeriod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[
			{"key":"2026-02","dateFrom":"2026-02-01","dateTo":"2026-02-28"},
			{"key":"P-MAR","dateFrom":"2026-03-01","dateTo":"2026-03-31"}
		]}`)
	})
	assert.Equal(t, "P-MAR", c.CurrentPeriod(context.Background()))
}

func TestCurrentPeriodFallsBackToMonth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	assert.Equal(t, "2026-03", c.CurrentPeriod(context.Background()))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	})
	assert.Equal(t, "2026-03", c.CurrentPeriod(context.Background()))
}

func TestSubmitPeriod(t *testing.T) {
	var got struct {
		Worker struct {
			AccountID string `json:"accountId"`
		} `json:"worker"`
		Period struct {
			Key string `json:"key"`
		} `json:"period"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/timesheet-approvals/periods":
			_, _ = io.WriteString(w, `{"results":[{"key":"P-MAR","dateFrom":"2026-03-01","dateTo":"2026-03-31"}]}`)
		case "/timesheet-approvals/submit":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, c.SubmitPeriod(context.Background(), ""))
	assert.Equal(t, "acc-1", got.Worker.AccountID)
	assert.Equal(t, "P-MAR", got.Period.Key)
}

func TestErrorsUnwrapToRemote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	err := c.CreateBooking(context.Background(), "X-1", 60, date(t, "2026-03-10"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemote))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestMissingAccount(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "tok", "")
	_, err := c.FetchUserBookings(context.Background(), time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrNoAccount)
}
