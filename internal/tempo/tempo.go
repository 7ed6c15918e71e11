// Package tempo provides the time-booking client used to read bookings,
// create manual bookings and submit timesheets for approval.
package tempo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// DefaultBaseURL is the Tempo Cloud REST API v4.
const DefaultBaseURL = "https://api.tempo.io/4"

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

const bookingStartTime = "09:00:00"

var (
	// ErrRemote is wrapped by every failed API call.
	ErrRemote = errors.New("tempo request failed")
	// ErrNoAccount is returned when no author account is known.
	ErrNoAccount = errors.New("tempo account id is not set")
)

// APIError describes a non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tempo %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrRemote
}

// Client talks to Tempo on behalf of one account.
type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
	now       func() time.Time
}

// NewClient returns a client for accountID. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, token, accountID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		accountID: accountID,
		http:      &http.Client{Timeout: DefaultTimeout},
		now:       time.Now,
	}
}

// SetClock replaces the clock used to find the current period.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

type worklogResults struct {
	Results []struct {
		TempoWorklogID   int64  `json:"tempoWorklogId"`
		StartDate        string `json:"startDate"`
		TimeSpentSeconds int    `json:"timeSpentSeconds"`
		Description      string `json:"description"`
		Issue            struct {
			Key string `json:"key"`
			ID  int64  `json:"id"`
		} `json:"issue"`
	} `json:"results"`
	Metadata struct {
		Next string `json:"next"`
	} `json:"metadata"`
}

// maxPages bounds how many result pages one listing follows.
const maxPages = 50

// FetchUserBookings returns the account's bookings between from and to, both inclusive.
func (c *Client) FetchUserBookings(ctx context.Context, from, to time.Time) ([]model.WorkEntry, error) {
	if c.accountID == "" {
		return nil, ErrNoAccount
	}
	q := url.Values{"from": {model.FormatDate(from)}, "to": {model.FormatDate(to)}}
	path := "/worklogs/user/" + url.PathEscape(c.accountID)
	var entries []model.WorkEntry
	query := q
	for page := 0; ; page++ {
		if page == maxPages {
			slog.Warn("tempo worklog listing truncated", "pages", maxPages)
			break
		}
		var resp worklogResults
		if err := c.do(ctx, "list worklogs", http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		entries = appendBookings(entries, &resp)
		if resp.Metadata.Next == "" {
			break
		}
		next, err := url.Parse(resp.Metadata.Next)
		if err != nil {
			return nil, fmt.Errorf("tempo list worklogs: bad next page link %q: %w", resp.Metadata.Next, err)
		}
		query = next.Query()
	}
	slog.Info("fetched tempo worklogs", "from", q.Get("from"), "to", q.Get("to"), "count", len(entries))
	return entries, nil
}

func appendBookings(entries []model.WorkEntry, resp *worklogResults) []model.WorkEntry {
	for _, r := range resp.Results {
		d, err := model.ParseDate(r.StartDate)
		if err != nil {
			slog.Warn("skipping tempo worklog with bad date", "worklog_id", r.TempoWorklogID, "start_date", r.StartDate)
			continue
		}
		key := r.Issue.Key
		if key == "" && r.Issue.ID != 0 {
			key = fmt.Sprintf("%d", r.Issue.ID)
		}
		entries = append(entries, model.WorkEntry{
			TargetKey:       key,
			DurationSeconds: r.TimeSpentSeconds,
			Date:            d,
			SourceID:        fmt.Sprintf("%d", r.TempoWorklogID),
			Comment:         r.Description,
		})
	}
	return entries
}

// CreateBooking books seconds on issueKey at 09:00 of date.
func (c *Client) CreateBooking(ctx context.Context, issueKey string, seconds int, date time.Time, description string) error {
	if c.accountID == "" {
		return ErrNoAccount
	}
	payload := map[string]any{
		"issueKey":         issueKey,
		"timeSpentSeconds": seconds,
		"startDate":        model.FormatDate(date),
		"startTime":        bookingStartTime,
		"authorAccountId":  c.accountID,
		"description":      description,
	}
	if err := c.do(ctx, "create worklog", http.MethodPost, "/worklogs", nil, payload, nil); err != nil {
		return err
	}
	slog.Info("created tempo worklog", "issue", issueKey, "seconds", seconds, "date", model.FormatDate(date))
	return nil
}

// Period is a timesheet approval period.
type Period struct {
	Key      string `json:"key"`
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

// Contains reports whether day (YYYY-MM-DD) is within the period.
func (p Period) Contains(day string) bool {
	return p.DateFrom != "" && p.DateTo != "" && p.DateFrom <= day && day <= p.DateTo
}

// CurrentPeriod returns the key of the approval period containing today,
// falling back to YYYY-MM when the lookup fails or finds nothing.
func (c *Client) CurrentPeriod(ctx context.Context) string {
	today := c.now()
	fallback := today.Format("2006-01")

	var resp struct {
		Results []Period `json:"results"`
	}
	if err := c.do(ctx, "list periods", http.MethodGet, "/timesheet-approvals/periods", nil, nil, &resp); err != nil {
		slog.Warn("could not fetch tempo periods, using month key", "error", err, "period", fallback)
		return fallback
	}
	day := model.FormatDate(today)
	for _, p := range resp.Results {
		if p.Contains(day) {
			slog.Info("found current tempo period", "period", p.Key)
			return p.Key
		}
	}
	slog.Warn("no tempo period contains today, using month key", "period", fallback)
	return fallback
}

// SubmitPeriod submits the account's timesheet for periodKey. An empty key
// selects the current period.
func (c *Client) SubmitPeriod(ctx context.Context, periodKey string) error {
	if c.accountID == "" {
		return ErrNoAccount
	}
	if periodKey == "" {
		periodKey = c.CurrentPeriod(ctx)
	}
	payload := map[string]any{
		"worker": map[string]string{"accountId": c.accountID},
		"period": map[string]string{"key": periodKey},
	}
	if err := c.do(ctx, "submit timesheet", http.MethodPost, "/timesheet-approvals/submit", nil, payload, nil); err != nil {
		return err
	}
	slog.Info("submitted tempo timesheet", "period", periodKey)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tempo %s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("tempo %s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tempo %s: %w: %v", op, ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tempo %s: failed to decode response: %w", op, err)
	}
	return nil
}
