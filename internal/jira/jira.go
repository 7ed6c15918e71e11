// Package jira provides the ticket-tracking client: worklogs, active issue
// queries and issue details over the Jira Cloud REST API v3.
package jira

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
	"strconv"
	"strings"
	"time"

	"github.com/bryan-cox/tempoledger/internal/model"
	"github.com/bryan-cox/tempoledger/internal/period"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// worklogStartTime is the time of day attached to created worklogs.
const worklogStartTime = "T09:00:00.000+0000"

var (
	// ErrRemote is wrapped by every failed API call.
	ErrRemote = errors.New("jira request failed")
	// ErrUnauthorized is wrapped when Jira rejects the credentials.
	ErrUnauthorized = errors.New("jira rejected the credentials")
)

// APIError describes a non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrRemote
}

// Client talks to one Jira site as one user.
type Client struct {
	baseURL   string
	email     string
	token     string
	http      *http.Client
	accountID string
}

// NewClient returns a client for site, which may be a bare host such as
// "example.atlassian.net" or a full base URL.
func NewClient(site, email, token string) *Client {
	base := strings.TrimRight(site, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Client{
		baseURL: base,
		email:   email,
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURL returns the site base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// maxPages bounds every paginated listing.
const maxPages = 50

type searchIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string          `json:"summary"`
		Sprint  json.RawMessage `json:"sprint"`
	} `json:"fields"`
}

type searchResponse struct {
	Issues        []searchIssue `json:"issues"`
	NextPageToken string        `json:"nextPageToken"`
	IsLast        bool          `json:"isLast"`
}

type issueWorklog struct {
	ID               string          `json:"id"`
	Started          string          `json:"started"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
	Comment          json.RawMessage `json:"comment"`
	Author           struct {
		AccountID    string `json:"accountId"`
		EmailAddress string `json:"emailAddress"`
	} `json:"author"`
}

type worklogResponse struct {
	StartAt  int            `json:"startAt"`
	Total    int            `json:"total"`
	Worklogs []issueWorklog `json:"worklogs"`
}

type issueResponse struct {
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Comment     struct {
			Comments []struct {
				Body json.RawMessage `json:"body"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

// Myself returns the account ID of the authenticated user and remembers it
// for author filtering.
func (c *Client) Myself(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}
	var resp struct {
		AccountID string `json:"accountId"`
	}
	if err := c.do(ctx, "myself", http.MethodGet, "/rest/api/3/myself", nil, nil, &resp); err != nil {
		return "", err
	}
	c.accountID = resp.AccountID
	slog.Debug("jira account resolved", "account_id", c.accountID)
	return c.accountID, nil
}

// FetchMyWorklogs returns the current user's worklogs with a start date
// between from and to, both inclusive.
func (c *Client) FetchMyWorklogs(ctx context.Context, from, to time.Time) ([]model.WorkEntry, error) {
	fromStr, toStr := model.FormatDate(from), model.FormatDate(to)
	jql := fmt.Sprintf(`worklogAuthor = currentUser() AND worklogDate >= "%s" AND worklogDate <= "%s"`, fromStr, toStr)
	issues, err := c.search(ctx, "search worklog issues", jql, "summary", 100)
	if err != nil {
		return nil, err
	}

	if _, err := c.Myself(ctx); err != nil {
		slog.Warn("could not resolve jira account, filtering worklogs by email only", "error", err)
	}

	var entries []model.WorkEntry
	for _, is := range issues.Issues {
		worklogs, err := c.issueWorklogs(ctx, is.Key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("skipping issue, could not list its worklogs", "issue", is.Key, "error", err)
			continue
		}
		for _, w := range worklogs {
			if len(w.Started) < len(model.DateLayout) {
				continue
			}
			started := w.Started[:len(model.DateLayout)]
			if started < fromStr || started > toStr {
				continue
			}
			if !c.isMe(w.Author.EmailAddress, w.Author.AccountID) {
				continue
			}
			date, err := model.ParseDate(started)
			if err != nil {
				continue
			}
			entries = append(entries, model.WorkEntry{
				TargetKey:       is.Key,
				TargetLabel:     is.Fields.Summary,
				DurationSeconds: w.TimeSpentSeconds,
				Date:            date,
				SourceID:        w.ID,
				Comment:         ExtractText(w.Comment),
			})
		}
	}
	slog.Info("fetched jira worklogs", "from", fromStr, "to", toStr, "count", len(entries))
	return entries, nil
}

// issueWorklogs pages through every worklog of an issue.
func (c *Client) issueWorklogs(ctx context.Context, key string) ([]issueWorklog, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s/worklog", url.PathEscape(key))
	var out []issueWorklog
	for page := 0; page < maxPages; page++ {
		q := url.Values{"startAt": {strconv.Itoa(len(out))}}
		var wl worklogResponse
		if err := c.do(ctx, "list worklogs", http.MethodGet, path, q, nil, &wl); err != nil {
			return nil, err
		}
		out = append(out, wl.Worklogs...)
		if len(wl.Worklogs) == 0 || len(out) >= wl.Total {
			return out, nil
		}
	}
	slog.Warn("worklog listing truncated", "issue", key, "count", len(out))
	return out, nil
}

func (c *Client) isMe(email, accountID string) bool {
	if email != "" && strings.EqualFold(email, c.email) {
		return true
	}
	return accountID != "" && accountID == c.accountID
}

// DeleteWorklog removes one worklog from an issue.
func (c *Client) DeleteWorklog(ctx context.Context, key, worklogID string) error {
	path := fmt.Sprintf("/rest/api/3/issue/%s/worklog/%s", url.PathEscape(key), url.PathEscape(worklogID))
	if err := c.do(ctx, "delete worklog", http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	slog.Info("deleted jira worklog", "issue", key, "worklog_id", worklogID)
	return nil
}

// FetchMyActiveIssues returns issues assigned to the user that are currently in an active status.
func (c *Client) FetchMyActiveIssues(ctx context.Context) ([]model.Issue, error) {
	quoted := make([]string, len(model.ActiveStatuses))
	for i, s := range model.ActiveStatuses {
		quoted[i] = strconv.Quote(s)
	}
	jql := fmt.Sprintf("assignee = currentUser() AND status IN (%s)", strings.Join(quoted, ", "))
	return c.issues(ctx, "search active issues", jql)
}

// FetchIssuesActiveOnDate returns issues assigned to the user that were in
// an active status on date, whatever their status is today.
func (c *Client) FetchIssuesActiveOnDate(ctx context.Context, date time.Time) ([]model.Issue, error) {
	d := model.FormatDate(date)
	clauses := make([]string, len(model.ActiveStatuses))
	for i, s := range model.ActiveStatuses {
		clauses[i] = fmt.Sprintf(`status WAS %s ON "%s"`, strconv.Quote(s), d)
	}
	jql := fmt.Sprintf("assignee = currentUser() AND (%s)", strings.Join(clauses, " OR "))
	return c.issues(ctx, "search historical issues", jql)
}

func (c *Client) issues(ctx context.Context, op, jql string) ([]model.Issue, error) {
	resp, err := c.search(ctx, op, jql, "summary", 50)
	if err != nil {
		return nil, err
	}
	out := make([]model.Issue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		out = append(out, model.Issue{Key: is.Key, Title: is.Fields.Summary})
	}
	slog.Info("jira issue query", "op", op, "count", len(out))
	return out, nil
}

// FetchIssueDetails returns the title, plain-text description and the three
// most recent comments of an issue.
func (c *Client) FetchIssueDetails(ctx context.Context, key string) (model.IssueDetails, error) {
	var resp issueResponse
	q := url.Values{"fields": {"summary,description,comment"}}
	path := "/rest/api/3/issue/" + url.PathEscape(key)
	if err := c.do(ctx, "get issue", http.MethodGet, path, q, nil, &resp); err != nil {
		return model.IssueDetails{}, err
	}

	details := model.IssueDetails{
		Title:           resp.Fields.Summary,
		DescriptionText: ExtractText(resp.Fields.Description),
	}
	comments := resp.Fields.Comment.Comments
	if len(comments) > 3 {
		comments = comments[len(comments)-3:]
	}
	for _, cm := range comments {
		if text := ExtractText(cm.Body); text != "" {
			details.RecentComments = append(details.RecentComments, text)
		}
	}
	return details, nil
}

// CreateWorklog books seconds on key at 09:00 of date. The comment is sent
// as an ADF document, one paragraph per line.
func (c *Client) CreateWorklog(ctx context.Context, key string, seconds int, date time.Time, comment string) error {
	payload := struct {
		TimeSpentSeconds int      `json:"timeSpentSeconds"`
		Started          string   `json:"started"`
		Comment          *adfNode `json:"comment,omitempty"`
	}{
		TimeSpentSeconds: seconds,
		Started:          model.FormatDate(date) + worklogStartTime,
		Comment:          NewDocument(comment),
	}
	path := fmt.Sprintf("/rest/api/3/issue/%s/worklog", url.PathEscape(key))
	if err := c.do(ctx, "create worklog", http.MethodPost, path, nil, payload, nil); err != nil {
		return err
	}
	slog.Info("created jira worklog", "issue", key, "seconds", seconds, "date", model.FormatDate(date))
	return nil
}

// OverheadStory is an in-progress story of the overhead project.
type OverheadStory struct {
	Key          string
	Summary      string
	PIIdentifier string
}

// FetchOverheadStories lists in-progress stories of the overhead project and
// extracts the PI identifier from the sprint name, falling back to the summary.
func (c *Client) FetchOverheadStories(ctx context.Context, project string) ([]OverheadStory, error) {
	jql := fmt.Sprintf(`project = %s AND status = "In Progress"`, project)
	resp, err := c.search(ctx, "search overhead stories", jql, "summary,sprint", 50)
	if err != nil {
		return nil, err
	}
	out := make([]OverheadStory, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		id, ok := period.FindIdentifier(sprintName(is.Fields.Sprint))
		if !ok {
			id, _ = period.FindIdentifier(is.Fields.Summary)
		}
		out = append(out, OverheadStory{Key: is.Key, Summary: is.Fields.Summary, PIIdentifier: id})
	}
	slog.Info("fetched overhead stories", "project", project, "count", len(out))
	return out, nil
}

// sprintName reads the sprint field, which is either one object or a list
// whose last element is the current sprint.
func sprintName(raw json.RawMessage) string {
	type sprint struct {
		Name string `json:"name"`
	}
	if len(raw) == 0 {
		return ""
	}
	var one sprint
	if err := json.Unmarshal(raw, &one); err == nil {
		return one.Name
	}
	var many []sprint
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[len(many)-1].Name
	}
	return ""
}

// search follows nextPageToken until the last page and returns every issue.
func (c *Client) search(ctx context.Context, op, jql, fields string, max int) (*searchResponse, error) {
	all := &searchResponse{IsLast: true}
	token := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{
			"jql":        {jql},
			"fields":     {fields},
			"maxResults": {strconv.Itoa(max)},
		}
		if token != "" {
			q.Set("nextPageToken", token)
		}
		var resp searchResponse
		if err := c.do(ctx, op, http.MethodGet, "/rest/api/3/search/jql", q, nil, &resp); err != nil {
			return nil, err
		}
		all.Issues = append(all.Issues, resp.Issues...)
		if resp.IsLast || resp.NextPageToken == "" {
			return all, nil
		}
		token = resp.NextPageToken
	}
	slog.Warn("jira search truncated", "op", op, "count", len(all.Issues))
	return all, nil
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
			return fmt.Errorf("jira %s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("jira %s: failed to create request: %w", op, err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira %s: %w: %v", op, ErrRemote, err)
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
		return fmt.Errorf("jira %s: failed to decode response: %w", op, err)
	}
	return nil
}
