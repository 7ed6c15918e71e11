package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bryan-cox/tempoledger/internal/model"
)

const (
	summaryLineLimit = 120
	summaryMaxLines  = 3
	// minCommentLine drops one-word acknowledgements like "done" or "+1".
	minCommentLine = 5
)

// workSummary builds a short worklog comment from the ticket description
// and its most recent comments.
func (e *Engine) workSummary(ctx context.Context, issue model.Issue) string {
	details, err := e.tickets.FetchIssueDetails(ctx, issue.Key)
	if err != nil {
		slog.Warn("could not fetch issue details, using generic summary", "issue", issue.Key, "error", err)
		return fallbackSummary(issue)
	}
	return BuildWorkSummary(issue, details)
}

func fallbackSummary(issue model.Issue) string {
	return fmt.Sprintf("Worked on %s: %s", issue.Key, issue.Title)
}

// BuildWorkSummary renders at most three lines: the first sentence of the
// description (or the title), then the first line of recent comments, newest first.
func BuildWorkSummary(issue model.Issue, details model.IssueDetails) string {
	title := issue.Title
	if title == "" {
		title = details.Title
	}

	var lines []string
	first := strings.TrimSpace(strings.SplitN(details.DescriptionText, ".", 2)[0])
	if first == "" {
		first = title
	}
	if first == "" {
		return fallbackSummary(issue)
	}
	lines = append(lines, truncate(first, summaryLineLimit))

	for i := len(details.RecentComments) - 1; i >= 0 && len(lines) < summaryMaxLines; i-- {
		line := strings.TrimSpace(strings.SplitN(details.RecentComments[i], "\n", 2)[0])
		if len([]rune(line)) <= minCommentLine {
			continue
		}
		lines = append(lines, truncate(line, summaryLineLimit))
	}
	return strings.Join(lines, "\n")
}

// truncate shortens s to limit runes, ending with "..." when cut.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
