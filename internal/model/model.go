// Package model defines the core data structures for tempoledger.
package model

import (
	"fmt"
	"time"
)

// DateLayout is the on-disk and wire format for calendar dates.
const DateLayout = "2006-01-02"

// SecondsPerHour converts between hours and the seconds both remote systems book in.
const SecondsPerHour = 3600

// Issue status names treated as "active work" in the ticket system.
const (
	StatusInDevelopment = "IN DEVELOPMENT"
	StatusCodeReview    = "CODE REVIEW"
)

// ActiveStatuses is the status set used for current and point-in-time active issue queries.
var ActiveStatuses = []string{StatusInDevelopment, StatusCodeReview}

// WorkEntry represents one booked unit of time in either external system.
type WorkEntry struct {
	TargetKey       string    `yaml:"target_key" json:"target_key"`
	TargetLabel     string    `yaml:"target_label" json:"target_label"`
	DurationSeconds int       `yaml:"duration_seconds" json:"duration_seconds"`
	Date            time.Time `yaml:"date" json:"date"`
	// SourceID is the remote identifier, needed only for deletion.
	SourceID string `yaml:"source_id,omitempty" json:"source_id,omitempty"`
	Comment  string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// Label returns the display label, falling back to the key.
func (w WorkEntry) Label() string {
	if w.TargetLabel != "" {
		return w.TargetLabel
	}
	return w.TargetKey
}

// TotalSeconds sums the durations of the given entries.
func TotalSeconds(entries []WorkEntry) int {
	total := 0
	for _, e := range entries {
		total += e.DurationSeconds
	}
	return total
}

// Keys returns the set of target keys present in entries.
func Keys(entries []WorkEntry) map[string]bool {
	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		keys[e.TargetKey] = true
	}
	return keys
}

// Issue is a ticket as returned by the ticket system's search endpoints.
type Issue struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// IssueDetails holds the text used to synthesize a worklog comment.
type IssueDetails struct {
	Title           string
	DescriptionText string
	// RecentComments is ordered oldest first, at most three entries.
	RecentComments []string
}

// DistributionMode selects how a duration is split across targets.
type DistributionMode string

const (
	DistributeSingle DistributionMode = "single"
	DistributeEqual  DistributionMode = "equal"
	DistributeCustom DistributionMode = "custom"
)

// Valid reports whether m is one of the known modes.
func (m DistributionMode) Valid() bool {
	switch m {
	case DistributeSingle, DistributeEqual, DistributeCustom:
		return true
	}
	return false
}

// Target is a booking destination: a ticket, a story, or an overhead category.
type Target struct {
	Key   string `yaml:"issue_key" json:"issue_key"`
	Label string `yaml:"summary,omitempty" json:"summary,omitempty"`
	// Hours is the relative weight used by DistributeCustom.
	Hours *float64 `yaml:"hours,omitempty" json:"hours,omitempty"`
}

// DisplayLabel returns the label, falling back to the key.
func (t Target) DisplayLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Key
}

// Weight returns the custom weight, or zero when unset.
func (t Target) Weight() float64 {
	if t.Hours == nil {
		return 0
	}
	return *t.Hours
}

// TargetsFromIssues converts ticket search results into allocation targets.
func TargetsFromIssues(issues []Issue) []Target {
	targets := make([]Target, 0, len(issues))
	for _, is := range issues {
		targets = append(targets, Target{Key: is.Key, Label: is.Title})
	}
	return targets
}

// Allocation is a share of a duration assigned to one target.
type Allocation struct {
	Target  Target
	Seconds int
}

// Day truncates t to midnight UTC, the canonical representation of a calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date into its canonical representation.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// Hours formats a second count as hours with two decimals.
func Hours(seconds int) string {
	return fmt.Sprintf("%.2fh", float64(seconds)/SecondsPerHour)
}
