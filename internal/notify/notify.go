// Package notify delivers run summaries and warnings over desktop, webhook
// and Telegram channels. Channel failures are logged and never fatal.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// Fact is a labelled value rendered by channels that support structure.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a channel-independent notification.
type Message struct {
	Title string
	Body  string
	Facts []Fact
}

// Text renders the message as plain text.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
	}
	for _, f := range m.Facts {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	return b.String()
}

// Notifier delivers a message on one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every channel.
type Multi []Notifier

// Notify sends msg everywhere and joins the failures.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			slog.Warn("notification channel failed", "channel", fmt.Sprintf("%T", n), "title", msg.Title, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Message) error { return nil }

func hours(seconds int) string {
	return decimal.NewFromInt(int64(seconds)).Div(decimal.NewFromInt(model.SecondsPerHour)).StringFixed(2) + "h"
}

// DailySummary reports the bookings of a sync run.
func DailySummary(s model.DaySummary) Message {
	facts := make([]Fact, 0, len(s.Created)+len(s.Preserved))
	for _, e := range s.Entries() {
		facts = append(facts, Fact{Name: e.TargetKey, Value: hours(e.DurationSeconds)})
	}
	return Message{
		Title: "Tempo Daily Summary - " + model.FormatDate(s.Date),
		Body:  fmt.Sprintf("Total hours: %s / %s", hours(s.TotalSeconds()), hours(s.TargetSeconds)),
		Facts: facts,
	}
}

// SubmissionConfirmation reports a submitted period.
func SubmissionConfirmation(period string) Message {
	return Message{
		Title: "Timesheet Submitted",
		Body:  fmt.Sprintf("Your timesheet for %s has been submitted for approval.", period),
	}
}

// Shortfall reports missing hours for a weekly or monthly range.
func Shortfall(kind, start, end string, expectedSeconds, actualSeconds int) Message {
	missing := expectedSeconds - actualSeconds
	if missing < 0 {
		missing = 0
	}
	title := "Tempo Hours Shortfall"
	if kind != "" {
		title += " - " + cases.Title(language.English).String(kind)
	}
	return Message{
		Title: title,
		Body:  fmt.Sprintf("Period: %s to %s", start, end),
		Facts: []Fact{
			{Name: "Period", Value: start + " to " + end},
			{Name: "Expected", Value: hours(expectedSeconds)},
			{Name: "Actual", Value: hours(actualSeconds)},
			{Name: "Shortfall", Value: hours(missing)},
		},
	}
}

// OverheadNotConfigured asks the user to select overhead stories.
func OverheadNotConfigured() Message {
	return Message{
		Title: "Overhead Not Configured",
		Body:  "Set overhead.current_pi stories in the config to log PTO, holidays and idle days.",
	}
}

// SyncBusy is sent when a trigger arrives while a sync is running.
func SyncBusy() Message {
	return Message{
		Title: "Sync Already Running",
		Body:  "A sync is already in progress, try again in a moment.",
	}
}
