package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts a message card to an incoming-webhook URL.
type Webhook struct {
	url  string
	http *http.Client
}

// NewWebhook returns a webhook notifier for url.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

type card struct {
	Type     string        `json:"@type"`
	Context  string        `json:"@context"`
	Summary  string        `json:"summary"`
	Title    string        `json:"title"`
	Text     string        `json:"text,omitempty"`
	Sections []cardSection `json:"sections,omitempty"`
}

type cardSection struct {
	Facts []Fact `json:"facts"`
}

// Notify posts msg.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	c := card{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
		Summary: msg.Title,
		Title:   msg.Title,
		Text:    msg.Body,
	}
	if len(msg.Facts) > 0 {
		c.Sections = []cardSection{{Facts: msg.Facts}}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode webhook card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
