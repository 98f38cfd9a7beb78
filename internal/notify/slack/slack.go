// Package slack posts complaint notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cityfix/internal/triage"
)

const (
	maxTextLen  = 1500
	httpTimeout = 10 * time.Second
)

// Notifier sends complaint events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

var _ triage.Notifier = (*Notifier)(nil)

// Notify posts the complaint event to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, event triage.Event, c *triage.Complaint) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(event, c))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "event", event, "complaint_id", c.ID)
	return nil
}

func buildMessage(event triage.Event, c *triage.Complaint) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(event, c),
			{"type": "divider"},
			fieldsBlock(c),
			{"type": "divider"},
			textBlock(c),
			{"type": "divider"},
			contextBlock(event, c),
		},
	}
}

func headerBlock(event triage.Event, c *triage.Complaint) map[string]any {
	var text string
	switch event {
	case triage.EventExportSent:
		text = fmt.Sprintf("%s Export Sent: %s", "\U0001f4e4", orDash(c.Department))
	default:
		text = fmt.Sprintf("%s %s Priority Complaint: %s", levelEmoji(c.PriorityLevel), titleLevel(c.PriorityLevel), orDash(c.Department))
	}

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(c *triage.Complaint) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Priority:* %s (%.3f)", c.PriorityLevel, c.PriorityScore),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Status:* %s", c.Status),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Category:* %s", orDash(c.Topic.Category)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Urgency:* %s", triage.ParseUrgency(c.Topic.Urgency)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Photo:* %s (%.2f)", orDash(c.Image.Label), c.Image.Confidence),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Location:* %s", location(c)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duplicates:* %d", c.DuplicatesCount),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func textBlock(c *triage.Complaint) map[string]any {
	text := truncate(strings.TrimSpace(c.Text), maxTextLen)
	if text == "" {
		text = "_No text provided._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Complaint*\n\n%s", text),
		},
	}
}

func contextBlock(event triage.Event, c *triage.Complaint) map[string]any {
	ts := c.CreatedAt
	if event == triage.EventExportSent && !c.ExportedAt.IsZero() {
		ts = c.ExportedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("cityfix • complaint %s • %s", c.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func levelEmoji(level triage.PriorityLevel) string {
	switch level {
	case triage.PriorityHigh:
		return "\U0001f534" // red circle
	case triage.PriorityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func titleLevel(level triage.PriorityLevel) string {
	switch level {
	case triage.PriorityHigh:
		return "High"
	case triage.PriorityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func location(c *triage.Complaint) string {
	if c.Location == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f, %.5f", c.Location.Lat, c.Location.Lng)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate limits s to limit runes so Cyrillic text is never cut mid-character.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
