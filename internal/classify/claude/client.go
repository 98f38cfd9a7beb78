// Package claude classifies complaint text with the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/cityfix/internal/triage"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

const maxTokens = 256

// Categories are the zero-shot topic labels the model chooses from.
var Categories = []string{
	"trash issue",
	"illegal dump",
	"yard/road litter",
	"broken playground",
	"street lighting problem",
	"road/pavement problem",
	triage.DefaultTextCategory,
}

// UrgencyLabels are the zero-shot urgency labels the model chooses from.
var UrgencyLabels = []string{
	"high urgency (dangerous, needs immediate fix)",
	"medium urgency",
	triage.DefaultTextUrgency,
}

var errNoJSON = errors.New("no JSON object in model response")

// messageSender is the subset of the SDK message service the classifier needs.
type messageSender interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Classifier implements triage.TextClassifier.
type Classifier struct {
	messages messageSender
	model    string
}

// New creates a classifier using the given API key and model name.
func New(apiKey, model string) *Classifier {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newWithSender(&client.Messages, model)
}

func newWithSender(s messageSender, model string) *Classifier {
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{messages: s, model: model}
}

var _ triage.TextClassifier = (*Classifier)(nil)

// verdict is the JSON object the model is asked to return.
type verdict struct {
	Category           string  `json:"category"`
	CategoryConfidence float64 `json:"category_confidence"`
	Urgency            string  `json:"urgency"`
	UrgencyConfidence  float64 `json:"urgency_confidence"`
}

// ClassifyText asks the model for a topic and an urgency label.
func (c *Classifier) ClassifyText(ctx context.Context, text, lang string) (triage.TextSignal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return triage.EmptyTextSignal(), nil
	}

	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt()}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(text, lang))),
		},
	})
	if err != nil {
		return triage.TextSignal{}, fmt.Errorf("claude messages: %w", err)
	}

	v, err := parseVerdict(responseText(msg))
	if err != nil {
		return triage.TextSignal{}, err
	}
	return toSignal(v), nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You triage citizen complaints about city infrastructure. ")
	b.WriteString("Complaints may be written in Russian, Kazakh or English.\n\n")
	b.WriteString("Pick exactly one category from:\n")
	for _, c := range Categories {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\nPick exactly one urgency from:\n")
	for _, u := range UrgencyLabels {
		b.WriteString("- " + u + "\n")
	}
	b.WriteString("\nReply with a single JSON object and nothing else: ")
	b.WriteString(`{"category": "...", "category_confidence": 0.0, "urgency": "...", "urgency_confidence": 0.0}`)
	b.WriteString("\nConfidences are between 0 and 1. Copy labels exactly as listed.")
	return b.String()
}

func userPrompt(text, lang string) string {
	if lang == "" {
		return "Complaint:\n" + text
	}
	return fmt.Sprintf("Complaint (language: %s):\n%s", lang, text)
}

func responseText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseVerdict extracts the outermost JSON object from s. Models sometimes wrap it in prose or code fences.
func parseVerdict(s string) (verdict, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return verdict{}, errNoJSON
	}
	var v verdict
	if err := json.Unmarshal([]byte(s[start:end+1]), &v); err != nil {
		return verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return v, nil
}

func toSignal(v verdict) triage.TextSignal {
	return triage.TextSignal{
		Category:           matchLabel(v.Category, Categories, triage.DefaultTextCategory),
		CategoryConfidence: clamp01(v.CategoryConfidence),
		Urgency:            matchLabel(v.Urgency, UrgencyLabels, "medium urgency"),
		UrgencyConfidence:  clamp01(v.UrgencyConfidence),
	}
}

// matchLabel maps a model answer onto a known label, tolerating case and a truncated suffix.
func matchLabel(got string, labels []string, fallback string) string {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return fallback
	}
	for _, l := range labels {
		if got == l {
			return l
		}
	}
	for _, l := range labels {
		if strings.HasPrefix(l, got) || strings.HasPrefix(got, l) {
			return l
		}
	}
	return fallback
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
