// Package vision calls an external zero-shot image classifier over HTTP.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/cityfix/internal/triage"
)

// Labels are the candidate classes sent with every request.
var Labels = []string{
	"trash and litter on street",
	"garbage container / dumpster",
	"children playground equipment",
	"street lighting / lamp post",
	"road / pothole / sidewalk",
	triage.IrrelevantImageLabel,
}

const maxResponseBytes = 1 << 20

var errNoPredictions = errors.New("classifier returned no predictions")

// Client implements triage.ImageClassifier.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client posting to endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

var _ triage.ImageClassifier = (*Client)(nil)

// Request is the payload sent to the classifier.
type Request struct {
	PhotoRef string   `json:"photo_ref"`
	Labels   []string `json:"labels"`
}

// Prediction is one scored label.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Response is the classifier's answer: a probability per candidate label.
type Response struct {
	Predictions []Prediction `json:"predictions"`
}

// ClassifyImage returns the best-scoring label. Relevance is left to the caller's threshold.
func (c *Client) ClassifyImage(ctx context.Context, photoRef string) (triage.ImageSignal, error) {
	body, err := json.Marshal(Request{PhotoRef: photoRef, Labels: Labels})
	if err != nil {
		return triage.ImageSignal{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return triage.ImageSignal{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return triage.ImageSignal{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return triage.ImageSignal{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return triage.ImageSignal{}, fmt.Errorf("vision classifier error %d: %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return triage.ImageSignal{}, fmt.Errorf("unmarshal response: %w", err)
	}

	best, ok := top(out.Predictions)
	if !ok {
		return triage.ImageSignal{}, errNoPredictions
	}
	return triage.ImageSignal{Label: best.Label, Confidence: best.Score}, nil
}

// top returns the highest-scoring prediction; the first wins ties.
func top(ps []Prediction) (Prediction, bool) {
	if len(ps) == 0 {
		return Prediction{}, false
	}
	best := ps[0]
	for _, p := range ps[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	return best, true
}
