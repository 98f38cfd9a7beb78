package triage

import (
	"context"
	"strings"
)

// IrrelevantImageLabel is the image classifier label for photos that show no city issue.
const IrrelevantImageLabel = "irrelevant photo (not city issue)"

// DefaultRelevanceThreshold is the minimum image confidence for a relevant photo.
const DefaultRelevanceThreshold = 0.35

// Sentinel signals used when a classifier cannot produce a result.
const (
	UnknownImageLabel   = "unknown"
	DefaultTextCategory = "other city issue"
	DefaultTextUrgency  = "low urgency"
)

// ImageClassifier labels a complaint photo.
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, photoRef string) (ImageSignal, error)
}

// TextClassifier assigns a category and urgency to complaint text.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text, lang string) (TextSignal, error)
}

// IsRelevant reports whether a top image label shows a city issue with enough confidence.
func IsRelevant(label string, confidence, threshold float64) bool {
	if strings.EqualFold(strings.TrimSpace(label), IrrelevantImageLabel) {
		return false
	}
	return confidence >= threshold
}

// FailedImageSignal is what intake records when the image classifier fails.
// Zero confidence keeps the complaint out of routing and export.
func FailedImageSignal() ImageSignal {
	return ImageSignal{Label: UnknownImageLabel, Confidence: 0, Relevant: false}
}

// EmptyTextSignal is the fixed low-confidence result for blank or unclassifiable text.
func EmptyTextSignal() TextSignal {
	return TextSignal{Category: DefaultTextCategory, Urgency: DefaultTextUrgency}
}
