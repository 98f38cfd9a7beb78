package triage

import (
	"maps"
	"math"
	"strings"
	"time"
)

// Sub-score weights of the priority formula.
const (
	urgencyWeight      = 0.35
	confirmationWeight = 0.25
	waitingWeight      = 0.20
	objectTypeWeight   = 0.20

	confirmationsForMax = 10.0
	waitingDaysForMax   = 7.0
)

// ObjectTypeUnknown is used when a submission does not name the affected object.
const ObjectTypeUnknown = "unknown"

var urgencyScores = map[Urgency]float64{
	UrgencyLow:    0.2,
	UrgencyMedium: 0.6,
	UrgencyHigh:   1.0,
}

// DefaultObjectWeights rates how critical the affected object is.
var DefaultObjectWeights = map[string]float64{
	"hospital":        1.0,
	"school":          0.9,
	"main_road":       0.8,
	"road":            0.7,
	"yard":            0.5,
	"other":           0.4,
	ObjectTypeUnknown: 0.4,
}

// Thresholds are the minimum scores for the HIGH and MEDIUM levels.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds are the stock level cut-offs.
var DefaultThresholds = Thresholds{High: 0.75, Medium: 0.45}

// Level maps a score to its PriorityLevel.
func (t Thresholds) Level(score float64) PriorityLevel {
	switch {
	case score >= t.High:
		return PriorityHigh
	case score >= t.Medium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// PriorityInput holds the signals the score is computed from.
type PriorityInput struct {
	Urgency       Urgency
	Confirmations int
	CreatedAt     time.Time
	ObjectType    string
	Relevant      bool
}

// Priority is a computed score in [0,1] and its level.
type Priority struct {
	Score float64       `json:"score"`
	Level PriorityLevel `json:"level"`
}

// PriorityScorer combines urgency, confirmations, waiting time and object type into a priority.
type PriorityScorer struct {
	thresholds    Thresholds
	objectWeights map[string]float64

	// Now is the clock used for waiting time; nil means time.Now.
	Now func() time.Time
}

// NewPriorityScorer returns a scorer. weights override entries of DefaultObjectWeights;
// object types they do not name keep their default weight.
func NewPriorityScorer(thresholds Thresholds, weights map[string]float64) *PriorityScorer {
	merged := maps.Clone(DefaultObjectWeights)
	for k, w := range weights {
		merged[strings.ToLower(strings.TrimSpace(k))] = w
	}
	return &PriorityScorer{thresholds: thresholds, objectWeights: merged}
}

// Thresholds returns the level cut-offs in use.
func (s *PriorityScorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score computes the priority. Irrelevant reports are always 0/LOW.
func (s *PriorityScorer) Score(in PriorityInput) Priority {
	if !in.Relevant {
		return Priority{Score: 0, Level: PriorityLow}
	}

	urg, ok := urgencyScores[in.Urgency]
	if !ok {
		urg = urgencyScores[UrgencyMedium]
	}

	conf := clamp01(float64(max(in.Confirmations, 0)) / confirmationsForMax)

	var wait float64
	if !in.CreatedAt.IsZero() {
		days := s.now().Sub(in.CreatedAt).Hours() / 24
		wait = clamp01(max(days, 0) / waitingDaysForMax)
	}

	obj := s.objectWeight(in.ObjectType)

	score := urgencyWeight*urg + confirmationWeight*conf + waitingWeight*wait + objectTypeWeight*obj
	score = math.Round(clamp01(score)*1000) / 1000

	return Priority{Score: score, Level: s.thresholds.Level(score)}
}

func (s *PriorityScorer) objectWeight(objectType string) float64 {
	key := strings.ToLower(strings.TrimSpace(objectType))
	if key == "" {
		key = ObjectTypeUnknown
	}
	if w, ok := s.objectWeights[key]; ok {
		return clamp01(w)
	}
	if w, ok := s.objectWeights[ObjectTypeUnknown]; ok {
		return clamp01(w)
	}
	return DefaultObjectWeights[ObjectTypeUnknown]
}

func (s *PriorityScorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
