package cfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scoring is the optional YAML override for priority scoring. Object weights are
// merged over the built-in table, so a file may name only the types it changes:
//
//	thresholds:
//	  high: 0.8
//	  medium: 0.5
//	object_weights:
//	  hospital: 1.0
//	  kindergarten: 0.9
type Scoring struct {
	Thresholds    *ScoringThresholds `yaml:"thresholds"`
	ObjectWeights map[string]float64 `yaml:"object_weights"`
}

// ScoringThresholds are the level cut-offs in a scoring file.
type ScoringThresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// LoadScoring reads and validates a scoring file. Unknown keys are rejected.
func LoadScoring(path string) (*Scoring, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read scoring file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scoring
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse scoring file %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scoring file %s: %w", path, err)
	}

	if len(s.ObjectWeights) > 0 {
		norm := make(map[string]float64, len(s.ObjectWeights))
		for k, v := range s.ObjectWeights {
			norm[strings.ToLower(strings.TrimSpace(k))] = v
		}
		s.ObjectWeights = norm
	}
	return &s, nil
}

// Validate checks thresholds and weights.
func (s *Scoring) Validate() error {
	var errs []error
	if s.Thresholds != nil {
		errs = append(errs, validateThresholds(s.Thresholds.High, s.Thresholds.Medium)...)
	}
	for k, v := range s.ObjectWeights {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, errors.New("object weight with empty name"))
			continue
		}
		if !finite(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("object weight %q = %v (must be in [0, 1])", k, v))
		}
	}
	return errors.Join(errs...)
}

// ApplyScoring overrides the priority thresholds from s, when it sets them.
func (c *Config) ApplyScoring(s *Scoring) {
	if s == nil || s.Thresholds == nil {
		return
	}
	c.PriorityHigh = s.Thresholds.High
	c.PriorityMedium = s.Thresholds.Medium
}
