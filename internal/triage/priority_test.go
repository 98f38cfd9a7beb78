package triage

import (
	"testing"
	"time"
)

func fixedScorer(now time.Time) *PriorityScorer {
	s := NewPriorityScorer(DefaultThresholds, nil)
	s.Now = func() time.Time { return now }
	return s
}

func TestScore_IrrelevantIsAlwaysZeroLow(t *testing.T) {
	t.Parallel()

	s := fixedScorer(t0)
	inputs := []PriorityInput{
		{Urgency: UrgencyHigh, Confirmations: 100, CreatedAt: t0.AddDate(0, 0, -30), ObjectType: "hospital"},
		{Urgency: UrgencyLow},
		{},
	}
	for _, in := range inputs {
		in.Relevant = false
		got := s.Score(in)
		if got.Score != 0 || got.Level != PriorityLow {
			t.Errorf("Score(%+v) = %+v, want 0/LOW", in, got)
		}
	}
}

func TestScore_WorkedExampleIsHigh(t *testing.T) {
	t.Parallel()

	got := fixedScorer(t0).Score(PriorityInput{
		Urgency:       UrgencyHigh,
		Confirmations: 10,
		CreatedAt:     t0.AddDate(0, 0, -7),
		ObjectType:    "hospital",
		Relevant:      true,
	})
	if got.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", got.Score)
	}
	if got.Level != PriorityHigh {
		t.Errorf("Level = %q, want HIGH", got.Level)
	}
}

func TestScore_Formula(t *testing.T) {
	t.Parallel()

	s := fixedScorer(t0)
	tests := []struct {
		name string
		in   PriorityInput
		want float64
		lvl  PriorityLevel
	}{
		{
			// 0.35*0.6 + 0.25*0.1 + 0 + 0.2*0.4
			name: "fresh medium unknown",
			in:   PriorityInput{Urgency: UrgencyMedium, Confirmations: 1, CreatedAt: t0, Relevant: true},
			want: 0.315,
			lvl:  PriorityLow,
		},
		{
			// 0.35*1.0 + 0.25*0.3 + 0.2*(3.5/7) + 0.2*0.9
			name: "high school half week",
			in: PriorityInput{
				Urgency: UrgencyHigh, Confirmations: 3,
				CreatedAt: t0.Add(-84 * time.Hour), ObjectType: "School", Relevant: true,
			},
			want: 0.705,
			lvl:  PriorityMedium,
		},
		{
			// 0.35*0.2 + 0.25*1.0 + 0.2*1.0 + 0.2*0.7, waiting and confirmations saturate
			name: "low road saturated",
			in: PriorityInput{
				Urgency: UrgencyLow, Confirmations: 25,
				CreatedAt: t0.AddDate(0, 0, -30), ObjectType: " road ", Relevant: true,
			},
			want: 0.66,
			lvl:  PriorityMedium,
		},
		{
			name: "unknown urgency falls back to medium",
			in:   PriorityInput{Urgency: Urgency("extreme"), Confirmations: 1, CreatedAt: t0, Relevant: true},
			want: 0.315,
			lvl:  PriorityLow,
		},
		{
			name: "future created_at counts as zero wait",
			in:   PriorityInput{Urgency: UrgencyMedium, Confirmations: 1, CreatedAt: t0.Add(48 * time.Hour), Relevant: true},
			want: 0.315,
			lvl:  PriorityLow,
		},
		{
			name: "negative confirmations clamp to zero",
			in:   PriorityInput{Urgency: UrgencyMedium, Confirmations: -4, CreatedAt: t0, ObjectType: "nope", Relevant: true},
			want: 0.29,
			lvl:  PriorityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := s.Score(tt.in)
			if got.Score != tt.want {
				t.Errorf("Score = %v, want %v", got.Score, tt.want)
			}
			if got.Level != tt.lvl {
				t.Errorf("Level = %q, want %q", got.Level, tt.lvl)
			}
		})
	}
}

func TestScore_MonotoneInEachInput(t *testing.T) {
	t.Parallel()

	s := fixedScorer(t0)
	base := PriorityInput{Urgency: UrgencyMedium, Confirmations: 2, CreatedAt: t0.AddDate(0, 0, -2), ObjectType: "yard", Relevant: true}

	check := func(name string, vary func(i int) PriorityInput, n int) {
		prev := -1.0
		for i := range n {
			got := s.Score(vary(i)).Score
			if got < prev {
				t.Errorf("%s: score decreased at step %d: %v < %v", name, i, got, prev)
			}
			prev = got
		}
	}

	urgencies := []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}
	check("urgency", func(i int) PriorityInput {
		in := base
		in.Urgency = urgencies[i]
		return in
	}, len(urgencies))

	check("confirmations", func(i int) PriorityInput {
		in := base
		in.Confirmations = i
		return in
	}, 15)

	check("waiting", func(i int) PriorityInput {
		in := base
		in.CreatedAt = t0.Add(-time.Duration(i) * 12 * time.Hour)
		return in
	}, 20)

	objects := []string{"unknown", "yard", "road", "main_road", "school", "hospital"}
	check("object type", func(i int) PriorityInput {
		in := base
		in.ObjectType = objects[i]
		return in
	}, len(objects))
}

func TestScore_AlwaysInUnitRange(t *testing.T) {
	t.Parallel()

	weights := map[string]float64{"weird": 7, ObjectTypeUnknown: -3}
	s := NewPriorityScorer(DefaultThresholds, weights)
	s.Now = func() time.Time { return t0 }

	for _, obj := range []string{"weird", "unknown", "missing"} {
		got := s.Score(PriorityInput{Urgency: UrgencyHigh, Confirmations: 1000, CreatedAt: t0.AddDate(-1, 0, 0), ObjectType: obj, Relevant: true})
		if got.Score < 0 || got.Score > 1 {
			t.Errorf("object %q: score %v out of [0,1]", obj, got.Score)
		}
	}
}

func TestNewPriorityScorer_PartialWeightOverride(t *testing.T) {
	t.Parallel()

	base := PriorityInput{Urgency: UrgencyHigh, Confirmations: 1, CreatedAt: t0, Relevant: true}

	stock := fixedScorer(t0)
	custom := NewPriorityScorer(DefaultThresholds, map[string]float64{" Yard ": 0.3})
	custom.Now = func() time.Time { return t0 }

	for _, obj := range []string{"hospital", "school", "road", "unknown"} {
		in := base
		in.ObjectType = obj
		if got, want := custom.Score(in), stock.Score(in); got != want {
			t.Errorf("%s with yard-only override = %+v, want %+v", obj, got, want)
		}
	}

	in := base
	in.ObjectType = "yard"
	if got, def := custom.Score(in), stock.Score(in); got.Score >= def.Score {
		t.Errorf("yard override score %v not below default %v", got.Score, def.Score)
	}
	if DefaultObjectWeights["yard"] != 0.5 {
		t.Errorf("override leaked into DefaultObjectWeights: yard = %v", DefaultObjectWeights["yard"])
	}
}

func TestThresholds_Level(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds
	tests := []struct {
		score float64
		want  PriorityLevel
	}{
		{0, PriorityLow},
		{0.449, PriorityLow},
		{0.45, PriorityMedium},
		{0.749, PriorityMedium},
		{0.75, PriorityHigh},
		{1, PriorityHigh},
	}
	for _, tt := range tests {
		if got := th.Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}

	custom := Thresholds{High: 0.9, Medium: 0.2}
	if got := custom.Level(0.8); got != PriorityMedium {
		t.Errorf("custom Level(0.8) = %q, want MEDIUM", got)
	}
}
