package triage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	cs := []*Complaint{
		{Status: StatusNew, Topic: TextSignal{Category: "garbage"}, PriorityLevel: PriorityHigh},
		{Status: StatusNew, UICategory: "roads", PriorityLevel: PriorityLow},
		{Status: StatusRejected, PriorityLevel: PriorityLow},
		{Status: StatusDone, Topic: TextSignal{Category: "garbage"}, UICategory: "ignored", PriorityLevel: PriorityMedium},
		{},
	}

	s := Summarize(cs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, map[string]int{"NEW": 2, "REJECTED": 1, "DONE": 1, "UNKNOWN": 1}, s.ByStatus)
	assert.Equal(t, map[string]int{"garbage": 2, "roads": 1, "UNKNOWN": 2}, s.ByCategory)
	assert.Equal(t, map[string]int{"HIGH": 1, "LOW": 2, "MEDIUM": 2}, s.ByPriority)
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.NotNil(t, s.ByStatus)
	assert.Empty(t, s.ByCategory)
}

func TestTrendSeries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	at := func(s string) *Complaint {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return &Complaint{CreatedAt: ts}
	}
	cs := []*Complaint{
		at("2026-03-10T00:10:00Z"),
		at("2026-03-09T23:59:59Z"),
		at("2026-03-09T12:00:00+05:00"), // 07:00 UTC on the 9th
		at("2026-03-04T00:00:00Z"),
		at("2026-03-03T23:59:59Z"), // outside a 7 day window
		at("2026-03-11T09:00:00Z"), // future
		{},
	}

	tr := TrendSeries(cs, 7, now)
	require.Equal(t, 7, tr.Days)
	require.Len(t, tr.Series, 7)

	want := []TrendPoint{
		{"2026-03-04", 1},
		{"2026-03-05", 0},
		{"2026-03-06", 0},
		{"2026-03-07", 0},
		{"2026-03-08", 0},
		{"2026-03-09", 2},
		{"2026-03-10", 1},
	}
	assert.Equal(t, want, tr.Series)
}

func TestTrendSeries_ContiguousAndComplete(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.FixedZone("UTC+6", 6*3600))
	var cs []*Complaint
	for i := range 40 {
		cs = append(cs, &Complaint{CreatedAt: now.UTC().Add(-time.Duration(i) * 13 * time.Hour)})
	}

	for _, days := range []int{1, 3, 14, 30} {
		tr := TrendSeries(cs, days, now)
		require.Len(t, tr.Series, days)

		first, err := time.Parse("2006-01-02", tr.Series[0].Date)
		require.NoError(t, err)
		sum := 0
		for i, p := range tr.Series {
			assert.Equal(t, first.AddDate(0, 0, i).Format("2006-01-02"), p.Date, "days=%d index %d", days, i)
			sum += p.Count
		}
		assert.Equal(t, "2026-01-02", tr.Series[days-1].Date)

		inWindow := 0
		for _, c := range cs {
			if !c.CreatedAt.Before(first) {
				inWindow++
			}
		}
		assert.Equal(t, inWindow, sum, "days=%d", days)
	}
}

func TestTrendSeries_ClampsDays(t *testing.T) {
	t.Parallel()

	assert.Len(t, TrendSeries(nil, 0, t0).Series, 1)
	assert.Len(t, TrendSeries(nil, -5, t0).Series, 1)
	assert.Len(t, TrendSeries(nil, 10000, t0).Series, MaxTrendDays)
}

func TestBuildHeatmap(t *testing.T) {
	t.Parallel()

	pt := func(lat, lng float64) *Complaint { return &Complaint{Location: &geo.Point{Lat: lat, Lng: lng}} }
	cs := []*Complaint{
		pt(43.2389, 76.8897),
		pt(43.2412, 76.8921),
		pt(43.2388, 76.8903),
		pt(43.2600, 76.9500),
		{},
		pt(95, 0),
	}

	hm := BuildHeatmap(cs, 0.01)
	assert.Equal(t, 0.01, hm.CellSize)
	require.Len(t, hm.Cells, 2)

	assert.Equal(t, HeatCell{Lat: 43.24, Lng: 76.89, Count: 3}, hm.Cells[0])
	assert.Equal(t, HeatCell{Lat: 43.26, Lng: 76.95, Count: 1}, hm.Cells[1])

	total := 0
	for _, c := range hm.Cells {
		total += c.Count
	}
	assert.Equal(t, 4, total)
}

func TestBuildHeatmap_DefaultCellAndOrdering(t *testing.T) {
	t.Parallel()

	pt := func(lat, lng float64) *Complaint { return &Complaint{Location: &geo.Point{Lat: lat, Lng: lng}} }
	cs := []*Complaint{pt(1, 2), pt(0, 2), pt(0, 1)}

	hm := BuildHeatmap(cs, 0)
	assert.Equal(t, DefaultHeatmapCell, hm.CellSize)
	require.Len(t, hm.Cells, 3)
	// equal counts order by lat then lng
	assert.Equal(t, []HeatCell{{0, 1, 1}, {0, 2, 1}, {1, 2, 1}}, hm.Cells)
}

func TestBuildHeatmap_OutOfRangeCellUsesDefault(t *testing.T) {
	t.Parallel()

	cs := []*Complaint{
		{Location: &geo.Point{Lat: 43.2389, Lng: 76.8897}},
		{Location: &geo.Point{Lat: -33.8688, Lng: 151.2093}},
	}
	for _, size := range []float64{1e-20, math.NaN(), 1e6} {
		hm := BuildHeatmap(cs, size)
		assert.Equal(t, DefaultHeatmapCell, hm.CellSize, "size %v", size)
		assert.Len(t, hm.Cells, 2, "size %v: distant points must not share a cell", size)
	}
}

func TestStats_DoNotMutateInput(t *testing.T) {
	t.Parallel()

	c := &Complaint{ID: "x", CreatedAt: t0, Location: &geo.Point{Lat: 1, Lng: 1}, Status: StatusNew}
	before := *c
	loc := *c.Location

	Summarize([]*Complaint{c})
	TrendSeries([]*Complaint{c}, 7, t0)
	BuildHeatmap([]*Complaint{c}, 0.5)

	assert.Equal(t, before.Status, c.Status)
	assert.Equal(t, loc, *c.Location)
}
