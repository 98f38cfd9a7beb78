package triage

import (
	"cmp"
	"slices"
	"time"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

const (
	DefaultTrendDays   = 7
	MaxTrendDays       = 366
	DefaultHeatmapCell = 0.01
	unknownStatsBucket = "UNKNOWN"
	trendDateLayout    = "2006-01-02"
)

// Summary counts complaints by status, category and priority level.
type Summary struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
	ByPriority map[string]int `json:"by_priority"`
}

// TrendPoint is the number of complaints created on one UTC date.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Trends is a contiguous daily series ending on the current UTC date.
type Trends struct {
	Days   int          `json:"days"`
	Series []TrendPoint `json:"series"`
}

// HeatCell is the number of complaints snapped to one grid node.
type HeatCell struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Count int     `json:"count"`
}

// Heatmap groups geolocated complaints into fixed-size coordinate cells.
type Heatmap struct {
	CellSize float64    `json:"grid_size"`
	Cells    []HeatCell `json:"cells"`
}

// Summarize counts cs by status, category and priority level.
func Summarize(cs []*Complaint) Summary {
	s := Summary{
		Total:      len(cs),
		ByStatus:   map[string]int{},
		ByCategory: map[string]int{},
		ByPriority: map[string]int{},
	}
	for _, c := range cs {
		s.ByStatus[orUnknown(string(c.Status))]++
		s.ByCategory[category(c)]++
		level := string(c.PriorityLevel)
		if level == "" {
			level = string(PriorityMedium)
		}
		s.ByPriority[level]++
	}
	return s
}

func category(c *Complaint) string {
	if c.Topic.Category != "" {
		return c.Topic.Category
	}
	return orUnknown(c.UICategory)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownStatsBucket
	}
	return s
}

// TrendSeries counts complaints per UTC date over the last days dates, today included.
// Days are clamped to [1, MaxTrendDays]; dates without complaints are zero.
func TrendSeries(cs []*Complaint, days int, now time.Time) Trends {
	days = min(max(days, 1), MaxTrendDays)

	today := truncateDay(now.UTC())
	start := today.AddDate(0, 0, -(days - 1))

	series := make([]TrendPoint, days)
	index := make(map[string]int, days)
	for i := range series {
		d := start.AddDate(0, 0, i).Format(trendDateLayout)
		series[i] = TrendPoint{Date: d}
		index[d] = i
	}

	for _, c := range cs {
		if c.CreatedAt.IsZero() {
			continue
		}
		if i, ok := index[c.CreatedAt.UTC().Format(trendDateLayout)]; ok {
			series[i].Count++
		}
	}

	return Trends{Days: days, Series: series}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildHeatmap snaps geolocated complaints to a grid of cellSize degrees.
// Cells are ordered by count descending, then by coordinate.
func BuildHeatmap(cs []*Complaint, cellSize float64) Heatmap {
	if !(cellSize >= geo.MinCellSize && cellSize <= geo.MaxCellSize) {
		cellSize = DefaultHeatmapCell
	}

	counts := map[geo.Cell]int{}
	for _, c := range cs {
		if c.Location == nil || !c.Location.Valid() {
			continue
		}
		counts[geo.CellOf(*c.Location, cellSize)]++
	}

	cells := make([]HeatCell, 0, len(counts))
	for cell, n := range counts {
		center := cell.Center(cellSize)
		cells = append(cells, HeatCell{Lat: center.Lat, Lng: center.Lng, Count: n})
	}
	slices.SortFunc(cells, func(a, b HeatCell) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Lng, b.Lng)
	})

	return Heatmap{CellSize: cellSize, Cells: cells}
}
