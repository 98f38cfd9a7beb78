// Package geo provides great-circle distance and coordinate grid helpers.
package geo

import (
	"math"
	"slices"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat is the arc length of one degree of latitude on the
// same sphere Distance uses.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

// maxBandLat bounds the latitude band where longitude columns are used for
// neighborhood keys. Rows reaching past it use a single column.
const maxBandLat = 85.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is finite and within latitude/longitude bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the haversine great-circle distance between a and b in meters.
// Callers must pass finite coordinates.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair above 1 for antipodal points
	h = math.Min(1, h)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Cell is a grid cell index for a fixed cell size in degrees.
type Cell struct {
	Row int64
	Col int64
}

// Heatmap cell sizes outside [MinCellSize, MaxCellSize] degrees are rejected by callers.
const (
	MinCellSize = 1e-6
	MaxCellSize = 10.0
)

// CellOf snaps p to the nearest grid node for the given cell size in degrees.
func CellOf(p Point, size float64) Cell {
	return Cell{
		Row: int64(math.Round(p.Lat / size)),
		Col: int64(math.Round(p.Lng / size)),
	}
}

// Center returns the coordinate of the grid node for c.
func (c Cell) Center(size float64) Point {
	return Point{
		Lat: roundTo(float64(c.Row)*size, 9),
		Lng: roundTo(float64(c.Col)*size, 9),
	}
}

// NeighborhoodKeys returns lock keys for the grid cell containing p and its
// eight neighbors, sorted ascending. Cells are at least cellMeters wide, so
// any two points closer than cellMeters share at least one key.
func NeighborhoodKeys(p Point, cellMeters float64) []int64 {
	latStep := cellMeters / metersPerDegreeLat
	// fixed column width, never narrower than cellMeters below maxBandLat
	lngStep := latStep / math.Cos(radians(maxBandLat))

	row := int64(math.Floor(p.Lat / latStep))
	col := int64(math.Floor(p.Lng / lngStep))

	keys := make([]int64, 0, 9)
	for r := row - 1; r <= row+1; r++ {
		// polar rows collapse to a single column
		if polarRow(r, latStep) {
			keys = append(keys, packKey(r, 0))
			continue
		}
		for c := col - 1; c <= col+1; c++ {
			keys = append(keys, packKey(r, c))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func polarRow(r int64, latStep float64) bool {
	lower := float64(r) * latStep
	upper := lower + latStep
	return math.Max(math.Abs(lower), math.Abs(upper)) > maxBandLat
}

func packKey(row, col int64) int64 {
	return row<<32 | int64(uint32(col))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
