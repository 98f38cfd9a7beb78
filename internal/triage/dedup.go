package triage

import (
	"cmp"
	"slices"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

const (
	DefaultDuplicateRadiusMeters = 250.0
	DefaultDuplicateScanLimit    = 200
)

// DuplicateResult is the cluster a new complaint joins.
// GroupID is empty when no prior complaint is close enough.
type DuplicateResult struct {
	GroupID string `json:"group_id,omitempty"`
	Count   int    `json:"count"`
}

// DuplicateDetector clusters complaints by distance over a recency-capped window.
// There is no spatial index: the scan is linear and bounded by ScanLimit.
type DuplicateDetector struct {
	RadiusMeters float64
	ScanLimit    int
}

// NewDuplicateDetector returns a detector, substituting defaults for non-positive values.
func NewDuplicateDetector(radiusMeters float64, scanLimit int) *DuplicateDetector {
	if radiusMeters <= 0 {
		radiusMeters = DefaultDuplicateRadiusMeters
	}
	if scanLimit <= 0 {
		scanLimit = DefaultDuplicateScanLimit
	}
	return &DuplicateDetector{RadiusMeters: radiusMeters, ScanLimit: scanLimit}
}

// Detect finds prior complaints within the radius of loc. The window is the ScanLimit
// newest complaints that carry a valid location. Every match counts; the
// representative is the newest match, or the group that match already belongs to.
// First match in recency order wins, not the nearest one.
func (d *DuplicateDetector) Detect(loc *geo.Point, recent []*Complaint) DuplicateResult {
	if loc == nil || !loc.Valid() {
		return DuplicateResult{}
	}

	window := newestFirst(slices.DeleteFunc(slices.Clone(recent), func(c *Complaint) bool {
		return c.Location == nil || !c.Location.Valid()
	}))
	if len(window) > d.ScanLimit {
		window = window[:d.ScanLimit]
	}

	var res DuplicateResult
	for _, c := range window {
		if geo.Distance(*loc, *c.Location) > d.RadiusMeters {
			continue
		}
		res.Count++
		if res.GroupID == "" {
			res.GroupID = c.DuplicateGroupID
			if res.GroupID == "" {
				res.GroupID = c.ID
			}
		}
	}
	return res
}

// newestFirst returns a copy of cs ordered by CreatedAt descending, ID descending on ties.
func newestFirst(cs []*Complaint) []*Complaint {
	out := slices.Clone(cs)
	slices.SortStableFunc(out, func(a, b *Complaint) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}
