package triage

import (
	"testing"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Status
		wantOK bool
	}{
		{"NEW", StatusNew, true},
		{"in_progress", StatusInProgress, true},
		{" done ", StatusDone, true},
		{"Rejected", StatusRejected, true},
		{"", "", false},
		{"closed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseStatus(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseStatus(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusInProgress, true},
		{StatusNew, StatusRejected, true},
		{StatusNew, StatusDone, false},
		{StatusInProgress, StatusDone, true},
		{StatusInProgress, StatusRejected, true},
		{StatusInProgress, StatusNew, false},
		{StatusRejected, StatusNew, true},
		{StatusRejected, StatusDone, false},
		{StatusDone, StatusNew, false},
		{StatusDone, StatusInProgress, false},
		{Status("BOGUS"), StatusNew, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestExportStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to ExportStatus
		want     bool
	}{
		{ExportNone, ExportPrepared, true},
		{ExportNone, ExportStubSent, false},
		{ExportPrepared, ExportStubSent, true},
		{ExportPrepared, ExportPrepared, true},
		{ExportPrepared, ExportFailed, true},
		{ExportFailed, ExportPrepared, true},
		{ExportFailed, ExportStubSent, false},
		{ExportStubSent, ExportPrepared, false},
		{ExportStubSent, ExportFailed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%q -> %q = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseUrgency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Urgency
	}{
		{"high", UrgencyHigh},
		{"HIGH", UrgencyHigh},
		{"high-urgency", UrgencyHigh},
		{"high urgency (dangerous, needs fast fix)", UrgencyHigh},
		{"low urgency", UrgencyLow},
		{"medium", UrgencyMedium},
		{"", UrgencyMedium},
		{"highway", UrgencyMedium},
		{"urgent", UrgencyMedium},
	}

	for _, tt := range tests {
		if got := ParseUrgency(tt.in); got != tt.want {
			t.Errorf("ParseUrgency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComplaint_CloneDeepCopiesLocation(t *testing.T) {
	t.Parallel()

	c := &Complaint{ID: "c-1", Location: &geo.Point{Lat: 1, Lng: 2}}
	cp := c.Clone()
	cp.Location.Lat = 50
	cp.ID = "other"

	if c.Location.Lat != 1 {
		t.Errorf("original Lat = %v, want 1", c.Location.Lat)
	}
	if c.ID != "c-1" {
		t.Errorf("original ID = %q, want c-1", c.ID)
	}
}

func TestComplaint_IsDuplicate(t *testing.T) {
	t.Parallel()

	if (&Complaint{}).IsDuplicate() {
		t.Error("complaint without group should not be a duplicate")
	}
	if !(&Complaint{DuplicateGroupID: "rep"}).IsDuplicate() {
		t.Error("complaint with group should be a duplicate")
	}
}
