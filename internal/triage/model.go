package triage

import (
	"strings"
	"time"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

// Status tracks where a complaint is in its handling lifecycle.
type Status string

const (
	// StatusNew means accepted and waiting for a department
	StatusNew Status = "NEW"

	// StatusInProgress means a department is working on it
	StatusInProgress Status = "IN_PROGRESS"

	// StatusDone means the issue was fixed
	StatusDone Status = "DONE"

	// StatusRejected means irrelevant or dismissed
	StatusRejected Status = "REJECTED"
)

var statusTransitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusDone, StatusRejected},
	StatusRejected:   {StatusNew},
	StatusDone:       nil,
}

// ParseStatus returns the Status named by s (case-insensitive).
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := statusTransitions[st]
	return st, ok
}

// CanTransition reports whether a complaint in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExportStatus tracks a complaint's progress towards the external authority system.
// The zero value means the export gate has not passed yet.
type ExportStatus string

const (
	ExportNone     ExportStatus = ""
	ExportPrepared ExportStatus = "PREPARED"
	ExportStubSent ExportStatus = "STUB_SENT"
	ExportFailed   ExportStatus = "FAILED"
)

var exportTransitions = map[ExportStatus][]ExportStatus{
	ExportNone:     {ExportPrepared},
	ExportPrepared: {ExportPrepared, ExportStubSent, ExportFailed},
	ExportFailed:   {ExportPrepared},
	ExportStubSent: nil,
}

// CanTransition reports whether export status s may move to next.
func (s ExportStatus) CanTransition(next ExportStatus) bool {
	for _, allowed := range exportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PriorityLevel is the discrete bucket of a priority score.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "LOW"
	PriorityMedium PriorityLevel = "MEDIUM"
	PriorityHigh   PriorityLevel = "HIGH"
)

// Urgency is the text-classifier ordinal of reported severity.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency normalizes classifier urgency labels such as "high urgency (dangerous...)",
// "high-urgency" or "HIGH". Anything unrecognized is medium.
func ParseUrgency(s string) Urgency {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, u := range []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow} {
		if s == string(u) || strings.HasPrefix(s, string(u)+" ") || strings.HasPrefix(s, string(u)+"-") {
			return u
		}
	}
	return UrgencyMedium
}

// ImageSignal is the image classifier's verdict for a complaint photo.
type ImageSignal struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Relevant   bool    `json:"is_relevant"`
}

// TextSignal is the text classifier's verdict for a complaint message.
type TextSignal struct {
	Category           string  `json:"category"`
	CategoryConfidence float64 `json:"category_confidence"`
	Urgency            string  `json:"urgency"`
	UrgencyConfidence  float64 `json:"urgency_confidence"`
}

// Complaint is one citizen report and the triage decisions made about it.
type Complaint struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Location   *geo.Point `json:"location,omitempty"`
	Text       string     `json:"text"`
	Language   string     `json:"language"`
	UICategory string     `json:"ui_category,omitempty"`
	ObjectType string     `json:"object_type,omitempty"`
	PhotoRef   string     `json:"photo_ref,omitempty"`

	Image ImageSignal `json:"image_signal"`
	Topic TextSignal  `json:"text_signal"`

	Department         string `json:"department"`
	Theme              Theme  `json:"theme"`
	RoutingExplanation string `json:"routing_explanation"`

	DuplicateGroupID string `json:"duplicate_group_id,omitempty"`
	DuplicatesCount  int    `json:"duplicates_count"`
	Confirmations    int    `json:"confirmations"`

	PriorityScore float64       `json:"priority_score"`
	PriorityLevel PriorityLevel `json:"priority_level"`

	Status        Status       `json:"status"`
	ExportStatus  ExportStatus `json:"export_status,omitempty"`
	ExportedAt    time.Time    `json:"exported_at,omitzero"`
	AfterPhotoRef string       `json:"after_photo_ref,omitempty"`
}

// IsDuplicate reports whether c was attached to another complaint's cluster.
func (c *Complaint) IsDuplicate() bool {
	return c.DuplicateGroupID != ""
}

// Clone returns a deep copy of c.
func (c *Complaint) Clone() *Complaint {
	cp := *c
	if c.Location != nil {
		loc := *c.Location
		cp.Location = &loc
	}
	return &cp
}
