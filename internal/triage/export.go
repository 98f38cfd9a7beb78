package triage

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Evidence thresholds of the export gate. Either one alone is sufficient.
const (
	MinEvidenceTextLen         = 20
	MinEvidenceImageConfidence = 0.75
)

// Export gate rejection reasons.
const (
	ReasonIrrelevant   = "not relevant to city infrastructure (image classifier)"
	ReasonNoPhoto      = "no photo evidence"
	ReasonWeakEvidence = "insufficient evidence: text too short and low image confidence"
	ReasonNoLocation   = "no coordinates (lat/lng)"
	ReasonLowPriority  = "low priority: export requires manual override"
	exportServiceName  = "cityfix"
	exportPayloadType  = "city_complaint"
	attachmentBefore   = "image_before"
	attachmentAfter    = "image_after"
)

// GateResult is the export gate verdict. A rejection is a normal outcome, not an error.
type GateResult struct {
	OK      bool           `json:"ok"`
	Reasons []string       `json:"reasons"`
	Payload *ExportPayload `json:"payload"`
}

// ExportPayload is the structured record handed to the external authority system.
type ExportPayload struct {
	Service      string          `json:"service"`
	Type         string          `json:"type"`
	ComplaintID  string          `json:"complaint_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       Status          `json:"status"`
	ExportStatus ExportStatus    `json:"export_status,omitempty"`
	UICategory   string          `json:"ui_category,omitempty"`
	Location     *PayloadPoint   `json:"location"`
	Message      PayloadMessage  `json:"message"`
	AI           PayloadAI       `json:"ai"`
	Routing      PayloadRouting  `json:"routing"`
	Priority     PayloadPriority `json:"priority"`
	Attachments  []Attachment    `json:"attachments"`
}

type PayloadPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type PayloadMessage struct {
	Language string `json:"lang"`
	Text     string `json:"text"`
}

type PayloadAI struct {
	ImageLabel      string  `json:"image_label"`
	ImageConfidence float64 `json:"image_confidence"`
	Relevant        bool    `json:"is_relevant"`
	TextCategory    string  `json:"text_category"`
	TextUrgency     string  `json:"text_urgency"`
	TextConfidence  float64 `json:"text_confidence"`
}

type PayloadRouting struct {
	Department  string `json:"department"`
	Theme       Theme  `json:"theme"`
	Explanation string `json:"explanation"`
}

type PayloadPriority struct {
	Score         float64       `json:"score"`
	Level         PriorityLevel `json:"level"`
	Confirmations int           `json:"confirmations"`
	Duplicates    int           `json:"duplicates_count"`
	DuplicateOf   string        `json:"duplicate_of,omitempty"`
}

type Attachment struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// EvaluateExportGate runs every evidentiary check and collects all failing reasons.
// On success the result carries the export payload.
func EvaluateExportGate(c *Complaint) GateResult {
	reasons := []string{}

	if !c.Image.Relevant {
		reasons = append(reasons, ReasonIrrelevant)
	}
	if strings.TrimSpace(c.PhotoRef) == "" {
		reasons = append(reasons, ReasonNoPhoto)
	}
	textOK := utf8.RuneCountInString(strings.TrimSpace(c.Text)) >= MinEvidenceTextLen
	imageOK := c.Image.Confidence >= MinEvidenceImageConfidence
	if !textOK && !imageOK {
		reasons = append(reasons, ReasonWeakEvidence)
	}
	if c.Location == nil || !c.Location.Valid() {
		reasons = append(reasons, ReasonNoLocation)
	}
	if c.PriorityLevel == PriorityLow {
		reasons = append(reasons, ReasonLowPriority)
	}

	if len(reasons) > 0 {
		return GateResult{OK: false, Reasons: reasons}
	}
	return GateResult{OK: true, Reasons: reasons, Payload: BuildExportPayload(c)}
}

// BuildExportPayload assembles the payload for c without evaluating the gate.
func BuildExportPayload(c *Complaint) *ExportPayload {
	p := &ExportPayload{
		Service:      exportServiceName,
		Type:         exportPayloadType,
		ComplaintID:  c.ID,
		CreatedAt:    c.CreatedAt.UTC(),
		Status:       c.Status,
		ExportStatus: c.ExportStatus,
		UICategory:   c.UICategory,
		Message:      PayloadMessage{Language: c.Language, Text: c.Text},
		AI: PayloadAI{
			ImageLabel:      c.Image.Label,
			ImageConfidence: c.Image.Confidence,
			Relevant:        c.Image.Relevant,
			TextCategory:    c.Topic.Category,
			TextUrgency:     c.Topic.Urgency,
			TextConfidence:  c.Topic.CategoryConfidence,
		},
		Routing: PayloadRouting{
			Department:  c.Department,
			Theme:       c.Theme,
			Explanation: c.RoutingExplanation,
		},
		Priority: PayloadPriority{
			Score:         c.PriorityScore,
			Level:         c.PriorityLevel,
			Confirmations: c.Confirmations,
			Duplicates:    c.DuplicatesCount,
			DuplicateOf:   c.DuplicateGroupID,
		},
		Attachments: []Attachment{},
	}
	if c.Location != nil {
		p.Location = &PayloadPoint{Lat: c.Location.Lat, Lng: c.Location.Lng}
	}
	if c.PhotoRef != "" {
		p.Attachments = append(p.Attachments, Attachment{Type: attachmentBefore, Ref: c.PhotoRef})
	}
	if c.AfterPhotoRef != "" {
		p.Attachments = append(p.Attachments, Attachment{Type: attachmentAfter, Ref: c.AfterPhotoRef})
	}
	return p
}

// SendReceipt records a stub delivery. Nothing leaves the process.
type SendReceipt struct {
	ComplaintID string       `json:"complaint_id"`
	Mode        string       `json:"mode"`
	Delivered   bool         `json:"delivered"`
	Status      ExportStatus `json:"export_status"`
	SentAt      time.Time    `json:"sent_at"`
	ExportRef   string       `json:"export_ref,omitempty"`
	Message     string       `json:"message"`
}
