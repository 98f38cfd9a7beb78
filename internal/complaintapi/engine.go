package complaintapi

import (
	"net/http"
	"time"

	"github.com/linnemanlabs/cityfix/internal/triage"
)

type duplicateCheckRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (a *API) handleDuplicateCheck(w http.ResponseWriter, r *http.Request) {
	var req duplicateCheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loc, ok := point(req.Lat, req.Lng)
	if !ok {
		badRequest(w, "lat and lng must both be set and in range")
		return
	}

	res, err := a.svc.DetectDuplicate(r.Context(), loc)
	if err != nil {
		a.writeError(w, r, err, "failed to check duplicates")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type priorityRequest struct {
	Urgency       string    `json:"urgency"`
	Confirmations int       `json:"confirmations"`
	CreatedAt     time.Time `json:"created_at"`
	ObjectType    string    `json:"object_type"`
	Relevant      *bool     `json:"is_relevant"`
}

func (a *API) handlePriorityScore(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := triage.PriorityInput{
		Urgency:       triage.ParseUrgency(req.Urgency),
		Confirmations: req.Confirmations,
		CreatedAt:     req.CreatedAt,
		ObjectType:    req.ObjectType,
		Relevant:      req.Relevant == nil || *req.Relevant,
	}
	writeJSON(w, http.StatusOK, a.svc.ScorePriority(in))
}

type routeRequest struct {
	ImageLabel   string `json:"image_label"`
	TextCategory string `json:"text_category"`
	Urgency      string `json:"urgency"`
	Relevant     *bool  `json:"is_relevant"`
}

func (a *API) handleRoutingResolve(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	relevant := req.Relevant == nil || *req.Relevant
	writeJSON(w, http.StatusOK, a.svc.ResolveRoute(req.ImageLabel, req.TextCategory, req.Urgency, relevant))
}
