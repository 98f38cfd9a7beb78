package complaintapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/cityfix/internal/geo"
	"github.com/linnemanlabs/cityfix/internal/triage"
)

const maxListLimit = 1000

// submitRequest is the intake payload. The photo itself is stored elsewhere; only its reference travels here.
type submitRequest struct {
	Text       string   `json:"text"`
	Language   string   `json:"lang"`
	UICategory string   `json:"ui_category"`
	ObjectType string   `json:"object_type"`
	PhotoRef   string   `json:"photo_ref"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`

	Image *triage.ImageSignal `json:"image_signal,omitempty"`
	Topic *triage.TextSignal  `json:"text_signal,omitempty"`
}

type submitResponse struct {
	Complaint *triage.Complaint      `json:"complaint"`
	Duplicate triage.DuplicateResult `json:"duplicate"`
}

func (req *submitRequest) submission() (*triage.Submission, bool) {
	sub := &triage.Submission{
		Text:       req.Text,
		Language:   req.Language,
		UICategory: req.UICategory,
		ObjectType: req.ObjectType,
		PhotoRef:   req.PhotoRef,
		Image:      req.Image,
		Topic:      req.Topic,
	}
	loc, ok := point(req.Lat, req.Lng)
	if !ok {
		return nil, false
	}
	sub.Location = loc
	return sub, true
}

// point builds a location from optional coordinates. Both or neither must be set, and in range.
func point(lat, lng *float64) (*geo.Point, bool) {
	if lat == nil && lng == nil {
		return nil, true
	}
	if lat == nil || lng == nil {
		return nil, false
	}
	p := geo.Point{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return nil, false
	}
	return &p, true
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sub, ok := req.submission()
	if !ok {
		badRequest(w, "lat and lng must both be set and in range")
		return
	}

	res, err := a.svc.Submit(r.Context(), sub)
	if err != nil {
		a.writeError(w, r, err, "failed to submit complaint")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("cityfix.complaint.id", res.Complaint.ID),
		attribute.String("cityfix.complaint.priority", string(res.Complaint.PriorityLevel)),
	)

	writeJSON(w, http.StatusCreated, submitResponse{Complaint: res.Complaint, Duplicate: res.Duplicate})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f triage.ListFilter

	if s := q.Get("status"); s != "" {
		st, ok := triage.ParseStatus(s)
		if !ok {
			badRequest(w, "unknown status")
			return
		}
		f.Status = st
	}
	f.Department = q.Get("department")

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	cs, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err, "failed to list complaints")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complaints": cs})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("cityfix.complaint.id", id))

	c, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to get complaint")
		return
	}

	span.SetAttributes(attribute.String("cityfix.complaint.status", string(c.Status)))
	writeJSON(w, http.StatusOK, c)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, ok := triage.ParseStatus(req.Status)
	if !ok {
		badRequest(w, "unknown status")
		return
	}

	c, err := a.svc.UpdateStatus(r.Context(), id, st)
	if err != nil {
		a.writeError(w, r, err, "failed to update status")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type afterPhotoRequest struct {
	PhotoRef string `json:"photo_ref"`
}

func (a *API) handleAfterPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req afterPhotoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := a.svc.AttachAfterPhoto(r.Context(), id, req.PhotoRef)
	if err != nil {
		a.writeError(w, r, err, "failed to attach after photo")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
