package complaintapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (a *API) handleExportGate(w http.ResponseWriter, r *http.Request) {
	gate, err := a.svc.EvaluateExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, "failed to evaluate export gate")
		return
	}
	writeJSON(w, http.StatusOK, gate)
}

// handleExportPrepare answers 200 whether or not the gate passed; the body says which.
func (a *API) handleExportPrepare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	gate, err := a.svc.PrepareExport(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "failed to prepare export")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("cityfix.complaint.id", id),
		attribute.Bool("cityfix.export.gate_ok", gate.OK),
	)
	writeJSON(w, http.StatusOK, gate)
}

func (a *API) handleExportPayload(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.ExportPayload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, "failed to build export payload")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleExportSend(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.svc.SendExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, "failed to send export")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
