package complaintapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/cityfix/internal/geo"
	"github.com/linnemanlabs/cityfix/internal/triage"
)

const maxBodyBytes = 1 << 20

// ComplaintService defines the business operations complaintapi needs.
type ComplaintService interface {
	Submit(ctx context.Context, sub *triage.Submission) (*triage.SubmitResult, error)
	Get(ctx context.Context, id string) (*triage.Complaint, error)
	List(ctx context.Context, f triage.ListFilter) ([]*triage.Complaint, error)
	UpdateStatus(ctx context.Context, id string, to triage.Status) (*triage.Complaint, error)
	AttachAfterPhoto(ctx context.Context, id, ref string) (*triage.Complaint, error)

	DetectDuplicate(ctx context.Context, loc *geo.Point) (triage.DuplicateResult, error)
	ScorePriority(in triage.PriorityInput) triage.Priority
	ResolveRoute(imageLabel, textCategory, urgency string, relevant bool) triage.Route

	EvaluateExport(ctx context.Context, id string) (triage.GateResult, error)
	PrepareExport(ctx context.Context, id string) (triage.GateResult, error)
	ExportPayload(ctx context.Context, id string) (*triage.ExportPayload, error)
	SendExport(ctx context.Context, id string) (*triage.SendReceipt, error)

	Summary(ctx context.Context) (triage.Summary, error)
	Trends(ctx context.Context, days int) (triage.Trends, error)
	Heatmap(ctx context.Context, cellSize float64) (triage.Heatmap, error)
}

// Option configures an API.
type Option func(*API)

// WithTrendDays sets the window used when /stats/trends has no days parameter.
func WithTrendDays(days int) Option { return func(a *API) { a.trendDays = days } }

// WithHeatmapCell sets the cell size used when /stats/heatmap has no cell parameter.
func WithHeatmapCell(cell float64) Option { return func(a *API) { a.heatmapCell = cell } }

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         ComplaintService
	trendDays   int
	heatmapCell float64
}

// New creates a new API handler.
func New(logger log.Logger, svc ComplaintService, opts ...Option) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("complaint service is required"))
	}
	a := &API{
		logger:      logger,
		svc:         svc,
		trendDays:   triage.DefaultTrendDays,
		heatmapCell: triage.DefaultHeatmapCell,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/complaints", func(r chi.Router) {
			r.Post("/", a.handleSubmit)
			r.Get("/", a.handleList)
			r.Get("/{id}", a.handleGet)
			r.Patch("/{id}/status", a.handleUpdateStatus)
			r.Post("/{id}/after-photo", a.handleAfterPhoto)
		})

		r.Route("/export/{id}", func(r chi.Router) {
			r.Get("/gate", a.handleExportGate)
			r.Post("/prepare", a.handleExportPrepare)
			r.Get("/payload", a.handleExportPayload)
			r.Post("/send", a.handleExportSend)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/summary", a.handleSummary)
			r.Get("/trends", a.handleTrends)
			r.Get("/heatmap", a.handleHeatmap)
		})

		r.Post("/duplicates/check", a.handleDuplicateCheck)
		r.Post("/priority/score", a.handlePriorityScore)
		r.Post("/routing/resolve", a.handleRoutingResolve)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Unknown errors are logged and hidden.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, triage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})
	case errors.Is(err, triage.ErrInvalidTransition), errors.Is(err, triage.ErrExportNotPrepared):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	case errors.Is(err, triage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	default:
		a.logger.Error(r.Context(), err, msg)
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{msg})
}

// decodeBody reads a single JSON object of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid payload")
		return false
	}
	return true
}
