package complaintapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.svc.Summary(r.Context())
	if err != nil {
		a.writeError(w, r, err, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := a.trendDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(w, "days must be an integer")
			return
		}
		days = n
	}

	t, err := a.svc.Trends(r.Context(), days)
	if err != nil {
		a.writeError(w, r, err, "failed to build trends")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	cell := a.heatmapCell
	if s := r.URL.Query().Get("cell"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || f < geo.MinCellSize || f > geo.MaxCellSize {
			badRequest(w, fmt.Sprintf("cell must be between %g and %g", geo.MinCellSize, geo.MaxCellSize))
			return
		}
		cell = f
	}

	h, err := a.svc.Heatmap(r.Context(), cell)
	if err != nil {
		a.writeError(w, r, err, "failed to build heatmap")
		return
	}
	writeJSON(w, http.StatusOK, h)
}
