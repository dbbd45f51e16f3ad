package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/geopoints"
	"agriweather/internal/types"
)

// StatsSource aggregates registration counts.
type StatsSource interface {
	Stats(ctx context.Context) (*types.FarmStats, error)
}

// cachedDates is implemented by geopoints.Cache.
type cachedDates interface {
	Dates() []string
}

// StatsResponse is the operator overview.
type StatsResponse struct {
	Registrations  *types.FarmStats `json:"registrations"`
	AvailableDates []string         `json:"available_dates"`
	CachedDates    []string         `json:"cached_dates,omitempty"`
}

// StatsHandler serves the operator statistics.
type StatsHandler struct {
	stats  StatsSource
	points geopoints.Source
	admin  func(http.Handler) http.Handler
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler. admin guards every route.
func NewStatsHandler(stats StatsSource, points geopoints.Source, admin func(http.Handler) http.Handler, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{stats: stats, points: points, admin: admin, logger: logger}
}

// RegisterRoutes mounts the stats endpoint. Paths are relative to /v1.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.With(h.admin).Get("/stats", h.HandleGetStats)
}

// HandleGetStats handles GET /v1/stats. A failing point file listing does not
// fail the request.
func (h *StatsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := StatsResponse{Registrations: stats, AvailableDates: []string{}}
	if h.points != nil {
		dates, err := h.points.AvailableDates(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "listing point files failed", "error", err)
		} else if dates != nil {
			resp.AvailableDates = dates
		}
		if c, ok := h.points.(cachedDates); ok {
			resp.CachedDates = c.Dates()
		}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}
