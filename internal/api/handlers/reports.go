// Package handlers contains the HTTP handlers of the AgriWeather API.
//
// This file serves the farm weather report and frost advisory:
//   - GET /v1/farms/{farmID}/report
//   - GET /v1/farms/{farmID}/frost
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/forecasts"
	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// FarmReader loads a single farm.
type FarmReader interface {
	GetByID(ctx context.Context, id string) (*types.Farm, error)
}

// ReportService builds reports for a farm. Satisfied by
// forecasts.ReportAssembler.
type ReportService interface {
	AssembleReport(ctx context.Context, farm *types.Farm) (*forecasts.Report, error)
	AssembleFrostAdvisory(ctx context.Context, farm *types.Farm) (*forecasts.FrostAdvisory, error)
}

// ReportHandler maps report requests to the assembler.
type ReportHandler struct {
	farms   FarmReader
	reports ReportService
	metrics notifications.Metrics
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler. metrics may be nil.
func NewReportHandler(farms FarmReader, reports ReportService, metrics notifications.Metrics, logger *slog.Logger) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	return &ReportHandler{
		farms:   farms,
		reports: reports,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes mounts the report endpoints. Paths are relative to /v1.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/farms/{farmID}/report", h.HandleGetReport)
	r.Get("/farms/{farmID}/frost", h.HandleGetFrost)
}

// HandleGetReport handles GET /v1/farms/{farmID}/report.
func (h *ReportHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	farm, ok := h.loadFarm(w, r)
	if !ok {
		return
	}
	report, err := h.reports.AssembleReport(r.Context(), farm)
	if err != nil {
		h.reportFailure(w, r, farm, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// HandleGetFrost handles GET /v1/farms/{farmID}/frost.
func (h *ReportHandler) HandleGetFrost(w http.ResponseWriter, r *http.Request) {
	farm, ok := h.loadFarm(w, r)
	if !ok {
		return
	}
	adv, err := h.reports.AssembleFrostAdvisory(r.Context(), farm)
	if err != nil {
		h.reportFailure(w, r, farm, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: adv})
}

func (h *ReportHandler) loadFarm(w http.ResponseWriter, r *http.Request) (*types.Farm, bool) {
	farm, err := h.farms.GetByID(r.Context(), chi.URLParam(r, "farmID"))
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	return farm, true
}

// reportFailure writes a report error. The four report outcomes carry the
// farmer-facing text in details so clients do not have to map codes
// themselves.
func (h *ReportHandler) reportFailure(w http.ResponseWriter, r *http.Request, farm *types.Farm, err error) {
	code := types.CodeOf(err)
	h.metrics.Count(types.MetricReportFailure, 1, map[string]string{types.DimReason: string(code)})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		h.logger.ErrorContext(r.Context(), "report failed", "farm_id", farm.ID, "error", err)
		core.Error(w, r, err)
		return
	}

	switch code {
	case types.ErrCodeDataUnavailable, types.ErrCodeNoNearbyPoint,
		types.ErrCodeIncompleteFarmData, types.ErrCodeUpstreamTimeout:
		h.logger.InfoContext(r.Context(), "report unavailable",
			"farm_id", farm.ID, "code", code, "error", err)
		appErr = appErr.WithDetails(map[string]any{"user_message": types.UserMessage(err)})
	default:
		h.logger.ErrorContext(r.Context(), "report failed", "farm_id", farm.ID, "error", err)
	}
	core.Error(w, r, appErr)
}
