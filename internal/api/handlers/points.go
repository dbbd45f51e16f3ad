package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/forecasts"
	"agriweather/internal/geopoints"
	"agriweather/internal/types"
)

// PointConfig controls nearest point lookups. Zero values fall back to the
// defaults.
type PointConfig struct {
	Threshold float64
	Window    forecasts.DaytimeWindow
	Clock     types.Clock
}

// PointResponse is the grid point nearest to a query coordinate.
type PointResponse struct {
	Date       string                                     `json:"date"`
	Query      types.Coordinate                           `json:"query"`
	Coordinate types.Coordinate                           `json:"coordinate"`
	Distance   float64                                    `json:"distance"`
	Values     map[types.Variable][]geopoints.BucketValue `json:"values"`
}

// PointHandler exposes the point files for debugging farm locations.
type PointHandler struct {
	points geopoints.Source
	cfg    PointConfig
	logger *slog.Logger
}

// NewPointHandler creates a PointHandler reading from points.
func NewPointHandler(points geopoints.Source, cfg PointConfig, logger *slog.Logger) *PointHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = geopoints.DefaultThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &PointHandler{points: points, cfg: cfg, logger: logger}
}

// RegisterRoutes mounts the point endpoints. Paths are relative to /v1.
func (h *PointHandler) RegisterRoutes(r chi.Router) {
	r.Get("/points/nearest", h.HandleNearest)
}

// HandleNearest handles GET /v1/points/nearest?lat=&lon=&date=. Without a
// date the file a report would use right now is read.
func (h *PointHandler) HandleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := parseCoordinateParam(q.Get("lat"), "lat", types.ErrCodeValidationInvalidLat)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	lon, err := parseCoordinateParam(q.Get("lon"), "lon", types.ErrCodeValidationInvalidLon)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	c := types.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		core.Error(w, r, err)
		return
	}

	date := q.Get("date")
	if date == "" {
		now := h.cfg.Clock.Now()
		date = h.cfg.Window.FileDate(now, forecasts.SelectWindow(now, h.cfg.Window))
	} else if _, err := time.Parse(geopoints.DateLayout, date); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidDate,
			"date must be YYYYMMDD",
			nil,
		))
		return
	}

	store, err := h.points.Load(r.Context(), date)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	match := geopoints.ResolveNearest(c, store, h.cfg.Threshold)
	if err := match.Err(c, date); err != nil {
		core.Error(w, r, err)
		return
	}

	resp := PointResponse{
		Date:       date,
		Query:      c,
		Coordinate: match.Record.Coordinate,
		Distance:   match.Distance,
		Values:     make(map[types.Variable][]geopoints.BucketValue),
	}
	for _, v := range match.Record.Variables() {
		resp.Values[v] = match.Record.Buckets(v)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

func parseCoordinateParam(raw, name string, invalid types.ErrorCode) (float64, error) {
	if raw == "" {
		return 0, types.NewAppError(
			types.ErrCodeValidationMissingField,
			name+" query parameter is required",
			nil,
		)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, types.NewAppError(invalid, name+" must be a valid number", nil)
	}
	return v, nil
}
