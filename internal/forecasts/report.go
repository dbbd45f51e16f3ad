package forecasts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agriweather/internal/advisory"
	"agriweather/internal/geopoints"
	"agriweather/internal/types"
)

// DefaultAPITimeout bounds one external API call made for a report.
const DefaultAPITimeout = 15 * time.Second

// APISource returns the external API forecast for a farm as of now. Days[0]
// of the result must be the local day of now.
type APISource interface {
	Forecast(ctx context.Context, farmID string, c types.Coordinate, now time.Time) (*types.APIForecast, error)
}

// Row is one variable of the report table.
type Row struct {
	Variable types.Variable `json:"variable"`
	Interleaved
}

// NearestPoint describes the grid point a report was built from.
type NearestPoint struct {
	Coordinate types.Coordinate `json:"coordinate"`
	Distance   float64          `json:"distance"`
}

// FrostAdvisory is the classified frost outlook of one farm.
type FrostAdvisory struct {
	FarmID      string                `json:"farm_id"`
	FarmName    string                `json:"farm_name"`
	FileDate    string                `json:"file_date"`
	Point       NearestPoint          `json:"point"`
	Buckets     []advisory.BucketRisk `json:"buckets"`
	Messages    []string              `json:"messages"`
	HighestTier advisory.Tier         `json:"highest_tier"`
}

// Report is the assembled weather and frost payload for one farm, ready for
// presentation.
type Report struct {
	FarmID            string         `json:"farm_id"`
	FarmName          string         `json:"farm_name"`
	GeneratedAt       time.Time      `json:"generated_at"`
	FileDate          string         `json:"file_date"`
	Window            Window         `json:"window"`
	Point             NearestPoint   `json:"point"`
	Days              []string       `json:"days"`
	Rows              []Row          `json:"rows"`
	DirectComparisons int            `json:"direct_comparisons"`
	Frost             *FrostAdvisory `json:"frost"`
	Messages          []string       `json:"messages"`
}

// AssemblerConfig holds the ReportAssembler settings. Zero values fall back
// to the defaults.
type AssemblerConfig struct {
	Window     DaytimeWindow
	Threshold  float64
	APITimeout time.Duration
	Clock      types.Clock
	Logger     *slog.Logger
}

// ReportAssembler resolves a farm against the point files and the external
// API, merges the two and classifies frost risk.
type ReportAssembler struct {
	points geopoints.Source
	api    APISource
	cfg    AssemblerConfig
	logger *slog.Logger
}

// NewReportAssembler creates an assembler. api may be nil if only frost
// advisories are needed.
func NewReportAssembler(points geopoints.Source, api APISource, cfg AssemblerConfig) *ReportAssembler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = geopoints.DefaultThreshold
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportAssembler{points: points, api: api, cfg: cfg, logger: logger}
}

// At returns a copy of the assembler that treats now as the current time.
// Scheduled jobs use it to honor a payload reference time.
func (a *ReportAssembler) At(now time.Time) *ReportAssembler {
	cp := *a
	cp.cfg.Clock = types.FixedClock{T: now}
	return &cp
}

// resolved is the outcome of the shared first half of both pipelines.
type resolved struct {
	now    time.Time
	window Window
	date   string
	record *geopoints.Record
	point  NearestPoint
}

// resolve validates the farm, picks the point file for the current time and
// finds the farm's grid point.
func (a *ReportAssembler) resolve(ctx context.Context, farm *types.Farm) (*resolved, error) {
	if err := requireReportable(farm); err != nil {
		return nil, err
	}

	now := a.cfg.Clock.Now()
	sel := SelectWindow(now, a.cfg.Window)
	date := a.cfg.Window.FileDate(now, sel)

	store, err := a.points.Load(ctx, date)
	if err != nil {
		return nil, err
	}

	m := geopoints.ResolveNearest(*farm.Location, store, a.cfg.Threshold)
	if err := m.Err(*farm.Location, date); err != nil {
		a.logger.InfoContext(ctx, "farm not covered by point file",
			"farm_id", farm.ID, "date", date, "outcome", m.Outcome.String())
		return nil, err
	}

	return &resolved{
		now:    now,
		window: sel,
		date:   date,
		record: m.Record,
		point:  NearestPoint{Coordinate: m.Record.Coordinate, Distance: m.Distance},
	}, nil
}

// AssembleFrostAdvisory builds the frost outlook of a farm from the point
// file alone.
func (a *ReportAssembler) AssembleFrostAdvisory(ctx context.Context, farm *types.Farm) (*FrostAdvisory, error) {
	r, err := a.resolve(ctx, farm)
	if err != nil {
		return nil, err
	}
	return a.frost(farm, r)
}

func (a *ReportAssembler) frost(farm *types.Farm, r *resolved) (*FrostAdvisory, error) {
	buckets, err := advisory.ClassifyBuckets(a.cfg.Window.LocalDay(r.now), r.window.IndexShift, r.record.Value)
	if err != nil {
		return nil, err
	}
	return &FrostAdvisory{
		FarmID:      farm.ID,
		FarmName:    farm.Name,
		FileDate:    r.date,
		Point:       r.point,
		Buckets:     buckets,
		Messages:    advisory.Messages(buckets),
		HighestTier: advisory.HighestTier(buckets),
	}, nil
}

// AssembleReport builds the full report of a farm. Any missing input fails
// the report with one of the report failure codes: data_unavailable,
// no_nearby_point, incomplete_farm_data or upstream_timeout.
func (a *ReportAssembler) AssembleReport(ctx context.Context, farm *types.Farm) (*Report, error) {
	r, err := a.resolve(ctx, farm)
	if err != nil {
		return nil, err
	}

	api, err := a.fetchAPI(ctx, farm, r.now)
	if err != nil {
		return nil, err
	}

	frost, err := a.frost(farm, r)
	if err != nil {
		return nil, err
	}

	align := Alignment{Shift: r.window.IndexShift}
	rows := make([]Row, 0, len(types.TableVariables))
	direct := 0
	for _, v := range types.TableVariables {
		merged := MergeSeries(api.Series[v], r.record.Series(v), align)
		direct = max(direct, merged.DirectComparisons)
		rows = append(rows, Row{Variable: v, Interleaved: merged})
	}

	return &Report{
		FarmID:            farm.ID,
		FarmName:          farm.Name,
		GeneratedAt:       r.now,
		FileDate:          r.date,
		Window:            r.window,
		Point:             r.point,
		Days:              api.Days,
		Rows:              rows,
		DirectComparisons: direct,
		Frost:             frost,
		Messages:          frost.Messages,
	}, nil
}

// fetchAPI calls the API source with a bounded wait. A deadline becomes
// upstream_timeout; retries are left to the caller.
func (a *ReportAssembler) fetchAPI(ctx context.Context, farm *types.Farm, now time.Time) (*types.APIForecast, error) {
	if a.api == nil {
		return nil, types.NewAppError(types.ErrCodeDataUnavailable, "no weather API source configured", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.APITimeout)
	defer cancel()

	f, err := a.api.Forecast(callCtx, farm.ID, *farm.Location, now)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && types.CodeOf(err) != types.ErrCodeUpstreamTimeout {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamTimeout,
				fmt.Sprintf("weather API did not respond within %s", a.cfg.APITimeout), err,
				map[string]any{"farm_id": farm.ID})
		}
		return nil, err
	}
	if f == nil || len(f.Days) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeDataUnavailable,
			"weather API returned no data", nil, map[string]any{"farm_id": farm.ID})
	}
	return f, nil
}

// requireReportable checks that the farm has what a report needs.
func requireReportable(farm *types.Farm) error {
	if farm == nil {
		return types.NewAppError(types.ErrCodeIncompleteFarmData, "farm record is missing", nil)
	}
	missing := func(step types.RegistrationStep, err error) error {
		return types.NewAppErrorWithDetails(types.ErrCodeIncompleteFarmData,
			fmt.Sprintf("farm %q has no %s", farm.Name, step), err,
			map[string]any{"farm_id": farm.ID, "missing": string(step)})
	}
	switch {
	case farm.Location == nil:
		return missing(types.StepLocation, nil)
	case farm.Name == "":
		return missing(types.StepName, nil)
	case farm.Product == "":
		return missing(types.StepProduct, nil)
	}
	if err := farm.Location.Validate(); err != nil {
		return missing(types.StepLocation, err)
	}
	return nil
}
