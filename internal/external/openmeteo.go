package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agriweather/internal/types"
)

// openMeteoAPIBase is the default Open-Meteo API base URL.
const openMeteoAPIBase = "https://api.open-meteo.com"

const defaultForecastDays = 7

// Daily variables requested from Open-Meteo, mapped to the report variables.
var openMeteoDaily = []struct {
	param    string
	variable types.Variable
}{
	{"temperature_2m_max", types.VarTempMax},
	{"temperature_2m_min", types.VarTempMin},
	{"precipitation_sum", types.VarRain},
	{"precipitation_probability_max", types.VarPrecipProb},
	{"wind_speed_10m_max", types.VarWindSpeed},
	{"wind_direction_10m_dominant", types.VarWindDir},
}

const openMeteoHumidity = "relative_humidity_2m"

// OpenMeteoClientConfig holds the configuration for an OpenMeteoClient.
type OpenMeteoClientConfig struct {
	BaseURL      string // defaults to openMeteoAPIBase
	Timezone     string // IANA zone the daily aggregation is computed in
	ForecastDays int
	Logger       *slog.Logger
}

// openMeteoResponse is the subset of the /v1/forecast payload we read.
// Values are pointers because the API reports missing samples as null.
type openMeteoResponse struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Timezone  string                     `json:"timezone"`
	Daily     map[string]json.RawMessage `json:"daily"`
	Hourly    map[string]json.RawMessage `json:"hourly"`
}

type openMeteoError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// OpenMeteoClient fetches daily forecasts from Open-Meteo through BaseClient.
// It implements forecasts.ForecastFetcher.
type OpenMeteoClient struct {
	base         *BaseClient
	baseURL      string
	timezone     string
	forecastDays int
	logger       *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient with its own breaker and the
// default retry policy.
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	base := NewBaseClient(httpClient, "open-meteo", DefaultRetryPolicy(), "AgriWeather/1.0")
	return NewOpenMeteoClientWithBase(base, cfg)
}

// NewOpenMeteoClientWithBase creates an OpenMeteoClient around a
// pre-configured BaseClient.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoAPIBase
	}
	days := cfg.ForecastDays
	if days <= 0 {
		days = defaultForecastDays
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "GMT"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{
		base:         base,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		timezone:     tz,
		forecastDays: days,
		logger:       logger,
	}
}

// FetchDaily returns the daily forecast for c. Every value is rounded to the
// nearest integer. Relative humidity is the mean of the hourly samples of
// each day.
func (c *OpenMeteoClient) FetchDaily(ctx context.Context, coord types.Coordinate) (*types.APIForecast, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}

	daily := make([]string, 0, len(openMeteoDaily))
	for _, d := range openMeteoDaily {
		daily = append(daily, d.param)
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	q.Set("daily", strings.Join(daily, ","))
	q.Set("hourly", openMeteoHumidity)
	q.Set("timezone", c.timezone)
	q.Set("forecast_days", strconv.Itoa(c.forecastDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "open-meteo request failed",
			"coordinate", coord.String(), "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeatherAPI, "failed to read weather response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr openMeteoError
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			reason = apiErr.Reason
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeatherAPI,
			"weather API rejected the request: "+reason, nil,
			map[string]any{"status": resp.StatusCode})
	}

	f, err := parseOpenMeteo(coord, body)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "open-meteo forecast fetched",
		"coordinate", coord.String(),
		"days", len(f.Days),
		"min_temps", f.Series[types.VarTempMin].NonNull(),
		"duration_ms", time.Since(start).Milliseconds())
	return f, nil
}

// parseOpenMeteo converts the raw payload into an APIForecast. The returned
// coordinate is the requested one, not the grid cell Open-Meteo snapped to,
// so cached entries compare equal to later requests.
func parseOpenMeteo(coord types.Coordinate, body []byte) (*types.APIForecast, error) {
	var raw openMeteoResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeatherAPI, "malformed weather response", err)
	}

	var days []string
	if err := decodeField(raw.Daily, "time", &days); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeatherAPI, "weather response has no daily data", nil)
	}

	out := &types.APIForecast{
		Coordinate: coord,
		Days:       days,
		Series:     make(map[types.Variable]types.Series, len(openMeteoDaily)+1),
	}
	for _, d := range openMeteoDaily {
		var values []*float64
		if err := decodeField(raw.Daily, d.param, &values); err != nil {
			return nil, err
		}
		out.Series[d.variable] = roundSeries(values, len(days))
	}

	var hours []string
	var humidity []*float64
	if err := decodeField(raw.Hourly, "time", &hours); err != nil {
		return nil, err
	}
	if err := decodeField(raw.Hourly, openMeteoHumidity, &humidity); err != nil {
		return nil, err
	}
	out.Series[types.VarHumidity] = dailyMeans(days, hours, humidity)
	return out, nil
}

func decodeField(section map[string]json.RawMessage, name string, dst any) error {
	rawField, ok := section[name]
	if !ok {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeatherAPI,
			"weather response is missing "+name, nil, map[string]any{"field": name})
	}
	if err := json.Unmarshal(rawField, dst); err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeatherAPI,
			"weather response field "+name+" is malformed", err, map[string]any{"field": name})
	}
	return nil
}

// roundSeries rounds each value and pads or truncates to n entries.
func roundSeries(values []*float64, n int) types.Series {
	s := make(types.Series, n)
	for i := 0; i < n && i < len(values); i++ {
		if values[i] != nil {
			s[i] = types.Float(math.Round(*values[i]))
		}
	}
	return s
}

// dailyMeans averages hourly samples per calendar day. Hourly timestamps are
// local ISO times ("2024-01-05T13:00"); the date part selects the day. A day
// with no samples is nil.
func dailyMeans(days, hours []string, values []*float64) types.Series {
	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d] = i
	}
	sums := make([]float64, len(days))
	counts := make([]int, len(days))
	for i, h := range hours {
		if i >= len(values) || values[i] == nil {
			continue
		}
		day, _, _ := strings.Cut(h, "T")
		if j, ok := index[day]; ok {
			sums[j] += *values[i]
			counts[j]++
		}
	}
	s := make(types.Series, len(days))
	for j := range days {
		if counts[j] > 0 {
			s[j] = types.Float(math.Round(sums[j] / float64(counts[j])))
		}
	}
	return s
}
