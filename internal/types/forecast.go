package types

import "time"

// Variable names a forecast quantity. The national model file uses the same
// names as column prefixes ("tmin_Time=...").
type Variable string

const (
	VarTempMin    Variable = "tmin"
	VarTempMax    Variable = "tmax"
	VarHumidity   Variable = "rh"
	VarWindSpeed  Variable = "spd"
	VarRain       Variable = "rain"
	VarPrecipProb Variable = "precip_prob"
	VarWindDir    Variable = "wind_dir"

	// Frost codes, offset keyed (day1h1 .. day3h4).
	VarFrostTemp Variable = "frost_temp"
	VarFrostWind Variable = "frost_wind"
)

// TableVariables are the variables shown side by side in a farm report, in
// display order.
var TableVariables = []Variable{VarTempMin, VarTempMax, VarHumidity, VarWindSpeed, VarRain}

// Series is an ordered per-day sequence of values for one variable. A nil
// entry is a day the source reported no value for.
type Series []*float64

// Float returns a pointer to v, for building Series literals.
func Float(v float64) *float64 {
	return &v
}

// NonNull counts the entries that carry a value.
func (s Series) NonNull() int {
	n := 0
	for _, v := range s {
		if v != nil {
			n++
		}
	}
	return n
}

// APIForecast is the external weather API result for one coordinate. Series
// are aligned with Days; Days[0] is the day the forecast was fetched.
type APIForecast struct {
	Coordinate Coordinate          `json:"coordinate"`
	Days       []string            `json:"days"`
	Series     map[Variable]Series `json:"series"`
	FetchedAt  time.Time           `json:"fetched_at"`
}
