// Package advisory turns national-model frost and wind codes into risk tiers
// and the sentences sent to farmers.
package advisory

import (
	"fmt"
	"math"

	"agriweather/internal/types"
)

// Tier is the frost risk level derived from the frost-temperature code.
type Tier string

const (
	TierNone   Tier = "none"
	TierLow    Tier = "low"
	TierHigh   Tier = "high"
	TierSevere Tier = "severe"
)

// WindTier describes whether wind conditions allow frost mitigation.
type WindTier string

const (
	WindFavorable   WindTier = "favorable"
	WindCaution     WindTier = "caution"
	WindUnfavorable WindTier = "unfavorable"
)

// Code ranges produced by the national model.
const (
	MaxFrostCode = 3
	MaxWindCode  = 2

	// ActionableFrostCode is the lowest frost code that produces a message.
	ActionableFrostCode = 2
)

// Risk is the classification of one time bucket. Message is empty when the
// frost code is below ActionableFrostCode.
type Risk struct {
	Tier    Tier     `json:"tier"`
	Wind    WindTier `json:"wind"`
	Message string   `json:"message,omitempty"`
}

// Actionable reports whether the risk carries a message.
func (r Risk) Actionable() bool { return r.Message != "" }

var frostTiers = [MaxFrostCode + 1]Tier{TierNone, TierLow, TierHigh, TierSevere}

var windTiers = [MaxWindCode + 1]WindTier{WindFavorable, WindCaution, WindUnfavorable}

var tierText = map[Tier]string{
	TierHigh:   "a high",
	TierSevere: "a severe",
}

var windText = map[WindTier]string{
	WindFavorable:   "Winds will be calm, so frost protection (wind machines, irrigation or heaters) is recommended.",
	WindCaution:     "Moderate winds are expected; frost protection may be only partly effective, so monitor the orchard closely.",
	WindUnfavorable: "Strong winds are expected; frost protection is not recommended in this period.",
}

// riskTable holds every (frost, wind) combination. It is filled once so that
// ClassifyRisk is a lookup.
var riskTable = buildRiskTable()

func buildRiskTable() [MaxFrostCode + 1][MaxWindCode + 1]Risk {
	var table [MaxFrostCode + 1][MaxWindCode + 1]Risk
	for f, tier := range frostTiers {
		for w, wind := range windTiers {
			r := Risk{Tier: tier, Wind: wind}
			if f >= ActionableFrostCode {
				r.Message = fmt.Sprintf("There is %s risk of frost. %s", tierText[tier], windText[wind])
			}
			table[f][w] = r
		}
	}
	return table
}

// ClassifyRisk maps a frost-temperature code (0-3) and a wind code (0-2) to
// a Risk. Codes outside those ranges are rejected.
func ClassifyRisk(frostCode, windCode int) (Risk, error) {
	if frostCode < 0 || frostCode > MaxFrostCode {
		return Risk{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRiskCode,
			fmt.Sprintf("frost code %d out of range 0-%d", frostCode, MaxFrostCode), nil,
			map[string]any{"frost_code": frostCode})
	}
	if windCode < 0 || windCode > MaxWindCode {
		return Risk{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRiskCode,
			fmt.Sprintf("wind code %d out of range 0-%d", windCode, MaxWindCode), nil,
			map[string]any{"wind_code": windCode})
	}
	return riskTable[frostCode][windCode], nil
}

// CodeFromValue converts a file value to an ordinal code. nil, NaN and
// fractional values are rejected.
func CodeFromValue(v *float64) (int, bool) {
	if v == nil || math.IsNaN(*v) || *v != math.Trunc(*v) {
		return 0, false
	}
	return int(*v), true
}
