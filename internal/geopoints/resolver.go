package geopoints

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"agriweather/internal/types"
)

// DefaultThreshold is the largest planar distance, in degrees (about 11 km),
// at which a grid point still counts as covering a farm.
const DefaultThreshold = 0.1

// Outcome tells the three resolver results apart.
type Outcome int

const (
	// Unavailable means there was no data to search: the store is missing or
	// empty.
	Unavailable Outcome = iota
	// NoMatch means the nearest point is farther than the threshold.
	NoMatch
	// Matched means a record was found within the threshold.
	Matched
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	default:
		return "unavailable"
	}
}

// Match is the result of ResolveNearest. Record is set only when Outcome is
// Matched. Distance and Index describe the nearest record whenever the store
// was non-empty.
type Match struct {
	Outcome  Outcome
	Record   *Record
	Distance float64
	Index    int
}

// ResolveNearest returns the record closest to c by planar (Euclidean)
// distance in degrees. Distance is not geodesic; at the threshold used here
// the difference does not matter.
//
// When several records are at the same minimal distance the first one in
// store order wins. Callers must not rely on any other tie-break.
func ResolveNearest(c types.Coordinate, store *Store, threshold float64) Match {
	if store.Len() == 0 {
		return Match{Outcome: Unavailable, Index: -1, Distance: math.Inf(1)}
	}

	query := orb.Point{c.Lon, c.Lat}
	best := -1
	bestDist := math.Inf(1)
	for i, r := range store.records {
		d := planar.Distance(query, r.point)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	m := Match{Outcome: NoMatch, Distance: bestDist, Index: best}
	if best >= 0 && bestDist <= threshold {
		m.Outcome = Matched
		m.Record = store.records[best]
	}
	return m
}

// Err converts a non-matching result into the report failure it stands for.
// It returns nil for Matched.
func (m Match) Err(c types.Coordinate, date string) error {
	switch m.Outcome {
	case Matched:
		return nil
	case NoMatch:
		return types.NewAppErrorWithDetails(types.ErrCodeNoNearbyPoint,
			fmt.Sprintf("no grid point within threshold of %s", c), nil,
			map[string]any{"date": date, "nearest_distance": m.Distance})
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeDataUnavailable,
			fmt.Sprintf("point file for %s has no records", date), nil,
			map[string]any{"date": date})
	}
}
