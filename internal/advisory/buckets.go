package advisory

import (
	"fmt"
	"time"

	"agriweather/internal/types"
)

// Frost buckets cover FrostDays days of PeriodsPerDay six-hour periods,
// keyed day1h1 .. day3h4 relative to the file date.
const (
	FrostDays     = 3
	PeriodsPerDay = 4
)

// periodHours labels the six-hour periods in local time.
var periodHours = [PeriodsPerDay]string{"00-06", "06-12", "12-18", "18-24"}

// BucketKey returns the key for a 1-based day and period.
func BucketKey(day, period int) string {
	return fmt.Sprintf("day%dh%d", day, period)
}

// PeriodHours returns the local hour range of a 1-based period.
func PeriodHours(period int) string {
	if period < 1 || period > PeriodsPerDay {
		return ""
	}
	return periodHours[period-1]
}

// BucketRisk is the classified risk of one frost bucket.
type BucketRisk struct {
	Bucket    string `json:"bucket"`
	Date      string `json:"date"`
	Weekday   string `json:"weekday"`
	Hours     string `json:"hours"`
	FrostCode int    `json:"frost_code"`
	WindCode  int    `json:"wind_code"`
	Risk
}

// Text renders the bucket's message with its day and period, or "" when the
// risk is not actionable.
func (b BucketRisk) Text() string {
	if !b.Actionable() {
		return ""
	}
	return fmt.Sprintf("%s %s, %s: %s", b.Weekday, b.Date, b.Hours, b.Message)
}

// CodeLookup returns the frost and wind values stored for a bucket.
type CodeLookup func(v types.Variable, bucket string) (*float64, bool)

// ClassifyBuckets classifies every frost bucket. day1 is the local query
// day and shift is the number of days the file date lags it: file day d+shift
// is reported as query day d, so file days before the query day are dropped
// and the last query days may have no data. Returned buckets are keyed and
// dated by query day. Buckets missing from the lookup or holding unusable
// codes are skipped. The error is set only when a code is out of range, which
// means the file is corrupt.
func ClassifyBuckets(day1 time.Time, shift int, lookup CodeLookup) ([]BucketRisk, error) {
	out := make([]BucketRisk, 0, FrostDays*PeriodsPerDay)
	for d := 1; d+shift <= FrostDays; d++ {
		date := day1.AddDate(0, 0, d-1)
		for p := 1; p <= PeriodsPerDay; p++ {
			key := BucketKey(d, p)
			fileKey := BucketKey(d+shift, p)
			fv, ok1 := lookup(types.VarFrostTemp, fileKey)
			wv, ok2 := lookup(types.VarFrostWind, fileKey)
			if !ok1 || !ok2 {
				continue
			}
			frost, ok1 := CodeFromValue(fv)
			wind, ok2 := CodeFromValue(wv)
			if !ok1 || !ok2 {
				continue
			}
			risk, err := ClassifyRisk(frost, wind)
			if err != nil {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalCorruptData,
					fmt.Sprintf("bucket %s has an invalid risk code", key), err,
					map[string]any{"bucket": key})
			}
			out = append(out, BucketRisk{
				Bucket:    key,
				Date:      date.Format("01/02"),
				Weekday:   date.Weekday().String(),
				Hours:     PeriodHours(p),
				FrostCode: frost,
				WindCode:  wind,
				Risk:      risk,
			})
		}
	}
	return out, nil
}

// Messages returns the texts of the actionable buckets in bucket order.
func Messages(buckets []BucketRisk) []string {
	var out []string
	for _, b := range buckets {
		if t := b.Text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HighestTier returns the most severe tier among buckets.
func HighestTier(buckets []BucketRisk) Tier {
	best := 0
	for _, b := range buckets {
		if b.FrostCode > best {
			best = b.FrostCode
		}
	}
	return frostTiers[best]
}
