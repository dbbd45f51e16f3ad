// Package geopoints loads the daily national-model point files and finds the
// grid point nearest to a farm.
//
// A point file is a GeoJSON FeatureCollection. Each feature is one grid cell;
// its properties hold time-bucketed values keyed "<variable>_Time=<bucket>",
// for example "tmin_Time=2024-01-05" or "frost_temp_Time=day1h1".
package geopoints

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"agriweather/internal/types"
)

// bucketSep separates the variable name from the bucket in property keys.
const bucketSep = "_Time="

// BucketValue is one time bucket of a variable. Value is nil when the file
// carries null for the bucket.
type BucketValue struct {
	Bucket string   `json:"bucket"`
	Value  *float64 `json:"value"`
}

// Record is one grid cell of a point file. Records are immutable after Decode.
type Record struct {
	Coordinate types.Coordinate

	point  orb.Point
	values map[types.Variable][]BucketValue
}

// NewRecord builds a record from already-split values. Buckets are sorted
// into time order. Intended for tests and for sources that do not use
// GeoJSON.
func NewRecord(c types.Coordinate, values map[types.Variable][]BucketValue) *Record {
	r := &Record{
		Coordinate: c,
		point:      orb.Point{c.Lon, c.Lat},
		values:     make(map[types.Variable][]BucketValue, len(values)),
	}
	for v, buckets := range values {
		cp := append([]BucketValue(nil), buckets...)
		sortBuckets(cp)
		r.values[v] = cp
	}
	return r
}

// Buckets returns a copy of the buckets of v in time order.
func (r *Record) Buckets(v types.Variable) []BucketValue {
	return append([]BucketValue(nil), r.values[v]...)
}

// Series returns the values of v in bucket order.
func (r *Record) Series(v types.Variable) types.Series {
	buckets := r.values[v]
	out := make(types.Series, len(buckets))
	for i, b := range buckets {
		out[i] = b.Value
	}
	return out
}

// Value returns the value of v in the given bucket. ok is false if the record
// has no such bucket.
func (r *Record) Value(v types.Variable, bucket string) (value *float64, ok bool) {
	for _, b := range r.values[v] {
		if b.Bucket == bucket {
			return b.Value, true
		}
	}
	return nil, false
}

// Variables lists the variables present in the record, sorted by name.
func (r *Record) Variables() []types.Variable {
	out := make([]types.Variable, 0, len(r.values))
	for v := range r.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// splitKey splits "tmin_Time=2024-01-05" into its variable and bucket.
func splitKey(key string) (types.Variable, string, bool) {
	name, bucket, ok := strings.Cut(key, bucketSep)
	if !ok || name == "" || bucket == "" {
		return "", "", false
	}
	return types.Variable(name), bucket, true
}

// offsetBucket is the parsed form of "day<d>h<p>".
type offsetBucket struct {
	day, period int
}

func parseOffsetBucket(s string) (offsetBucket, bool) {
	rest, ok := strings.CutPrefix(s, "day")
	if !ok {
		return offsetBucket{}, false
	}
	d, p, ok := strings.Cut(rest, "h")
	if !ok {
		return offsetBucket{}, false
	}
	day, err1 := strconv.Atoi(d)
	period, err2 := strconv.Atoi(p)
	if err1 != nil || err2 != nil {
		return offsetBucket{}, false
	}
	return offsetBucket{day: day, period: period}, true
}

// bucketLess orders offset buckets numerically (day2h1 before day10h1) and
// everything else lexically. Date buckets are ISO formatted so lexical order
// is time order.
func bucketLess(a, b string) bool {
	oa, okA := parseOffsetBucket(a)
	ob, okB := parseOffsetBucket(b)
	if okA && okB {
		if oa.day != ob.day {
			return oa.day < ob.day
		}
		return oa.period < ob.period
	}
	return a < b
}

func sortBuckets(buckets []BucketValue) {
	sort.SliceStable(buckets, func(i, j int) bool { return bucketLess(buckets[i].Bucket, buckets[j].Bucket) })
}
