package geopoints

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"agriweather/internal/types"
)

// Store is the immutable set of records loaded from one point file.
type Store struct {
	date    string
	records []*Record
}

// NewStore wraps records in a Store for the given file date (YYYYMMDD).
func NewStore(date string, records []*Record) *Store {
	return &Store{date: date, records: append([]*Record(nil), records...)}
}

// Date returns the file date the store was loaded for.
func (s *Store) Date() string {
	if s == nil {
		return ""
	}
	return s.date
}

// Len returns the number of records. A nil store has none.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Record returns the i-th record in file order.
func (s *Store) Record(i int) *Record {
	return s.records[i]
}

// Decode parses a GeoJSON FeatureCollection into a Store.
//
// Point features use their coordinate. Other geometries use the center of
// their bounding box. Properties that are not "<var>_Time=<bucket>" keys are
// ignored, and non-numeric values are stored as nil.
func Decode(date string, data []byte) (*Store, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalCorruptData,
			fmt.Sprintf("point file for %s is not valid GeoJSON", date), err,
			map[string]any{"date": date})
	}

	records := make([]*Record, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			pt = f.Geometry.Bound().Center()
		}
		records = append(records, recordFromProperties(pt, f.Properties))
	}
	return &Store{date: date, records: records}, nil
}

func recordFromProperties(pt orb.Point, props geojson.Properties) *Record {
	r := &Record{
		Coordinate: types.Coordinate{Lat: pt.Lat(), Lon: pt.Lon()},
		point:      pt,
		values:     make(map[types.Variable][]BucketValue),
	}
	for key, raw := range props {
		v, bucket, ok := splitKey(key)
		if !ok {
			continue
		}
		var value *float64
		if f, isNum := raw.(float64); isNum {
			value = &f
		}
		r.values[v] = append(r.values[v], BucketValue{Bucket: bucket, Value: value})
	}
	for v := range r.values {
		sortBuckets(r.values[v])
	}
	return r
}
