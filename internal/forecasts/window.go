// Package forecasts assembles farm weather reports from the national-model
// point files and the external weather API.
package forecasts

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"agriweather/internal/geopoints"
)

// DaytimeWindow is the local time range during which the current day's point
// file is usable. Start is inclusive and End exclusive, both measured from
// local midnight.
type DaytimeWindow struct {
	Location *time.Location
	Start    time.Duration
	End      time.Duration
}

// ParseDaytimeWindow builds a window from an IANA zone name and two "15:04"
// clock times.
func ParseDaytimeWindow(zone, start, end string) (DaytimeWindow, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return DaytimeWindow{}, fmt.Errorf("loading time zone %q: %w", zone, err)
	}
	s, err := parseClock(start)
	if err != nil {
		return DaytimeWindow{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return DaytimeWindow{}, err
	}
	if s >= e {
		return DaytimeWindow{}, fmt.Errorf("window start %s must be before end %s", start, end)
	}
	return DaytimeWindow{Location: loc, Start: s, End: e}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Window says which point file to read and how to line it up with today.
// The file for date D holds one bucket per day starting at D, so reading the
// file dated FileDateOffset days from today and skipping IndexShift buckets
// makes bucket 0 refer to today.
type Window struct {
	FileDateOffset int `json:"file_date_offset"`
	IndexShift     int `json:"index_shift"`
}

// SelectWindow decides which file to use at instant now. Inside the daytime
// window today's file is used as is; outside it (early morning or after the
// evening cutoff) yesterday's file is used with a one-bucket shift.
func SelectWindow(now time.Time, w DaytimeWindow) Window {
	local := now.In(w.location())
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if sinceMidnight >= w.Start && sinceMidnight < w.End {
		return Window{}
	}
	return Window{FileDateOffset: -1, IndexShift: 1}
}

// LocalDay returns local midnight of the day containing now.
func (w DaytimeWindow) LocalDay(now time.Time) time.Time {
	local := now.In(w.location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// FileDate returns the point file date (YYYYMMDD) selected by sel at now.
func (w DaytimeWindow) FileDate(now time.Time, sel Window) string {
	return geopoints.FileDate(w.LocalDay(now).AddDate(0, 0, sel.FileDateOffset))
}

func (w DaytimeWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}
