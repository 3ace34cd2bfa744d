package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is one catalogued earthquake. Index is its zero-based position in
// the catalog and is used in template file names.
type Event struct {
	Index     int
	Origin    time.Time
	Magnitude float64
	Latitude  float64
	Longitude float64
	DepthKm   float64
}

// Station describes a receiver and the channels of interest on it.
type Station struct {
	Code      string
	Network   string
	Latitude  float64
	Longitude float64
	Elevation float64 // meters
	Channels  []string
}

// Coordinates is the location returned by an inventory lookup.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	Elevation float64
}

// Arrival is one predicted phase arrival, in seconds after origin.
type Arrival struct {
	Phase       string
	Time        float64
	RayParam    float64 // s/deg
	DistanceDeg float64
}

// OriginTime builds a UTC origin time from calendar fields and the raw
// seconds token of a catalog line. The integer seconds and the decimal
// fraction are parsed separately; the fraction keeps at most precision
// digits (truncated), precision being clamped to [0, 9].
func OriginTime(year, month, day, hour, minute int, seconds string, precision int) (time.Time, error) {
	seconds = strings.TrimSpace(seconds)
	whole, frac, _ := strings.Cut(seconds, ".")
	if whole == "" {
		whole = "0"
	}
	sec, err := strconv.Atoi(whole)
	if err != nil || sec < 0 || sec > 60 {
		return time.Time{}, fmt.Errorf("invalid seconds %q", seconds)
	}

	nanos, err := fractionNanos(frac, precision)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid seconds %q: %w", seconds, err)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nanos, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

func fractionNanos(frac string, precision int) (int, error) {
	precision = max(0, min(precision, 9))
	if len(frac) > precision {
		frac = frac[:precision]
	}
	if frac == "" {
		return 0, nil
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit fraction %q", frac)
		}
	}
	frac += strings.Repeat("0", 9-len(frac))
	return strconv.Atoi(frac)
}
