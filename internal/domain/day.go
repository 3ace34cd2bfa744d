package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Day is one calendar day of continuous data, keyed by its YYMMDD code.
type Day struct {
	Code string
	Date time.Time // midnight UTC
}

// ParseDay parses a six-digit YYMMDD day code. Years are always 20YY.
func ParseDay(code string) (Day, error) {
	if len(code) != 6 {
		return Day{}, fmt.Errorf("day code %q: want 6 digits", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 {
		return Day{}, fmt.Errorf("day code %q: not numeric", code)
	}

	year := 2000 + n/10000
	month := (n / 100) % 100
	day := n % 100
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if int(date.Month()) != month || date.Day() != day {
		return Day{}, fmt.Errorf("day code %q: invalid calendar date", code)
	}
	return Day{Code: code, Date: date}, nil
}

// Contains reports whether t falls on this day (UTC).
func (d Day) Contains(t time.Time) bool {
	return FloorDay(t).Equal(d.Date)
}

// FloorDay truncates t to midnight UTC of its calendar date.
func FloorDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SelectRange returns events[start:stop] with stop clamped to the catalog
// length. A start at or beyond the end of the catalog, or not before stop,
// selects nothing.
func SelectRange(events []Event, start, stop int) []Event {
	start = max(start, 0)
	stop = min(stop, len(events))
	if start >= stop {
		return nil
	}
	return events[start:stop]
}

// EventsForDay returns the events whose origin date equals day, keeping
// catalog order.
func EventsForDay(events []Event, day Day) []Event {
	var out []Event
	for _, ev := range events {
		if day.Contains(ev.Origin) {
			out = append(out, ev)
		}
	}
	return out
}
