package domain

import (
	"math"
	"slices"
	"time"
)

// SPhases is the phase family queried for template anchoring: the upgoing
// s leg and the downgoing/turning S leg.
var SPhases = []string{"s", "S"}

// Window is a closed time interval [Start, End] to cut from a trace.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns End − Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Seconds converts fractional seconds to a Duration rounded to the nearest
// nanosecond, so 8.2 becomes exactly 8.2s rather than 8.199999999s.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// ComputeWindow anchors a window on origin + arrival. before and after are
// applied as whole durations, so the window length is exactly
// before + after whatever the arrival.
func ComputeWindow(origin time.Time, arrivalSeconds float64, before, after time.Duration) Window {
	anchor := origin.Add(Seconds(arrivalSeconds))
	return Window{
		Start: anchor.Add(-before),
		End:   anchor.Add(after),
	}
}

// EarliestArrival returns the earliest arrival whose phase is in family.
func EarliestArrival(arrivals []Arrival, family []string) (Arrival, bool) {
	var (
		best  Arrival
		found bool
	)
	for _, a := range arrivals {
		if !slices.Contains(family, a.Phase) {
			continue
		}
		if !found || a.Time < best.Time {
			best = a
			found = true
		}
	}
	return best, found
}
