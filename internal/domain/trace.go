package domain

import (
	"math"
	"time"
)

// Trace is a contiguous, evenly sampled channel recording.
type Trace struct {
	Network    string
	Station    string
	Location   string
	Channel    string
	Start      time.Time
	SampleRate float64 // Hz
	Samples    []float64
}

// ID returns the SEED identifier NET.STA.LOC.CHA.
func (t Trace) ID() string {
	return t.Network + "." + t.Station + "." + t.Location + "." + t.Channel
}

// HasSamples is the single emptiness predicate used for every trim and
// load decision.
func (t Trace) HasSamples() bool {
	return len(t.Samples) > 0
}

// SampleTime returns the timestamp of sample i.
func (t Trace) SampleTime(i int) time.Time {
	if t.SampleRate <= 0 {
		return t.Start
	}
	return t.Start.Add(time.Duration(math.Round(float64(i) * float64(time.Second) / t.SampleRate)))
}

// End returns the timestamp of the last sample, or Start when empty.
func (t Trace) End() time.Time {
	if len(t.Samples) == 0 {
		return t.Start
	}
	return t.SampleTime(len(t.Samples) - 1)
}

// Trim returns a copy of t restricted to [start, end]. Bounds snap to the
// nearest sample; a window outside the trace yields a trace without
// samples. The receiver is never modified.
func (t Trace) Trim(start, end time.Time) Trace {
	out := t
	out.Samples = nil
	n := len(t.Samples)
	if n == 0 || t.SampleRate <= 0 || end.Before(start) {
		return out
	}

	first := t.samplesFromStart(start)
	last := n - 1 - t.samplesToEnd(end)
	first = max(first, 0)
	last = min(last, n-1)
	if first > last || first >= n || last < 0 {
		out.Start = start
		return out
	}

	out.Start = t.SampleTime(first)
	out.Samples = append([]float64(nil), t.Samples[first:last+1]...)
	return out
}

// samplesFromStart is the number of samples between Start and at, rounded.
func (t Trace) samplesFromStart(at time.Time) int {
	return int(math.Round(at.Sub(t.Start).Seconds() * t.SampleRate))
}

// samplesToEnd is the number of samples between at and End, rounded.
func (t Trace) samplesToEnd(at time.Time) int {
	return int(math.Round(t.End().Sub(at).Seconds() * t.SampleRate))
}

// Stream is the set of traces loaded for one (station, day).
type Stream []Trace

// Select returns the first trace matching station and channel.
func (s Stream) Select(station, channel string) (Trace, bool) {
	for _, tr := range s {
		if tr.Station == station && tr.Channel == channel {
			return tr, true
		}
	}
	return Trace{}, false
}

// HasSamples reports whether any trace in the stream carries data.
func (s Stream) HasSamples() bool {
	for _, tr := range s {
		if tr.HasSamples() {
			return true
		}
	}
	return false
}
