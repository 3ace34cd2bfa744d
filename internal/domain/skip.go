package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Fatal error classes. Anything wrapping these aborts the run at startup.
var (
	ErrConfig  = errors.New("config error")
	ErrCatalog = errors.New("catalog error")
	ErrModel   = errors.New("travel-time model error")
)

// Per-unit failure causes. These never abort the run.
var (
	ErrStationNotFound = errors.New("station not found in any inventory source")
	ErrNoArrival       = errors.New("no arrival for phase family")
	ErrChannelMissing  = errors.New("channel not present in day stream")
	ErrEmptyWindow     = errors.New("trimmed window has no samples")
	ErrEmptyStream     = errors.New("no continuous data for station and day")
)

// Stage names the step of the per-unit state machine at which a template
// was abandoned.
type Stage string

const (
	StageDayStream   Stage = "day_stream"
	StageCoordinates Stage = "coordinates"
	StageDistance    Stage = "distance"
	StageArrival     Stage = "arrival"
	StageWindow      Stage = "window"
	StageChannel     Stage = "channel"
	StageTrim        Stage = "trim"
	StageStore       Stage = "store"
)

// SkipError is the uniform outcome of a failed unit.
type SkipError struct {
	Stage Stage
	Err   error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped at %s: %v", e.Stage, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Skip wraps err as a SkipError at stage.
func Skip(stage Stage, err error) *SkipError {
	return &SkipError{Stage: stage, Err: err}
}

// Summary is the tally of a run. It is safe for concurrent use.
type Summary struct {
	mu sync.Mutex

	StartedAt  time.Time
	FinishedAt time.Time
	Units      int // (station, day) pairs visited
	Events     int // (station, day, event) combinations associated
	Produced   int
	Skipped    map[Stage]int
}

// NewSummary starts a summary at the package clock's current time.
func NewSummary() *Summary {
	return &Summary{
		StartedAt: clock.Now(),
		Skipped:   make(map[Stage]int),
	}
}

// AddUnit counts one (station, day) unit and its associated events.
func (s *Summary) AddUnit(events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Units++
	s.Events += events
}

// AddProduced counts one written template.
func (s *Summary) AddProduced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Produced++
}

// AddSkip counts one skip at stage.
func (s *Summary) AddSkip(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped[stage]++
}

// Finish stamps the finish time.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedAt = clock.Now()
}

// TotalSkipped sums skips over all stages.
func (s *Summary) TotalSkipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// Snapshot is a point-in-time copy of a Summary.
type Snapshot struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Units      int           `json:"units"`
	Events     int           `json:"events"`
	Produced   int           `json:"produced"`
	Skipped    map[Stage]int `json:"skipped"`
}

// Snapshot copies the current tally.
func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Units:      s.Units,
		Events:     s.Events,
		Produced:   s.Produced,
		Skipped:    maps.Clone(s.Skipped),
	}
}

// LogAttrs flattens the summary into slog key/value pairs.
func (s *Summary) LogAttrs() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := []any{
		"units", s.Units,
		"events", s.Events,
		"produced", s.Produced,
		"elapsed", s.FinishedAt.Sub(s.StartedAt),
	}
	for _, stage := range slices.Sorted(maps.Keys(s.Skipped)) {
		attrs = append(attrs, "skipped_"+string(stage), s.Skipped[stage])
	}
	return attrs
}
