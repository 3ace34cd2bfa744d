// Package waveform builds the per-(station, day) continuous stream that
// templates are cut from.
package waveform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/mseed"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/dsp"
)

// FilterSpec configures the band-pass applied after merging. A zero Low
// disables filtering.
type FilterSpec struct {
	Low     float64
	High    float64
	Corners int
}

// Loader reads {day}.{station}.* miniSEED files from a directory.
// It implements pipeline.StreamLoader.
type Loader struct {
	dir    string
	filter FilterSpec
	logger *slog.Logger
}

// NewLoader creates a loader over the continuous-data directory.
func NewLoader(dir string, filter FilterSpec, logger *slog.Logger) *Loader {
	return &Loader{
		dir:    dir,
		filter: filter,
		logger: logger.With("component", "waveform.loader"),
	}
}

// Pattern returns the glob matched for a station and day.
func (l *Loader) Pattern(day domain.Day, station string) string {
	return filepath.Join(l.dir, day.Code+"."+station+".*")
}

// Load merges every matching file into one stream, removes the mean of
// each trace and applies the zero-phase band-pass. Files that fail to
// decode are logged and left out. A day with no usable data returns
// domain.ErrEmptyStream.
func (l *Loader) Load(ctx context.Context, day domain.Day, station string) (domain.Stream, error) {
	paths, err := filepath.Glob(l.Pattern(day, station))
	if err != nil {
		return nil, fmt.Errorf("glob continuous data: %w", err)
	}

	var fragments []domain.Trace
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		traces, err := mseed.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable continuous file", "path", path, "error", err)
			continue
		}
		fragments = append(fragments, traces...)
	}

	stream, err := Merge(fragments)
	if err != nil {
		return nil, err
	}
	if !stream.HasSamples() {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyStream, l.Pattern(day, station))
	}

	for i := range stream {
		conditioned, err := l.condition(stream[i])
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", stream[i].ID(), err)
		}
		stream[i] = conditioned
	}

	l.logger.Debug("day stream loaded",
		"day", day.Code,
		"station", station,
		"files", len(paths),
		"traces", len(stream),
	)
	return stream, nil
}

func (l *Loader) condition(tr domain.Trace) (domain.Trace, error) {
	tr.Samples = dsp.Demean(tr.Samples)
	if l.filter.Low <= 0 {
		return tr, nil
	}
	f, err := dsp.Bandpass(l.filter.Low, l.filter.High, tr.SampleRate, l.filter.Corners)
	if err != nil {
		return domain.Trace{}, err
	}
	tr.Samples = f.ApplyZeroPhase(tr.Samples)
	return tr, nil
}
