package waveform

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// Merge joins trace fragments that share a SEED id into one contiguous
// trace per id. Gaps are filled with zeros; where fragments overlap the
// later fragment wins. Traces come back sorted by id.
func Merge(fragments []domain.Trace) (domain.Stream, error) {
	groups := make(map[string][]domain.Trace)
	for _, tr := range fragments {
		if !tr.HasSamples() {
			continue
		}
		groups[tr.ID()] = append(groups[tr.ID()], tr)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make(domain.Stream, 0, len(ids))
	for _, id := range ids {
		merged, err := mergeGroup(groups[id])
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", id, err)
		}
		out = append(out, merged)
	}
	return out, nil
}

func mergeGroup(parts []domain.Trace) (domain.Trace, error) {
	slices.SortStableFunc(parts, func(a, b domain.Trace) int {
		return a.Start.Compare(b.Start)
	})

	rate := parts[0].SampleRate
	for _, p := range parts[1:] {
		if math.Abs(p.SampleRate-rate) > 1e-9*rate {
			return domain.Trace{}, fmt.Errorf("sample rate mismatch: %v vs %v Hz", rate, p.SampleRate)
		}
	}

	base := parts[0]
	if len(parts) == 1 {
		base.Samples = append([]float64(nil), base.Samples...)
		return base, nil
	}

	last := 0
	offsets := make([]int, len(parts))
	for i, p := range parts {
		offsets[i] = sampleIndex(base.Start, p.Start, rate)
		last = max(last, offsets[i]+len(p.Samples))
	}

	samples := make([]float64, last)
	for i, p := range parts {
		copy(samples[offsets[i]:], p.Samples)
	}
	base.Samples = samples
	return base, nil
}

func sampleIndex(origin, at time.Time, rate float64) int {
	return int(math.Round(at.Sub(origin).Seconds() * rate))
}
