package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
	"github.com/couchcryptid/seismic-template-trim/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockResolver struct {
	coords map[string]domain.Coordinates
}

func (m *mockResolver) Resolve(_ context.Context, station string) (domain.Coordinates, error) {
	c, ok := m.coords[station]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("%s: %w", station, domain.ErrStationNotFound)
	}
	return c, nil
}

type mockLoader struct {
	mu    sync.Mutex
	calls []string
	fn    func(day domain.Day, station string) (domain.Stream, error)
}

func (m *mockLoader) Load(_ context.Context, day domain.Day, station string) (domain.Stream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, day.Code+"."+station)
	m.mu.Unlock()
	return m.fn(day, station)
}

type timerCall struct {
	depthKm, distanceDeg float64
}

type mockTimer struct {
	mu       sync.Mutex
	calls    []timerCall
	arrivals []domain.Arrival
	err      error
}

func (m *mockTimer) Arrivals(_ context.Context, depthKm, distanceDeg float64, _ []string) ([]domain.Arrival, error) {
	m.mu.Lock()
	m.calls = append(m.calls, timerCall{depthKm, distanceDeg})
	m.mu.Unlock()
	return m.arrivals, m.err
}

type memWriter struct {
	mu      sync.Mutex
	written map[string]domain.Template
	fail    map[string]bool
}

func newMemWriter() *memWriter {
	return &memWriter{written: make(map[string]domain.Template), fail: make(map[string]bool)}
}

func (m *memWriter) Write(_ context.Context, tmpl domain.Template) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[tmpl.Name()] {
		return "", errors.New("disk full")
	}
	m.written[tmpl.Name()] = tmpl
	return "mem://" + tmpl.Name(), nil
}

func (m *memWriter) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.written {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

type mockRecorder struct {
	mu      sync.Mutex
	err     error
	records []domain.TemplateRecord
}

func (m *mockRecorder) Name() string { return "mock" }

func (m *mockRecorder) Record(_ context.Context, rec domain.TemplateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

// --- fixtures ---

var (
	aquila   = domain.Coordinates{Latitude: 42.354, Longitude: 13.405, Elevation: 710}
	dataFrom = time.Date(2010, time.March, 5, 11, 59, 0, 0, time.UTC)
)

func mustDay(t *testing.T, code string) domain.Day {
	t.Helper()
	d, err := domain.ParseDay(code)
	require.NoError(t, err)
	return d
}

// twoMinutes is 11:59 to 12:01 of the given day at 100 Hz.
func twoMinutes(day domain.Day, station string, channels ...string) domain.Stream {
	start := day.Date.Add(dataFrom.Sub(domain.FloorDay(dataFrom)))
	var s domain.Stream
	for _, ch := range channels {
		samples := make([]float64, 12000)
		for i := range samples {
			samples[i] = float64(i)
		}
		s = append(s, domain.Trace{Network: "IV", Station: station, Channel: ch, Start: start, SampleRate: 100, Samples: samples})
	}
	return s
}

func workedEvent() domain.Event {
	return domain.Event{
		Index:     0,
		Origin:    time.Date(2010, time.March, 5, 12, 0, 3, 500000000, time.UTC),
		Magnitude: 2.1,
		Latitude:  aquila.Latitude,
		Longitude: aquila.Longitude,
		DepthKm:   0,
	}
}

type harness struct {
	resolver *mockResolver
	loader   *mockLoader
	timer    *mockTimer
	writer   *memWriter
	recorder *mockRecorder
	metrics  *observability.Metrics
	opts     pipeline.Options
}

func newHarness(t *testing.T) *harness {
	return &harness{
		resolver: &mockResolver{coords: map[string]domain.Coordinates{"AQU": aquila}},
		loader: &mockLoader{fn: func(day domain.Day, station string) (domain.Stream, error) {
			return twoMinutes(day, station, "HHZ"), nil
		}},
		timer: &mockTimer{arrivals: []domain.Arrival{
			{Phase: "P", Time: 4.8},
			{Phase: "S", Time: 9.4},
			{Phase: "s", Time: 8.2},
		}},
		writer:   newMemWriter(),
		recorder: &mockRecorder{},
		metrics:  observability.NewMetricsForTesting(),
		opts: pipeline.Options{
			Stations: []string{"AQU"},
			Channels: []string{"HHZ"},
			Days:     []domain.Day{mustDay(t, "100305")},
			Before:   10 * time.Second,
			After:    20 * time.Second,
		},
	}
}

func (h *harness) extractor(events []domain.Event) *pipeline.Extractor {
	stages := pipeline.Stages{
		Resolver:  h.resolver,
		Loader:    h.loader,
		Timer:     h.timer,
		Writer:    h.writer,
		Recorders: []pipeline.Recorder{h.recorder},
	}
	return pipeline.New(events, h.opts, stages, slog.Default(), h.metrics)
}

func (h *harness) run(t *testing.T, events ...domain.Event) *domain.Summary {
	t.Helper()
	summary, err := h.extractor(events).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

// --- tests ---

func TestExtractor_Run_WorkedExample(t *testing.T) {
	h := newHarness(t)

	summary := h.run(t, workedEvent())

	assert.Equal(t, 1, summary.Produced)
	assert.Equal(t, 1, summary.Units)
	assert.Equal(t, 1, summary.Events)
	assert.Zero(t, summary.TotalSkipped())

	tmpl, ok := h.writer.written["0.IV.AQU..HHZ.mseed"]
	require.True(t, ok, "written: %v", h.writer.names())

	wantStart := time.Date(2010, time.March, 5, 12, 0, 1, 700000000, time.UTC)
	wantEnd := time.Date(2010, time.March, 5, 12, 0, 31, 700000000, time.UTC)
	assert.Equal(t, domain.Window{Start: wantStart, End: wantEnd}, tmpl.Window)
	assert.Equal(t, wantStart, tmpl.Trace.Start)
	assert.Equal(t, wantEnd, tmpl.Trace.End())
	assert.Len(t, tmpl.Trace.Samples, 3001)
	assert.InDelta(t, 6170.0, tmpl.Trace.Samples[0], 0)

	require.Len(t, h.recorder.records, 1)
	want := domain.TemplateRecord{
		Name:        "0.IV.AQU..HHZ.mseed",
		Location:    "mem://0.IV.AQU..HHZ.mseed",
		EventIndex:  0,
		Network:     "IV",
		Station:     "AQU",
		Channel:     "HHZ",
		Origin:      workedEvent().Origin,
		Magnitude:   2.1,
		DistanceKm:  0,
		Phase:       "s",
		ArrivalSec:  8.2,
		Start:       wantStart,
		End:         wantEnd,
		SampleRate:  100,
		SampleCount: 3001,
	}
	if diff := cmp.Diff(want, h.recorder.records[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.TemplatesWritten), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.SinkWrites.WithLabelValues("mock", "success")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(h.metrics.RunActive), 0)
}

func TestExtractor_Run_ShallowDepthClamped(t *testing.T) {
	h := newHarness(t)

	h.run(t, workedEvent())

	require.Len(t, h.timer.calls, 1)
	assert.InDelta(t, 1.5, h.timer.calls[0].depthKm, 0)
	assert.InDelta(t, 0.0, h.timer.calls[0].distanceDeg, 1e-12)
}

func TestExtractor_Run_DistanceInDegrees(t *testing.T) {
	h := newHarness(t)
	h.opts.EarthRadiusKm = 6371
	ev := workedEvent()
	ev.Latitude, ev.Longitude, ev.DepthKm = 42.30, 13.40, 9.7

	h.run(t, ev)

	wantKm := domain.GeodesicDistanceKm(42.30, 13.40, aquila.Latitude, aquila.Longitude)
	require.Len(t, h.timer.calls, 1)
	assert.InDelta(t, 9.7, h.timer.calls[0].depthKm, 0)
	assert.InDelta(t, domain.KilometersToDegrees(wantKm, 6371), h.timer.calls[0].distanceDeg, 1e-12)
	require.Len(t, h.recorder.records, 1)
	assert.InDelta(t, wantKm, h.recorder.records[0].DistanceKm, 1e-9)
}

func TestExtractor_Run_MissingStationContinues(t *testing.T) {
	h := newHarness(t)
	h.opts.Stations = []string{"NOPE", "AQU"}

	summary := h.run(t, workedEvent())

	assert.Equal(t, 1, summary.Produced)
	assert.Equal(t, 1, summary.Skipped[domain.StageCoordinates])
	assert.Equal(t, []string{"0.IV.AQU..HHZ.mseed"}, h.writer.names())
	assert.Equal(t, []string{"100305.AQU"}, h.loader.calls, "no stream loaded for an unresolved station")
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.UnitsSkipped.WithLabelValues("coordinates")), 0)
}

func TestExtractor_Run_OnlyMissingStationProducesNothing(t *testing.T) {
	h := newHarness(t)
	h.opts.Stations = []string{"NOPE"}

	summary := h.run(t, workedEvent())

	assert.Zero(t, summary.Produced)
	assert.Empty(t, h.writer.names())
	assert.Equal(t, 1, summary.Units)
}

func TestExtractor_Run_NoEventsOnDay(t *testing.T) {
	h := newHarness(t)
	h.opts.Days = []domain.Day{mustDay(t, "100306")}

	summary := h.run(t, workedEvent())

	assert.Equal(t, 1, summary.Units)
	assert.Zero(t, summary.Events)
	assert.Empty(t, h.loader.calls)
	assert.Empty(t, h.timer.calls)
}

func TestExtractor_Run_SkipStages(t *testing.T) {
	outside := workedEvent()
	outside.Index = 1
	outside.Origin = time.Date(2010, time.March, 5, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		setup  func(h *harness)
		events []domain.Event
		stage  domain.Stage
	}{
		{
			name: "day stream",
			setup: func(h *harness) {
				h.loader.fn = func(domain.Day, string) (domain.Stream, error) { return nil, domain.ErrEmptyStream }
			},
			events: []domain.Event{workedEvent()},
			stage:  domain.StageDayStream,
		},
		{
			name:   "arrival error",
			setup:  func(h *harness) { h.timer.err = errors.New("depth below model") },
			events: []domain.Event{workedEvent()},
			stage:  domain.StageArrival,
		},
		{
			name:   "no S arrival",
			setup:  func(h *harness) { h.timer.arrivals = []domain.Arrival{{Phase: "P", Time: 3}} },
			events: []domain.Event{workedEvent()},
			stage:  domain.StageArrival,
		},
		{
			name:   "negative arrival",
			setup:  func(h *harness) { h.timer.arrivals = []domain.Arrival{{Phase: "s", Time: -1}} },
			events: []domain.Event{workedEvent()},
			stage:  domain.StageWindow,
		},
		{
			name:   "channel missing",
			setup:  func(h *harness) { h.opts.Channels = []string{"HHE"} },
			events: []domain.Event{workedEvent()},
			stage:  domain.StageChannel,
		},
		{
			name:   "window outside data",
			setup:  func(*harness) {},
			events: []domain.Event{outside},
			stage:  domain.StageTrim,
		},
		{
			name:   "store failure",
			setup:  func(h *harness) { h.writer.fail["0.IV.AQU..HHZ.mseed"] = true },
			events: []domain.Event{workedEvent()},
			stage:  domain.StageStore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			summary := h.run(t, tc.events...)

			assert.Zero(t, summary.Produced)
			assert.Equal(t, 1, summary.TotalSkipped())
			assert.Equal(t, 1, summary.Skipped[tc.stage])
			assert.Empty(t, h.recorder.records)
			assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.UnitsSkipped.WithLabelValues(string(tc.stage))), 0)
		})
	}
}

func TestExtractor_Run_PartialChannels(t *testing.T) {
	h := newHarness(t)
	h.opts.Channels = []string{"HHZ", "HHN", "HHE"}
	h.loader.fn = func(day domain.Day, station string) (domain.Stream, error) {
		return twoMinutes(day, station, "HHZ", "HHE"), nil
	}

	summary := h.run(t, workedEvent())

	assert.Equal(t, 2, summary.Produced)
	assert.Equal(t, 1, summary.Skipped[domain.StageChannel])
	assert.Equal(t, []string{"0.IV.AQU..HHE.mseed", "0.IV.AQU..HHZ.mseed"}, h.writer.names())
}

func TestExtractor_Run_RecorderFailureKeepsTemplate(t *testing.T) {
	h := newHarness(t)
	h.recorder.err = errors.New("broker down")

	summary := h.run(t, workedEvent())

	assert.Equal(t, 1, summary.Produced)
	assert.Zero(t, summary.TotalSkipped())
	assert.Len(t, h.writer.names(), 1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.SinkWrites.WithLabelValues("mock", "error")), 0)
}

func TestExtractor_Run_ParallelMatchesSequential(t *testing.T) {
	days := []string{"100305", "100306", "100307", "100308"}
	stations := []string{"AQU", "CAMP", "FIAM"}

	var events []domain.Event
	for i := range days {
		ev := workedEvent()
		ev.Index = i
		ev.Origin = ev.Origin.AddDate(0, 0, i)
		events = append(events, ev)
	}

	run := func(workers int) (*domain.Summary, []string) {
		h := newHarness(t)
		h.opts.Workers = workers
		h.opts.Stations = stations
		h.opts.Days = nil
		for _, code := range days {
			h.opts.Days = append(h.opts.Days, mustDay(t, code))
		}
		for _, st := range stations {
			h.resolver.coords[st] = aquila
		}
		return h.run(t, events...), h.writer.names()
	}

	seqSummary, seqNames := run(1)
	parSummary, parNames := run(4)

	assert.Len(t, seqNames, len(days)*len(stations))
	assert.Equal(t, seqNames, parNames)
	assert.Equal(t, seqSummary.Produced, parSummary.Produced)
	assert.Equal(t, seqSummary.Units, parSummary.Units)
	assert.Equal(t, seqSummary.Events, parSummary.Events)
}

func TestExtractor_Run_SequentialOrder(t *testing.T) {
	h := newHarness(t)
	h.opts.Stations = []string{"AQU", "CAMP"}
	h.opts.Days = []domain.Day{mustDay(t, "100305"), mustDay(t, "100306")}
	h.resolver.coords["CAMP"] = aquila
	second := workedEvent()
	second.Index = 1
	second.Origin = second.Origin.AddDate(0, 0, 1)

	h.run(t, workedEvent(), second)

	assert.Equal(t, []string{"100305.AQU", "100306.AQU", "100305.CAMP", "100306.CAMP"}, h.loader.calls)
}

func TestExtractor_Run_ContextCancellation(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.extractor([]domain.Event{workedEvent()}).Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Units)
	assert.Empty(t, h.writer.names())
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestExtractor_Run_RequiresStages(t *testing.T) {
	p := pipeline.New(nil, pipeline.Options{}, pipeline.Stages{}, slog.Default(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.Error(t, err)
}

func TestExtractor_CheckReadiness(t *testing.T) {
	h := newHarness(t)
	p := h.extractor([]domain.Event{workedEvent()})

	require.Error(t, p.CheckReadiness(context.Background()))
	assert.False(t, p.Done())
	_, ok := p.Progress()
	assert.False(t, ok)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.True(t, p.Done())
	snap, ok := p.Progress()
	require.True(t, ok)
	assert.Equal(t, 1, snap.Produced)
}
