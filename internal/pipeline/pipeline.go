package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
	"golang.org/x/sync/errgroup"
)

// CoordinateResolver looks up a station's location across inventory sources.
type CoordinateResolver interface {
	Resolve(ctx context.Context, station string) (domain.Coordinates, error)
}

// StreamLoader builds the merged, filtered continuous stream for one
// station and day.
type StreamLoader interface {
	Load(ctx context.Context, day domain.Day, station string) (domain.Stream, error)
}

// TravelTimer predicts phase arrivals for a source depth and epicentral
// distance in degrees.
type TravelTimer interface {
	Arrivals(ctx context.Context, depthKm, distanceDeg float64, phases []string) ([]domain.Arrival, error)
}

// TemplateWriter persists a trimmed template and returns where it landed.
type TemplateWriter interface {
	Write(ctx context.Context, tmpl domain.Template) (string, error)
}

// Recorder is notified after each template is persisted.
type Recorder interface {
	Name() string
	Record(ctx context.Context, rec domain.TemplateRecord) error
}

// Options controls which units are visited and how windows are cut.
type Options struct {
	Stations      []string
	Channels      []string
	Days          []domain.Day
	Before        time.Duration
	After         time.Duration
	EarthRadiusKm float64
	Workers       int
}

// Stages bundles the collaborators the extractor drives.
type Stages struct {
	Resolver  CoordinateResolver
	Loader    StreamLoader
	Timer     TravelTimer
	Writer    TemplateWriter
	Recorders []Recorder
}

// Extractor cuts one template per (event, station, channel) out of the
// continuous archive.
type Extractor struct {
	events  []domain.Event
	opts    Options
	stages  Stages
	logger  *slog.Logger
	metrics *observability.Metrics
	started atomic.Bool
	done    atomic.Bool
	current atomic.Pointer[domain.Summary]
}

// New creates an Extractor over the range-selected catalog events.
func New(events []domain.Event, opts Options, stages Stages, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.EarthRadiusKm <= 0 {
		opts.EarthRadiusKm = domain.EarthRadiusKm
	}
	return &Extractor{
		events:  events,
		opts:    opts,
		stages:  stages,
		logger:  logger.With("component", "extractor"),
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has started, or an error describing
// why the service is not yet ready.
func (e *Extractor) CheckReadiness(_ context.Context) error {
	if !e.started.Load() {
		return errors.New("extraction has not started yet")
	}
	return nil
}

// Progress returns the tally of the current or last run, and false before
// any run has started.
func (e *Extractor) Progress() (domain.Snapshot, bool) {
	s := e.current.Load()
	if s == nil {
		return domain.Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Done reports whether Run has returned.
func (e *Extractor) Done() bool {
	return e.done.Load()
}

// Run visits every (station, day) unit, stations outer and days inner.
// Failures are tallied in the summary and never abort the run. A cancelled
// context stops dispatching new units and returns the partial summary.
func (e *Extractor) Run(ctx context.Context) (*domain.Summary, error) {
	if e.stages.Resolver == nil || e.stages.Loader == nil || e.stages.Timer == nil || e.stages.Writer == nil {
		return nil, errors.New("extractor: resolver, loader, timer and writer are required")
	}

	summary := domain.NewSummary()
	e.current.Store(summary)
	e.started.Store(true)
	e.metrics.RunActive.Set(1)
	defer func() {
		e.metrics.RunActive.Set(0)
		e.done.Store(true)
	}()

	e.logger.Info("extraction started",
		"stations", len(e.opts.Stations),
		"days", len(e.opts.Days),
		"events", len(e.events),
		"workers", e.opts.Workers,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

dispatch:
	for _, station := range e.opts.Stations {
		for _, day := range e.opts.Days {
			if gctx.Err() != nil {
				break dispatch
			}
			g.Go(func() error {
				e.processUnit(gctx, station, day, summary)
				return nil
			})
		}
	}
	_ = g.Wait()

	summary.Finish()
	if err := ctx.Err(); err != nil {
		e.logger.Warn("extraction interrupted", append(summary.LogAttrs(), "error", err)...)
		return summary, nil
	}
	e.logger.Info("extraction finished", summary.LogAttrs()...)
	return summary, nil
}

type unit struct {
	station string
	coords  domain.Coordinates
	stream  domain.Stream
	logger  *slog.Logger
}

func (e *Extractor) processUnit(ctx context.Context, station string, day domain.Day, summary *domain.Summary) {
	start := time.Now()
	defer func() { e.metrics.UnitDuration.Observe(time.Since(start).Seconds()) }()

	events := domain.EventsForDay(e.events, day)
	summary.AddUnit(len(events))
	e.metrics.EventsAssociated.Add(float64(len(events)))

	logger := e.logger.With("station", station, "day", day.Code)
	if len(events) == 0 {
		logger.Debug("no events on day")
		return
	}

	coords, err := e.stages.Resolver.Resolve(ctx, station)
	if err != nil {
		e.skip(summary, logger, domain.Skip(domain.StageCoordinates, err))
		return
	}

	stream, err := e.stages.Loader.Load(ctx, day, station)
	if err != nil {
		e.skip(summary, logger, domain.Skip(domain.StageDayStream, err))
		return
	}
	e.metrics.DayStreamsLoaded.Inc()

	u := unit{station: station, coords: coords, stream: stream, logger: logger}
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		e.processEvent(ctx, u, ev, summary)
	}
}

func (e *Extractor) processEvent(ctx context.Context, u unit, ev domain.Event, summary *domain.Summary) {
	logger := u.logger.With("event", ev.Index)

	distKm := domain.GeodesicDistanceKm(ev.Latitude, ev.Longitude, u.coords.Latitude, u.coords.Longitude)
	if math.IsNaN(distKm) || math.IsInf(distKm, 0) {
		e.skip(summary, logger, domain.Skip(domain.StageDistance, fmt.Errorf("distance %v km", distKm)))
		return
	}
	distDeg := domain.KilometersToDegrees(distKm, e.opts.EarthRadiusKm)
	depth := domain.EffectiveDepth(ev.DepthKm)

	arrivals, err := e.stages.Timer.Arrivals(ctx, depth, distDeg, domain.SPhases)
	if err != nil {
		e.skip(summary, logger, domain.Skip(domain.StageArrival, err))
		return
	}
	arrival, ok := domain.EarliestArrival(arrivals, domain.SPhases)
	if !ok {
		e.skip(summary, logger, domain.Skip(domain.StageArrival, domain.ErrNoArrival))
		return
	}
	if math.IsNaN(arrival.Time) || math.IsInf(arrival.Time, 0) || arrival.Time < 0 {
		e.skip(summary, logger, domain.Skip(domain.StageWindow, fmt.Errorf("arrival at %v s", arrival.Time)))
		return
	}
	window := domain.ComputeWindow(ev.Origin, arrival.Time, e.opts.Before, e.opts.After)

	for _, channel := range e.opts.Channels {
		if ctx.Err() != nil {
			return
		}
		chLogger := logger.With("channel", channel)

		tr, ok := u.stream.Select(u.station, channel)
		if !ok {
			e.skip(summary, chLogger, domain.Skip(domain.StageChannel, domain.ErrChannelMissing))
			continue
		}
		trimmed := tr.Trim(window.Start, window.End)
		if !trimmed.HasSamples() {
			e.skip(summary, chLogger, domain.Skip(domain.StageTrim, domain.ErrEmptyWindow))
			continue
		}

		tmpl := domain.Template{EventIndex: ev.Index, Window: window, Trace: trimmed}
		location, err := e.stages.Writer.Write(ctx, tmpl)
		if err != nil {
			e.skip(summary, chLogger, domain.Skip(domain.StageStore, err))
			continue
		}
		summary.AddProduced()
		e.metrics.TemplatesWritten.Inc()

		rec := domain.TemplateRecord{
			Name:        tmpl.Name(),
			Location:    location,
			EventIndex:  ev.Index,
			Network:     trimmed.Network,
			Station:     trimmed.Station,
			Channel:     trimmed.Channel,
			Origin:      ev.Origin,
			Magnitude:   ev.Magnitude,
			DistanceKm:  distKm,
			Phase:       arrival.Phase,
			ArrivalSec:  arrival.Time,
			Start:       trimmed.Start,
			End:         trimmed.End(),
			SampleRate:  trimmed.SampleRate,
			SampleCount: len(trimmed.Samples),
		}
		e.notify(ctx, chLogger, rec)

		chLogger.Info("template written",
			"template", rec.Name,
			"location", location,
			"distance_km", distKm,
			"phase", arrival.Phase,
			"arrival_s", arrival.Time,
		)
	}
}

// notify hands a record to every recorder. Recorder failures are logged
// and counted; the template itself is already persisted.
func (e *Extractor) notify(ctx context.Context, logger *slog.Logger, rec domain.TemplateRecord) {
	for _, r := range e.stages.Recorders {
		if err := r.Record(ctx, rec); err != nil {
			logger.Warn("record template failed", "sink", r.Name(), "error", err)
			e.metrics.SinkWrites.WithLabelValues(r.Name(), "error").Inc()
			continue
		}
		e.metrics.SinkWrites.WithLabelValues(r.Name(), "success").Inc()
	}
}

// skip logs and counts one SkipError. A unit-level failure counts once
// however many events it covered.
func (e *Extractor) skip(summary *domain.Summary, logger *slog.Logger, err *domain.SkipError) {
	logger.Warn("template skipped", "stage", err.Stage, "error", err.Err)
	summary.AddSkip(err.Stage)
	e.metrics.UnitsSkipped.WithLabelValues(string(err.Stage)).Inc()
}
