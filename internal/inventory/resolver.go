// Package inventory resolves station coordinates from an ordered list of
// metadata sources.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
)

// CoordinateSource is one station-metadata provider. Lookup reports
// absence with found == false; err is reserved for sources that could not
// answer at all.
type CoordinateSource interface {
	Name() string
	Lookup(ctx context.Context, station string) (coords domain.Coordinates, found bool, err error)
}

// Resolver tries its sources in order and returns the first match.
type Resolver struct {
	sources []CoordinateSource
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver. A zero timeout leaves the scan bounded
// only by the caller's context.
func NewResolver(sources []CoordinateSource, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		sources: sources,
		timeout: timeout,
		logger:  logger.With("component", "inventory"),
		metrics: metrics,
	}
}

// Resolve returns the coordinates of station from the first source that
// knows it. Source errors are logged and the scan moves on; only the
// absence of the station from every source is reported, as
// domain.ErrStationNotFound.
func (r *Resolver) Resolve(ctx context.Context, station string) (domain.Coordinates, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return domain.Coordinates{}, fmt.Errorf("%w: %s: %v", domain.ErrStationNotFound, station, err)
		}

		coords, found, err := src.Lookup(ctx, station)
		switch {
		case err != nil:
			r.observe(src.Name(), "error")
			r.logger.Warn("inventory source failed", "source", src.Name(), "station", station, "error", err)
		case !found:
			r.observe(src.Name(), "missing")
			r.logger.Debug("station not in inventory source", "source", src.Name(), "station", station)
		default:
			r.observe(src.Name(), "found")
			r.logger.Debug("station resolved",
				"source", src.Name(),
				"station", station,
				"lat", coords.Latitude,
				"lon", coords.Longitude,
			)
			return coords, nil
		}
	}
	return domain.Coordinates{}, fmt.Errorf("%w: %s", domain.ErrStationNotFound, station)
}

func (r *Resolver) observe(source, result string) {
	if r.metrics != nil {
		r.metrics.InventoryLookups.WithLabelValues(source, result).Inc()
	}
}
