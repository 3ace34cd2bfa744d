package inventory

import (
	"context"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// StaticSource serves coordinates listed inline in configuration.
type StaticSource struct {
	name     string
	stations map[string]domain.Coordinates
}

// NewStaticSource creates a source over a fixed station table.
func NewStaticSource(name string, stations map[string]domain.Coordinates) *StaticSource {
	return &StaticSource{name: name, stations: stations}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Lookup(_ context.Context, station string) (domain.Coordinates, bool, error) {
	c, ok := s.stations[station]
	return c, ok, nil
}
