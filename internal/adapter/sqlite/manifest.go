// Package sqlite keeps a manifest of written templates in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"

	_ "modernc.org/sqlite"
)

// Schema for the templates table. Re-running a batch upserts by name.
const Schema = `
CREATE TABLE IF NOT EXISTS templates (
	name TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	event_index INTEGER NOT NULL,
	network TEXT NOT NULL,
	station TEXT NOT NULL,
	channel TEXT NOT NULL,
	origin TEXT NOT NULL,
	magnitude REAL NOT NULL,
	distance_km REAL NOT NULL,
	phase TEXT NOT NULL,
	arrival_s REAL NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	sample_rate REAL NOT NULL,
	samples INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_templates_event ON templates(event_index);
CREATE INDEX IF NOT EXISTS idx_templates_station ON templates(station, channel);
`

// Manifest records one row per template.
// It implements pipeline.Recorder.
type Manifest struct {
	db *sql.DB
}

// Open opens (creating if needed) the manifest at path. Use ":memory:"
// for a throwaway manifest.
func Open(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init manifest %s: %w", path, err)
	}
	return &Manifest{db: db}, nil
}

func (m *Manifest) Name() string { return "sqlite" }

// Record upserts the row for rec.Name.
func (m *Manifest) Record(ctx context.Context, rec domain.TemplateRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO templates (name, location, event_index, network, station, channel, origin,
			magnitude, distance_km, phase, arrival_s, start_time, end_time, sample_rate, samples, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			location = excluded.location,
			event_index = excluded.event_index,
			network = excluded.network,
			station = excluded.station,
			channel = excluded.channel,
			origin = excluded.origin,
			magnitude = excluded.magnitude,
			distance_km = excluded.distance_km,
			phase = excluded.phase,
			arrival_s = excluded.arrival_s,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			sample_rate = excluded.sample_rate,
			samples = excluded.samples,
			recorded_at = excluded.recorded_at`,
		rec.Name, rec.Location, rec.EventIndex, rec.Network, rec.Station, rec.Channel,
		formatTime(rec.Origin), rec.Magnitude, rec.DistanceKm, rec.Phase, rec.ArrivalSec,
		formatTime(rec.Start), formatTime(rec.End), rec.SampleRate, rec.SampleCount,
		formatTime(domain.Now()),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.Name, err)
	}
	return nil
}

// List returns every row ordered by event index, then name.
func (m *Manifest) List(ctx context.Context) ([]domain.TemplateRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, location, event_index, network, station, channel, origin,
			magnitude, distance_km, phase, arrival_s, start_time, end_time, sample_rate, samples
		FROM templates ORDER BY event_index, name`)
	if err != nil {
		return nil, fmt.Errorf("list manifest: %w", err)
	}
	defer rows.Close()

	var out []domain.TemplateRecord
	for rows.Next() {
		var (
			rec                domain.TemplateRecord
			origin, start, end string
		)
		if err := rows.Scan(&rec.Name, &rec.Location, &rec.EventIndex, &rec.Network, &rec.Station, &rec.Channel,
			&origin, &rec.Magnitude, &rec.DistanceKm, &rec.Phase, &rec.ArrivalSec,
			&start, &end, &rec.SampleRate, &rec.SampleCount); err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		if rec.Origin, err = parseTime(origin); err != nil {
			return nil, err
		}
		if rec.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if rec.End, err = parseTime(end); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse manifest time %q: %w", s, err)
	}
	return t, nil
}
