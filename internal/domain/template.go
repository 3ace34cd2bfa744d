package domain

import (
	"fmt"
	"time"
)

// TemplateExt is the file extension of written templates.
const TemplateExt = ".mseed"

// Template is a trimmed segment ready to be persisted.
type Template struct {
	EventIndex int
	Window     Window
	Trace      Trace
}

// Name returns the deterministic file name for the template, keyed by
// event index, network, station and channel.
func (t Template) Name() string {
	return TemplateName(t.EventIndex, t.Trace.Network, t.Trace.Station, t.Trace.Channel)
}

// TemplateName formats <event>.<net>.<sta>..<cha>.mseed. The location slot
// is always empty.
func TemplateName(eventIndex int, network, station, channel string) string {
	return fmt.Sprintf("%d.%s.%s..%s%s", eventIndex, network, station, channel, TemplateExt)
}

// TemplateRecord describes a persisted template for downstream indexes.
type TemplateRecord struct {
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	EventIndex  int       `json:"event_index"`
	Network     string    `json:"network"`
	Station     string    `json:"station"`
	Channel     string    `json:"channel"`
	Origin      time.Time `json:"origin"`
	Magnitude   float64   `json:"magnitude"`
	DistanceKm  float64   `json:"distance_km"`
	Phase       string    `json:"phase"`
	ArrivalSec  float64   `json:"arrival_s"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SampleRate  float64   `json:"sample_rate"`
	SampleCount int       `json:"samples"`
}
