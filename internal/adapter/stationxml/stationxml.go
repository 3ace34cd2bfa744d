// Package stationxml reads station coordinates from FDSN StationXML files.
package stationxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

const namespace = "http://www.fdsn.org/xml/station/1"

type document struct {
	XMLName  xml.Name  `xml:"FDSNStationXML"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	Version  string    `xml:"schemaVersion,attr,omitempty"`
	Source   string    `xml:"Source"`
	Created  string    `xml:"Created,omitempty"`
	Networks []network `xml:"Network"`
}

type network struct {
	Code     string    `xml:"code,attr"`
	Stations []station `xml:"Station"`
}

type station struct {
	Code      string    `xml:"code,attr"`
	Latitude  float64   `xml:"Latitude"`
	Longitude float64   `xml:"Longitude"`
	Elevation float64   `xml:"Elevation"`
	Channels  []channel `xml:"Channel"`
}

type channel struct {
	Code         string  `xml:"code,attr"`
	LocationCode string  `xml:"locationCode,attr"`
	Latitude     float64 `xml:"Latitude"`
	Longitude    float64 `xml:"Longitude"`
	Elevation    float64 `xml:"Elevation"`
	Depth        float64 `xml:"Depth"`
	SampleRate   float64 `xml:"SampleRate,omitempty"`
}

// Decode parses a StationXML document into stations in document order.
func Decode(r io.Reader) ([]domain.Station, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode stationxml: %w", err)
	}

	var out []domain.Station
	for _, n := range doc.Networks {
		for _, s := range n.Stations {
			st := domain.Station{
				Code:      s.Code,
				Network:   n.Code,
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
				Elevation: s.Elevation,
			}
			for _, c := range s.Channels {
				st.Channels = append(st.Channels, c.Code)
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// Encode writes stations as a StationXML document, grouping them by
// network in first-seen order. Channels carry the station position.
func Encode(w io.Writer, source string, stations []domain.Station) error {
	doc := document{Xmlns: namespace, Version: "1.1", Source: source}
	index := make(map[string]int)
	for _, st := range stations {
		i, ok := index[st.Network]
		if !ok {
			i = len(doc.Networks)
			index[st.Network] = i
			doc.Networks = append(doc.Networks, network{Code: st.Network})
		}
		s := station{
			Code:      st.Code,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Elevation: st.Elevation,
		}
		for _, c := range st.Channels {
			s.Channels = append(s.Channels, channel{
				Code:      c,
				Latitude:  st.Latitude,
				Longitude: st.Longitude,
				Elevation: st.Elevation,
			})
		}
		doc.Networks[i].Stations = append(doc.Networks[i].Stations, s)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode stationxml: %w", err)
	}
	return enc.Close()
}

// File is an inventory source backed by one StationXML file. The file is
// parsed on first lookup and kept in memory.
type File struct {
	path string

	once     sync.Once
	stations map[string]domain.Coordinates
	err      error
}

// NewFile creates a source for the StationXML file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string { return filepath.Base(f.path) }

// Lookup returns the first station in the file with the given code,
// whatever its network.
func (f *File) Lookup(_ context.Context, code string) (domain.Coordinates, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return domain.Coordinates{}, false, f.err
	}
	c, ok := f.stations[code]
	return c, ok, nil
}

func (f *File) load() {
	fh, err := os.Open(f.path)
	if err != nil {
		f.err = err
		return
	}
	defer fh.Close()

	stations, err := Decode(fh)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", f.path, err)
		return
	}

	f.stations = make(map[string]domain.Coordinates, len(stations))
	for _, st := range stations {
		if _, seen := f.stations[st.Code]; seen {
			continue
		}
		f.stations[st.Code] = domain.Coordinates{
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Elevation: st.Elevation,
		}
	}
}
