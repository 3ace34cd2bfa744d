// Package mockdata writes a small synthetic archive that exercises every
// stage of a run: continuous miniSEED day files, a ZMAP catalog, a
// StationXML inventory, a travel-time model, a day list and a trim.yaml
// tying them together.
package mockdata

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/mseed"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/stationxml"
	"github.com/couchcryptid/seismic-template-trim/internal/config"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"gopkg.in/yaml.v3"
)

// DayCode is the only day in the generated day list.
const DayCode = "100305"

// SampleRate of the generated continuous data.
const SampleRate = 20.0

// ModelName is the generated travel-time model.
const ModelName = "synth"

// Stations with continuous data. CAMP only records the vertical channel.
var Stations = []domain.Station{
	{Code: "AQU", Network: "IV", Latitude: 42.354, Longitude: 13.405, Elevation: 710, Channels: []string{"HHZ", "HHN", "HHE"}},
	{Code: "CAMP", Network: "IV", Latitude: 42.5358, Longitude: 13.409, Elevation: 1283, Channels: []string{"HHZ"}},
}

// MissingStation is configured but absent from every inventory source.
const MissingStation = "NOPE"

// Catalog rows in ZMAP order: lon lat year month day mag depth hour minute second.
var catalogRows = []string{
	"13.400 42.300 2010 3 5 2.1 9.7 12 0 3.5",
	"13.300 42.400 2010 3 5 1.8 0.0 12 2 10.25",
	"13.380 42.350 2010 3 5 1.5 8.0 20 0 0",
	"13.410 42.330 2010 3 6 2.4 11.2 1 0 0",
}

// Continuous data spans two contiguous fragments around the first two events.
var (
	dataStart = time.Date(2010, time.March, 5, 11, 58, 0, 0, time.UTC)
	dataSplit = time.Date(2010, time.March, 5, 12, 1, 0, 0, time.UTC)
	dataEnd   = time.Date(2010, time.March, 5, 12, 5, 0, 0, time.UTC)
)

// Crustal model truncated at the outer core.
const tvel = `synth - P
synth - S
  0.000   5.8000   3.3600   2.7200
 20.000   5.8000   3.3600   2.7200
 20.000   6.5000   3.7500   2.9200
 35.000   6.5000   3.7500   2.9200
 35.000   8.0400   4.4700   3.3198
410.000   9.0300   4.8700   3.5068
660.000  10.2000   5.6000   3.9000
2889.000 13.7000   7.3000   5.5000
2889.000  8.0000   0.0000   9.9000
6371.000 11.0000   0.0000  13.0000
`

// Layout reports where each generated artifact was written.
type Layout struct {
	Root          string
	ContinuousDir string
	TemplateDir   string
	Catalog       string
	DayList       string
	Inventory     string
	ModelDir      string
	Manifest      string
	ConfigPath    string
	Config        *config.Config
}

// Generate writes the archive under root and returns its layout.
func Generate(root string) (*Layout, error) {
	l := &Layout{
		Root:          root,
		ContinuousDir: filepath.Join(root, "continuous"),
		TemplateDir:   filepath.Join(root, "templates"),
		Catalog:       filepath.Join(root, "catalog.zmap"),
		DayList:       filepath.Join(root, "days.txt"),
		Inventory:     filepath.Join(root, "stations.xml"),
		ModelDir:      filepath.Join(root, "models"),
		Manifest:      filepath.Join(root, "manifest.db"),
		ConfigPath:    filepath.Join(root, "trim.yaml"),
	}

	for _, dir := range []string{l.ContinuousDir, l.TemplateDir, l.ModelDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := writeContinuous(l.ContinuousDir); err != nil {
		return nil, err
	}
	if err := os.WriteFile(l.Catalog, []byte("# lon lat year month day mag depth hour minute second\n"+strings.Join(catalogRows, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}
	if err := os.WriteFile(l.DayList, []byte(DayCode+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write day list: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.ModelDir, ModelName+".tvel"), []byte(tvel), 0o644); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}

	var inv bytes.Buffer
	if err := stationxml.Encode(&inv, "mockdata", Stations); err != nil {
		return nil, err
	}
	if err := os.WriteFile(l.Inventory, inv.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write inventory: %w", err)
	}

	l.Config = l.config()
	data, err := yaml.Marshal(l.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(l.ConfigPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	return l, nil
}

func (l *Layout) config() *config.Config {
	cfg := config.Default()
	cfg.Stations = []string{"AQU", "CAMP", MissingStation}
	cfg.Channels = []string{"HHZ", "HHN", "HHE"}
	cfg.Networks = []string{"IV"}
	cfg.Bandpass = config.Bandpass{Low: 2, High: 8, Corners: 4}
	cfg.Window = config.Window{Before: 2, After: 8}
	cfg.ContinuousDir = l.ContinuousDir
	cfg.TemplateDir = l.TemplateDir
	cfg.DayList = l.DayList
	cfg.Catalog = l.Catalog
	cfg.Model = config.Model{Dir: l.ModelDir, Name: ModelName}
	cfg.Inventory.Files = []string{l.Inventory}
	cfg.Manifest = l.Manifest
	cfg.RecordLength = 512
	return cfg
}

// writeContinuous writes one file per channel, each holding two
// fragments that the loader has to merge back together.
func writeContinuous(dir string) error {
	for _, st := range Stations {
		for ci, ch := range st.Channels {
			var file []byte
			for _, span := range [][2]time.Time{{dataStart, dataSplit}, {dataSplit, dataEnd}} {
				tr := domain.Trace{
					Network:    st.Network,
					Station:    st.Code,
					Channel:    ch,
					Start:      span[0],
					SampleRate: SampleRate,
					Samples:    signal(span[0], span[1], float64(ci)),
				}
				data, err := mseed.Encode(tr, 512)
				if err != nil {
					return fmt.Errorf("encode %s: %w", tr.ID(), err)
				}
				file = append(file, data...)
			}
			path := filepath.Join(dir, DayCode+"."+st.Code+"."+ch)
			if err := os.WriteFile(path, file, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
	}
	return nil
}

// signal is a deterministic two-tone record offset by phase.
func signal(start, end time.Time, phase float64) []float64 {
	n := int(end.Sub(start).Seconds() * SampleRate)
	out := make([]float64, n)
	t0 := start.Sub(dataStart).Seconds()
	for i := range out {
		t := t0 + float64(i)/SampleRate
		out[i] = 120*math.Sin(2*math.Pi*3*t+phase) + 40*math.Sin(2*math.Pi*5.5*t) + 10
	}
	return out
}
