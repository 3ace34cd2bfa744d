package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// Positional parameter file layout. Lines before parStations are free
// text; the inventory line is optional.
const (
	parStations = 16 + iota
	parChannels
	parNetworks
	parLow
	parHigh
	parBefore
	parAfter
	parPrecision
	parContinuousDir
	parTemplateDir
	parDayList
	parCatalog
	parStart
	parStop
	parModel
	parInventory
)

func hydrateFromPar(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: read parameter file: %v", domain.ErrConfig, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: read parameter file: %v", domain.ErrConfig, err)
	}
	if len(lines) <= parModel {
		return fmt.Errorf("%w: parameter file %s has %d lines, want at least %d", domain.ErrConfig, path, len(lines), parModel+1)
	}

	p := parser{lines: lines}
	cfg.Stations = strings.Fields(lines[parStations])
	cfg.Channels = strings.Fields(lines[parChannels])
	cfg.Networks = strings.Fields(lines[parNetworks])
	cfg.Bandpass.Low = p.atof(parLow)
	cfg.Bandpass.High = p.atof(parHigh)
	cfg.Window.Before = p.atof(parBefore)
	cfg.Window.After = p.atof(parAfter)
	cfg.TimePrecision = p.atoi(parPrecision)
	cfg.ContinuousDir = lines[parContinuousDir]
	cfg.TemplateDir = lines[parTemplateDir]
	cfg.DayList = lines[parDayList]
	cfg.Catalog = lines[parCatalog]
	cfg.Range.Start = p.atoi(parStart)
	cfg.Range.Stop = p.atoi(parStop)
	cfg.Model.Name = lines[parModel]
	if len(lines) > parInventory {
		cfg.Inventory.Files = strings.Fields(lines[parInventory])
	}
	if p.err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrConfig, path, p.err)
	}
	return nil
}

// parser keeps the first conversion error.
type parser struct {
	lines []string
	err   error
}

func (p *parser) atof(i int) float64 {
	v, err := strconv.ParseFloat(p.lines[i], 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("line %d: %w", i+1, err)
	}
	return v
}

func (p *parser) atoi(i int) int {
	v, err := strconv.Atoi(p.lines[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("line %d: %w", i+1, err)
	}
	return v
}
