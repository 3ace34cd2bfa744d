// Package catalog reads the earthquake catalog and the list of days to
// process.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// ZMAP column positions. Columns past second (errors, etc.) are ignored.
const (
	colLon = iota
	colLat
	colYear
	colMonth
	colDay
	colMag
	colDepth
	colHour
	colMinute
	colSecond
	minColumns
)

// ReadZMAPFile loads a ZMAP catalog from disk.
func ReadZMAPFile(path string, precision int) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrCatalog, path, err)
	}
	defer f.Close()
	return ReadZMAP(f, precision)
}

// ReadZMAP parses whitespace-separated ZMAP rows:
//
//	lon lat year month day mag depth_km hour minute second [...]
//
// The year column may carry a decimal fraction, which is ignored in favor
// of the month and day columns. The second column keeps its fraction as
// text so sub-second origins are rebuilt exactly. Blank lines and lines
// starting with '#' are skipped. Event indexes count data rows from zero.
func ReadZMAP(r io.Reader, precision int) ([]domain.Event, error) {
	var events []domain.Event
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := parseRow(strings.Fields(line), precision)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrCatalog, lineNo, err)
		}
		ev.Index = len(events)
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read: %w", domain.ErrCatalog, err)
	}
	return events, nil
}

func parseRow(fields []string, precision int) (domain.Event, error) {
	if len(fields) < minColumns {
		return domain.Event{}, fmt.Errorf("want at least %d columns, got %d", minColumns, len(fields))
	}

	var nums [colSecond]float64
	for i := range nums {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Event{}, fmt.Errorf("column %d: invalid number %q", i+1, fields[i])
		}
		nums[i] = v
	}

	if nums[colLat] < -90 || nums[colLat] > 90 {
		return domain.Event{}, fmt.Errorf("latitude %v out of range", nums[colLat])
	}
	if nums[colLon] < -180 || nums[colLon] > 360 {
		return domain.Event{}, fmt.Errorf("longitude %v out of range", nums[colLon])
	}

	origin, err := domain.OriginTime(
		int(math.Floor(nums[colYear])),
		int(nums[colMonth]),
		int(nums[colDay]),
		int(nums[colHour]),
		int(nums[colMinute]),
		fields[colSecond],
		precision,
	)
	if err != nil {
		return domain.Event{}, err
	}

	return domain.Event{
		Origin:    origin,
		Magnitude: nums[colMag],
		Latitude:  nums[colLat],
		Longitude: nums[colLon],
		DepthKm:   nums[colDepth],
	}, nil
}
