package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// ReadDayListFile loads a day list from disk.
func ReadDayListFile(path string) ([]domain.Day, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open day list %s: %w", domain.ErrConfig, path, err)
	}
	defer f.Close()
	return ReadDayList(f)
}

// ReadDayList parses one YYMMDD code per line. Blank lines are skipped and
// order is kept.
func ReadDayList(r io.Reader) ([]domain.Day, error) {
	var days []domain.Day
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		code := strings.TrimSpace(sc.Text())
		if code == "" {
			continue
		}
		day, err := domain.ParseDay(code)
		if err != nil {
			return nil, fmt.Errorf("%w: day list line %d: %w", domain.ErrConfig, lineNo, err)
		}
		days = append(days, day)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read day list: %w", domain.ErrConfig, err)
	}
	return days, nil
}
