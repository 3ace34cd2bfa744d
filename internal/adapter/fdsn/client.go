// Package fdsn looks up station coordinates from an FDSN station web
// service (fdsnws-station, text format).
package fdsn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// errTransient marks responses worth retrying.
var errTransient = errors.New("transient fdsn error")

// Client implements inventory.CoordinateSource against fdsnws-station.
type Client struct {
	baseURL    string
	network    string
	attempts   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a station web-service client. baseURL is the service
// root, e.g. https://webservices.ingv.it. An empty network matches any.
func NewClient(baseURL, network string, timeout time.Duration, attempts int, logger *slog.Logger) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		network:  network,
		attempts: attempts,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "fdsn"),
	}
}

func (c *Client) Name() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return c.baseURL
	}
	return u.Host
}

// Lookup queries the service for one station. A 204 or 404 answer means
// the station is unknown.
func (c *Client) Lookup(ctx context.Context, code string) (domain.Coordinates, bool, error) {
	params := url.Values{
		"station": {code},
		"level":   {"station"},
		"format":  {"text"},
	}
	if c.network != "" {
		params.Set("network", c.network)
	}
	fullURL := c.baseURL + "/fdsnws/station/1/query?" + params.Encode()

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		coords, found, err := c.doRequest(ctx, fullURL, code)
		if err == nil || !errors.Is(err, errTransient) {
			return coords, found, err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		c.logger.Debug("retrying station query", "station", code, "attempt", attempt, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.Coordinates{}, false, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return domain.Coordinates{}, false, lastErr
}

func (c *Client) doRequest(ctx context.Context, fullURL, code string) (domain.Coordinates, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Coordinates{}, false, ctx.Err()
		}
		return domain.Coordinates{}, false, fmt.Errorf("%w: station request: %v", errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return domain.Coordinates{}, false, nil
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Coordinates{}, false, fmt.Errorf("%w: status %d: %s", errTransient, resp.StatusCode, body)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Coordinates{}, false, fmt.Errorf("fdsn station error: status %d: %s", resp.StatusCode, body)
	}

	stations, err := ParseText(resp.Body)
	if err != nil {
		return domain.Coordinates{}, false, err
	}
	for _, st := range stations {
		if st.Code == code {
			return domain.Coordinates{Latitude: st.Latitude, Longitude: st.Longitude, Elevation: st.Elevation}, true, nil
		}
	}
	return domain.Coordinates{}, false, nil
}

// ParseText reads the pipe-separated station text format:
//
//	#Network|Station|Latitude|Longitude|Elevation|SiteName|StartTime|EndTime
func ParseText(r io.Reader) ([]domain.Station, error) {
	var out []domain.Station
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "|")
		if len(cols) < 5 {
			return nil, fmt.Errorf("station text line %d: want at least 5 columns, got %d", line, len(cols))
		}
		var vals [3]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(cols[2+i]), 64)
			if err != nil {
				return nil, fmt.Errorf("station text line %d: %w", line, err)
			}
			vals[i] = v
		}
		out = append(out, domain.Station{
			Network:   strings.TrimSpace(cols[0]),
			Code:      strings.TrimSpace(cols[1]),
			Latitude:  vals[0],
			Longitude: vals[1],
			Elevation: vals[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read station text: %w", err)
	}
	return out, nil
}
