// Package sensor fetches distance readings from the printer's beacon probe.
package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ratemeter/internal/httputil"
	"github.com/banshee-data/ratemeter/internal/monitoring"
)

// DefaultQueryPath is the object query that reports the beacon's last sample.
const DefaultQueryPath = "/printer/objects/query?beacon"

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

// Source yields one distance reading per call. ok is false when no reading
// could be obtained; the cause has already been logged.
type Source interface {
	Fetch(ctx context.Context) (distance float64, ok bool)
}

var (
	errNoSample  = errors.New("last_received_sample missing")
	errNoDist    = errors.New("dist not in last_received_sample")
	errNotFinite = errors.New("dist is not finite")
)

type beaconResponse struct {
	Result struct {
		Status struct {
			Beacon struct {
				LastReceivedSample map[string]json.RawMessage `json:"last_received_sample"`
			} `json:"beacon"`
		} `json:"status"`
	} `json:"result"`
}

// Beacon polls a host's object-query endpoint for the beacon distance.
type Beacon struct {
	client  httputil.HTTPClient
	url     string
	timeout time.Duration
}

// NewBeacon creates a Beacon querying host+path. Each request is cancelled
// after timeout.
func NewBeacon(client httputil.HTTPClient, host, path string, timeout time.Duration) *Beacon {
	if path == "" {
		path = DefaultQueryPath
	}
	return &Beacon{
		client:  client,
		url:     strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/"),
		timeout: timeout,
	}
}

// URL returns the endpoint being polled.
func (b *Beacon) URL() string { return b.url }

// Fetch implements Source.
func (b *Beacon) Fetch(ctx context.Context) (float64, bool) {
	dist, err := b.Distance(ctx)
	if err != nil {
		monitoring.Logf("Error querying distance: %v", err)
		return 0, false
	}
	return dist, true
}

// Distance performs one query and returns the reading or the reason it
// could not be read.
func (b *Beacon) Distance(ctx context.Context) (float64, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", b.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("query %s: unexpected status %d", b.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	return parseDistance(body)
}

func parseDistance(body []byte) (float64, error) {
	var r beaconResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return 0, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	sample := r.Result.Status.Beacon.LastReceivedSample
	if len(sample) == 0 {
		return 0, errNoSample
	}
	raw, ok := sample["dist"]
	if !ok {
		return 0, errNoDist
	}

	if string(raw) == "null" {
		return 0, errNoDist
	}

	var dist float64
	if err := json.Unmarshal(raw, &dist); err != nil {
		// Some firmware reports the value as a string.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("dist is not a number: %s", raw)
		}
		if dist, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, fmt.Errorf("dist is not a number: %q", s)
		}
	}
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, fmt.Errorf("%w: %v", errNotFinite, dist)
	}
	return dist, nil
}
