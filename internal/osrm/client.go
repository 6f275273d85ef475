// Package osrm talks to the road-network service: distance/duration
// matrices for the solver and encoded route geometries for the response.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"paraplan/internal/config"
	"paraplan/internal/metrics"
	"paraplan/internal/model"
)

// DistanceScale converts OSRM meters into the solver's integer distance
// units; the inverse is applied when decoding a solution.
const DistanceScale = config.DefaultDistanceScale

type matrixResult struct {
	Code      string       `json:"code"`
	Message   string       `json:"message,omitempty"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

type routeResult struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

// Client is a stateless OSRM HTTP client, safe for concurrent use across
// solves. Calls are not retried; the caller is expected to retry whole
// requests.
type Client struct {
	cfg     config.OSRM
	http    *http.Client
	limiter *rate.Limiter
	cache   *MatrixCache
}

// NewClient builds a Client. cache may be nil.
func NewClient(cfg config.OSRM, cache *MatrixCache) *Client {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 50
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		cache:   cache,
	}
}

func formatCoordinates(coords []model.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%.8f,%.8f", c.Longitude, c.Latitude)
	}
	return strings.Join(parts, ";")
}

func joinIndices(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}

func (c *Client) get(ctx context.Context, uri string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) queryMatrix(ctx context.Context, coords []model.Coordinate, sources, destinations []int) (*matrixResult, error) {
	uri := fmt.Sprintf("%s/%s/%s?%s", c.cfg.BaseURL, c.cfg.MatrixEndpoint, formatCoordinates(coords), c.cfg.MatrixParams)
	if sources != nil {
		uri += "&sources=" + joinIndices(sources) + "&destinations=" + joinIndices(destinations)
	}
	var result matrixResult
	if err := c.get(ctx, uri, &result); err != nil {
		metrics.OSRMRequests.WithLabelValues("table", "error").Inc()
		return nil, model.NewError(model.ErrMatrixQuery, "osrm table request failed: %v", err)
	}
	if result.Code != "Ok" {
		metrics.OSRMRequests.WithLabelValues("table", "error").Inc()
		return nil, model.NewError(model.ErrMatrixQuery, "osrm table returned %q: %s", result.Code, result.Message)
	}
	metrics.OSRMRequests.WithLabelValues("table", "ok").Inc()
	return &result, nil
}

// Matrices returns the integer N×N distance and duration matrices for the
// ordered coordinate list. Distances are scaled by DistanceScale; the
// diagonal is zero. Requests larger than the configured batch size are
// tiled into row×column sub-blocks using explicit sources/destinations.
func (c *Client) Matrices(ctx context.Context, coords []model.Coordinate) ([][]int64, [][]int64, error) {
	n := len(coords)
	if n == 0 {
		return nil, nil, model.NewError(model.ErrMatrixQuery, "no coordinates to query")
	}

	key := ""
	if c.cache != nil {
		key = cacheKey(coords)
		if dist, dur, ok := c.cache.Get(ctx, key); ok {
			return dist, dur, nil
		}
	}

	distances := make([][]float64, n)
	durations := make([][]float64, n)
	for i := range distances {
		distances[i] = make([]float64, n)
		durations[i] = make([]float64, n)
	}

	if n <= c.cfg.BatchSize {
		result, err := c.queryMatrix(ctx, coords, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := fillBlock(distances, durations, result, 0, n, identity(n)); err != nil {
			return nil, nil, err
		}
	} else if err := c.matrixTiled(ctx, coords, distances, durations); err != nil {
		return nil, nil, err
	}

	dist := make([][]int64, n)
	dur := make([][]int64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]int64, n)
		dur[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dist[i][j] = int64(distances[i][j] * float64(DistanceScale))
			dur[i][j] = int64(durations[i][j])
		}
	}

	if c.cache != nil {
		c.cache.Put(ctx, key, dist, dur)
	}
	return dist, dur, nil
}

// matrixTiled walks the full matrix in batchSize×batchSize sub-blocks. Each
// request ships the source rows first, then the destination columns that do
// not overlap them, and stitches the sub-result into the full matrices.
func (c *Client) matrixTiled(ctx context.Context, coords []model.Coordinate, distances, durations [][]float64) error {
	n := len(coords)
	b := c.cfg.BatchSize
	for srcStart := 0; srcStart < n; srcStart += b {
		srcEnd := min(srcStart+b, n)
		for dstStart := 0; dstStart < n; dstStart += b {
			dstEnd := min(dstStart+b, n)

			batch := append([]model.Coordinate(nil), coords[srcStart:srcEnd]...)
			sources := identity(srcEnd - srcStart)
			destinations := make([]int, 0, dstEnd-dstStart)
			destCols := make([]int, 0, dstEnd-dstStart)
			next := len(batch)
			for j := dstStart; j < dstEnd; j++ {
				if j >= srcStart && j < srcEnd {
					destinations = append(destinations, j-srcStart)
				} else {
					batch = append(batch, coords[j])
					destinations = append(destinations, next)
					next++
				}
				destCols = append(destCols, j)
			}

			result, err := c.queryMatrix(ctx, batch, sources, destinations)
			if err != nil {
				return err
			}
			if err := fillBlock(distances, durations, result, srcStart, srcEnd-srcStart, destCols); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillBlock copies one sub-result into the full matrices. destCols maps the
// result's column order back to global node indices.
func fillBlock(distances, durations [][]float64, result *matrixResult, srcStart, srcCount int, destCols []int) error {
	if len(result.Distances) != srcCount || len(result.Durations) != srcCount {
		return model.NewError(model.ErrMatrixQuery, "osrm table returned %d rows, want %d", len(result.Distances), srcCount)
	}
	for i := 0; i < srcCount; i++ {
		distRow := result.Distances[i]
		durRow := result.Durations[i]
		if len(distRow) != len(destCols) || len(durRow) != len(destCols) {
			return model.NewError(model.ErrMatrixQuery, "osrm table row %d has %d columns, want %d", i, len(distRow), len(destCols))
		}
		for col, j := range destCols {
			if distRow[col] == nil || durRow[col] == nil {
				return model.NewError(model.ErrMatrixQuery, "osrm table has no value for pair (%d,%d)", srcStart+i, j)
			}
			distances[srcStart+i][j] = *distRow[col]
			durations[srcStart+i][j] = *durRow[col]
		}
	}
	return nil
}

// RouteGeometry fetches the road geometry through the given stops and
// decodes it into (lon, lat) pairs.
func (c *Client) RouteGeometry(ctx context.Context, coords []model.Coordinate) ([][]float64, error) {
	uri := fmt.Sprintf("%s/%s/%s?%s", c.cfg.BaseURL, c.cfg.RouteEndpoint, formatCoordinates(coords), c.cfg.RouteParams)
	var result routeResult
	if err := c.get(ctx, uri, &result); err != nil {
		metrics.OSRMRequests.WithLabelValues("route", "error").Inc()
		return nil, model.NewError(model.ErrRouteQuery, "osrm route request failed: %v", err)
	}
	if result.Code != "Ok" {
		metrics.OSRMRequests.WithLabelValues("route", "error").Inc()
		return nil, model.NewError(model.ErrRouteQuery, "osrm route returned %q: %s", result.Code, result.Message)
	}
	metrics.OSRMRequests.WithLabelValues("route", "ok").Inc()
	if len(result.Routes) != 1 {
		return nil, model.NewError(model.ErrRouteQuery, "expected exactly one route, got %d", len(result.Routes))
	}
	return DecodePolyline(result.Routes[0].Geometry), nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
