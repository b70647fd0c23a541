package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"biketrack/internal/apperrors"
)

// HTTPSource reads telemetry from an upstream HTTP endpoint that answers
// GET <base>/latest?device=<id>&limit=<n> with a JSON array of points,
// newest first.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source against the given base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *HTTPSource) Latest(ctx context.Context, device string, limit int) ([]Point, error) {
	q := url.Values{}
	q.Set("device", device)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, apperrors.Internal("telemetry.latest", fmt.Errorf("building request: %w", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Internal("telemetry.latest", fmt.Errorf("upstream request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Internal("telemetry.latest", fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	var points []Point
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, apperrors.Internal("telemetry.latest", fmt.Errorf("decoding response: %w", err))
	}
	return points, nil
}

// StaticSource serves a fixed set of points. Used in tests and when the
// service runs without an upstream.
type StaticSource struct {
	Points map[string][]Point
	Err    error
}

func (s *StaticSource) Latest(_ context.Context, device string, limit int) ([]Point, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	points := s.Points[device]
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}
