// Package countyapi fetches independent county rollups over HTTP.
package countyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
)

// Client implements pipeline.CountySource against a JSON rollup endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a rollup client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Rollups returns every source's aggregate for region. A region the
// endpoint does not know yields an empty slice.
func (c *Client) Rollups(ctx context.Context, region string) ([]domain.CountyAggregate, error) {
	u := fmt.Sprintf("%s/regions/%s/rollups", c.baseURL, url.PathEscape(strings.ToUpper(region)))

	start := time.Now()
	rollups, err := c.doRequest(ctx, u)
	c.metrics.CountyAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.CountyRequests.WithLabelValues("error").Inc()
		c.logger.Warn("county rollup request failed", "region", region, "error", err)
	case len(rollups) == 0:
		c.metrics.CountyRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.CountyRequests.WithLabelValues("success").Inc()
	}
	return rollups, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.CountyAggregate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("county rollup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("county API error: status %d: %s", resp.StatusCode, body)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]domain.CountyAggregate, 0, len(r.Rollups))
	for _, row := range r.Rollups {
		if row.Source == "" {
			continue
		}
		out = append(out, domain.CountyAggregate{
			Source:    row.Source,
			Cases:     row.Cases,
			Deaths:    row.Deaths,
			Recovered: row.Recovered,
		})
	}
	return out, nil
}

// Rollup API response types.

type response struct {
	Rollups []rollup `json:"rollups"`
}

type rollup struct {
	Source    string `json:"source"`
	Cases     int64  `json:"cases"`
	Deaths    int64  `json:"deaths"`
	Recovered int64  `json:"recovered"`
}
