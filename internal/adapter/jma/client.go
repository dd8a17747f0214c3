package jma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/juseg/aftershocks/internal/config"
	"github.com/juseg/aftershocks/internal/domain"
	"github.com/juseg/aftershocks/internal/observability"
)

// maxErrorBody caps how much of a failed response is echoed into the error.
const maxErrorBody = 512

// Client fetches the JMA hypocenter listing and turns its earthquake table
// into typed records.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tableIndex int
	sourceTZ   *time.Location
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a listing client from the run configuration.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		baseURL:    cfg.SourceURL,
		tableIndex: cfg.TableIndex,
		sourceTZ:   cfg.SourceTimezone,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchCurrent downloads the listing and returns the rows whose region label
// contains filter (case-insensitive). An empty filter returns every row.
func (c *Client) FetchCurrent(ctx context.Context, filter string) ([]domain.EarthquakeRecord, error) {
	start := time.Now()
	body, err := c.fetch(ctx)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	records, err := parseListing(body, c.tableIndex, c.sourceTZ)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordsFetched.Add(float64(len(records)))

	matched := domain.FilterRegion(records, filter)
	c.metrics.RecordsMatched.Add(float64(len(matched)))

	c.logger.Debug("listing fetched",
		"url", c.baseURL,
		"rows", len(records),
		"matched", len(matched),
		"region", filter,
	)
	return matched, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, &domain.AcquisitionError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.AcquisitionError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.AcquisitionError{
			Op:  "request",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.AcquisitionError{Op: "read body", Err: err}
	}
	if len(body) == 0 {
		return nil, &domain.AcquisitionError{Op: "read body", Err: errors.New("empty response")}
	}
	return body, nil
}
