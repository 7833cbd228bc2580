package datamart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/firewx/bcfireweather/internal/metrics"
)

// DefaultBaseURL is the BC Wildfire Service Data Mart archive. One CSV file
// is published per calendar day, keyed by year and ISO date.
const DefaultBaseURL = "https://www.for.gov.bc.ca/ftp/HPR/external/!publish/BCWS_DATA_MART"

// ErrNotPublished signals that the source has no file for the requested
// date. Callers treat this as a zero-count day, not a failure.
var ErrNotPublished = errors.New("datamart: file not published for date")

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// FetchDay downloads the raw CSV bytes for one calendar date. A 404 from
// the source maps to ErrNotPublished. Server errors and network failures
// are retried with exponential backoff before being surfaced as transient
// failures.
func (c *Client) FetchDay(ctx context.Context, date time.Time) ([]byte, error) {
	url := fmt.Sprintf("%s/%d/%s.csv", c.baseURL, date.Year(), date.Format("2006-01-02"))

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotPublished)
		case resp.StatusCode >= 500:
			return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", url, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))

	switch {
	case errors.Is(err, ErrNotPublished):
		metrics.DataMartFetches.WithLabelValues("not_published").Inc()
		return nil, ErrNotPublished
	case err != nil:
		metrics.DataMartFetches.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.DataMartFetches.WithLabelValues("ok").Inc()
	c.logger.Debug("fetched day file", "date", date.Format("2006-01-02"), "bytes", len(body))
	return body, nil
}
