package gtfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Fetcher downloads individual GTFS text files published under a base URL,
// e.g. http://host/gtfs/stops.txt.
type Fetcher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. A zero timeout leaves requests bounded only
// by the caller's context.
func NewFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "gtfs_fetcher"),
	}
}

// ResourceURL returns the absolute URL of a named resource
func (f *Fetcher) ResourceURL(name string) string {
	return f.baseURL + "/" + strings.TrimLeft(name, "/")
}

// Fetch reads the full body of a named resource.
func (f *Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	resourceURL := f.ResourceURL(name)

	f.logger.Debug("fetching GTFS resource", "url", resourceURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "BusJP-Backend/1.0")
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("failed to fetch GTFS resource",
			"url", resourceURL,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	f.logger.Debug("received HTTP response",
		"url", resourceURL,
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("unexpected HTTP status",
			"url", resourceURL,
			"status_code", resp.StatusCode,
			"status", resp.Status,
		)
		return nil, fmt.Errorf("fetch %s: unexpected status: %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", name, err)
	}

	f.logger.Info("GTFS resource fetched",
		"name", name,
		"size_kb", fmt.Sprintf("%.1f", float64(len(data))/1024),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return data, nil
}
