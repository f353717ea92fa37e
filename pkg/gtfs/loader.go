package gtfs

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"busjp/internal/domain"
)

const (
	DefaultStopsFile  = "stops.txt"
	DefaultRoutesFile = "routes.txt"
)

// Loader fetches and parses the stop and route files. Every call goes to
// the network; nothing is cached between calls.
type Loader struct {
	fetcher    *Fetcher
	stopsFile  string
	routesFile string
	logger     *slog.Logger
}

func NewLoader(fetcher *Fetcher, stopsFile, routesFile string, logger *slog.Logger) *Loader {
	if stopsFile == "" {
		stopsFile = DefaultStopsFile
	}
	if routesFile == "" {
		routesFile = DefaultRoutesFile
	}
	return &Loader{
		fetcher:    fetcher,
		stopsFile:  stopsFile,
		routesFile: routesFile,
		logger:     logger.With("component", "gtfs_loader"),
	}
}

func (l *Loader) LoadStops(ctx context.Context) ([]domain.Stop, ParseStats, error) {
	data, err := l.fetcher.Fetch(ctx, l.stopsFile)
	if err != nil {
		return nil, ParseStats{}, err
	}

	start := time.Now()
	stops, stats, err := ParseStops(bytes.NewReader(data))
	if err != nil {
		l.logger.Error("failed to parse stops", "file", l.stopsFile, "error", err)
		return nil, stats, err
	}

	l.logParsed(l.stopsFile, stats, start)
	return stops, stats, nil
}

func (l *Loader) LoadRoutes(ctx context.Context) ([]domain.Route, ParseStats, error) {
	data, err := l.fetcher.Fetch(ctx, l.routesFile)
	if err != nil {
		return nil, ParseStats{}, err
	}

	start := time.Now()
	routes, stats, err := ParseRoutes(bytes.NewReader(data))
	if err != nil {
		l.logger.Error("failed to parse routes", "file", l.routesFile, "error", err)
		return nil, stats, err
	}

	l.logParsed(l.routesFile, stats, start)
	return routes, stats, nil
}

func (l *Loader) logParsed(file string, stats ParseStats, start time.Time) {
	if stats.Malformed > 0 {
		l.logger.Warn("rows with malformed numeric fields",
			"file", file,
			"malformed", stats.Malformed,
			"rows", stats.Rows,
		)
	}
	l.logger.Info("parsed "+file,
		"count", stats.Rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
