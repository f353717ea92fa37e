package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"busjp/internal/domain"
	"busjp/internal/hub"
	"busjp/internal/store"
	"busjp/pkg/gtfs"
)

// CatalogLoader produces the stop and route collections
type CatalogLoader interface {
	LoadStops(ctx context.Context) ([]domain.Stop, gtfs.ParseStats, error)
	LoadRoutes(ctx context.Context) ([]domain.Route, gtfs.ParseStats, error)
}

type Broadcaster interface {
	Broadcast(ev hub.Event)
}

// LoadStatus describes the outcome of the most recent load round
type LoadStatus struct {
	Rounds          int       `json:"rounds"`
	LastRound       time.Time `json:"last_round"`
	StopsError      string    `json:"stops_error,omitempty"`
	RoutesError     string    `json:"routes_error,omitempty"`
	StopsMalformed  int       `json:"stops_malformed"`
	RoutesMalformed int       `json:"routes_malformed"`
}

// GTFSIngestor loads stops and routes into the store. The two loads are
// independent: one failing leaves the other's collection in place, and a
// failed load keeps whatever collection was there before.
type GTFSIngestor struct {
	loader          CatalogLoader
	store           *store.GTFSStore
	broadcaster     Broadcaster
	refreshInterval time.Duration
	logger          *slog.Logger
	onUpdate        func(context.Context)

	ready   bool
	readyMu sync.RWMutex

	statusMu sync.RWMutex
	status   LoadStatus
}

// NewGTFSIngestor creates an ingestor. A zero refreshInterval loads once.
func NewGTFSIngestor(loader CatalogLoader, store *store.GTFSStore, broadcaster Broadcaster, refreshInterval time.Duration, logger *slog.Logger) *GTFSIngestor {
	return &GTFSIngestor{
		loader:          loader,
		store:           store,
		broadcaster:     broadcaster,
		refreshInterval: refreshInterval,
		logger:          logger.With("component", "gtfs_ingestor"),
	}
}

func (i *GTFSIngestor) Start(ctx context.Context) {
	i.update(ctx)

	if i.refreshInterval <= 0 {
		return
	}

	ticker := time.NewTicker(i.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.update(ctx)
		}
	}
}

func (i *GTFSIngestor) update(ctx context.Context) {
	i.logger.Info("starting GTFS load")
	start := time.Now()

	var (
		wg         sync.WaitGroup
		stopsErr   error
		routesErr  error
		stopsStat  gtfs.ParseStats
		routesStat gtfs.ParseStats
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stops, stats, err := i.loader.LoadStops(ctx)
		stopsStat = stats
		if err != nil {
			stopsErr = err
			i.logger.Error("failed to load stops", "error", err)
			return
		}
		i.store.SetStops(stops)
		i.broadcast(hub.EventStopsLoaded)
		i.logger.Info("stops loaded", "count", len(stops))
	}()
	go func() {
		defer wg.Done()
		routes, stats, err := i.loader.LoadRoutes(ctx)
		routesStat = stats
		if err != nil {
			routesErr = err
			i.logger.Error("failed to load routes", "error", err)
			return
		}
		i.store.SetRoutes(routes)
		i.broadcast(hub.EventRoutesLoaded)
		i.logger.Info("routes loaded", "count", len(routes))
	}()
	wg.Wait()

	i.recordRound(stopsErr, routesErr, stopsStat, routesStat)

	if !i.IsReady() {
		i.setReady(true)
	}

	if stopsErr == nil || routesErr == nil {
		if i.onUpdate != nil {
			i.onUpdate(ctx)
		}
	}

	i.logger.Info("GTFS load completed",
		"total_duration", time.Since(start),
		"stops_ok", stopsErr == nil,
		"routes_ok", routesErr == nil,
	)
}

func (i *GTFSIngestor) broadcast(ev hub.Event) {
	if i.broadcaster != nil {
		i.broadcaster.Broadcast(ev)
	}
}

func (i *GTFSIngestor) recordRound(stopsErr, routesErr error, stopsStat, routesStat gtfs.ParseStats) {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()

	i.status.Rounds++
	i.status.LastRound = time.Now()
	i.status.StopsError = errString(stopsErr)
	i.status.RoutesError = errString(routesErr)
	i.status.StopsMalformed = stopsStat.Malformed
	i.status.RoutesMalformed = routesStat.Malformed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Status returns the outcome of the latest load round
func (i *GTFSIngestor) Status() LoadStatus {
	i.statusMu.RLock()
	defer i.statusMu.RUnlock()
	return i.status
}

// IsReady reports whether the first load round has finished, successful or not
func (i *GTFSIngestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *GTFSIngestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}

// SetOnUpdate registers fn to run after every round where at least one
// collection was replaced. Call before Start.
func (i *GTFSIngestor) SetOnUpdate(fn func(context.Context)) {
	i.onUpdate = fn
}
