package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"busjp/internal/cache"
	"busjp/internal/domain"
	"busjp/internal/filter"
	"busjp/internal/ingestor"
	"busjp/internal/shell"
	"busjp/internal/store"
)

// LoadTracker reports ingestor progress
type LoadTracker interface {
	IsReady() bool
	Status() ingestor.LoadStatus
}

// MapSettings is what the browser needs to draw the initial map
type MapSettings struct {
	Center domain.LatLng
	Zoom   int
	Tiles  shell.TileLayers
}

type GTFSHandler struct {
	store   *store.GTFSStore
	cache   cache.Cache
	loads   LoadTracker
	mapConf MapSettings
	logger  *slog.Logger
}

func NewGTFSHandler(store *store.GTFSStore, c cache.Cache, loads LoadTracker, mapConf MapSettings, logger *slog.Logger) *GTFSHandler {
	return &GTFSHandler{
		store:   store,
		cache:   c,
		loads:   loads,
		mapConf: mapConf,
		logger:  logger.With("handler", "gtfs"),
	}
}

func (h *GTFSHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	id := chi.URLParam(r, "id")

	stop, ok := h.store.GetStopByID(id)
	if !ok {
		h.logger.Debug("GetStop not found", "stop_id", id)
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}
	respondJSON(w, http.StatusOK, stop)
}

func (h *GTFSHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	id := chi.URLParam(r, "id")

	route, ok := h.store.GetRouteByID(id)
	if !ok {
		h.logger.Debug("GetRoute not found", "route_id", id)
		respondError(w, http.StatusNotFound, "route not found")
		return
	}
	respondJSON(w, http.StatusOK, route)
}

// GetSync returns the whole catalog, served from the warmed cache when the
// current version is there.
func (h *GTFSHandler) GetSync(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	start := time.Now()

	if !h.loads.IsReady() {
		h.logger.Warn("GetSync called but GTFS data not loaded yet")
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "GTFS data is loading, please retry")
		return
	}

	version := h.store.Version()
	etag := fmt.Sprintf(`"%s"`, version)

	if r.Header.Get("If-None-Match") == etag {
		h.logger.Debug("GetSync not modified (ETag match)")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300")

	if h.cache != nil {
		raw, err := cache.Load(r.Context(), h.cache, version)
		if err == nil && raw != nil {
			ServerStats.IncCacheHits()
			h.logger.Debug("GetSync cache hit", "duration_ms", time.Since(start).Milliseconds())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(raw)
			return
		}
		ServerStats.IncCacheMisses()
	}

	data := cache.BuildSyncData(h.store)

	h.logger.Debug("GetSync response",
		"routes", len(data.Routes),
		"stops", len(data.Stops),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, data)
}

type SyncCheckResponse struct {
	Version    string    `json:"version"`
	HasUpdates bool      `json:"has_updates"`
	LastUpdate time.Time `json:"last_update"`
}

// CheckSync tells a client holding ?since=<version> whether to re-sync
func (h *GTFSHandler) CheckSync(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	if !h.loads.IsReady() {
		w.Header().Set("Retry-After", "30")
		respondError(w, http.StatusServiceUnavailable, "GTFS data is loading, please retry")
		return
	}

	stats := h.store.GetStats()
	since := r.URL.Query().Get("since")

	respondJSON(w, http.StatusOK, SyncCheckResponse{
		Version:    stats.Version,
		HasUpdates: since != stats.Version,
		LastUpdate: stats.LastUpdate,
	})
}

type GTFSStatsResponse struct {
	store.GTFSStats
	Ready bool                `json:"ready"`
	Load  ingestor.LoadStatus `json:"load"`
}

func (h *GTFSHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	respondJSON(w, http.StatusOK, GTFSStatsResponse{
		GTFSStats: h.store.GetStats(),
		Ready:     h.loads.IsReady(),
		Load:      h.loads.Status(),
	})
}

type MapConfigResponse struct {
	Center      domain.LatLng   `json:"center"`
	Zoom        int             `json:"zoom"`
	MinStopZoom int             `json:"min_stop_zoom"`
	LocateZoom  int             `json:"locate_zoom"`
	DarkMode    bool            `json:"dark_mode"`
	TileLayer   shell.TileLayer `json:"tile_layer"`
}

// GetMapConfig returns the initial map setup; ?dark=1 selects the dark tiles
func (h *GTFSHandler) GetMapConfig(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	dark := isTruthy(r.URL.Query().Get("dark"))

	respondJSON(w, http.StatusOK, MapConfigResponse{
		Center:      h.mapConf.Center,
		Zoom:        h.mapConf.Zoom,
		MinStopZoom: filter.MinStopZoom,
		LocateZoom:  shell.LocateZoom,
		DarkMode:    dark,
		TileLayer:   h.mapConf.Tiles.For(dark),
	})
}
