package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"busjp/internal/store"
)

type HealthHandler struct {
	loads LoadTracker
	store *store.GTFSStore
}

func NewHealthHandler(loads LoadTracker, s *store.GTFSStore) *HealthHandler {
	return &HealthHandler{
		loads: loads,
		store: s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	StopCount  int       `json:"stopCount"`
	RouteCount int       `json:"routeCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.loads.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	stats := h.store.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		StopCount:  stats.StopsCount,
		RouteCount: stats.RoutesCount,
		ServerTime: time.Now(),
	})
}
