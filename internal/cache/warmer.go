package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"busjp/internal/domain"
	"busjp/internal/store"
)

// SyncData is the full catalog served by the sync endpoint
type SyncData struct {
	Routes      []domain.Route `json:"routes"`
	Stops       []domain.Stop  `json:"stops"`
	Version     string         `json:"version"`
	GeneratedAt time.Time      `json:"generated_at"`
}

func BuildSyncData(s *store.GTFSStore) *SyncData {
	return &SyncData{
		Routes:      s.Routes(),
		Stops:       s.Stops(),
		Version:     s.Version(),
		GeneratedAt: time.Now(),
	}
}

// CatalogWarmer pre-builds the compressed sync payload after every load
type CatalogWarmer struct {
	cache  Cache
	store  *store.GTFSStore
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	lastKey string
	swept   bool
}

func NewCatalogWarmer(cache Cache, store *store.GTFSStore, ttl time.Duration, logger *slog.Logger) *CatalogWarmer {
	return &CatalogWarmer{
		cache:  cache,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "cache_warmer"),
	}
}

// Warm stores the current catalog and drops the previous version's entry.
// The first call also sweeps catalog entries left by earlier processes.
func (w *CatalogWarmer) Warm(ctx context.Context) error {
	start := time.Now()
	w.sweep(ctx)

	data := BuildSyncData(w.store)
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sync data: %w", err)
	}

	key := KeyCatalog(data.Version)
	if err := SetCompressed(ctx, w.cache, key, raw, w.ttl); err != nil {
		return fmt.Errorf("store sync data: %w", err)
	}

	w.mu.Lock()
	prev := w.lastKey
	w.lastKey = key
	w.mu.Unlock()

	if prev != "" && prev != key {
		if err := w.cache.Delete(ctx, prev); err != nil {
			w.logger.Warn("failed to drop stale catalog", "key", prev, "error", err)
		}
	}

	w.logger.Info("warmed sync data",
		"routes", len(data.Routes),
		"stops", len(data.Stops),
		"version", data.Version,
		"size_bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *CatalogWarmer) sweep(ctx context.Context) {
	w.mu.Lock()
	done := w.swept
	w.swept = true
	w.mu.Unlock()

	pd, ok := w.cache.(PrefixDeleter)
	if done || !ok {
		return
	}
	n, err := pd.DeletePrefix(ctx, KeyCatalogPrefix)
	if err != nil {
		w.logger.Warn("failed to sweep stale catalogs", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("swept stale catalogs", "count", n)
	}
}

// OnUpdate adapts Warm to the ingestor's update hook
func (w *CatalogWarmer) OnUpdate(ctx context.Context) {
	if err := w.Warm(ctx); err != nil {
		w.logger.Error("cache warming failed", "error", err)
	}
}

// Load returns the raw JSON for version, or nil when it is not cached
func Load(ctx context.Context, c Cache, version string) ([]byte, error) {
	return GetCompressed(ctx, c, KeyCatalog(version))
}
