package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"busjp/internal/middleware"
	"busjp/internal/store"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	locateRequests   atomic.Int64
	locateFailures   atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	rateLimitBlocked atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()           { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()      { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()      { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()       { s.wsMessagesIn.Add(1) }
func (s *Stats) AddWSMessagesOut(n int) { s.wsMessagesOut.Add(int64(n)) }
func (s *Stats) IncLocateRequests()     { s.locateRequests.Add(1) }
func (s *Stats) IncLocateFailures()     { s.locateFailures.Add(1) }
func (s *Stats) IncCacheHits()          { s.cacheHits.Add(1) }
func (s *Stats) IncCacheMisses()        { s.cacheMisses.Add(1) }
func (s *Stats) IncRateLimitBlocked()   { s.rateLimitBlocked.Add(1) }

// ClientCounter reports connected WebSocket sessions
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	store   *store.GTFSStore
	clients ClientCounter
	limiter *middleware.RateLimiter
}

func NewStatsHandler(s *store.GTFSStore, clients ClientCounter, limiter *middleware.RateLimiter) *StatsHandler {
	return &StatsHandler{
		store:   s,
		clients: clients,
		limiter: limiter,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse      `json:"server"`
	GTFS      CatalogStatsResponse     `json:"gtfs"`
	WebSocket WebSocketStatsResponse   `json:"websocket"`
	Cache     CacheStatsResponse       `json:"cache"`
	RateLimit *middleware.LimiterStats `json:"rate_limit,omitempty"`
	Go        GoStatsResponse          `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
}

type CatalogStatsResponse struct {
	Routes     int       `json:"routes"`
	Stops      int       `json:"stops"`
	IsLoaded   bool      `json:"is_loaded"`
	LastUpdate time.Time `json:"last_update"`
	Version    string    `json:"version"`
}

type WebSocketStatsResponse struct {
	Sessions       int   `json:"sessions"`
	Connections    int64 `json:"connections"`
	MessagesIn     int64 `json:"messages_in"`
	MessagesOut    int64 `json:"messages_out"`
	LocateRequests int64 `json:"locate_requests"`
	LocateFailures int64 `json:"locate_failures"`
}

type CacheStatsResponse struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"hit_ratio"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	uptime := time.Since(ServerStats.startTime)
	gtfsStats := h.store.GetStats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hits := ServerStats.cacheHits.Load()
	misses := ServerStats.cacheMisses.Load()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	sessions := 0
	if h.clients != nil {
		sessions = h.clients.ClientCount()
	}

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
		},
		GTFS: CatalogStatsResponse{
			Routes:     gtfsStats.RoutesCount,
			Stops:      gtfsStats.StopsCount,
			IsLoaded:   gtfsStats.IsLoaded,
			LastUpdate: gtfsStats.LastUpdate,
			Version:    gtfsStats.Version,
		},
		WebSocket: WebSocketStatsResponse{
			Sessions:       sessions,
			Connections:    ServerStats.wsConnections.Load(),
			MessagesIn:     ServerStats.wsMessagesIn.Load(),
			MessagesOut:    ServerStats.wsMessagesOut.Load(),
			LocateRequests: ServerStats.locateRequests.Load(),
			LocateFailures: ServerStats.locateFailures.Load(),
		},
		Cache: CacheStatsResponse{
			Hits:   hits,
			Misses: misses,
			Ratio:  ratio,
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	if h.limiter != nil {
		ls := h.limiter.Stats()
		response.RateLimit = &ls
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
