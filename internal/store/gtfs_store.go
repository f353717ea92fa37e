package store

import (
	"fmt"
	"sync"
	"time"

	"busjp/internal/domain"
	"busjp/internal/filter"
)

// GTFSStore holds the full stop and route collections. Each collection is
// replaced wholesale on load and never mutated in place, so readers get
// stable slices.
type GTFSStore struct {
	mu         sync.RWMutex
	stops      []domain.Stop
	routes     []domain.Route
	stopsByID  map[string]int
	routesByID map[string]int
	unplaced   int

	stopsUpdated  time.Time
	routesUpdated time.Time
	generation    uint64
}

func NewGTFSStore() *GTFSStore {
	return &GTFSStore{
		stops:      []domain.Stop{},
		routes:     []domain.Route{},
		stopsByID:  make(map[string]int),
		routesByID: make(map[string]int),
	}
}

func (s *GTFSStore) SetStops(stops []domain.Stop) {
	byID := make(map[string]int, len(stops))
	unplaced := 0
	for i, stop := range stops {
		byID[stop.ID] = i
		if !stop.HasValidCoordinates() {
			unplaced++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops = stops
	s.stopsByID = byID
	s.unplaced = unplaced
	s.stopsUpdated = time.Now()
	s.generation++
}

func (s *GTFSStore) SetRoutes(routes []domain.Route) {
	byID := make(map[string]int, len(routes))
	for i, route := range routes {
		byID[route.ID] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.routes = routes
	s.routesByID = byID
	s.routesUpdated = time.Now()
	s.generation++
}

// Stops returns the full stop collection in source order
func (s *GTFSStore) Stops() []domain.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Stop, len(s.stops))
	copy(result, s.stops)
	return result
}

// Routes returns the full route collection in source order
func (s *GTFSStore) Routes() []domain.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Route, len(s.routes))
	copy(result, s.routes)
	return result
}

func (s *GTFSStore) GetStopByID(id string) (domain.Stop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.stopsByID[id]
	if !ok {
		return domain.Stop{}, false
	}
	return s.stops[i], true
}

func (s *GTFSStore) GetRouteByID(id string) (domain.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.routesByID[id]
	if !ok {
		return domain.Route{}, false
	}
	return s.routes[i], true
}

// VisibleStops scans the current stops without copying the collection first
func (s *GTFSStore) VisibleStops(bounds domain.BoundingBox, zoom int) []domain.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter.VisibleStops(s.stops, bounds, zoom)
}

func (s *GTFSStore) MatchingRoutes(query string) []domain.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter.MatchingRoutes(s.routes, query)
}

// Version identifies the current pair of collections; it changes on every load
func (s *GTFSStore) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionLocked()
}

func (s *GTFSStore) versionLocked() string {
	return fmt.Sprintf("%d-%x", s.generation, s.lastUpdateLocked().UnixNano())
}

func (s *GTFSStore) lastUpdateLocked() time.Time {
	if s.stopsUpdated.After(s.routesUpdated) {
		return s.stopsUpdated
	}
	return s.routesUpdated
}

type GTFSStats struct {
	StopsCount    int       `json:"stops_count"`
	StopsUnplaced int       `json:"stops_unplaced"`
	RoutesCount   int       `json:"routes_count"`
	StopsLoaded   bool      `json:"stops_loaded"`
	RoutesLoaded  bool      `json:"routes_loaded"`
	StopsUpdated  time.Time `json:"stops_updated"`
	RoutesUpdated time.Time `json:"routes_updated"`
	LastUpdate    time.Time `json:"last_update"`
	IsLoaded      bool      `json:"is_loaded"`
	Version       string    `json:"version"`
}

func (s *GTFSStore) GetStats() GTFSStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stopsLoaded := !s.stopsUpdated.IsZero()
	routesLoaded := !s.routesUpdated.IsZero()

	return GTFSStats{
		StopsCount:    len(s.stops),
		StopsUnplaced: s.unplaced,
		RoutesCount:   len(s.routes),
		StopsLoaded:   stopsLoaded,
		RoutesLoaded:  routesLoaded,
		StopsUpdated:  s.stopsUpdated,
		RoutesUpdated: s.routesUpdated,
		LastUpdate:    s.lastUpdateLocked(),
		IsLoaded:      stopsLoaded && routesLoaded,
		Version:       s.versionLocked(),
	}
}
