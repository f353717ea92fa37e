// Package shell keeps the per-browser map state and decides when the
// derived collections (visible stops, matching routes) are recomputed.
//
// Stops are rescanned only when the viewport changes or the stop
// collection arrives; routes only when the query changes or the route
// collection arrives. UI toggles never touch either collection.
package shell

import (
	"context"
	"log/slog"
	"sync"

	"busjp/internal/domain"
	"busjp/internal/geo"
)

const (
	// LocateZoom is the zoom the map jumps to after a successful locate
	LocateZoom = 18

	DefaultScreenWidth  = 1024
	DefaultScreenHeight = 768
)

// Catalog is the read side of the loaded GTFS collections.
type Catalog interface {
	VisibleStops(bounds domain.BoundingBox, zoom int) []domain.Stop
	MatchingRoutes(query string) []domain.Route
}

// TileLayer is an opaque tile endpoint handed to the browser map
type TileLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
}

// TileLayers holds the light and dark alternatives
type TileLayers struct {
	Light TileLayer
	Dark  TileLayer
}

func (t TileLayers) For(dark bool) TileLayer {
	if dark {
		return t.Dark
	}
	return t.Light
}

// View is where the shell moved the map
type View struct {
	Center domain.LatLng `json:"center"`
	Zoom   int           `json:"zoom"`
}

// State is the UI state pushed to the browser
type State struct {
	DarkMode       bool             `json:"darkMode"`
	SearchExpanded bool             `json:"searchExpanded"`
	Query          string           `json:"query"`
	TileLayer      TileLayer        `json:"tileLayer"`
	Viewport       *domain.Viewport `json:"viewport,omitempty"`
	UserLocation   *domain.LatLng   `json:"userLocation,omitempty"`
	VisibleStops   int              `json:"visibleStops"`
	MatchingRoutes int              `json:"matchingRoutes"`
}

// Update describes what an operation changed. Nil fields were not touched
// and need not be re-sent.
type Update struct {
	Stops  []domain.Stop
	Routes []domain.Route
	View   *View
	State  *State
}

// Empty reports whether the update carries nothing to send
func (u Update) Empty() bool {
	return u.Stops == nil && u.Routes == nil && u.View == nil && u.State == nil
}

type Session struct {
	mu      sync.Mutex
	catalog Catalog
	tiles   TileLayers
	logger  *slog.Logger

	darkMode       bool
	searchExpanded bool
	query          string

	viewport     domain.Viewport
	hasViewport  bool
	screenWidth  int
	screenHeight int
	userLocation *domain.LatLng

	visibleStops   []domain.Stop
	matchingRoutes []domain.Route
}

func NewSession(catalog Catalog, tiles TileLayers, logger *slog.Logger) *Session {
	return &Session{
		catalog:        catalog,
		tiles:          tiles,
		logger:         logger,
		screenWidth:    DefaultScreenWidth,
		screenHeight:   DefaultScreenHeight,
		visibleStops:   []domain.Stop{},
		matchingRoutes: []domain.Route{},
	}
}

// SetViewport records a pan or zoom and recomputes the visible stops.
// Repeating the current viewport is a no-op.
func (s *Session) SetViewport(vp domain.Viewport) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasViewport && s.viewport.Equal(vp) {
		return Update{}
	}
	s.viewport = vp
	s.hasViewport = true

	return Update{Stops: s.refreshStopsLocked()}
}

// SetScreen remembers the map size in pixels; it only matters for recentering.
func (s *Session) SetScreen(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.mu.Lock()
	s.screenWidth, s.screenHeight = width, height
	s.mu.Unlock()
}

// SetQuery records new search text and recomputes the matching routes.
func (s *Session) SetQuery(query string) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = query
	return Update{Routes: s.refreshRoutesLocked()}
}

func (s *Session) ToggleDarkMode() Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.darkMode = !s.darkMode
	state := s.stateLocked()
	return Update{State: &state}
}

func (s *Session) ToggleSearch() Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchExpanded = !s.searchExpanded
	state := s.stateLocked()
	return Update{State: &state}
}

// StopsLoaded runs the first stop pass once the collection is available.
// Without a known viewport there is nothing to filter yet.
func (s *Session) StopsLoaded() Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasViewport {
		return Update{}
	}
	return Update{Stops: s.refreshStopsLocked()}
}

// RoutesLoaded re-applies the current query to the new route collection.
func (s *Session) RoutesLoaded() Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Update{Routes: s.refreshRoutesLocked()}
}

// ApplyLocation places the user marker and centers the map on it at
// LocateZoom. Concurrent calls resolve last-wins.
func (s *Session) ApplyLocation(loc domain.LatLng) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userLocation = &loc
	s.viewport = geo.ViewportAround(loc, LocateZoom, s.screenWidth, s.screenHeight)
	s.hasViewport = true

	stops := s.refreshStopsLocked()
	state := s.stateLocked()
	return Update{
		Stops: stops,
		View:  &View{Center: loc, Zoom: LocateZoom},
		State: &state,
	}
}

// Snapshot returns the current UI state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// VisibleStops returns the last computed visible stops
func (s *Session) VisibleStops() []domain.Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleStops
}

// MatchingRoutes returns the last computed route matches
func (s *Session) MatchingRoutes() []domain.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchingRoutes
}

// Locate asks loc for the user's position in the background. On success
// the map is recentered and notify receives the update; on failure the
// marker stays absent. Requests are neither retried nor de-duplicated.
func (s *Session) Locate(ctx context.Context, loc Locator, notify func(Update)) {
	go func() {
		pos, err := loc.Locate(ctx)
		if err != nil {
			s.logger.Debug("locate failed", "error", err)
			return
		}
		u := s.ApplyLocation(pos)
		if notify != nil {
			notify(u)
		}
	}()
}

func (s *Session) refreshStopsLocked() []domain.Stop {
	s.visibleStops = s.catalog.VisibleStops(s.viewport.Bounds, s.viewport.Zoom)
	return s.visibleStops
}

func (s *Session) refreshRoutesLocked() []domain.Route {
	s.matchingRoutes = s.catalog.MatchingRoutes(s.query)
	return s.matchingRoutes
}

func (s *Session) stateLocked() State {
	st := State{
		DarkMode:       s.darkMode,
		SearchExpanded: s.searchExpanded,
		Query:          s.query,
		TileLayer:      s.tiles.For(s.darkMode),
		VisibleStops:   len(s.visibleStops),
		MatchingRoutes: len(s.matchingRoutes),
	}
	if s.hasViewport {
		vp := s.viewport
		st.Viewport = &vp
	}
	if s.userLocation != nil {
		loc := *s.userLocation
		st.UserLocation = &loc
	}
	return st
}
