// Package filter derives the map's rendered collections from the full
// GTFS collections. Both functions are pure: same input, same output,
// no hidden state, and they never mutate their arguments.
package filter

import (
	"strings"

	"busjp/internal/domain"
)

// MinStopZoom is the lowest zoom level at which individual stops are
// distinguishable enough to be drawn.
const MinStopZoom = 17

// VisibleStops returns the stops to render for a viewport. Below
// MinStopZoom nothing is visible; otherwise every stop inside bounds
// (edges included). The result is never nil and keeps source order.
func VisibleStops(all []domain.Stop, bounds domain.BoundingBox, zoom int) []domain.Stop {
	if zoom < MinStopZoom {
		return []domain.Stop{}
	}

	visible := make([]domain.Stop, 0)
	for _, stop := range all {
		if bounds.Contains(stop.Lat, stop.Lon) {
			visible = append(visible, stop)
		}
	}
	return visible
}

// MatchingRoutes returns the routes whose short or long name contains
// query, ignoring case. A blank query matches nothing.
func MatchingRoutes(all []domain.Route, query string) []domain.Route {
	if strings.TrimSpace(query) == "" {
		return []domain.Route{}
	}

	needle := strings.ToLower(query)
	matches := make([]domain.Route, 0)
	for _, route := range all {
		if strings.Contains(strings.ToLower(route.ShortName), needle) ||
			strings.Contains(strings.ToLower(route.LongName), needle) {
			matches = append(matches, route)
		}
	}
	return matches
}
