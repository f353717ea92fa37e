package domain

import (
	"encoding/json"
	"math"
)

// RouteType distinguishes transport types in GTFS
type RouteType int

const (
	RouteTypeUnknown    RouteType = -1
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCableTram  RouteType = 5
	RouteTypeAerialLift RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

func (t RouteType) String() string {
	switch t {
	case RouteTypeTram:
		return "tram"
	case RouteTypeSubway:
		return "subway"
	case RouteTypeRail:
		return "rail"
	case RouteTypeBus:
		return "bus"
	case RouteTypeFerry:
		return "ferry"
	case RouteTypeCableTram:
		return "cable_tram"
	case RouteTypeAerialLift:
		return "aerial_lift"
	case RouteTypeFunicular:
		return "funicular"
	case RouteTypeTrolleybus:
		return "trolleybus"
	case RouteTypeMonorail:
		return "monorail"
	default:
		return "unknown"
	}
}

// Route represents a transit route from routes.txt
type Route struct {
	ID        string    `json:"id"`
	AgencyID  int       `json:"agency_id"`
	ShortName string    `json:"short_name"`
	LongName  string    `json:"long_name"`
	Type      RouteType `json:"type"`
	Color     string    `json:"color"`
	TextColor string    `json:"text_color"`
}

// Stop represents a transit stop from stops.txt.
// Lat and Lon are NaN when the source row carried a malformed coordinate.
type Stop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Desc string  `json:"desc"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// HasValidCoordinates reports whether both coordinates parsed as numbers.
func (s Stop) HasValidCoordinates() bool {
	return !math.IsNaN(s.Lat) && !math.IsNaN(s.Lon)
}

type stopJSON struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Desc string   `json:"desc"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// MarshalJSON encodes malformed (NaN) coordinates as null, which
// encoding/json would otherwise reject.
func (s Stop) MarshalJSON() ([]byte, error) {
	w := stopJSON{ID: s.ID, Name: s.Name, Desc: s.Desc}
	if !math.IsNaN(s.Lat) {
		lat := s.Lat
		w.Lat = &lat
	}
	if !math.IsNaN(s.Lon) {
		lon := s.Lon
		w.Lon = &lon
	}
	return json.Marshal(w)
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	var w stopJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.ID, s.Name, s.Desc = w.ID, w.Name, w.Desc
	s.Lat, s.Lon = math.NaN(), math.NaN()
	if w.Lat != nil {
		s.Lat = *w.Lat
	}
	if w.Lon != nil {
		s.Lon = *w.Lon
	}
	return nil
}
