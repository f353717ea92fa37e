package gtfs

import (
	"errors"
	"math"
	"strings"
	"testing"
	"testing/iotest"

	"busjp/internal/domain"
)

func TestParseStops(t *testing.T) {
	input := "stop_id,stop_name,stop_desc,stop_lat,stop_lon\n" +
		"S1,Main St,,-23.55,-46.63\n" +
		"\n" +
		"S2,2nd Ave,Near park,-23.56,-46.64\n"

	stops, stats, err := ParseStops(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseStops: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("got %d stops, want 2", len(stops))
	}
	if stats.Rows != 2 || stats.Malformed != 0 {
		t.Errorf("stats = %+v, want 2 rows, 0 malformed", stats)
	}

	want := domain.Stop{ID: "S2", Name: "2nd Ave", Desc: "Near park", Lat: -23.56, Lon: -46.64}
	if stops[1] != want {
		t.Errorf("stops[1] = %+v, want %+v", stops[1], want)
	}
	if stops[0].Desc != "" {
		t.Errorf("stops[0].Desc = %q, want empty", stops[0].Desc)
	}
}

func TestParseStops_ColumnOrderAndBOM(t *testing.T) {
	input := "\xef\xbb\xbfstop_lon,stop_lat,stop_id,stop_name,zone_id\n" +
		"-46.63,-23.55,1001,Praça da Sé,A\n"

	stops, _, err := ParseStops(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseStops: %v", err)
	}
	if len(stops) != 1 {
		t.Fatalf("got %d stops, want 1", len(stops))
	}
	s := stops[0]
	if s.ID != "1001" || s.Name != "Praça da Sé" || s.Lat != -23.55 || s.Lon != -46.63 {
		t.Errorf("unexpected stop %+v", s)
	}
}

func TestParseStops_MalformedCoordinates(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"non-numeric lat", "X1,Bad,,north,-46.63"},
		{"empty lon", "X2,Bad,,-23.55,"},
		{"infinite lat", "X3,Bad,,Inf,-46.63"},
		{"missing columns", "X4,Bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "stop_id,stop_name,stop_desc,stop_lat,stop_lon\n" + tt.row + "\n"
			stops, stats, err := ParseStops(strings.NewReader(input))
			if err != nil {
				t.Fatalf("ParseStops: %v", err)
			}
			if len(stops) != 1 {
				t.Fatalf("got %d stops, want 1", len(stops))
			}
			if stats.Malformed != 1 {
				t.Errorf("malformed = %d, want 1", stats.Malformed)
			}
			if stops[0].HasValidCoordinates() {
				t.Errorf("stop %+v should have invalid coordinates", stops[0])
			}
			if !math.IsNaN(stops[0].Lat) && !math.IsNaN(stops[0].Lon) {
				t.Errorf("expected a NaN coordinate, got %+v", stops[0])
			}
		})
	}
}

func TestParseStops_Empty(t *testing.T) {
	for _, input := range []string{"", "stop_id,stop_name,stop_desc,stop_lat,stop_lon\n"} {
		stops, stats, err := ParseStops(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseStops(%q): %v", input, err)
		}
		if len(stops) != 0 || stats.Rows != 0 {
			t.Errorf("ParseStops(%q) = %d stops, want 0", input, len(stops))
		}
	}
}

func TestParseStops_BlankRowsSkipped(t *testing.T) {
	input := "stop_id,stop_name,stop_desc,stop_lat,stop_lon\n" +
		",,,,\n" +
		"S1,Main St,,-23.55,-46.63\n" +
		"\n\n"

	stops, _, err := ParseStops(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseStops: %v", err)
	}
	if len(stops) != 1 || stops[0].ID != "S1" {
		t.Errorf("got %+v, want only S1", stops)
	}
}

func TestParseRoutes(t *testing.T) {
	input := "route_id,agency_id,route_short_name,route_long_name,route_type,route_color,route_text_color\n" +
		"10,1,10,Downtown Express,3,FF0000,FFFFFF\n" +
		"21,1,21,\"Airport Loop, via Terminal 2\",,00FF00,000000\n" +
		"M1,SPTRANS,M1,Metro Line,1,,\n" +
		"T1,1,T1,Tram,tram,,\n"

	routes, stats, err := ParseRoutes(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseRoutes: %v", err)
	}
	if len(routes) != 4 {
		t.Fatalf("got %d routes, want 4", len(routes))
	}
	if stats.Malformed != 2 {
		t.Errorf("malformed = %d, want 2", stats.Malformed)
	}

	tests := []struct {
		idx       int
		id        string
		agency    int
		longName  string
		routeType domain.RouteType
	}{
		{0, "10", 1, "Downtown Express", domain.RouteTypeBus},
		{1, "21", 1, "Airport Loop, via Terminal 2", domain.RouteTypeBus},
		{2, "M1", 0, "Metro Line", domain.RouteTypeSubway},
		{3, "T1", 1, "Tram", domain.RouteTypeUnknown},
	}

	for _, tt := range tests {
		r := routes[tt.idx]
		if r.ID != tt.id || r.AgencyID != tt.agency || r.LongName != tt.longName || r.Type != tt.routeType {
			t.Errorf("routes[%d] = %+v, want id=%s agency=%d long=%q type=%v",
				tt.idx, r, tt.id, tt.agency, tt.longName, tt.routeType)
		}
	}
	if routes[0].Color != "FF0000" || routes[0].TextColor != "FFFFFF" {
		t.Errorf("colors = %q/%q", routes[0].Color, routes[0].TextColor)
	}
}

func TestParseRoutes_ReadError(t *testing.T) {
	_, _, err := ParseRoutes(iotest.ErrReader(errors.New("connection reset")))
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error %q does not wrap the read error", err)
	}
}

func TestParseStops_KeepsTextWhitespace(t *testing.T) {
	input := "stop_id, stop_name,stop_desc,stop_lat,stop_lon\n" +
		" S1,  Main St , corner , -23.55, -46.63\n"

	stops, stats, err := ParseStops(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseStops: %v", err)
	}
	if len(stops) != 1 || stats.Malformed != 0 {
		t.Fatalf("got %+v (%+v), want one well-formed stop", stops, stats)
	}

	s := stops[0]
	if s.ID != "S1" {
		t.Errorf("ID = %q, want trimmed S1", s.ID)
	}
	if s.Name != "  Main St " || s.Desc != " corner " {
		t.Errorf("Name = %q, Desc = %q; text fields must be kept verbatim", s.Name, s.Desc)
	}
	if s.Lat != -23.55 || s.Lon != -46.63 {
		t.Errorf("coordinates = %v,%v", s.Lat, s.Lon)
	}
}
