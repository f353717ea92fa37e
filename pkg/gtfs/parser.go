package gtfs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"busjp/internal/domain"
)

// ParseStats describes one parsed file. Malformed counts rows with at
// least one field that failed numeric coercion; those rows are still
// returned with NaN or fallback values.
type ParseStats struct {
	Rows      int `json:"rows"`
	Malformed int `json:"malformed"`
}

// ParseStops decodes stops.txt content.
func ParseStops(r io.Reader) ([]domain.Stop, ParseStats, error) {
	var stats ParseStats
	stops := make([]domain.Stop, 0)

	err := readRecords(r, func(record []string, idx map[string]int) {
		lat, latOK := parseCoordinate(getField(record, idx, "stop_lat"))
		lon, lonOK := parseCoordinate(getField(record, idx, "stop_lon"))

		stats.Rows++
		if !latOK || !lonOK {
			stats.Malformed++
		}

		stops = append(stops, domain.Stop{
			ID:   strings.TrimSpace(getField(record, idx, "stop_id")),
			Name: getField(record, idx, "stop_name"),
			Desc: getField(record, idx, "stop_desc"),
			Lat:  lat,
			Lon:  lon,
		})
	})
	if err != nil {
		return nil, stats, fmt.Errorf("parse stops: %w", err)
	}

	return stops, stats, nil
}

// ParseRoutes decodes routes.txt content.
func ParseRoutes(r io.Reader) ([]domain.Route, ParseStats, error) {
	var stats ParseStats
	routes := make([]domain.Route, 0)

	err := readRecords(r, func(record []string, idx map[string]int) {
		malformed := false

		agencyID := 0
		if v := strings.TrimSpace(getField(record, idx, "agency_id")); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				agencyID = parsed
			} else {
				malformed = true
			}
		}

		routeType := domain.RouteTypeBus
		if v := strings.TrimSpace(getField(record, idx, "route_type")); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				routeType = domain.RouteType(parsed)
			} else {
				routeType = domain.RouteTypeUnknown
				malformed = true
			}
		}

		stats.Rows++
		if malformed {
			stats.Malformed++
		}

		routes = append(routes, domain.Route{
			ID:        strings.TrimSpace(getField(record, idx, "route_id")),
			AgencyID:  agencyID,
			ShortName: getField(record, idx, "route_short_name"),
			LongName:  getField(record, idx, "route_long_name"),
			Type:      routeType,
			Color:     getField(record, idx, "route_color"),
			TextColor: getField(record, idx, "route_text_color"),
		})
	})
	if err != nil {
		return nil, stats, fmt.Errorf("parse routes: %w", err)
	}

	return routes, stats, nil
}

// readRecords reads a header row and calls fn for every following record.
// encoding/csv already skips empty lines; rows made only of blank fields
// are skipped too.
func readRecords(r io.Reader, fn func(record []string, idx map[string]int)) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	idx := makeIndex(header)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		if isBlank(record) {
			continue
		}
		fn(record, idx)
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\xef\xbb\xbf")
		}
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return record[i]
	}
	return ""
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseCoordinate returns NaN for anything that is not a finite number.
func parseCoordinate(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}
