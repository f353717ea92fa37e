package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"busjp/internal/domain"
	"busjp/internal/filter"
	"busjp/internal/geo"
	"busjp/internal/store"
)

var validate = validator.New()

// QueryHandler serves the two filters over plain HTTP
type QueryHandler struct {
	store  *store.GTFSStore
	logger *slog.Logger
}

func NewQueryHandler(store *store.GTFSStore, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		store:  store,
		logger: logger.With("handler", "query"),
	}
}

type StopsResponse struct {
	Stops      []domain.Stop `json:"stops"`
	Count      int           `json:"count"`
	Zoom       int           `json:"zoom"`
	MinZoom    int           `json:"min_zoom"`
	ServerTime time.Time     `json:"server_time"`
}

// ListStops returns the stops visible in ?bbox=minLat,minLon,maxLat,maxLon
// at ?zoom=N, or inside a single slippy tile given as ?tile=z/x/y.
func (h *QueryHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	vp, err := parseViewport(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stops := h.store.VisibleStops(vp.Bounds, vp.Zoom)

	center := vp.Bounds.Center()
	h.logger.Debug("ListStops response",
		"zoom", vp.Zoom,
		"center_tile", geo.TileID(center.Lat, center.Lon, vp.Zoom),
		"count", len(stops),
	)

	respondJSON(w, http.StatusOK, StopsResponse{
		Stops:      stops,
		Count:      len(stops),
		Zoom:       vp.Zoom,
		MinZoom:    filter.MinStopZoom,
		ServerTime: time.Now(),
	})
}

type RoutesResponse struct {
	Routes     []domain.Route `json:"routes"`
	Count      int            `json:"count"`
	Query      string         `json:"query"`
	ServerTime time.Time      `json:"server_time"`
}

// ListRoutes returns the routes matching ?q=. A blank query matches
// nothing unless ?all=1 asks for the full collection.
func (h *QueryHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	q := r.URL.Query()
	query := q.Get("q")

	var routes []domain.Route
	if strings.TrimSpace(query) == "" && isTruthy(q.Get("all")) {
		routes = h.store.Routes()
	} else {
		routes = h.store.MatchingRoutes(query)
	}

	h.logger.Debug("ListRoutes response", "query", query, "count", len(routes))

	respondJSON(w, http.StatusOK, RoutesResponse{
		Routes:     routes,
		Count:      len(routes),
		Query:      query,
		ServerTime: time.Now(),
	})
}

func parseViewport(r *http.Request) (domain.Viewport, error) {
	q := r.URL.Query()

	if tile := q.Get("tile"); tile != "" {
		z, x, y, err := geo.ParseTileID(tile)
		if err != nil {
			return domain.Viewport{}, err
		}
		return domain.Viewport{Bounds: geo.TileBounds(z, x, y), Zoom: z}, nil
	}

	bboxStr := q.Get("bbox")
	if bboxStr == "" {
		return domain.Viewport{}, errors.New("missing bbox parameter")
	}
	bbox, err := parseBBox(strings.Split(bboxStr, ","))
	if err != nil {
		return domain.Viewport{}, err
	}

	zoomStr := q.Get("zoom")
	if zoomStr == "" {
		return domain.Viewport{}, errors.New("missing zoom parameter")
	}
	zoom, err := strconv.Atoi(zoomStr)
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("invalid zoom: %q", zoomStr)
	}

	vp := domain.Viewport{Bounds: bbox, Zoom: zoom}
	if err := validate.Struct(vp); err != nil {
		return domain.Viewport{}, fmt.Errorf("invalid viewport: %s", describeValidation(err))
	}
	return vp, nil
}

func parseBBox(parts []string) (domain.BoundingBox, error) {
	if len(parts) != 4 {
		return domain.BoundingBox{}, errors.New("invalid bbox format: expected minLat,minLon,maxLat,maxLon")
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("invalid bbox value %q", p)
		}
		vals[i] = v
	}

	return domain.BoundingBox{
		MinLat: vals[0], MinLon: vals[1],
		MaxLat: vals[2], MaxLon: vals[3],
	}, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

func isTruthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
