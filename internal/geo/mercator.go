package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"busjp/internal/domain"
)

// TileSize is the edge length in pixels of a slippy-map tile
const TileSize = 256

// maxLatitude is the Web Mercator cut-off
const maxLatitude = 85.05112878

// TileID calculates tile ID for given coordinates at specified zoom level
// Uses Web Mercator (slippy map) tile scheme
func TileID(lat, lon float64, zoom int) string {
	x, y := project(lat, lon, zoom)
	n := math.Pow(2, float64(zoom))

	tx := clampInt(int(math.Floor(x/TileSize)), 0, int(n)-1)
	ty := clampInt(int(math.Floor(y/TileSize)), 0, int(n)-1)

	return fmt.Sprintf("%d/%d/%d", zoom, tx, ty)
}

// ParseTileID parses a "z/x/y" tile id and checks x and y exist at z
func ParseTileID(id string) (zoom, x, y int, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid tile id %q: expected z/x/y", id)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid tile id %q: %w", id, err)
		}
		vals[i] = v
	}
	zoom, x, y = vals[0], vals[1], vals[2]
	if zoom < 0 || zoom > 24 {
		return 0, 0, 0, fmt.Errorf("invalid tile id %q: zoom out of range", id)
	}
	n := 1 << zoom
	if x < 0 || x >= n || y < 0 || y >= n {
		return 0, 0, 0, fmt.Errorf("invalid tile id %q: tile outside zoom %d", id, zoom)
	}
	return zoom, x, y, nil
}

// TileBounds returns the bounding box covered by a tile
func TileBounds(zoom, x, y int) domain.BoundingBox {
	n := math.Pow(2, float64(zoom))
	minLon := float64(x)/n*360.0 - 180.0
	maxLon := float64(x+1)/n*360.0 - 180.0

	minLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y+1)/n)))
	maxLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))

	return domain.BoundingBox{
		MinLat: minLatRad * 180.0 / math.Pi,
		MaxLat: maxLatRad * 180.0 / math.Pi,
		MinLon: minLon,
		MaxLon: maxLon,
	}
}

// ViewportAround returns the viewport a map of width x height pixels shows
// when centered on center at the given zoom.
func ViewportAround(center domain.LatLng, zoom, width, height int) domain.Viewport {
	cx, cy := project(center.Lat, center.Lon, zoom)
	halfW, halfH := float64(width)/2, float64(height)/2

	north, west := unproject(cx-halfW, cy-halfH, zoom)
	south, east := unproject(cx+halfW, cy+halfH, zoom)

	return domain.Viewport{
		Bounds: domain.BoundingBox{
			MinLat: south,
			MaxLat: north,
			MinLon: west,
			MaxLon: east,
		},
		Zoom: zoom,
	}
}

// project converts a coordinate to world pixel space at zoom
func project(lat, lon float64, zoom int) (x, y float64) {
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	scale := TileSize * math.Pow(2, float64(zoom))
	latRad := lat * math.Pi / 180.0

	x = (lon + 180.0) / 360.0 * scale
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * scale
	return x, y
}

func unproject(x, y float64, zoom int) (lat, lon float64) {
	scale := TileSize * math.Pow(2, float64(zoom))

	lon = x/scale*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/scale)))
	lat = latRad * 180.0 / math.Pi
	return lat, lon
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
