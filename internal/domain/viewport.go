package domain

// LatLng is a single geographic coordinate in degrees
type LatLng struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// BoundingBox represents a geographic rectangle.
// MinLat/MinLon is the south-west corner, MaxLat/MaxLon the north-east one.
type BoundingBox struct {
	MinLat float64 `json:"minLat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"maxLat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLon float64 `json:"minLon" validate:"gte=-360,lte=360"`
	MaxLon float64 `json:"maxLon" validate:"gte=-360,lte=360,gtefield=MinLon"`
}

// Contains checks if a point is within the bounding box, edges included.
// NaN coordinates are never contained.
func (bb BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}

// Center returns the midpoint of the box
func (bb BoundingBox) Center() LatLng {
	return LatLng{
		Lat: (bb.MinLat + bb.MaxLat) / 2,
		Lon: (bb.MinLon + bb.MaxLon) / 2,
	}
}

// Viewport is the visible map rectangle plus its zoom level
type Viewport struct {
	Bounds BoundingBox `json:"bounds"`
	Zoom   int         `json:"zoom" validate:"gte=0,lte=24"`
}

// Equal reports whether two viewports cover the same area at the same zoom
func (v Viewport) Equal(o Viewport) bool {
	return v.Zoom == o.Zoom && v.Bounds == o.Bounds
}
