// Package geo provides the small set of geographic primitives the analysis
// pipeline needs: WGS84 points, bounding boxes around a point, and
// great-circle distances.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// BoundingBox is an axis-aligned lat/lon box.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Contains reports whether p lies inside (or on the edge of) the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoxAround returns a bounding box extending radiusM metres from p in each
// direction. The longitude delta is corrected for latitude so the box stays
// roughly square on the ground.
func BoxAround(p Point, radiusM float64) BoundingBox {
	latDelta := radiusM / 111320.0
	lonScale := math.Cos(p.Lat * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01 // near the poles the box degenerates; clamp instead of dividing by ~0
	}
	lonDelta := radiusM / (111320.0 * lonScale)

	return BoundingBox{
		MinLat: p.Lat - latDelta,
		MinLon: p.Lon - lonDelta,
		MaxLat: p.Lat + latDelta,
		MaxLon: p.Lon + lonDelta,
	}
}

// DistanceM returns the haversine great-circle distance between two points
// in metres.
func DistanceM(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
