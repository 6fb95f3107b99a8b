package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// MetersPerDegreeLat is the length of one degree of latitude on the haversine sphere.
const MetersPerDegreeLat = orb.EarthRadius * math.Pi / 180

// ValidCoordinate reports whether lat/lon are finite and inside the WGS-84 range.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b Coordinate) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point())
}

// Point converts the coordinate to an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Mean returns the arithmetic mean of the coordinates. Longitudes are
// unwrapped around the first coordinate so groups straddling the antimeridian
// average to a point between them. Returns the zero coordinate for an empty
// slice.
func Mean(coords []Coordinate) Coordinate {
	if len(coords) == 0 {
		return Coordinate{}
	}
	ref := coords[0].Lon
	var sumLat, sumLon float64
	for _, c := range coords {
		sumLat += c.Lat
		sumLon += UnwrapLon(ref, c.Lon)
	}
	n := float64(len(coords))
	return Coordinate{Lat: sumLat / n, Lon: NormalizeLon(sumLon / n)}
}

// WeightedMean combines two means weighted by their member counts.
func WeightedMean(a Coordinate, wa float64, b Coordinate, wb float64) Coordinate {
	if wa+wb == 0 {
		return a
	}
	lon := (a.Lon*wa + UnwrapLon(a.Lon, b.Lon)*wb) / (wa + wb)
	return Coordinate{
		Lat: (a.Lat*wa + b.Lat*wb) / (wa + wb),
		Lon: NormalizeLon(lon),
	}
}

// UnwrapLon shifts lon by a multiple of 360 so it lies within 180 degrees of ref.
func UnwrapLon(ref, lon float64) float64 {
	for lon-ref > 180 {
		lon -= 360
	}
	for lon-ref < -180 {
		lon += 360
	}
	return lon
}

// NormalizeLon maps lon into [-180, 180].
func NormalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// BoundsOf returns the bounding box of the coordinates.
func BoundsOf(coords []Coordinate) BoundingBox {
	if len(coords) == 0 {
		return BoundingBox{}
	}
	mp := make(orb.MultiPoint, len(coords))
	for i, c := range coords {
		mp[i] = c.Point()
	}
	return fromBound(mp.Bound())
}

// Union returns the smallest box enclosing both boxes.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return fromBound(b.bound().Union(other.bound()))
}

func (b BoundingBox) bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

func fromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLat: b.Min.Lat(),
		MaxLat: b.Max.Lat(),
		MinLon: b.Min.Lon(),
		MaxLon: b.Max.Lon(),
	}
}
