package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(0, 0))
	assert.True(t, ValidCoordinate(-90, -180))
	assert.True(t, ValidCoordinate(90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, 180.1))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}

func TestDistanceMeters(t *testing.T) {
	a := Coordinate{Lat: 37.7749, Lon: -122.4194}

	assert.Zero(t, DistanceMeters(a, a))

	// 0.0001 degrees of latitude is about 11.1 m.
	b := Coordinate{Lat: 37.7750, Lon: -122.4194}
	assert.InDelta(t, 11.1, DistanceMeters(a, b), 0.1)

	// Across the antimeridian the short way round is used.
	east := Coordinate{Lat: 0, Lon: 179.9999}
	west := Coordinate{Lat: 0, Lon: -179.9999}
	assert.InDelta(t, 22.3, DistanceMeters(east, west), 0.1)
}

func TestMean(t *testing.T) {
	assert.Equal(t, Coordinate{}, Mean(nil))
	got := Mean([]Coordinate{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}})
	assert.Equal(t, Coordinate{Lat: 2, Lon: 3}, got)

	anti := Mean([]Coordinate{{Lat: 0, Lon: 179.9}, {Lat: 0, Lon: -179.9}})
	assert.InDelta(t, 180, math.Abs(anti.Lon), 1e-9)
}

func TestWeightedMean(t *testing.T) {
	got := WeightedMean(Coordinate{Lat: 0, Lon: 0}, 3, Coordinate{Lat: 4, Lon: 4}, 1)
	assert.InDelta(t, 1, got.Lat, 1e-12)
	assert.InDelta(t, 1, got.Lon, 1e-12)

	assert.Equal(t, Coordinate{Lat: 5, Lon: 6}, WeightedMean(Coordinate{Lat: 5, Lon: 6}, 0, Coordinate{}, 0))

	anti := WeightedMean(Coordinate{Lon: 179}, 1, Coordinate{Lon: -179}, 1)
	assert.InDelta(t, 180, math.Abs(anti.Lon), 1e-9)
}

func TestUnwrapLon(t *testing.T) {
	assert.Equal(t, 181.0, UnwrapLon(179, -179))
	assert.Equal(t, -181.0, UnwrapLon(-179, 179))
	assert.Equal(t, 10.0, UnwrapLon(0, 10))
	assert.Equal(t, -179.0, NormalizeLon(181))
}

func TestBounds(t *testing.T) {
	b := BoundsOf([]Coordinate{{Lat: 1, Lon: 5}, {Lat: -2, Lon: 7}, {Lat: 0, Lon: 6}})
	assert.Equal(t, BoundingBox{MinLat: -2, MaxLat: 1, MinLon: 5, MaxLon: 7}, b)

	u := b.Union(BoundingBox{MinLat: 0, MaxLat: 3, MinLon: 4, MaxLon: 4})
	assert.Equal(t, BoundingBox{MinLat: -2, MaxLat: 3, MinLon: 4, MaxLon: 7}, u)
}
