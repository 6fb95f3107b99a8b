package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// blob returns n points spaced 0.5 m apart heading north from c.
func blob(c domain.Coordinate, n int) []domain.Coordinate {
	out := make([]domain.Coordinate, n)
	for i := range out {
		out[i] = offsetNorth(c, float64(i)*0.5)
	}
	return out
}

func TestChooseK(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 1}, {1, 1}, {2, 1}, {8, 2}, {21, 3}, {30, 4}, {50, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChooseK(tt.n), "n=%d", tt.n)
	}
}

func TestRefiner_NeedsRefinement(t *testing.T) {
	r := Refiner{RadiusMeters: 50, SplitThreshold: 20, SpreadTolerance: 2}

	assert.False(t, r.NeedsRefinement(blob(sf, 1)))
	assert.False(t, r.NeedsRefinement(blob(sf, 20)))
	assert.True(t, r.NeedsRefinement(blob(sf, 21)), "size trigger")

	spread := []domain.Coordinate{sf, offsetNorth(sf, 250)}
	assert.True(t, r.NeedsRefinement(spread), "spread trigger")
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	points := append(blob(sf, 10), blob(offsetNorth(sf, 1000), 10)...)

	parts, _, err := KMeans(points, 2, 50, 0.01)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, Cluster{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, parts[0])
	assert.Equal(t, Cluster{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, parts[1])
}

func TestKMeans_Deterministic(t *testing.T) {
	points := append(blob(sf, 15), blob(offsetNorth(sf, 300), 12)...)
	points = append(points, blob(domain.Coordinate{Lat: sf.Lat, Lon: sf.Lon + 0.004}, 9)...)

	first, iters, err := KMeans(points, 3, 50, 0.01)
	require.NoError(t, err)
	for range 5 {
		again, againIters, err := KMeans(points, 3, 50, 0.01)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Equal(t, iters, againIters)
	}
}

func TestKMeans_ConvergenceLimit(t *testing.T) {
	points := append(blob(sf, 10), blob(offsetNorth(sf, 1000), 10)...)

	parts, iters, err := KMeans(points, 2, 1, 0.01)
	require.ErrorIs(t, err, domain.ErrConvergenceLimitReached)
	assert.Equal(t, 1, iters)

	var total int
	for _, p := range parts {
		total += len(p)
	}
	assert.Equal(t, len(points), total, "best partition is still returned")
}

func TestKMeans_IdenticalPointsCollapse(t *testing.T) {
	points := []domain.Coordinate{sf, sf, sf, sf}
	parts, _, err := KMeans(points, 3, 50, 0.01)
	require.NoError(t, err)
	assert.Equal(t, []Cluster{{0, 1, 2, 3}}, parts)
}

func TestKMeans_Empty(t *testing.T) {
	parts, iters, err := KMeans(nil, 2, 50, 0.01)
	require.NoError(t, err)
	assert.Nil(t, parts)
	assert.Zero(t, iters)
}

func TestRefiner_Refine(t *testing.T) {
	// One provisional cluster holding two tight groups 300 m apart.
	points := append(blob(sf, 15), blob(offsetNorth(sf, 300), 15)...)
	provisional := make(Cluster, len(points))
	for i := range provisional {
		provisional[i] = i
	}
	small := Cluster{}

	r := Refiner{RadiusMeters: 50, SplitThreshold: 20, SpreadTolerance: 2, MaxIterations: 50, EpsilonMeters: 0.01}
	got, stats := r.Refine(points, []Cluster{provisional, small})

	assert.Equal(t, 1, stats.Refined)
	assert.Zero(t, stats.ConvergenceLimitHits)
	require.Len(t, got, ChooseK(30)+1)

	seen := make(map[int]bool)
	for _, c := range got[:len(got)-1] {
		require.NotEmpty(t, c)
		north := c[0] >= 15
		for _, idx := range c {
			assert.False(t, seen[idx])
			seen[idx] = true
			assert.Equal(t, north, idx >= 15, "sub-cluster mixes both groups")
		}
	}
	assert.Len(t, seen, len(points))
	assert.Equal(t, small, got[len(got)-1], "untouched clusters keep their place")
}

func TestRefiner_CompactClusterUntouched(t *testing.T) {
	points := blob(sf, 5)
	in := []Cluster{{0, 1, 2, 3, 4}}
	got, stats := Refiner{RadiusMeters: 50}.Refine(points, in)
	assert.Equal(t, in, got)
	assert.Zero(t, stats.Refined)
}
