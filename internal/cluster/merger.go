// Package cluster groups geo-located points into provisional clusters by
// proximity and refines oversized or spread-out clusters with K-Means.
package cluster

import (
	"math"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// minCosLat is the cosine below which the batch is treated as polar and the
// grid uses a single longitude column.
const minCosLat = 0.01

// lonCellMargin absorbs the small excess of great-circle longitude spread over
// the flat-cell approximation.
const lonCellMargin = 1.01

// Cluster is a set of indices into the point slice passed to Merge or Refine,
// in ascending order.
type Cluster []int

// Merge groups points so that any two points within radiusMeters of each other
// (great-circle distance, inclusive) end up in the same cluster. The relation
// is transitive. Every point belongs to exactly one cluster; isolated points
// form singletons. Clusters are ordered by their lowest member index.
//
// Points must hold valid coordinates.
func Merge(points []domain.Coordinate, radiusMeters float64) []Cluster {
	if len(points) == 0 {
		return nil
	}

	uf := newUnionFind(len(points))
	if radiusMeters <= 0 {
		mergeIdentical(points, uf)
	} else {
		mergeNearby(points, radiusMeters, uf)
	}
	return uf.clusters()
}

func mergeIdentical(points []domain.Coordinate, uf *unionFind) {
	first := make(map[domain.Coordinate]int, len(points))
	for i, p := range points {
		if j, ok := first[p]; ok {
			uf.union(i, j)
			continue
		}
		first[p] = i
	}
}

type cell struct{ row, col int }

// grid buckets points into cells at least one radius wide so only the 3x3
// neighbourhood of a cell needs pairwise checks.
type grid struct {
	cellLat float64
	cellLon float64
	cols    int
	buckets map[cell][]int
}

func newGrid(points []domain.Coordinate, radiusMeters float64) *grid {
	g := &grid{
		cellLat: radiusMeters / domain.MetersPerDegreeLat,
		buckets: make(map[cell][]int),
	}

	var maxAbsLat float64
	for _, p := range points {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(p.Lat))
	}
	cosLat := math.Cos(maxAbsLat * math.Pi / 180)
	if cosLat < minCosLat {
		cosLat = minCosLat
	}
	g.cellLon = g.cellLat / cosLat * lonCellMargin

	// Near the poles two nearby points can sit on opposite meridians, and cells
	// wider than a third of the globe gain nothing, so both use one column.
	if cosLat <= minCosLat || g.cellLon*3 >= 360 {
		g.cols = 1
	} else {
		g.cols = int(math.Floor(360 / g.cellLon))
	}

	for i, p := range points {
		c := g.cellOf(p)
		g.buckets[c] = append(g.buckets[c], i)
	}
	return g
}

func (g *grid) cellOf(p domain.Coordinate) cell {
	row := int(math.Floor((p.Lat + 90) / g.cellLat))
	col := 0
	if g.cols > 1 {
		// The last column absorbs the remainder so it is at least one cell wide.
		col = int(math.Floor((p.Lon + 180) / g.cellLon))
		if col >= g.cols {
			col = g.cols - 1
		}
	}
	return cell{row: row, col: col}
}

// neighbours returns the distinct cells around c, wrapping columns at the
// antimeridian.
func (g *grid) neighbours(c cell) []cell {
	out := make([]cell, 0, 9)
	seen := make(map[cell]bool, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			n := cell{row: c.row + dr, col: ((c.col+dc)%g.cols + g.cols) % g.cols}
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func mergeNearby(points []domain.Coordinate, radiusMeters float64, uf *unionFind) {
	g := newGrid(points, radiusMeters)
	for i, p := range points {
		for _, n := range g.neighbours(g.cellOf(p)) {
			for _, j := range g.buckets[n] {
				if j <= i || uf.find(i) == uf.find(j) {
					continue
				}
				if domain.DistanceMeters(p, points[j]) <= radiusMeters {
					uf.union(i, j)
				}
			}
		}
	}
}

// unionFind is a disjoint-set forest with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// clusters lists the disjoint sets ordered by lowest member, members ascending.
func (uf *unionFind) clusters() []Cluster {
	index := make(map[int]int)
	var out []Cluster
	for i := range uf.parent {
		root := uf.find(i)
		ci, ok := index[root]
		if !ok {
			ci = len(out)
			index[root] = ci
			out = append(out, nil)
		}
		out[ci] = append(out[ci], i)
	}
	return out
}
