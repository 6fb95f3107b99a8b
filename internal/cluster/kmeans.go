package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// Refiner defaults, used when the corresponding field is zero.
const (
	DefaultSplitThreshold  = 20
	DefaultSpreadTolerance = 2.0
	DefaultMaxIterations   = 50
	DefaultEpsilonMeters   = 0.01
)

// Refiner splits provisional clusters that are too large or too spread out
// into tighter sub-clusters using K-Means.
type Refiner struct {
	// RadiusMeters is the proximity radius used by Merge.
	RadiusMeters float64

	// SplitThreshold triggers refinement for clusters with more members.
	SplitThreshold int

	// SpreadTolerance triggers refinement when the farthest member lies more
	// than RadiusMeters*SpreadTolerance from the cluster centroid.
	SpreadTolerance float64

	MaxIterations int
	EpsilonMeters float64
}

// RefineStats describes one Refine call.
type RefineStats struct {
	Refined              int // clusters handed to K-Means
	ConvergenceLimitHits int // K-Means runs that hit MaxIterations
}

func (r Refiner) withDefaults() Refiner {
	if r.SplitThreshold <= 0 {
		r.SplitThreshold = DefaultSplitThreshold
	}
	if r.SpreadTolerance <= 0 {
		r.SpreadTolerance = DefaultSpreadTolerance
	}
	if r.MaxIterations <= 0 {
		r.MaxIterations = DefaultMaxIterations
	}
	if r.EpsilonMeters <= 0 {
		r.EpsilonMeters = DefaultEpsilonMeters
	}
	return r
}

// NeedsRefinement reports whether a cluster of the given points should be split.
func (r Refiner) NeedsRefinement(points []domain.Coordinate) bool {
	r = r.withDefaults()
	if len(points) < 2 {
		return false
	}
	if len(points) > r.SplitThreshold {
		return true
	}
	return Spread(points) > r.RadiusMeters*r.SpreadTolerance
}

// Refine returns clusters with every oversized or spread-out cluster replaced
// by its K-Means sub-clusters. Indices refer to points. Sub-clusters take the
// position of the cluster they replace; empty sub-clusters are dropped.
func (r Refiner) Refine(points []domain.Coordinate, clusters []Cluster) ([]Cluster, RefineStats) {
	r = r.withDefaults()
	var stats RefineStats
	out := make([]Cluster, 0, len(clusters))

	for _, c := range clusters {
		sub := gather(points, c)
		if !r.NeedsRefinement(sub) {
			out = append(out, c)
			continue
		}

		stats.Refined++
		parts, _, err := KMeans(sub, ChooseK(len(sub)), r.MaxIterations, r.EpsilonMeters)
		if err != nil {
			stats.ConvergenceLimitHits++
		}
		for _, p := range parts {
			mapped := make(Cluster, len(p))
			for i, local := range p {
				mapped[i] = c[local]
			}
			out = append(out, mapped)
		}
	}
	return out, stats
}

// ChooseK returns max(1, round(sqrt(n/2))).
func ChooseK(n int) int {
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 1 {
		return 1
	}
	return k
}

// Spread returns the largest distance in metres from the centroid of points to
// any of them.
func Spread(points []domain.Coordinate) float64 {
	centroid := domain.Mean(points)
	var spread float64
	for _, p := range points {
		spread = math.Max(spread, domain.DistanceMeters(centroid, p))
	}
	return spread
}

// KMeans partitions points into at most k clusters. Points are projected onto
// a local plane in metres around their centroid. Seeding is deterministic:
// the first seed is the point farthest from the centroid, each further seed is
// the point farthest from all chosen seeds, ties going to the lowest index.
// Iteration stops when no centroid moves more than epsilonMeters or after
// maxIter rounds; the latter returns the partition found so far together with
// an error wrapping domain.ErrConvergenceLimitReached.
//
// The returned clusters hold indices into points, ordered by lowest member.
func KMeans(points []domain.Coordinate, k, maxIter int, epsilonMeters float64) ([]Cluster, int, error) {
	n := len(points)
	if n == 0 {
		return nil, 0, nil
	}
	if k < 1 {
		k = 1
	}
	if maxIter < 1 {
		maxIter = 1
	}

	xy := project(points)
	centroids := seed(xy, k)
	assign := make([]int, n)

	iterations := 0
	converged := false
	for iterations < maxIter {
		iterations++
		for i, p := range xy {
			assign[i] = nearest(p, centroids)
		}

		next := recompute(xy, assign, centroids)
		var moved float64
		for c := range centroids {
			moved = math.Max(moved, next[c].dist(centroids[c]))
		}
		centroids = next
		if moved < epsilonMeters {
			converged = true
			break
		}
	}
	// Final assignment against the last centroids so members and centroids agree.
	for i, p := range xy {
		assign[i] = nearest(p, centroids)
	}

	parts := partition(assign, len(centroids))
	if !converged {
		return parts, iterations, fmt.Errorf("%w: %d iterations", domain.ErrConvergenceLimitReached, iterations)
	}
	return parts, iterations, nil
}

type vec struct{ x, y float64 }

func (a vec) dist(b vec) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

// project maps points to an equirectangular plane in metres centred on their
// mean coordinate.
func project(points []domain.Coordinate) []vec {
	origin := domain.Mean(points)
	cosLat := math.Cos(origin.Lat * math.Pi / 180)
	out := make([]vec, len(points))
	for i, p := range points {
		dLon := domain.UnwrapLon(origin.Lon, p.Lon) - origin.Lon
		out[i] = vec{
			x: dLon * cosLat * domain.MetersPerDegreeLat,
			y: (p.Lat - origin.Lat) * domain.MetersPerDegreeLat,
		}
	}
	return out
}

// seed picks up to k distinct starting centroids by farthest-point traversal.
// Fewer than k are returned when the points have fewer distinct positions.
func seed(xy []vec, k int) []vec {
	var mean vec
	for _, p := range xy {
		mean.x += p.x
		mean.y += p.y
	}
	mean.x /= float64(len(xy))
	mean.y /= float64(len(xy))

	first := 0
	for i, p := range xy {
		if p.dist(mean) > xy[first].dist(mean) {
			first = i
		}
	}
	seeds := []vec{xy[first]}

	minDist := make([]float64, len(xy))
	for i, p := range xy {
		minDist[i] = p.dist(xy[first])
	}
	for len(seeds) < k {
		best := -1
		for i := range xy {
			if minDist[i] > 0 && (best < 0 || minDist[i] > minDist[best]) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		s := xy[best]
		seeds = append(seeds, s)
		for i, p := range xy {
			minDist[i] = math.Min(minDist[i], p.dist(s))
		}
	}
	return seeds
}

// nearest returns the index of the closest centroid, ties going to the lowest.
func nearest(p vec, centroids []vec) int {
	best := 0
	bestDist := p.dist(centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := p.dist(centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// recompute averages the members of each centroid. A centroid without members
// keeps its previous position.
func recompute(xy []vec, assign []int, prev []vec) []vec {
	sums := make([]vec, len(prev))
	counts := make([]int, len(prev))
	for i, c := range assign {
		sums[c].x += xy[i].x
		sums[c].y += xy[i].y
		counts[c]++
	}
	next := make([]vec, len(prev))
	for c := range prev {
		if counts[c] == 0 {
			next[c] = prev[c]
			continue
		}
		next[c] = vec{x: sums[c].x / float64(counts[c]), y: sums[c].y / float64(counts[c])}
	}
	return next
}

func partition(assign []int, k int) []Cluster {
	parts := make([]Cluster, k)
	for i, c := range assign {
		parts[c] = append(parts[c], i)
	}
	out := parts[:0]
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

func gather(points []domain.Coordinate, c Cluster) []domain.Coordinate {
	out := make([]domain.Coordinate, len(c))
	for i, idx := range c {
		out[i] = points[idx]
	}
	return out
}
