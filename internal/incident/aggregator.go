// Package incident turns scored report groups into incidents and merges them
// into previously known incidents.
package incident

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// Group is one refined cluster of scored reports.
type Group struct {
	Reports []domain.Report
}

// Centroid returns the mean member coordinate.
func (g Group) Centroid() domain.Coordinate {
	return domain.Mean(g.coords())
}

func (g Group) coords() []domain.Coordinate {
	out := make([]domain.Coordinate, len(g.Reports))
	for i, r := range g.Reports {
		out[i] = r.Coordinate()
	}
	return out
}

// Earliest returns the smallest member submission time.
func (g Group) Earliest() time.Time {
	var t time.Time
	for i, r := range g.Reports {
		if i == 0 || r.SubmittedAt.Before(t) {
			t = r.SubmittedAt
		}
	}
	return t
}

// FirstID returns the lexicographically smallest member id.
func (g Group) FirstID() string {
	var id string
	for i, r := range g.Reports {
		if i == 0 || r.ID < id {
			id = r.ID
		}
	}
	return id
}

type groupKey struct {
	centroid domain.Coordinate
	earliest time.Time
	firstID  string
}

func (a groupKey) less(b groupKey) bool {
	switch {
	case a.centroid.Lat != b.centroid.Lat:
		return a.centroid.Lat < b.centroid.Lat
	case a.centroid.Lon != b.centroid.Lon:
		return a.centroid.Lon < b.centroid.Lon
	case !a.earliest.Equal(b.earliest):
		return a.earliest.Before(b.earliest)
	default:
		return a.firstID < b.firstID
	}
}

// SortGroups orders groups by centroid latitude, longitude, earliest member
// time and first member id. Members keep their order.
func SortGroups(groups []Group) {
	keys := make([]groupKey, len(groups))
	order := make([]int, len(groups))
	for i, g := range groups {
		keys[i] = groupKey{centroid: g.Centroid(), earliest: g.Earliest(), firstID: g.FirstID()}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]].less(keys[order[b]]) })

	sorted := make([]Group, len(groups))
	for i, j := range order {
		sorted[i] = groups[j]
	}
	copy(groups, sorted)
}

// Aggregator builds incidents from groups.
type Aggregator struct {
	// RadiusMeters is the largest distance between a group report and an
	// incident member (or the incident centroid) at which a group without
	// shared reports joins the incident.
	RadiusMeters float64

	// VerifyThreshold is the confidence an incident needs to be verified.
	VerifyThreshold float64

	// MinReports is the corroboration count an incident needs to be verified.
	MinReports int

	// AuthenticThreshold is the score from which a report counts as authentic.
	AuthenticThreshold float64
}

// Outcome is the result of one Aggregate call.
type Outcome struct {
	// Incidents is the full incident set: prior incidents in their original
	// order followed by new ones in creation order.
	Incidents []domain.Incident

	// Changed lists created or updated incidents, in Incidents order.
	Changed []domain.Incident

	Created int
	Updated int
}

// Aggregate merges groups into prior incidents. A group joins the prior
// incident it shares the most report ids with (ties to the earlier incident),
// else the nearest prior incident with a member or centroid within
// RadiusMeters of one of the group's reports, else it becomes a new incident
// numbered by seq. Reports already assigned to an incident are never counted
// twice or moved.
//
// Confidence is a high-water mark and verified incidents stay verified, unless
// revalidate is set: then both are recomputed from every report in groups that
// belongs to the incident, across all groups.
//
// prior is not modified.
func (a Aggregator) Aggregate(prior []domain.Incident, groups []Group, seq *Sequence, revalidate bool) Outcome {
	incidents := make([]domain.Incident, len(prior))
	owner := make(map[string]int)
	for i, inc := range prior {
		incidents[i] = inc.Clone()
		for _, id := range inc.MemberReportIDs {
			owner[id] = i
		}
	}
	priorCount := len(prior)
	created := 0

	sorted := make([]Group, 0, len(groups))
	for _, g := range groups {
		if len(g.Reports) > 0 {
			sorted = append(sorted, g)
		}
	}
	SortGroups(sorted)

	// rescored collects, per revalidated incident, the best score seen.
	rescored := make(map[int]float64)

	for _, g := range sorted {
		target := a.match(incidents[:priorCount], owner, g)
		if target < 0 {
			inc := a.newIncident(seq.Next(), g)
			idx := len(incidents)
			incidents = append(incidents, inc)
			for _, id := range inc.MemberReportIDs {
				owner[id] = idx
			}
			created++
			continue
		}

		fresh := make([]domain.Report, 0, len(g.Reports))
		for _, r := range g.Reports {
			if _, known := owner[r.ID]; !known {
				fresh = append(fresh, r)
				owner[r.ID] = target
			}
		}
		// Known members only inform confidence when they belong to the target.
		scored := make([]domain.Report, 0, len(g.Reports))
		for _, r := range g.Reports {
			if owner[r.ID] == target {
				scored = append(scored, r)
			}
		}
		incidents[target] = a.merge(incidents[target], fresh, scored, revalidate)
		if revalidate && len(scored) > 0 {
			rescored[target] = math.Max(rescored[target], maxScore(scored))
		}
	}

	for idx, conf := range rescored {
		inc := &incidents[idx]
		inc.Confidence = conf
		inc.Status = a.status(*inc)
	}

	out := Outcome{Incidents: incidents, Created: created}
	for i, inc := range incidents {
		switch {
		case i >= priorCount:
			out.Changed = append(out.Changed, inc)
		case !equalIncident(prior[i], inc):
			out.Changed = append(out.Changed, inc)
			out.Updated++
		}
	}
	return out
}

// match returns the index of the incident g should join, or -1.
func (a Aggregator) match(candidates []domain.Incident, owner map[string]int, g Group) int {
	overlap := make(map[int]int)
	for _, r := range g.Reports {
		if idx, ok := owner[r.ID]; ok && idx < len(candidates) {
			overlap[idx]++
		}
	}
	best, bestOverlap := -1, 0
	for idx, n := range overlap {
		if n > bestOverlap || (n == bestOverlap && idx < best) {
			best, bestOverlap = idx, n
		}
	}
	if best >= 0 {
		return best
	}

	coords := g.coords()
	reach := domain.BoundsOf(coords)
	bestDist := math.Inf(1)
	for idx, inc := range candidates {
		if d := a.distance(inc, coords, reach); d <= a.RadiusMeters && d < bestDist {
			best, bestDist = idx, d
		}
	}
	return best
}

// distance is the smallest distance from any of coords to the incident
// centroid or one of its members. Members are only scanned when the incident
// bounds, padded by the radius, overlap reach in latitude.
func (a Aggregator) distance(inc domain.Incident, coords []domain.Coordinate, reach domain.BoundingBox) float64 {
	d := math.Inf(1)
	for _, c := range coords {
		d = math.Min(d, domain.DistanceMeters(c, inc.Centroid))
	}

	pad := a.RadiusMeters / domain.MetersPerDegreeLat
	if reach.MinLat > inc.Bounds.MaxLat+pad || reach.MaxLat < inc.Bounds.MinLat-pad {
		return d
	}
	for _, c := range coords {
		for _, m := range inc.MemberLocations {
			d = math.Min(d, domain.DistanceMeters(c, m))
		}
	}
	return d
}

func (a Aggregator) newIncident(id string, g Group) domain.Incident {
	inc := domain.Incident{
		ID:       id,
		Centroid: g.Centroid(),
		Bounds:   domain.BoundsOf(g.coords()),
		Status:   domain.StatusUnverified,
	}
	for i, r := range g.Reports {
		a.absorb(&inc, r, i == 0)
	}
	inc.Confidence = maxScore(g.Reports)
	inc.Summary = Summarize(mostAuthentic(g.Reports).Description)
	finish(&inc)
	inc.Status = a.status(inc)
	return inc
}

// merge folds fresh reports into inc. scored holds every report of the group
// owned by inc, for confidence. With revalidate set, confidence and status are
// left to the caller, which sees every group of the incident.
func (a Aggregator) merge(inc domain.Incident, fresh, scored []domain.Report, revalidate bool) domain.Incident {
	before := inc.Clone()

	if len(fresh) > 0 {
		coords := make([]domain.Coordinate, len(fresh))
		for i, r := range fresh {
			coords[i] = r.Coordinate()
			a.absorb(&inc, r, false)
		}
		inc.Centroid = domain.WeightedMean(inc.Centroid, float64(before.ReportCount), domain.Mean(coords), float64(len(fresh)))
		inc.Bounds = inc.Bounds.Union(domain.BoundsOf(coords))
		finish(&inc)
	}

	if best := mostAuthentic(scored); len(scored) > 0 && (inc.Summary == "" || best.AuthenticityScore > before.Confidence) {
		if s := Summarize(best.Description); s != "" {
			inc.Summary = s
		}
	}

	if !revalidate {
		inc.Confidence = math.Max(inc.Confidence, maxScore(scored))
		if inc.Status != domain.StatusVerified {
			inc.Status = a.status(inc)
		}
	}
	return inc
}

// absorb adds one report's membership and metadata. first initializes the
// time range.
func (a Aggregator) absorb(inc *domain.Incident, r domain.Report, first bool) {
	inc.MemberReportIDs = append(inc.MemberReportIDs, r.ID)
	inc.MemberLocations = append(inc.MemberLocations, r.Coordinate())
	if first || r.SubmittedAt.Before(inc.CreatedAt) {
		inc.CreatedAt = r.SubmittedAt
	}
	if first || r.SubmittedAt.After(inc.LastUpdatedAt) {
		inc.LastUpdatedAt = r.SubmittedAt
	}
	if domain.LikelyAuthentic(r.AuthenticityScore, r.FakeScore, a.AuthenticThreshold) {
		inc.AuthenticReports++
	}
	if r.Priority > inc.Priority {
		inc.Priority = r.Priority
	}
	if r.DisasterType != "" && !slices.Contains(inc.DisasterTypes, r.DisasterType) {
		inc.DisasterTypes = append(inc.DisasterTypes, r.DisasterType)
	}
}

// finish sorts members by id, keeping locations aligned. Incidents stored
// without locations keep none.
func finish(inc *domain.Incident) {
	if len(inc.MemberLocations) != len(inc.MemberReportIDs) {
		inc.MemberLocations = nil
		sort.Strings(inc.MemberReportIDs)
	} else {
		sort.Sort(byMemberID{inc})
	}
	sort.Strings(inc.DisasterTypes)
	inc.ReportCount = len(inc.MemberReportIDs)
}

func (a Aggregator) status(inc domain.Incident) domain.Status {
	if inc.Confidence >= a.VerifyThreshold && inc.ReportCount >= a.MinReports {
		return domain.StatusVerified
	}
	return domain.StatusUnverified
}

func maxScore(reports []domain.Report) float64 {
	var m float64
	for _, r := range reports {
		m = math.Max(m, r.AuthenticityScore)
	}
	return m
}

// mostAuthentic returns the highest-scoring report, ties to the earliest in
// the slice.
func mostAuthentic(reports []domain.Report) domain.Report {
	var best domain.Report
	for i, r := range reports {
		if i == 0 || r.AuthenticityScore > best.AuthenticityScore {
			best = r
		}
	}
	return best
}

func equalIncident(a, b domain.Incident) bool {
	return a.ID == b.ID &&
		a.Centroid == b.Centroid &&
		slices.Equal(a.MemberReportIDs, b.MemberReportIDs) &&
		a.ReportCount == b.ReportCount &&
		a.Confidence == b.Confidence &&
		a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.LastUpdatedAt.Equal(b.LastUpdatedAt) &&
		a.Bounds == b.Bounds &&
		slices.Equal(a.MemberLocations, b.MemberLocations) &&
		a.AuthenticReports == b.AuthenticReports &&
		a.Priority == b.Priority &&
		slices.Equal(a.DisasterTypes, b.DisasterTypes) &&
		a.Summary == b.Summary
}

type byMemberID struct{ inc *domain.Incident }

func (s byMemberID) Len() int { return len(s.inc.MemberReportIDs) }

func (s byMemberID) Less(i, j int) bool {
	return s.inc.MemberReportIDs[i] < s.inc.MemberReportIDs[j]
}

func (s byMemberID) Swap(i, j int) {
	ids, locs := s.inc.MemberReportIDs, s.inc.MemberLocations
	ids[i], ids[j] = ids[j], ids[i]
	locs[i], locs[j] = locs[j], locs[i]
}
