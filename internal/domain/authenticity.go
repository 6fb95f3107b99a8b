package domain

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	// MinTitleLength is the shortest title not flagged as suspicious.
	MinTitleLength = 10

	// FakeScoreLimit is the fake score at which a report is no longer
	// considered likely authentic, whatever its similarity.
	FakeScoreLimit = 0.7
)

// KnownDisasterTypes are the disaster kinds reporters can pick from.
var KnownDisasterTypes = []string{
	"flood", "earthquake", "fire", "tornado", "hurricane", "landslide", "collapse", "spill",
}

// FakeIndicators are content heuristics that suggest a fabricated report.
type FakeIndicators struct {
	ShortTitle          bool `json:"short_title"`
	NoNeeds             bool `json:"no_needs"`
	UnknownDisasterType bool `json:"unknown_disaster_type"`
}

// DetectFakeIndicators inspects the report's title, needs and disaster type.
func DetectFakeIndicators(r Report) FakeIndicators {
	return FakeIndicators{
		ShortTitle:          utf8.RuneCountInString(r.Title) < MinTitleLength,
		NoNeeds:             len(r.Needs) == 0,
		UnknownDisasterType: !slices.Contains(KnownDisasterTypes, strings.ToLower(strings.TrimSpace(r.DisasterType))),
	}
}

// Score is the fraction of indicators raised, in [0, 1].
func (f FakeIndicators) Score() float64 {
	n := 0
	for _, raised := range []bool{f.ShortTitle, f.NoNeeds, f.UnknownDisasterType} {
		if raised {
			n++
		}
	}
	return float64(n) / 3
}

// LikelyAuthentic reports whether a report with the given similarity and fake
// scores should be trusted. A zero similarity never qualifies.
func LikelyAuthentic(score, fakeScore, threshold float64) bool {
	return score > 0 && score >= threshold && fakeScore < FakeScoreLimit
}

// NewsMatch is the reference item closest to a report text.
type NewsMatch struct {
	Score float64

	// Reference is the matched item text, empty when nothing scored above 0.
	Reference string
}

// Assessment is the authenticity verdict for one report.
type Assessment struct {
	AuthenticityScore float64        `json:"authenticity_score"`
	LikelyAuthentic   bool           `json:"likely_authentic"`
	MatchingNews      string         `json:"matching_news,omitempty"`
	FakeIndicators    FakeIndicators `json:"fake_indicators"`
	FakeScore         float64        `json:"fake_score"`
}
