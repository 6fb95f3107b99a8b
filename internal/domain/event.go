package domain

import (
	"context"
	"time"
)

// RawBatch represents an unprocessed report batch message from the source topic.
type RawBatch struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// BoundingBox is the smallest lat/lon rectangle enclosing a set of coordinates.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Report is a single crowd-sourced observation of a disaster.
type Report struct {
	ID            string    `json:"id"`
	Latitude      float64   `json:"latitude" validate:"lat"`
	Longitude     float64   `json:"longitude" validate:"lng"`
	Title         string    `json:"title,omitempty" validate:"max=200"`
	Description   string    `json:"description,omitempty" validate:"max=1000"`
	DisasterType  string    `json:"disaster_type,omitempty" validate:"max=100"`
	Needs         []string  `json:"needs,omitempty"`
	Priority      int       `json:"priority,omitempty" validate:"min=0,max=5"`
	SubmittedAt   time.Time `json:"submitted_at"`
	SourceBatchID string    `json:"source_batch_id,omitempty"`

	// AuthenticityScore, MatchingNews and FakeScore are written by the engine.
	// Callers receive scored copies; the input slice handed to the pipeline is
	// never modified.
	AuthenticityScore float64 `json:"authenticity_score"`
	MatchingNews      string  `json:"matching_news,omitempty"`
	FakeScore         float64 `json:"fake_score"`
}

// Coordinate returns the report location.
func (r Report) Coordinate() Coordinate {
	return Coordinate{Lat: r.Latitude, Lon: r.Longitude}
}

// Batch is a decoded sync batch ready for the pipeline.
type Batch struct {
	ID      string
	Reports []Report

	// Rejected holds reports dropped at ingestion, keyed by report id.
	Rejected map[string]error
}

// Status is the verification state of an incident.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
)

// Incident is an aggregated, de-duplicated disaster event.
type Incident struct {
	ID              string      `json:"id"`
	Centroid        Coordinate  `json:"centroid"`
	MemberReportIDs []string    `json:"member_report_ids"`
	ReportCount     int         `json:"report_count"`
	Confidence      float64     `json:"confidence"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	LastUpdatedAt   time.Time   `json:"last_updated_at"`
	Bounds          BoundingBox `json:"bounds"`

	// MemberLocations holds the coordinate of each member, aligned with
	// MemberReportIDs. Later batches join the incident by member proximity.
	MemberLocations []Coordinate `json:"member_locations,omitempty"`

	AuthenticReports int      `json:"authentic_reports"`
	Priority         int      `json:"priority,omitempty"`
	DisasterTypes    []string `json:"disaster_types,omitempty"`
	Summary          string   `json:"summary,omitempty"`
}

// HasMember reports whether the report id belongs to the incident.
func (i Incident) HasMember(reportID string) bool {
	for _, id := range i.MemberReportIDs {
		if id == reportID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate slices freely.
func (i Incident) Clone() Incident {
	i.MemberReportIDs = append([]string(nil), i.MemberReportIDs...)
	i.MemberLocations = append([]Coordinate(nil), i.MemberLocations...)
	i.DisasterTypes = append([]string(nil), i.DisasterTypes...)
	return i
}

// State is the persisted incident state carried between pipeline runs.
type State struct {
	Incidents    []Incident `json:"incidents"`
	LastSequence int        `json:"last_sequence"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{LastSequence: s.LastSequence}
	if s.Incidents != nil {
		out.Incidents = make([]Incident, len(s.Incidents))
		for i := range s.Incidents {
			out.Incidents[i] = s.Incidents[i].Clone()
		}
	}
	return out
}

// ReferenceNewsItem is a known or verified disaster description used as a
// similarity target. The pipeline never modifies reference items.
type ReferenceNewsItem struct {
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	Text     string      `json:"text" yaml:"text"`
	Location *Coordinate `json:"location,omitempty" yaml:"location,omitempty"`
}

// CorpusSnapshot is an immutable view of the reference corpus.
type CorpusSnapshot struct {
	Items   []ReferenceNewsItem
	Version string
}

// ReferenceCorpus supplies reference news items for authenticity scoring.
type ReferenceCorpus interface {
	// Snapshot returns the current corpus. Implementations return an error
	// wrapping ErrCorpusUnavailable when no corpus can be served.
	Snapshot(ctx context.Context) (CorpusSnapshot, error)
}
