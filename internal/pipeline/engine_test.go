package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
	"github.com/couchcryptid/disaster-incident-service/internal/pipeline"
	"github.com/couchcryptid/disaster-incident-service/internal/scoring"
)

var (
	t0     = time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	origin = domain.Coordinate{Lat: 37.7749, Lon: -122.4194}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// at returns a report metersNorth of origin.
func at(id string, metersNorth float64, description string) domain.Report {
	return domain.Report{
		ID:          id,
		Latitude:    origin.Lat + metersNorth/domain.MetersPerDegreeLat,
		Longitude:   origin.Lon,
		Description: description,
		SubmittedAt: t0,
	}
}

// floodSimilarity rates any text mentioning a flood at 0.9.
func floodSimilarity(text, _ string) float64 {
	if strings.Contains(strings.ToLower(text), "flood") {
		return 0.9
	}
	return 0
}

type failingCorpus struct{}

func (failingCorpus) Snapshot(context.Context) (domain.CorpusSnapshot, error) {
	return domain.CorpusSnapshot{}, errors.New("feed down")
}

func newEngine(cfg pipeline.EngineConfig, opts ...scoring.Option) (*pipeline.Engine, *observability.Metrics) {
	m := newTestMetrics()
	s := scoring.New(scoring.NewDefaultCorpus(), discardLogger(), m, opts...)
	return pipeline.NewEngine(cfg, s, discardLogger(), m), m
}

func incidentOf(t *testing.T, state domain.State, reportID string) domain.Incident {
	t.Helper()
	for _, inc := range state.Incidents {
		if inc.HasMember(reportID) {
			return inc
		}
	}
	t.Fatalf("report %s belongs to no incident", reportID)
	return domain.Incident{}
}

func TestProcessBatch_NearbyReportsShareIncident(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())

	for _, d := range []float64{0, 10, 25, 49.9} {
		res, err := e.ProcessBatch(context.Background(), []domain.Report{at("a", 0, ""), at("b", d, "")}, domain.State{})
		require.NoError(t, err)
		require.Len(t, res.State.Incidents, 1, "distance %v", d)
		assert.Equal(t, []string{"a", "b"}, res.State.Incidents[0].MemberReportIDs)
	}
}

func TestProcessBatch_DistantReportsStaySeparate(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())

	res, err := e.ProcessBatch(context.Background(), []domain.Report{at("a", 0, ""), at("b", 80, "")}, domain.State{})
	require.NoError(t, err)
	require.Len(t, res.State.Incidents, 2)
	assert.NotEqual(t, incidentOf(t, res.State, "a").ID, incidentOf(t, res.State, "b").ID)
}

func TestProcessBatch_UnrelatedReportsFormUnverifiedIncident(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())

	reports := []domain.Report{
		at("r1", 0, "my cat is sleeping on the sofa"),
		at("r2", 4, "lunch was great today"),
		at("r3", 9, "new bicycle lanes painted green"),
	}
	res, err := e.ProcessBatch(context.Background(), reports, domain.State{})
	require.NoError(t, err)

	require.Len(t, res.State.Incidents, 1)
	inc := res.State.Incidents[0]
	assert.Equal(t, domain.StatusUnverified, inc.Status)
	assert.Zero(t, inc.Confidence)
	assert.Equal(t, 3, inc.ReportCount)
	assert.Equal(t, "incident_1", inc.ID)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.State.LastSequence)
}

func TestProcessBatch_HighScoreNeedsCorroboration(t *testing.T) {
	reports := []domain.Report{
		at("flooded", 0, "Flood water is entering homes on River Road"),
		at("quiet", 200, "nothing to report here"),
	}

	cases := []struct {
		name       string
		minReports int
		want       domain.Status
	}{
		{"one report is enough", 1, domain.StatusVerified},
		{"two reports required", 2, domain.StatusUnverified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := pipeline.DefaultEngineConfig()
			cfg.VerifyMinReports = tc.minReports
			e, _ := newEngine(cfg, scoring.WithSimilarity(floodSimilarity))

			res, err := e.ProcessBatch(context.Background(), reports, domain.State{})
			require.NoError(t, err)
			require.Len(t, res.State.Incidents, 2)

			flood := incidentOf(t, res.State, "flooded")
			assert.InDelta(t, 0.9, flood.Confidence, 1e-12)
			assert.Equal(t, tc.want, flood.Status)

			quiet := incidentOf(t, res.State, "quiet")
			assert.Zero(t, quiet.Confidence)
			assert.Equal(t, domain.StatusUnverified, quiet.Status)
		})
	}
}

func TestProcessBatch_Idempotent(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))
	prior := domain.State{LastSequence: 4}
	reports := []domain.Report{
		at("a", 0, "flood at the school"), at("b", 20, ""),
		at("c", 500, ""), at("d", 1200, "flooding on the bridge"),
	}

	first, err := e.ProcessBatch(context.Background(), reports, prior)
	require.NoError(t, err)
	second, err := e.ProcessBatch(context.Background(), reports, prior)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same batch and prior gave different results (-first +second):\n%s", diff)
	}
	assert.Equal(t, "incident_5", incidentOf(t, first.State, "a").ID)

	again, err := e.ProcessBatch(context.Background(), reports, first.State)
	require.NoError(t, err)
	assert.Empty(t, again.Changed, "replaying a batch changes nothing")
	if diff := cmp.Diff(first.State, again.State); diff != "" {
		t.Errorf("replay changed state (-want +got):\n%s", diff)
	}
}

func TestProcessBatch_ConfidenceNeverDecreases(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))

	batches := [][]domain.Report{
		{at("a", 0, "")},
		{at("b", 5, "flood in the basement")},
		{at("c", 10, "")},
		{at("d", 3, "just rain")},
	}
	state := domain.State{}
	var last float64
	for i, batch := range batches {
		res, err := e.ProcessBatch(context.Background(), batch, state)
		require.NoError(t, err)
		require.Len(t, res.State.Incidents, 1, "batch %d", i)

		inc := res.State.Incidents[0]
		assert.GreaterOrEqual(t, inc.Confidence, last, "batch %d", i)
		assert.Equal(t, i+1, inc.ReportCount)
		last = inc.Confidence
		state = res.State
	}
	assert.InDelta(t, 0.9, last, 1e-12)
}

func TestProcessBatch_RefinementIsDeterministic(t *testing.T) {
	e, m := newEngine(pipeline.DefaultEngineConfig())

	// A 25-report chain 40m apart merges into one sprawling proximity cluster.
	var reports []domain.Report
	for i := range 25 {
		reports = append(reports, at(fmt.Sprintf("r%02d", i), float64(i)*40, ""))
	}

	first, err := e.ProcessBatch(context.Background(), reports, domain.State{})
	require.NoError(t, err)
	second, err := e.ProcessBatch(context.Background(), reports, domain.State{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.ClustersRefined)
	assert.Greater(t, len(first.State.Incidents), 1)
	if diff := cmp.Diff(first.State, second.State); diff != "" {
		t.Errorf("refinement is not deterministic (-first +second):\n%s", diff)
	}

	seen := map[string]int{}
	for _, inc := range first.State.Incidents {
		for _, id := range inc.MemberReportIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, 25)
	for id, n := range seen {
		assert.Equal(t, 1, n, "report %s", id)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClustersRefined))
}

func TestProcessBatch_EmptyBatchKeepsState(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())
	prior := domain.State{
		Incidents:    []domain.Incident{{ID: "incident_3", MemberReportIDs: []string{"x"}, ReportCount: 1}},
		LastSequence: 3,
	}

	res, err := e.ProcessBatch(context.Background(), nil, prior)
	require.NoError(t, err)
	assert.Equal(t, prior, res.State)
	assert.Empty(t, res.Changed)
}

func TestProcessBatch_DoesNotMutateInput(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))
	reports := []domain.Report{at("a", 0, "flood"), at("b", 5, "flood")}
	before := append([]domain.Report(nil), reports...)
	prior := domain.State{Incidents: []domain.Incident{{
		ID: "incident_1", Centroid: origin, MemberReportIDs: []string{"z"}, ReportCount: 1,
		CreatedAt: t0, LastUpdatedAt: t0, Status: domain.StatusUnverified,
	}}, LastSequence: 1}
	priorCopy := prior.Clone()

	res, err := e.ProcessBatch(context.Background(), reports, prior)
	require.NoError(t, err)

	assert.Equal(t, before, reports)
	assert.Equal(t, priorCopy, prior)
	require.Len(t, res.Reports, 2)
	assert.InDelta(t, 0.9, res.Reports[0].AuthenticityScore, 1e-12, "scores land on the copies")
}

func TestProcessBatch_InvalidCoordinatesAreUnclusterable(t *testing.T) {
	e, m := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))
	bad := at("bad", 0, "flood")
	bad.Latitude = 95

	res, err := e.ProcessBatch(context.Background(), []domain.Report{at("good", 0, ""), bad}, domain.State{})
	require.NoError(t, err)

	assert.Equal(t, []string{"bad"}, res.Unclusterable)
	require.Len(t, res.State.Incidents, 1)
	assert.Equal(t, []string{"good"}, res.State.Incidents[0].MemberReportIDs)
	require.Len(t, res.Reports, 2)
	assert.InDelta(t, 0.9, res.Reports[1].AuthenticityScore, 1e-12, "unclusterable reports are still scored")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsUnclusterable))
}

func TestProcessBatch_CorpusUnavailableScoresZero(t *testing.T) {
	m := newTestMetrics()
	s := scoring.New(failingCorpus{}, discardLogger(), m)
	e := pipeline.NewEngine(pipeline.DefaultEngineConfig(), s, discardLogger(), m)

	res, err := e.ProcessBatch(context.Background(), []domain.Report{
		at("a", 0, "Major earthquake hits downtown area"), at("b", 5, ""),
	}, domain.State{})
	require.NoError(t, err)

	assert.True(t, res.CorpusUnavailable)
	require.Len(t, res.State.Incidents, 1)
	assert.Zero(t, res.State.Incidents[0].Confidence)
	assert.Equal(t, domain.StatusUnverified, res.State.Incidents[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorpusUnavailable))
}

func TestProcessBatch_Cancelled(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.ProcessBatch(ctx, []domain.Report{at("a", 0, "")}, domain.State{LastSequence: 7})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.State.Incidents)
	assert.Zero(t, res.State.LastSequence)
}

func TestProcessBatch_DuplicateIDsKeepFirst(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig())

	res, err := e.ProcessBatch(context.Background(), []domain.Report{
		at("a", 0, "first"), at("a", 300, "second"), at("b", 10, ""),
	}, domain.State{})
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	assert.Equal(t, "first", res.Reports[0].Description)
	require.Len(t, res.State.Incidents, 1)
	assert.Equal(t, []string{"a", "b"}, res.State.Incidents[0].MemberReportIDs)
}

func TestRevalidate_RecomputesConfidence(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))
	first, err := e.ProcessBatch(context.Background(), []domain.Report{
		at("a", 0, "flood"), at("b", 5, "flood"),
	}, domain.State{})
	require.NoError(t, err)
	require.Equal(t, domain.StatusVerified, first.State.Incidents[0].Status)

	res, err := e.Revalidate(context.Background(), []domain.Report{
		at("a", 0, "retracted"), at("b", 5, "retracted"),
	}, first.State)
	require.NoError(t, err)
	inc := res.State.Incidents[0]
	assert.Zero(t, inc.Confidence)
	assert.Equal(t, domain.StatusUnverified, inc.Status)
	assert.Equal(t, 1, res.Updated)
}

func TestScoreSingle(t *testing.T) {
	always := func(string, string) float64 { return 1 }

	t.Run("empty description scores zero", func(t *testing.T) {
		e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(always))
		assert.Zero(t, e.ScoreSingle(context.Background(), at("a", 0, "")).AuthenticityScore)
		assert.Zero(t, e.ScoreSingle(context.Background(), at("a", 0, "   ")).AuthenticityScore)
	})

	t.Run("matching description", func(t *testing.T) {
		e, _ := newEngine(pipeline.DefaultEngineConfig())
		r := at("a", 0, "Major earthquake hits downtown area")
		r.Title = "Earthquake downtown"
		r.Needs = []string{"medical"}
		r.DisasterType = "earthquake"

		got := e.ScoreSingle(context.Background(), r)
		assert.InDelta(t, 1.0, got.AuthenticityScore, 1e-9)
		assert.Equal(t, "Major earthquake hits downtown area", got.MatchingNews)
		assert.Equal(t, domain.FakeIndicators{}, got.FakeIndicators)
		assert.Zero(t, got.FakeScore)
		assert.True(t, got.LikelyAuthentic)
	})

	t.Run("fake indicators override similarity", func(t *testing.T) {
		e, _ := newEngine(pipeline.DefaultEngineConfig())
		got := e.ScoreSingle(context.Background(), at("a", 0, "Major earthquake hits downtown area"))

		assert.InDelta(t, 1.0, got.AuthenticityScore, 1e-9)
		assert.Equal(t, domain.FakeIndicators{ShortTitle: true, NoNeeds: true, UnknownDisasterType: true}, got.FakeIndicators)
		assert.InDelta(t, 1.0, got.FakeScore, 1e-12)
		assert.False(t, got.LikelyAuthentic)
	})

	t.Run("corpus failure degrades to zero", func(t *testing.T) {
		m := newTestMetrics()
		s := scoring.New(failingCorpus{}, discardLogger(), m, scoring.WithSimilarity(always))
		e := pipeline.NewEngine(pipeline.DefaultEngineConfig(), s, discardLogger(), m)
		got := e.ScoreSingle(context.Background(), at("a", 0, "anything"))
		assert.Zero(t, got.AuthenticityScore)
		assert.False(t, got.LikelyAuthentic)
		assert.InDelta(t, 1.0, got.FakeScore, 1e-12, "heuristics do not need the corpus")
	})
}

func TestProcessBatch_FakeScoresGateAuthenticReports(t *testing.T) {
	e, _ := newEngine(pipeline.DefaultEngineConfig(), scoring.WithSimilarity(floodSimilarity))

	trusted := at("trusted", 0, "flood on main street")
	trusted.Title = "Street flooding"
	trusted.Needs = []string{"boats"}
	trusted.DisasterType = "flood"
	bare := at("bare", 5, "flood on main street")

	res, err := e.ProcessBatch(context.Background(), []domain.Report{trusted, bare}, domain.State{})
	require.NoError(t, err)

	require.Len(t, res.Reports, 2)
	assert.Zero(t, res.Reports[0].FakeScore)
	assert.InDelta(t, 1.0, res.Reports[1].FakeScore, 1e-12)
	assert.InDelta(t, 0.9, res.Reports[1].AuthenticityScore, 1e-12)
	assert.NotEmpty(t, res.Reports[0].MatchingNews)

	require.Len(t, res.State.Incidents, 1)
	inc := res.State.Incidents[0]
	assert.Equal(t, 1, inc.AuthenticReports, "a high similarity does not make a bare report authentic")
	assert.InDelta(t, 0.9, inc.Confidence, 1e-12)
}

func TestProcessBatch_SplitBatchesFormSameIncident(t *testing.T) {
	reports := []domain.Report{at("a", 0, ""), at("b", 45, ""), at("c", -40, "")}

	e, _ := newEngine(pipeline.DefaultEngineConfig())
	together, err := e.ProcessBatch(context.Background(), reports, domain.State{})
	require.NoError(t, err)
	require.Len(t, together.State.Incidents, 1)

	first, err := e.ProcessBatch(context.Background(), reports[:2], domain.State{})
	require.NoError(t, err)
	second, err := e.ProcessBatch(context.Background(), reports[2:], first.State)
	require.NoError(t, err)

	require.Len(t, second.State.Incidents, 1, "c is within the radius of member a")
	assert.Equal(t, together.State.Incidents[0].MemberReportIDs, second.State.Incidents[0].MemberReportIDs)
	assert.Equal(t, 1, second.State.LastSequence)
	assert.Equal(t, 1, second.Updated)
}
