package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-incident-service/internal/cluster"
	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/incident"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
)

// ReportScorer rates report descriptions against the reference corpus.
type ReportScorer interface {
	ScoreReports(ctx context.Context, reports []domain.Report) ([]domain.NewsMatch, error)
	Score(ctx context.Context, text string) (domain.NewsMatch, error)
}

// EngineConfig holds the incident formation settings.
type EngineConfig struct {
	RadiusMeters        float64
	SplitThreshold      int
	SpreadTolerance     float64
	MaxIterations       int
	EpsilonMeters       float64
	SimilarityThreshold float64
	VerifyMinReports    int
}

// DefaultEngineConfig returns the stock incident formation settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RadiusMeters:        50,
		SplitThreshold:      cluster.DefaultSplitThreshold,
		SpreadTolerance:     cluster.DefaultSpreadTolerance,
		MaxIterations:       cluster.DefaultMaxIterations,
		EpsilonMeters:       cluster.DefaultEpsilonMeters,
		SimilarityThreshold: 0.3,
		VerifyMinReports:    2,
	}
}

// Result is the outcome of one ProcessBatch call.
type Result struct {
	// State is the full incident state to persist.
	State domain.State

	// Changed holds the incidents created or updated by this batch.
	Changed []domain.Incident

	// Reports are scored copies of the input reports, duplicates removed.
	Reports []domain.Report

	// Unclusterable lists ids of reports with invalid coordinates. They are
	// scored but belong to no incident.
	Unclusterable []string

	// CorpusUnavailable is set when scoring fell back to 0 for every report.
	CorpusUnavailable bool

	ClustersRefined      int
	ConvergenceLimitHits int
	Created              int
	Updated              int
}

// Engine runs incident formation over one batch of reports: proximity merge,
// K-Means refinement and authenticity scoring, followed by aggregation into
// the prior incident state.
type Engine struct {
	scorer     ReportScorer
	refiner    cluster.Refiner
	aggregator incident.Aggregator
	radius     float64
	threshold  float64
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, scorer ReportScorer, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		scorer: scorer,
		refiner: cluster.Refiner{
			RadiusMeters:    cfg.RadiusMeters,
			SplitThreshold:  cfg.SplitThreshold,
			SpreadTolerance: cfg.SpreadTolerance,
			MaxIterations:   cfg.MaxIterations,
			EpsilonMeters:   cfg.EpsilonMeters,
		},
		aggregator: incident.Aggregator{
			RadiusMeters:       cfg.RadiusMeters,
			VerifyThreshold:    cfg.SimilarityThreshold,
			MinReports:         cfg.VerifyMinReports,
			AuthenticThreshold: cfg.SimilarityThreshold,
		},
		radius:    cfg.RadiusMeters,
		threshold: cfg.SimilarityThreshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessBatch forms incidents from reports and merges them into prior.
// Neither reports nor prior are modified. An empty batch returns prior
// unchanged with no changed incidents. The only errors are context
// cancellations; a cancelled run discards all partial work.
func (e *Engine) ProcessBatch(ctx context.Context, reports []domain.Report, prior domain.State) (Result, error) {
	return e.process(ctx, reports, prior, false)
}

// Revalidate is ProcessBatch with confidence and status recomputed from the
// given reports instead of kept as high-water marks.
func (e *Engine) Revalidate(ctx context.Context, reports []domain.Report, prior domain.State) (Result, error) {
	return e.process(ctx, reports, prior, true)
}

// ScoreSingle assesses one report outside of any batch. Scoring failures
// degrade to a 0 similarity; the fake indicators are still reported.
func (e *Engine) ScoreSingle(ctx context.Context, report domain.Report) domain.Assessment {
	indicators := domain.DetectFakeIndicators(report)
	a := domain.Assessment{FakeIndicators: indicators, FakeScore: indicators.Score()}

	match, err := e.scorer.Score(ctx, report.Description)
	if err != nil {
		e.logger.Warn("score single report failed, using 0", "report_id", report.ID, "error", err)
		return a
	}
	a.AuthenticityScore = match.Score
	a.MatchingNews = match.Reference
	a.LikelyAuthentic = domain.LikelyAuthentic(match.Score, a.FakeScore, e.threshold)
	return a
}

func (e *Engine) process(ctx context.Context, reports []domain.Report, prior domain.State, revalidate bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(reports) == 0 {
		e.logger.Debug("empty batch, state unchanged", "error", domain.ErrEmptyBatch)
		return Result{State: prior.Clone()}, nil
	}

	scored := e.dedupe(reports)

	var (
		points   []domain.Coordinate
		pointIdx []int
		res      Result
	)
	for i, r := range scored {
		if !domain.ValidCoordinate(r.Latitude, r.Longitude) {
			res.Unclusterable = append(res.Unclusterable, r.ID)
			continue
		}
		points = append(points, r.Coordinate())
		pointIdx = append(pointIdx, i)
	}

	var (
		clusters []cluster.Cluster
		stats    cluster.RefineStats
		matches  []domain.NewsMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clusters, stats = e.refiner.Refine(points, cluster.Merge(points, e.radius))
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		matches, err = e.scorer.ScoreReports(gctx, scored)
		if errors.Is(err, domain.ErrCorpusUnavailable) {
			res.CorpusUnavailable = true
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for i := range scored {
		if i < len(matches) {
			scored[i].AuthenticityScore = matches[i].Score
			scored[i].MatchingNews = matches[i].Reference
		}
		scored[i].FakeScore = domain.DetectFakeIndicators(scored[i]).Score()
	}

	groups := make([]incident.Group, len(clusters))
	for i, c := range clusters {
		members := make([]domain.Report, len(c))
		for j, p := range c {
			members[j] = scored[pointIdx[p]]
		}
		groups[i] = incident.Group{Reports: members}
	}

	seq := incident.SequenceFor(prior)
	out := e.aggregator.Aggregate(prior.Incidents, groups, seq, revalidate)

	res.State = domain.State{Incidents: out.Incidents, LastSequence: seq.Last()}
	res.Changed = out.Changed
	res.Reports = scored
	res.ClustersRefined = stats.Refined
	res.ConvergenceLimitHits = stats.ConvergenceLimitHits
	res.Created = out.Created
	res.Updated = out.Updated

	e.record(res)
	return res, nil
}

// dedupe copies reports, keeping the first occurrence of each id.
func (e *Engine) dedupe(reports []domain.Report) []domain.Report {
	seen := make(map[string]bool, len(reports))
	out := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if seen[r.ID] {
			e.logger.Warn("duplicate report id in batch, keeping first", "report_id", r.ID)
			continue
		}
		seen[r.ID] = true
		r.Needs = append([]string(nil), r.Needs...)
		out = append(out, r)
	}
	return out
}

func (e *Engine) record(res Result) {
	e.metrics.ReportsUnclusterable.Add(float64(len(res.Unclusterable)))
	e.metrics.ClustersRefined.Add(float64(res.ClustersRefined))
	e.metrics.KMeansConvergenceLimit.Add(float64(res.ConvergenceLimitHits))
	e.metrics.IncidentChanges.WithLabelValues("created").Add(float64(res.Created))
	e.metrics.IncidentChanges.WithLabelValues("updated").Add(float64(res.Updated))
	e.metrics.IncidentsTracked.Set(float64(len(res.State.Incidents)))

	if res.ConvergenceLimitHits > 0 {
		e.logger.Warn("k-means stopped at iteration cap",
			"error", domain.ErrConvergenceLimitReached,
			"runs", res.ConvergenceLimitHits,
		)
	}
	if len(res.Unclusterable) > 0 {
		e.logger.Warn("reports with invalid coordinates excluded from clustering",
			"error", domain.ErrInvalidCoordinate,
			"count", len(res.Unclusterable),
		)
	}
}
