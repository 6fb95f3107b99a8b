package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
)

const defaultCacheSize = 1000

// SimilarityFunc compares a report text with one reference text and returns a
// value in [0, 1].
type SimilarityFunc func(text, reference string) float64

// Scorer computes authenticity scores against a reference corpus. It is safe
// for concurrent use.
type Scorer struct {
	corpus     domain.ReferenceCorpus
	similarity SimilarityFunc
	workers    int
	cache      *lru.Cache
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	prepared *preparedCorpus
}

// preparedCorpus caches the term vectors of one corpus version.
type preparedCorpus struct {
	version string
	texts   []string
	vectors []termVector
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWorkers bounds the number of reports scored in parallel.
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCacheSize sets the number of cached scores.
func WithCacheSize(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.cache = newCache(n)
		}
	}
}

// WithSimilarity replaces the term-frequency cosine with fn.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(s *Scorer) {
		s.similarity = fn
	}
}

// New creates a Scorer reading reference items from corpus.
func New(corpus domain.ReferenceCorpus, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Scorer {
	s := &Scorer{
		corpus:  corpus,
		workers: runtime.NumCPU(),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = newCache(defaultCacheSize)
	}
	return s
}

func newCache(size int) *lru.Cache {
	// lru.New only fails for non-positive sizes.
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return c
}

// ScoreReports returns the best reference match per report, in input order.
// When the corpus cannot be read every score is 0 and the returned error wraps
// domain.ErrCorpusUnavailable; callers treat that as degraded, not failed.
// Any other error is a context cancellation.
func (s *Scorer) ScoreReports(ctx context.Context, reports []domain.Report) ([]domain.NewsMatch, error) {
	start := time.Now()
	scores := make([]domain.NewsMatch, len(reports))
	if len(reports) == 0 {
		return scores, nil
	}

	prep, err := s.load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("reference corpus unavailable, scoring reports as 0",
			"error", err,
			"reports", len(reports),
		)
		s.metrics.CorpusUnavailable.Inc()
		return scores, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range reports {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = s.score(prep, reports[i].Description)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	return scores, nil
}

// Score rates a single text. It degrades to 0 the same way as ScoreReports.
func (s *Scorer) Score(ctx context.Context, text string) (domain.NewsMatch, error) {
	prep, err := s.load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewsMatch{}, ctx.Err()
		}
		s.metrics.CorpusUnavailable.Inc()
		return domain.NewsMatch{}, err
	}
	return s.score(prep, text), nil
}

func (s *Scorer) load(ctx context.Context) (*preparedCorpus, error) {
	snap, err := s.corpus.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorpusUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
	}
	return s.prepare(snap), nil
}

func (s *Scorer) prepare(snap domain.CorpusSnapshot) *preparedCorpus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.prepared; p != nil && snap.Version != "" && p.version == snap.Version {
		return p
	}

	p := &preparedCorpus{
		version: snap.Version,
		texts:   make([]string, len(snap.Items)),
		vectors: make([]termVector, len(snap.Items)),
	}
	for i, it := range snap.Items {
		p.texts[i] = it.Text
		p.vectors[i] = newTermVector(it.Text)
	}
	if p.version == "" {
		p.version = domain.CorpusVersion(snap.Items)
	}
	s.prepared = p
	return p
}

// score returns the best similarity of text against every reference item.
// Ties go to the earlier item.
func (s *Scorer) score(p *preparedCorpus, text string) domain.NewsMatch {
	if strings.TrimSpace(text) == "" || len(p.texts) == 0 {
		return domain.NewsMatch{}
	}

	key := p.version + "\x00" + text
	if v, ok := s.cache.Get(key); ok {
		s.metrics.ScoreCache.WithLabelValues("hit").Inc()
		return v.(domain.NewsMatch)
	}
	s.metrics.ScoreCache.WithLabelValues("miss").Inc()

	var best domain.NewsMatch
	if s.similarity != nil {
		for _, ref := range p.texts {
			if sim := clamp(s.similarity(text, ref)); sim > best.Score {
				best = domain.NewsMatch{Score: sim, Reference: ref}
			}
		}
	} else {
		v := newTermVector(text)
		for i, ref := range p.vectors {
			if sim := cosine(v, ref); sim > best.Score {
				best = domain.NewsMatch{Score: sim, Reference: p.texts[i]}
			}
		}
	}

	s.cache.Add(key, best)
	return best
}
