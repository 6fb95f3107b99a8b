package newsfeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
)

// Source fetches the full list of reference items.
type Source interface {
	Fetch(ctx context.Context) ([]domain.ReferenceNewsItem, error)
}

// Corpus serves the last successfully fetched snapshot of a Source.
// It implements domain.ReferenceCorpus and is safe for concurrent use.
type Corpus struct {
	source   Source
	maxItems int
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu   sync.RWMutex
	snap *domain.CorpusSnapshot
}

// NewCorpus creates a Corpus. Nothing is fetched until Refresh or the first
// Snapshot call. maxItems <= 0 disables truncation.
func NewCorpus(source Source, maxItems int, logger *slog.Logger, metrics *observability.Metrics) *Corpus {
	return &Corpus{source: source, maxItems: maxItems, logger: logger, metrics: metrics}
}

// Snapshot returns the current snapshot, fetching it first if none has been
// loaded yet. Without any successful fetch it returns an error wrapping
// domain.ErrCorpusUnavailable.
func (c *Corpus) Snapshot(ctx context.Context) (domain.CorpusSnapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return *snap, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return domain.CorpusSnapshot{}, fmt.Errorf("%w: %w", domain.ErrCorpusUnavailable, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.snap, nil
}

// Refresh fetches the source and swaps in the new snapshot. On failure the
// previous snapshot stays in place.
func (c *Corpus) Refresh(ctx context.Context) error {
	items, err := c.source.Fetch(ctx)
	if err != nil {
		c.metrics.CorpusRefreshes.WithLabelValues("error").Inc()
		c.logger.Warn("reference corpus refresh failed, keeping previous snapshot", "error", err)
		return err
	}

	if c.maxItems > 0 && len(items) > c.maxItems {
		c.logger.Warn("reference corpus truncated", "items", len(items), "max", c.maxItems)
		items = items[:c.maxItems]
	}
	snap := domain.NewCorpusSnapshot(items)

	c.mu.Lock()
	prev := c.snap
	c.snap = &snap
	c.mu.Unlock()

	c.metrics.CorpusRefreshes.WithLabelValues("success").Inc()
	c.metrics.CorpusItems.Set(float64(len(snap.Items)))
	if prev == nil || prev.Version != snap.Version {
		c.logger.Info("reference corpus loaded", "items", len(snap.Items), "version", snap.Version)
	}
	return nil
}

// Schedule refreshes the corpus on a cron spec (standard five fields or
// descriptors such as "@every 15m") until the returned stop function is
// called. Overlapping runs are skipped.
func (c *Corpus) Schedule(ctx context.Context, spec string) (func(), error) {
	logger := cronLogger{c.logger}
	cr := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := cr.AddFunc(spec, func() { _ = c.Refresh(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule corpus refresh %q: %w", spec, err)
	}
	cr.Start()
	c.logger.Info("corpus refresh scheduled", "schedule", spec)

	return func() { <-cr.Stop().Done() }, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
