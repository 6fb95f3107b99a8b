package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw report batch messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawBatch, error)
}

// BatchProcessor forms incidents from one batch of reports.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, reports []domain.Report, prior domain.State) (Result, error)
}

// StateStore loads and saves the incident state carried between batches.
type StateStore interface {
	Load(ctx context.Context) (domain.State, error)
	Save(ctx context.Context, state domain.State) error
}

// IncidentLoader writes created or updated incidents to the destination.
type IncidentLoader interface {
	LoadIncidents(ctx context.Context, incidents []domain.Incident) error
}

// Options tune the run loop.
type Options struct {
	// BatchSize is the number of Kafka messages polled per cycle.
	BatchSize int

	// MaxBatchReports caps the reports accepted in one batch message.
	MaxBatchReports int
}

// Pipeline orchestrates the extract-process-load loop. Batch messages are
// processed one at a time so each run sees the state saved by the previous one.
type Pipeline struct {
	extractor BatchExtractor
	processor BatchProcessor
	store     StateStore
	loader    IncidentLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	opts      Options

	// pending holds messages to retry before extracting new ones.
	pending []domain.RawBatch
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, p BatchProcessor, s StateStore, l IncidentLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.MaxBatchReports <= 0 {
		opts.MaxBatchReports = domain.DefaultMaxBatchReports
	}
	return &Pipeline{
		extractor: e,
		processor: p,
		store:     s,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil if the pipeline has processed at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any batches yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.opts.BatchSize, "max_batch_reports", p.opts.MaxBatchReports)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.poll(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// poll runs one extract cycle and processes every message it returned.
// Messages left uncommitted by a downstream failure are retried first on the
// next cycle. Returns false if the pipeline should stop.
func (p *Pipeline) poll(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	msgs := p.pending
	p.pending = nil

	if len(msgs) == 0 {
		var err error
		msgs, err = p.extractor.ExtractBatch(ctx, p.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("extract batch failed", "error", err)
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		if len(msgs) == 0 {
			return ctx.Err() == nil
		}
		p.metrics.MessagesConsumed.Add(float64(len(msgs)))
	}

	for i, raw := range msgs {
		ok, retry := p.handle(ctx, raw)
		if !ok {
			return false
		}
		if retry {
			p.pending = msgs[i:]
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		*backoff = 200 * time.Millisecond
	}
	return true
}

// handle processes one batch message end to end and commits it. ok is false
// when the pipeline should stop; retry is true when a downstream failure left
// the message uncommitted.
func (p *Pipeline) handle(ctx context.Context, raw domain.RawBatch) (ok, retry bool) {
	start := time.Now()

	batch, err := domain.ParseBatch(raw, p.opts.MaxBatchReports)
	if err != nil {
		p.logger.Warn("decode batch failed, skipping message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.BatchErrors.Inc()
		p.commitOffset(ctx, raw)
		return true, false
	}

	if len(batch.Rejected) > 0 {
		p.metrics.ReportsRejected.Add(float64(len(batch.Rejected)))
		for id, rerr := range batch.Rejected {
			p.logger.Warn("report rejected", "batch_id", batch.ID, "report_id", id, "error", rerr)
		}
	}

	prior, err := p.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		p.logger.Error("load incident state failed", "error", err, "batch_id", batch.ID)
		return true, true
	}

	res, err := p.processor.ProcessBatch(ctx, batch.Reports, prior)
	if err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		p.logger.Warn("process batch failed, skipping message", "error", err, "batch_id", batch.ID)
		p.metrics.BatchErrors.Inc()
		p.commitOffset(ctx, raw)
		return true, false
	}

	if len(res.Changed) > 0 {
		if err := p.loader.LoadIncidents(ctx, res.Changed); err != nil {
			if ctx.Err() != nil {
				return false, false
			}
			p.logger.Error("load incidents failed", "error", err, "batch_id", batch.ID, "incidents", len(res.Changed))
			return true, true
		}
		p.metrics.IncidentsEmitted.Add(float64(len(res.Changed)))
	}

	if err := p.store.Save(ctx, res.State); err != nil {
		if ctx.Err() != nil {
			return false, false
		}
		p.logger.Error("save incident state failed", "error", err, "batch_id", batch.ID)
		return true, true
	}

	p.commitOffset(ctx, raw)
	p.metrics.BatchReports.Observe(float64(len(batch.Reports)))
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	p.logger.Info("batch processed",
		"batch_id", batch.ID,
		"reports", len(batch.Reports),
		"rejected", len(batch.Rejected),
		"created", res.Created,
		"updated", res.Updated,
		"incidents", len(res.State.Incidents),
		"corpus_unavailable", res.CorpusUnavailable,
	)
	return true, false
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawBatch) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
