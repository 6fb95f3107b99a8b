package domain

import "errors"

var (
	// ErrInvalidCoordinate marks a report whose latitude or longitude is out of
	// range. Such reports are excluded from clustering but still scored.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidReport marks a report that failed field validation for any
	// reason other than its coordinates. It is dropped at ingestion.
	ErrInvalidReport = errors.New("invalid report")

	// ErrEmptyBatch marks a batch with no reports. The pipeline treats it as an
	// empty incident delta rather than a failure.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrBatchTooLarge marks a batch exceeding the configured report cap.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrCorpusUnavailable marks a reference corpus that cannot be read. Scoring
	// degrades to 0 for every report.
	ErrCorpusUnavailable = errors.New("reference corpus unavailable")

	// ErrConvergenceLimitReached marks a K-Means run that hit its iteration cap.
	// The best partition found so far is used.
	ErrConvergenceLimitReached = errors.New("k-means convergence limit reached")
)
