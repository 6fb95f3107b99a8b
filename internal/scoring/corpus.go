package scoring

import (
	"context"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// StaticCorpus serves a fixed set of reference items.
type StaticCorpus struct {
	snap domain.CorpusSnapshot
}

// NewStaticCorpus builds a corpus from items. With no items every score is 0.
func NewStaticCorpus(items []domain.ReferenceNewsItem) *StaticCorpus {
	return &StaticCorpus{snap: domain.NewCorpusSnapshot(items)}
}

// NewDefaultCorpus serves the built-in disaster headlines.
func NewDefaultCorpus() *StaticCorpus {
	return NewStaticCorpus(domain.DefaultReferenceItems())
}

func (c *StaticCorpus) Snapshot(_ context.Context) (domain.CorpusSnapshot, error) {
	return c.snap, nil
}
