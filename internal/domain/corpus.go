package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// defaultHeadlines are the reference headlines served when no corpus file or
// news feed is configured.
var defaultHeadlines = []string{
	"Major earthquake hits downtown area",
	"Flash floods reported in residential zones",
	"Wildfire spreading through forest areas",
	"Tornado warning issued for suburban regions",
	"Hurricane approaching coastal areas",
	"Landslide blocks mountain roads",
	"Building collapse in commercial district",
	"Chemical spill in industrial zone",
}

// DefaultReferenceItems returns a fresh copy of the built-in reference corpus.
func DefaultReferenceItems() []ReferenceNewsItem {
	items := make([]ReferenceNewsItem, len(defaultHeadlines))
	for i, h := range defaultHeadlines {
		items[i] = ReferenceNewsItem{ID: fmt.Sprintf("builtin-%d", i+1), Text: h}
	}
	return items
}

// NewCorpusSnapshot builds a snapshot and stamps it with a deterministic
// version derived from the item texts. Items with blank text are dropped.
func NewCorpusSnapshot(items []ReferenceNewsItem) CorpusSnapshot {
	kept := make([]ReferenceNewsItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		kept = append(kept, it)
	}
	return CorpusSnapshot{Items: kept, Version: CorpusVersion(kept)}
}

// CorpusVersion hashes the item texts in order. Two corpora with the same texts
// share a version, so cached scores stay valid across identical refreshes.
func CorpusVersion(items []ReferenceNewsItem) string {
	h := sha256.New()
	for _, it := range items {
		h.Write([]byte(it.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
