package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReferenceItems(t *testing.T) {
	items := DefaultReferenceItems()
	require.Len(t, items, 8)
	assert.Equal(t, "Major earthquake hits downtown area", items[0].Text)

	items[0].Text = "changed"
	assert.NotEqual(t, "changed", DefaultReferenceItems()[0].Text, "returns a copy")
}

func TestNewCorpusSnapshot(t *testing.T) {
	snap := NewCorpusSnapshot([]ReferenceNewsItem{{Text: "flood"}, {Text: "  "}, {Text: "fire"}})
	require.Len(t, snap.Items, 2)
	assert.NotEmpty(t, snap.Version)

	same := NewCorpusSnapshot([]ReferenceNewsItem{{ID: "x", Text: "flood"}, {ID: "y", Text: "fire"}})
	assert.Equal(t, snap.Version, same.Version, "version depends on texts only")

	other := NewCorpusSnapshot([]ReferenceNewsItem{{Text: "fire"}, {Text: "flood"}})
	assert.NotEqual(t, snap.Version, other.Version)

	assert.NotEqual(t, CorpusVersion([]ReferenceNewsItem{{Text: "ab"}, {Text: "c"}}),
		CorpusVersion([]ReferenceNewsItem{{Text: "a"}, {Text: "bc"}}))
}
