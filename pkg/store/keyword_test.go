package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keywordDocs() []Document {
	return []Document{
		{ID: "a", Content: "configure logging levels for the server", Metadata: map[string]any{"source": "kb"}},
		{ID: "b", Content: "logging output formats", Metadata: map[string]any{"source": "kb"}},
		{ID: "c", Content: "deployment checklist", Metadata: map[string]any{"source": "web"}},
	}
}

func TestKeywordIndexRanksByMatchedTerms(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	results := idx.Search("configure logging", 10, nil)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, float64(2), results[0].Score)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, float64(1), results[1].Score)
}

func TestKeywordIndexTieBreaksByID(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	results := idx.Search("logging", 10, nil)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestKeywordIndexTopK(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	assert.Len(t, idx.Search("logging", 1, nil), 1)
	assert.Empty(t, idx.Search("logging", 0, nil))
}

func TestKeywordIndexFilter(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	results := idx.Search("logging deployment", 10, map[string]any{"source": "web"})

	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
}

func TestKeywordIndexNoMatches(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	assert.Empty(t, idx.Search("zebra", 10, nil))
	assert.Empty(t, idx.Search("", 10, nil))
}

func TestKeywordIndexRemove(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	idx.Remove("a")

	assert.Equal(t, 2, idx.Len())
	assert.False(t, idx.Has("a"))
	assert.Empty(t, idx.Search("configure", 10, nil))
}

func TestKeywordIndexReindexReplaces(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	idx.Index(Document{ID: "a", Content: "entirely new material"})

	assert.Equal(t, 3, idx.Len())
	assert.Empty(t, idx.Search("configure", 10, nil))

	results := idx.Search("material", 10, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestKeywordIndexRemoveMatching(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)

	removed := idx.RemoveMatching(map[string]any{"source": "kb"})

	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.RemoveMatching(nil))
}

func TestKeywordIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "keywords.json")

	idx := NewKeywordIndex()
	idx.Index(keywordDocs()...)
	require.NoError(t, idx.Save(path))

	loaded := NewKeywordIndex()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 3, loaded.Len())
	results := loaded.Search("configure logging", 10, nil)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "kb", results[0].Metadata["source"])
}

func TestKeywordIndexLoadMissingFile(t *testing.T) {
	idx := NewKeywordIndex()

	require.NoError(t, idx.Load(filepath.Join(t.TempDir(), "absent.json")))
	assert.Equal(t, 0, idx.Len())
}

func TestTokenize(t *testing.T) {
	terms := tokenize("Hello, World! (Logging) is on")

	assert.Contains(t, terms, "hello")
	assert.Contains(t, terms, "world")
	assert.Contains(t, terms, "logging")
	assert.NotContains(t, terms, "is")
	assert.NotContains(t, terms, "on")
}
