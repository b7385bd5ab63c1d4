package rank

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/store"
)

type fakeRetriever struct {
	mu           sync.Mutex
	vectorDocs   []store.Document
	keywordDocs  []store.Document
	vectorErr    error
	keywordErr   error
	vectorCalls  int
	keywordCalls int
	vectorTopK   int
}

func (f *fakeRetriever) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error) {
	f.mu.Lock()
	f.vectorCalls++
	f.vectorTopK = topK
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorDocs, nil
}

func (f *fakeRetriever) KeywordSearch(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error) {
	f.mu.Lock()
	f.keywordCalls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.keywordErr != nil {
		return nil, f.keywordErr
	}
	return f.keywordDocs, nil
}

func TestHybridSearchFusesBothModes(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs:  []store.Document{doc("a", 0.9), doc("b", 0.8)},
		keywordDocs: []store.Document{doc("b", 3), doc("c", 1)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	// b appears in both rankings and outscores the single-list results.
	assert.Equal(t, []string{"b", "a", "c"}, docIDs(docs))
	assert.InDelta(t, 1.0/62+1.0/61, docs[0].Score, 1e-9)

	assert.Equal(t, 1, retriever.vectorCalls)
	assert.Equal(t, 1, retriever.keywordCalls)
}

func TestHybridSearchDegradesWhenVectorFails(t *testing.T) {
	retriever := &fakeRetriever{
		vectorErr:   store.NewRetrievalError("vector", "search", "q", errors.New("embedder down")),
		keywordDocs: []store.Document{doc("c", 2)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	// Keyword ranking survives untouched, raw score included.
	assert.Equal(t, "c", docs[0].ID)
	assert.InDelta(t, 2.0, docs[0].Score, 1e-9)
}

func TestHybridSearchDegradesWhenKeywordFails(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs: []store.Document{doc("a", 0.9)},
		keywordErr: store.NewRetrievalError("keyword", "search", "q", errors.New("index gone")),
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-9)
}

func TestHybridSearchFailsWhenBothModesFail(t *testing.T) {
	retriever := &fakeRetriever{
		vectorErr:  store.NewRetrievalError("vector", "search", "q", errors.New("embedder down")),
		keywordErr: store.NewRetrievalError("keyword", "search", "q", errors.New("index gone")),
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.Error(t, err)
	assert.Nil(t, docs)

	var retrievalErr *store.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "hybrid", retrievalErr.Backend)
	assert.Contains(t, err.Error(), "embedder down")
	assert.Contains(t, err.Error(), "index gone")
}

func TestHybridSearchVectorMode(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs:  []store.Document{doc("a", 0.9)},
		keywordDocs: []store.Document{doc("c", 2)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{Mode: "vector"})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, 1, retriever.vectorCalls)
	assert.Equal(t, 0, retriever.keywordCalls)
}

func TestHybridSearchKeywordMode(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs:  []store.Document{doc("a", 0.9)},
		keywordDocs: []store.Document{doc("c", 2)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{Mode: "keyword"})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, 0, retriever.vectorCalls)
	assert.Equal(t, 1, retriever.keywordCalls)
}

func TestHybridSearchTruncatesToTopK(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs:  []store.Document{doc("a", 0.9), doc("b", 0.8), doc("c", 0.7)},
		keywordDocs: []store.Document{doc("d", 3), doc("e", 2), doc("f", 1)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 2, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, retriever.vectorTopK)
}

func TestHybridSearchDefaultTopK(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs: []store.Document{doc("a", 0.9)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{Mode: "vector", TopK: 5})
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "logging", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, retriever.vectorTopK)
}

func TestHybridSearchMinScore(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs: []store.Document{doc("a", 0.9), doc("b", 0.2)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{Mode: "vector", MinScore: 0.5})
	require.NoError(t, err)

	docs, err := searcher.Search(context.Background(), "logging", 10, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestHybridSearchContextCanceled(t *testing.T) {
	retriever := &fakeRetriever{
		vectorDocs:  []store.Document{doc("a", 0.9)},
		keywordDocs: []store.Document{doc("c", 2)},
	}
	searcher, err := NewHybridSearcher(retriever, config.SearchConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = searcher.Search(ctx, "logging", 10, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewHybridSearcherValidation(t *testing.T) {
	_, err := NewHybridSearcher(nil, config.SearchConfig{})
	require.Error(t, err)

	_, err = NewHybridSearcher(&fakeRetriever{}, config.SearchConfig{Mode: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid search config")
}
