package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/vector"
)

// stubEmbedder returns canned vectors for known texts and a
// deterministic hash-derived vector for everything else.
type stubEmbedder struct {
	vectors map[string][]float32
	failOn  map[string]bool
	fail    bool
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors: make(map[string][]float32),
		failOn:  make(map[string]bool),
	}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail || e.failOn[text] {
		return nil, errors.New("embedder offline")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, 3)
	for i := range v {
		v[i] = float32(sum[i])/255 + 0.01
	}
	return v, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int { return 3 }
func (e *stubEmbedder) Model() string  { return "stub" }
func (e *stubEmbedder) Close() error   { return nil }

func newTestStore(t *testing.T, emb *stubEmbedder) *Store {
	t.Helper()

	cfg := &config.StoreConfig{}
	cfg.SetDefaults()

	provider, err := vector.New(&config.VectorStoreConfig{Type: "chromem"})
	require.NoError(t, err)

	s, err := New(cfg, nil, nil, emb, provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testStoreDocs registers orthogonal vectors for three documents so
// nearest-neighbor results are unambiguous.
func testStoreDocs(emb *stubEmbedder) []Document {
	emb.vectors["logging levels control verbosity"] = []float32{1, 0, 0}
	emb.vectors["retrieval tuning guide"] = []float32{0, 1, 0}
	emb.vectors["deployment runbook steps"] = []float32{0, 0, 1}
	emb.vectors["how do I configure logging"] = []float32{1, 0, 0}

	return []Document{
		{
			ID:       "docs/logging.md",
			Content:  "logging levels control verbosity",
			Source:   "directory:docs",
			Metadata: map[string]any{"path": "/kb/docs/logging.md", "title": "logging"},
		},
		{
			ID:       "docs/tuning.md",
			Content:  "retrieval tuning guide",
			Source:   "directory:docs",
			Metadata: map[string]any{"path": "/kb/docs/tuning.md", "title": "tuning"},
		},
		{
			ID:       "docs/deploy.md",
			Content:  "deployment runbook steps",
			Source:   "directory:docs",
			Metadata: map[string]any{"path": "/kb/docs/deploy.md", "title": "deploy"},
		},
	}
}

func TestStoreIngestAndSearch(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	stats, err := s.Ingest(ctx, testStoreDocs(emb))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 0, stats.Failed)

	results, err := s.Search(ctx, "how do I configure logging", 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "logging levels control verbosity", top.Content)
	assert.Equal(t, "docs/logging.md", top.Metadata["doc_id"])
	assert.Equal(t, "directory:docs", top.Source)
	assert.InDelta(t, 1.0, top.Score, 0.01)
}

func TestStoreSearchEmptyIndex(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())

	results, err := s.Search(context.Background(), "anything at all", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreSearchEmptyQuery(t *testing.T) {
	s := newTestStore(t, newStubEmbedder())

	_, err := s.Search(context.Background(), "   ", 5, nil)
	var retrErr *RetrievalError
	require.ErrorAs(t, err, &retrErr)
	assert.Equal(t, "vector", retrErr.Backend)
}

func TestStoreSearchEmbedderFailure(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	emb.fail = true

	_, err := s.Search(context.Background(), "query", 5, nil)
	var retrErr *RetrievalError
	require.ErrorAs(t, err, &retrErr)
	assert.Equal(t, "embedder", retrErr.Backend)
}

func TestStoreKeywordSearch(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	_, err := s.Ingest(ctx, testStoreDocs(emb))
	require.NoError(t, err)

	results, err := s.KeywordSearch(ctx, "deployment runbook", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "deployment runbook steps", results[0].Content)
	assert.Equal(t, float64(2), results[0].Score)

	none, err := s.KeywordSearch(ctx, "nonexistentterm", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreIngestCountsFailures(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	docs := testStoreDocs(emb)
	emb.failOn[docs[1].Content] = true

	stats, err := s.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Failed)
}

func TestStoreReingestReplacesChunks(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	long := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 80))
	_, err := s.Ingest(ctx, []Document{{ID: "doc", Content: long}})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VectorCount)

	_, err = s.Ingest(ctx, []Document{{ID: "doc", Content: "alpha beta"}})
	require.NoError(t, err)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
	assert.Equal(t, 1, stats.KeywordCount)
}

func TestStoreRemoveByPath(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	_, err := s.Ingest(ctx, testStoreDocs(emb))
	require.NoError(t, err)

	require.NoError(t, s.RemoveByPath(ctx, "/kb/docs/logging.md"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VectorCount)
	assert.Equal(t, 2, stats.KeywordCount)

	results, err := s.KeywordSearch(ctx, "verbosity", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreStats(t *testing.T) {
	emb := newStubEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	_, err := s.Ingest(ctx, testStoreDocs(emb))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chromem", stats.Backend)
	assert.Equal(t, "documents", stats.Collection)
	assert.Equal(t, 3, stats.VectorCount)
	assert.Equal(t, 3, stats.KeywordCount)
	assert.False(t, stats.Watching)
}

func TestStorePersistenceAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StoreConfig{
		VectorStore: config.VectorStoreConfig{Type: "chromem", PersistPath: dir},
	}
	cfg.SetDefaults()
	ctx := context.Background()

	emb := newStubEmbedder()
	docs := testStoreDocs(emb)

	provider, err := vector.New(&cfg.VectorStore)
	require.NoError(t, err)
	s, err := New(cfg, nil, nil, emb, provider)
	require.NoError(t, err)
	_, err = s.Ingest(ctx, docs)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := vector.New(&cfg.VectorStore)
	require.NoError(t, err)
	s2, err := New(cfg, nil, nil, emb, reopened)
	require.NoError(t, err)
	defer s2.Close()

	stats, err := s2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.VectorCount)
	assert.Equal(t, 3, stats.KeywordCount)

	keyword, err := s2.KeywordSearch(ctx, "deployment", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, keyword)

	semantic, err := s2.Search(ctx, "how do I configure logging", 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, semantic)
	assert.Equal(t, "logging levels control verbosity", semantic[0].Content)
}

func TestStoreIngestFromSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("the note body"), 0o644))

	cfg := &config.StoreConfig{
		Sources: []config.SourceConfig{{Type: "directory", Path: dir}},
	}
	cfg.SetDefaults()

	provider, err := vector.New(&config.VectorStoreConfig{Type: "chromem"})
	require.NoError(t, err)
	s, err := New(cfg, nil, nil, newStubEmbedder(), provider)
	require.NoError(t, err)
	defer s.Close()

	stats, err := s.IngestFromSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Chunks)
}

func TestStoreWatchReingestsChanges(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StoreConfig{
		Sources: []config.SourceConfig{{Type: "directory", Path: dir}},
	}
	cfg.SetDefaults()

	provider, err := vector.New(&config.VectorStoreConfig{Type: "chromem"})
	require.NoError(t, err)
	s, err := New(cfg, nil, nil, newStubEmbedder(), provider)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.StartWatching(ctx))
	defer s.StopWatching()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Watching)

	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("watched content arrives"), 0o644))
	require.Eventually(t, func() bool {
		stats, err := s.Stats(ctx)
		return err == nil && stats.VectorCount == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		stats, err := s.Stats(ctx)
		return err == nil && stats.VectorCount == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewStoreValidation(t *testing.T) {
	provider, err := vector.New(&config.VectorStoreConfig{Type: "chromem"})
	require.NoError(t, err)
	cfg := &config.StoreConfig{}
	cfg.SetDefaults()

	_, err = New(nil, nil, nil, newStubEmbedder(), provider)
	require.Error(t, err)

	_, err = New(cfg, nil, nil, nil, provider)
	require.Error(t, err)

	_, err = New(cfg, nil, nil, newStubEmbedder(), nil)
	require.Error(t, err)
}
