// Copyright 2025 The Dowser Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store implements document ingestion and retrieval. Documents
// flow in from configured sources, get chunked and embedded, and land
// in two indexes: a vector backend for semantic search and an
// in-memory keyword index for exact-term search.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/embedder"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/vector"
)

// defaultTopK applies when a caller asks for zero or fewer results.
const defaultTopK = 10

// keywordIndexFile sits next to the chromem persistence files.
const keywordIndexFile = "keywords.json"

// Store owns the document indexes and the ingestion pipeline that
// fills them.
type Store struct {
	cfg        *config.StoreConfig
	databases  map[string]config.DatabaseConfig
	pool       *config.DBPool
	embedder   embedder.Embedder
	vectors    vector.Provider
	keywords   *KeywordIndex
	chunker    *Chunker
	collection string

	mu          sync.Mutex
	watchers    []*fileWatcher
	watchCancel context.CancelFunc
}

// New builds a store over the given embedder and vector backend. The
// databases map and pool back SQL sources and may be nil when none
// are configured. The store owns the vector provider and closes it.
func New(cfg *config.StoreConfig, databases map[string]config.DatabaseConfig, pool *config.DBPool, emb embedder.Embedder, vectors vector.Provider) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector provider is required")
	}

	collection := cfg.VectorStore.Collection
	if collection == "" {
		collection = "documents"
	}

	s := &Store{
		cfg:        cfg,
		databases:  databases,
		pool:       pool,
		embedder:   emb,
		vectors:    vectors,
		keywords:   NewKeywordIndex(),
		chunker:    NewChunker(cfg.Chunking),
		collection: collection,
	}

	if path := s.keywordIndexPath(); path != "" {
		if err := s.keywords.Load(path); err != nil {
			slog.Warn("Failed to load keyword index, starting empty", "path", path, "error", err)
		} else if n := s.keywords.Len(); n > 0 {
			slog.Info("Loaded keyword index", "path", path, "documents", n)
		}
	}

	return s, nil
}

// keywordIndexPath returns where the keyword index persists, empty
// when the store is memory-only.
func (s *Store) keywordIndexPath() string {
	if s.cfg.VectorStore.PersistPath == "" {
		return ""
	}
	return filepath.Join(s.cfg.VectorStore.PersistPath, keywordIndexFile)
}

// Search embeds the query and returns the closest documents from the
// vector index, best first. An empty result set is not an error, only
// backend failures are.
func (s *Store) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewRetrievalError("vector", "search", query, fmt.Errorf("query is empty"))
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	startTime := time.Now()
	tracer := observability.GetTracer("dowser.store")
	ctx, span := tracer.Start(ctx, observability.SpanSearch,
		trace.WithAttributes(
			attribute.String(observability.AttrSearchMode, "vector"),
			attribute.String(observability.AttrStoreBackend, s.vectors.Name()),
		))
	defer span.End()

	backend := "embedder"
	var results []vector.Result
	queryVector, err := s.embedder.Embed(ctx, query)
	if err == nil {
		backend = "vector"
		results, err = s.vectors.SearchWithFilter(ctx, s.collection, queryVector, topK, filter)
	}

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordSearch(ctx, "vector", time.Since(startTime), len(results), err)
	}
	if err != nil {
		span.RecordError(err)
		return nil, NewRetrievalError(backend, "search", query, err)
	}

	docs := make([]Document, 0, len(results))
	for _, result := range results {
		docs = append(docs, documentFromResult(result))
	}
	span.SetAttributes(attribute.Int(observability.AttrResultCount, len(docs)))
	return docs, nil
}

// KeywordSearch returns documents ranked by exact term matches from
// the in-memory index, best first.
func (s *Store) KeywordSearch(ctx context.Context, query string, topK int, filter map[string]any) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, NewRetrievalError("keyword", "search", query, fmt.Errorf("query is empty"))
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	startTime := time.Now()
	docs := s.keywords.Search(query, topK, filter)
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordSearch(ctx, "keyword", time.Since(startTime), len(docs), nil)
	}
	return docs, nil
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Ingest chunks, embeds and indexes documents, fanning the work out
// across the configured number of workers. A failed document is
// logged and counted, it does not abort the run. Chunk IDs derive
// from the document ID, so re-ingesting a document replaces its
// previous chunks.
func (s *Store) Ingest(ctx context.Context, docs []Document) (*IngestStats, error) {
	startTime := time.Now()
	stats := &IngestStats{}
	if len(docs) == 0 {
		return stats, nil
	}

	tracer := observability.GetTracer("dowser.store")
	ctx, span := tracer.Start(ctx, observability.SpanIngest,
		trace.WithAttributes(attribute.String(observability.AttrStoreBackend, s.vectors.Name())))
	defer span.End()

	maxConcurrent := s.cfg.Ingest.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	var wg sync.WaitGroup
	var indexed, chunks, failed atomic.Int64

	for _, doc := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(doc Document) {
			defer wg.Done()
			defer sem.Release(1)

			docStart := time.Now()
			n, err := s.ingestDocument(ctx, doc)
			if metrics := observability.GetGlobalMetrics(); metrics != nil {
				metrics.RecordIngest(ctx, doc.Source, time.Since(docStart), err)
			}
			if err != nil {
				failed.Add(1)
				slog.Warn("Failed to ingest document", "id", doc.ID, "error", err)
				return
			}
			indexed.Add(1)
			chunks.Add(int64(n))
		}(doc)
	}
	wg.Wait()

	stats.Documents = int(indexed.Load())
	stats.Chunks = int(chunks.Load())
	stats.Failed = int(failed.Load())
	stats.Elapsed = time.Since(startTime)

	if err := s.saveKeywords(); err != nil {
		slog.Warn("Failed to persist keyword index", "error", err)
	}

	rate := 0.0
	if seconds := stats.Elapsed.Seconds(); seconds > 0 {
		rate = float64(stats.Documents) / seconds
	}
	slog.Info("Ingestion complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
		"docs_per_sec", fmt.Sprintf("%.1f", rate))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) ingestDocument(ctx context.Context, doc Document) (int, error) {
	if doc.ID == "" {
		return 0, fmt.Errorf("document has no ID")
	}
	chunks := s.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	// Upserts overwrite matching chunk IDs. Clearing first handles a
	// document that shrank to fewer chunks than last time.
	if s.keywords.Has(chunkID(doc.ID, 0)) {
		if err := s.removeDocumentChunks(ctx, doc.ID); err != nil {
			slog.Debug("Failed to clear previous chunks", "id", doc.ID, "error", err)
		}
	}

	items := make([]vector.Item, len(chunks))
	keywordDocs := make([]Document, len(chunks))
	for i, chunk := range chunks {
		metadata := make(map[string]any, len(doc.Metadata)+4)
		for key, value := range doc.Metadata {
			metadata[key] = value
		}
		metadata["doc_id"] = doc.ID
		metadata["chunk_index"] = chunk.Index
		metadata["chunk_total"] = chunk.Total
		if doc.Source != "" {
			metadata["source"] = doc.Source
		}

		id := chunkID(doc.ID, chunk.Index)
		items[i] = vector.Item{
			ID:       id,
			Vector:   vectors[i],
			Content:  chunk.Content,
			Metadata: metadata,
		}
		keywordDocs[i] = Document{
			ID:       id,
			Content:  chunk.Content,
			Metadata: metadata,
			Source:   doc.Source,
		}
	}

	if err := s.vectors.Upsert(ctx, s.collection, items); err != nil {
		return 0, fmt.Errorf("failed to index chunks: %w", err)
	}
	s.keywords.Index(keywordDocs...)
	return len(chunks), nil
}

// chunkID derives a stable UUID for one chunk. Qdrant and Pinecone
// require UUID point IDs, and stable IDs make re-ingestion an upsert.
func chunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", docID, index))).String()
}

// IngestFromSources discovers and ingests documents from every
// configured source.
func (s *Store) IngestFromSources(ctx context.Context) (*IngestStats, error) {
	startTime := time.Now()
	total := &IngestStats{}

	for _, srcCfg := range s.cfg.Sources {
		source, err := NewSource(srcCfg, s.databases, s.pool)
		if err != nil {
			return total, fmt.Errorf("failed to build %s source: %w", srcCfg.Type, err)
		}

		docs, err := collectDocuments(ctx, source)
		if closeErr := source.Close(); closeErr != nil {
			slog.Warn("Failed to close source", "source", source.Name(), "error", closeErr)
		}
		if err != nil {
			return total, err
		}
		slog.Info("Discovered documents", "source", source.Name(), "documents", len(docs))

		stats, err := s.Ingest(ctx, docs)
		if stats != nil {
			total.Documents += stats.Documents
			total.Chunks += stats.Chunks
			total.Failed += stats.Failed
		}
		if err != nil {
			return total, err
		}
	}

	total.Elapsed = time.Since(startTime)
	return total, nil
}

// collectDocuments drains a source's discovery channels. Discovery
// errors are logged, not fatal.
func collectDocuments(ctx context.Context, source Source) ([]Document, error) {
	docChan, errChan := source.Discover(ctx)

	var docs []Document
	for docChan != nil || errChan != nil {
		select {
		case doc, ok := <-docChan:
			if !ok {
				docChan = nil
				continue
			}
			docs = append(docs, doc)
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			slog.Warn("Document discovery error", "source", source.Name(), "error", err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return docs, nil
}

// RemoveByPath drops every chunk that came from the file at path.
func (s *Store) RemoveByPath(ctx context.Context, path string) error {
	filter := map[string]any{"path": path}
	if err := s.vectors.DeleteByFilter(ctx, s.collection, filter); err != nil {
		return NewRetrievalError("vector", "delete", "", err)
	}
	s.keywords.RemoveMatching(filter)
	if err := s.saveKeywords(); err != nil {
		slog.Warn("Failed to persist keyword index", "error", err)
	}
	return nil
}

func (s *Store) removeDocumentChunks(ctx context.Context, docID string) error {
	filter := map[string]any{"doc_id": docID}
	if err := s.vectors.DeleteByFilter(ctx, s.collection, filter); err != nil {
		return err
	}
	s.keywords.RemoveMatching(filter)
	return nil
}

// StartWatching begins re-ingesting files as they change under the
// configured directory sources. It is a no-op when none exist.
func (s *Store) StartWatching(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		return fmt.Errorf("already watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var watchers []*fileWatcher
	cleanup := func() {
		cancel()
		for _, watcher := range watchers {
			watcher.close()
		}
	}

	for _, srcCfg := range s.cfg.Sources {
		if srcCfg.Type != "directory" {
			continue
		}
		source, err := NewDirectorySource(srcCfg)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to watch %q: %w", srcCfg.Path, err)
		}
		watcher, err := newFileWatcher(source, 0, func(ctx context.Context, event watchEvent) {
			s.handleWatchEvent(ctx, source, event)
		})
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to watch %q: %w", srcCfg.Path, err)
		}
		watchers = append(watchers, watcher)
		go watcher.run(watchCtx)
		slog.Info("Watching for file changes", "path", srcCfg.Path)
	}

	if len(watchers) == 0 {
		cancel()
		return nil
	}
	s.watchers = watchers
	s.watchCancel = cancel
	return nil
}

// StopWatching stops the file watchers.
func (s *Store) StopWatching() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel == nil {
		return
	}
	s.watchCancel()
	for _, watcher := range s.watchers {
		watcher.close()
	}
	s.watchers = nil
	s.watchCancel = nil
}

func (s *Store) handleWatchEvent(ctx context.Context, source *DirectorySource, event watchEvent) {
	switch event.kind {
	case watchUpsert:
		doc, err := source.ReadDocument(ctx, event.path)
		if err != nil {
			slog.Warn("Failed to read changed file", "path", event.path, "error", err)
			return
		}
		if doc == nil {
			return
		}
		if _, err := s.Ingest(ctx, []Document{*doc}); err != nil {
			slog.Warn("Failed to re-ingest changed file", "path", event.path, "error", err)
			return
		}
		slog.Info("Re-ingested changed file", "path", event.path)

	case watchDelete:
		if err := s.RemoveByPath(ctx, event.path); err != nil {
			slog.Warn("Failed to remove deleted file from index", "path", event.path, "error", err)
			return
		}
		slog.Info("Removed deleted file from index", "path", event.path)
	}
}

// Stats describes the store's current index sizes.
type Stats struct {
	Backend      string `json:"backend"`
	Collection   string `json:"collection"`
	VectorCount  int    `json:"vector_count"`
	KeywordCount int    `json:"keyword_count"`
	Watching     bool   `json:"watching"`
}

// Stats reports index sizes from both backends.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.vectors.Count(ctx, s.collection)
	if err != nil {
		return nil, NewRetrievalError("vector", "count", "", err)
	}

	s.mu.Lock()
	watching := s.watchCancel != nil
	s.mu.Unlock()

	return &Stats{
		Backend:      s.vectors.Name(),
		Collection:   s.collection,
		VectorCount:  count,
		KeywordCount: s.keywords.Len(),
		Watching:     watching,
	}, nil
}

// Close stops watchers, persists the keyword index and closes the
// vector backend.
func (s *Store) Close() error {
	s.StopWatching()
	if err := s.saveKeywords(); err != nil {
		slog.Warn("Failed to persist keyword index", "error", err)
	}
	return s.vectors.Close()
}

func (s *Store) saveKeywords() error {
	path := s.keywordIndexPath()
	if path == "" {
		return nil
	}
	return s.keywords.Save(path)
}

func documentFromResult(result vector.Result) Document {
	source := ""
	if v, ok := result.Metadata["source"].(string); ok {
		source = v
	}
	return Document{
		ID:       result.ID,
		Content:  result.Content,
		Metadata: result.Metadata,
		Score:    float64(result.Score),
		Source:   source,
	}
}
