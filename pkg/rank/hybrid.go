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

package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/store"
)

// Retriever is the slice of the document store the searcher needs.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error)
	KeywordSearch(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error)
}

// HybridSearcher runs vector and keyword retrieval side by side and fuses
// the two rankings into one. The search mode from the configuration decides
// whether both backends run or a single one is passed through.
type HybridSearcher struct {
	retriever Retriever
	fuser     *Fuser
	mode      string
	topK      int
	minScore  float64
}

// NewHybridSearcher creates a searcher over the given retriever.
func NewHybridSearcher(retriever Retriever, cfg config.SearchConfig) (*HybridSearcher, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}

	return &HybridSearcher{
		retriever: retriever,
		fuser:     NewFuser(cfg),
		mode:      cfg.Mode,
		topK:      cfg.TopK,
		minScore:  cfg.MinScore,
	}, nil
}

// Mode returns the configured search mode.
func (h *HybridSearcher) Mode() string {
	return h.mode
}

// Search retrieves documents for the query. topK <= 0 uses the configured
// default. Results are ordered by score descending and truncated to topK.
func (h *HybridSearcher) Search(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error) {
	if topK <= 0 {
		topK = h.topK
	}

	var (
		docs []store.Document
		err  error
	)
	switch h.mode {
	case "vector":
		docs, err = h.retriever.Search(ctx, query, topK, filter)
	case "keyword":
		docs, err = h.retriever.KeywordSearch(ctx, query, topK, filter)
	default:
		docs, err = h.searchHybrid(ctx, query, topK, filter)
	}
	if err != nil {
		return nil, err
	}

	if h.minScore > 0 {
		kept := make([]store.Document, 0, len(docs))
		for _, doc := range docs {
			if doc.Score >= h.minScore {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

// searchHybrid fans out to both retrieval modes and fuses the rankings.
// Either mode may fail on its own; the search degrades to the surviving
// ranking and only fails when both sides do.
func (h *HybridSearcher) searchHybrid(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error) {
	startTime := time.Now()

	var (
		wg          sync.WaitGroup
		vectorDocs  []store.Document
		keywordDocs []store.Document
		vectorErr   error
		keywordErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorDocs, vectorErr = h.retriever.Search(ctx, query, topK, filter)
	}()
	go func() {
		defer wg.Done()
		keywordDocs, keywordErr = h.retriever.KeywordSearch(ctx, query, topK, filter)
	}()
	wg.Wait()

	if vectorErr != nil && keywordErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := store.NewRetrievalError("hybrid", "search", query,
			fmt.Errorf("vector: %v; keyword: %v", vectorErr, keywordErr))
		h.recordSearch(ctx, startTime, 0, err)
		return nil, err
	}
	if vectorErr != nil {
		slog.Warn("Vector search failed, using keyword results only", "error", vectorErr)
		h.recordSearch(ctx, startTime, len(keywordDocs), nil)
		return keywordDocs, nil
	}
	if keywordErr != nil {
		slog.Warn("Keyword search failed, using vector results only", "error", keywordErr)
		h.recordSearch(ctx, startTime, len(vectorDocs), nil)
		return vectorDocs, nil
	}

	fused := h.fuser.Fuse(vectorDocs, keywordDocs)
	h.recordSearch(ctx, startTime, len(fused), nil)
	return fused, nil
}

// recordSearch counts the fused search. The store counts the vector and
// keyword legs itself under their own mode labels.
func (h *HybridSearcher) recordSearch(ctx context.Context, startTime time.Time, results int, err error) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordSearch(ctx, "hybrid", time.Since(startTime), results, err)
	}
}
