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

// Package vector provides pluggable vector storage backends for similarity
// search over pre-computed embeddings.
//
// Three backends are supported:
//   - chromem: embedded, pure Go, optional file persistence. The
//     zero-config default.
//   - qdrant: external Qdrant server over gRPC.
//   - pinecone: managed Pinecone indexes.
//
// Embeddings are always computed externally (see pkg/embedder); providers
// only store and search vectors.
package vector

import (
	"context"
	"fmt"

	"github.com/dowser-io/dowser/pkg/config"
)

// Item is a single entry in a vector collection: a pre-computed embedding
// plus the text it was computed from and arbitrary metadata.
type Item struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Result is a scored search hit.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider abstracts a vector database backend.
type Provider interface {
	// Name returns the backend identifier ("chromem", "qdrant", "pinecone").
	Name() string

	// Upsert adds or replaces items in a collection. Collections are
	// created on first use where the backend allows it.
	Upsert(ctx context.Context, collection string, items []Item) error

	// Search returns up to topK items ranked by cosine similarity to
	// vector, best first. An empty result set is not an error.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter restricts Search to items whose metadata matches
	// every key/value pair in filter.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes items by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error

	// DeleteByFilter removes all items whose metadata matches filter.
	// An empty filter is rejected rather than matching everything.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// Count reports how many items the collection holds.
	Count(ctx context.Context, collection string) (int, error)

	// DeleteCollection removes a collection and everything in it.
	DeleteCollection(ctx context.Context, collection string) error

	// Close flushes pending state and releases backend resources.
	Close() error
}

// New creates a vector provider from configuration.
func New(cfg *config.VectorStoreConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store configuration is required")
	}

	switch cfg.Type {
	case "chromem":
		return NewChromemProvider(cfg)
	case "qdrant":
		return NewQdrantProvider(cfg)
	case "pinecone":
		return NewPineconeProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown vector store type: %q", cfg.Type)
	}
}
