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

package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dowser-io/dowser/pkg/config"
)

// PineconeProvider implements Provider against managed Pinecone indexes.
// The collection name maps to a Pinecone index, which must be provisioned
// ahead of time; writes can be scoped to a namespace.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
	namespace string

	// hosts caches index hosts so DescribeIndex runs once per index.
	mu    sync.Mutex
	hosts map[string]string
}

// NewPineconeProvider creates a Pinecone-backed provider.
func NewPineconeProvider(cfg *config.VectorStoreConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	clientParams := pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	}
	if cfg.Host != "" {
		clientParams.Host = cfg.Host
	}

	client, err := pinecone.NewClient(clientParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	indexName := cfg.Collection
	if indexName == "" {
		indexName = "dowser-index"
	}

	return &PineconeProvider{
		client:    client,
		indexName: indexName,
		namespace: cfg.Namespace,
		hosts:     make(map[string]string),
	}, nil
}

// Name returns the provider name.
func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) resolveIndex(collection string) string {
	if collection == "" {
		return p.indexName
	}
	return collection
}

// indexHost resolves and caches the data-plane host for an index.
func (p *PineconeProvider) indexHost(ctx context.Context, indexName string) (string, error) {
	p.mu.Lock()
	host, ok := p.hosts[indexName]
	p.mu.Unlock()
	if ok {
		return host, nil
	}

	index, err := p.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", indexName, err)
	}

	p.mu.Lock()
	p.hosts[indexName] = index.Host
	p.mu.Unlock()
	return index.Host, nil
}

// connect opens an IndexConnection for the collection's index.
func (p *PineconeProvider) connect(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	host, err := p.indexHost(ctx, p.resolveIndex(collection))
	if err != nil {
		return nil, err
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: p.namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return conn, nil
}

// Upsert adds or replaces items with their pre-computed embeddings.
func (p *PineconeProvider) Upsert(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(items))
	for _, item := range items {
		fields := make(map[string]any, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			fields[k] = v
		}
		// Content rides in the metadata so search results can carry it back.
		fields["content"] = item.Content

		metadata, err := structpb.NewStruct(fields)
		if err != nil {
			return fmt.Errorf("failed to convert metadata for %s: %w", item.ID, err)
		}

		vectors = append(vectors, &pinecone.Vector{
			Id:       item.ID,
			Values:   item.Vector,
			Metadata: metadata,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}

	return nil
}

// Search finds the most similar vectors in a collection.
func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter combines vector similarity with metadata filtering.
func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	queryResponse, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	return convertPineconeResults(queryResponse.Matches), nil
}

// Delete removes items by ID.
func (p *PineconeProvider) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// DeleteByFilter removes all items matching the filter.
func (p *PineconeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("filter cannot be empty")
	}

	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	metadataFilter, err := structpb.NewStruct(filter)
	if err != nil {
		return fmt.Errorf("failed to convert filter: %w", err)
	}

	if err := conn.DeleteVectorsByFilter(ctx, metadataFilter); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

// Count reports how many vectors the index namespace holds.
func (p *PineconeProvider) Count(ctx context.Context, collection string) (int, error) {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to describe index stats: %w", err)
	}

	if p.namespace != "" {
		if ns, ok := stats.Namespaces[p.namespace]; ok {
			return int(ns.VectorCount), nil
		}
		return 0, nil
	}
	return int(stats.TotalVectorCount), nil
}

// DeleteCollection clears every vector in the index namespace. The index
// itself stays in place since Pinecone indexes are provisioned resources.
func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Close releases the provider. The Pinecone client has no explicit close.
func (p *PineconeProvider) Close() error {
	return nil
}

// convertPineconeResults converts Pinecone matches to Results.
func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))

	for _, match := range matches {
		if match.Vector == nil {
			continue
		}

		metadata := make(map[string]any)
		if match.Vector.Metadata != nil {
			for k, v := range match.Vector.Metadata.AsMap() {
				metadata[k] = v
			}
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
			delete(metadata, "content")
		}

		results = append(results, Result{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Content:  content,
			Metadata: metadata,
		})
	}

	return results
}

// Ensure PineconeProvider implements Provider.
var _ Provider = (*PineconeProvider)(nil)
