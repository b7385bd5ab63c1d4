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

package config

import "fmt"

// VectorStoreConfig configures the vector database backend.
//
// Example YAML:
//
//	store:
//	  vector_store:
//	    type: chromem
//	    persist_path: .dowser/vectors
//
//	store:
//	  vector_store:
//	    type: qdrant
//	    host: qdrant.example.com
//	    port: 6334
//	    api_key: ${QDRANT_API_KEY}
type VectorStoreConfig struct {
	// Type is the backend: "chromem" (embedded), "qdrant", or "pinecone".
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=chromem,enum=qdrant,enum=pinecone,default=chromem"`

	// Host for external backends.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port for external backends.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey for authenticated access.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// EnableTLS enables TLS connections to external backends.
	EnableTLS *bool `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty"`

	// PersistPath for chromem file persistence. Empty keeps the
	// index in memory only.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`

	// Collection is the collection (or index) name.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`

	// Namespace for Pinecone.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.Port == 0 && c.Type == "qdrant" {
		c.Port = 6334
	}
}

// Validate checks the configuration.
func (c *VectorStoreConfig) Validate() error {
	validTypes := map[string]bool{"chromem": true, "qdrant": true, "pinecone": true}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}

	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant")
	}
	if c.Type == "pinecone" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for pinecone")
	}

	return nil
}

// IsEmbedded reports whether the backend runs in-process.
func (c *VectorStoreConfig) IsEmbedded() bool {
	return c.Type == "chromem"
}

// StoreConfig configures the document store: its backing indexes and
// the sources documents are ingested from.
type StoreConfig struct {
	// VectorStore configures the semantic index backend.
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty" json:"vector_store,omitempty"`

	// Sources to ingest documents from.
	Sources []SourceConfig `yaml:"sources,omitempty" json:"sources,omitempty"`

	// Chunking configures how large documents are split.
	Chunking ChunkingConfig `yaml:"chunking,omitempty" json:"chunking,omitempty"`

	// Ingest configures ingestion concurrency.
	Ingest IngestConfig `yaml:"ingest,omitempty" json:"ingest,omitempty"`

	// Watch re-ingests files when directory sources change on disk.
	Watch bool `yaml:"watch,omitempty" json:"watch,omitempty"`
}

// SetDefaults applies default values.
func (c *StoreConfig) SetDefaults() {
	c.VectorStore.SetDefaults()
	c.Chunking.SetDefaults()
	c.Ingest.SetDefaults()
	for i := range c.Sources {
		c.Sources[i].SetDefaults()
	}
}

// Validate checks the configuration.
func (c *StoreConfig) Validate() error {
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	for i, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source[%d]: %w", i, err)
		}
	}
	return nil
}

// SourceConfig configures one document source.
type SourceConfig struct {
	// Type is "directory" or "sql".
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Path is the root directory (directory sources).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Include glob patterns (directory sources). Empty includes all
	// supported file types.
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`

	// Exclude glob patterns (directory sources).
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// MaxFileSize in bytes (directory sources).
	MaxFileSize int64 `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`

	// SQL configures a database-backed source.
	SQL *SQLSourceConfig `yaml:"sql,omitempty" json:"sql,omitempty"`
}

// SetDefaults applies default values.
func (c *SourceConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "directory"
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 * 1024 * 1024 // 10MB
	}
	if c.Exclude == nil {
		c.Exclude = []string{".*", "node_modules", "vendor", ".git"}
	}
}

// Validate checks the configuration.
func (c *SourceConfig) Validate() error {
	switch c.Type {
	case "directory":
		if c.Path == "" {
			return fmt.Errorf("path is required for directory source")
		}
	case "sql":
		if c.SQL == nil {
			return fmt.Errorf("sql config is required for sql source")
		}
		if err := c.SQL.Validate(); err != nil {
			return fmt.Errorf("sql: %w", err)
		}
	default:
		return fmt.Errorf("invalid source type %q (valid: directory, sql)", c.Type)
	}
	return nil
}

// SQLSourceConfig configures a SQL-backed document source.
type SQLSourceConfig struct {
	// Database references a connection from the databases section.
	Database string `yaml:"database" json:"database"`

	// Table to read rows from.
	Table string `yaml:"table" json:"table"`

	// IDColumn is the primary key column.
	IDColumn string `yaml:"id_column" json:"id_column"`

	// ContentColumns are concatenated into the document body.
	ContentColumns []string `yaml:"content_columns" json:"content_columns"`

	// TitleColumn becomes the document title when set.
	TitleColumn string `yaml:"title_column,omitempty" json:"title_column,omitempty"`

	// MetadataColumns are carried as document metadata.
	MetadataColumns []string `yaml:"metadata_columns,omitempty" json:"metadata_columns,omitempty"`

	// WhereClause filters rows.
	WhereClause string `yaml:"where_clause,omitempty" json:"where_clause,omitempty"`
}

// Validate checks the configuration.
func (c *SQLSourceConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database reference is required")
	}
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	if c.IDColumn == "" {
		return fmt.Errorf("id_column is required")
	}
	if len(c.ContentColumns) == 0 {
		return fmt.Errorf("at least one content column is required")
	}
	return nil
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// Size is the target chunk size in characters.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`

	// Overlap between consecutive chunks in characters.
	Overlap int `yaml:"overlap,omitempty" json:"overlap,omitempty"`

	// PreserveWords avoids splitting mid-word.
	PreserveWords *bool `yaml:"preserve_words,omitempty" json:"preserve_words,omitempty"`
}

// SetDefaults applies default values.
func (c *ChunkingConfig) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.PreserveWords == nil {
		c.PreserveWords = BoolPtr(true)
	}
}

// Validate checks the configuration.
func (c *ChunkingConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive")
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative")
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("overlap must be less than size")
	}
	return nil
}

// IngestConfig configures ingestion behavior.
type IngestConfig struct {
	// MaxConcurrent bounds parallel embed-and-index workers.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

// SetDefaults applies default values.
func (c *IngestConfig) SetDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
}

// Validate checks the configuration.
func (c *IngestConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive")
	}
	return nil
}

// SearchConfig configures retrieval and result fusion.
type SearchConfig struct {
	// Mode is "hybrid", "vector", or "keyword".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" jsonschema:"enum=hybrid,enum=vector,enum=keyword,default=hybrid"`

	// TopK is the number of results returned per search.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"minimum=1,default=10"`

	// Fusion method for hybrid mode: "rrf", "weighted", or "max".
	Fusion string `yaml:"fusion,omitempty" json:"fusion,omitempty" jsonschema:"enum=rrf,enum=weighted,enum=max,default=rrf"`

	// RankConstant dampens the contribution of top-ranked results in
	// reciprocal rank fusion.
	RankConstant int `yaml:"rank_constant,omitempty" json:"rank_constant,omitempty" jsonschema:"minimum=1,default=60"`

	// VectorWeight and KeywordWeight bias weighted fusion.
	VectorWeight  float64 `yaml:"vector_weight,omitempty" json:"vector_weight,omitempty"`
	KeywordWeight float64 `yaml:"keyword_weight,omitempty" json:"keyword_weight,omitempty"`

	// MinScore filters fused results below this score. Zero keeps all.
	MinScore float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "hybrid"
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.Fusion == "" {
		c.Fusion = "rrf"
	}
	if c.RankConstant <= 0 {
		c.RankConstant = 60
	}
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = 0.7
		c.KeywordWeight = 0.3
	}
}

// Validate checks the configuration.
func (c *SearchConfig) Validate() error {
	validModes := map[string]bool{"hybrid": true, "vector": true, "keyword": true}
	if !validModes[c.Mode] {
		return fmt.Errorf("invalid mode %q (valid: hybrid, vector, keyword)", c.Mode)
	}
	validFusion := map[string]bool{"rrf": true, "weighted": true, "max": true}
	if !validFusion[c.Fusion] {
		return fmt.Errorf("invalid fusion %q (valid: rrf, weighted, max)", c.Fusion)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.RankConstant <= 0 {
		return fmt.Errorf("rank_constant must be positive")
	}
	if c.VectorWeight < 0 || c.KeywordWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	return nil
}
