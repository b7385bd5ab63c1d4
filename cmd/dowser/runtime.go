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

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dowser-io/dowser/pkg/agent"
	"github.com/dowser-io/dowser/pkg/assess"
	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/embedder"
	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/memory"
	"github.com/dowser-io/dowser/pkg/rank"
	"github.com/dowser-io/dowser/pkg/refine"
	"github.com/dowser-io/dowser/pkg/store"
	"github.com/dowser-io/dowser/pkg/utils"
	"github.com/dowser-io/dowser/pkg/vector"
)

// components holds everything a command needs, assembled once from the
// configuration. Construction is explicit: each piece gets its
// collaborators as arguments, nothing is looked up by name at runtime.
type components struct {
	provider llm.Provider
	embedder embedder.Embedder
	store    *store.Store
	engine   *agent.Engine
	pool     *config.DBPool
}

// buildComponents wires the full answer pipeline from config.
func buildComponents(cfg *config.Config) (*components, error) {
	provider, err := llm.NewProvider(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	emb, err := embedder.New(&cfg.Embedder)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vectors, err := vector.New(&cfg.Store.VectorStore)
	if err != nil {
		provider.Close()
		emb.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	pool := config.NewDBPool()

	docStore, err := store.New(&cfg.Store, cfg.Databases, pool, emb, vectors)
	if err != nil {
		provider.Close()
		emb.Close()
		vectors.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}

	searcher, err := rank.NewHybridSearcher(docStore, cfg.Search)
	if err != nil {
		docStore.Close()
		provider.Close()
		emb.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}

	engine, err := agent.NewEngine(agent.EngineConfig{
		Searcher:    searcher,
		Assessor:    assess.New(provider, 0),
		Refiner:     refine.New(provider),
		Synthesizer: agent.NewSynthesizer(provider, cfg.Agent),
		Agent:       cfg.Agent,
	})
	if err != nil {
		docStore.Close()
		provider.Close()
		emb.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &components{
		provider: provider,
		embedder: emb,
		store:    docStore,
		engine:   engine,
		pool:     pool,
	}, nil
}

// Close releases every component. Safe to call once.
func (c *components) Close() {
	if err := c.store.Close(); err != nil {
		slog.Warn("Failed to close document store", "error", err)
	}
	if err := c.provider.Close(); err != nil {
		slog.Warn("Failed to close LLM provider", "error", err)
	}
	if err := c.embedder.Close(); err != nil {
		slog.Warn("Failed to close embedder", "error", err)
	}
	if err := c.pool.Close(); err != nil {
		slog.Warn("Failed to close database pool", "error", err)
	}
}

// openMemory opens the note store when memory is enabled. A named
// database from the databases section wins; otherwise an embedded
// SQLite file lives beside the vector store's persistence path.
func openMemory(cfg *config.Config, pool *config.DBPool) (*memory.Store, error) {
	if !cfg.Memory.Enabled {
		return nil, nil
	}

	var dbCfg config.DatabaseConfig
	if cfg.Memory.Database != "" {
		named, ok := cfg.Databases[cfg.Memory.Database]
		if !ok {
			return nil, fmt.Errorf("memory references unknown database %q", cfg.Memory.Database)
		}
		dbCfg = named
	} else {
		dir := cfg.Store.VectorStore.PersistPath
		if dir == "" {
			var err error
			dir, err = utils.EnsureDataDir(".")
			if err != nil {
				return nil, err
			}
		}
		dbCfg = config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(dir, "memory.db")}
		dbCfg.SetDefaults()
	}

	db, err := pool.Get(&dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	return memory.New(db, dbCfg.Driver, cfg.Memory)
}
