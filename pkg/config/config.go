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

// Package config defines the YAML configuration surface for dowser.
//
// A single file configures the whole pipeline: the LLM and embedder
// providers, the document store and its sources, search and fusion
// behavior, the answer loop, and the serving/observability surface.
// Every section follows the same contract: SetDefaults fills gaps,
// Validate rejects inconsistency, and ${VAR} references are expanded
// from the environment at load time.
package config

import "fmt"

// Config is the root configuration, loaded from a single YAML file.
type Config struct {
	// Version of the config schema, informational.
	Version string `yaml:"version,omitempty" json:"version,omitempty" jsonschema:"title=Version,description=Config schema version"`

	// Name of this deployment, used in logs and traces.
	Name string `yaml:"name,omitempty" json:"name,omitempty" jsonschema:"title=Name,description=Deployment name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Global holds settings that cut across components.
	Global GlobalSettings `yaml:"global,omitempty" json:"global,omitempty"`

	// LLM configures the completion provider shared by assessment,
	// refinement, and synthesis.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Embedder configures the embedding provider used for indexing
	// and vector search.
	Embedder EmbedderConfig `yaml:"embedder,omitempty" json:"embedder,omitempty"`

	// Store configures the document store and its ingestion sources.
	Store StoreConfig `yaml:"store,omitempty" json:"store,omitempty"`

	// Search configures retrieval modes and result fusion.
	Search SearchConfig `yaml:"search,omitempty" json:"search,omitempty"`

	// Agent configures the retrieve-assess-refine loop.
	Agent AgentConfig `yaml:"agent,omitempty" json:"agent,omitempty"`

	// Memory configures the persistent note store.
	Memory MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`

	// Databases declares SQL connections referenced by sources and memory.
	Databases map[string]DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "dowser"
	}
	c.Global.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Store.SetDefaults()
	c.Search.SetDefaults()
	c.Agent.SetDefaults()
	c.Memory.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()

	for name := range c.Databases {
		db := c.Databases[name]
		db.SetDefaults()
		c.Databases[name] = db
	}
}

// Validate checks every section and reports the first inconsistency.
func (c *Config) Validate() error {
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	for name, db := range c.Databases {
		if err := db.Validate(); err != nil {
			return fmt.Errorf("database %q: %w", name, err)
		}
	}

	// Sources referencing a database must resolve.
	for i, src := range c.Store.Sources {
		if src.Type == "sql" && src.SQL != nil {
			if _, ok := c.Databases[src.SQL.Database]; !ok {
				return fmt.Errorf("store source[%d] references unknown database %q", i, src.SQL.Database)
			}
		}
	}

	return nil
}

// GlobalSettings holds settings that cut across components.
type GlobalSettings struct {
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// SetDefaults applies defaults.
func (c *GlobalSettings) SetDefaults() {
	c.Logging.SetDefaults()
}

// Validate checks the settings.
func (c *GlobalSettings) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// Format is one of simple, verbose, json.
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=simple,enum=verbose,enum=json,default=simple"`

	// Output is "stderr", "stdout", or a file path.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// SetDefaults applies defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
	validFormats := map[string]bool{"simple": true, "verbose": true, "json": true}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid format %q (valid: simple, verbose, json)", c.Format)
	}
	return nil
}
