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

// AgentConfig configures the retrieve-assess-refine answer loop.
type AgentConfig struct {
	// MaxAttempts bounds retrieval attempts per question. One attempt
	// means a single retrieval with no refinement.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty" jsonschema:"minimum=1,default=3"`

	// ConfidenceThreshold stops the loop early once an assessment
	// meets it.
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty" jsonschema:"minimum=0,maximum=1,default=0.7"`

	// TopK overrides search.top_k for agent retrievals when positive.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty"`

	// SynthesisMaxTokens limits the synthesized answer length.
	SynthesisMaxTokens int `yaml:"synthesis_max_tokens,omitempty" json:"synthesis_max_tokens,omitempty"`

	// IncludeSources appends source attributions to answers.
	IncludeSources *bool `yaml:"include_sources,omitempty" json:"include_sources,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.SynthesisMaxTokens == 0 {
		c.SynthesisMaxTokens = 1024
	}
	if c.IncludeSources == nil {
		c.IncludeSources = BoolPtr(true)
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %g", c.ConfidenceThreshold)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative")
	}
	return nil
}

// MemoryConfig configures the persistent note store that carries
// distilled observations between sessions.
type MemoryConfig struct {
	// Enabled turns the note store on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Database references a connection from the databases section.
	// Empty uses an embedded SQLite file under the data directory.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// MaxNotes caps stored notes. The lowest-priority notes are
	// evicted past the cap.
	MaxNotes int `yaml:"max_notes,omitempty" json:"max_notes,omitempty"`

	// MinImportance is the admission threshold. Notes scored below it
	// are not stored.
	MinImportance float64 `yaml:"min_importance,omitempty" json:"min_importance,omitempty" jsonschema:"minimum=0,maximum=1,default=0.3"`

	// RecencyWindowDays is the horizon over which a note's recency
	// score decays to zero.
	RecencyWindowDays int `yaml:"recency_window_days,omitempty" json:"recency_window_days,omitempty"`
}

// SetDefaults applies default values.
func (c *MemoryConfig) SetDefaults() {
	if c.MaxNotes == 0 {
		c.MaxNotes = 1000
	}
	if c.MinImportance == 0 {
		c.MinImportance = 0.3
	}
	if c.RecencyWindowDays == 0 {
		c.RecencyWindowDays = 90
	}
}

// Validate checks the memory configuration.
func (c *MemoryConfig) Validate() error {
	if c.MaxNotes < 0 {
		return fmt.Errorf("max_notes must be non-negative")
	}
	if c.MinImportance < 0 || c.MinImportance > 1 {
		return fmt.Errorf("min_importance must be between 0 and 1, got %g", c.MinImportance)
	}
	if c.RecencyWindowDays < 0 {
		return fmt.Errorf("recency_window_days must be non-negative")
	}
	return nil
}
