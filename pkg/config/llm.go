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

import (
	"fmt"
	"os"
)

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// Type is the provider type: "openai", "anthropic", or "ollama".
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Type,enum=openai,enum=anthropic,enum=ollama,default=ollama"`

	// Model identifier (e.g. "gpt-4o", "claude-sonnet-4-20250514", "llama3.2").
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// Host overrides the provider's default endpoint.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Temperature for generation. Zero is meaningful, hence the pointer.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2,default=0.7"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"minimum=1,default=4096"`

	// Timeout in seconds for a single request.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transient failures and rate limits.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryDelay is the base backoff in seconds.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`

	// CACertificate is a path to a custom CA bundle.
	CACertificate string `yaml:"ca_certificate,omitempty" json:"ca_certificate,omitempty"`
}

// SetDefaults applies default values. The provider is detected from
// available API keys when unset, falling back to local Ollama.
func (c *LLMConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = detectProviderFromEnv()
	}

	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "gpt-4o"
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "ollama":
			c.Model = "llama3.2"
		}
	}

	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Type)
	}

	if c.Temperature == nil {
		c.Temperature = Float64Ptr(0.7)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validTypes := map[string]bool{"openai": true, "anthropic": true, "ollama": true}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid type %q (valid: openai, anthropic, ollama)", c.Type)
	}

	// Ollama runs locally and needs no key.
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Type)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}

	return nil
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Type is the provider type: "openai" or "ollama".
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=openai,enum=ollama,default=ollama"`

	// Model identifier (e.g. "text-embedding-3-small", "nomic-embed-text").
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Host overrides the provider's default endpoint.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Dimension of the produced vectors. Must match the vector store
	// collection when it already exists.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	// Timeout in seconds for a single request.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries for transient failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			c.Type = "openai"
		} else {
			c.Type = "ollama"
		}
	}

	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "text-embedding-3-small"
		case "ollama":
			c.Model = "nomic-embed-text"
		}
	}

	if c.APIKey == "" && c.Type == "openai" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if c.Dimension == 0 {
		switch c.Model {
		case "text-embedding-3-small":
			c.Dimension = 1536
		case "text-embedding-3-large":
			c.Dimension = 3072
		case "nomic-embed-text":
			c.Dimension = 768
		}
	}

	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	validTypes := map[string]bool{"openai": true, "ollama": true}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid type %q (valid: openai, ollama)", c.Type)
	}

	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Type)
	}

	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative")
	}

	return nil
}

// detectProviderFromEnv picks a provider based on available API keys.
func detectProviderFromEnv() string {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "openai"
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return "anthropic"
	}
	return "ollama"
}

// apiKeyFromEnv returns the conventional environment key for a provider.
func apiKeyFromEnv(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}
