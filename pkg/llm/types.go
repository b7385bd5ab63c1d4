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

// Package llm defines the text completion interface the retrieval engine
// consumes, with providers for OpenAI-compatible APIs, Anthropic, and
// Ollama. The engine only needs prompt-in, text-out: assessment, query
// refinement, and answer synthesis all go through Complete.
package llm

import (
	"context"
)

// Request is a single completion request. Temperature and MaxTokens are
// pointers so providers can tell "unset" from an explicit zero.
type Request struct {
	// System is the system instruction, may be empty.
	System string
	// Prompt is the user-turn content.
	Prompt string
	// Temperature controls sampling. Assessment runs cold (0.1),
	// synthesis runs warm (0.7).
	Temperature *float64
	// MaxTokens bounds the completion length.
	MaxTokens *int
	// StopSequences halt generation early.
	StopSequences []string
}

// Response is the provider-normalized completion result.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
}

// TotalTokens returns the combined token usage.
func (r *Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Provider is a text completion backend. Implementations must be safe for
// concurrent use; the engine shares one provider across answer calls.
type Provider interface {
	// Name identifies the provider type ("openai", "anthropic", "ollama").
	Name() string
	// Model returns the configured model identifier.
	Model() string
	// Complete runs one completion. The response text is untrusted model
	// output; callers parse it defensively.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Close releases provider resources.
	Close() error
}

// Float64Ptr returns a pointer to v, for filling Request fields inline.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
