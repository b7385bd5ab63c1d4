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

// Package refine rewrites queries that retrieved poorly. A refinement
// that fails in any way hands the original query back, so the retrieval
// loop never loses its query to a misbehaving model.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/store"
	"github.com/dowser-io/dowser/pkg/utils"
)

const (
	refineTemperature  = 0.3
	refineMaxTokens    = 200
	refineSnippetChars = 100
)

// Refiner rewrites a query using the assessor's issues and a glimpse of
// what the failing query actually retrieved.
type Refiner struct {
	provider llm.Provider
}

// New creates a refiner.
func New(provider llm.Provider) *Refiner {
	return &Refiner{provider: provider}
}

// Refine returns a rewritten query addressing the given issues. On any
// failure, or when the model returns nothing usable, the original query
// comes back unchanged.
func (r *Refiner) Refine(ctx context.Context, query string, docs []store.Document, issues []string) string {
	tracer := observability.GetTracer("dowser.refine")
	ctx, span := tracer.Start(ctx, observability.SpanRefine)
	defer span.End()

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordRefinement(ctx)
	}

	resp, err := r.provider.Complete(ctx, &llm.Request{
		System:      "You rewrite search queries that retrieved poor results. Respond with the rewritten query only.",
		Prompt:      r.buildPrompt(query, docs, issues),
		Temperature: llm.Float64Ptr(refineTemperature),
		MaxTokens:   llm.IntPtr(refineMaxTokens),
	})
	if err != nil {
		slog.Warn("Query refinement failed, keeping original query", "error", err)
		span.RecordError(err)
		return query
	}

	refined := cleanQuery(resp.Text)
	if refined == "" {
		slog.Warn("Query refinement returned nothing usable, keeping original query")
		return query
	}

	slog.Info("Refined query", "from", query, "to", refined)
	return refined
}

func (r *Refiner) buildPrompt(query string, docs []store.Document, issues []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("The query %q did not retrieve sufficient information.\n\n", llm.Sanitize(query)))

	if len(issues) > 0 {
		sb.WriteString(fmt.Sprintf("Issues identified: %s\n\n", llm.Sanitize(strings.Join(issues, ", "))))
	}

	if len(docs) > 0 {
		sb.WriteString("What it retrieved:\n\n")
		for i, doc := range docs {
			content := doc.Content
			if len(content) > refineSnippetChars {
				content = content[:refineSnippetChars] + "..."
			}
			sb.WriteString(fmt.Sprintf("Document %d (ID: %s): %s\n", i+1, doc.ID, llm.Sanitize(content)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Rewrite the query to retrieve better results. Use more specific terms,\n")
	sb.WriteString("name the missing aspects directly, and swap ambiguous words for concrete ones.\n")
	sb.WriteString("Return only the rewritten query, no explanation.\n")

	return sb.String()
}

// cleanQuery reduces the model's response to a single usable query line.
// Models wrap queries in quotes, fences, or lead-ins no matter how firmly
// the prompt forbids it.
func cleanQuery(text string) string {
	cleaned := utils.StripCodeFences(text)

	if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, `"'`)
	return strings.TrimSpace(cleaned)
}
