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

// Package assess scores retrieved documents against the query that
// produced them. The verdict drives the retrieval loop: high confidence
// stops it, low confidence triggers query refinement.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/store"
	"github.com/dowser-io/dowser/pkg/utils"
)

const (
	defaultSnippetChars = 500
	assessTemperature   = 0.1
	assessMaxTokens     = 512
)

// Judgment is the assessor's verdict on one retrieval attempt.
// Confidence is always within [0, 1] by the time callers see it.
type Judgment struct {
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Issues     []string `json:"issues,omitempty"`
}

// Assessor judges retrieval quality with an LLM. Document bodies are cut
// to a bounded snippet before they reach the prompt, so the prompt size
// grows with the result count, not with document length.
type Assessor struct {
	provider     llm.Provider
	snippetChars int
}

// New creates an assessor. snippetChars <= 0 uses the default of 500.
func New(provider llm.Provider, snippetChars int) *Assessor {
	if snippetChars <= 0 {
		snippetChars = defaultSnippetChars
	}
	return &Assessor{
		provider:     provider,
		snippetChars: snippetChars,
	}
}

// Assess scores the documents against the query. It never returns an
// error: a response the model mangled falls back to a neutral judgment
// and a failed call to a conservative one, so the retrieval loop always
// has a verdict to act on.
func (a *Assessor) Assess(ctx context.Context, query string, docs []store.Document) *Judgment {
	tracer := observability.GetTracer("dowser.assess")
	ctx, span := tracer.Start(ctx, observability.SpanAssess,
		trace.WithAttributes(
			attribute.Int(observability.AttrResultCount, len(docs)),
		))
	defer span.End()

	if len(docs) == 0 {
		judgment := &Judgment{
			Confidence: 0,
			Reasoning:  "no documents retrieved",
			Issues:     []string{"no documents found"},
		}
		span.SetAttributes(attribute.Float64(observability.AttrConfidence, 0))
		return judgment
	}

	resp, err := a.provider.Complete(ctx, &llm.Request{
		System:      "You assess whether retrieved documents contain enough information to answer a query. Respond with JSON only.",
		Prompt:      a.buildPrompt(query, docs),
		Temperature: llm.Float64Ptr(assessTemperature),
		MaxTokens:   llm.IntPtr(assessMaxTokens),
	})
	if err != nil {
		slog.Warn("Assessment call failed", "error", err)
		span.RecordError(err)
		return &Judgment{
			Confidence: 0.3,
			Reasoning:  "assessment call failed",
			Issues:     []string{fmt.Sprintf("assessment error: %v", err)},
		}
	}

	judgment := parseJudgment(resp.Text)
	span.SetAttributes(attribute.Float64(observability.AttrConfidence, judgment.Confidence))
	return judgment
}

func (a *Assessor) buildPrompt(query string, docs []store.Document) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Query: %s\n\n", llm.Sanitize(query)))
	sb.WriteString("Retrieved documents:\n\n")

	for i, doc := range docs {
		content := doc.Content
		if len(content) > a.snippetChars {
			content = content[:a.snippetChars] + "..."
		}
		sb.WriteString(fmt.Sprintf("Document %d (ID: %s):\n", i+1, doc.ID))
		sb.WriteString(llm.Sanitize(content))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Rate how well these documents answer the query on a scale of 0.0 to 1.0:\n")
	sb.WriteString("- 0.8-1.0: the documents directly and completely answer the query\n")
	sb.WriteString("- 0.6-0.79: the documents are relevant but incomplete\n")
	sb.WriteString("- below 0.6: the documents are off-topic or insufficient\n\n")
	sb.WriteString("Respond in JSON format:\n")
	sb.WriteString(`{"confidence": 0.85, "reasoning": "why the documents do or do not suffice", "issues": ["specific gaps, if any"]}`)
	sb.WriteString("\n")

	return sb.String()
}

// parseJudgment decodes the model's verdict. Confidence is a pointer so a
// response that parses as JSON but omits the field still counts as a
// parse failure rather than a confident zero.
func parseJudgment(text string) *Judgment {
	var parsed struct {
		Confidence *float64 `json:"confidence"`
		Reasoning  string   `json:"reasoning"`
		Issues     []string `json:"issues"`
	}

	if err := utils.DecodeLoose(text, &parsed); err != nil || parsed.Confidence == nil {
		slog.Warn("Could not parse assessment response", "response_bytes", len(text))
		return &Judgment{
			Confidence: 0.5,
			Reasoning:  "unable to assess retrieval quality",
		}
	}

	return &Judgment{
		Confidence: clamp01(*parsed.Confidence),
		Reasoning:  parsed.Reasoning,
		Issues:     parsed.Issues,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
