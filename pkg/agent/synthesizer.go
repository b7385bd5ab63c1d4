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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dowser-io/dowser/pkg/assess"
	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/store"
	"github.com/dowser-io/dowser/pkg/utils"
)

const (
	synthesisTemperature   = 0.7
	synthesisSnippetTokens = 500
	fallbackSnippetChars   = 300
	fallbackMaxExtracts    = 3
)

// LLMSynthesizer turns the winning attempt's documents into a grounded
// answer. It degrades rather than fails: no documents yields an honest
// "insufficient information" answer, and a dead LLM yields raw extracts
// instead of prose.
type LLMSynthesizer struct {
	provider       llm.Provider
	counter        *utils.TokenCounter
	maxTokens      int
	includeSources bool
}

// NewSynthesizer creates a synthesizer using the agent configuration's
// synthesis settings.
func NewSynthesizer(provider llm.Provider, cfg config.AgentConfig) *LLMSynthesizer {
	cfg.SetDefaults()
	var model string
	if provider != nil {
		model = provider.Model()
	}
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		slog.Warn("Token counter unavailable, context snippets unbounded", "error", err)
	}
	return &LLMSynthesizer{
		provider:       provider,
		counter:        counter,
		maxTokens:      cfg.SynthesisMaxTokens,
		includeSources: config.BoolValue(cfg.IncludeSources, true),
	}
}

// Synthesize produces the final answer for the original query from the
// given documents. The only errors it returns are context errors; every
// other failure downgrades to a fallback answer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, query string, docs []store.Document, judgment *assess.Judgment) (*Answer, error) {
	tracer := observability.GetTracer("dowser.agent")
	ctx, span := tracer.Start(ctx, observability.SpanSynthesize)
	defer span.End()

	if len(docs) == 0 {
		return s.insufficientAnswer(query, judgment), nil
	}

	resp, err := s.provider.Complete(ctx, &llm.Request{
		System:      "You answer questions from a document knowledge base. Ground every claim in the provided context documents.",
		Prompt:      s.buildPrompt(query, docs),
		Temperature: llm.Float64Ptr(synthesisTemperature),
		MaxTokens:   llm.IntPtr(s.maxTokens),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Answer synthesis failed, falling back to extracts", "error", err)
		span.RecordError(err)
		return s.extractiveAnswer(query, docs, judgment), nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		slog.Warn("Answer synthesis returned empty text, falling back to extracts")
		return s.extractiveAnswer(query, docs, judgment), nil
	}

	answer := newAnswer(query, judgment)
	answer.Text = text
	answer.Citations = citationIDs(docs)
	if s.includeSources {
		answer.Text += "\n\n" + sourcesBlock(docs)
	}
	return answer, nil
}

func (s *LLMSynthesizer) buildPrompt(query string, docs []store.Document) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Question: %s\n\n", llm.Sanitize(query)))
	sb.WriteString("Context documents:\n\n")

	for i, doc := range docs {
		content := doc.Content
		if s.counter != nil && s.counter.Count(content) > synthesisSnippetTokens {
			content = s.counter.Truncate(content, synthesisSnippetTokens) + "..."
		}
		sb.WriteString(fmt.Sprintf("Document %d (ID: %s):\n%s\n\n", i+1, doc.ID, llm.Sanitize(content)))
	}

	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Answer the question using only the context documents.\n")
	sb.WriteString("2. Cite documents by their ID when making claims.\n")
	sb.WriteString("3. If the context is missing something the question needs, say what is missing.\n")
	sb.WriteString("4. Do not invent information that is not in the context.\n")

	return sb.String()
}

// insufficientAnswer is the deterministic no-documents answer. No LLM
// call: there is nothing to ground a generation in.
func (s *LLMSynthesizer) insufficientAnswer(query string, judgment *assess.Judgment) *Answer {
	answer := newAnswer(query, judgment)
	answer.Text = "I could not find relevant information in the knowledge base to answer this question."
	if answer.Reasoning == "" {
		answer.Reasoning = "no documents retrieved"
	}
	return answer
}

// extractiveAnswer returns the top document snippets verbatim when the
// model cannot be reached. The reasoning says so; the caller must not
// mistake extracts for a synthesized answer.
func (s *LLMSynthesizer) extractiveAnswer(query string, docs []store.Document, judgment *assess.Judgment) *Answer {
	var sb strings.Builder
	sb.WriteString("The answer could not be generated. The most relevant passages found were:\n")

	for i, doc := range docs {
		if i >= fallbackMaxExtracts {
			break
		}
		content := strings.TrimSpace(doc.Content)
		if len(content) > fallbackSnippetChars {
			content = content[:fallbackSnippetChars] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n%d. %s\n   (%s)\n", i+1, content, doc.Title()))
	}

	answer := newAnswer(query, judgment)
	answer.Text = sb.String()
	answer.Citations = citationIDs(docs)
	if answer.Reasoning != "" {
		answer.Reasoning += "; "
	}
	answer.Reasoning += "answer synthesis failed, returning document extracts"
	return answer
}

func newAnswer(query string, judgment *assess.Judgment) *Answer {
	answer := &Answer{
		ID:        uuid.NewString(),
		Query:     query,
		CreatedAt: time.Now().UTC(),
	}
	if judgment != nil {
		answer.Confidence = judgment.Confidence
		answer.Reasoning = judgment.Reasoning
	}
	return answer
}

// citationIDs returns document IDs in rank order.
func citationIDs(docs []store.Document) []string {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids
}

func sourcesBlock(docs []store.Document) string {
	var sb strings.Builder
	sb.WriteString("Sources:")
	seen := make(map[string]struct{})
	for _, doc := range docs {
		title := doc.Title()
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		sb.WriteString(fmt.Sprintf("\n- %s", title))
	}
	return sb.String()
}
