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

// Package evaluation grades answer quality offline. A dataset of
// queries runs through the engine and an LLM judge scores each answer,
// so retrieval and prompt changes can be compared on numbers instead
// of vibes.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dowser-io/dowser/pkg/llm"
	"github.com/dowser-io/dowser/pkg/store"
	"github.com/dowser-io/dowser/pkg/utils"
)

const (
	judgeMaxTokens    = 32
	judgeSnippetChars = 500
)

// Metrics scores one evaluated answer. All scores are in [0, 1].
type Metrics struct {
	// ContextPrecision is the share of retrieved documents relevant
	// to the query.
	ContextPrecision float64 `json:"context_precision"`

	// AnswerRelevance is how directly the answer addresses the query.
	AnswerRelevance float64 `json:"answer_relevance"`

	// Faithfulness is how well the answer sticks to the retrieved
	// documents.
	Faithfulness float64 `json:"faithfulness"`

	// AnswerCorrectness is the judged agreement with the ground truth
	// when the case has one, otherwise the mean of relevance and
	// faithfulness.
	AnswerCorrectness float64 `json:"answer_correctness"`

	// Latency is the answer time in seconds.
	Latency float64 `json:"latency_seconds"`
}

// Judge scores answers with an LLM.
type Judge struct {
	provider llm.Provider
}

// NewJudge builds a judge on the given provider.
func NewJudge(provider llm.Provider) (*Judge, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	return &Judge{provider: provider}, nil
}

// AnswerRelevance scores how directly the answer addresses the query.
func (j *Judge) AnswerRelevance(ctx context.Context, query, answer string) (float64, error) {
	prompt := fmt.Sprintf(`Rate how relevant the answer is to the query on a scale of 0.0 to 1.0.

Query: %s

Answer: %s

Return only a number between 0.0 and 1.0.`, llm.Sanitize(query), llm.Sanitize(answer))

	return j.score(ctx, prompt)
}

// Faithfulness scores how well the answer is supported by the
// documents it was synthesized from. An answer with no documents
// scores zero without a judge call.
func (j *Judge) Faithfulness(ctx context.Context, docs []store.Document, answer string) (float64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	contexts := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := doc.Content
		if len(content) > judgeSnippetChars {
			content = content[:judgeSnippetChars] + "..."
		}
		contexts = append(contexts, llm.Sanitize(content))
	}

	prompt := fmt.Sprintf(`Rate how faithful the answer is to the provided contexts on a scale of 0.0 to 1.0.
A score of 1.0 means every claim in the answer is supported by the contexts.
A score of 0.0 means the answer contradicts or is not supported by the contexts.

Contexts:
%s

Answer: %s

Return only a number between 0.0 and 1.0.`, strings.Join(contexts, "\n\n"), llm.Sanitize(answer))

	return j.score(ctx, prompt)
}

// Correctness scores agreement between the answer and a reference
// answer.
func (j *Judge) Correctness(ctx context.Context, answer, groundTruth string) (float64, error) {
	prompt := fmt.Sprintf(`Rate how well the answer agrees with the reference answer on a scale of 0.0 to 1.0.
A score of 1.0 means the answer states the same facts as the reference.
A score of 0.0 means the answer contradicts the reference or misses it entirely.

Reference answer: %s

Answer: %s

Return only a number between 0.0 and 1.0.`, llm.Sanitize(groundTruth), llm.Sanitize(answer))

	return j.score(ctx, prompt)
}

func (j *Judge) score(ctx context.Context, prompt string) (float64, error) {
	resp, err := j.provider.Complete(ctx, &llm.Request{
		System:      "You grade retrieval-augmented answers. Respond with a single number.",
		Prompt:      prompt,
		Temperature: llm.Float64Ptr(0.0),
		MaxTokens:   llm.IntPtr(judgeMaxTokens),
	})
	if err != nil {
		return 0, fmt.Errorf("judge call failed: %w", err)
	}
	return parseScore(resp.Text), nil
}

// parseScore pulls a 0-1 score out of judge output. Models asked for
// a bare number still sometimes wrap it in prose, so an unparseable
// response falls back to a neutral 0.5.
func parseScore(text string) float64 {
	text = strings.TrimSpace(utils.StripCodeFences(text))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return clampScore(v)
	}

	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,:;()")
		if v, err := strconv.ParseFloat(word, 64); err == nil && v >= 0 && v <= 1 {
			return v
		}
	}

	snippet := text
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	slog.Warn("Could not parse judge score, using neutral default", "response", snippet)
	return 0.5
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ContextPrecision is the share of retrieved documents that look
// relevant to the query, where relevant means at least half the query
// words appear in the document.
func ContextPrecision(query string, docs []store.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}

	relevant := 0
	for _, doc := range docs {
		content := strings.ToLower(doc.Content)
		matches := 0
		for _, word := range words {
			if strings.Contains(content, word) {
				matches++
			}
		}
		if float64(matches)/float64(len(words)) >= 0.5 {
			relevant++
		}
	}
	return float64(relevant) / float64(len(docs))
}
