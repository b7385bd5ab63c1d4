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

// Package agent drives the retrieval loop: retrieve, assess, and refine
// up to a bounded number of attempts, then synthesize an answer from the
// best attempt's documents.
package agent

import (
	"context"
	"time"

	"github.com/dowser-io/dowser/pkg/assess"
	"github.com/dowser-io/dowser/pkg/store"
)

// Attempt records one pass through the retrieval loop: the query that
// ran, what it retrieved, and how the assessor judged it.
type Attempt struct {
	Query     string           `json:"query"`
	Documents []store.Document `json:"documents,omitempty"`
	Judgment  *assess.Judgment `json:"judgment,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// Answer is the final result of one engine invocation. Confidence and
// Reasoning come from the best attempt's judgment, so a weak retrieval
// is visible to the caller rather than papered over.
type Answer struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Citations  []string  `json:"citations,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Attempts   []Attempt `json:"attempts,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BestAttempt returns the attempt whose assessment scored highest, the
// earliest on ties. Its documents are the ones the answer was
// synthesized from. Nil when the answer carries no attempts.
func (a *Answer) BestAttempt() *Attempt {
	best := -1
	for i, attempt := range a.Attempts {
		if attempt.Judgment == nil {
			continue
		}
		if best < 0 || attempt.Judgment.Confidence > a.Attempts[best].Judgment.Confidence {
			best = i
		}
	}
	if best < 0 {
		if len(a.Attempts) == 0 {
			return nil
		}
		return &a.Attempts[0]
	}
	return &a.Attempts[best]
}

// Searcher retrieves ranked documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filter map[string]any) ([]store.Document, error)
}

// Assessor judges how well retrieved documents answer a query.
type Assessor interface {
	Assess(ctx context.Context, query string, docs []store.Document) *assess.Judgment
}

// Refiner rewrites a query that retrieved poorly.
type Refiner interface {
	Refine(ctx context.Context, query string, docs []store.Document, issues []string) string
}

// Synthesizer produces the final answer from the winning attempt.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, docs []store.Document, judgment *assess.Judgment) (*Answer, error)
}
