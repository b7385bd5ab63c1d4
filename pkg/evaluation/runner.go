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

package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dowser-io/dowser/pkg/agent"
	"github.com/dowser-io/dowser/pkg/store"
)

// Answerer runs one query through the engine. Satisfied by
// *agent.Engine.
type Answerer interface {
	Answer(ctx context.Context, query string) (*agent.Answer, error)
}

// CaseResult is the evaluation outcome for one case.
type CaseResult struct {
	Name       string  `json:"name"`
	Query      string  `json:"query"`
	AnswerText string  `json:"answer_text,omitempty"`
	Confidence float64 `json:"confidence"`
	Attempts   int     `json:"attempts"`
	Metrics    Metrics `json:"metrics"`
	Error      string  `json:"error,omitempty"`
}

// Report aggregates case results. Averages cover successful cases only.
type Report struct {
	Dataset  string       `json:"dataset,omitempty"`
	Cases    []CaseResult `json:"cases"`
	Average  Metrics      `json:"average"`
	Failures int          `json:"failures"`
}

// Runner drives a dataset through the engine and scores each answer.
type Runner struct {
	engine Answerer
	judge  *Judge
}

// NewRunner builds a runner. Both collaborators are required.
func NewRunner(engine Answerer, judge *Judge) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	return &Runner{engine: engine, judge: judge}, nil
}

// Run evaluates every case in order. A failing case is recorded and
// skipped, not fatal; only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, ds *Dataset) (*Report, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	report := &Report{Dataset: ds.Name, Cases: make([]CaseResult, 0, len(ds.Cases))}

	for _, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := r.runCase(ctx, c)
		if result.Error != "" {
			report.Failures++
		}
		report.Cases = append(report.Cases, result)

		slog.Info("Evaluated case",
			"case", result.Name,
			"confidence", result.Confidence,
			"relevance", result.Metrics.AnswerRelevance,
			"faithfulness", result.Metrics.Faithfulness)
	}

	report.Average = averageMetrics(report.Cases)
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	name := c.Name
	if name == "" {
		name = c.Query
	}
	result := CaseResult{Name: name, Query: c.Query}

	start := time.Now()
	answer, err := r.engine.Answer(ctx, c.Query)
	result.Metrics.Latency = time.Since(start).Seconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.AnswerText = answer.Text
	result.Confidence = answer.Confidence
	result.Attempts = len(answer.Attempts)

	var docs []store.Document
	if best := answer.BestAttempt(); best != nil {
		docs = best.Documents
	}

	result.Metrics.ContextPrecision = ContextPrecision(c.Query, docs)
	result.Metrics.AnswerRelevance = r.judgeScore(ctx, func() (float64, error) {
		return r.judge.AnswerRelevance(ctx, c.Query, answer.Text)
	})
	result.Metrics.Faithfulness = r.judgeScore(ctx, func() (float64, error) {
		return r.judge.Faithfulness(ctx, docs, answer.Text)
	})

	if c.GroundTruth != "" {
		result.Metrics.AnswerCorrectness = r.judgeScore(ctx, func() (float64, error) {
			return r.judge.Correctness(ctx, answer.Text, c.GroundTruth)
		})
	} else {
		result.Metrics.AnswerCorrectness = (result.Metrics.AnswerRelevance + result.Metrics.Faithfulness) / 2
	}

	return result
}

// judgeScore shields the run from judge transport failures the same way
// the assessor shields the answer loop: a dead judge scores neutral.
func (r *Runner) judgeScore(ctx context.Context, score func() (float64, error)) float64 {
	v, err := score()
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		slog.Warn("Judge call failed, using neutral score", "error", err)
		return 0.5
	}
	return v
}

func averageMetrics(cases []CaseResult) Metrics {
	var avg Metrics
	n := 0
	for _, c := range cases {
		if c.Error != "" {
			continue
		}
		avg.ContextPrecision += c.Metrics.ContextPrecision
		avg.AnswerRelevance += c.Metrics.AnswerRelevance
		avg.Faithfulness += c.Metrics.Faithfulness
		avg.AnswerCorrectness += c.Metrics.AnswerCorrectness
		avg.Latency += c.Metrics.Latency
		n++
	}
	if n == 0 {
		return Metrics{}
	}
	avg.ContextPrecision /= float64(n)
	avg.AnswerRelevance /= float64(n)
	avg.Faithfulness /= float64(n)
	avg.AnswerCorrectness /= float64(n)
	avg.Latency /= float64(n)
	return avg
}
