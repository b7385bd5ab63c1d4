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

	"go.opentelemetry.io/otel/attribute"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/observability"
)

// Engine runs the retrieval loop. All per-invocation state lives on the
// stack of Answer, so one engine serves concurrent callers.
type Engine struct {
	searcher    Searcher
	assessor    Assessor
	refiner     Refiner
	synthesizer Synthesizer
	cfg         config.AgentConfig
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	// Searcher for document retrieval (required).
	Searcher Searcher

	// Assessor for judging retrieval quality (required).
	Assessor Assessor

	// Refiner for rewriting low-confidence queries (required).
	Refiner Refiner

	// Synthesizer for producing the final answer (required).
	Synthesizer Synthesizer

	// Agent holds the loop parameters. Zero values take defaults;
	// out-of-range values fail construction.
	Agent config.AgentConfig
}

// NewEngine creates an engine. The loop parameters are validated here so
// a bad threshold fails at startup, not in the middle of an answer.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Assessor == nil {
		return nil, fmt.Errorf("assessor is required")
	}
	if cfg.Refiner == nil {
		return nil, fmt.Errorf("refiner is required")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}

	agentCfg := cfg.Agent
	agentCfg.SetDefaults()
	if err := agentCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	return &Engine{
		searcher:    cfg.Searcher,
		assessor:    cfg.Assessor,
		refiner:     cfg.Refiner,
		synthesizer: cfg.Synthesizer,
		cfg:         agentCfg,
	}, nil
}

// Options override loop parameters for a single Answer call. Zero
// values keep the configured defaults.
type Options struct {
	MaxAttempts         int
	ConfidenceThreshold float64
}

// Answer runs the full loop for one query: up to MaxAttempts rounds of
// retrieve and assess, refining the query between rounds, then synthesis
// from the best attempt's documents and the original query.
func (e *Engine) Answer(ctx context.Context, query string) (*Answer, error) {
	return e.AnswerWithOptions(ctx, query, Options{})
}

// AnswerWithOptions runs the loop with per-call parameter overrides.
// Overrides go through the same validation as the configured values.
func (e *Engine) AnswerWithOptions(ctx context.Context, query string, opts Options) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	cfg := e.cfg
	if opts.MaxAttempts != 0 {
		cfg.MaxAttempts = opts.MaxAttempts
	}
	if opts.ConfidenceThreshold != 0 {
		cfg.ConfidenceThreshold = opts.ConfidenceThreshold
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answer options: %w", err)
	}

	tracer := observability.GetTracer("dowser.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAnswer)
	defer span.End()

	startTime := time.Now()
	answer, err := e.answer(ctx, query, cfg)

	attempts := 0
	confidence := 0.0
	if answer != nil {
		attempts = len(answer.Attempts)
		confidence = answer.Confidence
	}
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordAnswer(ctx, time.Since(startTime), attempts, confidence, err)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrQueryAttempt, attempts),
		attribute.Float64(observability.AttrConfidence, confidence),
	)
	return answer, nil
}

func (e *Engine) answer(ctx context.Context, query string, cfg config.AgentConfig) (*Answer, error) {
	var (
		attempts []Attempt
		bestIdx  = -1
		current  = query
	)

	for attemptNum := 1; attemptNum <= cfg.MaxAttempts; attemptNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Info("Retrieval attempt",
			"attempt", attemptNum,
			"max_attempts", cfg.MaxAttempts,
			"query", current)

		logPhase(PhaseRetrieving)
		attemptStart := time.Now()
		docs, err := e.searcher.Search(ctx, current, cfg.TopK, nil)
		if err != nil {
			// A dead store on the first attempt leaves nothing to answer
			// from. Later attempts fall back to the best attempt so far.
			if bestIdx < 0 {
				return nil, err
			}
			slog.Warn("Retrieval failed mid-loop, answering from best attempt",
				"attempt", attemptNum, "error", err)
			break
		}

		logPhase(PhaseAssessing)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		judgment := e.assessor.Assess(ctx, current, docs)

		attempts = append(attempts, Attempt{
			Query:     current,
			Documents: docs,
			Judgment:  judgment,
			Elapsed:   time.Since(attemptStart),
		})
		if bestIdx < 0 || judgment.Confidence > attempts[bestIdx].Judgment.Confidence {
			bestIdx = len(attempts) - 1
		}

		slog.Info("Retrieval assessed",
			"attempt", attemptNum,
			"confidence", judgment.Confidence,
			"documents", len(docs),
			"reasoning", judgment.Reasoning)

		logPhase(PhaseDeciding)
		if judgment.Confidence >= cfg.ConfidenceThreshold {
			slog.Info("Confidence threshold met",
				"confidence", judgment.Confidence,
				"threshold", cfg.ConfidenceThreshold)
			break
		}
		if attemptNum == cfg.MaxAttempts {
			slog.Info("Attempts exhausted, answering from best attempt",
				"best_confidence", attempts[bestIdx].Judgment.Confidence)
			break
		}

		logPhase(PhaseRefining)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current = e.refiner.Refine(ctx, current, docs, judgment.Issues)
	}

	logPhase(PhaseSynthesizing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := attempts[bestIdx]
	answer, err := e.synthesizer.Synthesize(ctx, query, best.Documents, best.Judgment)
	if err != nil {
		return nil, err
	}
	answer.Attempts = attempts

	logPhase(PhaseDone)
	return answer, nil
}
