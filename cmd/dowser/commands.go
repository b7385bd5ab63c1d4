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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/invopop/jsonschema"

	"github.com/dowser-io/dowser/pkg/agent"
	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/evaluation"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ValidateCmd checks a configuration file without running anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid: %s\n", cli.Config)
	fmt.Printf("  LLM:          %s (%s)\n", cfg.LLM.Type, cfg.LLM.Model)
	fmt.Printf("  Embedder:     %s (%s)\n", cfg.Embedder.Type, cfg.Embedder.Model)
	fmt.Printf("  Vector store: %s (collection %s)\n", cfg.Store.VectorStore.Type, cfg.Store.VectorStore.Collection)
	fmt.Printf("  Search:       %s (fusion %s, top_k %d)\n", cfg.Search.Mode, cfg.Search.Fusion, cfg.Search.TopK)
	fmt.Printf("  Agent:        max_attempts %d, threshold %.2f\n", cfg.Agent.MaxAttempts, cfg.Agent.ConfidenceThreshold)
	fmt.Printf("  Sources:      %d\n", len(cfg.Store.Sources))
	return nil
}

// SchemaCmd prints the configuration JSON Schema to stdout.
type SchemaCmd struct {
	Compact bool `short:"C" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://dowser.io/schemas/config.json"
	schema.Title = "Dowser Configuration Schema"
	schema.Description = "Configuration schema for the dowser retrieval engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}

// IndexCmd ingests all configured sources into the document store.
type IndexCmd struct{}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	if len(cfg.Store.Sources) == 0 {
		return fmt.Errorf("no sources configured; add a store.sources section")
	}

	stats, err := comp.store.IngestFromSources(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Indexed %d documents (%d chunks, %d failed) in %.1fs\n",
		stats.Documents, stats.Chunks, stats.Failed, stats.Elapsed.Seconds())
	return nil
}

// AskCmd answers a single question and prints the result.
type AskCmd struct {
	Query               []string `arg:"" help:"The question to answer."`
	MaxAttempts         int      `help:"Override the configured attempt cap." default:"0"`
	ConfidenceThreshold float64  `help:"Override the configured confidence threshold." default:"0"`
	JSON                bool     `help:"Print the full answer as JSON."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	query := strings.Join(c.Query, " ")
	answer, err := comp.engine.AnswerWithOptions(ctx, query, agent.Options{
		MaxAttempts:         c.MaxAttempts,
		ConfidenceThreshold: c.ConfidenceThreshold,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(answer)
	}

	printAnswer(answer)
	return nil
}

func printAnswer(answer *agent.Answer) {
	fmt.Println(answer.Text)
	fmt.Printf("\n  confidence: %.2f  attempts: %d\n", answer.Confidence, len(answer.Attempts))
	if len(answer.Citations) > 0 {
		fmt.Printf("  sources: %s\n", strings.Join(answer.Citations, ", "))
	}
}

// EvalCmd runs a dataset through the engine and reports quality scores.
type EvalCmd struct {
	Dataset string `arg:"" help:"Path to the YAML evaluation dataset." type:"path"`
	JSON    bool   `help:"Print the full report as JSON."`
}

func (c *EvalCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	ds, err := evaluation.LoadDataset(c.Dataset)
	if err != nil {
		return err
	}

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	judge, err := evaluation.NewJudge(comp.provider)
	if err != nil {
		return err
	}
	runner, err := evaluation.NewRunner(comp.engine, judge)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, ds)
	if err != nil {
		return err
	}

	if c.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Printf("Evaluated %d cases (%d failed)\n\n", len(report.Cases), report.Failures)
	for _, cr := range report.Cases {
		if cr.Error != "" {
			fmt.Printf("  %-40s FAILED: %s\n", cr.Name, cr.Error)
			continue
		}
		fmt.Printf("  %-40s precision %.2f  relevance %.2f  faithfulness %.2f  correctness %.2f\n",
			cr.Name,
			cr.Metrics.ContextPrecision,
			cr.Metrics.AnswerRelevance,
			cr.Metrics.Faithfulness,
			cr.Metrics.AnswerCorrectness)
	}
	fmt.Printf("\nAverages: precision %.2f  relevance %.2f  faithfulness %.2f  correctness %.2f  latency %.1fs\n",
		report.Average.ContextPrecision,
		report.Average.AnswerRelevance,
		report.Average.Faithfulness,
		report.Average.AnswerCorrectness,
		report.Average.Latency)
	return nil
}
