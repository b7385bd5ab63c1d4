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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dowser-io/dowser/pkg/memory"
)

// ChatCmd runs an interactive question-answering session. When memory
// is enabled, confident answers are remembered and related notes are
// shown before each answer.
type ChatCmd struct{}

func (c *ChatCmd) Run(cli *CLI) error {
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

	notes, err := openMemory(cfg, comp.pool)
	if err != nil {
		return err
	}
	if notes != nil {
		defer notes.Close()
	}

	fmt.Println("dowser chat - type a question, /quit to exit")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		switch query {
		case "/quit", "/exit":
			fmt.Println("Bye.")
			return nil
		case "/help":
			fmt.Println("Commands: /quit, /exit, /notes, /help")
			continue
		case "/notes":
			printNotes(ctx, notes)
			continue
		}

		if notes != nil {
			related, err := notes.Recall(ctx, query, 3)
			if err == nil && len(related) > 0 {
				fmt.Println("  related notes:")
				for _, n := range related {
					fmt.Printf("    - %s\n", n.Content)
				}
			}
		}

		answer, err := comp.engine.Answer(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println()
		printAnswer(answer)
		fmt.Println()

		if notes != nil && answer.Confidence >= cfg.Agent.ConfidenceThreshold {
			_, err := notes.Remember(ctx, memory.Note{
				Content:    fmt.Sprintf("Q: %s\nA: %s", query, answer.Text),
				Kind:       "conversation",
				Importance: answer.Confidence,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to remember answer: %v\n", err)
			}
		}
	}
}

func printNotes(ctx context.Context, notes *memory.Store) {
	if notes == nil {
		fmt.Println("Memory is disabled; enable it in the memory section of the config.")
		return
	}
	stats, err := notes.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Printf("%d notes (avg importance %.2f)\n", stats.TotalNotes, stats.AvgImportance)
	recent, err := notes.Reorder(ctx, "recency")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	for i, n := range recent {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(recent)-i)
			break
		}
		fmt.Printf("  [%.2f] %s\n", n.Importance, firstLine(n.Content))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
