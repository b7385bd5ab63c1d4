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

// Command dowser is the CLI for the dowser retrieval engine.
//
// Usage:
//
//	dowser index --config config.yaml
//	dowser ask --config config.yaml "what is the return policy"
//	dowser serve --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	dowser "github.com/dowser-io/dowser"
	"github.com/dowser-io/dowser/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration."`
	Index    IndexCmd    `cmd:"" help:"Ingest configured sources into the document store."`
	Ask      AskCmd      `cmd:"" help:"Answer a single question."`
	Chat     ChatCmd     `cmd:"" help:"Interactive question-answering session."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`
	Eval     EvalCmd     `cmd:"" help:"Evaluate answer quality against a dataset."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(dowser.GetVersion())
	return nil
}

// loadConfig loads the configured file, or defaults when no file is
// given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("dowser"),
		kong.Description("dowser - an agentic retrieval engine"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
