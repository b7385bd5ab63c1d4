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
	"log/slog"
	"time"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/server"
)

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Host string `help:"Override the configured listen host."`
	Port int    `help:"Override the configured listen port." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	comp, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.Close()

	if cfg.Store.Watch {
		if err := comp.store.StartWatching(ctx); err != nil {
			return err
		}
	}

	srv, err := server.New(cfg.Server, comp.engine,
		server.WithStats(comp.store),
		server.WithMetricsEndpoint(config.BoolValue(cfg.Observability.Metrics.Enabled, true)),
	)
	if err != nil {
		return err
	}

	slog.Info("Starting server", "address", cfg.Server.Address())
	return srv.Start(ctx)
}
