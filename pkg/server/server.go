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

// Package server exposes the answer engine over HTTP. One POST endpoint
// does the work; everything else is operational plumbing (health,
// metrics, stats).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dowser-io/dowser/pkg/agent"
	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/observability"
	"github.com/dowser-io/dowser/pkg/store"
)

// Engine answers queries. Satisfied by *agent.Engine.
type Engine interface {
	AnswerWithOptions(ctx context.Context, query string, opts agent.Options) (*agent.Answer, error)
}

// StatsProvider reports document store statistics. Satisfied by
// *store.Store.
type StatsProvider interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// Server is the HTTP front of the answer engine.
type Server struct {
	cfg     config.ServerConfig
	engine  Engine
	stats   StatsProvider
	metrics bool
	httpSrv *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithStats enables the /v1/stats endpoint.
func WithStats(sp StatsProvider) Option {
	return func(s *Server) { s.stats = sp }
}

// WithMetricsEndpoint controls whether /metrics is served.
func WithMetricsEndpoint(enabled bool) Option {
	return func(s *Server) { s.metrics = enabled }
}

// New creates a server. The engine is required.
func New(cfg config.ServerConfig, engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	s := &Server{cfg: cfg, engine: engine, metrics: true}
	for _, opt := range opts {
		opt(s)
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	}
	return s, nil
}

// Address returns the bind address.
func (s *Server) Address() string {
	return s.cfg.Address()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogging)
	r.Use(observability.HTTPMiddleware(
		observability.GetTracer("dowser.http"),
		observability.GetGlobalMetrics(),
	))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.CORSOrigins))
	}

	r.Get("/health", s.handleHealth)
	if s.metrics {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/answer", s.handleAnswer)
		if s.stats != nil {
			r.Get("/stats", s.handleStats)
		}
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "address", s.cfg.Address())
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	slog.Info("Shutting down HTTP server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
