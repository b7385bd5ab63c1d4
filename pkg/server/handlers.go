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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dowser-io/dowser/pkg/agent"
	"github.com/dowser-io/dowser/pkg/store"
)

// AnswerRequest is the POST /v1/answer body. The override fields are
// optional; zero keeps the server's configured loop parameters.
type AnswerRequest struct {
	Query               string  `json:"query"`
	MaxAttempts         int     `json:"max_attempts,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxAttempts < 0 {
		writeError(w, http.StatusBadRequest, "max_attempts must be positive")
		return
	}
	if req.ConfidenceThreshold < 0 || req.ConfidenceThreshold > 1 {
		writeError(w, http.StatusBadRequest, "confidence_threshold must be between 0 and 1")
		return
	}

	answer, err := s.engine.AnswerWithOptions(r.Context(), req.Query, agent.Options{
		MaxAttempts:         req.MaxAttempts,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	if err != nil {
		writeAnswerError(w, r.Context(), err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeAnswerError maps engine failures onto status codes. A dead
// document store is the backend's fault (502); bad loop parameters are
// the client's (400); a cancelled request gets the timeout status.
func writeAnswerError(w http.ResponseWriter, ctx context.Context, err error) {
	var retrievalErr *store.RetrievalError
	switch {
	case errors.As(err, &retrievalErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case strings.Contains(err.Error(), "invalid answer options"):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
