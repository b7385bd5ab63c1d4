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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dowser-io/dowser/pkg/config"
	"github.com/dowser-io/dowser/pkg/httpclient"
	"github.com/dowser-io/dowser/pkg/observability"
)

const defaultTemperature = 0.7

// newProviderHTTPClient wires retry behavior and TLS settings from config
// into a shared HTTP client. Every provider goes through this so rate
// limits and transient upstream failures are handled uniformly.
func newProviderHTTPClient(cfg *config.LLMConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 120 * time.Second
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(parser),
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second))
	}
	if cfg.InsecureSkipVerify || cfg.CACertificate != "" {
		opts = append(opts, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CACertificate:      cfg.CACertificate,
		}))
	}

	return httpclient.New(opts...)
}

// buildChatMessages collapses a Request into the system + user message
// pair every chat-style API accepts.
func buildChatMessages(req *Request) []openAIMessage {
	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})
	return messages
}

// effectiveTemperature resolves per-request temperature over the config
// default. A zero value is meaningful (greedy decode), hence the pointer.
func effectiveTemperature(req *Request, cfg *config.LLMConfig) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if cfg.Temperature != nil {
		return *cfg.Temperature
	}
	return defaultTemperature
}

func effectiveMaxTokens(req *Request, cfg *config.LLMConfig) *int {
	if req.MaxTokens != nil {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		limit := cfg.MaxTokens
		return &limit
	}
	return nil
}

// decodeProviderResponse finishes a provider HTTP exchange: surface
// transport errors, turn non-200 statuses into readable errors, and
// unmarshal the body into the provider's wire shape.
func decodeProviderResponse[T any](resp *http.Response, err error) (*T, error) {
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResponse struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(body, &errorResponse) == nil && errorResponse.Error != nil {
			return nil, fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, errorResponse.Error.Message)
		}
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var response T
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

// recordLLMCall forwards call metrics when the global recorder is
// initialized. Safe to call before observability setup.
func recordLLMCall(ctx context.Context, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordLLMCall(ctx, model, duration, promptTokens, completionTokens, err)
	}
}
