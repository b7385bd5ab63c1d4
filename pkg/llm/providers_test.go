package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dowser-io/dowser/pkg/config"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("unexpected version header: %q", got)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MaxTokens == 0 {
			t.Error("max_tokens must be set for the messages API")
		}
		if req.System != "You are terse." {
			t.Errorf("system = %q", req.System)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "hi "}, {Type: "text", Text: "there"}},
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 9, OutputTokens: 2},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(&config.LLMConfig{
		Type:   "anthropic",
		Model:  "claude-sonnet-4-20250514",
		APIKey: "test-key",
		Host:   server.URL,
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), &Request{
		System: "You are terse.",
		Prompt: "say hi",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q, want concatenated text blocks", resp.Text)
	}
	if resp.PromptTokens != 9 || resp.CompletionTokens != 2 {
		t.Errorf("token counts = %d/%d, want 9/2", resp.PromptTokens, resp.CompletionTokens)
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}

		json.NewEncoder(w).Encode(ollamaResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "local answer"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 20,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(&config.LLMConfig{
		Type:  "ollama",
		Model: "llama3.2",
		Host:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), &Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "local answer" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LLMConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"missing model", &config.LLMConfig{Type: "ollama"}, true},
		{"unknown type", &config.LLMConfig{Type: "cohere", Model: "m"}, true},
		{"ollama", &config.LLMConfig{Type: "ollama", Model: "llama3.2"}, false},
		{"openai", &config.LLMConfig{Type: "openai", Model: "gpt-4o", APIKey: "k"}, false},
		{"anthropic", &config.LLMConfig{Type: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if provider.Name() != tt.cfg.Type {
				t.Errorf("Name = %q, want %q", provider.Name(), tt.cfg.Type)
			}
		})
	}
}
