package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dowser-io/dowser/pkg/config"
)

func TestOpenAIEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		// Return embeddings out of order to exercise index placement.
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.4, 0.5}, "index": 1},
				{"embedding": []float32{0.1, 0.2}, "index": 0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(&config.EmbedderConfig{
		Type:      "openai",
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		Host:      server.URL,
		Dimension: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Errorf("vectors not placed by index: %v", vectors)
	}
	if e.Dimension() != 2 {
		t.Errorf("Dimension = %d, want 2", e.Dimension())
	}
}

func TestOpenAIEmbedderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(&config.EmbedderConfig{Type: "openai"}); err == nil {
		t.Fatal("expected error when api_key missing")
	}
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt == "" {
			t.Error("prompt must be set")
		}

		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Type:  "ollama",
		Model: "nomic-embed-text",
		Host:  server.URL,
	})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}

	vector, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vector) != 3 {
		t.Errorf("got %d dims, want 3", len(vector))
	}

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 3 {
		t.Errorf("got %d vectors, want 3", len(vectors))
	}
}

func TestOllamaEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(&config.EmbedderConfig{Type: "ollama", Model: "nomic-embed-text", Host: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := New(&config.EmbedderConfig{Type: "quantum"}); err == nil {
		t.Fatal("expected error for unknown type")
	}

	e, err := New(&config.EmbedderConfig{Type: "ollama", Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("Model = %q", e.Model())
	}
}
