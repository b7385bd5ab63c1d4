package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
name: support-kb
llm:
  type: ollama
  model: llama3.2
embedder:
  type: ollama
  model: nomic-embed-text
store:
  vector_store:
    type: chromem
    persist_path: /tmp/dowser-test
  sources:
    - type: directory
      path: ./docs
      include: ["*.md"]
search:
  mode: hybrid
  top_k: 5
agent:
  max_attempts: 2
  confidence_threshold: 0.8
server:
  port: 9090
  write_timeout: 90s
`

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}

	if cfg.Name != "support-kb" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Agent.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Agent.MaxAttempts)
	}
	if cfg.Agent.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold = %g, want 0.8", cfg.Agent.ConfidenceThreshold)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Search.TopK)
	}
	// Defaults fill unset fields.
	if cfg.Search.RankConstant != 60 {
		t.Errorf("RankConstant = %d, want default 60", cfg.Search.RankConstant)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout.Duration() != 90*time.Second {
		t.Errorf("WriteTimeout = %s, want 90s", cfg.Server.WriteTimeout)
	}
	if len(cfg.Store.Sources) != 1 || cfg.Store.Sources[0].Path != "./docs" {
		t.Errorf("Sources = %+v", cfg.Store.Sources)
	}
}

func TestLoadBytesEnvExpansion(t *testing.T) {
	t.Setenv("DOWSER_TEST_KEY", "sk-expanded")
	t.Setenv("DOWSER_TEST_PORT", "7070")

	yaml := `
llm:
  type: openai
  model: gpt-4o
  api_key: ${DOWSER_TEST_KEY}
embedder:
  type: ollama
server:
  port: ${DOWSER_TEST_PORT}
agent:
  max_attempts: ${DOWSER_TEST_UNSET:-4}
`
	cfg, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}

	if cfg.LLM.APIKey != "sk-expanded" {
		t.Errorf("APIKey = %q, want expanded value", cfg.LLM.APIKey)
	}
	// Weak typing turns the expanded string into an int.
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Agent.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want default-expanded 4", cfg.Agent.MaxAttempts)
	}
}

func TestLoadBytesRejectsInvalid(t *testing.T) {
	yaml := `
llm:
  type: ollama
agent:
  max_attempts: -2
`
	if _, err := LoadBytes([]byte(yaml)); err == nil {
		t.Fatal("expected validation error for negative max_attempts")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dowser.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "support-kb" {
		t.Errorf("Name = %q", cfg.Name)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var d Duration
	if err := d.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = "1h30m"
		return nil
	}); err != nil {
		t.Fatalf("UnmarshalYAML: %v", err)
	}
	if d.Duration() != 90*time.Minute {
		t.Errorf("Duration = %s, want 1h30m", d)
	}
}
