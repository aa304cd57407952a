package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Training.K != 8 {
		t.Errorf("expected default K 8, got %d", cfg.Training.K)
	}
	if cfg.Training.Init != "plusplus" {
		t.Errorf("expected default init plusplus, got %s", cfg.Training.Init)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model text-embedding-3-small, got %s", cfg.Embedding.Model)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestValidate_InvalidK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Training.K = 0
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for K=0")
	}

	cfg.Training.K = 10_000_001
	err = Validate(cfg)
	if err == nil {
		t.Error("expected error for K above maximum")
	}
}

func TestValidate_InvalidMaxIters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Training.MaxIters = 0
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for maxIters=0")
	}
}

func TestValidate_InvalidInit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Training.Init = "random"
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for unsupported init")
	}
}

func TestValidate_InvalidExportBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Export.Backend = "elasticsearch"
	err := Validate(cfg)
	if err == nil {
		t.Error("expected error for unsupported export backend")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Training.K = 0
	cfg.Training.MaxIters = -1
	err := Validate(cfg)
	if err == nil {
		t.Error("expected multiple validation errors")
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${NONEXISTENT_VAR:-fallback}", "fallback"},
		{"${NONEXISTENT_VAR}", "${NONEXISTENT_VAR}"},
		{"no-vars-here", "no-vars-here"},
		{"${TEST_VAR:-default}", "hello"}, // env var exists, ignore default
	}

	for _, tt := range tests {
		result := InterpolateEnv(tt.input)
		if result != tt.expected {
			t.Errorf("InterpolateEnv(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9090
  host: 127.0.0.1

training:
  k: 12
  max_iters: 50
  init: furthest
  standardize: false
  seed: 99

export:
  backend: qdrant
  index: test-collection
  host: localhost:6334
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "kmeansd.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Training.K != 12 {
		t.Errorf("expected K 12, got %d", cfg.Training.K)
	}
	if cfg.Training.Init != "furthest" {
		t.Errorf("expected init furthest, got %s", cfg.Training.Init)
	}
	if cfg.Training.Standardize {
		t.Error("expected standardize false")
	}
	if cfg.Export.Backend != "qdrant" {
		t.Errorf("expected backend qdrant, got %s", cfg.Export.Backend)
	}
	if cfg.Export.Index != "test-collection" {
		t.Errorf("expected index test-collection, got %s", cfg.Export.Index)
	}
}

func TestLoadFromFile_WithEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
auth:
  api_keys:
    - ${TEST_API_KEY}
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "kmeansd.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("expected 1 API key, got %d", len(cfg.Auth.APIKeys))
	}
	if cfg.Auth.APIKeys[0] != "sk-test-123" {
		t.Errorf("expected interpolated API key, got %s", cfg.Auth.APIKeys[0])
	}
}

func TestLoadFromFile_InvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/kmeansd.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "kmeansd.yaml")
	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromFile_InvalidValues(t *testing.T) {
	content := `
server:
  port: 99999
training:
  k: 0
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "kmeansd.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFromFile_DefaultsPreserved(t *testing.T) {
	// Partial config should preserve defaults for unset fields.
	content := `
server:
  port: 3000
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "kmeansd.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Training.K != 8 {
		t.Errorf("expected default K 8, got %d", cfg.Training.K)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %s", cfg.Embedding.Model)
	}
}

func TestGenerateTemplate(t *testing.T) {
	tmpl := GenerateTemplate()

	required := []string{
		"server:", "port:", "host:",
		"training:", "k:", "max_iters:", "init:",
		"embedding:", "provider:", "model:",
		"export:", "backend:", "index:",
		"auth:", "api_keys:",
	}

	for _, s := range required {
		if !strings.Contains(tmpl, s) {
			t.Errorf("template missing %q", s)
		}
	}
}
