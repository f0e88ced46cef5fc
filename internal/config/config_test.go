package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "studygen.yaml")
	data := []byte("openai_model: file-model\nstore: memory\nport: \"9000\"\nregenerate_concurrency: 2\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENAI_MODEL", "env-model")
	t.Setenv("PORT", "")
	t.Setenv("STUDY_STORE", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIModel != "env-model" {
		t.Fatalf("expected env override, got %q", cfg.OpenAIModel)
	}
	if cfg.Store != StoreMemory || cfg.Port != "9000" || cfg.RegenerateConcurrency != 2 {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.AuthHeader != "X-Authenticated-User" {
		t.Fatalf("expected default auth header, got %q", cfg.AuthHeader)
	}
}

func TestApplyEnvIgnoresBadNumbers(t *testing.T) {
	cfg := &Config{RegenerateConcurrency: 3}
	env := map[string]string{"REGENERATE_CONCURRENCY": "many", "AUTO_LINK": "true"}
	cfg.applyEnv(func(k string) string { return env[k] })
	if cfg.RegenerateConcurrency != 3 {
		t.Fatalf("expected bad value to be ignored, got %d", cfg.RegenerateConcurrency)
	}
	if !cfg.AutoLink {
		t.Fatalf("expected AUTO_LINK to enable autolinking")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.Validate(false); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if err := cfg.Validate(true); err == nil {
		t.Fatalf("expected missing API key error")
	}
	cfg.Store = "postgres"
	if err := cfg.Validate(false); err == nil {
		t.Fatalf("expected unknown store error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
