// No t.Parallel() here: env vars are process-global.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"GENERATION_BACKEND", "EMBEDDING_BACKEND", "EMBEDDING_MODEL_SIZE", "VECTOR_DB_BACKEND",
	"VECTOR_DB_PATH", "VECTOR_DB_DISTANCE_METHOD", "QDRANT_HOST", "QDRANT_API_KEY",
	"PRIMARY_LANG", "DEFAULT_LANG", "GENERATION_DEFAULT_TEMPERATURE", "OPENAI_API_KEY",
	"GEMINI_API_KEY", "COHERE_API_KEY", "PGVECTOR_DATABASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.GenerationBackend != "LOCAL" || cfg.VectorDB.Backend != "QDRANT" {
		t.Errorf("unexpected defaults: %+v", cfg.LLM)
	}
	if cfg.VectorDB.DistanceMethod != "cosine" {
		t.Errorf("expected cosine, got %q", cfg.VectorDB.DistanceMethod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_YAMLAndNormalization(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  generation_backend: gemini
  embedding_backend: cohere
  embedding_model_size: 1024
  input_default_max_characters: 500
  generation_default_max_tokens: 300
gemini:
  api_key: g-key
cohere:
  api_key: c-key
vector_db:
  backend: memory
  distance_method: DOT
templates:
  primary_lang: ar
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.GenerationBackend != "GEMINI" || cfg.LLM.EmbeddingBackend != "COHERE" {
		t.Errorf("backends not upper-cased: %+v", cfg.LLM)
	}
	if cfg.VectorDB.Backend != "MEMORY" || cfg.VectorDB.DistanceMethod != "dot" {
		t.Errorf("vector db not normalized: %+v", cfg.VectorDB)
	}
	if cfg.Templates.PrimaryLang != "ar" || cfg.Templates.DefaultLang != "en" {
		t.Errorf("unexpected langs: %+v", cfg.Templates)
	}
	if cfg.OpenAI.TimeoutSecs != 30 {
		t.Errorf("expected default openai timeout, got %d", cfg.OpenAI.TimeoutSecs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_MODEL_SIZE", "1536")
	t.Setenv("GENERATION_DEFAULT_TEMPERATURE", "0.7")
	t.Setenv("QDRANT_HOST", "http://qdrant:6333")
	t.Setenv("QDRANT_API_KEY", "q-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.GenerationBackend != "OPENAI" {
		t.Errorf("expected OPENAI, got %q", cfg.LLM.GenerationBackend)
	}
	if cfg.LLM.EmbeddingModelSize != 1536 {
		t.Errorf("expected 1536, got %d", cfg.LLM.EmbeddingModelSize)
	}
	if cfg.LLM.GenerationDefaultTemperature < 0.69 || cfg.LLM.GenerationDefaultTemperature > 0.71 {
		t.Errorf("expected 0.7, got %v", cfg.LLM.GenerationDefaultTemperature)
	}
	if !cfg.VectorDB.Qdrant.Remote() {
		t.Error("expected remote qdrant mode")
	}
}

func TestLoad_BadIntegerEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_MODEL_SIZE", "big")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for non-numeric EMBEDDING_MODEL_SIZE")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.GenerationBackend = "ANTHROPIC"
	cfg.LLM.EmbeddingBackend = "GEMINI"
	cfg.LLM.EmbeddingModelSize = 0
	cfg.VectorDB.Backend = "PGVECTOR"
	cfg.VectorDB.DistanceMethod = "euclid"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"ANTHROPIC", "gemini.api_key", "embedding_model_size", "database_url", "euclid"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestValidate_QdrantLocalNeedsPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.VectorDB.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither remote settings nor path are set")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultConfig()
	cfg.LLM.GenerationModelID = "gpt-4o-mini"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.LLM.GenerationModelID != "gpt-4o-mini" {
		t.Errorf("expected model id to survive, got %q", got.LLM.GenerationModelID)
	}
}
