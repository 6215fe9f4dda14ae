package provider

import (
	"context"
	"errors"
	"testing"

	"minirag/internal/config"
	"minirag/internal/llm/cohere"
	"minirag/internal/llm/gemini"
	"minirag/internal/llm/local"
	"minirag/internal/llm/openai"
	"minirag/internal/vectorstore/memory"
	"minirag/internal/vectorstore/pgvector"
	"minirag/internal/vectorstore/qdrant"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		LLM: config.LLMConfig{
			GenerationBackend:            "LOCAL",
			EmbeddingBackend:             "LOCAL",
			EmbeddingModelSize:           32,
			InputDefaultMaxCharacters:    500,
			GenerationDefaultMaxTokens:   100,
			GenerationDefaultTemperature: 0.1,
		},
		OpenAI: config.OpenAIConfig{APIKey: "sk"},
		Cohere: config.CohereConfig{APIKey: "co"},
		Gemini: config.GeminiConfig{APIKey: "gm"},
		VectorDB: config.VectorDBConfig{
			Backend:        "MEMORY",
			DistanceMethod: "cosine",
			PGVector:       config.PGVectorConfig{DatabaseURL: "postgres://localhost/db"},
		},
	}
}

func TestLLMFactory_Create(t *testing.T) {
	t.Parallel()

	f := NewLLMFactory(testConfig(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		check func(any) bool
	}{
		{"OPENAI", func(v any) bool { _, ok := v.(*openai.Client); return ok }},
		{"cohere", func(v any) bool { _, ok := v.(*cohere.Client); return ok }},
		{"GEMINI", func(v any) bool { _, ok := v.(*gemini.Client); return ok }},
		{"LOCAL", func(v any) bool { _, ok := v.(*local.Client); return ok }},
	}
	for _, tc := range cases {
		c, err := f.Create(ctx, tc.name)
		if err != nil {
			t.Fatalf("%s: Create failed: %v", tc.name, err)
		}
		if !tc.check(c) {
			t.Errorf("%s: unexpected type %T", tc.name, c)
		}
		if got := c.ModelInfo().InputMaxCharacters; got != 500 {
			t.Errorf("%s: expected configured input limit 500, got %d", tc.name, got)
		}
	}
}

func TestLLMFactory_Unknown(t *testing.T) {
	t.Parallel()

	_, err := NewLLMFactory(testConfig(), nil).Create(context.Background(), "HUGGINGFACE")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestLLMFactory_LocalDefaultsModels(t *testing.T) {
	t.Parallel()

	f := NewLLMFactory(testConfig(), nil)
	gen, err := f.Generation(context.Background())
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	if gen.ModelInfo().GenerationModelID != local.DefaultGenerationModel {
		t.Errorf("unexpected generation model %q", gen.ModelInfo().GenerationModelID)
	}
	emb, err := f.Embedding(context.Background())
	if err != nil {
		t.Fatalf("Embedding failed: %v", err)
	}
	if emb.EmbeddingSize() != 32 || emb.ModelInfo().EmbeddingModelID != local.DefaultEmbeddingModel {
		t.Errorf("unexpected embedding info %+v", emb.ModelInfo())
	}
}

func TestVectorStoreFactory_Create(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VectorDB.Path = t.TempDir()
	f := NewVectorStoreFactory(cfg, nil)

	s, err := f.Create("MEMORY")
	if _, ok := s.(*memory.Storage); err != nil || !ok {
		t.Errorf("expected memory storage, got %T, %v", s, err)
	}
	s, err = f.Create("PGVECTOR")
	if _, ok := s.(*pgvector.Storage); err != nil || !ok {
		t.Errorf("expected pgvector storage, got %T, %v", s, err)
	}
	s, err = f.Create("qdrant")
	if _, ok := s.(*qdrant.Local); err != nil || !ok {
		t.Errorf("expected local qdrant storage, got %T, %v", s, err)
	}

	cfg.VectorDB.Qdrant = config.QdrantConfig{Host: "http://qdrant:6333", APIKey: "k"}
	s, err = f.Create("QDRANT")
	if _, ok := s.(*qdrant.Remote); err != nil || !ok {
		t.Errorf("expected remote qdrant storage, got %T, %v", s, err)
	}

	if _, err := f.Create("MILVUS"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}
