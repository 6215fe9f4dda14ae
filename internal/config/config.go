package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppInfo names the running application.
type AppInfo struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LLMConfig selects the generation and embedding backends and their defaults.
type LLMConfig struct {
	GenerationBackend            string  `yaml:"generation_backend"`
	EmbeddingBackend             string  `yaml:"embedding_backend"`
	GenerationModelID            string  `yaml:"generation_model_id"`
	EmbeddingModelID             string  `yaml:"embedding_model_id"`
	EmbeddingModelSize           int     `yaml:"embedding_model_size"`
	InputDefaultMaxCharacters    int     `yaml:"input_default_max_characters"`
	GenerationDefaultMaxTokens   int     `yaml:"generation_default_max_tokens"`
	GenerationDefaultTemperature float32 `yaml:"generation_default_temperature"`
}

// OpenAIConfig holds credentials for the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	APIURL      string `yaml:"api_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// CohereConfig holds credentials for the Cohere backend.
type CohereConfig struct {
	APIKey      string `yaml:"api_key"`
	APIURL      string `yaml:"api_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiConfig holds credentials for the Gemini backend.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// QdrantConfig contains connection details for a remote Qdrant service.
// When Host or APIKey is empty the local file mode under VectorDBConfig.Path is used.
type QdrantConfig struct {
	Host        string `yaml:"host"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for PostgreSQL with pgvector.
type PGVectorConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// VectorDBConfig selects and configures the vector store implementation.
type VectorDBConfig struct {
	Backend        string         `yaml:"backend"`
	Path           string         `yaml:"path"`
	DistanceMethod string         `yaml:"distance_method"`
	Qdrant         QdrantConfig   `yaml:"qdrant"`
	PGVector       PGVectorConfig `yaml:"pgvector"`
}

// TemplateConfig chooses the prompt locales.
type TemplateConfig struct {
	PrimaryLang string `yaml:"primary_lang"`
	DefaultLang string `yaml:"default_lang"`
}

// FileConfig is consumed by the ingestion command only.
type FileConfig struct {
	AllowedTypes     []string `yaml:"allowed_types"`
	MaxSizeMB        int      `yaml:"max_size_mb"`
	DefaultChunkSize int      `yaml:"default_chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
}

// ServerConfig configures the HTTP driver.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout int    `yaml:"request_timeout_secs"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	App       AppInfo        `yaml:"app"`
	LLM       LLMConfig      `yaml:"llm"`
	OpenAI    OpenAIConfig   `yaml:"openai"`
	Cohere    CohereConfig   `yaml:"cohere"`
	Gemini    GeminiConfig   `yaml:"gemini"`
	VectorDB  VectorDBConfig `yaml:"vector_db"`
	Templates TemplateConfig `yaml:"templates"`
	Files     FileConfig     `yaml:"files"`
	Server    ServerConfig   `yaml:"server"`
	Log       LogConfig      `yaml:"log"`
}

var (
	llmBackends      = []string{"OPENAI", "COHERE", "GEMINI", "LOCAL"}
	vectorDBBackends = []string{"QDRANT", "PGVECTOR", "MEMORY"}
	distanceMethods  = []string{"cosine", "dot"}
)

// Load reads a config from a specified path, then applies environment
// overrides. If the file does not exist, defaults are used.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the selected backends are known and that their
// required settings are present.
func (c *AppConfig) Validate() error {
	var errs []error
	if !oneOf(c.LLM.GenerationBackend, llmBackends) {
		errs = append(errs, fmt.Errorf("llm.generation_backend: unknown backend %q", c.LLM.GenerationBackend))
	}
	if !oneOf(c.LLM.EmbeddingBackend, llmBackends) {
		errs = append(errs, fmt.Errorf("llm.embedding_backend: unknown backend %q", c.LLM.EmbeddingBackend))
	}
	if c.LLM.EmbeddingModelSize <= 0 {
		errs = append(errs, errors.New("llm.embedding_model_size must be positive"))
	}
	if c.LLM.InputDefaultMaxCharacters <= 0 {
		errs = append(errs, errors.New("llm.input_default_max_characters must be positive"))
	}
	if c.LLM.GenerationDefaultMaxTokens <= 0 {
		errs = append(errs, errors.New("llm.generation_default_max_tokens must be positive"))
	}
	for _, b := range []string{c.LLM.GenerationBackend, c.LLM.EmbeddingBackend} {
		switch b {
		case "OPENAI":
			if c.OpenAI.APIKey == "" && c.OpenAI.APIURL == "" {
				errs = append(errs, errors.New("openai.api_key or openai.api_url is required"))
			}
		case "COHERE":
			if c.Cohere.APIKey == "" {
				errs = append(errs, errors.New("cohere.api_key is required"))
			}
		case "GEMINI":
			if c.Gemini.APIKey == "" {
				errs = append(errs, errors.New("gemini.api_key is required"))
			}
		}
	}
	if !oneOf(c.VectorDB.Backend, vectorDBBackends) {
		errs = append(errs, fmt.Errorf("vector_db.backend: unknown backend %q", c.VectorDB.Backend))
	}
	if !oneOf(c.VectorDB.DistanceMethod, distanceMethods) {
		errs = append(errs, fmt.Errorf("vector_db.distance_method: unknown method %q", c.VectorDB.DistanceMethod))
	}
	switch c.VectorDB.Backend {
	case "QDRANT":
		if !c.VectorDB.Qdrant.Remote() && c.VectorDB.Path == "" {
			errs = append(errs, errors.New("vector_db.path is required when qdrant host/api_key are not set"))
		}
	case "PGVECTOR":
		if c.VectorDB.PGVector.DatabaseURL == "" {
			errs = append(errs, errors.New("vector_db.pgvector.database_url is required"))
		}
	}
	if c.Templates.DefaultLang == "" {
		errs = append(errs, errors.New("templates.default_lang is required"))
	}
	return errors.Join(errs...)
}

// Remote reports whether the remote service mode is configured.
func (q QdrantConfig) Remote() bool {
	return q.Host != "" && q.APIKey != ""
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		App: AppInfo{Name: "mini-rag", Version: "0.1"},
		LLM: LLMConfig{
			GenerationBackend:            "LOCAL",
			EmbeddingBackend:             "LOCAL",
			EmbeddingModelSize:           384,
			InputDefaultMaxCharacters:    1024,
			GenerationDefaultMaxTokens:   200,
			GenerationDefaultTemperature: 0.1,
		},
		OpenAI:    OpenAIConfig{TimeoutSecs: 30, MaxRetries: 3},
		Cohere:    CohereConfig{TimeoutSecs: 30, MaxRetries: 3},
		VectorDB:  VectorDBConfig{Backend: "QDRANT", Path: "assets/database/qdrant_db", DistanceMethod: "cosine"},
		Templates: TemplateConfig{PrimaryLang: "en", DefaultLang: "en"},
		Files:     FileConfig{AllowedTypes: []string{"text/plain", "text/markdown"}, MaxSizeMB: 10, DefaultChunkSize: 5, ChunkOverlap: 1},
		Server:    ServerConfig{Addr: ":8080", RequestTimeout: 60},
		Log:       LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.LLM.GenerationBackend = strings.ToUpper(cfg.LLM.GenerationBackend)
	cfg.LLM.EmbeddingBackend = strings.ToUpper(cfg.LLM.EmbeddingBackend)
	cfg.VectorDB.Backend = strings.ToUpper(cfg.VectorDB.Backend)
	cfg.VectorDB.DistanceMethod = strings.ToLower(cfg.VectorDB.DistanceMethod)
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
	if cfg.Cohere.TimeoutSecs == 0 {
		cfg.Cohere.TimeoutSecs = 30
	}
	if cfg.VectorDB.Qdrant.TimeoutSecs == 0 {
		cfg.VectorDB.Qdrant.TimeoutSecs = 15
	}
	if cfg.Files.DefaultChunkSize == 0 {
		cfg.Files.DefaultChunkSize = 5
	}
	if cfg.Templates.DefaultLang == "" {
		cfg.Templates.DefaultLang = "en"
	}
	if cfg.Templates.PrimaryLang == "" {
		cfg.Templates.PrimaryLang = cfg.Templates.DefaultLang
	}
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *AppConfig) error {
	str := map[string]*string{
		"APP_NAME":                  &cfg.App.Name,
		"APP_VERSION":               &cfg.App.Version,
		"GENERATION_BACKEND":        &cfg.LLM.GenerationBackend,
		"EMBEDDING_BACKEND":         &cfg.LLM.EmbeddingBackend,
		"GENERATION_MODEL_ID":       &cfg.LLM.GenerationModelID,
		"EMBEDDING_MODEL_ID":        &cfg.LLM.EmbeddingModelID,
		"OPENAI_API_KEY":            &cfg.OpenAI.APIKey,
		"OPENAI_API_URL":            &cfg.OpenAI.APIURL,
		"COHERE_API_KEY":            &cfg.Cohere.APIKey,
		"GEMINI_API_KEY":            &cfg.Gemini.APIKey,
		"VECTOR_DB_BACKEND":         &cfg.VectorDB.Backend,
		"VECTOR_DB_PATH":            &cfg.VectorDB.Path,
		"VECTOR_DB_DISTANCE_METHOD": &cfg.VectorDB.DistanceMethod,
		"QDRANT_HOST":               &cfg.VectorDB.Qdrant.Host,
		"QDRANT_API_KEY":            &cfg.VectorDB.Qdrant.APIKey,
		"PGVECTOR_DATABASE_URL":     &cfg.VectorDB.PGVector.DatabaseURL,
		"PRIMARY_LANG":              &cfg.Templates.PrimaryLang,
		"DEFAULT_LANG":              &cfg.Templates.DefaultLang,
		"HTTP_ADDR":                 &cfg.Server.Addr,
		"LOG_LEVEL":                 &cfg.Log.Level,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EMBEDDING_MODEL_SIZE":          &cfg.LLM.EmbeddingModelSize,
		"INPUT_DEFAULT_MAX_CHARACTERS":  &cfg.LLM.InputDefaultMaxCharacters,
		"GENERATION_DEFAULT_MAX_TOKENS": &cfg.LLM.GenerationDefaultMaxTokens,
		"FILE_DEFAULT_CHUNK_SIZE":       &cfg.Files.DefaultChunkSize,
		"FILE_MAX_SIZE":                 &cfg.Files.MaxSizeMB,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("GENERATION_DEFAULT_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("env GENERATION_DEFAULT_TEMPERATURE: %w", err)
		}
		cfg.LLM.GenerationDefaultTemperature = float32(f)
	}

	applyConfigDefaults(cfg)
	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
