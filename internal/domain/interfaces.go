package domain

import (
	"context"
	"fmt"
)

// Project identifies the owner of a vector store collection.
type Project struct {
	ProjectID string `json:"project_id"`
}

// Chunk is a unit of indexable content belonging to a project.
type Chunk struct {
	ID       int64          `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RetrievedDocument is a chunk returned by a similarity search.
type RetrievedDocument struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Record is a single point stored in a collection.
type Record struct {
	ID       int64
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// CollectionInfo describes a collection as reported by the backing store.
type CollectionInfo struct {
	Name        string `json:"name"`
	VectorSize  int    `json:"vector_size"`
	Distance    string `json:"distance"`
	PointsCount int64  `json:"points_count"`
	Status      string `json:"status"`
}

// Role is the backend-independent speaker of a conversation turn.
type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MarshalText renders the abstract role name in JSON payloads.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Message is one conversation turn. Token is the literal role string the
// backend expects; two roles may share a token, Role never does.
type Message struct {
	Role    Role   `json:"role"`
	Token   string `json:"backend_role"`
	Content string `json:"content"`
}

// DocumentType tells asymmetric embedding models whether a text is being
// indexed or used as a query.
type DocumentType string

const (
	DocumentTypeDocument DocumentType = "document"
	DocumentTypeQuery    DocumentType = "query"
)

// GenerateParams overrides a provider's generation defaults. Zero values
// mean "use the configured default".
type GenerateParams struct {
	MaxOutputTokens int
	Temperature     *float32
}

// ModelInfo reports the static configuration of an LLM provider.
type ModelInfo struct {
	Provider           string  `json:"provider"`
	GenerationModelID  string  `json:"generation_model_id"`
	EmbeddingModelID   string  `json:"embedding_model_id"`
	EmbeddingSize      int     `json:"embedding_size"`
	InputMaxCharacters int     `json:"input_max_characters"`
	MaxOutputTokens    int     `json:"max_output_tokens"`
	Temperature        float32 `json:"temperature"`
}

// LLM is the generation and embedding capability every backend implements.
type LLM interface {
	SetGenerationModel(modelID string)
	SetEmbeddingModel(modelID string, embeddingSize int)
	GenerateText(ctx context.Context, prompt string, history []Message, params GenerateParams) (string, error)
	EmbedText(ctx context.Context, text string, docType DocumentType) ([]float32, error)
	ConstructPrompt(text string, role Role) Message
	EmbeddingSize() int
	ModelInfo() ModelInfo
}

// VectorStore manages named collections of vectors and searches them.
type VectorStore interface {
	Connect(ctx context.Context) error
	// Disconnect must be safe to call when Connect was never called or failed.
	Disconnect() error
	IsCollectionExisted(ctx context.Context, name string) (bool, error)
	ListAllCollections(ctx context.Context) ([]string, error)
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error)
	DeleteCollection(ctx context.Context, name string) (bool, error)
	InsertOne(ctx context.Context, name string, record Record) error
	InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []int64, batchSize int) error
	SearchByVector(ctx context.Context, name string, vector []float32, limit int) ([]RetrievedDocument, error)
}
