// Package service ties the vector store, the LLM clients and the prompt
// templates together: collection management, ingestion, semantic search and
// retrieval-augmented answers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"minirag/internal/domain"
	"minirag/internal/logging"
)

const (
	DefaultSearchLimit = 10

	templateGroup = "rag"
)

var (
	// ErrNoResults means a search returned nothing to ground an answer on.
	ErrNoResults = errors.New("no results")
	// ErrTemplateMissing means a required prompt template is not defined.
	ErrTemplateMissing = errors.New("prompt template missing")
)

// TemplateResolver renders named prompt templates.
type TemplateResolver interface {
	Get(group, key string, vars map[string]any) (string, bool)
}

// Answer is the outcome of AnswerRAGQuestion.
type Answer struct {
	Answer     string           `json:"answer"`
	FullPrompt string           `json:"full_prompt"`
	History    []domain.Message `json:"chat_history"`
}

// NLPService indexes, searches and answers over one collection per project.
type NLPService struct {
	store      domain.VectorStore
	generation domain.LLM
	embedding  domain.LLM
	templates  TemplateResolver
	history    *Conversation
	logger     *slog.Logger
}

// NewNLPService seeds the shared transcript with the system prompt rendered
// through the generation client.
func NewNLPService(store domain.VectorStore, generation, embedding domain.LLM, templates TemplateResolver, logger *slog.Logger) (*NLPService, error) {
	system, ok := templates.Get(templateGroup, "system_prompt", nil)
	if !ok {
		return nil, fmt.Errorf("%s/system_prompt: %w", templateGroup, ErrTemplateMissing)
	}
	return &NLPService{
		store:      store,
		generation: generation,
		embedding:  embedding,
		templates:  templates,
		history:    NewConversation(generation.ConstructPrompt(system, domain.RoleSystem)),
		logger:     logging.OrDefault(logger),
	}, nil
}

// CollectionName maps a project id to its collection.
func CollectionName(projectID string) string {
	return strings.TrimSpace("collection_" + projectID)
}

// History returns a copy of the shared transcript.
func (s *NLPService) History() []domain.Message { return s.history.Snapshot() }

// ResetVectorDBCollection deletes the project's collection.
func (s *NLPService) ResetVectorDBCollection(ctx context.Context, project domain.Project) (bool, error) {
	return s.store.DeleteCollection(ctx, CollectionName(project.ProjectID))
}

// GetVectorDBCollectionInfo describes the project's collection.
func (s *NLPService) GetVectorDBCollectionInfo(ctx context.Context, project domain.Project) (*domain.CollectionInfo, error) {
	return s.store.GetCollectionInfo(ctx, CollectionName(project.ProjectID))
}

// IndexIntoVectorDB embeds every chunk as a document and inserts them into
// the project's collection. All embeddings are computed before the store is
// touched, so a failed embedding leaves the collection as it was.
func (s *NLPService) IndexIntoVectorDB(ctx context.Context, project domain.Project, chunks []domain.Chunk, ids []int64, doReset bool) error {
	name := CollectionName(project.ProjectID)

	texts := make([]string, len(chunks))
	metadata := make([]map[string]any, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		v, err := s.embedding.EmbedText(ctx, c.Text, domain.DocumentTypeDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		texts[i] = c.Text
		metadata[i] = c.Metadata
		vectors[i] = v
	}

	if _, err := s.store.CreateCollection(ctx, name, s.embedding.EmbeddingSize(), doReset); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	if err := s.store.InsertMany(ctx, name, texts, vectors, metadata, ids, 0); err != nil {
		return fmt.Errorf("insert into %s: %w", name, err)
	}
	s.logger.Info("indexed chunks", "collection", name, "count", len(chunks))
	return nil
}

// SearchVectorDBCollection embeds text as a query and searches the
// project's collection. An empty result is ErrNoResults.
func (s *NLPService) SearchVectorDBCollection(ctx context.Context, project domain.Project, text string, limit int) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	name := CollectionName(project.ProjectID)

	vector, err := s.embedding.EmbedText(ctx, text, domain.DocumentTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embed query: %w", domain.ErrEmptyResponse)
	}

	docs, err := s.store.SearchByVector(ctx, name, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	if len(docs) == 0 {
		return nil, ErrNoResults
	}
	return docs, nil
}

// AnswerRAGQuestion retrieves the documents closest to query, asks the
// generation client to answer from them and records the exchange. The
// transcript gains the footer as a user turn and the answer as an
// assistant turn, and only when generation succeeds.
func (s *NLPService) AnswerRAGQuestion(ctx context.Context, project domain.Project, query string, limit int) (*Answer, error) {
	docs, err := s.SearchVectorDBCollection(ctx, project, query, limit)
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(docs))
	for i, doc := range docs {
		p, ok := s.templates.Get(templateGroup, "document_prompt", map[string]any{
			"doc_num":    i + 1,
			"chunk_text": doc.Text,
		})
		if !ok {
			return nil, fmt.Errorf("%s/document_prompt: %w", templateGroup, ErrTemplateMissing)
		}
		parts[i] = p
	}
	footer, ok := s.templates.Get(templateGroup, "footer_prompt", map[string]any{"query": query})
	if !ok {
		return nil, fmt.Errorf("%s/footer_prompt: %w", templateGroup, ErrTemplateMissing)
	}
	fullPrompt := strings.Join([]string{strings.Join(parts, "\n"), footer}, "\n\n")

	answer, err := s.generation.GenerateText(ctx, fullPrompt, s.history.Snapshot(), domain.GenerateParams{})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	s.history.Append(
		s.generation.ConstructPrompt(footer, domain.RoleUser),
		s.generation.ConstructPrompt(answer, domain.RoleAssistant),
	)
	return &Answer{Answer: answer, FullPrompt: fullPrompt, History: s.history.Snapshot()}, nil
}
