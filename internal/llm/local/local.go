// Package local is an offline domain.LLM: hashed term-frequency embeddings
// and an extractive generator that answers with the prompt sentences most
// related to its question. It needs no network or API key.
package local

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"strings"

	"minirag/internal/domain"
	"minirag/internal/llm"
)

const (
	DefaultGenerationModel = "extractive"
	DefaultEmbeddingModel  = "hashed-tf"
	defaultEmbeddingSize   = 384
	maxAnswerSentences     = 3
)

var roles = map[domain.Role]string{
	domain.RoleSystem:    "system",
	domain.RoleUser:      "user",
	domain.RoleAssistant: "assistant",
}

// Client implements domain.LLM without any remote calls.
type Client struct {
	llm.Base
}

// NewClient creates an offline client.
func NewClient(opts llm.Options, logger *slog.Logger) *Client {
	return &Client{Base: llm.NewBase(llm.ProviderLocal, opts, logger)}
}

// GenerateText ranks the sentences of the prompt body against its tail (the
// question) and returns the best ones in their original order, capped at the
// max output tokens counted as words. History is not consulted.
func (c *Client) GenerateText(ctx context.Context, prompt string, _ []domain.Message, params domain.GenerateParams) (string, error) {
	if err := c.RequireGeneration(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", c.Fail("generate", domain.ErrBackend, err)
	}
	maxTokens, _ := c.Resolve(params)

	body, focus := splitFocus(prompt)
	candidates := sentences(body)
	if len(candidates) == 0 {
		candidates = sentences(focus)
	}
	answer := truncateWords(strings.Join(rank(candidates, focus), " "), maxTokens)
	if answer == "" {
		return "", c.Fail("generate", domain.ErrEmptyResponse, nil)
	}
	return answer, nil
}

// EmbedText hashes tokens into EmbeddingSize buckets and L2-normalizes the
// counts. Documents and queries share one space.
func (c *Client) EmbedText(ctx context.Context, text string, _ domain.DocumentType) ([]float32, error) {
	if err := c.RequireEmbedding(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, c.Fail("embed", domain.ErrBackend, err)
	}
	size := c.EmbeddingSize()
	if size <= 0 {
		size = defaultEmbeddingSize
	}
	vec := make([]float32, size)
	for _, tok := range tokens(c.ProcessText(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(size))]++
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (c *Client) ConstructPrompt(text string, role domain.Role) domain.Message {
	return c.Message(text, role, roles[role])
}

// splitFocus takes trailing paragraphs as the focus until they hold at least
// three content tokens; everything before is the body.
func splitFocus(prompt string) (body, focus string) {
	paras := strings.Split(strings.TrimSpace(prompt), "\n\n")
	i := len(paras)
	n := 0
	for i > 0 && n < 3 {
		i--
		n += len(tokens(paras[i]))
	}
	return strings.Join(paras[:i], "\n\n"), strings.Join(paras[i:], "\n\n")
}

// rank scores each sentence by the normalized frequency of the focus tokens
// it contains and keeps the strongest ones. With no overlap at all it falls
// back to the plain frequency ranking of the candidates.
func rank(candidates []string, focus string) []string {
	if len(candidates) == 0 {
		return nil
	}
	focusSet := map[string]struct{}{}
	for _, t := range tokens(focus) {
		focusSet[t] = struct{}{}
	}

	freq := map[string]float64{}
	for _, s := range candidates {
		for _, t := range tokens(s) {
			freq[t]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx     int
		overlap float64
		score   float64
	}
	scores := make([]scored, len(candidates))
	for i, s := range candidates {
		toks := tokens(s)
		var overlap, score float64
		seen := map[string]struct{}{}
		for _, t := range toks {
			if maxF > 0 {
				score += freq[t] / maxF
			}
			if _, ok := focusSet[t]; !ok {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			overlap++
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = scored{idx: i, overlap: overlap, score: score}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].overlap != scores[b].overlap {
			return scores[a].overlap > scores[b].overlap
		}
		return scores[a].score > scores[b].score
	})

	best := scores[0].overlap
	var selected []int
	for _, s := range scores {
		if len(selected) == maxAnswerSentences {
			break
		}
		if best > 0 && s.overlap < best {
			break
		}
		selected = append(selected, s.idx)
		if best == 0 {
			break
		}
	}
	// Keep original order among selected
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

func truncateWords(s string, max int) string {
	words := strings.Fields(s)
	if max > 0 && len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}
