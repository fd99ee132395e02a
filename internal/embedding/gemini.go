package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/plccoach/plccoach/internal/tokenizer"
)

// retrievalDocumentTaskType tells the API the vectors will be stored and
// searched against query vectors.
const retrievalDocumentTaskType = "RETRIEVAL_DOCUMENT"

// GeminiClient implements Client against the Gemini embedding API. The API
// response carries no usable token accounting for embeddings, so token counts
// come from the injected counter.
type GeminiClient struct {
	client    *genai.Client
	model     string
	dimension int
	counter   tokenizer.Counter
	taskType  string
}

// NewGeminiClient creates an embedding client producing document vectors of
// the given dimension.
func NewGeminiClient(client *genai.Client, model string, dimension int, counter tokenizer.Counter) *GeminiClient {
	return &GeminiClient{
		client:    client,
		model:     model,
		dimension: dimension,
		counter:   counter,
		taskType:  retrievalDocumentTaskType,
	}
}

// NewGeminiQueryClient is like NewGeminiClient but produces query-side
// vectors for search.
func NewGeminiQueryClient(client *genai.Client, model string, dimension int, counter tokenizer.Counter) *GeminiClient {
	c := NewGeminiClient(client, model, dimension, counter)
	c.taskType = "RETRIEVAL_QUERY"
	return c
}

// EmbedBatch implements Client.
func (g *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	dim := int32(g.dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType:             g.taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, 0, fmt.Errorf("embed batch: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if !ValidateVector(e.Values, g.dimension) {
			return nil, 0, fmt.Errorf("embed batch: invalid vector at index %d (len %d, want %d)", i, len(e.Values), g.dimension)
		}
		vectors[i] = e.Values
	}

	return vectors, tokenizer.CountAll(g.counter, texts), nil
}
