package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiLLM implements LLM against the Gemini chat API.
type GeminiLLM struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewGeminiLLM creates an LLM with the given generation knobs.
func NewGeminiLLM(client *genai.Client, model string, temperature float32, maxOutputTokens int) *GeminiLLM {
	return &GeminiLLM{
		client:          client,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: int32(maxOutputTokens),
	}
}

// Complete implements LLM.
func (g *GeminiLLM) Complete(ctx context.Context, system, user string) (Completion, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxOutputTokens,
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, fmt.Errorf("model returned an empty response")
	}

	c := Completion{Text: text}
	if resp.UsageMetadata != nil {
		c.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		c.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return c, nil
}
