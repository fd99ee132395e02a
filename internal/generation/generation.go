// Package generation produces coach answers grounded in retrieved chunks,
// with citations extracted from the response and validated against the
// sources that were actually provided.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/store"
)

// Fixed responses for the two degraded paths. Generation never surfaces an
// error to the end user; it answers honestly or apologizes.
const (
	NoInformationResponse = "I don't have specific information on this in the Solution Tree books I have access to. Could you rephrase your question or ask about a different aspect of Professional Learning Communities?"

	generationFailedResponse = "I encountered an error generating a response. Please try again."
)

// Completion is one model response with its token accounting.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// LLM is the chat-model dependency.
type LLM interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// TokenUsage reports prompt and completion token counts for one answer.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Output is one generated answer. Err is set when the model call failed and
// Response holds the apology text instead of an answer.
type Output struct {
	Query       string     `json:"query"`
	Response    string     `json:"response"`
	Citations   []Citation `json:"citations"`
	TokenUsage  TokenUsage `json:"token_usage"`
	CostUSD     float64    `json:"cost_usd"`
	SourcesUsed int        `json:"num_sources_used"`
	Err         string     `json:"error,omitempty"`
}

// Generator turns a query plus retrieved chunks into a cited answer.
type Generator struct {
	llm LLM

	// Prices in USD per million tokens.
	inputPricePerMillion  float64
	outputPricePerMillion float64

	logger *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(llm LLM, inputPricePerMillion, outputPricePerMillion float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		llm:                   llm,
		inputPricePerMillion:  inputPricePerMillion,
		outputPricePerMillion: outputPricePerMillion,
		logger:                logger,
	}
}

// Generate answers query from the given chunks. history, when non-empty, is
// a pre-formatted prior-turns block (see FormatHistory). With no chunks the
// fixed no-information response is returned at zero cost; a model failure
// degrades to an apology with Err set.
func (g *Generator) Generate(ctx context.Context, query string, chunks []chunk.Chunk, history string) Output {
	out := Output{Query: query}

	if len(chunks) == 0 {
		out.Response = NoInformationResponse
		out.Citations = []Citation{}
		return out
	}

	userPrompt := buildUserPrompt(query, chunks, history)

	completion, err := g.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		g.logger.Error("response generation failed", "error", err)
		out.Response = generationFailedResponse
		out.Citations = []Citation{}
		out.Err = err.Error()
		return out
	}

	out.Response = completion.Text
	out.TokenUsage = TokenUsage{
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.PromptTokens + completion.CompletionTokens,
	}
	out.CostUSD = float64(completion.PromptTokens)/1_000_000*g.inputPricePerMillion +
		float64(completion.CompletionTokens)/1_000_000*g.outputPricePerMillion
	out.SourcesUsed = len(chunks)
	out.Citations = g.ExtractCitations(completion.Text, chunks)

	g.logger.Info("generated response",
		"citations", len(out.Citations),
		"tokens", out.TokenUsage.TotalTokens,
		"cost_usd", out.CostUSD,
	)
	return out
}

const systemPrompt = `You are an expert PLC (Professional Learning Community) coach based on Solution Tree's research and frameworks.

Your role:
- Provide accurate, practical guidance on PLC practices
- Ground ALL responses in the provided source material
- Include specific citations to books, chapters, and pages
- Be concise and actionable (2-3 paragraphs max)
- Use educator-friendly language

Citation rules:
- ALWAYS cite your sources explicitly
- Format: [Book Title] by [Authors], Chapter [X]: [Chapter Title], pp. [XX-XX]
- Include direct quotes or key concepts from the sources
- If the provided sources don't contain relevant information, say so honestly
- Never make up citations or reference materials not provided

Response structure:
1. Direct answer (2-3 paragraphs)
2. Key takeaways (2-4 bullet points)
3. Citations section with 📚 Sources header

Tone: Professional, supportive, evidence-based`

func buildUserPrompt(query string, chunks []chunk.Chunk, history string) string {
	var b strings.Builder

	if history != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, `Based on the provided sources, answer this question from a PLC educator:

Question: %s

Sources:
%s

Remember to:
1. Answer directly and concisely (2-3 paragraphs)
2. Include key takeaways as bullet points
3. Add a "📚 Sources:" section with properly formatted citations
4. Only cite sources that were actually provided above`, query, formatContext(chunks))

	return b.String()
}

// formatContext renders chunks as numbered source blocks the model can cite.
func formatContext(chunks []chunk.Chunk) string {
	var parts []string
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf(`
Source %d:
Book: %s
Authors: %s
Chapter %d: %s
Pages: %d-%d

Content:
%s

---
`, i+1, c.BookTitle, strings.Join(c.Authors, ", "), c.ChapterNumber, c.ChapterTitle, c.PageStart, c.PageEnd, c.Content))
	}
	return strings.Join(parts, "\n")
}

// FormatHistory renders prior conversation turns as a User/Assistant dialog
// for the prompt. System messages never reach the prompt. An empty result
// means there is no usable history.
func FormatHistory(messages []store.Message) string {
	var turns []string
	for _, m := range messages {
		switch m.Role {
		case "user":
			turns = append(turns, "User: "+m.Content)
		case "assistant":
			turns = append(turns, "Assistant: "+m.Content)
		}
	}
	return strings.Join(turns, "\n\n")
}
