package generation

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/log"
	"github.com/plccoach/plccoach/internal/store"
)

type fakeLLM struct {
	completion Completion
	err        error

	calls      int
	gotSystem  string
	gotUser    string
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (Completion, error) {
	f.calls++
	f.gotSystem = system
	f.gotUser = user
	if f.err != nil {
		return Completion{}, f.err
	}
	return f.completion, nil
}

func sourceChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{
			ChunkID:       "c1",
			BookID:        "b1",
			BookTitle:     "Learning by Doing",
			Authors:       []string{"Richard DuFour"},
			ChapterNumber: 3,
			ChapterTitle:  "Building Shared Knowledge",
			PageStart:     40,
			PageEnd:       55,
			Content:       "Teams build shared knowledge before making decisions.",
		},
	}
}

func TestGenerateNoChunks(t *testing.T) {
	llm := &fakeLLM{}
	g := NewGenerator(llm, 5, 15, log.NewNop())

	out := g.Generate(context.Background(), "what is rti?", nil, "")

	if out.Response != NoInformationResponse {
		t.Errorf("Response = %q, want the fixed no-information response", out.Response)
	}
	if out.CostUSD != 0 || out.TokenUsage.TotalTokens != 0 {
		t.Errorf("cost = %v, tokens = %d, want zero", out.CostUSD, out.TokenUsage.TotalTokens)
	}
	if len(out.Citations) != 0 || out.Err != "" {
		t.Errorf("citations = %v, err = %q", out.Citations, out.Err)
	}
	if llm.calls != 0 {
		t.Errorf("LLM called %d times, want 0", llm.calls)
	}
}

func TestGenerateWithCitation(t *testing.T) {
	llm := &fakeLLM{completion: Completion{
		Text:             "Build shared knowledge first.\n\n📚 Sources:\n[Learning by Doing] by Richard DuFour, Chapter 3: Building Shared Knowledge, pp. 40-55",
		PromptTokens:     800,
		CompletionTokens: 200,
	}}
	g := NewGenerator(llm, 5, 15, log.NewNop())

	out := g.Generate(context.Background(), "how do teams decide?", sourceChunks(), "")

	if out.Err != "" {
		t.Fatalf("Err = %q", out.Err)
	}
	if len(out.Citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(out.Citations))
	}
	c := out.Citations[0]
	if c.BookTitle != "Learning by Doing" || c.Chapter != 3 || c.Pages != "40-55" {
		t.Errorf("citation = %+v", c)
	}
	if !c.IsValid {
		t.Error("returned citation not marked valid")
	}
	if out.TokenUsage.TotalTokens != 1000 {
		t.Errorf("total tokens = %d, want 1000", out.TokenUsage.TotalTokens)
	}
	wantCost := 800.0/1_000_000*5 + 200.0/1_000_000*15
	if math.Abs(out.CostUSD-wantCost) > 1e-12 {
		t.Errorf("cost = %v, want %v", out.CostUSD, wantCost)
	}
	if out.SourcesUsed != 1 {
		t.Errorf("sources used = %d, want 1", out.SourcesUsed)
	}
	if !strings.Contains(llm.gotUser, "Source 1:") || !strings.Contains(llm.gotUser, "how do teams decide?") {
		t.Errorf("user prompt missing context or question:\n%s", llm.gotUser)
	}
	if strings.Contains(llm.gotUser, "Previous conversation:") {
		t.Error("user prompt contains history block without history")
	}
}

func TestGenerateIncludesHistory(t *testing.T) {
	llm := &fakeLLM{completion: Completion{Text: "Answer."}}
	g := NewGenerator(llm, 5, 15, log.NewNop())

	history := "User: What is a PLC?\n\nAssistant: A Professional Learning Community."
	g.Generate(context.Background(), "can you elaborate?", sourceChunks(), history)

	if !strings.Contains(llm.gotUser, "Previous conversation:") {
		t.Error("user prompt missing the history header")
	}
	if !strings.Contains(llm.gotUser, "What is a PLC?") {
		t.Error("user prompt missing the history content")
	}
}

func TestGenerateLLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("quota exceeded")}
	g := NewGenerator(llm, 5, 15, log.NewNop())

	out := g.Generate(context.Background(), "how do teams decide?", sourceChunks(), "")

	if out.Response != generationFailedResponse {
		t.Errorf("Response = %q, want the apology", out.Response)
	}
	if out.Err == "" {
		t.Error("Err not set on failure")
	}
	if out.CostUSD != 0 || len(out.Citations) != 0 {
		t.Errorf("cost = %v, citations = %v, want zero values", out.CostUSD, out.Citations)
	}
}

func TestExtractCitationsDropsUnbacked(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, 5, 15, log.NewNop())

	response := "[Learning by Doing] by Richard DuFour, Chapter 3: Building Shared Knowledge, pp. 40-55\n" +
		"[Invented Book] by Nobody, Chapter 9: Made Up, pp. 1-2"
	citations := g.ExtractCitations(response, sourceChunks())

	if len(citations) != 1 {
		t.Fatalf("got %d citations, want 1 (fabricated one dropped)", len(citations))
	}
	if citations[0].BookTitle != "Learning by Doing" {
		t.Errorf("kept citation = %+v", citations[0])
	}
}

func TestExtractCitationsWrongChapterDropped(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, 5, 15, log.NewNop())

	response := "[Learning by Doing] by Richard DuFour, Chapter 7: Building Shared Knowledge, pp. 40-55"
	if citations := g.ExtractCitations(response, sourceChunks()); len(citations) != 0 {
		t.Errorf("got %v, want chapter mismatch dropped", citations)
	}
}

func TestExtractCitationsEmphasisVariant(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, 5, 15, log.NewNop())

	response := "**Learning by Doing** by Richard DuFour, Chapter 3: Building Shared Knowledge, pp. 40-55"
	citations := g.ExtractCitations(response, sourceChunks())

	if len(citations) != 1 {
		t.Fatalf("got %d citations, want 1 from the emphasis pattern", len(citations))
	}
	if citations[0].BookTitle != "Learning by Doing" {
		t.Errorf("citation = %+v", citations[0])
	}
}

func TestExtractCitationsNone(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, 5, 15, log.NewNop())

	if citations := g.ExtractCitations("No sources cited here.", sourceChunks()); len(citations) != 0 {
		t.Errorf("got %v, want none", citations)
	}
}

func TestFormatHistory(t *testing.T) {
	messages := []store.Message{
		{Role: "user", Content: "Hello"},
		{Role: "system", Content: "System notification"},
		{Role: "assistant", Content: "Hi there"},
	}

	got := FormatHistory(messages)

	if !strings.Contains(got, "User: Hello") || !strings.Contains(got, "Assistant: Hi there") {
		t.Errorf("FormatHistory() = %q", got)
	}
	if strings.Contains(strings.ToLower(got), "system") {
		t.Errorf("FormatHistory() leaked a system message: %q", got)
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil); got != "" {
		t.Errorf("FormatHistory(nil) = %q, want empty", got)
	}
}
