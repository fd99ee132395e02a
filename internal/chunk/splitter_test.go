package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/plccoach/plccoach/internal/tokenizer"
)

// longText builds a document of n numbered sentences grouped into paragraphs,
// so every chunk the splitter emits is a unique substring of the source.
func longText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "The quick brown fox jumps over the lazy dog number %d. ", i)
		if i%10 == 9 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(500, 1000, 100, counter)

	text := "A chapter far below the minimum token threshold."
	got := s.Split(text)

	if len(got) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(got))
	}
	if got[0] != text {
		t.Errorf("Split() = %q, want the input unchanged", got[0])
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(500, 1000, 100, tokenizer.Heuristic{})

	if got := s.Split("   \n\n  "); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestSplitRespectsMaxTokens(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(50, 100, 10, counter)

	text := longText(200)
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Split() returned %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if n := counter.Count(c); n > 100 {
			t.Errorf("chunk %d has %d tokens, exceeds max 100", i, n)
		}
	}
}

func TestSplitConsecutiveChunksOverlap(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(50, 100, 10, counter)

	text := longText(200)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Split() returned %d chunks, want several", len(chunks))
	}

	prevStart := -1
	prevEnd := 0
	for i, c := range chunks {
		at := strings.Index(text, c)
		if at < 0 {
			t.Fatalf("chunk %d is not a substring of the source", i)
		}
		if at <= prevStart {
			t.Errorf("chunk %d starts at %d, not after chunk %d start %d", i, at, i-1, prevStart)
		}
		if i > 0 && at >= prevEnd {
			t.Errorf("chunk %d starts at %d, past previous chunk end %d; no overlap", i, at, prevEnd)
		}
		prevStart, prevEnd = at, at+len(c)
	}

	if prevEnd < len(strings.TrimRight(text, " \n")) {
		t.Errorf("final chunk ends at %d, source has %d significant bytes", prevEnd, len(strings.TrimRight(text, " \n")))
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(50, 100, 10, counter)

	chunks := s.Split(longText(200))

	// Paragraph breaks occur every 10 sentences; with the snap window at 200
	// characters most cuts should land on one, leaving chunks that end at a
	// sentence terminator rather than mid-word.
	for i, c := range chunks {
		last := c[len(c)-1]
		if last != '.' && last != '?' && last != '!' {
			t.Errorf("chunk %d ends %q, want a sentence terminator", i, c[len(c)-10:])
		}
	}
}

// CJK prose without ASCII sentence terminators never snaps to a boundary, so
// every cut comes from the raw binary-search offset; those must still land on
// rune starts.
func TestSplitKeepsRuneBoundaries(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(50, 100, 10, counter)

	text := strings.Repeat("教師の協働は生徒の学習成果を高める取り組みである、", 200)
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Split() returned %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: starts % x", i, c[:min(len(c), 6)])
		}
		if n := counter.Count(c); n > 100 {
			t.Errorf("chunk %d has %d tokens, exceeds max 100", i, n)
		}
	}
}

func TestOverlapStartWithinBudget(t *testing.T) {
	counter := tokenizer.Heuristic{}
	s := NewSplitter(50, 100, 10, counter)

	chunkText := strings.TrimSpace(longText(20))
	end := len(chunkText)

	at := s.overlapStart(chunkText, end)
	if at >= end {
		t.Fatalf("overlapStart() = %d, want before end %d", at, end)
	}
	overlap := chunkText[at:]
	if n := counter.Count(overlap); n > 10 {
		t.Errorf("overlap has %d tokens, exceeds budget 10", n)
	}
}
