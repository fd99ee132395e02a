// Package tokenizer provides token counting for chunk sizing and cost
// accounting.
//
// The chunker's binary search over character offsets requires the counter to
// be deterministic and weakly monotonic: for any text, extending it with more
// characters must never produce a smaller token count. Implementations must
// uphold this precondition.
package tokenizer

import "strings"

// Counter counts tokens in a text span.
type Counter interface {
	// Count returns the number of tokens in text. Must be deterministic for
	// a fixed encoding, and weakly monotonic in text length.
	Count(text string) int
}

// Heuristic approximates a subword tokenizer without an external model file:
// one token per word for ASCII text plus one token per non-ASCII rune, which
// tracks CJK-heavy text reasonably. Any non-empty text counts at least one
// token.
type Heuristic struct{}

// Count implements Counter.
func (Heuristic) Count(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

// CountAll returns the summed token count of texts.
func CountAll(c Counter, texts []string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
