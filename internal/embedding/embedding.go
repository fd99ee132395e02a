// Package embedding turns chunk text into vectors via the Gemini embedding
// API, with batching, retry, and cost accounting.
package embedding

import (
	"context"
	"math"
	"time"

	"github.com/plccoach/plccoach/internal/chunk"
)

// Client is the embedding API dependency. EmbedBatch returns one vector per
// input text, in order, plus the token count of the batch for cost tracking.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, tokens int, err error)
}

// Record pairs a chunk with its embedding, ready for storage.
type Record struct {
	Chunk     chunk.Chunk
	Vector    []float32
	Model     string
	Dimension int
	CreatedAt time.Time
}

// Usage accumulates token and cost totals across an embedding run.
type Usage struct {
	Tokens  int
	CostUSD float64
}

func (u *Usage) add(tokens int, pricePerMillion float64) {
	u.Tokens += tokens
	u.CostUSD += float64(tokens) / 1_000_000 * pricePerMillion
}

// ValidateVector reports whether v is a usable embedding: the expected
// dimension with no NaN or infinite components.
func ValidateVector(v []float32, dimension int) bool {
	if len(v) != dimension {
		return false
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
