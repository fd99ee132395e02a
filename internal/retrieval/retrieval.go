// Package retrieval runs the query-time pipeline: classify the query, embed
// it, search the vector store with a domain filter, and deduplicate the
// candidates down to a final context set.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plccoach/plccoach/internal/domain"
	"github.com/plccoach/plccoach/internal/store"
)

// Classifier routes a query to knowledge domains. It never fails; a broken
// upstream classifier degrades to a safe default inside the implementation.
type Classifier interface {
	Route(ctx context.Context, query string) domain.Classification
}

// Embedder produces a query vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the nearest stored chunks to a query vector.
type Searcher interface {
	SearchSimilar(ctx context.Context, vec []float32, domains []string, limit int) ([]store.Candidate, error)
}

// Engine wires the retrieval stages together.
type Engine struct {
	classifier Classifier
	embedder   Embedder
	searcher   Searcher

	// oversample multiplies finalK for the vector search so deduplication
	// has enough candidates to discard overlapping ones.
	oversample int
	finalK     int

	logger *slog.Logger
}

// NewEngine creates a retrieval Engine. oversample and finalK must be
// positive; config.Validate enforces this upstream.
func NewEngine(classifier Classifier, embedder Embedder, searcher Searcher, oversample, finalK int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: classifier,
		embedder:   embedder,
		searcher:   searcher,
		oversample: oversample,
		finalK:     finalK,
		logger:     logger,
	}
}

// Result is the outcome of one retrieval. A failed retrieval carries the
// failure in Err with no candidates; callers degrade to a no-information
// answer rather than surfacing an error to the user.
type Result struct {
	Query           string
	Classification  domain.Classification
	Candidates      []store.Candidate
	TotalRetrieved  int
	TotalAfterDedup int
	Err             string
}

// Failed reports whether retrieval produced no usable context.
func (r Result) Failed() bool {
	return r.Err != "" || len(r.Candidates) == 0
}

// Retrieve runs the full pipeline for query. It never returns an error;
// failures are folded into Result.Err.
func (e *Engine) Retrieve(ctx context.Context, query string) Result {
	res := Result{Query: query, Classification: domain.SafeDefault()}

	if strings.TrimSpace(query) == "" {
		res.Err = "empty query"
		return res
	}

	res.Classification = e.classifier.Route(ctx, query)

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.logger.Error("query embedding failed", "error", err)
		res.Err = fmt.Sprintf("query embedding failed: %v", err)
		return res
	}

	candidates, err := e.searcher.SearchSimilar(ctx, vec, res.Classification.Domains(), e.oversample*e.finalK)
	if err != nil {
		e.logger.Error("vector search failed", "error", err)
		res.Err = fmt.Sprintf("vector search failed: %v", err)
		return res
	}
	res.TotalRetrieved = len(candidates)

	res.Candidates = dedupe(candidates, e.finalK)
	res.TotalAfterDedup = len(res.Candidates)

	e.logger.Info("retrieved context",
		"query", truncate(query, 50),
		"primary", res.Classification.Primary,
		"retrieved", res.TotalRetrieved,
		"after_dedup", res.TotalAfterDedup,
	)
	return res
}

// pageSpan is a page interval already claimed by a selected chunk.
type pageSpan struct {
	start, end int
}

func (s pageSpan) overlaps(o pageSpan) bool {
	return s.start <= o.end && o.start <= s.end
}

// dedupe walks candidates in similarity order and keeps a chunk only when its
// page range does not overlap an already-selected range from the same book,
// stopping at limit. Exact duplicates (same chunk ID) are always dropped.
// The scan continues past rejected candidates, so a lower-ranked chunk from
// an unclaimed part of a book can still make the cut.
func dedupe(candidates []store.Candidate, limit int) []store.Candidate {
	var selected []store.Candidate
	seenIDs := make(map[string]bool)
	claimed := make(map[string][]pageSpan)

	for _, cand := range candidates {
		if len(selected) == limit {
			break
		}
		c := cand.Chunk
		if seenIDs[c.ChunkID] {
			continue
		}

		span := pageSpan{start: c.PageStart, end: c.PageEnd}
		overlap := false
		for _, s := range claimed[c.BookID] {
			if span.overlaps(s) {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}

		seenIDs[c.ChunkID] = true
		claimed[c.BookID] = append(claimed[c.BookID], span)
		selected = append(selected, cand)
	}

	return selected
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
