// Package store persists embeddings and conversations in PostgreSQL with
// pgvector, and serves similarity search for retrieval.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/embedding"
)

// ErrConversationAccess is returned when a conversation does not exist or is
// owned by a different user. The two cases are deliberately not
// distinguishable, so a caller cannot probe for other users' conversation IDs.
var ErrConversationAccess = errors.New("conversation not found or access denied")

// Store manages embeddings and conversation persistence.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Candidate is a search hit: a chunk and its cosine similarity to the query.
type Candidate struct {
	Chunk      chunk.Chunk
	Similarity float64
}

// Message is one conversation turn.
type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

const insertEmbeddingSQL = `
INSERT INTO embeddings (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata`

// InsertRecords writes embedding records in one round trip and returns how
// many were stored. Re-inserting a chunk ID overwrites the previous row, so
// re-running ingestion supersedes stale vectors.
func (s *Store) InsertRecords(ctx context.Context, records []embedding.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i, r := range records {
		metadata, err := json.Marshal(r.Chunk)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for record %d: %w", i, err)
		}
		batch.Queue(insertEmbeddingSQL,
			r.Chunk.ChunkID,
			r.Chunk.Content,
			pgvector.NewVector(r.Vector),
			metadata,
			r.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Debug("closing batch results", "error", err)
		}
	}()

	stored := 0
	for i := range records {
		if _, err := results.Exec(); err != nil {
			return stored, fmt.Errorf("insert record %d: %w", i, err)
		}
		stored++
	}

	s.logger.Debug("stored embedding records", "count", stored)
	return stored, nil
}

const searchSQL = `
SELECT metadata, 1 - (embedding <=> $1) AS similarity
FROM embeddings
ORDER BY embedding <=> $1
LIMIT $2`

const searchByDomainSQL = `
SELECT metadata, 1 - (embedding <=> $1) AS similarity
FROM embeddings
WHERE metadata->>'primary_domain' = ANY($2)
ORDER BY embedding <=> $1
LIMIT $3`

// SearchSimilar returns the limit nearest chunks to vec by cosine distance,
// most similar first. A non-empty domains slice restricts candidates to
// chunks whose primary domain is in the set.
func (s *Store) SearchSimilar(ctx context.Context, vec []float32, domains []string, limit int) ([]Candidate, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(domains) > 0 {
		rows, err = s.pool.Query(ctx, searchByDomainSQL, pgvector.NewVector(vec), domains, limit)
	} else {
		rows, err = s.pool.Query(ctx, searchSQL, pgvector.NewVector(vec), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			metadata   []byte
			similarity float64
		)
		if err := rows.Scan(&metadata, &similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		c, err := decodeMetadata(metadata)
		if err != nil {
			// A malformed row should not sink the whole search.
			s.logger.Warn("skipping candidate with bad metadata", "error", err)
			continue
		}
		candidates = append(candidates, Candidate{Chunk: c, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	s.logger.Debug("similarity search", "domains", domains, "limit", limit, "hits", len(candidates))
	return candidates, nil
}

// decodeMetadata restores the chunk stored in an embeddings row.
func decodeMetadata(raw []byte) (chunk.Chunk, error) {
	var c chunk.Chunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return chunk.Chunk{}, fmt.Errorf("unmarshal chunk metadata: %w", err)
	}
	if c.ChunkID == "" {
		return chunk.Chunk{}, errors.New("chunk metadata missing chunk_id")
	}
	return c, nil
}
