// Package ingest runs the offline pipeline: read extracted book files, chunk
// them, tag domains, embed, and store. Each book file succeeds or fails as a
// unit; one bad file never aborts the run.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/domain"
	"github.com/plccoach/plccoach/internal/embedding"
	"github.com/plccoach/plccoach/internal/tokenizer"
)

// Embedder embeds a chunk set with partial-failure reporting.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunk.Chunk) (embedding.Result, error)
}

// Inserter persists embedding records.
type Inserter interface {
	InsertRecords(ctx context.Context, records []embedding.Record) (int, error)
}

// Pipeline ingests extracted book JSON files.
type Pipeline struct {
	splitter   *chunk.Splitter
	classifier domain.KeywordClassifier
	embedder   Embedder
	inserter   Inserter
	counter    tokenizer.Counter
	maxTokens  int
	logger     *slog.Logger
}

// NewPipeline creates an ingestion Pipeline. maxTokens is the chunk size
// ceiling used for validation and must match the splitter's.
func NewPipeline(splitter *chunk.Splitter, embedder Embedder, inserter Inserter, counter tokenizer.Counter, maxTokens int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter:  splitter,
		embedder:  embedder,
		inserter:  inserter,
		counter:   counter,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// BookResult records the outcome for one input file.
type BookResult struct {
	File    string   `json:"file"`
	BookID  string   `json:"book_id,omitempty"`
	Chunks  int      `json:"chunks"`
	Stored  int      `json:"stored"`
	Status  string   `json:"status"`
	Errors  []string `json:"errors,omitempty"`
}

// RunLog summarizes an ingestion run. It is written as JSON next to the
// input so runs can be audited later.
type RunLog struct {
	Timestamp     time.Time    `json:"timestamp"`
	Books         int          `json:"books"`
	BooksFailed   int          `json:"books_failed"`
	ChunksStored  int          `json:"chunks_stored"`
	BatchesFailed int          `json:"batches_failed"`
	Tokens        int          `json:"tokens"`
	CostUSD       float64      `json:"cost_usd"`
	Details       []BookResult `json:"details"`
}

// Run ingests every *.json book file in dir, in name order. It returns an
// error only when the directory is unreadable or ctx ends; per-file problems
// are recorded in the RunLog instead.
func (p *Pipeline) Run(ctx context.Context, dir string) (RunLog, error) {
	run := RunLog{Timestamp: time.Now().UTC()}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return run, fmt.Errorf("list book files: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}

		result := p.ingestFile(ctx, path)
		run.Details = append(run.Details, result.BookResult)
		run.Books++
		if result.Status == "failed" {
			run.BooksFailed++
		}
		run.ChunksStored += result.Stored
		run.BatchesFailed += result.batchesFailed
		run.Tokens += result.usage.Tokens
		run.CostUSD += result.usage.CostUSD
	}

	p.logger.Info("ingestion run finished",
		"books", run.Books,
		"failed", run.BooksFailed,
		"chunks_stored", run.ChunksStored,
		"tokens", run.Tokens,
		"cost_usd", run.CostUSD,
	)
	return run, nil
}

type fileResult struct {
	BookResult
	usage         embedding.Usage
	batchesFailed int
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) fileResult {
	res := fileResult{BookResult: BookResult{File: filepath.Base(path), Status: "failed"}}

	raw, err := os.ReadFile(path)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("read: %v", err)}
		p.logger.Error("skipping unreadable book file", "file", path, "error", err)
		return res
	}

	var book chunk.Book
	if err := json.Unmarshal(raw, &book); err != nil {
		res.Errors = []string{fmt.Sprintf("parse: %v", err)}
		p.logger.Error("skipping malformed book file", "file", path, "error", err)
		return res
	}
	res.BookID = book.BookID

	chunks := chunk.FromBook(p.splitter, book, func(text, title string) (string, []string) {
		c := p.classifier.Classify(text, title)
		return c.Primary, c.Secondary
	})
	res.Chunks = len(chunks)

	if errs := chunk.Validate(chunks, p.maxTokens, p.counter); len(errs) > 0 {
		// Quality gate: a book with any invalid chunk is rejected whole.
		res.Errors = errs
		p.logger.Error("rejecting book with invalid chunks", "file", path, "violations", len(errs))
		return res
	}

	embedded, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("embed: %v", err)}
		return res
	}
	res.usage = embedded.Usage
	res.batchesFailed = embedded.FailedBatches
	for _, e := range embedded.Errors {
		res.Errors = append(res.Errors, e.Error())
	}

	stored, err := p.inserter.InsertRecords(ctx, embedded.Records)
	res.Stored = stored
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("store: %v", err))
		p.logger.Error("failed to store book", "file", path, "stored", stored, "error", err)
		return res
	}

	if res.batchesFailed > 0 {
		res.Status = "partial"
	} else {
		res.Status = "ok"
	}
	p.logger.Info("ingested book",
		"file", res.File,
		"book_id", res.BookID,
		"chunks", res.Chunks,
		"stored", res.Stored,
		"status", res.Status,
	)
	return res
}

// WriteRunLog writes the run log as indented JSON.
func WriteRunLog(path string, run RunLog) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
