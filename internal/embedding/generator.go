package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/plccoach/plccoach/internal/chunk"
)

// Retry defaults for transient API failures.
const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 10 * time.Second
)

// Generator embeds chunk sets in batches. A batch that still fails after all
// retry attempts is skipped so one bad batch cannot sink an entire ingestion
// run; the skip is reported in the Result.
type Generator struct {
	client    Client
	model     string
	dimension int

	batchSize       int
	maxAttempts     int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	pricePerMillion float64

	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithBatchSize sets how many chunks are embedded per API call.
func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithRetry sets the retry policy for failed batches.
func WithRetry(attempts int, base, max time.Duration) Option {
	return func(g *Generator) {
		if attempts > 0 {
			g.maxAttempts = attempts
		}
		if base > 0 {
			g.baseBackoff = base
		}
		if max > 0 {
			g.maxBackoff = max
		}
	}
}

// WithBatchDelay paces API calls at one batch per delay interval.
func WithBatchDelay(delay time.Duration) Option {
	return func(g *Generator) {
		if delay > 0 {
			g.limiter = rate.NewLimiter(rate.Every(delay), 1)
		}
	}
}

// WithPricing sets the embedding price in USD per million tokens.
func WithPricing(pricePerMillion float64) Option {
	return func(g *Generator) {
		g.pricePerMillion = pricePerMillion
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a Generator with sane defaults.
func NewGenerator(client Client, model string, dimension int, opts ...Option) *Generator {
	g := &Generator{
		client:      client,
		model:       model,
		dimension:   dimension,
		batchSize:   100,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result reports the outcome of an embedding run. FailedBatches counts
// batches skipped after exhausting retries; their chunks have no Record.
type Result struct {
	Records       []Record
	Usage         Usage
	Batches       int
	FailedBatches int
	Errors        []error
}

// EmbedChunks embeds every chunk in batches. It returns an error only when
// ctx ends; API failures degrade to skipped batches instead.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) (Result, error) {
	var res Result
	res.Records = make([]Record, 0, len(chunks))

	for start := 0; start < len(chunks); start += g.batchSize {
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		res.Batches++

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, tokens, err := g.embedWithRetry(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			g.logger.Error("embedding batch failed, skipping",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			res.FailedBatches++
			res.Errors = append(res.Errors, fmt.Errorf("batch at %d: %w", start, err))
			continue
		}

		now := time.Now().UTC()
		for i, c := range batch {
			res.Records = append(res.Records, Record{
				Chunk:     c,
				Vector:    vectors[i],
				Model:     g.model,
				Dimension: g.dimension,
				CreatedAt: now,
			})
		}
		res.Usage.add(tokens, g.pricePerMillion)

		g.logger.Debug("embedded batch",
			"batch_start", start,
			"batch_size", len(batch),
			"tokens", tokens,
		)
	}

	return res, nil
}

// EmbedQuery embeds a single query text with the same retry policy.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, _, err := g.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, int, error) {
	var lastErr error

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := g.baseBackoff << (attempt - 1)
			if backoff > g.maxBackoff {
				backoff = g.maxBackoff
			}
			g.logger.Warn("retrying embedding batch",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, 0, ctx.Err()
			case <-timer.C:
			}
		}

		vectors, tokens, err := g.client.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, tokens, nil
		}
		lastErr = err
	}

	return nil, 0, fmt.Errorf("after %d attempts: %w", g.maxAttempts, lastErr)
}
