package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/database"
	"github.com/plccoach/plccoach/internal/embedding"
	"github.com/plccoach/plccoach/internal/ingest"
	"github.com/plccoach/plccoach/internal/store"
	"github.com/plccoach/plccoach/internal/tokenizer"
)

var ingestRunLog string

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Ingest extracted book JSON files into the vector store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRunLog, "run-log", "", "write a JSON run log to this path")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return err
	}

	pool, err := database.OpenPool(ctx, cfg.PostgresURL())
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.New(pool, logger)
	counter := tokenizer.Heuristic{}
	splitter := chunk.NewSplitter(cfg.ChunkMinTokens, cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens, counter)

	embedder := embedding.NewGenerator(
		embedding.NewGeminiClient(client, cfg.EmbedderModel, cfg.EmbeddingDimension, counter),
		cfg.EmbedderModel,
		cfg.EmbeddingDimension,
		embedding.WithBatchSize(cfg.EmbedBatchSize),
		embedding.WithBatchDelay(cfg.EmbedBatchDelay),
		embedding.WithPricing(cfg.EmbedPricePerMillion),
		embedding.WithLogger(logger),
	)

	pipeline := ingest.NewPipeline(splitter, embedder, st, counter, cfg.ChunkMaxTokens, logger)

	run, err := pipeline.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if ingestRunLog != "" {
		if err := ingest.WriteRunLog(ingestRunLog, run); err != nil {
			return err
		}
	}

	fmt.Printf("books: %d (failed: %d)  chunks stored: %d  tokens: %d  cost: $%.4f\n",
		run.Books, run.BooksFailed, run.ChunksStored, run.Tokens, run.CostUSD)

	if run.Books > 0 && run.BooksFailed == run.Books {
		return fmt.Errorf("every book failed to ingest")
	}
	return nil
}
