package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plccoach/plccoach/internal/coach"
	"github.com/plccoach/plccoach/internal/database"
	"github.com/plccoach/plccoach/internal/domain"
	"github.com/plccoach/plccoach/internal/embedding"
	"github.com/plccoach/plccoach/internal/generation"
	"github.com/plccoach/plccoach/internal/retrieval"
	"github.com/plccoach/plccoach/internal/store"
	"github.com/plccoach/plccoach/internal/tokenizer"
)

var (
	askUserID         string
	askConversationID string
	askJSON           bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the PLC coach a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", "cli", "user ID owning the conversation")
	askCmd.Flags().StringVar(&askConversationID, "conversation", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	router := domain.NewRouter(
		domain.NewGeminiClassifier(client, cfg.ChatModel),
		domain.NewCache(cfg.ClassificationCacheTTL),
		logger,
	)
	queryEmbedder := embedding.NewGenerator(
		embedding.NewGeminiQueryClient(client, cfg.EmbedderModel, cfg.EmbeddingDimension, counter),
		cfg.EmbedderModel,
		cfg.EmbeddingDimension,
		embedding.WithLogger(logger),
	)
	engine := retrieval.NewEngine(router, queryEmbedder, st, cfg.RetrievalOversample, cfg.RetrievalFinalK, logger)

	responder := generation.NewGenerator(
		generation.NewGeminiLLM(client, cfg.ChatModel, cfg.Temperature, cfg.MaxOutputTokens),
		cfg.GenInputPricePerMillion,
		cfg.GenOutputPricePerMillion,
		logger,
	)

	svc := coach.New(engine, responder, st, cfg.MaxHistoryMessages, logger)

	question := strings.Join(args, " ")
	answer, err := svc.Ask(ctx, askUserID, askConversationID, question)
	if err != nil {
		return err
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Println(answer.Response)
	if answer.ConversationID != "" {
		fmt.Fprintf(os.Stderr, "\nconversation: %s  domains: %s  time: %dms  cost: $%.4f\n",
			answer.ConversationID,
			strings.Join(answer.Domains, ", "),
			answer.ResponseTimeMS,
			answer.CostUSD,
		)
	}
	return nil
}
