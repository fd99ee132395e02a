// Package cmd wires the CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/plccoach/plccoach/internal/config"
	"github.com/plccoach/plccoach/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "plccoach",
	Short: "PLC Coach - educator Q&A grounded in Solution Tree books",
	Long: `PLC Coach answers Professional Learning Community questions with
citations into the source books. Ingest extracted books once, then ask
questions against the indexed content.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig loads and validates configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the command logger, honoring --verbose.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// newGeminiClient creates the shared Gemini client. Commands that talk to
// the API must call cfg.RequireAPIKey first so the failure is actionable.
func newGeminiClient(ctx context.Context, cfg *config.Config) (*genai.Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY is not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Please run:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}
