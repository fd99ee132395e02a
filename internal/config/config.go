// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, PLCCOACH_ prefix)
//  2. Config file (~/.plccoach/config.yaml)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidChunkBounds indicates the chunk token bounds are inconsistent.
	ErrInvalidChunkBounds = errors.New("invalid chunk token bounds")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidRetrievalK indicates the retrieval k values are out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

// Defaults mirror the knobs the ingestion and query pipelines were tuned with.
const (
	DefaultChatModel     = "gemini-2.5-flash"
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension is the native output width of
	// gemini-embedding-001 and the width of the pgvector column.
	DefaultEmbeddingDimension = 3072

	DefaultChunkMinTokens     = 500
	DefaultChunkMaxTokens     = 1000
	DefaultChunkOverlapTokens = 100

	DefaultRetrievalOversample = 10
	DefaultRetrievalFinalK     = 7

	DefaultMaxHistoryMessages = 10

	DefaultEmbedBatchSize = 100

	// Pricing in USD per million tokens.
	DefaultEmbedPricePerMillion     = 0.13
	DefaultGenInputPricePerMillion  = 5.00
	DefaultGenOutputPricePerMillion = 15.00
)

// Config stores application configuration.
//
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI model configuration
	GeminiAPIKey       string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	ChatModel          string  `mapstructure:"chat_model" json:"chat_model"`
	EmbedderModel      string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	Temperature        float32 `mapstructure:"temperature" json:"temperature"`
	MaxOutputTokens    int     `mapstructure:"max_output_tokens" json:"max_output_tokens"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Chunking bounds
	ChunkMinTokens     int `mapstructure:"chunk_min_tokens" json:"chunk_min_tokens"`
	ChunkMaxTokens     int `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Retrieval knobs
	RetrievalOversample int `mapstructure:"retrieval_oversample" json:"retrieval_oversample"`
	RetrievalFinalK     int `mapstructure:"retrieval_final_k" json:"retrieval_final_k"`

	// Classification cache
	ClassificationCacheTTL time.Duration `mapstructure:"classification_cache_ttl" json:"classification_cache_ttl"`

	// Conversation context
	MaxHistoryMessages int `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Ingestion batching
	EmbedBatchSize  int           `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	EmbedBatchDelay time.Duration `mapstructure:"embed_batch_delay" json:"embed_batch_delay"`

	// Cost accounting (USD per million tokens)
	EmbedPricePerMillion     float64 `mapstructure:"embed_price_per_million" json:"embed_price_per_million"`
	GenInputPricePerMillion  float64 `mapstructure:"gen_input_price_per_million" json:"gen_input_price_per_million"`
	GenOutputPricePerMillion float64 `mapstructure:"gen_output_price_per_million" json:"gen_output_price_per_million"`
}

// Load reads configuration from defaults, the optional config file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: ~/.plccoach/config.yaml
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".plccoach"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing file is fine; defaults and env apply.
	}

	v.SetEnvPrefix("PLCCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// GEMINI_API_KEY is the conventional variable name for the Gemini SDK;
	// honor it without the PLCCOACH_ prefix.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_output_tokens", 1000)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "plccoach")
	v.SetDefault("postgres_db_name", "plccoach")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chunk_min_tokens", DefaultChunkMinTokens)
	v.SetDefault("chunk_max_tokens", DefaultChunkMaxTokens)
	v.SetDefault("chunk_overlap_tokens", DefaultChunkOverlapTokens)

	v.SetDefault("retrieval_oversample", DefaultRetrievalOversample)
	v.SetDefault("retrieval_final_k", DefaultRetrievalFinalK)

	v.SetDefault("classification_cache_ttl", time.Hour)
	v.SetDefault("max_history_messages", DefaultMaxHistoryMessages)

	v.SetDefault("embed_batch_size", DefaultEmbedBatchSize)
	v.SetDefault("embed_batch_delay", 100*time.Millisecond)

	v.SetDefault("embed_price_per_million", DefaultEmbedPricePerMillion)
	v.SetDefault("gen_input_price_per_million", DefaultGenInputPricePerMillion)
	v.SetDefault("gen_output_price_per_million", DefaultGenOutputPricePerMillion)
}

// Validate checks configuration invariants. It does not require the API key;
// commands that talk to the Gemini API check it separately so that offline
// commands (migrate) work without one.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.ChunkMinTokens <= 0 || c.ChunkMaxTokens <= c.ChunkMinTokens {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidChunkBounds, c.ChunkMinTokens, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMinTokens {
		return fmt.Errorf("%w: overlap=%d must be in [0, min)", ErrInvalidChunkBounds, c.ChunkOverlapTokens)
	}
	if c.EmbeddingDimension <= 0 || c.EmbeddingDimension > 8192 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.EmbeddingDimension)
	}
	if c.RetrievalFinalK <= 0 || c.RetrievalOversample <= 0 {
		return fmt.Errorf("%w: final_k=%d oversample=%d", ErrInvalidRetrievalK, c.RetrievalFinalK, c.RetrievalOversample)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	return nil
}

// RequireAPIKey returns an error when no Gemini API key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked so no substring of the original survives; longer
// secrets keep the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - GeminiAPIKey
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
