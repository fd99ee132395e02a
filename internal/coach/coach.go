// Package coach orchestrates a full question-answer turn: conversation
// history, retrieval, generation, and persistence of the new turns.
package coach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plccoach/plccoach/internal/chunk"
	"github.com/plccoach/plccoach/internal/generation"
	"github.com/plccoach/plccoach/internal/retrieval"
	"github.com/plccoach/plccoach/internal/store"
)

// Retriever runs the retrieval pipeline for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) retrieval.Result
}

// Responder generates a cited answer from retrieved chunks.
type Responder interface {
	Generate(ctx context.Context, query string, chunks []chunk.Chunk, history string) generation.Output
}

// ConversationStore persists conversations and their messages. All reads and
// writes are scoped to the owning user.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string) (string, error)
	ConversationHistory(ctx context.Context, conversationID, userID string, limit int) ([]store.Message, error)
	AppendMessage(ctx context.Context, conversationID, userID, role, content string) error
}

// Service answers educator questions. A nil ConversationStore yields a
// stateless service: no history, nothing persisted.
type Service struct {
	retriever     Retriever
	responder     Responder
	conversations ConversationStore
	maxHistory    int
	logger        *slog.Logger
}

// New creates a coach Service.
func New(retriever Retriever, responder Responder, conversations ConversationStore, maxHistory int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever:     retriever,
		responder:     responder,
		conversations: conversations,
		maxHistory:    maxHistory,
		logger:        logger,
	}
}

// Answer is one completed coaching turn.
type Answer struct {
	ConversationID string                `json:"conversation_id,omitempty"`
	Response       string                `json:"response"`
	Citations      []generation.Citation `json:"citations"`
	Domains        []string              `json:"domains"`
	ResponseTimeMS int64                 `json:"response_time_ms"`
	TokenUsage     generation.TokenUsage `json:"token_usage"`
	CostUSD        float64               `json:"cost_usd"`
}

// Ask answers query for userID. An empty conversationID starts a new
// conversation; a non-empty one must exist and belong to userID, or
// store.ErrConversationAccess is returned. Retrieval and generation failures
// degrade to honest fixed responses rather than errors.
func (s *Service) Ask(ctx context.Context, userID, conversationID, query string) (Answer, error) {
	start := time.Now()

	history := ""
	if s.conversations != nil {
		if conversationID == "" {
			id, err := s.conversations.CreateConversation(ctx, userID)
			if err != nil {
				return Answer{}, fmt.Errorf("start conversation: %w", err)
			}
			conversationID = id
		} else {
			messages, err := s.conversations.ConversationHistory(ctx, conversationID, userID, s.maxHistory)
			if err != nil {
				return Answer{}, err
			}
			history = generation.FormatHistory(messages)
		}
	}

	res := s.retriever.Retrieve(ctx, query)

	chunks := make([]chunk.Chunk, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		chunks = append(chunks, c.Chunk)
	}

	out := s.responder.Generate(ctx, query, chunks, history)

	if s.conversations != nil {
		s.persistTurn(ctx, conversationID, userID, query, out.Response)
	}

	answer := Answer{
		ConversationID: conversationID,
		Response:       out.Response,
		Citations:      out.Citations,
		Domains:        res.Classification.Domains(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		TokenUsage:     out.TokenUsage,
		CostUSD:        out.CostUSD,
	}

	s.logger.Info("answered query",
		"conversation_id", conversationID,
		"primary", res.Classification.Primary,
		"citations", len(answer.Citations),
		"response_time_ms", answer.ResponseTimeMS,
	)
	return answer, nil
}

// persistTurn saves the user question and assistant response. Persistence
// failure does not fail the turn; the user already has their answer.
func (s *Service) persistTurn(ctx context.Context, conversationID, userID, query, response string) {
	if err := s.conversations.AppendMessage(ctx, conversationID, userID, "user", query); err != nil {
		s.logger.Warn("failed to persist user message", "conversation_id", conversationID, "error", err)
		return
	}
	if err := s.conversations.AppendMessage(ctx, conversationID, userID, "assistant", response); err != nil {
		s.logger.Warn("failed to persist assistant message", "conversation_id", conversationID, "error", err)
	}
}
