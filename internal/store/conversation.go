package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const createConversationSQL = `
INSERT INTO conversations (user_id)
VALUES ($1)
RETURNING id`

// CreateConversation starts a new conversation for userID and returns its ID.
func (s *Store) CreateConversation(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, createConversationSQL, userID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Debug("created conversation", "conversation_id", id, "user_id", userID)
	return id, nil
}

const ownershipSQL = `
SELECT 1
FROM conversations
WHERE id = $1 AND user_id = $2`

// checkOwnership verifies that conversationID exists and belongs to userID.
// A missing conversation and a foreign one both yield ErrConversationAccess.
func (s *Store) checkOwnership(ctx context.Context, conversationID, userID string) error {
	var one int
	err := s.pool.QueryRow(ctx, ownershipSQL, conversationID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConversationAccess
	}
	if err != nil {
		return fmt.Errorf("check conversation ownership: %w", err)
	}
	return nil
}

const appendMessageSQL = `
INSERT INTO messages (conversation_id, role, content)
VALUES ($1, $2, $3)`

// AppendMessage adds a turn to a conversation after verifying ownership.
func (s *Store) AppendMessage(ctx context.Context, conversationID, userID, role, content string) error {
	if err := s.checkOwnership(ctx, conversationID, userID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, appendMessageSQL, conversationID, role, content); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

const historySQL = `
SELECT role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at DESC
LIMIT $2`

// ConversationHistory returns the most recent limit messages of a
// conversation in chronological order, after verifying that it belongs to
// userID. Missing or foreign conversations yield ErrConversationAccess.
func (s *Store) ConversationHistory(ctx context.Context, conversationID, userID string, limit int) ([]Message, error) {
	if err := s.checkOwnership(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, historySQL, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	// The query returns newest-first for the LIMIT; callers want oldest-first.
	reverse(messages)
	return messages, nil
}

func reverse(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
