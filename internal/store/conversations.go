package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailmind/internal/models"
)

// ConversationStore persists conversation turns per user and serves the
// bounded recent history when a chat request carries none.
type ConversationStore interface {
	SaveTurn(ctx context.Context, userID, role, content string) error
	Recent(ctx context.Context, userID string, limit int) ([]models.ConversationTurn, error)
}

// SQLConversationStore is the sqlx-backed conversation store.
type SQLConversationStore struct {
	db *sqlx.DB
}

// NewConversationStore creates the conversation store and its table.
func NewConversationStore(db *sqlx.DB) (*SQLConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required for conversation store")
	}

	s := &SQLConversationStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create conversation tables: %w", err)
	}
	return s, nil
}

func (s *SQLConversationStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			KEY idx_conversation_turns_user_id (user_id),
			KEY idx_conversation_turns_created_at (created_at)
		)`,
	}
	if s.db.DriverName() == "postgres" {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS conversation_turns (
				id SERIAL PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				role VARCHAR(20) NOT NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversation_turns_user_id ON conversation_turns(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_conversation_turns_created_at ON conversation_turns(created_at)`,
		}
	}

	return execDDL(s.db, queries)
}

// SaveTurn appends one turn to a user's history.
func (s *SQLConversationStore) SaveTurn(ctx context.Context, userID, role, content string) error {
	query := s.db.Rebind(`
		INSERT INTO conversation_turns (user_id, role, content, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if _, err := s.db.ExecContext(ctx, query, userID, role, content); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// Recent returns the most recent limit turns in chronological order.
func (s *SQLConversationStore) Recent(ctx context.Context, userID string, limit int) ([]models.ConversationTurn, error) {
	query := s.db.Rebind(`
		SELECT role, content
		FROM conversation_turns
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)
	var turns []models.ConversationTurn
	if err := s.db.SelectContext(ctx, &turns, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent turns: %w", err)
	}

	// Query runs newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
