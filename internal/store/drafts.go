package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mailmind/internal/models"
)

// DraftStore is the durable mirror of pending drafts. It survives
// restarts and backs "send draft N" selection, ordered by recency.
type DraftStore interface {
	Create(ctx context.Context, draft *models.PendingDraft) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.PendingDraft, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// SQLDraftStore is the sqlx-backed draft store.
type SQLDraftStore struct {
	db *sqlx.DB
}

// NewDraftStore creates the draft store and its table.
func NewDraftStore(db *sqlx.DB) (*SQLDraftStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required for draft store")
	}

	s := &SQLDraftStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create draft tables: %w", err)
	}
	return s, nil
}

func (s *SQLDraftStore) createTables() error {
	// MySQL has no CREATE INDEX IF NOT EXISTS; its indexes ride inside
	// the idempotent CREATE TABLE instead.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_drafts (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			KEY idx_pending_drafts_user_id (user_id),
			KEY idx_pending_drafts_created_at (created_at DESC)
		)`,
	}
	if s.db.DriverName() == "postgres" {
		queries = []string{
			`CREATE TABLE IF NOT EXISTS pending_drafts (
				id VARCHAR(36) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				recipient TEXT NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_drafts_user_id ON pending_drafts(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_drafts_created_at ON pending_drafts(created_at DESC)`,
		}
	}

	return execDDL(s.db, queries)
}

// Create stores a draft.
func (s *SQLDraftStore) Create(ctx context.Context, draft *models.PendingDraft) error {
	query := s.db.Rebind(`
		INSERT INTO pending_drafts (id, user_id, recipient, subject, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, draft.ID, draft.UserID, draft.Recipient, draft.Subject, draft.Body, draft.CreatedAt); err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// ListByUser returns the user's drafts, most recent first.
func (s *SQLDraftStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.PendingDraft, error) {
	query := s.db.Rebind(`
		SELECT id, user_id, recipient, subject, body, created_at
		FROM pending_drafts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)
	var drafts []models.PendingDraft
	if err := s.db.SelectContext(ctx, &drafts, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	if drafts == nil {
		drafts = []models.PendingDraft{}
	}
	return drafts, nil
}

// DeleteByUser removes every draft belonging to a user. Called once a
// draft is confirmed and sent.
func (s *SQLDraftStore) DeleteByUser(ctx context.Context, userID string) error {
	query := s.db.Rebind(`DELETE FROM pending_drafts WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}
	return nil
}
