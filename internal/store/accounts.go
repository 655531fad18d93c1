package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mailmind/internal/models"
)

// AccountStore reads mailbox accounts and writes back refreshed
// credentials. UpdateCredential must be atomic at the field level so a
// concurrent reader never observes a half-written token pair.
type AccountStore interface {
	Get(ctx context.Context, userID string) (*models.Account, error)
	UpdateCredential(ctx context.Context, userID string, cred models.Credential, lastSync time.Time) error
}

// SQLAccountStore is the sqlx-backed account store.
type SQLAccountStore struct {
	db *sqlx.DB
}

// NewAccountStore creates the account store and its table.
func NewAccountStore(db *sqlx.DB) (*SQLAccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required for account store")
	}

	s := &SQLAccountStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create account tables: %w", err)
	}
	return s, nil
}

func (s *SQLAccountStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mail_accounts (
			user_id VARCHAR(64) PRIMARY KEY,
			provider VARCHAR(16) NOT NULL,
			email VARCHAR(255) NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_expiry TIMESTAMP NOT NULL,
			keywords TEXT,
			last_sync_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	return execDDL(s.db, queries)
}

type accountRow struct {
	UserID       string     `db:"user_id"`
	Provider     string     `db:"provider"`
	Email        string     `db:"email"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	TokenExpiry  time.Time  `db:"token_expiry"`
	Keywords     *string    `db:"keywords"`
	LastSyncAt   *time.Time `db:"last_sync_at"`
}

// Get retrieves the account record for a user.
func (s *SQLAccountStore) Get(ctx context.Context, userID string) (*models.Account, error) {
	var row accountRow
	query := s.db.Rebind(`
		SELECT user_id, provider, email, access_token, refresh_token, token_expiry, keywords, last_sync_at
		FROM mail_accounts
		WHERE user_id = ?
	`)
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account := &models.Account{
		UserID:   row.UserID,
		Provider: row.Provider,
		Email:    row.Email,
		Credential: models.Credential{
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			Expiry:       row.TokenExpiry,
		},
		LastSyncAt: row.LastSyncAt,
	}
	if row.Keywords != nil {
		for _, k := range strings.Split(*row.Keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				account.Keywords = append(account.Keywords, k)
			}
		}
	}
	return account, nil
}

// UpdateCredential persists a refreshed credential plus last-sync in a
// single statement.
func (s *SQLAccountStore) UpdateCredential(ctx context.Context, userID string, cred models.Credential, lastSync time.Time) error {
	query := s.db.Rebind(`
		UPDATE mail_accounts
		SET access_token = ?, refresh_token = ?, token_expiry = ?, last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, cred.AccessToken, cred.RefreshToken, cred.Expiry, lastSync, userID); err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}
