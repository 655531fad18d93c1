package models

import "time"

// Supported mailbox provider types. Shared logic never inspects these
// outside the provider factory.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderIMAP    = "imap"
)

// Credential is a per-provider OAuth token pair. A provider adapter may
// replace it as a side effect of any call; the replacement is persisted
// before the call proceeds.
type Credential struct {
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	Expiry       time.Time `db:"token_expiry" json:"-"`
}

// Account is the mailbox account record owning the credential.
type Account struct {
	UserID     string     `db:"user_id" json:"user_id"`
	Provider   string     `db:"provider" json:"provider"`
	Email      string     `db:"email" json:"email"`
	Credential Credential `db:"-" json:"-"`
	Keywords   []string   `db:"-" json:"keywords,omitempty"`
	LastSyncAt *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
}
