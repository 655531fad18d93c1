// Package provider translates generic mailbox operations into the
// native calls of each supported email service. One conforming type
// exists per provider, selected once per request by the factory; shared
// logic never inspects the concrete type.
package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mailmind/internal/config"
	"mailmind/internal/models"
	"mailmind/internal/store"
)

// Mailbox is the capability contract every provider adapter implements.
type Mailbox interface {
	// Fetch returns one page of normalized messages for a filter.
	Fetch(ctx context.Context, filter FilterSpec) (*models.MessagePage, error)
	// Send sends a message and returns its provider id.
	Send(ctx context.Context, msg models.OutgoingMessage) (string, error)
	// Reply answers an existing message within its thread.
	Reply(ctx context.Context, messageID, body string, attachments []models.Attachment) (string, error)
	// Trash moves a message to the provider's trash.
	Trash(ctx context.Context, messageID string) error
	// MarkRead sets or clears the read flag.
	MarkRead(ctx context.Context, messageID string, read bool) error
	// Draft stores a draft and returns its provider id.
	Draft(ctx context.Context, msg models.OutgoingMessage) (string, error)
	// Get fetches one message by id.
	Get(ctx context.Context, messageID string) (*models.Message, error)
	// ListAttachments describes a message's attachments.
	ListAttachments(ctx context.Context, messageID string) ([]models.AttachmentInfo, error)
	// GetAttachment returns raw attachment bytes.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Factory builds the adapter matching an account's provider type.
type Factory struct {
	cfg   *config.Config
	creds *Credentials
	log   zerolog.Logger
}

// NewFactory creates the provider factory.
func NewFactory(cfg *config.Config, accounts store.AccountStore, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:   cfg,
		creds: NewCredentials(cfg, accounts, logger),
		log:   logger,
	}
}

// Credentials exposes the shared credential refresher, mainly for wiring
// and tests.
func (f *Factory) Credentials() *Credentials {
	return f.creds
}

// Mailbox returns the adapter for an account.
func (f *Factory) Mailbox(account *models.Account) (Mailbox, error) {
	switch account.Provider {
	case models.ProviderGmail:
		return newGmailMailbox(account, f.creds, f.log), nil
	case models.ProviderOutlook:
		return newOutlookMailbox(f.cfg, account, f.creds, f.log), nil
	case models.ProviderIMAP:
		return newIMAPMailbox(f.cfg, account, f.creds, f.log), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", account.Provider)
	}
}
