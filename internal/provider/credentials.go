package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
	"mailmind/internal/store"
)

// refreshMargin is the safety window before token expiry inside which a
// refresh happens ahead of use.
const refreshMargin = 60 * time.Second

// refresher performs the wire-level token refresh for one provider.
type refresher interface {
	Refresh(ctx context.Context, provider string, cred models.Credential) (models.Credential, error)
}

// Credentials hands out valid bearer tokens, refreshing and persisting
// ahead of use. Refreshes for one account are serialized since some
// providers treat refresh tokens as single-use; independent accounts
// never contend.
type Credentials struct {
	accounts  store.AccountStore
	refresher refresher
	margin    time.Duration
	log       zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCredentials builds the credential manager over the configured OAuth
// applications.
func NewCredentials(cfg *config.Config, accounts store.AccountStore, logger zerolog.Logger) *Credentials {
	return &Credentials{
		accounts:  accounts,
		refresher: newOAuthRefresher(cfg),
		margin:    refreshMargin,
		log:       logger.With().Str("component", "credentials").Logger(),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (c *Credentials) accountLock(userID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[userID] = lock
	}
	return lock
}

func (c *Credentials) fresh(cred models.Credential) bool {
	return cred.AccessToken != "" && time.Until(cred.Expiry) > c.margin
}

// Bearer returns a valid access token for the account, refreshing first
// when expiry has passed or is within the safety margin. The refreshed
// credential is persisted before any provider call proceeds. The account
// record is updated in place on refresh.
func (c *Credentials) Bearer(ctx context.Context, account *models.Account) (string, error) {
	if c.fresh(account.Credential) {
		return account.Credential.AccessToken, nil
	}

	lock := c.accountLock(account.UserID)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent caller may have refreshed while this one waited;
	// reuse that refresh instead of repeating it.
	stored, err := c.accounts.Get(ctx, account.UserID)
	if err == nil && c.fresh(stored.Credential) {
		account.Credential = stored.Credential
		return account.Credential.AccessToken, nil
	}

	cred, err := c.refresher.Refresh(ctx, account.Provider, account.Credential)
	if err != nil {
		return "", classifyRefreshError(err)
	}

	now := time.Now().UTC()
	if err := c.accounts.UpdateCredential(ctx, account.UserID, cred, now); err != nil {
		return "", apperrors.Wrap(apperrors.KindTransientProvider, "failed to persist refreshed credential", err)
	}

	c.log.Info().Str("user_id", account.UserID).Str("provider", account.Provider).Time("expiry", cred.Expiry).Msg("Credential refreshed")
	account.Credential = cred
	return cred.AccessToken, nil
}

// classifyRefreshError maps a refresh failure onto the error taxonomy.
// An invalid or revoked grant needs the user to re-authorize; anything
// else is retryable by the caller.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if code == "" {
			code = strings.ToLower(string(retrieveErr.Body))
		}
		if strings.Contains(code, "invalid_grant") {
			return apperrors.Wrap(apperrors.KindReauthRequired, "refresh token invalid or revoked", err)
		}
	}
	return apperrors.Wrap(apperrors.KindTransientProvider, "credential refresh failed", err)
}

// oauthRefresher refreshes tokens through each provider's OAuth token
// endpoint via golang.org/x/oauth2.
type oauthRefresher struct {
	configs map[string]*oauth2.Config
}

func newOAuthRefresher(cfg *config.Config) *oauthRefresher {
	return &oauthRefresher{
		configs: map[string]*oauth2.Config{
			models.ProviderGmail: {
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     endpoints.Google,
			},
			models.ProviderOutlook: {
				ClientID:     cfg.MicrosoftClientID,
				ClientSecret: cfg.MicrosoftClientSecret,
				Endpoint:     endpoints.AzureAD(cfg.MicrosoftTenant),
			},
			models.ProviderIMAP: {
				ClientID:     cfg.IMAPClientID,
				ClientSecret: cfg.IMAPClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: cfg.IMAPTokenURL},
			},
		},
	}
}

func (r *oauthRefresher) Refresh(ctx context.Context, provider string, cred models.Credential) (models.Credential, error) {
	conf, ok := r.configs[provider]
	if !ok {
		return models.Credential{}, fmt.Errorf("no OAuth configuration for provider %q", provider)
	}

	// Expiry in the past forces TokenSource to hit the token endpoint.
	stale := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	tok, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		return models.Credential{}, err
	}

	refreshed := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	// Providers that rotate refresh tokens return a new one; others omit
	// it and the old one stays valid.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	return refreshed, nil
}

// tokenSource adapts Credentials to oauth2.TokenSource for SDKs that
// want one, like the Gmail service client.
type tokenSource struct {
	ctx     context.Context
	creds   *Credentials
	account *models.Account
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	bearer, err := ts.creds.Bearer(ts.ctx, ts.account)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: bearer, Expiry: ts.account.Credential.Expiry}, nil
}
