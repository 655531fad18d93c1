package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailmind/internal/models"
)

func TestAccountStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	s := &SQLAccountStore{db: db}

	expiry := time.Now().Add(time.Hour)
	keywords := "urgent, invoice"
	rows := sqlmock.NewRows([]string{"user_id", "provider", "email", "access_token", "refresh_token", "token_expiry", "keywords", "last_sync_at"}).
		AddRow("user-1", "gmail", "me@example.com", "at", "rt", expiry, keywords, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, provider, email, access_token, refresh_token, token_expiry, keywords, last_sync_at")).
		WithArgs("user-1").
		WillReturnRows(rows)

	account, err := s.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "gmail", account.Provider)
	assert.Equal(t, "me@example.com", account.Email)
	assert.Equal(t, "at", account.Credential.AccessToken)
	assert.Equal(t, "rt", account.Credential.RefreshToken)
	assert.Equal(t, []string{"urgent", "invoice"}, account.Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_UpdateCredential(t *testing.T) {
	db, mock := newMockDB(t)
	s := &SQLAccountStore{db: db}

	cred := models.Credential{
		AccessToken:  "new-at",
		RefreshToken: "new-rt",
		Expiry:       time.Now().Add(time.Hour),
	}
	lastSync := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE mail_accounts")).
		WithArgs(cred.AccessToken, cred.RefreshToken, cred.Expiry, lastSync, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateCredential(context.Background(), "user-1", cred, lastSync)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
