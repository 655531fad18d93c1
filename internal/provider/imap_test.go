package provider

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestIMAPSelection(t *testing.T) {
	t.Run("unread stays in inbox without seen flag", func(t *testing.T) {
		mailbox, criteria := imapSelection(FilterSpec{View: ViewUnread})
		assert.Equal(t, "INBOX", mailbox)
		assert.Equal(t, []string{imap.SeenFlag}, criteria.WithoutFlags)
	})

	t.Run("starred and important both use flagged", func(t *testing.T) {
		_, starred := imapSelection(FilterSpec{View: ViewStarred})
		_, important := imapSelection(FilterSpec{View: ViewImportant})
		assert.Equal(t, []string{imap.FlaggedFlag}, starred.WithFlags)
		assert.Equal(t, []string{imap.FlaggedFlag}, important.WithFlags)
	})

	t.Run("sent and drafts select their mailboxes", func(t *testing.T) {
		sent, _ := imapSelection(FilterSpec{View: ViewSent})
		drafts, _ := imapSelection(FilterSpec{View: ViewDrafts})
		assert.Equal(t, "Sent", sent)
		assert.Equal(t, "Drafts", drafts)
	})

	t.Run("time window and query map to criteria", func(t *testing.T) {
		after := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		_, criteria := imapSelection(FilterSpec{After: after, Query: "invoice"})
		assert.Equal(t, after, criteria.Since)
		assert.Equal(t, []string{"invoice"}, criteria.Text)
	})
}

func TestNormalizeIMAPMessageHeadersOnly(t *testing.T) {
	section := &imap.BodySectionName{Peek: true}
	date := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          42,
		Flags:        []string{imap.SeenFlag},
		InternalDate: date,
		Envelope: &imap.Envelope{
			Subject: "Weekly sync notes",
			Date:    date,
			From:    []*imap.Address{{MailboxName: "carol", HostName: "example.com"}},
			To:      []*imap.Address{{MailboxName: "me", HostName: "example.com"}},
		},
	}

	out, err := normalizeIMAPMessage(msg, section)
	assert.NoError(t, err)
	assert.Equal(t, "42", out.ID)
	assert.True(t, out.IsRead)
	assert.Equal(t, "Weekly sync notes", out.Subject)
	assert.Equal(t, "carol@example.com", out.From)
	assert.Equal(t, []string{"me@example.com"}, out.To)
	assert.Equal(t, date, out.Date)
	assert.Empty(t, out.Body)
}

func TestSeenFlagsOp(t *testing.T) {
	assert.Equal(t, imap.StoreItem("+FLAGS.SILENT"), seenFlagsOp(true))
	assert.Equal(t, imap.StoreItem("-FLAGS.SILENT"), seenFlagsOp(false))
}

func TestReplyHeaders(t *testing.T) {
	headers := replyHeaders("<abc123@example.com>")
	assert.Equal(t, "<abc123@example.com>", headers.InReplyTo)
	assert.Equal(t, "<abc123@example.com>", headers.References)

	// Originals without a Message-ID get no threading headers.
	assert.Equal(t, rfc822Headers{}, replyHeaders(""))
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("1234")
	assert.NoError(t, err)
	assert.Equal(t, uint32(1234), uid)

	_, err = parseUID("AMsg-abc")
	assert.Error(t, err)
}
