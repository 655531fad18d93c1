package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/jhillyerd/enmime"
	"github.com/rs/zerolog"

	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

// imapMailbox adapts a generic OAuth IMAP/SMTP account to the Mailbox
// contract. Message ids are INBOX UIDs; the sent and drafts views are
// read through their own mailboxes.
type imapMailbox struct {
	cfg     *config.Config
	account *models.Account
	creds   *Credentials
	log     zerolog.Logger
}

func newIMAPMailbox(cfg *config.Config, account *models.Account, creds *Credentials, logger zerolog.Logger) *imapMailbox {
	return &imapMailbox{
		cfg:     cfg,
		account: account,
		creds:   creds,
		log:     logger.With().Str("provider", "imap").Logger(),
	}
}

// withClient dials, authenticates, runs fn and logs out. IMAP sessions
// are cheap enough per conversation turn that no pool is kept.
func (m *imapMailbox) withClient(ctx context.Context, fn func(c *client.Client) error) error {
	bearer, err := m.creds.Bearer(ctx, m.account)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.IMAPHost, m.cfg.IMAPPort)
	c, err := client.DialTLS(addr, &tls.Config{
		ServerName: m.cfg.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransientProvider, "failed to connect to IMAP server", err)
	}
	defer c.Logout() //nolint:errcheck

	auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: m.account.Email,
		Token:    bearer,
		Host:     m.cfg.IMAPHost,
		Port:     m.cfg.IMAPPort,
	})
	if err := c.Authenticate(auth); err != nil {
		return apperrors.Wrap(apperrors.KindTransientProvider, "IMAP authentication failed", err)
	}

	return fn(c)
}

// imapSelection maps a view to a mailbox name plus search criteria.
func imapSelection(filter FilterSpec) (string, *imap.SearchCriteria) {
	mailbox := "INBOX"
	criteria := imap.NewSearchCriteria()
	switch filter.view() {
	case ViewAll:
	case ViewUnread:
		criteria.WithoutFlags = []string{imap.SeenFlag}
	case ViewStarred, ViewImportant:
		// Plain IMAP has no importance label; the flagged set is the
		// closest native equivalent for both views.
		criteria.WithFlags = []string{imap.FlaggedFlag}
	case ViewSent:
		mailbox = "Sent"
	case ViewDrafts:
		mailbox = "Drafts"
	}
	if !filter.After.IsZero() {
		criteria.Since = filter.After
	}
	if !filter.Before.IsZero() {
		criteria.Before = filter.Before
	}
	if filter.Query != "" {
		criteria.Text = []string{filter.Query}
	}
	return mailbox, criteria
}

func (m *imapMailbox) Fetch(ctx context.Context, filter FilterSpec) (*models.MessagePage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var page models.MessagePage
	err := m.withClient(ctx, func(c *client.Client) error {
		mailbox, criteria := imapSelection(filter)
		if _, err := c.Select(mailbox, true); err != nil {
			return fmt.Errorf("failed to select %s: %w", mailbox, err)
		}

		uids, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(uids) == 0 {
			page.Messages = []models.Message{}
			return nil
		}

		// Newest first. The page cursor is the lowest UID already served.
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		if filter.PageToken != "" {
			cursor, err := strconv.ParseUint(filter.PageToken, 10, 32)
			if err != nil {
				return apperrors.Newf(apperrors.KindInvalidFilter, "invalid page token %q", filter.PageToken)
			}
			for len(uids) > 0 && uint64(uids[0]) >= cursor {
				uids = uids[1:]
			}
		}
		size := int(filter.pageSize())
		if len(uids) > size {
			uids = uids[:size]
			page.NextPageToken = strconv.FormatUint(uint64(uids[size-1]), 10)
		}
		if len(uids) == 0 {
			page.Messages = []models.Message{}
			return nil
		}

		msgs, _, err := fetchIMAPMessages(c, uids)
		if err != nil {
			return err
		}
		page.Messages = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// fetchIMAPMessages loads and normalizes a UID set. The second return
// value maps each UID to its RFC 822 Message-ID header, which reply
// threading needs but models.Message does not carry.
func fetchIMAPMessages(c *client.Client, uids []uint32) ([]models.Message, map[uint32]string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	byUID := make(map[uint32]models.Message, len(uids))
	messageIDs := make(map[uint32]string, len(uids))
	for msg := range ch {
		normalized, err := normalizeIMAPMessage(msg, section)
		if err != nil {
			return nil, nil, err
		}
		byUID[msg.Uid] = normalized
		if msg.Envelope != nil {
			messageIDs[msg.Uid] = msg.Envelope.MessageId
		}
	}
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("fetch failed: %w", err)
	}

	// Preserve the newest-first order of the search result.
	out := make([]models.Message, 0, len(uids))
	for _, uid := range uids {
		if m, ok := byUID[uid]; ok {
			out = append(out, m)
		}
	}
	return out, messageIDs, nil
}

func normalizeIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (models.Message, error) {
	out := models.Message{
		ID:     strconv.FormatUint(uint64(msg.Uid), 10),
		IsRead: false,
		Date:   msg.InternalDate,
	}
	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			out.IsRead = true
		}
	}
	if env := msg.Envelope; env != nil {
		out.Subject = env.Subject
		if !env.Date.IsZero() {
			out.Date = env.Date
		}
		if len(env.From) > 0 {
			out.From = env.From[0].Address()
		}
		for _, to := range env.To {
			out.To = append(out.To, to.Address())
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return out, nil
	}
	envelope, err := enmime.ReadEnvelope(body)
	if err != nil {
		// An unparsable MIME body still leaves a usable header-only entry.
		return out, nil
	}
	// Prefer the plain part; strip HTML only when no plain part exists.
	if envelope.Text != "" {
		out.Body = envelope.Text
	} else if envelope.HTML != "" {
		out.Body = htmlToText(envelope.HTML)
	}
	out.Snippet = snippetOf(out.Body)
	out.HasAttachments = len(envelope.Attachments) > 0
	return out, nil
}

func (m *imapMailbox) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	bearer, err := m.creds.Bearer(ctx, m.account)
	if err != nil {
		return "", err
	}

	raw := buildRFC822(m.account.Email, msg.To, msg.Subject, msg.Body, msg.Attachments, rfc822Headers{})
	if err := submitSMTP(m.cfg, m.account.Email, bearer, msg.To, raw); err != nil {
		return "", err
	}

	// SMTP yields no id; appending to Sent gives the caller one.
	var id string
	appendErr := m.withClient(ctx, func(c *client.Client) error {
		if err := c.Append("Sent", []string{imap.SeenFlag}, time.Now(), bytes.NewBuffer(raw)); err != nil {
			return err
		}
		uid, err := lastUID(c, "Sent")
		if err != nil {
			return err
		}
		id = strconv.FormatUint(uint64(uid), 10)
		return nil
	})
	if appendErr != nil {
		m.log.Warn().Err(appendErr).Msg("Sent message could not be appended to Sent mailbox")
	}
	return id, nil
}

func (m *imapMailbox) Reply(ctx context.Context, messageID, body string, attachments []models.Attachment) (string, error) {
	original, headers, err := m.getWithHeaders(ctx, messageID)
	if err != nil {
		return "", err
	}

	bearer, err := m.creds.Bearer(ctx, m.account)
	if err != nil {
		return "", err
	}

	subject := original.Subject
	if len(subject) < 3 || (subject[:3] != "Re:" && subject[:3] != "RE:") {
		subject = "Re: " + subject
	}
	raw := buildRFC822(m.account.Email, []string{original.From}, subject, body, attachments, headers)
	if err := submitSMTP(m.cfg, m.account.Email, bearer, []string{original.From}, raw); err != nil {
		return "", err
	}
	return messageID, nil
}

func (m *imapMailbox) Trash(ctx context.Context, messageID string) error {
	uid, err := parseUID(messageID)
	if err != nil {
		return err
	}
	return m.withClient(ctx, func(c *client.Client) error {
		if _, err := c.Select("INBOX", false); err != nil {
			return fmt.Errorf("failed to select INBOX: %w", err)
		}
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		if err := c.UidCopy(seqset, "Trash"); err != nil {
			return fmt.Errorf("failed to copy to Trash: %w", err)
		}
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return fmt.Errorf("failed to flag deleted: %w", err)
		}
		return c.Expunge(nil)
	})
}

func (m *imapMailbox) MarkRead(ctx context.Context, messageID string, read bool) error {
	uid, err := parseUID(messageID)
	if err != nil {
		return err
	}
	return m.withClient(ctx, func(c *client.Client) error {
		if _, err := c.Select("INBOX", false); err != nil {
			return fmt.Errorf("failed to select INBOX: %w", err)
		}
		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		return c.UidStore(seqset, seenFlagsOp(read), []interface{}{imap.SeenFlag}, nil)
	})
}

func (m *imapMailbox) Draft(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	raw := buildRFC822(m.account.Email, msg.To, msg.Subject, msg.Body, msg.Attachments, rfc822Headers{})

	var id string
	err := m.withClient(ctx, func(c *client.Client) error {
		if err := c.Append("Drafts", []string{imap.DraftFlag}, time.Now(), bytes.NewBuffer(raw)); err != nil {
			return fmt.Errorf("failed to append draft: %w", err)
		}
		uid, err := lastUID(c, "Drafts")
		if err != nil {
			return err
		}
		id = strconv.FormatUint(uint64(uid), 10)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (m *imapMailbox) Get(ctx context.Context, messageID string) (*models.Message, error) {
	msg, _, err := m.getWithHeaders(ctx, messageID)
	return msg, err
}

func (m *imapMailbox) getWithHeaders(ctx context.Context, messageID string) (*models.Message, rfc822Headers, error) {
	uid, err := parseUID(messageID)
	if err != nil {
		return nil, rfc822Headers{}, err
	}

	var out *models.Message
	var headers rfc822Headers
	err = m.withClient(ctx, func(c *client.Client) error {
		if _, err := c.Select("INBOX", true); err != nil {
			return fmt.Errorf("failed to select INBOX: %w", err)
		}
		msgs, messageIDs, err := fetchIMAPMessages(c, []uint32{uid})
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("message %s not found", messageID)
		}
		out = &msgs[0]
		headers = replyHeaders(messageIDs[uid])
		return nil
	})
	if err != nil {
		return nil, rfc822Headers{}, err
	}
	return out, headers, nil
}

func (m *imapMailbox) ListAttachments(ctx context.Context, messageID string) ([]models.AttachmentInfo, error) {
	envelope, err := m.readEnvelope(ctx, messageID)
	if err != nil {
		return nil, err
	}

	infos := make([]models.AttachmentInfo, 0, len(envelope.Attachments))
	for i, part := range envelope.Attachments {
		infos = append(infos, models.AttachmentInfo{
			ID:       strconv.Itoa(i),
			Filename: part.FileName,
			MimeType: part.ContentType,
			Size:     int64(len(part.Content)),
		})
	}
	return infos, nil
}

func (m *imapMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	envelope, err := m.readEnvelope(ctx, messageID)
	if err != nil {
		return nil, err
	}

	index, err := strconv.Atoi(attachmentID)
	if err != nil || index < 0 || index >= len(envelope.Attachments) {
		return nil, fmt.Errorf("attachment %q not found in message %s", attachmentID, messageID)
	}
	return envelope.Attachments[index].Content, nil
}

func (m *imapMailbox) readEnvelope(ctx context.Context, messageID string) (*enmime.Envelope, error) {
	uid, err := parseUID(messageID)
	if err != nil {
		return nil, err
	}

	var envelope *enmime.Envelope
	err = m.withClient(ctx, func(c *client.Client) error {
		if _, err := c.Select("INBOX", true); err != nil {
			return fmt.Errorf("failed to select INBOX: %w", err)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		section := &imap.BodySectionName{Peek: true}

		ch := make(chan *imap.Message, 1)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, ch)
		}()

		var literal imap.Literal
		for msg := range ch {
			literal = msg.GetBody(section)
		}
		if err := <-done; err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		if literal == nil {
			return fmt.Errorf("message %s not found", messageID)
		}

		env, err := enmime.ReadEnvelope(literal)
		if err != nil {
			return fmt.Errorf("failed to parse message: %w", err)
		}
		envelope = env
		return nil
	})
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

// replyHeaders derives the threading headers for a reply from the
// original's Message-ID.
func replyHeaders(messageID string) rfc822Headers {
	if messageID == "" {
		return rfc822Headers{}
	}
	return rfc822Headers{InReplyTo: messageID, References: messageID}
}

// seenFlagsOp builds the silent store item that sets or clears \Seen.
func seenFlagsOp(read bool) imap.StoreItem {
	op := imap.FlagsOp(imap.AddFlags)
	if !read {
		op = imap.FlagsOp(imap.RemoveFlags)
	}
	return imap.FormatFlagsOp(op, true)
}

func parseUID(messageID string) (uint32, error) {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", messageID)
	}
	return uint32(uid), nil
}

// lastUID returns the UID of the most recently appended message in a
// mailbox.
func lastUID(c *client.Client, mailbox string) (uint32, error) {
	status, err := c.Select(mailbox, true)
	if err != nil {
		return 0, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if status.UidNext == 0 {
		return 0, nil
	}
	return status.UidNext - 1, nil
}
