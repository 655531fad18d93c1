package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailmind/internal/models"
)

const gmailUser = "me"

// bodyFetchConcurrency bounds the parallel full-message fetches for a
// page of ids.
const bodyFetchConcurrency = 5

// gmailMailbox adapts the Gmail REST API to the Mailbox contract.
type gmailMailbox struct {
	account *models.Account
	creds   *Credentials
	log     zerolog.Logger

	mu  sync.Mutex
	svc *gmail.Service
}

func newGmailMailbox(account *models.Account, creds *Credentials, logger zerolog.Logger) *gmailMailbox {
	return &gmailMailbox{
		account: account,
		creds:   creds,
		log:     logger.With().Str("provider", "gmail").Logger(),
	}
}

func (g *gmailMailbox) service(ctx context.Context) (*gmail.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.svc != nil {
		return g.svc, nil
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(&tokenSource{
		ctx:     ctx,
		creds:   g.creds,
		account: g.account,
	}))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	g.svc = svc
	return svc, nil
}

// gmailQuery translates a FilterSpec to Gmail search syntax.
func gmailQuery(filter FilterSpec) string {
	var parts []string
	switch filter.view() {
	case ViewAll:
		parts = append(parts, "in:inbox")
	case ViewUnread:
		parts = append(parts, "in:inbox", "is:unread")
	case ViewStarred:
		parts = append(parts, "is:starred")
	case ViewSent:
		parts = append(parts, "in:sent")
	case ViewDrafts:
		parts = append(parts, "in:draft")
	case ViewImportant:
		parts = append(parts, "is:important")
	}
	if !filter.After.IsZero() {
		parts = append(parts, "after:"+filter.After.Format("2006/01/02"))
	}
	if !filter.Before.IsZero() {
		parts = append(parts, "before:"+filter.Before.Format("2006/01/02"))
	}
	if filter.Query != "" {
		parts = append(parts, filter.Query)
	}
	return strings.Join(parts, " ")
}

func (g *gmailMailbox) Fetch(ctx context.Context, filter FilterSpec) (*models.MessagePage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(gmailUser).
		Q(gmailQuery(filter)).
		MaxResults(filter.pageSize()).
		Context(ctx)
	if filter.PageToken != "" {
		call = call.PageToken(filter.PageToken)
	}
	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]models.Message, len(list.Messages))
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(bodyFetchConcurrency)
	for i, ref := range list.Messages {
		i, ref := i, ref
		grp.Go(func() error {
			full, err := svc.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(grpCtx).Do()
			if err != nil {
				return fmt.Errorf("failed to get message %s: %w", ref.Id, err)
			}
			messages[i] = normalizeGmailMessage(full)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return &models.MessagePage{
		Messages:      messages,
		NextPageToken: list.NextPageToken,
	}, nil
}

func (g *gmailMailbox) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	raw := buildRFC822(g.account.Email, msg.To, msg.Subject, msg.Body, msg.Attachments, rfc822Headers{})
	sent, err := svc.Users.Messages.Send(gmailUser, &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return sent.Id, nil
}

func (g *gmailMailbox) Reply(ctx context.Context, messageID, body string, attachments []models.Attachment) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	original, err := svc.Users.Messages.Get(gmailUser, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get original message: %w", err)
	}

	var from, subject, rfcMessageID string
	for _, h := range original.Payload.Headers {
		switch h.Name {
		case "From":
			from = h.Value
		case "Subject":
			subject = h.Value
		case "Message-ID", "Message-Id":
			rfcMessageID = h.Value
		}
	}
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	raw := buildRFC822(g.account.Email, []string{from}, subject, body, attachments, rfc822Headers{
		InReplyTo:  rfcMessageID,
		References: rfcMessageID,
	})
	sent, err := svc.Users.Messages.Send(gmailUser, &gmail.Message{
		Raw:      base64.RawURLEncoding.EncodeToString(raw),
		ThreadId: original.ThreadId,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	return sent.Id, nil
}

func (g *gmailMailbox) Trash(ctx context.Context, messageID string) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}
	if _, err := svc.Users.Messages.Trash(gmailUser, messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to trash message: %w", err)
	}
	return nil
}

func (g *gmailMailbox) MarkRead(ctx context.Context, messageID string, read bool) error {
	svc, err := g.service(ctx)
	if err != nil {
		return err
	}

	mod := &gmail.ModifyMessageRequest{}
	if read {
		mod.RemoveLabelIds = []string{"UNREAD"}
	} else {
		mod.AddLabelIds = []string{"UNREAD"}
	}
	if _, err := svc.Users.Messages.Modify(gmailUser, messageID, mod).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to modify message labels: %w", err)
	}
	return nil
}

func (g *gmailMailbox) Draft(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	raw := buildRFC822(g.account.Email, msg.To, msg.Subject, msg.Body, msg.Attachments, rfc822Headers{})
	draft, err := svc.Users.Drafts.Create(gmailUser, &gmail.Draft{
		Message: &gmail.Message{Raw: base64.RawURLEncoding.EncodeToString(raw)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create draft: %w", err)
	}
	return draft.Id, nil
}

func (g *gmailMailbox) Get(ctx context.Context, messageID string) (*models.Message, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	full, err := svc.Users.Messages.Get(gmailUser, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	msg := normalizeGmailMessage(full)
	return &msg, nil
}

func (g *gmailMailbox) ListAttachments(ctx context.Context, messageID string) ([]models.AttachmentInfo, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	full, err := svc.Users.Messages.Get(gmailUser, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	var infos []models.AttachmentInfo
	collectGmailAttachments(full.Payload, &infos)
	return infos, nil
}

func (g *gmailMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return nil, err
	}
	att, err := svc.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(att.Data, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// normalizeGmailMessage converts a full Gmail message into the shared
// Message shape.
func normalizeGmailMessage(msg *gmail.Message) models.Message {
	out := models.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		IsRead:   true,
		Date:     time.UnixMilli(msg.InternalDate).UTC(),
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			out.IsRead = false
		}
	}
	if msg.Payload == nil {
		return out
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			out.Subject = h.Value
		case "From":
			out.From = h.Value
		case "To":
			out.To = splitAddresses(h.Value)
		}
	}

	out.Body = gmailBody(msg.Payload)
	var infos []models.AttachmentInfo
	collectGmailAttachments(msg.Payload, &infos)
	out.HasAttachments = len(infos) > 0
	return out
}

// gmailBody extracts a plain-text body, preferring a text/plain part and
// falling back to stripped HTML.
func gmailBody(payload *gmail.MessagePart) string {
	if plain := findGmailPart(payload, "text/plain"); plain != "" {
		return plain
	}
	if html := findGmailPart(payload, "text/html"); html != "" {
		return htmlToText(html)
	}
	return ""
}

func findGmailPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "=")); err == nil {
			return string(data)
		}
	}
	for _, child := range part.Parts {
		if body := findGmailPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func collectGmailAttachments(part *gmail.MessagePart, infos *[]models.AttachmentInfo) {
	if part == nil {
		return
	}
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		*infos = append(*infos, models.AttachmentInfo{
			ID:       part.Body.AttachmentId,
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     part.Body.Size,
		})
	}
	for _, child := range part.Parts {
		collectGmailAttachments(child, infos)
	}
}
