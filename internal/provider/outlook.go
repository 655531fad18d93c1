package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
	"mailmind/internal/models"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0/me"

// outlookMailbox adapts the Microsoft Graph mail API to the Mailbox
// contract. No Graph SDK is used; the API is plain REST/JSON.
type outlookMailbox struct {
	account *models.Account
	creds   *Credentials
	http    *http.Client
	log     zerolog.Logger
}

func newOutlookMailbox(cfg *config.Config, account *models.Account, creds *Credentials, logger zerolog.Logger) *outlookMailbox {
	return &outlookMailbox{
		account: account,
		creds:   creds,
		http:    &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second},
		log:     logger.With().Str("provider", "outlook").Logger(),
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name,omitempty"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func graphRecipients(addresses []string) []graphRecipient {
	out := make([]graphRecipient, len(addresses))
	for i, a := range addresses {
		out[i].EmailAddress.Address = a
	}
	return out
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	BodyPreview      string           `json:"bodyPreview"`
	IsRead           bool             `json:"isRead"`
	HasAttachments   bool             `json:"hasAttachments"`
	ReceivedDateTime time.Time        `json:"receivedDateTime"`
	From             *graphRecipient  `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	Body             *graphBody       `json:"body"`
}

type graphMessageList struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

// do issues an authenticated Graph request and decodes the JSON response
// into out when it is non-nil.
func (o *outlookMailbox) do(ctx context.Context, method, rawURL string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	bearer, err := o.creds.Bearer(ctx, o.account)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransientProvider, "graph request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("graph %s %s: status %d: %s", method, rawURL, resp.StatusCode, string(data))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return apperrors.Wrap(apperrors.KindTransientProvider, "graph request failed", err)
		}
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode graph response: %w", err)
		}
	}
	return nil
}

// graphListURL translates a FilterSpec to a Graph messages URL. $search
// and $filter are mutually exclusive on Graph, so free-text search wins
// over the structured predicates when both are present.
func graphListURL(filter FilterSpec) string {
	endpoint := graphBaseURL + "/messages"
	var filters []string
	switch filter.view() {
	case ViewAll:
	case ViewUnread:
		filters = append(filters, "isRead eq false")
	case ViewStarred:
		filters = append(filters, "flag/flagStatus eq 'flagged'")
	case ViewSent:
		endpoint = graphBaseURL + "/mailFolders/sentitems/messages"
	case ViewDrafts:
		endpoint = graphBaseURL + "/mailFolders/drafts/messages"
	case ViewImportant:
		filters = append(filters, "importance eq 'high'")
	}
	if !filter.After.IsZero() {
		filters = append(filters, fmt.Sprintf("receivedDateTime ge %s", filter.After.UTC().Format(time.RFC3339)))
	}
	if !filter.Before.IsZero() {
		filters = append(filters, fmt.Sprintf("receivedDateTime le %s", filter.Before.UTC().Format(time.RFC3339)))
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", filter.pageSize()))
	if filter.Query != "" {
		params.Set("$search", fmt.Sprintf("%q", filter.Query))
	} else if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
		params.Set("$orderby", "receivedDateTime desc")
	} else {
		params.Set("$orderby", "receivedDateTime desc")
	}
	return endpoint + "?" + params.Encode()
}

func (o *outlookMailbox) Fetch(ctx context.Context, filter FilterSpec) (*models.MessagePage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	// Graph paging hands back an absolute nextLink; it is the page cursor.
	listURL := graphListURL(filter)
	if filter.PageToken != "" {
		listURL = filter.PageToken
	}

	var list graphMessageList
	if err := o.do(ctx, http.MethodGet, listURL, nil, &list); err != nil {
		return nil, err
	}

	messages := make([]models.Message, len(list.Value))
	for i, m := range list.Value {
		messages[i] = normalizeGraphMessage(m)
	}
	return &models.MessagePage{
		Messages:      messages,
		NextPageToken: list.NextLink,
	}, nil
}

func (o *outlookMailbox) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	// Create-then-send keeps a provider id for the caller; the bare
	// sendMail action returns none.
	id, err := o.Draft(ctx, msg)
	if err != nil {
		return "", err
	}
	if err := o.do(ctx, http.MethodPost, graphBaseURL+"/messages/"+url.PathEscape(id)+"/send", nil, nil); err != nil {
		return "", err
	}
	return id, nil
}

func (o *outlookMailbox) Reply(ctx context.Context, messageID, body string, attachments []models.Attachment) (string, error) {
	payload := map[string]any{"comment": body}
	if len(attachments) > 0 {
		var atts []map[string]any
		for _, att := range attachments {
			atts = append(atts, map[string]any{
				"@odata.type":  "#microsoft.graph.fileAttachment",
				"name":         att.Filename,
				"contentType":  att.MimeType,
				"contentBytes": base64.StdEncoding.EncodeToString(att.Content),
			})
		}
		payload["message"] = map[string]any{"attachments": atts}
	}
	if err := o.do(ctx, http.MethodPost, graphBaseURL+"/messages/"+url.PathEscape(messageID)+"/reply", payload, nil); err != nil {
		return "", err
	}
	return messageID, nil
}

func (o *outlookMailbox) Trash(ctx context.Context, messageID string) error {
	payload := map[string]any{"destinationId": "deleteditems"}
	return o.do(ctx, http.MethodPost, graphBaseURL+"/messages/"+url.PathEscape(messageID)+"/move", payload, nil)
}

func (o *outlookMailbox) MarkRead(ctx context.Context, messageID string, read bool) error {
	payload := map[string]any{"isRead": read}
	return o.do(ctx, http.MethodPatch, graphBaseURL+"/messages/"+url.PathEscape(messageID), payload, nil)
}

func (o *outlookMailbox) Draft(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	payload := map[string]any{
		"subject":      msg.Subject,
		"body":         graphBody{ContentType: "Text", Content: msg.Body},
		"toRecipients": graphRecipients(msg.To),
	}
	var created graphMessage
	if err := o.do(ctx, http.MethodPost, graphBaseURL+"/messages", payload, &created); err != nil {
		return "", err
	}

	for _, att := range msg.Attachments {
		attPayload := map[string]any{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         att.Filename,
			"contentType":  att.MimeType,
			"contentBytes": base64.StdEncoding.EncodeToString(att.Content),
		}
		if err := o.do(ctx, http.MethodPost, graphBaseURL+"/messages/"+url.PathEscape(created.ID)+"/attachments", attPayload, nil); err != nil {
			return "", err
		}
	}
	return created.ID, nil
}

func (o *outlookMailbox) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var m graphMessage
	if err := o.do(ctx, http.MethodGet, graphBaseURL+"/messages/"+url.PathEscape(messageID), nil, &m); err != nil {
		return nil, err
	}
	msg := normalizeGraphMessage(m)
	return &msg, nil
}

func (o *outlookMailbox) ListAttachments(ctx context.Context, messageID string) ([]models.AttachmentInfo, error) {
	var list struct {
		Value []graphAttachment `json:"value"`
	}
	if err := o.do(ctx, http.MethodGet, graphBaseURL+"/messages/"+url.PathEscape(messageID)+"/attachments?$select=id,name,contentType,size", nil, &list); err != nil {
		return nil, err
	}

	infos := make([]models.AttachmentInfo, len(list.Value))
	for i, att := range list.Value {
		infos[i] = models.AttachmentInfo{
			ID:       att.ID,
			Filename: att.Name,
			MimeType: att.ContentType,
			Size:     att.Size,
		}
	}
	return infos, nil
}

func (o *outlookMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var att graphAttachment
	if err := o.do(ctx, http.MethodGet, graphBaseURL+"/messages/"+url.PathEscape(messageID)+"/attachments/"+url.PathEscape(attachmentID), nil, &att); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment content: %w", err)
	}
	return data, nil
}

// normalizeGraphMessage converts a Graph message into the shared shape.
func normalizeGraphMessage(m graphMessage) models.Message {
	out := models.Message{
		ID:             m.ID,
		ThreadID:       m.ConversationID,
		Subject:        m.Subject,
		Snippet:        m.BodyPreview,
		Date:           m.ReceivedDateTime,
		IsRead:         m.IsRead,
		HasAttachments: m.HasAttachments,
	}
	if m.From != nil {
		out.From = m.From.EmailAddress.Address
	}
	for _, r := range m.ToRecipients {
		out.To = append(out.To, r.EmailAddress.Address)
	}
	if m.Body != nil {
		if strings.EqualFold(m.Body.ContentType, "html") {
			out.Body = htmlToText(m.Body.Content)
		} else {
			out.Body = m.Body.Content
		}
	}
	return out
}
