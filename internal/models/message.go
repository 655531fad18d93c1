package models

import "time"

// Message is a normalized mail entry, identical in shape across all
// provider adapters. The body is plain text: when a message carries both
// a plain and an HTML part the plain part wins, otherwise the HTML is
// stripped. Messages are immutable once produced; a write action only
// implies a future re-fetch.
type Message struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Subject        string    `json:"subject"`
	From           string    `json:"from"`
	To             []string  `json:"to"`
	Date           time.Time `json:"date"`
	Snippet        string    `json:"snippet"`
	Body           string    `json:"body"`
	IsRead         bool      `json:"is_read"`
	HasAttachments bool      `json:"has_attachments"`
}

// MessagePage is one page of fetched messages with the provider's
// opaque continuation cursor.
type MessagePage struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// AttachmentInfo describes an attachment without its bytes.
type AttachmentInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Attachment carries attachment bytes for outgoing mail. The bytes pass
// through opaquely; no on-disk format is owned here.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

// OutgoingMessage is the provider-independent shape of mail to send or
// store as a draft.
type OutgoingMessage struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
