package provider

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"

	"mailmind/internal/models"
)

// htmlToText strips HTML down to readable plain text. Used whenever a
// message carries no plain part.
func htmlToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		return html
	}
	return text
}

// splitAddresses splits a comma-separated header value into trimmed
// addresses.
func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	var out []string
	for _, addr := range strings.Split(header, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// snippetOf returns the first line of a body, bounded, for providers
// that hand back no native preview.
func snippetOf(body string) string {
	s := strings.TrimSpace(body)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// rfc822Headers carries the threading headers a reply needs.
type rfc822Headers struct {
	InReplyTo  string
	References string
}

// buildRFC822 assembles a complete RFC 822 message. Attachments make the
// message multipart/mixed with base64 bodies; otherwise it is plain text.
func buildRFC822(from string, to []string, subject, body string, attachments []models.Attachment, headers rfc822Headers) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if headers.InReplyTo != "" {
		fmt.Fprintf(&buf, "In-Reply-To: %s\r\n", headers.InReplyTo)
	}
	if headers.References != "" {
		fmt.Fprintf(&buf, "References: %s\r\n", headers.References)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
		buf.WriteString(body)
		return buf.Bytes()
	}

	boundary := fmt.Sprintf("mailmind-%d", time.Now().UnixNano())
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")

	for _, att := range attachments {
		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", mimeType)
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n", att.Filename)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		buf.WriteString(base64.StdEncoding.EncodeToString(att.Content))
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}
