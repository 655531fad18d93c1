package provider

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"mailmind/internal/config"
	apperrors "mailmind/internal/errors"
)

// xoauth2Auth implements the XOAUTH2 SASL mechanism for SMTP submission.
// net/smtp only ships PLAIN and CRAM-MD5, so the bearer exchange is done
// by hand.
type xoauth2Auth struct {
	username string
	token    string
}

func (a *xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.token)
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// The server pushes a base64 JSON error blob on failure; an empty
		// line tells it to finish the exchange so the error surfaces.
		return []byte(""), nil
	}
	return nil, nil
}

// submitSMTP sends a raw RFC 822 message over STARTTLS with XOAUTH2.
func submitSMTP(cfg *config.Config, from, bearer string, to []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	c, err := smtp.Dial(addr)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransientProvider, "failed to connect to SMTP server", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}
		if err := c.StartTLS(tlsCfg); err != nil {
			return apperrors.Wrap(apperrors.KindTransientProvider, "STARTTLS failed", err)
		}
	}

	if err := c.Auth(&xoauth2Auth{username: from, token: bearer}); err != nil {
		return apperrors.Wrap(apperrors.KindTransientProvider, "SMTP authentication failed", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}
	return c.Quit()
}
