package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/noah-isme/sma-perpus-api/pkg/config"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

// Mailer delivers a single message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay. The send is bounded by
// the configured timeout so one slow recipient cannot stall a drain batch.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTP constructs an SMTPMailer from transport settings.
func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers the message, honouring both ctx and the configured timeout.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if !m.cfg.Valid() {
		return appErrors.Clone(appErrors.ErrConfiguration, "smtp transport not configured")
	}

	sendCtx := ctx
	if m.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
		defer cancel()
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := "From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
	}()

	select {
	case <-sendCtx.Done():
		return appErrors.Wrap(sendCtx.Err(), appErrors.ErrDelivery.Code, appErrors.ErrDelivery.Status, "smtp send timed out")
	case err := <-done:
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrDelivery.Code, appErrors.ErrDelivery.Status, "smtp send failed")
		}
		return nil
	}
}

// Redact masks the transport credentials inside err text before it is
// persisted to the delivery log.
func (m *SMTPMailer) Redact(text string) string {
	return RedactSecrets(text, m.cfg.Password, m.cfg.Username)
}

// RedactSecrets replaces every occurrence of the given secrets in text.
func RedactSecrets(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, "[redacted]")
	}
	return text
}
