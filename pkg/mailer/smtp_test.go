package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/pkg/config"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

func TestSendUnconfiguredTransport(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{})

	err := m.Send(context.Background(), "to@example.com", "subject", "body")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConfiguration))
}

func TestRedactSecrets(t *testing.T) {
	text := "dial failed: user mailer@example.com pass hunter2 rejected"

	redacted := RedactSecrets(text, "hunter2", "mailer@example.com")
	assert.NotContains(t, redacted, "hunter2")
	assert.NotContains(t, redacted, "mailer@example.com")
	assert.Contains(t, redacted, "[redacted]")

	// Empty secrets never blank out the whole message.
	assert.Equal(t, "unchanged", RedactSecrets("unchanged", ""))
}

func TestRedactUsesConfiguredCredentials(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{
		Host: "smtp.example.com", Port: 587, From: "noreply@example.com",
		Username: "mailer", Password: "hunter2",
	})

	redacted := m.Redact("535 authentication failed for mailer:hunter2")
	assert.NotContains(t, redacted, "hunter2")
	assert.NotContains(t, redacted, "mailer")
}
