package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
)

func TestClassify(t *testing.T) {
	policy := NewNotificationPolicy(config.NotificationsConfig{})

	assert.Equal(t, PolicyRequired, policy.Classify(models.NotifyOverdue))
	assert.Equal(t, PolicyRequired, policy.Classify(models.NotifyLowStock))
	assert.Equal(t, PolicyOptional, policy.Classify(models.NotifyBorrowRequestApproved))
	assert.Equal(t, PolicyOptional, policy.Classify(models.NotifyBorrowRequestRejected))
	assert.Equal(t, PolicyOptional, policy.Classify(models.NotifyDueSoon))
	assert.Equal(t, PolicyOptional, policy.Classify(models.NotifyOverdueSummary))
	assert.Equal(t, PolicyOff, policy.Classify(models.NotifyBorrowRequestSubmitted))
	assert.Equal(t, PolicyOff, policy.Classify(models.NotifyNewBorrowRequest))
	assert.Equal(t, PolicyOff, policy.Classify(models.NotifyEmailFailure))
	// An unclassified type never emails.
	assert.Equal(t, PolicyOff, policy.Classify(models.NotificationType("SOMETHING_NEW")))
}

func TestShouldEmailHonoursOptionalFlag(t *testing.T) {
	on := NewNotificationPolicy(config.NotificationsConfig{OptionalEmailEnabled: true})
	off := NewNotificationPolicy(config.NotificationsConfig{OptionalEmailEnabled: false})

	assert.True(t, on.ShouldEmail(models.NotifyOverdue, false))
	assert.True(t, off.ShouldEmail(models.NotifyOverdue, false))

	assert.True(t, on.ShouldEmail(models.NotifyDueSoon, false))
	assert.False(t, off.ShouldEmail(models.NotifyDueSoon, false))

	assert.False(t, on.ShouldEmail(models.NotifyEmailFailure, false))
	assert.True(t, off.ShouldEmail(models.NotifyEmailFailure, true))
}

func TestSuppressionCutoffSlidingWindow(t *testing.T) {
	policy := NewNotificationPolicy(config.NotificationsConfig{SuppressionWindow: 24 * time.Hour})
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	cutoff, suppressed := policy.SuppressionCutoff(models.NotifyOverdue, now)
	require.True(t, suppressed)
	assert.Equal(t, now.Add(-24*time.Hour), cutoff)

	_, suppressed = policy.SuppressionCutoff(models.NotifyBorrowRequestApproved, now)
	assert.False(t, suppressed)

	// Zero config falls back to 24 hours rather than disabling suppression.
	fallback := NewNotificationPolicy(config.NotificationsConfig{})
	cutoff, suppressed = fallback.SuppressionCutoff(models.NotifyLowStock, now)
	require.True(t, suppressed)
	assert.Equal(t, now.Add(-24*time.Hour), cutoff)
}

func TestRenderOverdueMessage(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rendered := Render(Event{
		EntityID: "loan-1",
		Data:     OverdueData{BookTitle: "Laskar Pelangi", DueAt: due},
	})
	assert.Equal(t, "Book overdue", rendered.Title)
	assert.Contains(t, rendered.Message, "Laskar Pelangi")
	assert.Contains(t, rendered.Message, "01 Feb 2026")
	assert.Equal(t, "/loans/loan-1", rendered.DeepLink)
}

func TestRenderApprovedIncludesNote(t *testing.T) {
	rendered := Render(Event{
		EntityID: "loan-1",
		Data:     RequestApprovedData{BookTitle: "Bumi", DueAt: time.Now(), LibrarianNote: "handle with care"},
	})
	assert.Contains(t, rendered.Message, "handle with care")
}
