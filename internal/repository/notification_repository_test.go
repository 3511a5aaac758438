package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

func TestCreateDelivery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notification_deliveries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &models.NotificationDelivery{
		UserID:    "stu-1",
		Recipient: "stu@example.com",
		Role:      models.RoleStudent,
		Type:      models.NotifyOverdue,
		Title:     "Book overdue",
		Channel:   models.ChannelEmail,
		Status:    models.DeliveryQueued,
	}
	err := repo.CreateDelivery(context.Background(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	since := time.Now().UTC().Add(-24 * time.Hour)
	// Queued and sending intents count alongside recently sent rows.
	mock.ExpectQuery(`SELECT EXISTS .+\(status IN \(\$6, \$7\) OR \(status = \$8 AND sent_at >= \$9\)`).
		WithArgs("stu-1", string(models.NotifyOverdue), "loan", "loan-1",
			string(models.ChannelEmail), string(models.DeliveryQueued),
			string(models.DeliverySending), string(models.DeliverySent), since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	dup, err := repo.HasDuplicateEmail(context.Background(), "stu-1", models.NotifyOverdue, "loan", "loan-1", since)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueuedTransitionsToSending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "recipient", "role", "type", "title", "message", "deep_link",
		"entity_type", "entity_id", "channel", "status", "attempt_count", "error",
		"created_at", "sent_at", "last_attempt_at",
	}).AddRow("d-1", "stu-1", "stu@example.com", string(models.RoleStudent), string(models.NotifyOverdue),
		"Book overdue", "msg", "/loans/loan-1", "loan", "loan-1",
		string(models.ChannelEmail), string(models.DeliverySending), 0, nil, now, nil, now)

	mock.ExpectQuery(`UPDATE notification_deliveries SET status .+ last_attempt_at < \$7.+ FOR UPDATE SKIP LOCKED`).
		WillReturnRows(rows)

	claimed, err := repo.ClaimQueued(context.Background(), 10, 3, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.DeliverySending, claimed[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentClearsError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sentAt := time.Now().UTC()
	mock.ExpectExec("UPDATE notification_deliveries SET status .+ error = NULL").
		WithArgs(string(models.DeliverySent), sentAt, "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "d-1", sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET is_read = TRUE WHERE id").
		WithArgs("n-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRead(context.Background(), "stu-1", "n-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecentFailures(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	since := time.Now().UTC().Add(-15 * time.Minute)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM notification_deliveries").
		WithArgs("stu-1", string(models.ChannelEmail), string(models.DeliveryFailed), since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountRecentFailures(context.Background(), "stu-1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
