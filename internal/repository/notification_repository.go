package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

// NotificationRepository persists delivery intents and in-app notifications.
// Delivery rows are append/update only; they double as the email log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const deliveryColumns = `id, user_id, recipient, role, type, title, message, deep_link, entity_type, entity_id, channel, status, attempt_count, error, created_at, sent_at, last_attempt_at`

// CreateDelivery records a delivery intent.
func (r *NotificationRepository) CreateDelivery(ctx context.Context, d *models.NotificationDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_deliveries (id, user_id, recipient, role, type, title, message, deep_link, entity_type, entity_id, channel, status, attempt_count, error, created_at, sent_at, last_attempt_at)
        VALUES (:id, :user_id, :recipient, :role, :type, :title, :message, :deep_link, :entity_type, :entity_id, :channel, :status, :attempt_count, :error, :created_at, :sent_at, :last_attempt_at)`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}

// HasDuplicateEmail reports whether an email delivery for the same
// (recipient, type, entity) is already in flight or went out after the given
// instant. Pending intents count as duplicates too, otherwise two events
// enqueued before any drain would both send.
func (r *NotificationRepository) HasDuplicateEmail(ctx context.Context, userID string, typ models.NotificationType, entityType, entityID string, since time.Time) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM notification_deliveries
        WHERE user_id = $1 AND type = $2 AND entity_type = $3 AND entity_id = $4
        AND channel = $5
        AND (status IN ($6, $7) OR (status = $8 AND sent_at >= $9)))`
	if err := r.db.GetContext(ctx, &exists, query, userID, typ, entityType, entityID,
		models.ChannelEmail, models.DeliveryQueued, models.DeliverySending, models.DeliverySent, since); err != nil {
		return false, fmt.Errorf("check duplicate email: %w", err)
	}
	return exists, nil
}

// ClaimQueued atomically claims up to limit email intents for sending:
// queued rows, failed rows still under the attempt cap, and SENDING rows
// whose last attempt predates reclaimBefore (stranded by a crash between
// claim and finalisation). The conditional transition to SENDING means
// concurrent drains never pick the same row.
func (r *NotificationRepository) ClaimQueued(ctx context.Context, limit, maxAttempts int, reclaimBefore time.Time) ([]models.NotificationDelivery, error) {
	query := fmt.Sprintf(`UPDATE notification_deliveries SET status = $1, last_attempt_at = $2
        WHERE id IN (
            SELECT id FROM notification_deliveries
            WHERE channel = $3 AND (status = $4
                OR (status = $5 AND attempt_count < $6)
                OR (status = $1 AND last_attempt_at < $7))
            ORDER BY created_at ASC LIMIT $8
            FOR UPDATE SKIP LOCKED
        )
        RETURNING %s`, deliveryColumns)
	var claimed []models.NotificationDelivery
	err := r.db.SelectContext(ctx, &claimed, query,
		models.DeliverySending, time.Now().UTC(), models.ChannelEmail,
		models.DeliveryQueued, models.DeliveryFailed, maxAttempts, reclaimBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued deliveries: %w", err)
	}
	return claimed, nil
}

// MarkSent finalises a successful send.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE notification_deliveries SET status = $1, sent_at = $2, attempt_count = attempt_count + 1, error = NULL WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, models.DeliverySent, sentAt, id); err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt with its (already redacted) error text.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, errText string) error {
	const query = `UPDATE notification_deliveries SET status = $1, error = $2, attempt_count = attempt_count + 1, last_attempt_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, models.DeliveryFailed, errText, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// CountRecentFailures counts failed email attempts for a recipient after the
// given instant. Escalation triggers off this trailing window.
func (r *NotificationRepository) CountRecentFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM notification_deliveries
        WHERE user_id = $1 AND channel = $2 AND status = $3 AND last_attempt_at >= $4`
	if err := r.db.GetContext(ctx, &count, query, userID, models.ChannelEmail, models.DeliveryFailed, since); err != nil {
		return 0, fmt.Errorf("count recent failures: %w", err)
	}
	return count, nil
}

// CreateNotification inserts an in-app notification row.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, role, type, title, message, entity_type, entity_id, deep_link, is_read, created_at)
        VALUES (:id, :user_id, :role, :type, :title, :message, :entity_type, :entity_id, :deep_link, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns a recipient's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}
	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = FALSE")
	}
	where := strings.Join(conditions, " AND ")

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_id, role, type, title, message, entity_type, entity_id, deep_link, is_read, created_at
        FROM notifications WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, size, offset)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// CountUnread returns the recipient's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the recipient's notifications read. Scoping by
// user_id keeps one user from acknowledging another's rows.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read result: %w", err)
	}
	return affected == 1, nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
