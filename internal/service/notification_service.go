package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
	"github.com/noah-isme/sma-perpus-api/pkg/mailer"
)

type notificationRepository interface {
	CreateDelivery(ctx context.Context, d *models.NotificationDelivery) error
	HasDuplicateEmail(ctx context.Context, userID string, typ models.NotificationType, entityType, entityID string, since time.Time) (bool, error)
	ClaimQueued(ctx context.Context, limit, maxAttempts int, reclaimBefore time.Time) ([]models.NotificationDelivery, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, errText string) error
	CountRecentFailures(ctx context.Context, userID string, since time.Time) (int, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) error
}

type adminLookup interface {
	FindFirstActiveAdmin(ctx context.Context) (*models.User, error)
}

type auditSink interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type unreadCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

type deliveryMetrics interface {
	RecordDelivery(outcome string)
	ObserveDrain(batch int, duration time.Duration)
}

// NotificationService owns the delivery queue and the in-app inbox. Every
// intent is durably recorded before any send is attempted; in-app rows for
// email-policy'd types appear only after their email went out.
type NotificationService struct {
	repo    notificationRepository
	users   adminLookup
	audit   auditSink
	cache   unreadCache
	policy  *NotificationPolicy
	mail    mailer.Mailer
	metrics deliveryMetrics
	cfg     config.NotificationsConfig
	redact  func(string) string
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService wires the delivery pipeline.
func NewNotificationService(
	repo notificationRepository,
	users adminLookup,
	audit auditSink,
	cache unreadCache,
	policy *NotificationPolicy,
	mail mailer.Mailer,
	metrics deliveryMetrics,
	cfg config.NotificationsConfig,
	redact func(string) string,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if redact == nil {
		redact = func(s string) string { return s }
	}
	return &NotificationService{
		repo:    repo,
		users:   users,
		audit:   audit,
		cache:   cache,
		policy:  policy,
		mail:    mail,
		metrics: metrics,
		cfg:     cfg,
		redact:  redact,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

const maxErrorLength = 500

// reclaimSendingAfter bounds how long a claimed row may sit in SENDING before
// a later drain picks it up again.
const reclaimSendingAfter = 10 * time.Minute

// Enqueue evaluates policy for one event and durably records the outcome:
// a queued email intent, a skipped intent, or an immediate in-app row for
// off-policy types. It never sends mail itself.
func (s *NotificationService) Enqueue(ctx context.Context, event Event) error {
	if event.Recipient == nil || event.Data == nil {
		return appErrors.Clone(appErrors.ErrValidation, "event needs a recipient and payload")
	}
	typ := event.Data.EventType()
	rendered := Render(event)
	now := s.now()

	if !s.policy.ShouldEmail(typ, event.ForceEmail) {
		if s.policy.Classify(typ) != PolicyOff {
			// Optional type with the global email flag off: log the decision,
			// no email and no in-app row.
			return s.recordDelivery(ctx, event, rendered, models.ChannelEmail, models.DeliverySkipped, now)
		}
		if err := s.recordDelivery(ctx, event, rendered, models.ChannelInApp, models.DeliverySent, now); err != nil {
			return err
		}
		return s.materialize(ctx, event, rendered, now)
	}

	if cutoff, suppressed := s.policy.SuppressionCutoff(typ, now); suppressed {
		dup, err := s.repo.HasDuplicateEmail(ctx, event.Recipient.ID, typ, event.EntityType, event.EntityID, cutoff)
		if err != nil {
			return err
		}
		if dup {
			return s.recordDelivery(ctx, event, rendered, models.ChannelEmail, models.DeliverySkipped, now)
		}
	}

	// Forced email on an off-policy type (failure escalation): the in-app row
	// goes up front so the admin sees it even while the transport is down.
	if s.policy.Classify(typ) == PolicyOff {
		if err := s.recordDelivery(ctx, event, rendered, models.ChannelInApp, models.DeliverySent, now); err != nil {
			return err
		}
		if err := s.materialize(ctx, event, rendered, now); err != nil {
			return err
		}
	}

	return s.recordDelivery(ctx, event, rendered, models.ChannelEmail, models.DeliveryQueued, now)
}

func (s *NotificationService) recordDelivery(ctx context.Context, event Event, rendered Rendered, channel models.DeliveryChannel, status models.DeliveryStatus, now time.Time) error {
	d := &models.NotificationDelivery{
		UserID:     event.Recipient.ID,
		Recipient:  event.Recipient.Email,
		Role:       event.Recipient.Role,
		Type:       event.Data.EventType(),
		Title:      rendered.Title,
		Message:    rendered.Message,
		DeepLink:   rendered.DeepLink,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Channel:    channel,
		Status:     status,
		CreatedAt:  now,
	}
	if status == models.DeliverySent {
		d.SentAt = &now
	}
	return s.repo.CreateDelivery(ctx, d)
}

func (s *NotificationService) materialize(ctx context.Context, event Event, rendered Rendered, now time.Time) error {
	n := &models.Notification{
		UserID:     event.Recipient.ID,
		Role:       event.Recipient.Role,
		Type:       event.Data.EventType(),
		Title:      rendered.Title,
		Message:    rendered.Message,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		DeepLink:   rendered.DeepLink,
		CreatedAt:  now,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return err
	}
	s.cache.Delete(ctx, unreadCountKey(event.Recipient.ID))
	return nil
}

// Drain claims up to limit queued email intents and works through them
// sequentially. Each row is claimed with a conditional transition to SENDING
// before any send, so concurrent drains cannot double-send.
func (s *NotificationService) Drain(ctx context.Context, limit int) (models.DrainResult, error) {
	if limit <= 0 || limit > s.cfg.DrainBatchSize {
		limit = s.cfg.DrainBatchSize
	}
	start := s.now()

	claimed, err := s.repo.ClaimQueued(ctx, limit, s.maxAttempts(), start.Add(-reclaimSendingAfter))
	if err != nil {
		return models.DrainResult{}, err
	}

	result := models.DrainResult{Processed: len(claimed)}
	for i := range claimed {
		if s.deliver(ctx, &claimed[i]) {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveDrain(len(claimed), s.now().Sub(start))
	}
	return result, nil
}

func (s *NotificationService) deliver(ctx context.Context, d *models.NotificationDelivery) bool {
	body := d.Message
	if d.DeepLink != "" {
		body += "\n\n" + d.DeepLink
	}
	sendErr := s.mail.Send(ctx, d.Recipient, d.Title, body)
	now := s.now()

	if sendErr == nil {
		if err := s.repo.MarkSent(ctx, d.ID, now); err != nil {
			s.logger.Error("mark sent failed", zap.String("delivery_id", d.ID), zap.Error(err))
			return false
		}
		// Off-policy types (forced sends) already materialized at enqueue.
		if s.policy.Classify(d.Type) != PolicyOff {
			if err := s.materializeFromDelivery(ctx, d, now); err != nil {
				s.logger.Error("materialize notification failed", zap.String("delivery_id", d.ID), zap.Error(err))
			}
		}
		s.appendAudit(ctx, d)
		if s.metrics != nil {
			s.metrics.RecordDelivery("sent")
		}
		return true
	}

	errText := truncate(s.redact(sendErr.Error()), maxErrorLength)
	if err := s.repo.MarkFailed(ctx, d.ID, errText); err != nil {
		s.logger.Error("mark failed failed", zap.String("delivery_id", d.ID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordDelivery("failed")
	}
	s.logger.Warn("email delivery failed",
		zap.String("delivery_id", d.ID),
		zap.String("type", string(d.Type)),
		zap.String("error", errText))

	s.escalate(ctx, d)
	return false
}

// materializeFromDelivery creates the in-app row and its IN_APP delivery
// record once the email went out. The ordering is a firm contract.
func (s *NotificationService) materializeFromDelivery(ctx context.Context, d *models.NotificationDelivery, now time.Time) error {
	n := &models.Notification{
		UserID:     d.UserID,
		Role:       d.Role,
		Type:       d.Type,
		Title:      d.Title,
		Message:    d.Message,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		DeepLink:   d.DeepLink,
		CreatedAt:  now,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return err
	}
	inApp := &models.NotificationDelivery{
		UserID:     d.UserID,
		Recipient:  d.Recipient,
		Role:       d.Role,
		Type:       d.Type,
		Title:      d.Title,
		Message:    d.Message,
		DeepLink:   d.DeepLink,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Channel:    models.ChannelInApp,
		Status:     models.DeliverySent,
		CreatedAt:  now,
		SentAt:     &now,
	}
	if err := s.repo.CreateDelivery(ctx, inApp); err != nil {
		return err
	}
	s.cache.Delete(ctx, unreadCountKey(d.UserID))
	return nil
}

func (s *NotificationService) appendAudit(ctx context.Context, d *models.NotificationDelivery) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":      d.Type,
		"recipient": d.Recipient,
		"entity":    d.EntityType + "/" + d.EntityID,
	})
	entry := &models.AuditLog{
		Action:     models.AuditActionEmailSent,
		Resource:   "notification_delivery",
		ResourceID: &d.ID,
		NewValues:  payload,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("delivery_id", d.ID), zap.Error(err))
	}
}

// escalate notifies the first active admin after repeated failures for one
// recipient. EMAIL_FAILURE deliveries never escalate their own failures.
func (s *NotificationService) escalate(ctx context.Context, d *models.NotificationDelivery) {
	if d.Type == models.NotifyEmailFailure {
		return
	}
	threshold := s.cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	window := s.cfg.FailureWindow
	if window <= 0 {
		window = 15 * time.Minute
	}
	count, err := s.repo.CountRecentFailures(ctx, d.UserID, s.now().Add(-window))
	if err != nil {
		s.logger.Warn("failure count lookup failed", zap.Error(err))
		return
	}
	if count < threshold {
		return
	}

	admin, err := s.users.FindFirstActiveAdmin(ctx)
	if err != nil {
		s.logger.Warn("no active admin for escalation", zap.Error(err))
		return
	}
	event := Event{
		Recipient:  admin,
		EntityType: "notification_delivery",
		EntityID:   d.ID,
		Data:       EmailFailureData{FailedRecipient: d.Recipient, FailureCount: count},
		ForceEmail: true,
	}
	if err := s.Enqueue(ctx, event); err != nil {
		s.logger.Error("escalation enqueue failed", zap.Error(err))
	}
}

func (s *NotificationService) maxAttempts() int {
	if s.cfg.FailureThreshold > 0 {
		return s.cfg.FailureThreshold
	}
	return 3
}

// List returns the actor's own notifications.
func (s *NotificationService) List(ctx context.Context, actor scope.Actor, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, actor.ID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the actor's unread count, cached briefly in Redis.
func (s *NotificationService) UnreadCount(ctx context.Context, actor scope.Actor) (int, error) {
	key := unreadCountKey(actor.ID)
	var cached int
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}
	count, err := s.repo.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if err := s.cache.Set(ctx, key, count, s.cfg.UnreadCountCacheTTL); err != nil {
		s.logger.Warn("unread count cache set failed", zap.Error(err))
	}
	return count, nil
}

// MarkRead marks one of the actor's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, actor scope.Actor, id string) error {
	ok, err := s.repo.MarkRead(ctx, actor.ID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.cache.Delete(ctx, unreadCountKey(actor.ID))
	return nil
}

// MarkAllRead marks all the actor's notifications read.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor scope.Actor) error {
	if err := s.repo.MarkAllRead(ctx, actor.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.cache.Delete(ctx, unreadCountKey(actor.ID))
	return nil
}

func unreadCountKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
