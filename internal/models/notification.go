package models

import "time"

// NotificationType enumerates delivery-worthy domain events.
type NotificationType string

const (
	NotifyBorrowRequestSubmitted NotificationType = "BORROW_REQUEST_SUBMITTED"
	NotifyNewBorrowRequest       NotificationType = "NEW_BORROW_REQUEST"
	NotifyBorrowRequestApproved  NotificationType = "BORROW_REQUEST_APPROVED"
	NotifyBorrowRequestRejected  NotificationType = "BORROW_REQUEST_REJECTED"
	NotifyDueSoon                NotificationType = "DUE_SOON"
	NotifyOverdue                NotificationType = "OVERDUE"
	NotifyOverdueSummary         NotificationType = "OVERDUE_SUMMARY"
	NotifyLowStock               NotificationType = "LOW_STOCK"
	NotifyEmailFailure           NotificationType = "EMAIL_FAILURE"
)

// DeliveryChannel distinguishes delivery intents for the same notification.
type DeliveryChannel string

const (
	ChannelInApp DeliveryChannel = "IN_APP"
	ChannelEmail DeliveryChannel = "EMAIL"
)

// DeliveryStatus tracks a delivery intent through its lifecycle. SENDING is a
// transient claim state so concurrent drains never pick the same row.
type DeliveryStatus string

const (
	DeliveryQueued  DeliveryStatus = "QUEUED"
	DeliverySending DeliveryStatus = "SENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliverySkipped DeliveryStatus = "SKIPPED"
)

// Notification is the in-app row a recipient sees. For email-policy'd types it
// is materialised only after the email was successfully sent.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	Role       UserRole         `db:"role" json:"role"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	EntityType string           `db:"entity_type" json:"entity_type"`
	EntityID   string           `db:"entity_id" json:"entity_id"`
	DeepLink   string           `db:"deep_link" json:"deep_link"`
	IsRead     bool             `db:"is_read" json:"is_read"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// NotificationDelivery is one (intent, channel) row in the delivery log.
// Rows are append/update only and double as the email log. Content is
// rendered at enqueue time so the dispatcher never re-reads entity state.
type NotificationDelivery struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	Recipient     string           `db:"recipient" json:"recipient"`
	Role          UserRole         `db:"role" json:"role"`
	Type          NotificationType `db:"type" json:"type"`
	Title         string           `db:"title" json:"title"`
	Message       string           `db:"message" json:"message"`
	DeepLink      string           `db:"deep_link" json:"deep_link"`
	EntityType    string           `db:"entity_type" json:"entity_type"`
	EntityID      string           `db:"entity_id" json:"entity_id"`
	Channel       DeliveryChannel  `db:"channel" json:"channel"`
	Status        DeliveryStatus   `db:"status" json:"status"`
	AttemptCount  int              `db:"attempt_count" json:"attempt_count"`
	Error         *string          `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	SentAt        *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	LastAttemptAt *time.Time       `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
}

// NotificationFilter captures listing criteria for a recipient's inbox.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// DrainResult summarises one dispatcher batch.
type DrainResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
