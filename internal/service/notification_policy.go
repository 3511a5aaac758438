package service

import (
	"time"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
)

// PolicyClass decides whether an event type attempts email delivery.
type PolicyClass int

const (
	// PolicyRequired always attempts email.
	PolicyRequired PolicyClass = iota
	// PolicyOptional attempts email only when the global flag is enabled.
	PolicyOptional
	// PolicyOff never emails; the event is in-app only (or nothing).
	PolicyOff
)

var policyTable = map[models.NotificationType]PolicyClass{
	models.NotifyOverdue:  PolicyRequired,
	models.NotifyLowStock: PolicyRequired,

	models.NotifyBorrowRequestApproved: PolicyOptional,
	models.NotifyBorrowRequestRejected: PolicyOptional,
	models.NotifyDueSoon:               PolicyOptional,
	models.NotifyOverdueSummary:        PolicyOptional,

	models.NotifyBorrowRequestSubmitted: PolicyOff,
	models.NotifyNewBorrowRequest:       PolicyOff,
	models.NotifyEmailFailure:           PolicyOff,
}

var suppressedTypes = map[models.NotificationType]struct{}{
	models.NotifyOverdue:  {},
	models.NotifyLowStock: {},
	models.NotifyDueSoon:  {},
}

// NotificationPolicy classifies events and applies the duplicate-suppression
// window. Pure: the service queries the delivery log, the policy only decides.
type NotificationPolicy struct {
	cfg config.NotificationsConfig
}

// NewNotificationPolicy constructs the policy engine from config.
func NewNotificationPolicy(cfg config.NotificationsConfig) *NotificationPolicy {
	return &NotificationPolicy{cfg: cfg}
}

// Classify returns the email policy for an event type. Unknown types fail to
// PolicyOff so a new event can never email before it is classified.
func (p *NotificationPolicy) Classify(typ models.NotificationType) PolicyClass {
	if class, ok := policyTable[typ]; ok {
		return class
	}
	return PolicyOff
}

// ShouldEmail resolves the class against the global optional-email flag.
// forced overrides PolicyOff for the failure-escalation path only.
func (p *NotificationPolicy) ShouldEmail(typ models.NotificationType, forced bool) bool {
	if forced {
		return true
	}
	switch p.Classify(typ) {
	case PolicyRequired:
		return true
	case PolicyOptional:
		return p.cfg.OptionalEmailEnabled
	}
	return false
}

// SuppressionCutoff returns the start of the sliding suppression window, or
// false when the type is not duplicate-suppressed. The window trails now; it
// is not calendar-day based.
func (p *NotificationPolicy) SuppressionCutoff(typ models.NotificationType, now time.Time) (time.Time, bool) {
	if _, ok := suppressedTypes[typ]; !ok {
		return time.Time{}, false
	}
	window := p.cfg.SuppressionWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return now.Add(-window), true
}
