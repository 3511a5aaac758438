package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

// EventData is the typed payload for one notification event. Each event type
// carries exactly the fields its template needs; rendering switches on the
// concrete type rather than interpolating ad-hoc strings.
type EventData interface {
	EventType() models.NotificationType
}

// RequestSubmittedData confirms a student's own request. In-app only.
type RequestSubmittedData struct {
	BookTitle string
}

func (RequestSubmittedData) EventType() models.NotificationType {
	return models.NotifyBorrowRequestSubmitted
}

// NewRequestData tells a librarian a request awaits review. In-app only.
type NewRequestData struct {
	BookTitle   string
	StudentName string
}

func (NewRequestData) EventType() models.NotificationType { return models.NotifyNewBorrowRequest }

// RequestApprovedData notifies the student of an approval.
type RequestApprovedData struct {
	BookTitle     string
	DueAt         time.Time
	LibrarianNote string
}

func (RequestApprovedData) EventType() models.NotificationType {
	return models.NotifyBorrowRequestApproved
}

// RequestRejectedData notifies the student of a rejection.
type RequestRejectedData struct {
	BookTitle string
	Reason    string
}

func (RequestRejectedData) EventType() models.NotificationType {
	return models.NotifyBorrowRequestRejected
}

// DueSoonData warns a student before the due date.
type DueSoonData struct {
	BookTitle string
	DueAt     time.Time
}

func (DueSoonData) EventType() models.NotificationType { return models.NotifyDueSoon }

// OverdueData tells a student a loan is past due.
type OverdueData struct {
	BookTitle string
	DueAt     time.Time
}

func (OverdueData) EventType() models.NotificationType { return models.NotifyOverdue }

// OverdueSummaryData aggregates a school's overdue loans for a librarian.
type OverdueSummaryData struct {
	Count int
}

func (OverdueSummaryData) EventType() models.NotificationType { return models.NotifyOverdueSummary }

// LowStockData tells the owning librarian a title is nearly out.
type LowStockData struct {
	BookTitle string
	Remaining int
}

func (LowStockData) EventType() models.NotificationType { return models.NotifyLowStock }

// EmailFailureData escalates repeated delivery failures to an admin.
type EmailFailureData struct {
	FailedRecipient string
	FailureCount    int
}

func (EmailFailureData) EventType() models.NotificationType { return models.NotifyEmailFailure }

// Event is one delivery-worthy occurrence: a recipient, the entity it is
// about, and the typed payload. ForceEmail is set only by the escalation
// path to override the off policy of EMAIL_FAILURE.
type Event struct {
	Recipient  *models.User
	EntityType string
	EntityID   string
	Data       EventData
	ForceEmail bool
}

// Rendered is the display form of an event across both channels.
type Rendered struct {
	Title    string
	Message  string
	DeepLink string
}

const dueDateLayout = "02 Jan 2006"

// Render produces the title/message/deep-link for an event.
func Render(e Event) Rendered {
	switch d := e.Data.(type) {
	case RequestSubmittedData:
		return Rendered{
			Title:    "Borrow request submitted",
			Message:  fmt.Sprintf("Your request for %q was submitted and is awaiting review.", d.BookTitle),
			DeepLink: "/borrow-requests/" + e.EntityID,
		}
	case NewRequestData:
		return Rendered{
			Title:    "New borrow request",
			Message:  fmt.Sprintf("%s requested %q.", d.StudentName, d.BookTitle),
			DeepLink: "/borrow-requests/" + e.EntityID,
		}
	case RequestApprovedData:
		msg := fmt.Sprintf("Your request for %q was approved. Due back %s.", d.BookTitle, d.DueAt.Format(dueDateLayout))
		if d.LibrarianNote != "" {
			msg += " Note: " + d.LibrarianNote
		}
		return Rendered{
			Title:    "Borrow request approved",
			Message:  msg,
			DeepLink: "/loans/" + e.EntityID,
		}
	case RequestRejectedData:
		return Rendered{
			Title:    "Borrow request rejected",
			Message:  fmt.Sprintf("Your request for %q was rejected: %s", d.BookTitle, d.Reason),
			DeepLink: "/borrow-requests/" + e.EntityID,
		}
	case DueSoonData:
		return Rendered{
			Title:    "Book due soon",
			Message:  fmt.Sprintf("%q is due back on %s.", d.BookTitle, d.DueAt.Format(dueDateLayout)),
			DeepLink: "/loans/" + e.EntityID,
		}
	case OverdueData:
		return Rendered{
			Title:    "Book overdue",
			Message:  fmt.Sprintf("%q was due on %s. Please return it.", d.BookTitle, d.DueAt.Format(dueDateLayout)),
			DeepLink: "/loans/" + e.EntityID,
		}
	case OverdueSummaryData:
		return Rendered{
			Title:    "Overdue loans summary",
			Message:  fmt.Sprintf("Your school has %d overdue loan(s).", d.Count),
			DeepLink: "/loans?overdue_only=true",
		}
	case LowStockData:
		return Rendered{
			Title:    "Low stock",
			Message:  fmt.Sprintf("Stock for %q is down to %d on the shelf.", d.BookTitle, d.Remaining),
			DeepLink: "/books/" + e.EntityID,
		}
	case EmailFailureData:
		return Rendered{
			Title:    "Email delivery failing",
			Message:  fmt.Sprintf("Email delivery to %s has failed %d times in the last window.", d.FailedRecipient, d.FailureCount),
			DeepLink: "/admin/email-log",
		}
	}
	return Rendered{Title: string(e.Data.EventType())}
}
