package models

import "time"

// BorrowRequestStatus enumerates the request lifecycle.
type BorrowRequestStatus string

const (
	BorrowRequestPending  BorrowRequestStatus = "PENDING"
	BorrowRequestApproved BorrowRequestStatus = "APPROVED"
	BorrowRequestRejected BorrowRequestStatus = "REJECTED"
)

// AllowedDurations are the loan durations a student may request, in days.
var AllowedDurations = map[int]struct{}{3: {}, 7: {}, 14: {}}

// BorrowRequest is a student's ask to borrow a book. PENDING is the only
// mutable state; approval and rejection are terminal. Rows are never deleted.
type BorrowRequest struct {
	ID              string              `db:"id" json:"id"`
	StudentID       string              `db:"student_id" json:"student_id"`
	BookID          string              `db:"book_id" json:"book_id"`
	DurationDays    int                 `db:"duration_days" json:"duration_days"`
	Status          BorrowRequestStatus `db:"status" json:"status"`
	RequestedAt     time.Time           `db:"requested_at" json:"requested_at"`
	ApprovedAt      *time.Time          `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy      *string             `db:"approved_by" json:"approved_by,omitempty"`
	RejectedAt      *time.Time          `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectedBy      *string             `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason *string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	LibrarianNote   *string             `db:"librarian_note" json:"librarian_note,omitempty"`
}

// BorrowRequestDetail joins display fields for listings.
type BorrowRequestDetail struct {
	BorrowRequest
	StudentName   string  `db:"student_name" json:"student_name"`
	BookTitle     string  `db:"book_title" json:"book_title"`
	StudentSchool *string `db:"student_school" json:"student_school,omitempty"`
}

// LoanStatus enumerates the loan lifecycle.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
)

// Loan is a physical copy out on loan. school_id is denormalised from the
// student at creation so listings can scope without a join.
type Loan struct {
	ID            string     `db:"id" json:"id"`
	RequestID     *string    `db:"request_id" json:"request_id,omitempty"`
	StudentID     string     `db:"student_id" json:"student_id"`
	BookID        string     `db:"book_id" json:"book_id"`
	SchoolID      *string    `db:"school_id" json:"school_id,omitempty"`
	BorrowedAt    time.Time  `db:"borrowed_at" json:"borrowed_at"`
	DueAt         time.Time  `db:"due_at" json:"due_at"`
	ExtendedDueAt *time.Time `db:"extended_due_at" json:"extended_due_at,omitempty"`
	ReturnedAt    *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	Status        LoanStatus `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveDueAt is the due date after any extension.
func (l Loan) EffectiveDueAt() time.Time {
	if l.ExtendedDueAt != nil {
		return *l.ExtendedDueAt
	}
	return l.DueAt
}

// Overdue reports whether an active loan is past its effective due date.
func (l Loan) Overdue(now time.Time) bool {
	return l.Status == LoanBorrowed && now.After(l.EffectiveDueAt())
}

// LoanDetail joins display fields for listings.
type LoanDetail struct {
	Loan
	StudentName string `db:"student_name" json:"student_name"`
	BookTitle   string `db:"book_title" json:"book_title"`
}

// BorrowRequestFilter captures listing criteria for borrow requests.
type BorrowRequestFilter struct {
	Status   *BorrowRequestStatus
	BookID   string
	Page     int
	PageSize int
}

// LoanFilter captures listing criteria for loans.
type LoanFilter struct {
	Status      *LoanStatus
	OverdueOnly bool
	ActiveOnly  bool
	BookID      string
	Page        int
	PageSize    int
}
