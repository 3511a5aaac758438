package models

import "time"

// AuditAction constants represent circulation actions to be logged.
const (
	AuditActionRequestCreate  = "BORROW_REQUEST_CREATE"
	AuditActionRequestApprove = "BORROW_REQUEST_APPROVE"
	AuditActionRequestReject  = "BORROW_REQUEST_REJECT"
	AuditActionLoanCreate     = "LOAN_CREATE"
	AuditActionLoanReturn     = "LOAN_RETURN"
	AuditActionLoanExtend     = "LOAN_EXTEND"
	AuditActionLoanDelete     = "LOAN_DELETE"
	AuditActionEmailSent      = "EMAIL_SENT"
)

// AuditLog represents an audit trail record. The audit table is a write-only
// sink from circulation's point of view.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
