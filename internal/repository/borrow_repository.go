package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

// BorrowRepository persists borrow requests and loans. Every transition that
// touches both circulation state and inventory runs inside one transaction;
// state guards are part of the UPDATE itself so there is no gap between the
// check and the mutation.
type BorrowRepository struct {
	db *sqlx.DB
}

// NewBorrowRepository constructs a BorrowRepository.
func NewBorrowRepository(db *sqlx.DB) *BorrowRepository {
	return &BorrowRepository{db: db}
}

const (
	requestColumns = `r.id, r.student_id, r.book_id, r.duration_days, r.status, r.requested_at,
        r.approved_at, r.approved_by, r.rejected_at, r.rejected_by, r.rejection_reason, r.librarian_note`
	loanColumns = `l.id, l.request_id, l.student_id, l.book_id, l.school_id, l.borrowed_at, l.due_at,
        l.extended_due_at, l.returned_at, l.status, l.created_at, l.updated_at`
)

// CreateRequest inserts a pending borrow request.
func (r *BorrowRepository) CreateRequest(ctx context.Context, req *models.BorrowRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	req.Status = models.BorrowRequestPending
	const query = `INSERT INTO borrow_requests (id, student_id, book_id, duration_days, status, requested_at)
        VALUES (:id, :student_id, :book_id, :duration_days, :status, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create borrow request: %w", err)
	}
	return nil
}

// HasPendingRequest reports whether the student already has a pending request
// for the book.
func (r *BorrowRepository) HasPendingRequest(ctx context.Context, studentID, bookID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM borrow_requests WHERE student_id = $1 AND book_id = $2 AND status = $3)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, bookID, models.BorrowRequestPending); err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// FindRequestByID fetches a borrow request.
func (r *BorrowRepository) FindRequestByID(ctx context.Context, id string) (*models.BorrowRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM borrow_requests r WHERE r.id = $1 LIMIT 1", requestColumns)
	var req models.BorrowRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestDetail fetches one request with display fields, scoped.
func (r *BorrowRepository) GetRequestDetail(ctx context.Context, pred scope.Predicate, id string) (*models.BorrowRequestDetail, error) {
	if pred.Denied() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no school assigned")
	}
	conditions := []string{"r.id = $1"}
	args := []interface{}{id}
	conditions, args = pred.Append(conditions, args)

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title, u.school_id AS student_school
        FROM borrow_requests r
        JOIN users u ON u.id = r.student_id
        JOIN books b ON b.id = r.book_id
        WHERE %s LIMIT 1`, requestColumns, strings.Join(conditions, " AND "))
	var detail models.BorrowRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, args...); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListRequests returns scoped borrow requests with pagination.
func (r *BorrowRepository) ListRequests(ctx context.Context, pred scope.Predicate, filter models.BorrowRequestFilter) ([]models.BorrowRequestDetail, int, error) {
	if pred.Denied() {
		return []models.BorrowRequestDetail{}, 0, nil
	}

	base := `FROM borrow_requests r JOIN users u ON u.id = r.student_id JOIN books b ON b.id = r.book_id`
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("r.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	conditions, args = pred.Append(conditions, args)

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title, u.school_id AS student_school
        %s ORDER BY r.requested_at DESC LIMIT %d OFFSET %d`, requestColumns, base, size, offset)

	var requests []models.BorrowRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list borrow requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count borrow requests: %w", err)
	}
	return requests, total, nil
}

// Approve marks a pending request approved and creates its loan, consuming
// one copy, all in one transaction. The request guard and the inventory
// guard are conditional updates; either failing rolls back everything.
func (r *BorrowRepository) Approve(ctx context.Context, req *models.BorrowRequest, loan *models.Loan) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE borrow_requests SET status = $1, approved_at = $2, approved_by = $3, duration_days = $4, librarian_note = $5
         WHERE id = $6 AND status = $7`,
		models.BorrowRequestApproved, req.ApprovedAt, req.ApprovedBy, req.DurationDays, req.LibrarianNote, req.ID, models.BorrowRequestPending)
	if err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve request result: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrInvalidState, "request is not pending")
		return err
	}

	reserved, err := Reserve(ctx, tx, loan.BookID)
	if err != nil {
		return err
	}
	if !reserved {
		err = appErrors.ErrOutOfStock
		return err
	}

	if err = insertLoan(ctx, tx, loan); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve tx: %w", err)
	}
	return nil
}

// Reject marks a pending request rejected. No inventory effect.
func (r *BorrowRepository) Reject(ctx context.Context, req *models.BorrowRequest) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE borrow_requests SET status = $1, rejected_at = $2, rejected_by = $3, rejection_reason = $4
         WHERE id = $5 AND status = $6`,
		models.BorrowRequestRejected, req.RejectedAt, req.RejectedBy, req.RejectionReason, req.ID, models.BorrowRequestPending)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject request result: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidState, "request is not pending")
	}
	return nil
}

// CreateLoan issues a loan directly (no prior request), consuming one copy in
// the same transaction as the insert.
func (r *BorrowRepository) CreateLoan(ctx context.Context, loan *models.Loan) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create loan tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reserved, err := Reserve(ctx, tx, loan.BookID)
	if err != nil {
		return err
	}
	if !reserved {
		err = appErrors.ErrOutOfStock
		return err
	}

	if err = insertLoan(ctx, tx, loan); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create loan tx: %w", err)
	}
	return nil
}

func insertLoan(ctx context.Context, tx sqlx.ExtContext, loan *models.Loan) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = now
	loan.Status = models.LoanBorrowed
	const query = `INSERT INTO loans (id, request_id, student_id, book_id, school_id, borrowed_at, due_at, extended_due_at, returned_at, status, created_at, updated_at)
        VALUES (:id, :request_id, :student_id, :book_id, :school_id, :borrowed_at, :due_at, :extended_due_at, :returned_at, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, loan); err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// FindLoanByID fetches a loan.
func (r *BorrowRepository) FindLoanByID(ctx context.Context, id string) (*models.Loan, error) {
	query := fmt.Sprintf("SELECT %s FROM loans l WHERE l.id = $1 LIMIT 1", loanColumns)
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetLoanDetail fetches one loan with display fields, scoped.
func (r *BorrowRepository) GetLoanDetail(ctx context.Context, pred scope.Predicate, id string) (*models.LoanDetail, error) {
	if pred.Denied() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no school assigned")
	}
	conditions := []string{"l.id = $1"}
	args := []interface{}{id}
	conditions, args = pred.Append(conditions, args)

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title
        FROM loans l
        JOIN users u ON u.id = l.student_id
        JOIN books b ON b.id = l.book_id
        WHERE %s LIMIT 1`, loanColumns, strings.Join(conditions, " AND "))
	var detail models.LoanDetail
	if err := r.db.GetContext(ctx, &detail, query, args...); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListLoans returns scoped loans with pagination.
func (r *BorrowRepository) ListLoans(ctx context.Context, pred scope.Predicate, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	if pred.Denied() {
		return []models.LoanDetail{}, 0, nil
	}

	base := `FROM loans l JOIN users u ON u.id = l.student_id JOIN books b ON b.id = l.book_id`
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", len(args)+1))
		args = append(args, models.LoanBorrowed)
	}
	if filter.OverdueOnly {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d AND COALESCE(l.extended_due_at, l.due_at) < NOW()", len(args)+1))
		args = append(args, models.LoanBorrowed)
	}
	if filter.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("l.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	conditions, args = pred.Append(conditions, args)

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title
        %s ORDER BY l.borrowed_at DESC LIMIT %d OFFSET %d`, loanColumns, base, size, offset)

	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	return loans, total, nil
}

// ReturnLoan terminates an active loan and releases its copy in one
// transaction. A second return finds zero rows and reports InvalidState.
func (r *BorrowRepository) ReturnLoan(ctx context.Context, loanID, bookID string, returnedAt time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin return tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = $1, returned_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		models.LoanReturned, returnedAt, time.Now().UTC(), loanID, models.LoanBorrowed)
	if err != nil {
		return fmt.Errorf("return loan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("return loan result: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrInvalidState, "loan already returned")
		return err
	}

	if err = Release(ctx, tx, bookID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit return tx: %w", err)
	}
	return nil
}

// ExtendLoan sets the extended due date on an active loan.
func (r *BorrowRepository) ExtendLoan(ctx context.Context, loanID string, newDueAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE loans SET extended_due_at = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		newDueAt, time.Now().UTC(), loanID, models.LoanBorrowed)
	if err != nil {
		return fmt.Errorf("extend loan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend loan result: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidState, "loan already returned")
	}
	return nil
}

// DeleteLoan removes a loan row as an administrative correction. Deleting a
// loan that is still out releases its copy so inventory does not stay
// decremented for a voided record.
func (r *BorrowRepository) DeleteLoan(ctx context.Context, loanID, bookID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete loan tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1 AND status = $2`, loanID, models.LoanBorrowed)
	if err != nil {
		return fmt.Errorf("delete active loan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete loan result: %w", err)
	}
	if affected == 1 {
		if err = Release(ctx, tx, bookID); err != nil {
			return err
		}
	} else {
		if _, err = tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, loanID); err != nil {
			return fmt.Errorf("delete returned loan: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete loan tx: %w", err)
	}
	return nil
}

// ListDueSoon returns active loans whose effective due date falls inside
// [from, to), with display fields for notification rendering.
func (r *BorrowRepository) ListDueSoon(ctx context.Context, from, to time.Time) ([]models.LoanDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title
        FROM loans l JOIN users u ON u.id = l.student_id JOIN books b ON b.id = l.book_id
        WHERE l.status = $1 AND COALESCE(l.extended_due_at, l.due_at) >= $2 AND COALESCE(l.extended_due_at, l.due_at) < $3
        ORDER BY l.due_at ASC`, loanColumns)
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, models.LoanBorrowed, from, to); err != nil {
		return nil, fmt.Errorf("list due soon loans: %w", err)
	}
	return loans, nil
}

// ListOverdue returns active loans past their effective due date.
func (r *BorrowRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, b.title AS book_title
        FROM loans l JOIN users u ON u.id = l.student_id JOIN books b ON b.id = l.book_id
        WHERE l.status = $1 AND COALESCE(l.extended_due_at, l.due_at) < $2
        ORDER BY l.due_at ASC`, loanColumns)
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, models.LoanBorrowed, asOf); err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}
	return loans, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
