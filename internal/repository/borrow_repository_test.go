package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func approvedRequest(now time.Time) *models.BorrowRequest {
	approvedBy := "lib-1"
	return &models.BorrowRequest{
		ID:           "req-1",
		StudentID:    "stu-1",
		BookID:       "book-1",
		DurationDays: 7,
		ApprovedAt:   &now,
		ApprovedBy:   &approvedBy,
	}
}

func TestApproveCommitsRequestReserveAndLoan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	now := time.Now().UTC()
	req := approvedRequest(now)
	loan := &models.Loan{
		RequestID:  &req.ID,
		StudentID:  req.StudentID,
		BookID:     req.BookID,
		BorrowedAt: now,
		DueAt:      now.AddDate(0, 0, 7),
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE borrow_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET quantity = quantity - 1").
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO loans").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Approve(context.Background(), req, loan)
	require.NoError(t, err)
	assert.NotEmpty(t, loan.ID)
	assert.Equal(t, models.LoanBorrowed, loan.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveNonPendingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	now := time.Now().UTC()
	req := approvedRequest(now)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE borrow_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), req, &models.Loan{BookID: req.BookID})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveOutOfStockRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	now := time.Now().UTC()
	req := approvedRequest(now)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE borrow_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET quantity = quantity - 1").
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), req, &models.Loan{BookID: req.BookID})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOutOfStock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanReleasesCopy(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loans SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET quantity = quantity \\+ 1").
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReturnLoan(context.Background(), "loan-1", "book-1", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanTwiceFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loans SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ReturnLoan(context.Background(), "loan-1", "book-1", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteActiveLoanReleasesCopy(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM loans WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET quantity = quantity \\+ 1").
		WithArgs("book-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteLoan(context.Background(), "loan-1", "book-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReturnedLoanSkipsRelease(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM loans WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM loans WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteLoan(context.Background(), "loan-1", "book-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLoansDeniedPredicateReturnsEmpty(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	// Librarian with no school assignment collapses to the empty set
	// without touching the database.
	pred := scope.ForLoans(scope.Actor{ID: "lib-1", Role: models.RoleLibrarian})
	loans, total, err := repo.ListLoans(context.Background(), pred, models.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
	assert.Zero(t, total)
}

func TestListLoansAppliesScopeAndFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	school := "school-1"
	pred := scope.ForLoans(scope.Actor{ID: "lib-1", Role: models.RoleLibrarian, SchoolID: &school})

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "student_id", "book_id", "school_id", "borrowed_at", "due_at",
		"extended_due_at", "returned_at", "status", "created_at", "updated_at", "student_name", "book_title",
	}).AddRow("loan-1", nil, "stu-1", "book-1", school, now, now.AddDate(0, 0, 7), nil, nil,
		string(models.LoanBorrowed), now, now, "Student One", "Book One")

	mock.ExpectQuery("SELECT .+ FROM loans l JOIN users u .+ l\\.status = \\$1 .+ l\\.school_id = \\$2 .+ LIMIT 20 OFFSET 0").
		WithArgs(string(models.LoanBorrowed), school).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM loans l").
		WithArgs(string(models.LoanBorrowed), school).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	loans, total, err := repo.ListLoans(context.Background(), pred, models.LoanFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, loans, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Book One", loans[0].BookTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLoanDetailDeniedPredicate(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	pred := scope.ForLoans(scope.Actor{ID: "lib-1", Role: models.RoleLibrarian})
	_, err := repo.GetLoanDetail(context.Background(), pred, "loan-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestHasPendingRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("stu-1", "book-1", string(models.BorrowRequestPending)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	pending, err := repo.HasPendingRequest(context.Background(), "stu-1", "book-1")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectNonPendingFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	now := time.Now().UTC()
	rejectedBy := "lib-1"
	reason := "not available"
	req := &models.BorrowRequest{ID: "req-1", RejectedAt: &now, RejectedBy: &rejectedBy, RejectionReason: &reason}

	mock.ExpectExec("UPDATE borrow_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendLoanReturnedFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowRepository(db)

	mock.ExpectExec("UPDATE loans SET extended_due_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ExtendLoan(context.Background(), "loan-1", time.Now().UTC().AddDate(0, 0, 3))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}
