package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
)

type mockScanLoans struct {
	dueSoon []models.LoanDetail
	overdue []models.LoanDetail
}

func (m *mockScanLoans) ListDueSoon(ctx context.Context, from, to time.Time) ([]models.LoanDetail, error) {
	return m.dueSoon, nil
}

func (m *mockScanLoans) ListOverdue(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error) {
	return m.overdue, nil
}

type mockScanBooks struct {
	lowStock []models.Book
	lastPred scope.Predicate
}

func (m *mockScanBooks) ListLowStock(ctx context.Context, pred scope.Predicate, threshold int) ([]models.Book, error) {
	m.lastPred = pred
	return m.lowStock, nil
}

func loanDetail(id, studentID, school, title string, due time.Time) models.LoanDetail {
	return models.LoanDetail{
		Loan: models.Loan{
			ID: id, StudentID: studentID, BookID: "book-1", SchoolID: &school,
			BorrowedAt: due.AddDate(0, 0, -7), DueAt: due, Status: models.LoanBorrowed,
		},
		StudentName: "Student",
		BookTitle:   title,
	}
}

func TestScanEnqueuesRemindersAndSummaries(t *testing.T) {
	school := "school-1"
	now := time.Now().UTC()
	loans := &mockScanLoans{
		dueSoon: []models.LoanDetail{loanDetail("loan-1", "stu-1", school, "Bumi", now.AddDate(0, 0, 1))},
		overdue: []models.LoanDetail{
			loanDetail("loan-2", "stu-1", school, "Laskar Pelangi", now.AddDate(0, 0, -2)),
			loanDetail("loan-3", "stu-2", school, "Pulang", now.AddDate(0, 0, -5)),
		},
	}
	books := &mockScanBooks{}
	users := &mockUserLookup{
		users: map[string]models.User{
			"stu-1": {ID: "stu-1", Email: "a@example.com", Role: models.RoleStudent, SchoolID: &school, Active: true},
			"stu-2": {ID: "stu-2", Email: "b@example.com", Role: models.RoleStudent, SchoolID: &school, Active: true},
		},
		librarian: map[string]models.User{
			school: {ID: "lib-1", Email: "lib@example.com", Role: models.RoleLibrarian, SchoolID: &school, Active: true},
		},
	}
	emitter := &recordingEmitter{}
	svc := NewScanService(loans, books, users, emitter, config.NotificationsConfig{DueSoonLeadDays: 2}, zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.DueSoon)
	assert.Equal(t, 2, result.Overdue)
	assert.Equal(t, 1, result.OverdueSummaries)
	assert.Zero(t, result.LowStock)

	var summary *Event
	for i := range emitter.events {
		if emitter.events[i].Data.EventType() == models.NotifyOverdueSummary {
			summary = &emitter.events[i]
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, "lib-1", summary.Recipient.ID)
	assert.Equal(t, OverdueSummaryData{Count: 2}, summary.Data)
}

func TestScanLowStockRoutesToBookOwner(t *testing.T) {
	school := "school-1"
	owner := "lib-1"
	books := &mockScanBooks{lowStock: []models.Book{
		{ID: "book-1", Title: "Bumi", Quantity: 1, SchoolID: &school, AddedBy: &owner},
		{ID: "book-2", Title: "Orphan", Quantity: 0},
	}}
	users := &mockUserLookup{
		users: map[string]models.User{
			owner: {ID: owner, Email: "lib@example.com", Role: models.RoleLibrarian, SchoolID: &school, Active: true},
		},
		librarian: map[string]models.User{},
	}
	emitter := &recordingEmitter{}
	svc := NewScanService(&mockScanLoans{}, books, users, emitter, config.NotificationsConfig{LowStockThreshold: 1}, zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	// The unowned, school-less book has nowhere to route and is skipped.
	assert.Equal(t, 1, result.LowStock)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, models.NotifyLowStock, emitter.events[0].Data.EventType())
	assert.Equal(t, owner, emitter.events[0].Recipient.ID)
	// The sweep itself looks across all schools.
	assert.False(t, books.lastPred.Denied())
}
