package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
)

type scanLoanRepository interface {
	ListDueSoon(ctx context.Context, from, to time.Time) ([]models.LoanDetail, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error)
}

type scanBookRepository interface {
	ListLowStock(ctx context.Context, pred scope.Predicate, threshold int) ([]models.Book, error)
}

type scanUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindLibrarianForSchool(ctx context.Context, schoolID string) (*models.User, error)
}

// ScanResult summarises one reminder sweep.
type ScanResult struct {
	DueSoon          int `json:"due_soon"`
	Overdue          int `json:"overdue"`
	OverdueSummaries int `json:"overdue_summaries"`
	LowStock         int `json:"low_stock"`
}

// ScanService walks active loans and stock levels and enqueues the reminder
// events: DUE_SOON, OVERDUE, per-school OVERDUE_SUMMARY and LOW_STOCK. The
// sweep is idempotent at the delivery layer: duplicate events inside the
// suppression window land as skipped intents, not repeat emails.
type ScanService struct {
	loans    scanLoanRepository
	books    scanBookRepository
	users    scanUserRepository
	notifier eventEmitter
	cfg      config.NotificationsConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewScanService constructs the reminder sweep service.
func NewScanService(
	loans scanLoanRepository,
	books scanBookRepository,
	users scanUserRepository,
	notifier eventEmitter,
	cfg config.NotificationsConfig,
	logger *zap.Logger,
) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{
		loans:    loans,
		books:    books,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one full sweep.
func (s *ScanService) Run(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	now := s.now()

	result.DueSoon = s.scanDueSoon(ctx, now)
	overdue, summaries := s.scanOverdue(ctx, now)
	result.Overdue = overdue
	result.OverdueSummaries = summaries
	result.LowStock = s.scanLowStock(ctx)

	s.logger.Info("reminder sweep finished",
		zap.Int("due_soon", result.DueSoon),
		zap.Int("overdue", result.Overdue),
		zap.Int("overdue_summaries", result.OverdueSummaries),
		zap.Int("low_stock", result.LowStock))
	return result, nil
}

func (s *ScanService) scanDueSoon(ctx context.Context, now time.Time) int {
	lead := s.cfg.DueSoonLeadDays
	if lead <= 0 {
		lead = 2
	}
	loans, err := s.loans.ListDueSoon(ctx, now, now.AddDate(0, 0, lead))
	if err != nil {
		s.logger.Error("due-soon scan failed", zap.Error(err))
		return 0
	}

	enqueued := 0
	for i := range loans {
		loan := &loans[i]
		student, err := s.users.FindByID(ctx, loan.StudentID)
		if err != nil {
			s.logger.Warn("student lookup failed during sweep", zap.String("loan_id", loan.ID), zap.Error(err))
			continue
		}
		if s.emit(ctx, Event{
			Recipient:  student,
			EntityType: "loan",
			EntityID:   loan.ID,
			Data:       DueSoonData{BookTitle: loan.BookTitle, DueAt: loan.EffectiveDueAt()},
		}) {
			enqueued++
		}
	}
	return enqueued
}

func (s *ScanService) scanOverdue(ctx context.Context, now time.Time) (int, int) {
	loans, err := s.loans.ListOverdue(ctx, now)
	if err != nil {
		s.logger.Error("overdue scan failed", zap.Error(err))
		return 0, 0
	}

	enqueued := 0
	bySchool := map[string]int{}
	for i := range loans {
		loan := &loans[i]
		if loan.SchoolID != nil {
			bySchool[*loan.SchoolID]++
		}
		student, err := s.users.FindByID(ctx, loan.StudentID)
		if err != nil {
			s.logger.Warn("student lookup failed during sweep", zap.String("loan_id", loan.ID), zap.Error(err))
			continue
		}
		if s.emit(ctx, Event{
			Recipient:  student,
			EntityType: "loan",
			EntityID:   loan.ID,
			Data:       OverdueData{BookTitle: loan.BookTitle, DueAt: loan.EffectiveDueAt()},
		}) {
			enqueued++
		}
	}

	summaries := 0
	for schoolID, count := range bySchool {
		librarian, err := s.users.FindLibrarianForSchool(ctx, schoolID)
		if err != nil {
			s.logger.Warn("no librarian for overdue summary", zap.String("school_id", schoolID), zap.Error(err))
			continue
		}
		if s.emit(ctx, Event{
			Recipient:  librarian,
			EntityType: "school",
			EntityID:   schoolID,
			Data:       OverdueSummaryData{Count: count},
		}) {
			summaries++
		}
	}
	return enqueued, summaries
}

func (s *ScanService) scanLowStock(ctx context.Context) int {
	threshold := s.cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = 1
	}
	// Sweep system-wide; per-book routing below narrows each alert to the
	// book's own school.
	books, err := s.books.ListLowStock(ctx, scope.ForBooks(scope.Actor{Role: models.RoleAdmin}), threshold)
	if err != nil {
		s.logger.Error("low-stock scan failed", zap.Error(err))
		return 0
	}

	enqueued := 0
	for i := range books {
		book := &books[i]
		recipient := s.lowStockRecipient(ctx, book)
		if recipient == nil {
			continue
		}
		if s.emit(ctx, Event{
			Recipient:  recipient,
			EntityType: "book",
			EntityID:   book.ID,
			Data:       LowStockData{BookTitle: book.Title, Remaining: book.Quantity},
		}) {
			enqueued++
		}
	}
	return enqueued
}

func (s *ScanService) lowStockRecipient(ctx context.Context, book *models.Book) *models.User {
	if book.AddedBy != nil {
		if owner, err := s.users.FindByID(ctx, *book.AddedBy); err == nil && owner.Active {
			return owner
		}
	}
	if book.SchoolID != nil {
		if librarian, err := s.users.FindLibrarianForSchool(ctx, *book.SchoolID); err == nil {
			return librarian
		}
	}
	return nil
}

func (s *ScanService) emit(ctx context.Context, event Event) bool {
	if err := s.notifier.Enqueue(ctx, event); err != nil {
		s.logger.Warn("sweep enqueue failed",
			zap.String("type", string(event.Data.EventType())),
			zap.Error(err))
		return false
	}
	return true
}
