package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/scope"
	"github.com/noah-isme/sma-perpus-api/pkg/config"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
)

type borrowRepository interface {
	CreateRequest(ctx context.Context, req *models.BorrowRequest) error
	HasPendingRequest(ctx context.Context, studentID, bookID string) (bool, error)
	FindRequestByID(ctx context.Context, id string) (*models.BorrowRequest, error)
	GetRequestDetail(ctx context.Context, pred scope.Predicate, id string) (*models.BorrowRequestDetail, error)
	ListRequests(ctx context.Context, pred scope.Predicate, filter models.BorrowRequestFilter) ([]models.BorrowRequestDetail, int, error)
	Approve(ctx context.Context, req *models.BorrowRequest, loan *models.Loan) error
	Reject(ctx context.Context, req *models.BorrowRequest) error
	CreateLoan(ctx context.Context, loan *models.Loan) error
	FindLoanByID(ctx context.Context, id string) (*models.Loan, error)
	GetLoanDetail(ctx context.Context, pred scope.Predicate, id string) (*models.LoanDetail, error)
	ListLoans(ctx context.Context, pred scope.Predicate, filter models.LoanFilter) ([]models.LoanDetail, int, error)
	ReturnLoan(ctx context.Context, loanID, bookID string, returnedAt time.Time) error
	ExtendLoan(ctx context.Context, loanID string, newDueAt time.Time) error
	DeleteLoan(ctx context.Context, loanID, bookID string) error
}

type bookLookup interface {
	FindByID(ctx context.Context, id string) (*models.Book, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindLibrarianForSchool(ctx context.Context, schoolID string) (*models.User, error)
}

// eventEmitter decouples circulation from the delivery pipeline. Emission
// failures are logged, never surfaced to the triggering action.
type eventEmitter interface {
	Enqueue(ctx context.Context, event Event) error
}

// CreateRequestInput is the payload for a student borrow request.
type CreateRequestInput struct {
	BookID       string `json:"book_id" validate:"required"`
	DurationDays int    `json:"duration_days" validate:"required"`
}

// ApproveInput is the payload for approving a request.
type ApproveInput struct {
	DurationDays  int    `json:"duration_days"`
	LibrarianNote string `json:"librarian_note"`
}

// RejectInput is the payload for rejecting a request.
type RejectInput struct {
	RejectionReason string `json:"rejection_reason" validate:"required"`
}

// CreateLoanInput is the payload for direct librarian issuance.
type CreateLoanInput struct {
	StudentID  string     `json:"student_id" validate:"required"`
	BookID     string     `json:"book_id" validate:"required"`
	BorrowedAt *time.Time `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at" validate:"required"`
}

// ReturnLoanInput is the payload for returning a loan.
type ReturnLoanInput struct {
	ReturnedAt *time.Time `json:"returned_at"`
}

// ExtendLoanInput is the payload for extending a due date.
type ExtendLoanInput struct {
	NewDueDate time.Time `json:"new_due_date" validate:"required"`
}

// CirculationService owns the borrow-request and loan state machines. Every
// operation resolves the actor's tenant scope before any mutation, and every
// mutation plus its inventory effect commits in one repository transaction.
type CirculationService struct {
	repo      borrowRepository
	books     bookLookup
	users     userLookup
	audit     auditSink
	notifier  eventEmitter
	cfg       config.NotificationsConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCirculationService constructs the circulation service.
func NewCirculationService(
	repo borrowRepository,
	books bookLookup,
	users userLookup,
	audit auditSink,
	notifier eventEmitter,
	cfg config.NotificationsConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *CirculationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CirculationService{
		repo:      repo,
		books:     books,
		users:     users,
		audit:     audit,
		notifier:  notifier,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest files a pending borrow request for the acting student.
func (s *CirculationService) CreateRequest(ctx context.Context, actor scope.Actor, input CreateRequestInput) (*models.BorrowRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if _, ok := models.AllowedDurations[input.DurationDays]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be 3, 7 or 14 days")
	}

	book, err := s.books.FindByID(ctx, input.BookID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	// Cross-school titles are invisible to the student, not forbidden.
	if book.SchoolID != nil && (actor.SchoolID == nil || *actor.SchoolID != *book.SchoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
	}
	if book.Quantity < 1 {
		return nil, appErrors.ErrOutOfStock
	}

	pending, err := s.repo.HasPendingRequest(ctx, actor.ID, book.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "you already have a pending request for this book")
	}

	req := &models.BorrowRequest{
		StudentID:    actor.ID,
		BookID:       book.ID,
		DurationDays: input.DurationDays,
		RequestedAt:  s.now(),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.appendAudit(ctx, actor, models.AuditActionRequestCreate, "borrow_request", req.ID, map[string]interface{}{
		"book_id": book.ID, "duration_days": input.DurationDays,
	})
	s.emitRequestCreated(ctx, actor, req, book)
	return req, nil
}

func (s *CirculationService) emitRequestCreated(ctx context.Context, actor scope.Actor, req *models.BorrowRequest, book *models.Book) {
	student, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		s.logger.Warn("student lookup for notification failed", zap.Error(err))
		return
	}
	s.emit(ctx, Event{
		Recipient:  student,
		EntityType: "borrow_request",
		EntityID:   req.ID,
		Data:       RequestSubmittedData{BookTitle: book.Title},
	})
	if librarian := s.bookOwner(ctx, book); librarian != nil {
		s.emit(ctx, Event{
			Recipient:  librarian,
			EntityType: "borrow_request",
			EntityID:   req.ID,
			Data:       NewRequestData{BookTitle: book.Title, StudentName: student.FullName},
		})
	}
}

// Approve turns a pending request into a loan, consuming one copy. The
// request guard, the inventory guard and the loan insert commit atomically.
func (s *CirculationService) Approve(ctx context.Context, actor scope.Actor, requestID string, input ApproveInput) (*models.Loan, error) {
	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !scope.AllowsUser(actor, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another school")
	}
	if req.Status != models.BorrowRequestPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is not pending")
	}

	duration := input.DurationDays
	if duration == 0 {
		duration = req.DurationDays
	}
	if _, ok := models.AllowedDurations[duration]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be 3, 7 or 14 days")
	}

	now := s.now()
	req.DurationDays = duration
	req.ApprovedAt = &now
	req.ApprovedBy = &actor.ID
	if input.LibrarianNote != "" {
		req.LibrarianNote = &input.LibrarianNote
	}

	loan := &models.Loan{
		RequestID:  &req.ID,
		StudentID:  req.StudentID,
		BookID:     req.BookID,
		SchoolID:   student.SchoolID,
		BorrowedAt: now,
		DueAt:      now.AddDate(0, 0, duration),
	}
	if err := s.repo.Approve(ctx, req, loan); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidState) || appErrors.Is(err, appErrors.ErrOutOfStock) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve request")
	}

	s.appendAudit(ctx, actor, models.AuditActionRequestApprove, "borrow_request", req.ID, map[string]interface{}{
		"loan_id": loan.ID, "duration_days": duration,
	})

	book, err := s.books.FindByID(ctx, req.BookID)
	if err != nil {
		s.logger.Warn("book lookup after approve failed", zap.Error(err))
		return loan, nil
	}
	s.emit(ctx, Event{
		Recipient:  student,
		EntityType: "loan",
		EntityID:   loan.ID,
		Data:       RequestApprovedData{BookTitle: book.Title, DueAt: loan.DueAt, LibrarianNote: input.LibrarianNote},
	})
	s.emitLowStock(ctx, book)
	return loan, nil
}

// Reject marks a pending request rejected with a mandatory reason.
func (s *CirculationService) Reject(ctx context.Context, actor scope.Actor, requestID string, input RejectInput) error {
	if err := s.validator.Struct(input); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "borrow request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !scope.AllowsUser(actor, student) {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another school")
	}

	now := s.now()
	req.RejectedAt = &now
	req.RejectedBy = &actor.ID
	req.RejectionReason = &input.RejectionReason
	if err := s.repo.Reject(ctx, req); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidState) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject request")
	}

	s.appendAudit(ctx, actor, models.AuditActionRequestReject, "borrow_request", req.ID, map[string]interface{}{
		"reason": input.RejectionReason,
	})

	if book, err := s.books.FindByID(ctx, req.BookID); err == nil {
		s.emit(ctx, Event{
			Recipient:  student,
			EntityType: "borrow_request",
			EntityID:   req.ID,
			Data:       RequestRejectedData{BookTitle: book.Title, Reason: input.RejectionReason},
		})
	}
	return nil
}

// CreateLoan issues a loan directly, bypassing the request flow.
func (s *CirculationService) CreateLoan(ctx context.Context, actor scope.Actor, input CreateLoanInput) (*models.Loan, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}

	student, err := s.users.FindByID(ctx, input.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "loans can only be issued to students")
	}
	if !scope.AllowsUser(actor, student) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another school")
	}

	if _, err := s.books.FindByID(ctx, input.BookID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	borrowedAt := s.now()
	if input.BorrowedAt != nil {
		borrowedAt = input.BorrowedAt.UTC()
	}
	if !input.DueAt.After(borrowedAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be after the borrow date")
	}

	loan := &models.Loan{
		StudentID:  student.ID,
		BookID:     input.BookID,
		SchoolID:   student.SchoolID,
		BorrowedAt: borrowedAt,
		DueAt:      input.DueAt.UTC(),
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		if appErrors.Is(err, appErrors.ErrOutOfStock) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
	}

	s.appendAudit(ctx, actor, models.AuditActionLoanCreate, "loan", loan.ID, map[string]interface{}{
		"student_id": student.ID, "book_id": input.BookID,
	})
	if book, err := s.books.FindByID(ctx, input.BookID); err == nil {
		s.emitLowStock(ctx, book)
	}
	return loan, nil
}

// ReturnLoan terminates an active loan and puts the copy back on the shelf.
func (s *CirculationService) ReturnLoan(ctx context.Context, actor scope.Actor, loanID string, input ReturnLoanInput) error {
	loan, err := s.loadScopedLoan(ctx, actor, loanID)
	if err != nil {
		return err
	}
	if loan.Status != models.LoanBorrowed {
		return appErrors.Clone(appErrors.ErrInvalidState, "loan already returned")
	}

	returnedAt := s.now()
	if input.ReturnedAt != nil {
		returnedAt = input.ReturnedAt.UTC()
	}
	if err := s.repo.ReturnLoan(ctx, loan.ID, loan.BookID, returnedAt); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidState) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return loan")
	}

	s.appendAudit(ctx, actor, models.AuditActionLoanReturn, "loan", loan.ID, map[string]interface{}{
		"returned_at": returnedAt,
	})
	return nil
}

// ExtendLoan overrides the due date of an active loan.
func (s *CirculationService) ExtendLoan(ctx context.Context, actor scope.Actor, loanID string, input ExtendLoanInput) error {
	if err := s.validator.Struct(input); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "a new due date is required")
	}

	loan, err := s.loadScopedLoan(ctx, actor, loanID)
	if err != nil {
		return err
	}
	if loan.Status != models.LoanBorrowed {
		return appErrors.Clone(appErrors.ErrInvalidState, "loan already returned")
	}
	if !input.NewDueDate.After(loan.BorrowedAt) {
		return appErrors.Clone(appErrors.ErrValidation, "new due date must be after the borrow date")
	}

	if err := s.repo.ExtendLoan(ctx, loan.ID, input.NewDueDate.UTC()); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidState) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to extend loan")
	}

	s.appendAudit(ctx, actor, models.AuditActionLoanExtend, "loan", loan.ID, map[string]interface{}{
		"new_due_date": input.NewDueDate,
	})
	return nil
}

// DeleteLoan removes a loan record as an administrative correction,
// releasing the copy when the loan was still active.
func (s *CirculationService) DeleteLoan(ctx context.Context, actor scope.Actor, loanID string) error {
	loan, err := s.loadScopedLoan(ctx, actor, loanID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteLoan(ctx, loan.ID, loan.BookID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete loan")
	}

	s.appendAudit(ctx, actor, models.AuditActionLoanDelete, "loan", loan.ID, map[string]interface{}{
		"was_active": loan.Status == models.LoanBorrowed,
	})
	return nil
}

// GetLoan returns one loan with display fields, scoped to the actor.
func (s *CirculationService) GetLoan(ctx context.Context, actor scope.Actor, loanID string) (*models.LoanDetail, error) {
	detail, err := s.repo.GetLoanDetail(ctx, scope.ForLoans(actor), loanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		if appErrors.Is(err, appErrors.ErrForbidden) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	return detail, nil
}

// GetRequest returns one borrow request with display fields, scoped.
func (s *CirculationService) GetRequest(ctx context.Context, actor scope.Actor, requestID string) (*models.BorrowRequestDetail, error) {
	detail, err := s.repo.GetRequestDetail(ctx, scope.ForBorrowRequests(actor), requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow request not found")
		}
		if appErrors.Is(err, appErrors.ErrForbidden) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return detail, nil
}

// ListLoans returns the actor's visible loans.
func (s *CirculationService) ListLoans(ctx context.Context, actor scope.Actor, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	loans, total, err := s.repo.ListLoans(ctx, scope.ForLoans(actor), filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}
	return loans, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListRequests returns the actor's visible borrow requests.
func (s *CirculationService) ListRequests(ctx context.Context, actor scope.Actor, filter models.BorrowRequestFilter) ([]models.BorrowRequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.ListRequests(ctx, scope.ForBorrowRequests(actor), filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *CirculationService) loadScopedLoan(ctx context.Context, actor scope.Actor, loanID string) (*models.Loan, error) {
	loan, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	if !allowsLoan(actor, loan) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "loan belongs to another school")
	}
	return loan, nil
}

func allowsLoan(actor scope.Actor, loan *models.Loan) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleLibrarian:
		return actor.SchoolID != nil && loan.SchoolID != nil && *actor.SchoolID == *loan.SchoolID
	case models.RoleStudent:
		return actor.ID == loan.StudentID
	}
	return false
}

func (s *CirculationService) emitLowStock(ctx context.Context, book *models.Book) {
	threshold := s.cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = 1
	}
	if book.Quantity > threshold {
		return
	}
	librarian := s.bookOwner(ctx, book)
	if librarian == nil {
		return
	}
	s.emit(ctx, Event{
		Recipient:  librarian,
		EntityType: "book",
		EntityID:   book.ID,
		Data:       LowStockData{BookTitle: book.Title, Remaining: book.Quantity},
	})
}

func (s *CirculationService) bookOwner(ctx context.Context, book *models.Book) *models.User {
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

func (s *CirculationService) emit(ctx context.Context, event Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, event); err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.String("type", string(event.Data.EventType())),
			zap.Error(err))
	}
}

func (s *CirculationService) appendAudit(ctx context.Context, actor scope.Actor, action, resource, resourceID string, values map[string]interface{}) {
	payload, _ := json.Marshal(values)
	entry := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
