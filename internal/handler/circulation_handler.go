package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/service"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
	"github.com/noah-isme/sma-perpus-api/pkg/response"
)

// CirculationHandler exposes borrow-request and loan endpoints.
type CirculationHandler struct {
	circulation *service.CirculationService
}

// NewCirculationHandler constructs CirculationHandler.
func NewCirculationHandler(circulation *service.CirculationService) *CirculationHandler {
	return &CirculationHandler{circulation: circulation}
}

// CreateRequest godoc
// @Summary Submit a borrow request
// @Tags BorrowRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /borrow-requests [post]
func (h *CirculationHandler) CreateRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req, err := h.circulation.CreateRequest(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, req)
}

// ListRequests godoc
// @Summary List borrow requests visible to the caller
// @Tags BorrowRequests
// @Produce json
// @Param status query string false "Filter by status"
// @Param bookId query string false "Filter by book"
// @Param page query int false "Page"
// @Param pagesize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /borrow-requests [get]
func (h *CirculationHandler) ListRequests(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.BorrowRequestFilter
	if status := strings.ToUpper(c.Query("status")); status != "" {
		s := models.BorrowRequestStatus(status)
		filter.Status = &s
	}
	filter.BookID = c.Query("bookId")
	filter.Page = queryInt(c, 1, "page")
	filter.PageSize = queryInt(c, 20, "pagesize", "limit")

	requests, pagination, err := h.circulation.ListRequests(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// GetRequest godoc
// @Summary Get borrow request detail
// @Tags BorrowRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /borrow-requests/{id} [get]
func (h *CirculationHandler) GetRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.circulation.GetRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ApproveRequest godoc
// @Summary Approve a pending borrow request
// @Tags BorrowRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ApproveInput false "Approval payload"
// @Success 201 {object} response.Envelope
// @Router /borrow-requests/{id}/approve [post]
func (h *CirculationHandler) ApproveRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.ApproveInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	loan, err := h.circulation.Approve(c.Request.Context(), actor, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// RejectRequest godoc
// @Summary Reject a pending borrow request
// @Tags BorrowRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.RejectInput true "Rejection payload"
// @Success 204
// @Router /borrow-requests/{id}/reject [post]
func (h *CirculationHandler) RejectRequest(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.RejectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.circulation.Reject(c.Request.Context(), actor, c.Param("id"), input); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateLoan godoc
// @Summary Issue a loan directly
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.CreateLoanInput true "Loan payload"
// @Success 201 {object} response.Envelope
// @Router /loans [post]
func (h *CirculationHandler) CreateLoan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.CreateLoanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.circulation.CreateLoan(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// ListLoans godoc
// @Summary List loans visible to the caller
// @Tags Loans
// @Produce json
// @Param status query string false "Filter by status"
// @Param active_only query bool false "Only active loans"
// @Param overdue_only query bool false "Only overdue loans"
// @Param bookId query string false "Filter by book"
// @Param page query int false "Page"
// @Param pagesize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /loans [get]
func (h *CirculationHandler) ListLoans(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := loanFilterFromQuery(c)

	loans, pagination, err := h.circulation.ListLoans(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}

// loanFilterFromQuery parses loan list filters, accepting the short aliases
// kept for older clients alongside the documented names.
func loanFilterFromQuery(c *gin.Context) models.LoanFilter {
	var filter models.LoanFilter
	if status := strings.ToUpper(c.Query("status")); status != "" {
		s := models.LoanStatus(status)
		filter.Status = &s
	}
	filter.ActiveOnly = queryBool(c, "active_only", "active")
	filter.OverdueOnly = queryBool(c, "overdue_only", "overdue")
	filter.BookID = c.Query("bookId")
	filter.Page = queryInt(c, 1, "page")
	filter.PageSize = queryInt(c, 20, "pagesize", "limit")
	return filter
}

func queryBool(c *gin.Context, names ...string) bool {
	for _, name := range names {
		if c.Query(name) == "true" {
			return true
		}
	}
	return false
}

func queryInt(c *gin.Context, fallback int, names ...string) int {
	for _, name := range names {
		if raw := c.Query(name); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				return v
			}
		}
	}
	return fallback
}

// GetLoan godoc
// @Summary Get loan detail
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *CirculationHandler) GetLoan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.circulation.GetLoan(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ReturnLoan godoc
// @Summary Return an active loan
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ReturnLoanInput false "Return payload"
// @Success 204
// @Router /loans/{id}/return [post]
func (h *CirculationHandler) ReturnLoan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.ReturnLoanInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if err := h.circulation.ReturnLoan(c.Request.Context(), actor, c.Param("id"), input); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExtendLoan godoc
// @Summary Extend an active loan's due date
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ExtendLoanInput true "Extension payload"
// @Success 204
// @Router /loans/{id}/extend [post]
func (h *CirculationHandler) ExtendLoan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var input service.ExtendLoanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.circulation.ExtendLoan(c.Request.Context(), actor, c.Param("id"), input); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteLoan godoc
// @Summary Delete a loan record
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 204
// @Router /loans/{id} [delete]
func (h *CirculationHandler) DeleteLoan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.circulation.DeleteLoan(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
