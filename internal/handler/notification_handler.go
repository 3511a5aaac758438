package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-perpus-api/internal/models"
	"github.com/noah-isme/sma-perpus-api/internal/service"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
	"github.com/noah-isme/sma-perpus-api/pkg/response"
)

// NotificationHandler exposes the in-app inbox and dispatcher controls.
type NotificationHandler struct {
	notifications *service.NotificationService
	scanner       *service.ScanService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, scanner *service.ScanService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, scanner: scanner}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param pagesize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.NotificationFilter
	filter.UnreadOnly = c.Query("unread") == "true"
	filter.Page = queryInt(c, 1, "page")
	filter.PageSize = queryInt(c, 20, "pagesize", "limit")

	notifications, pagination, err := h.notifications.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, pagination)
}

// UnreadCount godoc
// @Summary Count the caller's unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.notifications.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead godoc
// @Summary Mark one notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark all the caller's notifications read
// @Tags Notifications
// @Produce json
// @Success 204
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.notifications.MarkAllRead(c.Request.Context(), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ProcessQueue godoc
// @Summary Drain queued email deliveries now
// @Tags Notifications
// @Produce json
// @Param limit query int false "Max deliveries to process"
// @Success 200 {object} response.Envelope
// @Router /notifications/process-queue [post]
func (h *NotificationHandler) ProcessQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	result, err := h.notifications.Drain(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ScanDue godoc
// @Summary Run the due-soon/overdue/low-stock sweep now
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/scan-due [post]
func (h *NotificationHandler) ScanDue(c *gin.Context) {
	result, err := h.scanner.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
