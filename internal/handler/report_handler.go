package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-perpus-api/internal/service"
	appErrors "github.com/noah-isme/sma-perpus-api/pkg/errors"
	"github.com/noah-isme/sma-perpus-api/pkg/response"
)

// ReportHandler exposes circulation report exports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// OverdueLoans godoc
// @Summary Export overdue loans as CSV or PDF
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /reports/overdue-loans [get]
func (h *ReportHandler) OverdueLoans(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := service.ReportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.reports.OverdueLoans(c.Request.Context(), actor, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
