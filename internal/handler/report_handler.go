package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/middleware"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/internal/service"
	"github.com/noah-isme/attendance-ledger-api/pkg/response"
)

type presenceReporter interface {
	PresenceWithCacheStatus(ctx context.Context, query dto.PresenceReportQuery) (*models.PresenceMatrix, bool, error)
	Export(ctx context.Context, query dto.PresenceReportQuery) (*service.ReportFile, error)
}

// ReportHandler serves presence reports.
type ReportHandler struct {
	service presenceReporter
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc presenceReporter) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Presence godoc
// @Summary Presence matrix
// @Description Participants by sessions for a class, with per-participant totals.
// @Tags Reports
// @Produce json
// @Param class_id query string true "Class ID"
// @Param subject_id query string false "Subject ID"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/presence [get]
func (h *ReportHandler) Presence(c *gin.Context) {
	var query dto.PresenceReportQuery
	if !bindQuery(c, &query, "invalid report query") {
		return
	}
	matrix, hit, err := h.service.PresenceWithCacheStatus(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, matrix, middleware.Meta(c))
}

// Export godoc
// @Summary Export presence matrix
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param class_id query string true "Class ID"
// @Param subject_id query string false "Subject ID"
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/presence/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	var query dto.PresenceReportQuery
	if !bindQuery(c, &query, "invalid report query") {
		return
	}
	file, err := h.service.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
