package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/research-reports/internal/http/response"
	"github.com/yungbote/research-reports/internal/platform/apierr"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/realtime"
	"github.com/yungbote/research-reports/internal/services"
)

type ReportHandler struct {
	log     *logger.Logger
	reports services.ReportService
	hub     *realtime.Hub
}

// NewReportHandler builds the report routes; hub may be nil, which disables the event stream.
func NewReportHandler(log *logger.Logger, reports services.ReportService, hub *realtime.Hub) *ReportHandler {
	return &ReportHandler{log: log.With("handler", "ReportHandler"), reports: reports, hub: hub}
}

func reportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_report_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/reports
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req services.CreateReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	r, err := h.reports.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondCreated(c, gin.H{"report": r})
}

// GET /api/reports?parent_id=
func (h *ReportHandler) ListReports(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("parent_id"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("parentId"))
	}
	parentID, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_parent_id", err)
		return
	}
	list, err := h.reports.List(c.Request.Context(), parentID)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondOK(c, gin.H{"reports": list})
}

// GET /api/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	r, err := h.reports.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondOK(c, gin.H{"report": r})
}

// PATCH /api/reports/:id
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req services.UpdateReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	r, err := h.reports.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondOK(c, gin.H{"report": r})
}

// POST /api/reports/:id/analyze
func (h *ReportHandler) AnalyzePrompt(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req struct {
		CustomPrompt string `json:"custom_prompt"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	analysis, err := h.reports.AnalyzePrompt(c.Request.Context(), id, req.CustomPrompt)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, apierr.New(http.StatusBadGateway, "prompt_analysis_failed", nil)))
		return
	}
	response.RespondOK(c, analysis)
}

// POST /api/reports/:id/generate
//
// A report that ends in status error is still a 200: the failure is part of the report.
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req services.GenerateReportInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	r, err := h.reports.Generate(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondOK(c, gin.H{"report": r})
}

// POST /api/reports/:id/cancel
func (h *ReportHandler) CancelReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	cancelled, err := h.reports.Cancel(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": cancelled})
}

// DELETE /api/reports/:id
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	if err := h.reports.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/reports/:id/related-documents
func (h *ReportHandler) RelatedDocuments(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	docs, err := h.reports.RelatedDocuments(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// GET /api/reports/:id/events
func (h *ReportHandler) StreamEvents(c *gin.Context) {
	if h.hub == nil {
		response.RespondError(c, http.StatusNotFound, "events_disabled", nil)
		return
	}
	id, ok := reportID(c)
	if !ok {
		return
	}
	if _, err := h.reports.Get(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, reportAPIError(err, nil))
		return
	}
	client := h.hub.NewClient()
	h.hub.AddChannel(client, realtime.ReportChannel(id))
	defer h.hub.CloseClient(client)
	h.log.Debug("event stream open", "report_id", id, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
