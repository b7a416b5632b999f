package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ingestapp "github.com/reconcile/backend/internal/application/ingest"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// maxUploadFileSize limits uploaded feed files to 10MB
const maxUploadFileSize = 10 * 1024 * 1024

// defaultStaleRunAge is the cutoff for recovering runs orphaned by a crash
const defaultStaleRunAge = 30 * time.Minute

// IngestHandler handles feed file uploads and ingestion run history
type IngestHandler struct {
	BaseHandler
	batchService *ingestapp.BatchService
	runService   *ingestapp.RunService
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(batchService *ingestapp.BatchService, runService *ingestapp.RunService) *IngestHandler {
	return &IngestHandler{
		batchService: batchService,
		runService:   runService,
	}
}

// UploadOrders godoc
// @Summary      Upload an order feed file
// @Description  Ingests a CSV file of orders. Every row runs through the same pipeline as single-order ingestion; progress commits page by page onto an ingestion run
// @Tags         ingest
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "CSV file to ingest (max 10MB)"
// @Param        source formData string false "Feed source" Enums(feed, document, manual) default(feed)
// @Success      200 {object} dto.Response{data=ingestapp.BatchResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      415 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/orders [post]
func (h *IngestHandler) UploadOrders(c *gin.Context) {
	h.uploadFeed(c, h.batchService.IngestOrders)
}

// UploadDistributions godoc
// @Summary      Upload a distribution feed file
// @Description  Ingests a CSV file of distribution records. Every row runs through the same pipeline as single-record ingestion; progress commits page by page onto an ingestion run
// @Tags         ingest
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "CSV file to ingest (max 10MB)"
// @Param        source formData string false "Feed source" Enums(feed, document, manual) default(feed)
// @Success      200 {object} dto.Response{data=ingestapp.BatchResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      415 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/distributions [post]
func (h *IngestHandler) UploadDistributions(c *gin.Context) {
	h.uploadFeed(c, h.batchService.IngestDistributions)
}

// uploadFeed reads and validates the multipart upload shared by both feed
// endpoints, then hands the file to the batch pipeline
func (h *IngestHandler) uploadFeed(
	c *gin.Context,
	ingest func(ctx context.Context, req ingestapp.BatchRequest) (*ingestapp.BatchResponse, error),
) {
	var form dto.IngestUploadRequest
	if err := c.ShouldBind(&form); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	source := form.Source
	if source == "" {
		source = "feed"
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.BadRequest(c, "No file uploaded or invalid file field")
		return
	}
	defer file.Close()

	if header.Size > maxUploadFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation,
			"File size exceeds the maximum allowed size of 10MB")
		return
	}

	if !isAllowedFeedContentType(header.Header.Get("Content-Type")) {
		h.Error(c, http.StatusUnsupportedMediaType, dto.ErrCodeValidation,
			"Unsupported file type, expected a CSV file")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadFileSize+1))
	if err != nil {
		h.InternalError(c, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > maxUploadFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation,
			"File size exceeds the maximum allowed size of 10MB")
		return
	}

	result, err := ingest(c.Request.Context(), ingestapp.BatchRequest{
		Source:   source,
		FileName: header.Filename,
		Data:     data,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// isAllowedFeedContentType reports whether an uploaded part's declared type
// is acceptable for a CSV feed. Browsers disagree on the type they attach,
// so common CSV aliases are accepted alongside the generic binary type.
func isAllowedFeedContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	allowed := []string{
		"text/csv",
		"application/csv",
		"application/octet-stream",
		"text/plain",
		"application/vnd.ms-excel",
	}
	for _, t := range allowed {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// ListRuns godoc
// @Summary      List ingestion runs
// @Description  Retrieve a paginated list of ingestion runs, newest first
// @Tags         ingest
// @Produce      json
// @Param        kind query string false "Run kind" Enums(orders, distributions, lot_references)
// @Param        source query string false "Feed source" Enums(feed, document, manual)
// @Param        status query string false "Run status" Enums(pending, processing, completed, failed, cancelled)
// @Param        started_from query string false "Earliest start time (RFC 3339)" format(date-time)
// @Param        started_to query string false "Latest start time (RFC 3339)" format(date-time)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]ingestapp.RunResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs [get]
func (h *IngestHandler) ListRuns(c *gin.Context) {
	var req dto.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	startedFrom, err := parseTimeQuery(c.Query("started_from"))
	if err != nil {
		h.BadRequest(c, "Invalid started_from timestamp, expected RFC 3339")
		return
	}
	startedTo, err := parseTimeQuery(c.Query("started_to"))
	if err != nil {
		h.BadRequest(c, "Invalid started_to timestamp, expected RFC 3339")
		return
	}

	result, err := h.runService.List(c.Request.Context(), ingestapp.ListRunsRequest{
		Kind:        req.Kind,
		Source:      req.Source,
		Status:      req.Status,
		StartedFrom: startedFrom,
		StartedTo:   startedTo,
		Page:        req.Page,
		PageSize:    req.PageSize,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// GetRun godoc
// @Summary      Get ingestion run by ID
// @Description  Retrieve an ingestion run with its report and failure details
// @Tags         ingest
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {object} dto.Response{data=ingestapp.RunResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs/{id} [get]
func (h *IngestHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.runService.GetByID(c.Request.Context(), runID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, run)
}

// CancelRun godoc
// @Summary      Cancel an ingestion run
// @Description  Requests cancellation of a pending or processing run. The batch pipeline honors the request at its next page checkpoint, keeping every committed page
// @Tags         ingest
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {object} dto.Response{data=ingestapp.RunResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs/{id}/cancel [post]
func (h *IngestHandler) CancelRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.runService.Cancel(c.Request.Context(), runID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, run)
}

// DeleteRun godoc
// @Summary      Delete an ingestion run
// @Description  Deletes a terminal run record. Ingested rows stay; only the run bookkeeping is removed
// @Tags         ingest
// @Produce      json
// @Param        id path string true "Run ID" format(uuid)
// @Success      204 "Successfully deleted"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs/{id} [delete]
func (h *IngestHandler) DeleteRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	if err := h.runService.Delete(c.Request.Context(), runID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// DownloadRunErrors godoc
// @Summary      Download run failure details as CSV
// @Description  Renders the per-row failure details of a run as a downloadable CSV file
// @Tags         ingest
// @Produce      text/csv
// @Param        id path string true "Run ID" format(uuid)
// @Success      200 {string} string "CSV content"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs/{id}/errors [get]
func (h *IngestHandler) DownloadRunErrors(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	content, fileName, err := h.runService.ErrorsCSV(c.Request.Context(), runID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.String(http.StatusOK, content)
}

// RecoverStaleRuns godoc
// @Summary      Recover stale ingestion runs
// @Description  Marks runs that started before the cutoff and never reached a terminal status as failed. Committed pages of such runs stay ingested
// @Tags         ingest
// @Produce      json
// @Param        older_than_minutes query int false "Cutoff age in minutes" default(30)
// @Success      200 {object} APIResponse[CountData]
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ingest/runs/recover-stale [post]
func (h *IngestHandler) RecoverStaleRuns(c *gin.Context) {
	olderThan := defaultStaleRunAge
	if minutesStr := c.Query("older_than_minutes"); minutesStr != "" {
		minutes, err := time.ParseDuration(minutesStr + "m")
		if err != nil || minutes <= 0 {
			h.BadRequest(c, "Invalid older_than_minutes")
			return
		}
		olderThan = minutes
	}

	recovered, err := h.runService.RecoverStale(c.Request.Context(), olderThan)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CountData{Count: int64(recovered)})
}

// RegisterRoutes registers all ingestion routes
func (h *IngestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	ingest := rg.Group("/ingest")
	{
		ingest.POST("/orders", h.UploadOrders)
		ingest.POST("/distributions", h.UploadDistributions)
		ingest.GET("/runs", h.ListRuns)
		ingest.POST("/runs/recover-stale", h.RecoverStaleRuns)
		ingest.GET("/runs/:id", h.GetRun)
		ingest.POST("/runs/:id/cancel", h.CancelRun)
		ingest.DELETE("/runs/:id", h.DeleteRun)
		ingest.GET("/runs/:id/errors", h.DownloadRunErrors)
	}
}
