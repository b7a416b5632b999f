package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	fulfillmentapp "github.com/reconcile/backend/internal/application/fulfillment"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// DistributionHandler handles distribution record API endpoints
type DistributionHandler struct {
	BaseHandler
	distributionService *fulfillmentapp.DistributionService
}

// NewDistributionHandler creates a new DistributionHandler
func NewDistributionHandler(distributionService *fulfillmentapp.DistributionService) *DistributionHandler {
	return &DistributionHandler{
		distributionService: distributionService,
	}
}

// Ingest godoc
// @Summary      Ingest a distribution record
// @Description  Stores one fulfillment line, canonicalizes its lot label and attempts to match it to an order. Re-delivering the same (source, external_key) pair returns the stored record unchanged
// @Tags         distributions
// @Accept       json
// @Produce      json
// @Param        request body fulfillmentapp.CreateDistributionRequest true "Distribution record to ingest"
// @Success      200 {object} dto.Response{data=fulfillmentapp.DistributionIngestResponse}
// @Success      201 {object} dto.Response{data=fulfillmentapp.DistributionIngestResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /distributions [post]
func (h *DistributionHandler) Ingest(c *gin.Context) {
	var req fulfillmentapp.CreateDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.distributionService.Ingest(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// GetByID godoc
// @Summary      Get distribution record by ID
// @Description  Retrieve a distribution record by its ID
// @Tags         distributions
// @Produce      json
// @Param        id path string true "Distribution record ID" format(uuid)
// @Success      200 {object} dto.Response{data=fulfillmentapp.DistributionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /distributions/{id} [get]
func (h *DistributionHandler) GetByID(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid distribution record ID format")
		return
	}

	record, err := h.distributionService.GetByID(c.Request.Context(), recordID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, record)
}

// List godoc
// @Summary      List distribution records
// @Description  Retrieve a paginated list of distribution records, optionally scoped to one canonical identity
// @Tags         distributions
// @Produce      json
// @Param        identity_id query string false "Canonical identity ID" format(uuid)
// @Param        search query string false "Search term (SKU, lot label)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]fulfillmentapp.DistributionResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /distributions [get]
func (h *DistributionHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter := toFilter(req)

	var result *fulfillmentapp.DistributionListResponse
	if idStr := c.Query("identity_id"); idStr != "" {
		identityID, err := uuid.Parse(idStr)
		if err != nil {
			h.BadRequest(c, "Invalid identity ID format")
			return
		}
		result, err = h.distributionService.ListByIdentity(c.Request.Context(), identityID, filter)
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
	} else {
		var err error
		result, err = h.distributionService.List(c.Request.Context(), filter)
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
	}

	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// ListUnmatched godoc
// @Summary      List unmatched distribution records
// @Description  Retrieve distribution records still waiting for an order, oldest first
// @Tags         distributions
// @Produce      json
// @Param        limit query int false "Maximum records to return" default(100)
// @Success      200 {object} dto.Response{data=[]fulfillmentapp.DistributionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /distributions/unmatched [get]
func (h *DistributionHandler) ListUnmatched(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "Invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.distributionService.ListUnmatched(c.Request.Context(), limit)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result.Items)
}

// RegisterRoutes registers all distribution record routes
func (h *DistributionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	distributions := rg.Group("/distributions")
	{
		distributions.POST("", h.Ingest)
		distributions.GET("", h.List)
		distributions.GET("/unmatched", h.ListUnmatched)
		distributions.GET("/:id", h.GetByID)
	}
}
