package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	fulfillmentapp "github.com/reconcile/backend/internal/application/fulfillment"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// OrderHandler handles order API endpoints
type OrderHandler struct {
	BaseHandler
	orderService        *fulfillmentapp.OrderService
	distributionService *fulfillmentapp.DistributionService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(
	orderService *fulfillmentapp.OrderService,
	distributionService *fulfillmentapp.DistributionService,
) *OrderHandler {
	return &OrderHandler{
		orderService:        orderService,
		distributionService: distributionService,
	}
}

// Ingest godoc
// @Summary      Ingest an order
// @Description  Stores one order, resolves its customer to a canonical identity and links any distribution records already waiting on it. Re-delivering the same (source, external_key) pair returns the stored order unchanged
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body fulfillmentapp.CreateOrderRequest true "Order to ingest"
// @Success      200 {object} dto.Response{data=fulfillmentapp.OrderIngestResponse}
// @Success      201 {object} dto.Response{data=fulfillmentapp.OrderIngestResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [post]
func (h *OrderHandler) Ingest(c *gin.Context) {
	var req fulfillmentapp.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.orderService.Ingest(c.Request.Context(), req)
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
// @Summary      Get order by ID
// @Description  Retrieve an order by its ID
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=fulfillmentapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	order, err := h.orderService.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// List godoc
// @Summary      List orders
// @Description  Retrieve a paginated list of orders, optionally scoped to one canonical identity
// @Tags         orders
// @Produce      json
// @Param        identity_id query string false "Canonical identity ID" format(uuid)
// @Param        search query string false "Search term (order number, customer name)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]fulfillmentapp.OrderResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter := toFilter(req)

	var result *fulfillmentapp.OrderListResponse
	if idStr := c.Query("identity_id"); idStr != "" {
		identityID, err := uuid.Parse(idStr)
		if err != nil {
			h.BadRequest(c, "Invalid identity ID format")
			return
		}
		result, err = h.orderService.ListByIdentity(c.Request.Context(), identityID, filter)
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
	} else {
		var err error
		result, err = h.orderService.List(c.Request.Context(), filter)
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
	}

	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// Cancel godoc
// @Summary      Cancel an order
// @Description  Cancels an order. Its distribution records detach and return to the unmatched pool
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body fulfillmentapp.CancelOrderRequest false "Cancel order request"
// @Success      200 {object} dto.Response{data=fulfillmentapp.OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	var req fulfillmentapp.CancelOrderRequest
	// Allow empty body
	_ = c.ShouldBindJSON(&req)

	order, err := h.orderService.Cancel(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, order)
}

// ListDistributions godoc
// @Summary      List distribution records linked to an order
// @Description  Retrieve the distribution records currently matched to an order
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]fulfillmentapp.DistributionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{id}/distributions [get]
func (h *OrderHandler) ListDistributions(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	result, err := h.distributionService.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result.Items)
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Ingest)
		orders.GET("", h.List)
		orders.GET("/:id", h.GetByID)
		orders.POST("/:id/cancel", h.Cancel)
		orders.GET("/:id/distributions", h.ListDistributions)
	}
}
