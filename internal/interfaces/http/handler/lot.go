package handler

import (
	"github.com/gin-gonic/gin"

	lotapp "github.com/reconcile/backend/internal/application/lot"
)

// LotHandler handles lot reference snapshot API endpoints
type LotHandler struct {
	BaseHandler
	snapshotService *lotapp.SnapshotService
}

// NewLotHandler creates a new LotHandler
func NewLotHandler(snapshotService *lotapp.SnapshotService) *LotHandler {
	return &LotHandler{
		snapshotService: snapshotService,
	}
}

// CanonicalizeLotRequest represents a request to canonicalize a raw lot label
// @Description Request body for canonicalizing a lot label
type CanonicalizeLotRequest struct {
	Label string `json:"label" binding:"required,min=1,max=100" example:"LOT-2024- 011"`
}

// CanonicalizeLotResponse represents a canonicalized lot label
// @Description Canonicalized lot label with reference data when known
type CanonicalizeLotResponse struct {
	Raw               string `json:"raw" example:"LOT-2024- 011"`
	Canonical         string `json:"canonical" example:"LOT-2024-011"`
	ManufacturingYear *int   `json:"manufacturing_year,omitempty" example:"2024"`
	SKUHint           string `json:"sku_hint,omitempty" example:"SKU-001"`
}

// Canonicalize godoc
// @Summary      Canonicalize a raw lot label
// @Description  Normalizes a raw lot label and applies the current correction map. Reference data is attached when the canonical label is known
// @Tags         lots
// @Accept       json
// @Produce      json
// @Param        request body CanonicalizeLotRequest true "Raw lot label"
// @Success      200 {object} APIResponse[CanonicalizeLotResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /lots/canonicalize [post]
func (h *LotHandler) Canonicalize(c *gin.Context) {
	var req CanonicalizeLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	info, err := h.snapshotService.Canonicalize(c.Request.Context(), req.Label)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CanonicalizeLotResponse{
		Raw:               req.Label,
		Canonical:         info.Canonical,
		ManufacturingYear: info.ManufacturingYear,
		SKUHint:           info.SKUHint,
	})
}

// GetSnapshotStatus godoc
// @Summary      Get lot reference snapshot status
// @Description  Reports the size and load time of the reference snapshot currently serving canonicalization
// @Tags         lots
// @Produce      json
// @Success      200 {object} APIResponse[lotapp.SnapshotStatus]
// @Failure      500 {object} ErrorResponse
// @Router       /lots/snapshot [get]
func (h *LotHandler) GetSnapshotStatus(c *gin.Context) {
	status, err := h.snapshotService.Status(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, status)
}

// SyncSnapshot godoc
// @Summary      Sync the lot reference snapshot
// @Description  Fetches the externally maintained reference table, replaces stored rows and swaps in a fresh snapshot. Records canonicalized before the sync keep their stored labels
// @Tags         lots
// @Produce      json
// @Success      200 {object} APIResponse[lotapp.SyncResponse]
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /lots/snapshot/sync [post]
func (h *LotHandler) SyncSnapshot(c *gin.Context) {
	result, err := h.snapshotService.SyncFromSource(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// RegisterRoutes registers all lot reference routes
func (h *LotHandler) RegisterRoutes(rg *gin.RouterGroup) {
	lots := rg.Group("/lots")
	{
		lots.POST("/canonicalize", h.Canonicalize)
		lots.GET("/snapshot", h.GetSnapshotStatus)
		lots.POST("/snapshot/sync", h.SyncSnapshot)
	}
}
