package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	ledgerapp "github.com/reconcile/backend/internal/application/ledger"
	"github.com/reconcile/backend/internal/domain/ledger"
)

// LedgerHandler handles reconciled ledger API endpoints
type LedgerHandler struct {
	BaseHandler
	ledgerService *ledgerapp.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService *ledgerapp.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

// GetRollup godoc
// @Summary      Get the distribution rollup for a window
// @Description  Computes total units, order count, per-SKU totals and the new-versus-repeat split over matched distribution records. Omitting both bounds yields the lifetime rollup
// @Tags         ledger
// @Produce      json
// @Param        from query string false "Window start (RFC 3339)" format(date-time)
// @Param        to query string false "Window end (RFC 3339)" format(date-time)
// @Success      200 {object} dto.Response{data=ledger.Rollup}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ledger/rollup [get]
func (h *LedgerHandler) GetRollup(c *gin.Context) {
	from, err := parseTimeQuery(c.Query("from"))
	if err != nil {
		h.BadRequest(c, "Invalid from timestamp, expected RFC 3339")
		return
	}
	to, err := parseTimeQuery(c.Query("to"))
	if err != nil {
		h.BadRequest(c, "Invalid to timestamp, expected RFC 3339")
		return
	}

	rollup, err := h.ledgerService.ComputeRollup(c.Request.Context(), ledger.Window{From: from, To: to})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, rollup)
}

// GetLotLedger godoc
// @Summary      Get the per-SKU lot ledger
// @Description  Compares produced against distributed units per SKU. Lots whose manufacturing year precedes min_year, or whose year is unknown, are excluded
// @Tags         ledger
// @Produce      json
// @Param        min_year query int false "Minimum manufacturing year; falls back to the configured default"
// @Success      200 {object} dto.Response{data=ledgerapp.LotLedgerResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /ledger/lots [get]
func (h *LedgerHandler) GetLotLedger(c *gin.Context) {
	minYear := 0
	if yearStr := c.Query("min_year"); yearStr != "" {
		parsed, err := strconv.Atoi(yearStr)
		if err != nil || parsed < 0 {
			h.BadRequest(c, "Invalid min_year")
			return
		}
		minYear = parsed
	}

	result, err := h.ledgerService.ComputeLotLedger(c.Request.Context(), minYear)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// InvalidateRollups godoc
// @Summary      Invalidate cached rollups
// @Description  Drops every cached rollup window so the next read recomputes from storage. Intended for operators after a backfill; routine ingestion relies on the cache TTL instead
// @Tags         ledger
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Router       /ledger/rollup/invalidate [post]
func (h *LedgerHandler) InvalidateRollups(c *gin.Context) {
	h.ledgerService.InvalidateRollups(c.Request.Context())
	h.Success(c, nil)
}

// RegisterRoutes registers all ledger routes
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	ledgerGroup := rg.Group("/ledger")
	{
		ledgerGroup.GET("/rollup", h.GetRollup)
		ledgerGroup.POST("/rollup/invalidate", h.InvalidateRollups)
		ledgerGroup.GET("/lots", h.GetLotLedger)
	}
}
