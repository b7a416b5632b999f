package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	identityapp "github.com/reconcile/backend/internal/application/identity"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// IdentityHandler handles canonical identity API endpoints
type IdentityHandler struct {
	BaseHandler
	resolutionService *identityapp.ResolutionService
}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler(resolutionService *identityapp.ResolutionService) *IdentityHandler {
	return &IdentityHandler{
		resolutionService: resolutionService,
	}
}

// Resolve godoc
// @Summary      Resolve a candidate to a canonical identity
// @Description  Maps an observed name and address to its canonical identity, creating one when no tier matches
// @Tags         identities
// @Accept       json
// @Produce      json
// @Param        request body identityapp.ResolveCandidateRequest true "Candidate observation"
// @Success      200 {object} dto.Response{data=identityapp.ResolveResponse}
// @Success      201 {object} dto.Response{data=identityapp.ResolveResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /identities/resolve [post]
func (h *IdentityHandler) Resolve(c *gin.Context) {
	var req identityapp.ResolveCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.resolutionService.Resolve(c.Request.Context(), req.ToCandidate())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	response := identityapp.ToResolveResponse(result)
	if result.Created {
		h.Created(c, response)
		return
	}
	h.Success(c, response)
}

// GetByID godoc
// @Summary      Get canonical identity by ID
// @Description  Retrieve a canonical identity by its ID
// @Tags         identities
// @Produce      json
// @Param        id path string true "Identity ID" format(uuid)
// @Success      200 {object} dto.Response{data=identityapp.IdentityResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /identities/{id} [get]
func (h *IdentityHandler) GetByID(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid identity ID format")
		return
	}

	ident, err := h.resolutionService.GetByID(c.Request.Context(), identityID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ident)
}

// List godoc
// @Summary      List canonical identities
// @Description  Retrieve a paginated list of canonical identities
// @Tags         identities
// @Produce      json
// @Param        search query string false "Search term (display name, canonical key)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]identityapp.IdentityResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /identities [get]
func (h *IdentityHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := toFilter(req)
	result, err := h.resolutionService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// RegisterRoutes registers all identity routes
func (h *IdentityHandler) RegisterRoutes(rg *gin.RouterGroup) {
	identities := rg.Group("/identities")
	{
		identities.POST("/resolve", h.Resolve)
		identities.GET("", h.List)
		identities.GET("/:id", h.GetByID)
	}
}
