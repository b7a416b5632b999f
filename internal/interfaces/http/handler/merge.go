package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	identityapp "github.com/reconcile/backend/internal/application/identity"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/interfaces/http/dto"
)

// MergeHandler handles merge candidate review API endpoints
type MergeHandler struct {
	BaseHandler
	mergeService *identityapp.MergeService
}

// NewMergeHandler creates a new MergeHandler
func NewMergeHandler(mergeService *identityapp.MergeService) *MergeHandler {
	return &MergeHandler{
		mergeService: mergeService,
	}
}

// Enqueue godoc
// @Summary      Queue an identity pair for merge review
// @Description  Flags two identities as suspected duplicates. Queueing the same pair twice, in either order, returns the existing candidate
// @Tags         merge-candidates
// @Accept       json
// @Produce      json
// @Param        request body identityapp.EnqueueMergeRequest true "Identity pair to review"
// @Success      201 {object} dto.Response{data=identityapp.MergeCandidateResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /merge-candidates [post]
func (h *MergeHandler) Enqueue(c *gin.Context) {
	var req identityapp.EnqueueMergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	candidate, err := h.mergeService.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, candidate)
}

// GetByID godoc
// @Summary      Get merge candidate by ID
// @Description  Retrieve a merge candidate by its ID
// @Tags         merge-candidates
// @Produce      json
// @Param        id path string true "Merge candidate ID" format(uuid)
// @Success      200 {object} dto.Response{data=identityapp.MergeCandidateResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /merge-candidates/{id} [get]
func (h *MergeHandler) GetByID(c *gin.Context) {
	candidateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid merge candidate ID format")
		return
	}

	candidate, err := h.mergeService.GetByID(c.Request.Context(), candidateID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, candidate)
}

// List godoc
// @Summary      List merge candidates by status
// @Description  Retrieve a paginated list of merge candidates, pending review first
// @Tags         merge-candidates
// @Produce      json
// @Param        status query string false "Candidate status" Enums(pending, merged, rejected, superseded) default(pending)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Success      200 {object} dto.Response{data=[]identityapp.MergeCandidateResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /merge-candidates [get]
func (h *MergeHandler) List(c *gin.Context) {
	status := identity.MergeCandidateStatus(c.DefaultQuery("status", string(identity.MergeStatusPending)))
	if !status.IsValid() {
		h.BadRequest(c, "Invalid merge candidate status")
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.mergeService.ListByStatus(c.Request.Context(), status, toFilter(req))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// Approve godoc
// @Summary      Approve a merge candidate
// @Description  Merges the pair into the chosen master. Orders and distribution records of the duplicate migrate to the master, and other pending candidates referencing the duplicate are superseded
// @Tags         merge-candidates
// @Accept       json
// @Produce      json
// @Param        id path string true "Merge candidate ID" format(uuid)
// @Param        request body identityapp.ApproveMergeRequest true "Chosen master identity"
// @Success      200 {object} dto.Response{data=identityapp.MergeApprovalResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /merge-candidates/{id}/approve [post]
func (h *MergeHandler) Approve(c *gin.Context) {
	candidateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid merge candidate ID format")
		return
	}

	var req identityapp.ApproveMergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	approval, err := h.mergeService.Approve(c.Request.Context(), candidateID, req.MasterID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, approval)
}

// Reject godoc
// @Summary      Reject a merge candidate
// @Description  Marks the pair as not duplicates. Both identities stay untouched
// @Tags         merge-candidates
// @Produce      json
// @Param        id path string true "Merge candidate ID" format(uuid)
// @Success      200 {object} dto.Response{data=identityapp.MergeCandidateResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /merge-candidates/{id}/reject [post]
func (h *MergeHandler) Reject(c *gin.Context) {
	candidateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid merge candidate ID format")
		return
	}

	candidate, err := h.mergeService.Reject(c.Request.Context(), candidateID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, candidate)
}

// RegisterRoutes registers all merge candidate routes
func (h *MergeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	candidates := rg.Group("/merge-candidates")
	{
		candidates.POST("", h.Enqueue)
		candidates.GET("", h.List)
		candidates.GET("/:id", h.GetByID)
		candidates.POST("/:id/approve", h.Approve)
		candidates.POST("/:id/reject", h.Reject)
	}
}
