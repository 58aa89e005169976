package claimant

import (
	"net/http"

	"plumberleads/internal/middleware"
	"plumberleads/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler handles claimant profile HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates claimant profile handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.GET("/claimants/me", h.GetMe)
	rg.PUT("/claimants/me", h.UpsertMe)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/claimants/:id/verification", h.SetVerified)
}

// GetMe handles GET /api/v1/claimants/me
// @Summary Get own claimant profile
// @Tags Claimants
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Claimant
// @Failure 404 {object} response.ErrorBody
// @Router /claimants/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	profile, err := h.service.Get(c.Request.Context(), middleware.ActorFrom(c).ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// UpsertMe handles PUT /api/v1/claimants/me
// @Summary Create or update own claimant profile
// @Tags Claimants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body UpsertProfileRequest true "Profile"
// @Success 200 {object} domain.Claimant
// @Failure 400 {object} response.ErrorBody
// @Router /claimants/me [put]
func (h *Handler) UpsertMe(c *gin.Context) {
	var req UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	profile, err := h.service.UpsertProfile(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// SetVerified handles PATCH /api/v1/claimants/:id/verification
func (h *Handler) SetVerified(c *gin.Context) {
	var req SetVerifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "verified is required")
		return
	}
	profile, err := h.service.SetVerified(c.Request.Context(), c.Param("id"), *req.Verified, middleware.ActorFrom(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}
