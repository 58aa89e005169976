package reservation

import (
	"net/http"
	"time"

	"plumberleads/internal/middleware"
	"plumberleads/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads/:id/reserve", h.Reserve)
	rg.POST("/leads/:id/release", h.Release)
}

type reservationResponse struct {
	LeadID     uuid.UUID `json:"lead_id"`
	Status     string    `json:"status"`
	ReservedBy *string   `json:"reserved_by,omitempty"`
	ExpiresAt  *string   `json:"expires_at,omitempty"`
	Version    int64     `json:"version"`
}

func (h *Handler) Reserve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid lead ID")
		return
	}

	actor := middleware.ActorFrom(c)
	l, err := h.service.Reserve(c.Request.Context(), id, actor.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	resp := reservationResponse{LeadID: l.ID, Status: string(l.Status), ReservedBy: l.ReservedBy, Version: l.Version}
	if l.ReservedAt != nil {
		exp := l.ReservedAt.Add(h.service.TTL()).UTC().Format(time.RFC3339)
		resp.ExpiresAt = &exp
	}
	response.Success(c, http.StatusOK, resp)
}

func (h *Handler) Release(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid lead ID")
		return
	}

	l, err := h.service.Release(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, reservationResponse{LeadID: l.ID, Status: string(l.Status), Version: l.Version})
}
