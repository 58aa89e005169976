package lead

import (
	"net/http"

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

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads", h.Submit)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads", h.List)
	rg.GET("/leads/:id", h.Get)
	rg.PATCH("/leads/:id/status", h.SetStatus)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:id/history", h.History)
	rg.PATCH("/leads/:id/price", h.UpdatePrice)
}

// Submit godoc
// @Summary      Submit a service request
// @Description  Public endpoint for customers. The lead is listed as available.
// @Tags         Leads
// @Accept       json
// @Produce      json
// @Param        body body SubmitLeadRequest true "Lead"
// @Success      201 {object} LeadResponse
// @Failure      400 {object} response.ErrorBody
// @Router       /leads [post]
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	l, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toResponse(l, true))
}

// List godoc
// @Summary      List leads
// @Tags         Leads
// @Security     BearerAuth
// @Produce      json
// @Param        status query string false "Status (admins only for anything but available)"
// @Param        service_category query string false "Service category"
// @Param        city query string false "City"
// @Param        state query string false "State"
// @Param        zip_code query string false "Zip code"
// @Param        page query int false "Page" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} ListResponse
// @Router       /leads [get]
func (h *Handler) List(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	actor := middleware.ActorFrom(c)
	page, err := h.service.ListAvailable(c.Request.Context(), q, actor)
	if err != nil {
		response.FromError(c, err)
		return
	}

	out := ListResponse{Leads: make([]LeadResponse, 0, len(page.Items)), Total: page.Total, Page: page.Page, PageSize: page.PageSize}
	for i := range page.Items {
		l := &page.Items[i]
		out.Leads = append(out.Leads, toResponse(l, CanSeeContact(l, actor)))
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	l, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(l, CanSeeContact(l, middleware.ActorFrom(c))))
}

func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	actor := middleware.ActorFrom(c)
	l, err := h.service.SetStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(l, CanSeeContact(l, actor)))
}

func (h *Handler) UpdatePrice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	l, err := h.service.UpdatePrice(c.Request.Context(), id, req.PriceCents, middleware.ActorFrom(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(l, true))
}

func (h *Handler) History(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": entries})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid lead ID")
		return uuid.Nil, false
	}
	return id, true
}
