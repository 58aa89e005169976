package payment

import (
	"errors"
	"io"
	"net/http"

	"plumberleads/internal/domain"
	"plumberleads/internal/middleware"
	"plumberleads/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
	loggerf func(format string, args ...interface{})
}

func NewHandler(service *Service, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Handler{service: service, loggerf: loggerf}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads/:id/payments", h.OpenAuthorization)
	rg.POST("/payments/:id/confirm", h.Confirm)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:id/payments", h.ListAttempts)
	rg.POST("/payments/:id/refund", h.Refund)
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/webhook", h.Webhook)
}

// OpenAuthorization godoc
// @Summary      Open a payment for a reserved lead
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Lead ID"
// @Success      201 {object} AttemptResponse
// @Failure      409 {object} response.ErrorBody
// @Failure      422 {object} response.ErrorBody
// @Failure      502 {object} response.ErrorBody
// @Router       /leads/{id}/payments [post]
func (h *Handler) OpenAuthorization(c *gin.Context) {
	leadID, ok := parseID(c, "Invalid lead ID")
	if !ok {
		return
	}
	a, err := h.service.OpenAuthorization(c.Request.Context(), leadID, middleware.ActorFrom(c).ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toResponse(a, true))
}

// Confirm godoc
// @Summary      Confirm a payment with the gateway
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payment attempt ID"
// @Success      200 {object} AttemptResponse
// @Failure      409 {object} response.ErrorBody
// @Router       /payments/{id}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	id, ok := parseID(c, "Invalid payment ID")
	if !ok {
		return
	}
	actor := middleware.ActorFrom(c)
	a, err := h.service.GetAttempt(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !actor.Admin && a.ClaimantID != actor.ID {
		response.FromError(c, domain.ErrNotOwner)
		return
	}

	a, err = h.service.Confirm(c.Request.Context(), id)
	if errors.Is(err, domain.ErrClaimLost) && a != nil {
		response.ErrorWithDetails(c, http.StatusConflict, domain.ErrClaimLost.Code, domain.ErrClaimLost.Message, toResponse(a, false))
		return
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(a, false))
}

func (h *Handler) ListAttempts(c *gin.Context) {
	leadID, ok := parseID(c, "Invalid lead ID")
	if !ok {
		return
	}
	attempts, err := h.service.ListAttempts(c.Request.Context(), leadID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	out := make([]AttemptResponse, 0, len(attempts))
	for i := range attempts {
		out = append(out, toResponse(&attempts[i], false))
	}
	response.Success(c, http.StatusOK, out)
}

// Refund godoc
// @Summary      Refund a completed payment and reopen the lead
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment attempt ID"
// @Param        body body RefundRequest false "Refund reason"
// @Success      200 {object} AttemptResponse
// @Failure      409 {object} response.ErrorBody
// @Router       /payments/{id}/refund [post]
func (h *Handler) Refund(c *gin.Context) {
	id, ok := parseID(c, "Invalid payment ID")
	if !ok {
		return
	}
	var req RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}
	a, err := h.service.Refund(c.Request.Context(), id, req.Reason, middleware.ActorFrom(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(a, false))
}

// Webhook godoc
// @Summary      Payment gateway webhook
// @Description  Verifies the signature over the raw body, then applies the payment outcome (idempotent)
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Success      200 {object} WebhookResult
// @Failure      400 {object} response.ErrorBody
// @Failure      403 {object} response.ErrorBody
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_BODY", "could not read body")
		return
	}
	signature := c.GetHeader(h.service.SignatureHeader())

	res, err := h.service.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		h.loggerf("level=error msg=webhook request failed err=%v", err)
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func parseID(c *gin.Context, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", message)
		return uuid.Nil, false
	}
	return id, true
}
