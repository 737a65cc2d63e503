package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for checkout operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the checkout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/billing/checkout/sessions", h.CreateSession)
	r.POST("/billing/prices/lookup", h.LookupPrices)
	r.POST("/billing/checkout/reconcile", h.ReconcileSession)
}

// CreateSession handles POST /v1/billing/checkout/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		PriceID  string `json:"priceId"`
		Quantity int64  `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "priceId is required",
		})
		return
	}

	clientSecret, err := h.service.CreateSession(c.Request.Context(), req.PriceID, req.Quantity)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"clientSecret": clientSecret})
}

// LookupPrices handles POST /v1/billing/prices/lookup
func (h *Handler) LookupPrices(c *gin.Context) {
	var req struct {
		PriceIDs []string `json:"priceIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "priceIds is required",
		})
		return
	}

	prices, err := h.service.LookupPrices(c.Request.Context(), req.PriceIDs)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

// ReconcileSession handles POST /v1/billing/checkout/reconcile
func (h *Handler) ReconcileSession(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "sessionId is required",
		})
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), req.SessionID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// renderError maps service errors onto HTTP responses. Provider payloads and
// internal identifiers never leak outward; terminal operator-facing failures
// get a generic body and a detailed server-side log line upstream.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "Checkout session not found",
		})
	case errors.Is(err, ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{
			"error":   "session_expired",
			"message": "Checkout session has expired",
		})
	case errors.Is(err, ErrUnmappedPrice):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "configuration_error",
			"message": "Checkout could not be completed",
		})
	case errors.Is(err, ErrAccountResolution):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Checkout could not be completed",
		})
	case errors.Is(err, ErrProvider):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "provider_error",
			"message": "Payment provider is unavailable",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}
