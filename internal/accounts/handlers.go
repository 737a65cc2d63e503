package accounts

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tapdeckhq/tapdeck/internal/idgen"
	"github.com/tapdeckhq/tapdeck/internal/validation"
)

// Handler provides HTTP endpoints for account management.
type Handler struct {
	store Store
}

// NewHandler creates a new account handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up admin-only account routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/accounts", h.CreateAccount)
	r.GET("/accounts/:id", h.GetAccount)
}

// CreateAccount handles POST /v1/admin/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email required"})
		return
	}

	email := validation.NormalizeEmail(req.Email)
	if !validation.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "not a valid email address"})
		return
	}

	now := time.Now()
	a := &Account{
		ID:           idgen.WithPrefix("acct_"),
		Email:        email,
		Name:         validation.SanitizeString(req.Name, 200),
		ProfileSlots: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.Create(c.Request.Context(), a); err != nil {
		if err == ErrEmailTaken {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create account"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": a})
}

// GetAccount handles GET /v1/admin/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	a, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrAccountNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": a})
}
