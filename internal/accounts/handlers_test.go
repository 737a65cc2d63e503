package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlerTest() (*gin.Engine, *MemoryStore) {
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	handler := NewHandler(store)

	r := gin.New()
	admin := r.Group("/v1/admin")
	handler.RegisterAdminRoutes(admin)

	return r, store
}

func TestHandler_CreateAccount_201(t *testing.T) {
	router, _ := setupHandlerTest()

	body, _ := json.Marshal(gin.H{"email": "Kai@Example.com", "name": "Kai"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Account Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "kai@example.com", resp.Account.Email)
	assert.Equal(t, 1, resp.Account.ProfileSlots)
	assert.NotEmpty(t, resp.Account.ID)
}

func TestHandler_CreateAccount_InvalidEmail(t *testing.T) {
	router, _ := setupHandlerTest()

	body, _ := json.Marshal(gin.H{"email": "not-an-email"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestHandler_CreateAccount_DuplicateEmail(t *testing.T) {
	router, store := setupHandlerTest()
	_ = store.Create(context.Background(), &Account{ID: "acct_1", Email: "kai@example.com"})

	body, _ := json.Marshal(gin.H{"email": "kai@example.com"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestHandler_GetAccount(t *testing.T) {
	router, store := setupHandlerTest()
	_ = store.Create(context.Background(), &Account{ID: "acct_1", Email: "kai@example.com", Name: "Kai"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/accounts/acct_1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Account Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Kai", resp.Account.Name)
}

func TestHandler_GetAccount_404(t *testing.T) {
	router, _ := setupHandlerTest()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/accounts/acct_missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}
