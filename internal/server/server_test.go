package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tapdeckhq/tapdeck/internal/billing"
	"github.com/tapdeckhq/tapdeck/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockProvider implements billing.Provider for testing
type mockProvider struct {
	sessions map[string]*billing.ProviderSession
}

func (m *mockProvider) CreateCheckoutSession(_ context.Context, priceID string, _ int64) (string, error) {
	return "cs_secret_" + priceID, nil
}

func (m *mockProvider) GetCheckoutSession(_ context.Context, sessionID string) (*billing.ProviderSession, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (m *mockProvider) GetPrice(_ context.Context, priceID string) (*billing.Price, error) {
	return nil, fmt.Errorf("%w: %s", billing.ErrPriceNotFound, priceID)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		StripeSecretKey:   "sk_test_dummy",
		CheckoutReturnURL: config.DefaultReturnURL,
		PriceIDSolo:       "price_solo_test",
		PriceIDPro:        "price_pro_test",
		PriceIDTeam:       "price_team_test",
		AdminSecret:       "test-admin-secret",
		RateLimitRPM:      6000,
	}
}

// newTestServer creates a server with mock dependencies
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithProvider(&mockProvider{
		sessions: map[string]*billing.ProviderSession{},
	}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestBillingRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	expected := []string{
		"POST:/v1/billing/checkout/sessions",
		"POST:/v1/billing/prices/lookup",
		"POST:/v1/billing/checkout/reconcile",
		"POST:/v1/admin/accounts",
		"GET:/v1/admin/accounts/:id",
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

func TestAdminRoutesDisabledWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSecret = ""
	s, err := New(cfg, WithProvider(&mockProvider{}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	for _, route := range s.router.Routes() {
		if route.Path == "/v1/admin/accounts" {
			t.Error("Admin routes should not be registered without ADMIN_SECRET")
		}
	}
}

// ---------------------------------------------------------------------------
// Admin auth tests
// ---------------------------------------------------------------------------

func TestAdminRequiresSecret(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(gin.H{"email": "kai@example.com"})

	// Without secret
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without admin secret, got %d", w.Code)
	}

	// With wrong secret
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "wrong")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong admin secret, got %d", w.Code)
	}

	// With correct secret
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "test-admin-secret")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 with correct admin secret, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// End-to-end reconcile through the full middleware stack
// ---------------------------------------------------------------------------

func TestReconcileThroughServer(t *testing.T) {
	provider := &mockProvider{
		sessions: map[string]*billing.ProviderSession{
			"cs_e2e": {
				ID:            "cs_e2e",
				Status:        billing.SessionComplete,
				PriceID:       "price_pro_test",
				CustomerEmail: "kai@example.com",
			},
		},
	}
	s, err := New(testConfig(), WithProvider(provider))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	// Provision the account through the admin API first.
	body, _ := json.Marshal(gin.H{"email": "kai@example.com", "name": "Kai"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/admin/accounts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "test-admin-secret")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Account creation failed: %d %s", w.Code, w.Body.String())
	}

	// Reconcile the completed session.
	body, _ = json.Marshal(gin.H{"sessionId": "cs_e2e"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/billing/checkout/reconcile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp billing.ReconcileResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.PlanName != "Pro" || resp.PlanCategory != "business" {
		t.Errorf("Unexpected reconcile payload: %+v", resp)
	}
	if !resp.SubscriptionUpdated {
		t.Error("Expected subscriptionUpdated true")
	}

	// Security headers ride along on every response.
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected security headers on API responses, got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
}
