package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestResilientProvider_TripsOnProviderFailures(t *testing.T) {
	inner := newMockProvider()
	inner.createErr = fmt.Errorf("%w: connection refused", ErrProvider)
	p := NewResilientProvider(inner)

	// Five consecutive upstream failures trip the circuit.
	for i := 0; i < 5; i++ {
		_, err := p.CreateCheckoutSession(context.Background(), "price_pro", 1)
		if !errors.Is(err, ErrProvider) {
			t.Fatalf("Expected ErrProvider, got %v", err)
		}
	}

	calls := inner.createCalls
	_, err := p.CreateCheckoutSession(context.Background(), "price_pro", 1)
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Expected ErrProvider while open, got %v", err)
	}
	if inner.createCalls != calls {
		t.Error("Open circuit should not reach the inner provider")
	}
}

func TestResilientProvider_NotFoundIsNotAFailure(t *testing.T) {
	inner := newMockProvider()
	p := NewResilientProvider(inner)

	// Unknown sessions and prices are answers, not outages.
	for i := 0; i < 20; i++ {
		if _, err := p.GetCheckoutSession(context.Background(), "cs_nope"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("Expected ErrSessionNotFound, got %v", err)
		}
		if _, err := p.GetPrice(context.Background(), "price_nope"); !errors.Is(err, ErrPriceNotFound) {
			t.Fatalf("Expected ErrPriceNotFound, got %v", err)
		}
	}

	// The circuits stay closed the whole time.
	inner.setSession(completedSession("cs_ok"))
	if _, err := p.GetCheckoutSession(context.Background(), "cs_ok"); err != nil {
		t.Errorf("Expected call to pass through, got %v", err)
	}
}

func TestResilientProvider_IndependentCircuits(t *testing.T) {
	inner := newMockProvider()
	inner.getSessionErr = fmt.Errorf("%w: timeout", ErrProvider)
	p := NewResilientProvider(inner)

	for i := 0; i < 5; i++ {
		p.GetCheckoutSession(context.Background(), "cs_1")
	}

	// Session fetches are shedding, but session creation still flows.
	if _, err := p.CreateCheckoutSession(context.Background(), "price_pro", 1); err != nil {
		t.Errorf("Create circuit should be unaffected, got %v", err)
	}
}
