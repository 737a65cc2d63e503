package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tapdeckhq/tapdeck/internal/circuitbreaker"
)

// Breaker operation keys, one circuit per provider call.
const (
	opCreateSession = "checkout.create"
	opGetSession    = "checkout.get"
	opGetPrice      = "price.get"
)

// Compile-time check that ResilientProvider implements Provider.
var _ Provider = (*ResilientProvider)(nil)

// ResilientProvider wraps a Provider with a circuit breaker so a provider
// outage sheds load fast instead of tying up request handlers in timeouts.
// Only ErrProvider-class failures count against the circuit; not-found and
// expired responses are successful provider answers.
type ResilientProvider struct {
	inner   Provider
	breaker *circuitbreaker.Breaker
}

// NewResilientProvider wraps inner with per-operation circuits.
func NewResilientProvider(inner Provider) *ResilientProvider {
	return &ResilientProvider{
		inner:   inner,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (p *ResilientProvider) CreateCheckoutSession(ctx context.Context, priceID string, quantity int64) (string, error) {
	if !p.breaker.Allow(opCreateSession) {
		return "", fmt.Errorf("%w: checkout temporarily unavailable", ErrProvider)
	}
	secret, err := p.inner.CreateCheckoutSession(ctx, priceID, quantity)
	p.record(opCreateSession, err)
	return secret, err
}

func (p *ResilientProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	if !p.breaker.Allow(opGetSession) {
		return nil, fmt.Errorf("%w: checkout temporarily unavailable", ErrProvider)
	}
	sess, err := p.inner.GetCheckoutSession(ctx, sessionID)
	p.record(opGetSession, err)
	return sess, err
}

func (p *ResilientProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	if !p.breaker.Allow(opGetPrice) {
		return nil, fmt.Errorf("%w: price lookup temporarily unavailable", ErrProvider)
	}
	price, err := p.inner.GetPrice(ctx, priceID)
	p.record(opGetPrice, err)
	return price, err
}

func (p *ResilientProvider) record(op string, err error) {
	if err != nil && errors.Is(err, ErrProvider) {
		p.breaker.RecordFailure(op)
		return
	}
	p.breaker.RecordSuccess(op)
}
