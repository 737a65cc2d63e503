package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// StripeProvider implements Provider against the Stripe API.
//
// It carries its own client.API instead of setting the package-global
// stripe.Key, so tests and tooling can construct providers with different
// keys without cross-talk.
type StripeProvider struct {
	api       *client.API
	returnURL string
}

// NewStripeProvider creates a Stripe-backed provider.
// apiKey is a secret key (sk_test_... / sk_live_...); returnURL is where the
// embedded checkout redirects after payment, and should contain the
// {CHECKOUT_SESSION_ID} template placeholder.
func NewStripeProvider(apiKey, returnURL string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api, returnURL: returnURL}
}

// CreateCheckoutSession opens an embedded-mode subscription checkout session
// for one price and returns the client secret the frontend mounts.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, priceID string, quantity int64) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		UIMode: stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		ReturnURL: stripe.String(p.returnURL),
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		// Bad price id and provider outage are one error class here; the
		// caller decides whether to retry.
		return "", fmt.Errorf("%w: create session: %s", ErrProvider, stripeMessage(err))
	}
	return sess.ClientSecret, nil
}

// GetCheckoutSession fetches canonical session state with line items
// expanded, so the purchased price id is available without a second call.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("line_items")

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		if isResourceMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: get session: %s", ErrProvider, stripeMessage(err))
	}

	ps := &ProviderSession{
		ID:            sess.ID,
		Status:        mapSessionStatus(sess.Status),
		CustomerEmail: sess.CustomerEmail,
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		ps.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.Subscription != nil {
		ps.SubscriptionID = sess.Subscription.ID
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 && sess.LineItems.Data[0].Price != nil {
		ps.PriceID = sess.LineItems.Data[0].Price.ID
	}
	return ps, nil
}

// GetPrice resolves one price id to its currency and unit amount.
func (p *StripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	pr, err := p.api.Prices.Get(priceID, &stripe.PriceParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		if isResourceMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrPriceNotFound, priceID)
		}
		return nil, fmt.Errorf("%w: get price: %s", ErrProvider, stripeMessage(err))
	}
	return &Price{
		Currency:   string(pr.Currency),
		UnitAmount: pr.UnitAmount,
	}, nil
}

// mapSessionStatus narrows Stripe's session status to the closed internal set.
// Anything unrecognized is treated as still open: safe, because open sessions
// never mutate state.
func mapSessionStatus(s stripe.CheckoutSessionStatus) SessionStatus {
	switch s {
	case stripe.CheckoutSessionStatusComplete:
		return SessionComplete
	case stripe.CheckoutSessionStatusExpired:
		return SessionExpired
	default:
		return SessionOpen
	}
}

// isResourceMissing reports whether err is Stripe's "no such object" error.
func isResourceMissing(err error) bool {
	var sErr *stripe.Error
	return errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodeResourceMissing
}

// stripeMessage extracts Stripe's human-readable message when available.
func stripeMessage(err error) string {
	var sErr *stripe.Error
	if errors.As(err, &sErr) && sErr.Msg != "" {
		return sErr.Msg
	}
	return err.Error()
}
