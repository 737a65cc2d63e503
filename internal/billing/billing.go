// Package billing implements the checkout and subscription flow for tapdeck.
//
// The provider (Stripe) owns checkout-session truth. This package opens
// sessions, resolves catalog prices for display, and reconciles completed
// sessions into internal subscription state exactly once per session. The
// processed_sessions ledger is the idempotency record: repeated reconcile
// calls for the same session replay the stored result instead of re-applying
// effects.
package billing

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrValidation           = errors.New("billing: invalid input")
	ErrProvider             = errors.New("billing: payment provider error")
	ErrSessionNotFound      = errors.New("billing: checkout session not found")
	ErrSessionExpired       = errors.New("billing: checkout session expired")
	ErrPriceNotFound        = errors.New("billing: price not found")
	ErrUnmappedPrice        = errors.New("billing: no plan mapped to price")
	ErrAccountResolution    = errors.New("billing: account resolution failed")
	ErrSessionProcessed     = errors.New("billing: session already reconciled")
	ErrProcessedNotFound    = errors.New("billing: no reconciliation record for session")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
)

// SessionStatus is the lifecycle state of a provider checkout session.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

// SubscriptionStatus is the billing state of an account's subscription.
type SubscriptionStatus string

const (
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
)

// Subscription is the per-account record of current plan and billing status.
// Exactly one live row per account; plan changes upsert, cancellation flips
// the status but never deletes the row.
type Subscription struct {
	ID                     string             `json:"id"`
	AccountID              string             `json:"accountId"`
	PlanID                 string             `json:"planId"`
	Status                 SubscriptionStatus `json:"status"`
	ProviderSubscriptionID string             `json:"providerSubscriptionId,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// ProcessedSession is the write-once idempotency ledger row for a reconciled
// checkout session. The first reconcile call to insert it wins; everyone
// else replays it.
type ProcessedSession struct {
	SessionID           string    `json:"sessionId"`
	PlanID              string    `json:"planId"`
	SubscriptionUpdated bool      `json:"subscriptionUpdated"`
	CustomerEmail       string    `json:"customerEmail,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Price is the display metadata for a catalog price.
type Price struct {
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unitAmount"`
}

// ProviderSession is the canonical session state fetched from the provider.
// Read-only to this system; never trust a status the client claims.
type ProviderSession struct {
	ID             string
	Status         SessionStatus
	PriceID        string
	SubscriptionID string
	CustomerEmail  string
}

// ReconcileResult is the denormalized outcome returned to the confirmation
// page. All concurrent reconcile calls for one session converge on an
// identical payload once any one of them completes.
type ReconcileResult struct {
	Status              SessionStatus `json:"status"`
	SubscriptionUpdated bool          `json:"subscriptionUpdated"`
	PlanName            string        `json:"planName,omitempty"`
	PlanCategory        string        `json:"planCategory,omitempty"`
	CustomerEmail       string        `json:"customerEmail,omitempty"`
}

// Store persists subscriptions and the processed-session ledger.
//
// InsertProcessedSession is the single point of mutual exclusion in the
// reconcile flow: implementations must guarantee at most one insert per
// session id ever succeeds, returning ErrSessionProcessed to the losers.
type Store interface {
	GetProcessedSession(ctx context.Context, sessionID string) (*ProcessedSession, error)
	InsertProcessedSession(ctx context.Context, ps *ProcessedSession) error
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	GetSubscriptionByAccount(ctx context.Context, accountID string) (*Subscription, error)
}

// Provider is the external payment service (Stripe in production).
type Provider interface {
	// CreateCheckoutSession opens a new session and returns its client secret.
	CreateCheckoutSession(ctx context.Context, priceID string, quantity int64) (clientSecret string, err error)
	// GetCheckoutSession fetches canonical session state, including the
	// purchased price and customer contact.
	GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error)
	// GetPrice resolves one price id to display metadata. Returns
	// ErrPriceNotFound for unknown ids, ErrProvider for upstream failures.
	GetPrice(ctx context.Context, priceID string) (*Price, error)
}

// AccountRef identifies the internal account owning a purchase.
type AccountRef struct {
	ID    string
	Email string
}

// AccountDirectory resolves provider-reported customers to internal accounts
// and applies plan capability grants. Implemented by the accounts package.
type AccountDirectory interface {
	ResolveByEmail(ctx context.Context, email string) (*AccountRef, error)
	// GrantProfileSlots sets the account's profile slot count. Setting (not
	// incrementing) keeps the grant idempotent under concurrent reconciles.
	GrantProfileSlots(ctx context.Context, accountID string, slots int) error
}
