// Package accounts stores tapdeck account records.
//
// Billing resolves the owning account of a purchase by the provider-reported
// customer email, and applies plan capability grants (profile slots) here.
package accounts

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrAccountNotFound = errors.New("accounts: not found")
	ErrEmailTaken      = errors.New("accounts: email already registered")
)

// Account represents a tapdeck user account.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProfileSlots int       `json:"profileSlots"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists account data.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// SetProfileSlots sets the account's slot count to an absolute value.
	SetProfileSlots(ctx context.Context, id string, slots int) error
}
