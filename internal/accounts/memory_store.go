package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/tapdeckhq/tapdeck/internal/validation"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory account store for demo/development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string // normalized email → ID
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := validation.NormalizeEmail(a.Email)
	if _, taken := m.byEmail[email]; taken {
		return ErrEmailTaken
	}

	cp := *a
	m.byID[a.ID] = &cp
	m.byEmail[email] = a.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[validation.NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := m.byID[id]
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) SetProfileSlots(ctx context.Context, id string, slots int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.ProfileSlots = slots
	a.UpdatedAt = time.Now()
	return nil
}
