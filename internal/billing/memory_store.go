package billing

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory billing store for demo/development mode.
// The mutex makes InsertProcessedSession an atomic check-and-set, matching
// the unique-constraint semantics of the Postgres store.
type MemoryStore struct {
	mu        sync.RWMutex
	processed map[string]*ProcessedSession // by session ID
	subs      map[string]*Subscription     // by account ID
}

// NewMemoryStore creates a new in-memory billing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: make(map[string]*ProcessedSession),
		subs:      make(map[string]*Subscription),
	}
}

func (m *MemoryStore) GetProcessedSession(ctx context.Context, sessionID string) (*ProcessedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ps, ok := m.processed[sessionID]
	if !ok {
		return nil, ErrProcessedNotFound
	}
	cp := *ps
	return &cp, nil
}

func (m *MemoryStore) InsertProcessedSession(ctx context.Context, ps *ProcessedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.processed[ps.SessionID]; exists {
		return ErrSessionProcessed
	}
	cp := *ps
	m.processed[ps.SessionID] = &cp
	return nil
}

func (m *MemoryStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *sub
	if existing, ok := m.subs[sub.AccountID]; ok {
		// Keep the original row identity; replace the rest.
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
		cp.UpdatedAt = time.Now()
	}
	m.subs[sub.AccountID] = &cp
	return nil
}

func (m *MemoryStore) GetSubscriptionByAccount(ctx context.Context, accountID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[accountID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

// SubscriptionCount returns the number of subscription rows. Test helper.
func (m *MemoryStore) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
