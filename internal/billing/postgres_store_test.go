package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tapdeckhq/tapdeck/internal/testutil"
)

func TestPostgresStore_LedgerExclusivity(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	ps := &ProcessedSession{
		SessionID:           "cs_pg_1",
		PlanID:              "pro",
		SubscriptionUpdated: true,
		CustomerEmail:       "kai@example.com",
		CreatedAt:           time.Now(),
	}
	if err := store.InsertProcessedSession(ctx, ps); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertProcessedSession(ctx, &ProcessedSession{
		SessionID: "cs_pg_1",
		PlanID:    "team",
		CreatedAt: time.Now(),
	})
	if !errors.Is(err, ErrSessionProcessed) {
		t.Fatalf("Expected ErrSessionProcessed, got %v", err)
	}

	got, err := store.GetProcessedSession(ctx, "cs_pg_1")
	if err != nil {
		t.Fatalf("GetProcessedSession failed: %v", err)
	}
	if got.PlanID != "pro" {
		t.Errorf("Expected first writer's plan pro, got %q", got.PlanID)
	}
	if got.CustomerEmail != "kai@example.com" {
		t.Errorf("Expected stored customer email, got %q", got.CustomerEmail)
	}
}

func TestPostgresStore_ConcurrentLedgerInserts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	const n = 10
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			err := store.InsertProcessedSession(ctx, &ProcessedSession{
				SessionID: "cs_pg_race",
				PlanID:    "pro",
				CreatedAt: time.Now(),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrSessionProcessed) {
				t.Errorf("Unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly 1 winning insert, got %d", wins)
	}
}

func TestPostgresStore_UpsertSubscription(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	sub := &Subscription{
		ID:                     "sub_pg_1",
		AccountID:              "acct_pg_1",
		PlanID:                 "solo",
		Status:                 SubscriptionActive,
		ProviderSubscriptionID: "stripe_sub_1",
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Second upsert for the same account must update, not duplicate.
	upgrade := &Subscription{
		ID:        "sub_pg_2",
		AccountID: "acct_pg_1",
		PlanID:    "team",
		Status:    SubscriptionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.UpsertSubscription(ctx, upgrade); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := store.GetSubscriptionByAccount(ctx, "acct_pg_1")
	if err != nil {
		t.Fatalf("GetSubscriptionByAccount failed: %v", err)
	}
	if got.ID != "sub_pg_1" {
		t.Errorf("Expected original row id sub_pg_1, got %q", got.ID)
	}
	if got.PlanID != "team" {
		t.Errorf("Expected plan team after upgrade, got %q", got.PlanID)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscriptions WHERE account_id = $1", "acct_pg_1").Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 subscription row, got %d", count)
	}
}

func TestPostgresStore_SubscriptionNotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)

	_, err := store.GetSubscriptionByAccount(context.Background(), "acct_pg_missing")
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("Expected ErrSubscriptionNotFound, got %v", err)
	}
}
