package billing

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed billing store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the billing tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id                       VARCHAR(40) PRIMARY KEY,
			account_id               VARCHAR(40) NOT NULL UNIQUE,
			plan_id                  VARCHAR(40) NOT NULL,
			status                   VARCHAR(20) NOT NULL DEFAULT 'incomplete',
			provider_subscription_id VARCHAR(255),
			created_at               TIMESTAMPTZ DEFAULT NOW(),
			updated_at               TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS processed_sessions (
			session_id           VARCHAR(255) PRIMARY KEY,
			plan_id              VARCHAR(40) NOT NULL,
			subscription_updated BOOLEAN NOT NULL DEFAULT FALSE,
			customer_email       VARCHAR(255),
			created_at           TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_plan ON subscriptions(plan_id);
	`)
	return err
}

// GetProcessedSession retrieves the ledger row for a session id.
func (p *PostgresStore) GetProcessedSession(ctx context.Context, sessionID string) (*ProcessedSession, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, plan_id, subscription_updated, customer_email, created_at
		FROM processed_sessions WHERE session_id = $1
	`, sessionID)

	var ps ProcessedSession
	var email sql.NullString
	var createdAt sql.NullTime
	err := row.Scan(&ps.SessionID, &ps.PlanID, &ps.SubscriptionUpdated, &email, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrProcessedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processed session: %w", err)
	}
	if email.Valid {
		ps.CustomerEmail = email.String
	}
	if createdAt.Valid {
		ps.CreatedAt = createdAt.Time
	}
	return &ps, nil
}

// InsertProcessedSession inserts the write-once ledger row. The primary key
// on session_id is the point of mutual exclusion: when two reconcilers race,
// exactly one insert lands and the other gets ErrSessionProcessed.
func (p *PostgresStore) InsertProcessedSession(ctx context.Context, ps *ProcessedSession) error {
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO processed_sessions (session_id, plan_id, subscription_updated, customer_email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`, ps.SessionID, ps.PlanID, ps.SubscriptionUpdated, nullStringOrValue(ps.CustomerEmail), ps.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert processed session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionProcessed
	}
	return nil
}

// UpsertSubscription writes the account's single live subscription row,
// replacing plan and status if one already exists.
func (p *PostgresStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_id, status, provider_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			plan_id                  = EXCLUDED.plan_id,
			status                   = EXCLUDED.status,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			updated_at               = NOW()
	`,
		sub.ID, sub.AccountID, sub.PlanID, string(sub.Status),
		nullStringOrValue(sub.ProviderSubscriptionID), sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByAccount retrieves an account's subscription.
func (p *PostgresStore) GetSubscriptionByAccount(ctx context.Context, accountID string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, account_id, plan_id, status, provider_subscription_id, created_at, updated_at
		FROM subscriptions WHERE account_id = $1
	`, accountID)

	var sub Subscription
	var status string
	var providerSubID sql.NullString
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.AccountID, &sub.PlanID, &status, &providerSubID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	sub.Status = SubscriptionStatus(status)
	if providerSubID.Valid {
		sub.ProviderSubscriptionID = providerSubID.String
	}
	if createdAt.Valid {
		sub.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		sub.UpdatedAt = updatedAt.Time
	}
	return &sub, nil
}

// nullStringOrValue returns a sql.NullString: valid if s is non-empty.
func nullStringOrValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
