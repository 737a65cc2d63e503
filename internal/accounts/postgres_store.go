package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/tapdeckhq/tapdeck/internal/validation"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id            VARCHAR(40) PRIMARY KEY,
			email         VARCHAR(255) NOT NULL UNIQUE,
			name          VARCHAR(200) NOT NULL DEFAULT '',
			profile_slots INTEGER NOT NULL DEFAULT 1,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Create inserts a new account, rejecting duplicate emails.
func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, profile_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, validation.NormalizeEmail(a.Email), a.Name, a.ProfileSlots, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, profile_slots, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

// GetByEmail retrieves an account by normalized email.
func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, profile_slots, created_at, updated_at
		FROM accounts WHERE email = $1
	`, validation.NormalizeEmail(email))
	return scanAccount(row)
}

// SetProfileSlots sets the account's slot count to an absolute value.
func (p *PostgresStore) SetProfileSlots(ctx context.Context, id string, slots int) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET profile_slots = $2, updated_at = NOW() WHERE id = $1
	`, id, slots)
	if err != nil {
		return fmt.Errorf("set profile slots: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.ProfileSlots, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if createdAt.Valid {
		a.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time
	}
	return &a, nil
}
