package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/types"
)

// AccountRepository persists portfolio accounts as their encoded account data.
// Loaded accounts must sit at the address derived from their owner and bump
// under programID.
type AccountRepository struct {
	db        *PostgresDB
	programID solana.PublicKey
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB, programID solana.PublicKey) *AccountRepository {
	return &AccountRepository{db: db, programID: programID}
}

// timestamp returns the current time at Postgres precision
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func notFound(address solana.PublicKey) error {
	return types.NewServiceError(types.CodePortfolioNotFound, "portfolio not found: %s", address).
		WithDetail("address", address.String())
}

// Create stores a new account. An existing account at the same address is left
// untouched and ACCOUNT_ALREADY_INITIALIZED is returned.
func (r *AccountRepository) Create(ctx context.Context, record *account.Record) error {
	data, err := account.Encode(record.Portfolio)
	if err != nil {
		return err
	}

	now := timestamp()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO portfolio_accounts (address, owner, bump, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		record.Address.String(),
		record.Portfolio.Owner.String(),
		int16(record.Portfolio.Bump),
		data,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return types.NewServiceError(types.CodeAccountAlreadyInitialized, "portfolio already initialized: %s", record.Address).
			WithDetail("address", record.Address.String())
	}

	return nil
}

// Get retrieves an account by address
func (r *AccountRepository) Get(ctx context.Context, address solana.PublicKey) (*account.Record, error) {
	query := `
		SELECT data, created_at, updated_at
		FROM portfolio_accounts
		WHERE address = $1
	`

	return r.scanRecord(address, r.db.Pool().QueryRow(ctx, query, address.String()))
}

// Update applies fn to the decoded account under a row lock and persists the result.
// If fn returns an error nothing is written.
func (r *AccountRepository) Update(ctx context.Context, address solana.PublicKey, fn func(*account.Portfolio) error) (*account.Record, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	query := `
		SELECT data, created_at, updated_at
		FROM portfolio_accounts
		WHERE address = $1
		FOR UPDATE
	`

	record, err := r.scanRecord(address, tx.QueryRow(ctx, query, address.String()))
	if err != nil {
		return nil, err
	}

	if err := fn(record.Portfolio); err != nil {
		return nil, err
	}

	data, err := account.Encode(record.Portfolio)
	if err != nil {
		return nil, err
	}
	// updated_at versions cached views, so it must grow with every write
	now := timestamp()
	if !now.After(record.UpdatedAt) {
		now = record.UpdatedAt.Add(time.Microsecond)
	}
	record.UpdatedAt = now

	_, err = tx.Exec(ctx, `UPDATE portfolio_accounts SET data = $2, updated_at = $3 WHERE address = $1`,
		address.String(), data, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update portfolio account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit portfolio update: %w", err)
	}

	return record, nil
}

// scanRecord decodes a row of (data, created_at, updated_at) stored at address
func (r *AccountRepository) scanRecord(address solana.PublicKey, row pgx.Row) (*account.Record, error) {
	var data []byte
	record := &account.Record{Address: address}

	if err := row.Scan(&data, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(address)
		}
		return nil, fmt.Errorf("failed to get portfolio account: %w", err)
	}

	p, err := account.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt account data at %s: %w", address, err)
	}
	if !account.VerifyAddress(r.programID, p.Owner, p.Bump, address) {
		return nil, fmt.Errorf("corrupt account data at %s: owner %s and bump %d derive a different address", address, p.Owner, p.Bump)
	}
	record.Portfolio = p
	return record, nil
}
