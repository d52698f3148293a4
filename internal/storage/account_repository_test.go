package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/types"
)

var testProgramID = solana.MustPublicKeyFromBase58("5WueEVLErzfDRck9tRxBijEfU8Q3XL2bLPXdoGEXLJTj")

func newTestRecord(t *testing.T) *account.Record {
	t.Helper()
	owner := solana.NewWallet().PublicKey()
	addr, bump, err := account.DeriveAddress(testProgramID, owner)
	require.NoError(t, err)
	return &account.Record{Address: addr, Portfolio: account.NewPortfolio(owner, bump)}
}

func TestAccountRepository_CreateGet(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)

	require.NoError(t, repo.Create(ctx, record))
	assert.False(t, record.CreatedAt.IsZero())

	got, err := repo.Get(ctx, record.Address)
	require.NoError(t, err)
	assert.Equal(t, record.Portfolio.Owner, got.Portfolio.Owner)
	assert.Equal(t, record.Portfolio.Bump, got.Portfolio.Bump)
	assert.Empty(t, got.Portfolio.Links)
}

func TestAccountRepository_CreateTwice(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)

	require.NoError(t, repo.Create(ctx, record))
	err := repo.Create(ctx, record)
	assert.True(t, types.IsCode(err, types.CodeAccountAlreadyInitialized))
}

func TestAccountRepository_GetMissing(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)

	_, err := repo.Get(testContext(t), solana.NewWallet().PublicKey())
	assert.True(t, types.IsCode(err, types.CodePortfolioNotFound))
}

func TestAccountRepository_Update(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)
	require.NoError(t, repo.Create(ctx, record))

	time.Sleep(5 * time.Millisecond)
	updated, err := repo.Update(ctx, record.Address, func(p *account.Portfolio) error {
		p.Bio = "builder"
		p.Links = append(p.Links, "https://example.com")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(record.UpdatedAt))

	got, err := repo.Get(ctx, record.Address)
	require.NoError(t, err)
	assert.Equal(t, "builder", got.Portfolio.Bio)
	assert.Equal(t, []string{"https://example.com"}, got.Portfolio.Links)
}

func TestAccountRepository_UpdateAborted(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)
	require.NoError(t, repo.Create(ctx, record))

	abort := errors.New("abort")
	_, err := repo.Update(ctx, record.Address, func(p *account.Portfolio) error {
		p.Bio = "never stored"
		return abort
	})
	assert.ErrorIs(t, err, abort)

	got, err := repo.Get(ctx, record.Address)
	require.NoError(t, err)
	assert.Empty(t, got.Portfolio.Bio)
}

func TestAccountRepository_ConcurrentTips(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)
	require.NoError(t, repo.Create(ctx, record))

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := repo.Update(ctx, record.Address, func(p *account.Portfolio) error {
				p.TipAmount += 10
				return nil
			})
			errs <- err
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	got, err := repo.Get(ctx, record.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*10), got.Portfolio.TipAmount)
}

func TestAccountRepository_UpdatedAtIncreases(t *testing.T) {
	repo := NewAccountRepository(newTestPostgres(t), testProgramID)
	ctx := testContext(t)
	record := newTestRecord(t)
	require.NoError(t, repo.Create(ctx, record))

	last := record.UpdatedAt
	for i := 0; i < 5; i++ {
		updated, err := repo.Update(ctx, record.Address, func(p *account.Portfolio) error {
			p.TipAmount++
			return nil
		})
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(last), "update %d did not advance updated_at", i)
		last = updated.UpdatedAt
	}
}

// stubRow feeds scanRecord without a database
type stubRow struct {
	data []byte
	at   time.Time
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.data
	*dest[1].(*time.Time) = r.at
	*dest[2].(*time.Time) = r.at
	return nil
}

func TestScanRecord(t *testing.T) {
	repo := NewAccountRepository(nil, testProgramID)
	record := newTestRecord(t)
	data, err := account.Encode(record.Portfolio)
	require.NoError(t, err)
	at := time.Unix(1_700_000_000, 0).UTC()

	got, err := repo.scanRecord(record.Address, stubRow{data: data, at: at})
	require.NoError(t, err)
	assert.Equal(t, record.Portfolio.Owner, got.Portfolio.Owner)
	assert.Equal(t, at, got.UpdatedAt)

	_, err = repo.scanRecord(record.Address, stubRow{err: pgx.ErrNoRows})
	assert.True(t, types.IsCode(err, types.CodePortfolioNotFound))
}

func TestScanRecord_AddressMismatch(t *testing.T) {
	repo := NewAccountRepository(nil, testProgramID)
	record := newTestRecord(t)
	data, err := account.Encode(record.Portfolio)
	require.NoError(t, err)

	// Account data of one owner stored under another owner's address
	other := newTestRecord(t)
	_, err = repo.scanRecord(other.Address, stubRow{data: data})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derive a different address")

	// Same owner, wrong bump
	record.Portfolio.Bump--
	data, err = account.Encode(record.Portfolio)
	require.NoError(t, err)
	_, err = repo.scanRecord(record.Address, stubRow{data: data})
	assert.Error(t, err)
}
