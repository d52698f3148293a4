package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/config"
	"github.com/portfolio-ledger/internal/graph"
	"github.com/portfolio-ledger/internal/instruction"
	"github.com/portfolio-ledger/internal/storage"
	"github.com/portfolio-ledger/internal/types"
)

var testProgramID = solana.MustPublicKeyFromBase58(config.DefaultProgramID)

type fixture struct {
	svc      *PortfolioService
	store    *mockAccountStore
	cache    *mockViewCache
	replay   *mockReplayGuard
	activity *mockActivityLog
	graph    *graph.MemoryClient
	now      time.Time
	owner    solana.PrivateKey
	address  solana.PublicKey
}

func newFixture(t *testing.T, space int) *fixture {
	t.Helper()

	f := &fixture{
		cache:    newMockViewCache(),
		replay:   &mockReplayGuard{},
		activity: &mockActivityLog{},
		graph:    graph.NewMemoryClient(),
		now:      time.UnixMilli(1_700_000_000_000).UTC(),
		owner:    solana.NewWallet().PrivateKey,
	}
	clock := func() time.Time { return f.now }
	f.store = newMockAccountStore(clock)

	f.svc = NewPortfolioService(config.ProgramConfig{
		ID:              testProgramID,
		AccountSpace:    space,
		SignatureWindow: time.Minute,
	}, f.store)
	f.svc.now = clock
	f.svc.SetCache(f.cache)
	f.svc.SetReplayGuard(f.replay)
	f.svc.SetActivityLog(f.activity)
	f.svc.SetVouchGraph(graph.NewVouchGraph(f.graph))

	addr, _, err := account.DeriveAddress(testProgramID, f.owner.PublicKey())
	require.NoError(t, err)
	f.address = addr
	return f
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	_, err := f.svc.Initialize(context.Background(), f.owner.PublicKey())
	require.NoError(t, err)
}

// exec submits ix for the fixture portfolio, signed by signer unless it is nil
func (f *fixture) exec(t *testing.T, signer solana.PrivateKey, ix instruction.Instruction) (*account.Record, error) {
	t.Helper()

	var (
		env *instruction.Envelope
		err error
	)
	if signer == nil {
		env, err = instruction.Unsigned(ix)
	} else {
		env, err = instruction.Sign(signer, f.address, ix, f.now)
	}
	require.NoError(t, err)
	return f.svc.Execute(context.Background(), f.address, env)
}

func (f *fixture) get(t *testing.T) *account.Portfolio {
	t.Helper()
	r, err := f.store.Get(context.Background(), f.address)
	require.NoError(t, err)
	return r.Portfolio
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, types.IsCode(err, code), "want %s, got %v", code, err)
}

func TestPortfolioLifecycle(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	owner := f.owner.PublicKey()
	voucher := solana.NewWallet().PublicKey()
	visitor := solana.NewWallet().PrivateKey

	record, err := f.exec(t, f.owner, instruction.Initialize{})
	require.NoError(t, err)
	assert.Equal(t, f.address, record.Address)
	assert.Equal(t, owner, f.get(t).Owner)

	_, err = f.exec(t, f.owner, instruction.CreatePortfolio{Bio: "This is my portfolio bio."})
	require.NoError(t, err)
	assert.Equal(t, "This is my portfolio bio.", f.get(t).Bio)

	links := []string{"https://myportfolio.com", "https://github.com"}
	_, err = f.exec(t, f.owner, instruction.StoreLinks{Links: links})
	require.NoError(t, err)
	assert.Equal(t, links, f.get(t).Links)

	_, err = f.exec(t, f.owner, instruction.StoreImage{ImageURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", f.get(t).ImageURL)

	req := account.VouchRequest{VouchedBy: voucher, Comment: "Great portfolio!"}
	_, err = f.exec(t, nil, instruction.RequestVouch{Request: req})
	require.NoError(t, err)
	assert.Equal(t, req, f.get(t).VouchRequests[0])

	_, err = f.exec(t, f.owner, instruction.ApproveVouch{VouchUser: voucher})
	require.NoError(t, err)
	p := f.get(t)
	assert.Equal(t, account.Vouch{VouchedBy: voucher, Comment: "Great portfolio!"}, p.Vouches[0])
	assert.Empty(t, p.VouchRequests)

	_, err = f.exec(t, visitor, instruction.SendMessage{Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, account.Message{Sender: visitor.PublicKey(), Content: "Hello"}, f.get(t).Messages[0])

	_, err = f.exec(t, nil, instruction.Tip{Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), f.get(t).TipAmount)

	_, err = f.exec(t, nil, instruction.Tip{Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, uint64(350), f.get(t).TipAmount)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	ctx := context.Background()

	record, err := f.svc.Initialize(ctx, f.owner.PublicKey())
	require.NoError(t, err)
	assert.True(t, account.VerifyAddress(testProgramID, f.owner.PublicKey(), record.Portfolio.Bump, record.Address))
	assert.Empty(t, record.Portfolio.Bio)
	assert.Zero(t, record.Portfolio.TipAmount)

	_, err = f.svc.Initialize(ctx, f.owner.PublicKey())
	assertCode(t, err, types.CodeAccountAlreadyInitialized)
}

func TestExecute_InitializeRules(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)

	_, err := f.exec(t, nil, instruction.Initialize{})
	assertCode(t, err, types.CodeMissingSigner)

	other := solana.NewWallet().PrivateKey
	_, err = f.exec(t, other, instruction.Initialize{})
	assertCode(t, err, types.CodeAddressMismatch)

	_, err = f.store.Get(context.Background(), f.address)
	assertCode(t, err, types.CodePortfolioNotFound)
}

func TestExecute_OwnerOnly(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	intruder := solana.NewWallet().PrivateKey

	ownerOnly := []instruction.Instruction{
		instruction.CreatePortfolio{Bio: "hijacked"},
		instruction.StoreLinks{Links: []string{"https://evil.example"}},
		instruction.StoreImage{ImageURL: "https://evil.example/x.png"},
		instruction.ApproveVouch{VouchUser: intruder.PublicKey()},
	}

	for _, ix := range ownerOnly {
		t.Run(string(ix.Name()), func(t *testing.T) {
			_, err := f.exec(t, intruder, ix)
			assertCode(t, err, types.CodeUnauthorized)

			_, err = f.exec(t, nil, ix)
			assertCode(t, err, types.CodeMissingSigner)
		})
	}

	p := f.get(t)
	assert.Empty(t, p.Bio)
	assert.Empty(t, p.Links)
	assert.Empty(t, p.ImageURL)
}

func TestExecute_SendMessageNeedsSigner(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)

	_, err := f.exec(t, nil, instruction.SendMessage{Content: "anonymous"})
	assertCode(t, err, types.CodeMissingSigner)
	assert.Empty(t, f.get(t).Messages)
}

func TestExecute_SignatureChecks(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()

	env, err := instruction.Sign(f.owner, f.address, instruction.CreatePortfolio{Bio: "bio"}, f.now)
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, f.address, env)
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, f.address, env)
	assertCode(t, err, types.CodeReplayedSignature)

	stale, err := instruction.Sign(f.owner, f.address, instruction.CreatePortfolio{Bio: "old"}, f.now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, f.address, stale)
	assertCode(t, err, types.CodeStaleSignature)

	tampered, err := instruction.Sign(f.owner, f.address, instruction.CreatePortfolio{Bio: "good"}, f.now)
	require.NoError(t, err)
	tampered.Data, err = instruction.Encode(instruction.CreatePortfolio{Bio: "evil"})
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, f.address, tampered)
	assertCode(t, err, types.CodeInvalidSignature)

	assert.Equal(t, "bio", f.get(t).Bio)
}

func TestExecute_InvalidInstruction(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)

	_, err := f.svc.Execute(context.Background(), f.address, &instruction.Envelope{Data: []byte{1, 2, 3}})
	assertCode(t, err, types.CodeInvalidInstruction)
}

func TestOperationsOnMissingPortfolio(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)

	_, err := f.exec(t, nil, instruction.Tip{Amount: 1})
	assertCode(t, err, types.CodePortfolioNotFound)

	_, err = f.exec(t, f.owner, instruction.CreatePortfolio{Bio: "x"})
	assertCode(t, err, types.CodePortfolioNotFound)

	_, err = f.svc.GetPortfolio(context.Background(), f.address)
	assertCode(t, err, types.CodePortfolioNotFound)
}

func TestApproveVouch(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()
	owner := f.owner.PublicKey()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	_, err := f.svc.ApproveVouch(ctx, f.address, owner, a)
	assertCode(t, err, types.CodeVouchRequestNotFound)

	for _, req := range []account.VouchRequest{
		{VouchedBy: a, Comment: "first from a"},
		{VouchedBy: b, Comment: "from b"},
		{VouchedBy: a, Comment: "second from a"},
	} {
		_, err := f.svc.RequestVouch(ctx, f.address, req)
		require.NoError(t, err)
	}

	record, err := f.svc.ApproveVouch(ctx, f.address, owner, a)
	require.NoError(t, err)

	p := record.Portfolio
	assert.Equal(t, []account.Vouch{{VouchedBy: a, Comment: "first from a"}}, p.Vouches)
	assert.Equal(t, []account.VouchRequest{
		{VouchedBy: b, Comment: "from b"},
		{VouchedBy: a, Comment: "second from a"},
	}, p.VouchRequests)

	writes := f.graph.Queries()
	require.Len(t, writes, 1)
	assert.Equal(t, a.String(), writes[0].Params["voucher"])
	assert.Equal(t, f.address.String(), writes[0].Params["portfolio"])
	assert.Equal(t, "first from a", writes[0].Params["comment"])
}

func TestTip(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()

	record, err := f.svc.Tip(ctx, f.address, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), record.Portfolio.TipAmount)

	_, err = f.svc.Tip(ctx, f.address, 7)
	require.NoError(t, err)
	_, err = f.exec(t, nil, instruction.Tip{Amount: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.get(t).TipAmount)

	_, err = f.svc.Tip(ctx, f.address, math.MaxUint64-12)
	require.NoError(t, err)

	_, err = f.svc.Tip(ctx, f.address, 6)
	assertCode(t, err, types.CodeTipOverflow)
	assert.Equal(t, uint64(math.MaxUint64-5), f.get(t).TipAmount)

	// Nothing to add, so no overflow even at the edge
	_, err = f.svc.Tip(ctx, f.address, 0)
	require.NoError(t, err)

	_, err = f.svc.Tip(ctx, f.address, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), f.get(t).TipAmount)
}

func TestAccountSpaceExceeded(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()
	owner := f.owner.PublicKey()

	_, err := f.svc.CreatePortfolio(ctx, f.address, owner, "short bio")
	require.NoError(t, err)

	_, err = f.svc.CreatePortfolio(ctx, f.address, owner, strings.Repeat("x", account.DefaultSpace))
	assertCode(t, err, types.CodeAccountSpaceExceeded)
	assert.Equal(t, "short bio", f.get(t).Bio)

	sender := solana.NewWallet().PublicKey()
	var lastErr error
	for i := 0; i < 50 && lastErr == nil; i++ {
		_, lastErr = f.svc.SendMessage(ctx, f.address, sender, "a message that takes some room")
	}
	assertCode(t, lastErr, types.CodeAccountSpaceExceeded)
	assert.LessOrEqual(t, f.get(t).Size(), account.DefaultSpace)
}

func TestGetPortfolio_Cache(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()
	key := storage.PortfolioCacheKey(f.address.String())
	assert.True(t, f.cache.has(key), "initialize writes the view through")

	require.NoError(t, f.cache.Invalidate(ctx, key))
	view, err := f.svc.GetPortfolio(ctx, f.address)
	require.NoError(t, err)
	assert.Equal(t, f.address.String(), view.Address)
	assert.Equal(t, 0, f.cache.hits)
	assert.True(t, f.cache.has(key))

	cached, err := f.svc.GetPortfolio(ctx, f.address)
	require.NoError(t, err)
	assert.Equal(t, view.Owner, cached.Owner)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.Tip(ctx, f.address, 1_500_000_000)
	require.NoError(t, err)

	// Writes refresh the cached view instead of leaving a hole
	view, err = f.svc.GetPortfolio(ctx, f.address)
	require.NoError(t, err)
	assert.Equal(t, 2, f.cache.hits)
	assert.Equal(t, "1500000000", view.TipAmount)
	assert.Equal(t, "1.5", view.TipAmountSol)
}

func TestGetPortfolio_SlowReaderDoesNotCacheStaleView(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	ctx := context.Background()

	require.NoError(t, f.cache.Invalidate(ctx, storage.PortfolioCacheKey(f.address.String())))
	store := newPausingStore(f.store)
	f.svc.store = store

	done := make(chan *PortfolioView, 1)
	go func() {
		view, err := f.svc.GetPortfolio(ctx, f.address)
		assert.NoError(t, err)
		done <- view
	}()

	// The reader holds the old row while a write commits
	<-store.loaded
	_, err := f.svc.CreatePortfolio(ctx, f.address, f.owner.PublicKey(), "new bio")
	require.NoError(t, err)
	close(store.release)

	stale := <-done
	assert.Equal(t, "", stale.Bio)

	view, err := f.svc.GetPortfolio(ctx, f.address)
	require.NoError(t, err)
	assert.Equal(t, "new bio", view.Bio)
	assert.Equal(t, 1, f.cache.hits)
}

func TestGetPortfolio_CacheDown(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	f.cache.failAll = true
	ctx := context.Background()

	_, err := f.svc.StoreImage(ctx, f.address, f.owner.PublicKey(), "https://example.com/me.png")
	require.NoError(t, err)

	view, err := f.svc.GetPortfolio(ctx, f.address)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/me.png", view.ImageURL)
}

func TestGetPortfolioByOwner(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)

	view, err := f.svc.GetPortfolioByOwner(context.Background(), f.owner.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, f.address.String(), view.Address)
	assert.Equal(t, f.owner.PublicKey().String(), view.Owner)
}

func TestActivity(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	visitor := solana.NewWallet().PrivateKey

	_, err := f.exec(t, f.owner, instruction.Initialize{})
	require.NoError(t, err)
	_, err = f.exec(t, nil, instruction.Tip{Amount: 42})
	require.NoError(t, err)
	_, err = f.exec(t, visitor, instruction.SendMessage{Content: "hi"})
	require.NoError(t, err)

	events, err := f.svc.GetActivity(context.Background(), f.address, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, types.InstructionSendMessage, events[0].Instruction)
	assert.Equal(t, visitor.PublicKey().String(), events[0].Signer)
	assert.Equal(t, types.InstructionTip, events[1].Instruction)
	assert.Equal(t, uint64(42), events[1].TipAmount)
	assert.Empty(t, events[1].Signer)
	assert.Equal(t, types.InstructionInitialize, events[2].Instruction)
	assert.Equal(t, f.owner.PublicKey().String(), events[2].Owner)
	assert.NotEmpty(t, events[2].ID)
}

func TestSideEffectFailuresDoNotFailOperation(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)
	f.initialize(t)
	f.activity.fail = true
	f.cache.failAll = true
	f.graph.FailWith(assert.AnError)
	ctx := context.Background()
	voucher := solana.NewWallet().PublicKey()

	_, err := f.svc.RequestVouch(ctx, f.address, account.VouchRequest{VouchedBy: voucher, Comment: "ok"})
	require.NoError(t, err)
	_, err = f.svc.ApproveVouch(ctx, f.address, f.owner.PublicKey(), voucher)
	require.NoError(t, err)
	assert.Len(t, f.get(t).Vouches, 1)
}

func TestOptionalDependencies(t *testing.T) {
	store := newMockAccountStore(time.Now)
	svc := NewPortfolioService(config.ProgramConfig{ID: testProgramID}, store)
	owner := solana.NewWallet().PublicKey()
	ctx := context.Background()

	record, err := svc.Initialize(ctx, owner)
	require.NoError(t, err)

	events, err := svc.GetActivity(ctx, record.Address, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	vouched, err := svc.GetVouchesBy(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, vouched)

	view, err := svc.GetPortfolio(ctx, record.Address)
	require.NoError(t, err)
	assert.Equal(t, "0", view.TipAmountSol)
}

func TestDerive(t *testing.T) {
	f := newFixture(t, account.DefaultSpace)

	d, err := f.svc.Derive(f.owner.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, f.address.String(), d.Address)
	assert.Equal(t, testProgramID.String(), d.ProgramID)
	assert.True(t, account.VerifyAddress(testProgramID, f.owner.PublicKey(), d.Bump, f.address))
}

func TestParsePublicKey(t *testing.T) {
	key, err := ParsePublicKey("owner", config.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, testProgramID, key)

	_, err = ParsePublicKey("owner", "not-base58-0OIl")
	assertCode(t, err, types.CodeInvalidPublicKey)
}

func TestLamportsToSol(t *testing.T) {
	tests := []struct {
		lamports uint64
		want     string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{1_000_000_000, "1"},
		{math.MaxUint64, "18446744073.709551615"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LamportsToSol(tt.lamports).String())
	}
}
