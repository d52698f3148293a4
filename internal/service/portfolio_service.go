// Package service implements the portfolio record store: the operations on a
// portfolio, their authorization and their side effects.
package service

import (
	"context"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/config"
	"github.com/portfolio-ledger/internal/graph"
	"github.com/portfolio-ledger/internal/logging"
	"github.com/portfolio-ledger/internal/models"
	"github.com/portfolio-ledger/internal/storage"
	"github.com/portfolio-ledger/internal/types"
)

// Repository interfaces for dependency injection

// AccountStore persists portfolio accounts
type AccountStore interface {
	Create(ctx context.Context, record *account.Record) error
	Get(ctx context.Context, address solana.PublicKey) (*account.Record, error)
	Update(ctx context.Context, address solana.PublicKey, fn func(*account.Portfolio) error) (*account.Record, error)
}

// ViewCache caches portfolio views. Set keeps an entry whose version is the
// same or newer than the given one.
type ViewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, version int64, value interface{}) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// ReplayGuard rejects envelope signatures that were already used
type ReplayGuard interface {
	Claim(ctx context.Context, signature string) (bool, error)
}

// ActivityLog records executed instructions
type ActivityLog interface {
	Insert(ctx context.Context, events ...*models.ActivityEvent) error
	ListByPortfolio(ctx context.Context, portfolio string, limit int) ([]*models.ActivityEvent, error)
}

// VouchGraph records approved vouches as graph edges
type VouchGraph interface {
	RecordVouch(ctx context.Context, voucher, portfolio, owner, comment string, at time.Time) error
	VouchedFor(ctx context.Context, voucher string) ([]graph.Endorsement, error)
}

// PortfolioService executes portfolio operations. The cache, replay guard,
// activity log and vouch graph are optional.
type PortfolioService struct {
	programID solana.PublicKey
	space     int
	window    time.Duration

	store    AccountStore
	cache    ViewCache
	replay   ReplayGuard
	activity ActivityLog
	vouches  VouchGraph

	now func() time.Time
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(program config.ProgramConfig, store AccountStore) *PortfolioService {
	space := program.AccountSpace
	if space <= 0 {
		space = account.DefaultSpace
	}
	window := program.SignatureWindow
	if window <= 0 {
		window = config.DefaultSignatureWindow
	}
	return &PortfolioService{
		programID: program.ID,
		space:     space,
		window:    window,
		store:     store,
		now:       time.Now,
	}
}

// SetCache enables the portfolio view cache
func (s *PortfolioService) SetCache(cache ViewCache) { s.cache = cache }

// SetReplayGuard enables replay protection for signed envelopes
func (s *PortfolioService) SetReplayGuard(guard ReplayGuard) { s.replay = guard }

// SetActivityLog enables the instruction activity log
func (s *PortfolioService) SetActivityLog(log ActivityLog) { s.activity = log }

// SetVouchGraph enables the vouch graph
func (s *PortfolioService) SetVouchGraph(g VouchGraph) { s.vouches = g }

// ProgramID returns the program identity addresses are derived under
func (s *PortfolioService) ProgramID() solana.PublicKey { return s.programID }

// DerivedAddress is the portfolio address of an owner
type DerivedAddress struct {
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
	ProgramID string `json:"programId"`
}

// Derive computes the portfolio address of owner
func (s *PortfolioService) Derive(owner solana.PublicKey) (*DerivedAddress, error) {
	addr, bump, err := account.DeriveAddress(s.programID, owner)
	if err != nil {
		return nil, types.NewServiceError(types.CodeInvalidPublicKey, "cannot derive portfolio address for %s: %v", owner, err)
	}
	return &DerivedAddress{Address: addr.String(), Bump: bump, ProgramID: s.programID.String()}, nil
}

// Initialize creates the empty portfolio of owner at its derived address
func (s *PortfolioService) Initialize(ctx context.Context, owner solana.PublicKey) (*account.Record, error) {
	addr, bump, err := account.DeriveAddress(s.programID, owner)
	if err != nil {
		return nil, types.NewServiceError(types.CodeInvalidPublicKey, "cannot derive portfolio address for %s: %v", owner, err)
	}

	record := &account.Record{Address: addr, Portfolio: account.NewPortfolio(owner, bump)}
	if err := s.checkSpace(record.Portfolio); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio": addr.String(),
		"owner":     owner.String(),
		"bump":      bump,
	}).Info("Portfolio initialized")

	s.afterCommit(ctx, record, types.InstructionInitialize, &owner, 0)
	return record, nil
}

// CreatePortfolio replaces the biography
func (s *PortfolioService) CreatePortfolio(ctx context.Context, address, signer solana.PublicKey, bio string) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionCreatePortfolio, &signer, 0, func(p *account.Portfolio) error {
		if err := requireOwner(p, signer); err != nil {
			return err
		}
		p.Bio = bio
		return nil
	})
}

// StoreLinks appends links in the given order
func (s *PortfolioService) StoreLinks(ctx context.Context, address, signer solana.PublicKey, links []string) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionStoreLinks, &signer, 0, func(p *account.Portfolio) error {
		if err := requireOwner(p, signer); err != nil {
			return err
		}
		p.Links = append(p.Links, links...)
		return nil
	})
}

// StoreImage replaces the image URL
func (s *PortfolioService) StoreImage(ctx context.Context, address, signer solana.PublicKey, imageURL string) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionStoreImage, &signer, 0, func(p *account.Portfolio) error {
		if err := requireOwner(p, signer); err != nil {
			return err
		}
		p.ImageURL = imageURL
		return nil
	})
}

// RequestVouch queues an endorsement request. Anyone may submit one.
func (s *PortfolioService) RequestVouch(ctx context.Context, address solana.PublicKey, req account.VouchRequest) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionRequestVouch, nil, 0, func(p *account.Portfolio) error {
		p.VouchRequests = append(p.VouchRequests, req)
		return nil
	})
}

// ApproveVouch moves the first pending request from voucher into the vouches
func (s *PortfolioService) ApproveVouch(ctx context.Context, address, signer, voucher solana.PublicKey) (*account.Record, error) {
	var approved account.Vouch
	record, err := s.mutate(ctx, address, types.InstructionApproveVouch, &signer, 0, func(p *account.Portfolio) error {
		if err := requireOwner(p, signer); err != nil {
			return err
		}
		i := p.FindVouchRequest(voucher)
		if i < 0 {
			return types.NewServiceError(types.CodeVouchRequestNotFound, "no pending vouch request from %s", voucher).
				WithDetail("vouchedBy", voucher.String())
		}
		req := p.VouchRequests[i]
		p.VouchRequests = append(p.VouchRequests[:i], p.VouchRequests[i+1:]...)
		approved = account.Vouch(req)
		p.Vouches = append(p.Vouches, approved)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.vouches != nil {
		err := s.vouches.RecordVouch(ctx, voucher.String(), address.String(), record.Portfolio.Owner.String(), approved.Comment, record.UpdatedAt)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("portfolio", address.String()).Warn("Failed to record vouch edge")
		}
	}
	return record, nil
}

// SendMessage appends a message from sender
func (s *PortfolioService) SendMessage(ctx context.Context, address, sender solana.PublicKey, content string) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionSendMessage, &sender, 0, func(p *account.Portfolio) error {
		p.Messages = append(p.Messages, account.Message{Sender: sender, Content: content})
		return nil
	})
}

// Tip adds amount to the tip total. Anyone may tip, and a zero tip changes nothing.
func (s *PortfolioService) Tip(ctx context.Context, address solana.PublicKey, amount uint64) (*account.Record, error) {
	return s.mutate(ctx, address, types.InstructionTip, nil, amount, func(p *account.Portfolio) error {
		if p.TipAmount > math.MaxUint64-amount {
			return types.NewServiceError(types.CodeTipOverflow, "tip of %d overflows total %d", amount, p.TipAmount)
		}
		p.TipAmount += amount
		return nil
	})
}

// GetPortfolio returns the view of the portfolio at address
func (s *PortfolioService) GetPortfolio(ctx context.Context, address solana.PublicKey) (*PortfolioView, error) {
	logger := logging.FromContext(ctx).WithField("portfolio", address.String())
	key := storage.PortfolioCacheKey(address.String())

	if s.cache != nil {
		var view PortfolioView
		found, err := s.cache.Get(ctx, key, &view)
		if err != nil {
			logger.WithError(err).Warn("Portfolio cache read failed")
		} else if found {
			return &view, nil
		}
	}

	record, err := s.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	view := NewPortfolioView(record)

	if s.cache != nil {
		if _, err := s.cache.Set(ctx, key, viewVersion(record), view); err != nil {
			logger.WithError(err).Warn("Portfolio cache write failed")
		}
	}
	return view, nil
}

// GetPortfolioByOwner returns the portfolio view of owner
func (s *PortfolioService) GetPortfolioByOwner(ctx context.Context, owner solana.PublicKey) (*PortfolioView, error) {
	addr, _, err := account.DeriveAddress(s.programID, owner)
	if err != nil {
		return nil, types.NewServiceError(types.CodeInvalidPublicKey, "cannot derive portfolio address for %s: %v", owner, err)
	}
	return s.GetPortfolio(ctx, addr)
}

// GetActivity returns the most recent instructions executed on a portfolio
func (s *PortfolioService) GetActivity(ctx context.Context, address solana.PublicKey, limit int) ([]*models.ActivityEvent, error) {
	if s.activity == nil {
		return []*models.ActivityEvent{}, nil
	}
	return s.activity.ListByPortfolio(ctx, address.String(), limit)
}

// GetVouchesBy returns the portfolios voucher has an approved vouch on
func (s *PortfolioService) GetVouchesBy(ctx context.Context, voucher solana.PublicKey) ([]graph.Endorsement, error) {
	if s.vouches == nil {
		return []graph.Endorsement{}, nil
	}
	return s.vouches.VouchedFor(ctx, voucher.String())
}

// mutate applies fn to the stored portfolio under the store's row lock, enforcing the
// account space, then runs the post-commit side effects
func (s *PortfolioService) mutate(
	ctx context.Context,
	address solana.PublicKey,
	name types.InstructionName,
	signer *solana.PublicKey,
	tip uint64,
	fn func(*account.Portfolio) error,
) (*account.Record, error) {
	record, err := s.store.Update(ctx, address, func(p *account.Portfolio) error {
		if err := fn(p); err != nil {
			return err
		}
		return s.checkSpace(p)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio":   address.String(),
		"instruction": string(name),
	}).Debug("Instruction applied")

	s.afterCommit(ctx, record, name, signer, tip)
	return record, nil
}

func (s *PortfolioService) checkSpace(p *account.Portfolio) error {
	if size := p.Size(); size > s.space {
		return types.NewServiceError(types.CodeAccountSpaceExceeded, "portfolio needs %d bytes, account space is %d", size, s.space).
			WithDetail("size", size).
			WithDetail("space", s.space)
	}
	return nil
}

// afterCommit writes the new view through to the cache and logs the activity.
// Failures are logged only; the mutation is already durable.
func (s *PortfolioService) afterCommit(ctx context.Context, record *account.Record, name types.InstructionName, signer *solana.PublicKey, tip uint64) {
	logger := logging.FromContext(ctx).WithField("portfolio", record.Address.String())

	if s.cache != nil {
		key := storage.PortfolioCacheKey(record.Address.String())
		if _, err := s.cache.Set(ctx, key, viewVersion(record), NewPortfolioView(record)); err != nil {
			logger.WithError(err).Warn("Failed to refresh portfolio cache")
			if err := s.cache.Invalidate(ctx, key); err != nil {
				logger.WithError(err).Warn("Failed to invalidate portfolio cache")
			}
		}
	}

	if s.activity != nil {
		event := &models.ActivityEvent{
			ID:          uuid.NewString(),
			Portfolio:   record.Address.String(),
			Owner:       record.Portfolio.Owner.String(),
			Instruction: name,
			TipAmount:   tip,
			ExecutedAt:  s.now().UTC(),
		}
		if signer != nil {
			event.Signer = signer.String()
		}
		if err := s.activity.Insert(ctx, event); err != nil {
			logger.WithError(err).Warn("Failed to record instruction activity")
		}
	}
}

func requireOwner(p *account.Portfolio, signer solana.PublicKey) error {
	if !p.IsOwner(signer) {
		return types.NewServiceError(types.CodeUnauthorized, "%s is not the portfolio owner", signer).
			WithDetail("signer", signer.String())
	}
	return nil
}

// viewVersion orders cached views; the store advances UpdatedAt on every write
func viewVersion(record *account.Record) int64 {
	return record.UpdatedAt.UnixMicro()
}

// ParsePublicKey parses a base58 public key
func ParsePublicKey(field, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, types.NewServiceError(types.CodeInvalidPublicKey, "invalid %s: %q", field, value).
			WithDetail("field", field)
	}
	return key, nil
}
