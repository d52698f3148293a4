package service

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/portfolio-ledger/internal/account"
	apperrors "github.com/portfolio-ledger/internal/errors"
	"github.com/portfolio-ledger/internal/instruction"
	"github.com/portfolio-ledger/internal/logging"
	"github.com/portfolio-ledger/internal/types"
)

// Execute verifies a submitted envelope for the portfolio at address, decodes its
// instruction and applies it
func (s *PortfolioService) Execute(ctx context.Context, address solana.PublicKey, env *instruction.Envelope) (*account.Record, error) {
	if err := env.Verify(address, s.now(), s.window); err != nil {
		return nil, err
	}

	ix, err := instruction.Decode(env.Data)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio":   address.String(),
		"instruction": string(ix.Name()),
	})
	if env.IsSigned() {
		logger = logger.WithField("signer", env.Signer.String())
	}
	ctx = logging.WithLogger(ctx, logger)

	if err := s.claimSignature(ctx, env); err != nil {
		return nil, err
	}

	switch ix := ix.(type) {
	case instruction.Initialize:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		derived, _, err := account.DeriveAddress(s.programID, signer)
		if err != nil {
			return nil, types.NewServiceError(types.CodeInvalidPublicKey, "cannot derive portfolio address for %s: %v", signer, err)
		}
		if !derived.Equals(address) {
			return nil, types.NewServiceError(types.CodeAddressMismatch, "%s is not the portfolio address of %s", address, signer).
				WithDetail("expected", derived.String())
		}
		return s.Initialize(ctx, signer)

	case instruction.CreatePortfolio:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		return s.CreatePortfolio(ctx, address, signer, ix.Bio)

	case instruction.StoreLinks:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		return s.StoreLinks(ctx, address, signer, ix.Links)

	case instruction.StoreImage:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		return s.StoreImage(ctx, address, signer, ix.ImageURL)

	case instruction.RequestVouch:
		return s.RequestVouch(ctx, address, ix.Request)

	case instruction.ApproveVouch:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		return s.ApproveVouch(ctx, address, signer, ix.VouchUser)

	case instruction.SendMessage:
		signer, err := requireSigner(env, ix.Name())
		if err != nil {
			return nil, err
		}
		return s.SendMessage(ctx, address, signer, ix.Content)

	case instruction.Tip:
		return s.Tip(ctx, address, ix.Amount)

	default:
		return nil, types.NewServiceError(types.CodeInvalidInstruction, "unsupported instruction %s", ix.Name())
	}
}

// claimSignature rejects a signature already used within the window. Without a
// replay guard every verified signature is accepted.
func (s *PortfolioService) claimSignature(ctx context.Context, env *instruction.Envelope) error {
	if s.replay == nil || !env.IsSigned() {
		return nil
	}

	fresh, err := s.replay.Claim(ctx, env.Signature.String())
	if err != nil {
		return apperrors.Categorize(err)
	}
	if !fresh {
		return types.NewServiceError(types.CodeReplayedSignature, "signature already used").
			WithDetail("signature", env.Signature.String())
	}
	return nil
}

func requireSigner(env *instruction.Envelope, name types.InstructionName) (solana.PublicKey, error) {
	if !env.IsSigned() {
		return solana.PublicKey{}, types.NewServiceError(types.CodeMissingSigner, "%s requires a signer", name)
	}
	return *env.Signer, nil
}
