package service

import (
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-ledger/internal/account"
)

// PortfolioView is the JSON representation of a stored portfolio
type PortfolioView struct {
	Address       string                 `json:"address"`
	Owner         string                 `json:"owner"`
	Bio           string                 `json:"bio"`
	Links         []string               `json:"links"`
	ImageURL      string                 `json:"imageUrl"`
	Vouches       []account.Vouch        `json:"vouches"`
	VouchRequests []account.VouchRequest `json:"vouchRequests"`
	Messages      []account.Message      `json:"messages"`
	TipAmount     string                 `json:"tipAmount"`
	TipAmountSol  string                 `json:"tipAmountSol"`
	Bump          uint8                  `json:"bump"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// NewPortfolioView builds the view of a record
func NewPortfolioView(record *account.Record) *PortfolioView {
	p := record.Portfolio.Clone()
	return &PortfolioView{
		Address:       record.Address.String(),
		Owner:         p.Owner.String(),
		Bio:           p.Bio,
		Links:         p.Links,
		ImageURL:      p.ImageURL,
		Vouches:       p.Vouches,
		VouchRequests: p.VouchRequests,
		Messages:      p.Messages,
		TipAmount:     strconv.FormatUint(p.TipAmount, 10),
		TipAmountSol:  LamportsToSol(p.TipAmount).String(),
		Bump:          p.Bump,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

// LamportsToSol converts lamports to SOL without losing precision
func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}
