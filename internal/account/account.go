// Package account defines the portfolio record kept at each owner's derived address
// and its on-ledger binary layout.
package account

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Vouch is an approved endorsement of a portfolio
type Vouch struct {
	VouchedBy solana.PublicKey `json:"vouchedBy"`
	Comment   string           `json:"comment"`
}

// VouchRequest is an endorsement waiting for the owner's approval
type VouchRequest struct {
	VouchedBy solana.PublicKey `json:"vouchedBy"`
	Comment   string           `json:"comment"`
}

// Message is a note left on a portfolio by any signer
type Message struct {
	Sender  solana.PublicKey `json:"sender"`
	Content string           `json:"content"`
}

// Portfolio is the per-owner record. Field order matches the account layout.
type Portfolio struct {
	Owner         solana.PublicKey `json:"owner"`
	Bio           string           `json:"bio"`
	Links         []string         `json:"links"`
	ImageURL      string           `json:"imageUrl"`
	Vouches       []Vouch          `json:"vouches"`
	VouchRequests []VouchRequest   `json:"vouchRequests"`
	Messages      []Message        `json:"messages"`
	TipAmount     uint64           `json:"tipAmount"`
	Bump          uint8            `json:"bump"`
}

// NewPortfolio returns an empty record owned by owner
func NewPortfolio(owner solana.PublicKey, bump uint8) *Portfolio {
	return &Portfolio{
		Owner:         owner,
		Links:         []string{},
		Vouches:       []Vouch{},
		VouchRequests: []VouchRequest{},
		Messages:      []Message{},
		Bump:          bump,
	}
}

// IsOwner reports whether key is the portfolio authority
func (p *Portfolio) IsOwner(key solana.PublicKey) bool {
	return p.Owner.Equals(key)
}

// FindVouchRequest returns the index of the first pending request from voucher, or -1
func (p *Portfolio) FindVouchRequest(voucher solana.PublicKey) int {
	for i, req := range p.VouchRequests {
		if req.VouchedBy.Equals(voucher) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so a failed mutation never leaks into the caller's record
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Links = append([]string{}, p.Links...)
	c.Vouches = append([]Vouch{}, p.Vouches...)
	c.VouchRequests = append([]VouchRequest{}, p.VouchRequests...)
	c.Messages = append([]Message{}, p.Messages...)
	return &c
}

// Record is a stored portfolio together with its derived address
type Record struct {
	Address   solana.PublicKey
	Portfolio *Portfolio
	CreatedAt time.Time
	UpdatedAt time.Time
}
