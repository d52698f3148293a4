package graph

import (
	"context"
	"fmt"
	"time"
)

const recordVouchCypher = `
MERGE (v:Identity {key: $voucher})
MERGE (p:Portfolio {address: $portfolio})
  ON CREATE SET p.owner = $owner
MERGE (o:Identity {key: $owner})
MERGE (o)-[:OWNS]->(p)
MERGE (v)-[e:VOUCHED_FOR]->(p)
SET e.comment = $comment, e.approvedAt = $approvedAt
`

const vouchedForCypher = `
MATCH (:Identity {key: $voucher})-[e:VOUCHED_FOR]->(p:Portfolio)
RETURN p.address AS portfolio, p.owner AS owner, e.comment AS comment
ORDER BY e.approvedAt DESC
`

// Endorsement is an approved vouch as seen from the voucher's side
type Endorsement struct {
	Portfolio string `json:"portfolio"`
	Owner     string `json:"owner"`
	Comment   string `json:"comment"`
}

// VouchGraph maintains VOUCHED_FOR edges between identities and portfolios
type VouchGraph struct {
	client Client
}

// NewVouchGraph creates a vouch graph on top of client
func NewVouchGraph(client Client) *VouchGraph {
	return &VouchGraph{client: client}
}

// RecordVouch upserts the edge voucher -> portfolio. Repeating it for the same
// pair overwrites the comment.
func (g *VouchGraph) RecordVouch(ctx context.Context, voucher, portfolio, owner, comment string, at time.Time) error {
	_, err := g.client.ExecuteWrite(ctx, recordVouchCypher, map[string]any{
		"voucher":    voucher,
		"portfolio":  portfolio,
		"owner":      owner,
		"comment":    comment,
		"approvedAt": at.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("record vouch edge: %w", err)
	}
	return nil
}

// VouchedFor lists the portfolios voucher has an approved vouch on, newest first
func (g *VouchGraph) VouchedFor(ctx context.Context, voucher string) ([]Endorsement, error) {
	res, err := g.client.ExecuteRead(ctx, vouchedForCypher, map[string]any{"voucher": voucher})
	if err != nil {
		return nil, fmt.Errorf("query vouch edges: %w", err)
	}

	out := make([]Endorsement, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, Endorsement{
			Portfolio: rec.String("portfolio"),
			Owner:     rec.String("owner"),
			Comment:   rec.String("comment"),
		})
	}
	return out, nil
}
