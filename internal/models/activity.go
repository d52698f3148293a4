// Package models provides persisted data models for the portfolio ledger.
package models

import (
	"time"

	"github.com/portfolio-ledger/internal/types"
)

// ActivityEvent is one executed instruction against a portfolio
type ActivityEvent struct {
	ID          string                `json:"id" ch:"id"`
	Portfolio   string                `json:"portfolio" ch:"portfolio"`
	Owner       string                `json:"owner" ch:"owner"`
	Instruction types.InstructionName `json:"instruction" ch:"instruction"`
	Signer      string                `json:"signer,omitempty" ch:"signer"`
	TipAmount   uint64                `json:"tipAmount" ch:"tip_amount"`
	ExecutedAt  time.Time             `json:"executedAt" ch:"executed_at"`
}
