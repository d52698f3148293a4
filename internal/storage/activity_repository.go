package storage

import (
	"context"
	"fmt"

	"github.com/portfolio-ledger/internal/models"
	"github.com/portfolio-ledger/internal/types"
)

// DefaultActivityLimit is used when a caller asks for a non-positive number of events
const DefaultActivityLimit = 50

// MaxActivityLimit caps a single activity page
const MaxActivityLimit = 500

// ActivityRepository appends executed instructions to ClickHouse
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert appends events in one batch
func (r *ActivityRepository) Insert(ctx context.Context, events ...*models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO instruction_activity (id, portfolio, owner, instruction, signer, tip_amount, executed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(e.ID, e.Portfolio, e.Owner, string(e.Instruction), e.Signer, e.TipAmount, e.ExecutedAt); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ListByPortfolio returns the most recent events of a portfolio, newest first
func (r *ActivityRepository) ListByPortfolio(ctx context.Context, portfolio string, limit int) ([]*models.ActivityEvent, error) {
	limit = ClampActivityLimit(limit)

	query := `
		SELECT id, portfolio, owner, instruction, signer, tip_amount, executed_at
		FROM instruction_activity
		WHERE portfolio = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, portfolio, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	events := make([]*models.ActivityEvent, 0, limit)
	for rows.Next() {
		var (
			e           models.ActivityEvent
			instruction string
		)
		if err := rows.Scan(&e.ID, &e.Portfolio, &e.Owner, &instruction, &e.Signer, &e.TipAmount, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Instruction = types.InstructionName(instruction)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return events, nil
}

// ClampActivityLimit maps a requested page size into [1, MaxActivityLimit]
func ClampActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultActivityLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return limit
	}
}
