package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkearny/contrabot/internal/contracts"
)

// PositionRepository persists positions. The partial unique index on open
// tickers backs up the ledger's in-memory uniqueness invariant.
type PositionRepository struct {
	pool *pgxpool.Pool
}

// NewPositionRepository creates a position repository.
func NewPositionRepository(pool *pgxpool.Pool) *PositionRepository {
	return &PositionRepository{pool: pool}
}

// Insert stores a new open position and returns its id.
func (r *PositionRepository) Insert(ctx context.Context, pos *contracts.Position) (int64, error) {
	query := `
		INSERT INTO positions (
			ticker, asset_type, direction, qty, entry_price,
			current_price, status, order_id, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		pos.Ticker, pos.AssetType, pos.Direction, pos.Qty, pos.EntryPrice,
		pos.CurrentPrice, pos.Status, pos.OrderID, pos.OpenedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}

	return id, nil
}

// Close marks a position closed with its exit price and realized P&L.
func (r *PositionRepository) Close(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET status = $1, current_price = $2, pnl = $3, closed_at = $4
		WHERE id = $5 AND status = $6
	`

	tag, err := r.pool.Exec(ctx, query,
		contracts.PositionClosed, exitPrice, pnl, closedAt, id, contracts.PositionOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %d is not open", id)
	}

	return nil
}

// UpdatePrice persists a fresh mark and unrealized P&L for an open position.
func (r *PositionRepository) UpdatePrice(ctx context.Context, id int64, price, pnl float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE positions SET current_price = $1, pnl = $2 WHERE id = $3 AND status = $4
	`, price, pnl, id, contracts.PositionOpen)
	if err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	return nil
}

// OpenPositions returns every open position.
func (r *PositionRepository) OpenPositions(ctx context.Context) ([]contracts.Position, error) {
	query := `
		SELECT id, ticker, asset_type, direction, qty, entry_price,
		       current_price, status, order_id, opened_at, closed_at, pnl
		FROM positions
		WHERE status = $1
		ORDER BY opened_at ASC
	`

	rows, err := r.pool.Query(ctx, query, contracts.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]contracts.Position, 0)
	for rows.Next() {
		var pos contracts.Position
		err := rows.Scan(
			&pos.ID, &pos.Ticker, &pos.AssetType, &pos.Direction, &pos.Qty,
			&pos.EntryPrice, &pos.CurrentPrice, &pos.Status, &pos.OrderID,
			&pos.OpenedAt, &pos.ClosedAt, &pos.PnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	return positions, nil
}

// RealizedPnL sums the P&L of all closed positions.
func (r *PositionRepository) RealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM positions WHERE status = $1
	`, contracts.PositionClosed).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}
