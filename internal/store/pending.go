package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkearny/contrabot/internal/contracts"
)

// PendingOrderRepository persists stock orders queued while the market was
// closed.
type PendingOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPendingOrderRepository creates a pending order repository.
func NewPendingOrderRepository(pool *pgxpool.Pool) *PendingOrderRepository {
	return &PendingOrderRepository{pool: pool}
}

// SavePending queues an order for the next market-open cycle.
func (r *PendingOrderRepository) SavePending(ctx context.Context, order *contracts.OrderRequest) error {
	var expiry *string
	var strike *float64
	if order.Option != nil {
		expiry = &order.Option.Expiry
		strike = &order.Option.Strike
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO pending_orders (
			post_id, ticker, side, qty, asset_type, direction,
			notional_usd, option_expiry, option_strike
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.PostID, order.Ticker, order.Side, order.Qty, order.AssetType,
		order.Direction, order.NotionalUSD, expiry, strike)
	if err != nil {
		return fmt.Errorf("failed to save pending order: %w", err)
	}
	return nil
}

// ListPending returns queued orders oldest first.
func (r *PendingOrderRepository) ListPending(ctx context.Context) ([]contracts.PendingOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, post_id, ticker, side, qty, asset_type, direction,
		       notional_usd, option_expiry, option_strike, created_at
		FROM pending_orders
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	pending := make([]contracts.PendingOrder, 0)
	for rows.Next() {
		var p contracts.PendingOrder
		var expiry *string
		var strike *float64
		err := rows.Scan(
			&p.ID, &p.Order.PostID, &p.Order.Ticker, &p.Order.Side, &p.Order.Qty,
			&p.Order.AssetType, &p.Order.Direction, &p.Order.NotionalUSD,
			&expiry, &strike, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending order: %w", err)
		}
		if expiry != nil {
			p.Order.Option = &contracts.OptionDetails{Expiry: *expiry}
			if strike != nil {
				p.Order.Option.Strike = *strike
			}
		}
		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending orders: %w", err)
	}

	return pending, nil
}

// DeletePending removes a queued order once it has been submitted or
// permanently rejected.
func (r *PendingOrderRepository) DeletePending(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pending_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending order: %w", err)
	}
	return nil
}
