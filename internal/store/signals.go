package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/redis"
)

// SignalRepository persists final signals. Recent-signal lookups go through
// the shared cache first; the signals table stays the source of truth.
type SignalRepository struct {
	pool  *pgxpool.Pool
	cache *redis.Cache
}

// NewSignalRepository creates a signal repository.
func NewSignalRepository(pool *pgxpool.Pool, cache *redis.Cache) *SignalRepository {
	return &SignalRepository{pool: pool, cache: cache}
}

// SaveSignal records a final signal and stamps the per-ticker cooldown key.
func (r *SignalRepository) SaveSignal(ctx context.Context, sig *contracts.FinalSignal) error {
	query := `
		INSERT INTO signals (
			post_id, ticker, raw_direction, final_direction, confidence,
			asset_type, mode_applied, reasoning, option_expiry, option_strike
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var expiry *string
	var strike *float64
	if sig.Option != nil {
		expiry = &sig.Option.Expiry
		strike = &sig.Option.Strike
	}

	_, err := r.pool.Exec(ctx, query,
		sig.PostID, sig.Ticker, sig.RawDirection, sig.FinalDirection,
		sig.Confidence, sig.AssetType, sig.ModeApplied, sig.Reasoning,
		expiry, strike,
	)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}

	// Best effort: a cache miss falls back to the table.
	_ = r.cache.Set(ctx, redis.RecentSignalKey(sig.Ticker), time.Now().UTC(), redis.TTLDaily)

	return nil
}

// HasRecentSignal reports whether any signal for the ticker was recorded
// within the window.
func (r *SignalRepository) HasRecentSignal(ctx context.Context, ticker string, window time.Duration) (bool, error) {
	var stamped time.Time
	if found, err := r.cache.Get(ctx, redis.RecentSignalKey(ticker), &stamped); err == nil && found {
		if time.Since(stamped) < window {
			return true, nil
		}
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM signals
			WHERE ticker = $1 AND created_at > $2
		)
	`, ticker, time.Now().Add(-window)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent signals: %w", err)
	}
	return exists, nil
}
