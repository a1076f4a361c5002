package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full table set, applied idempotently at startup or via the
// migrate command.
const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id           TEXT PRIMARY KEY,
	subreddit    TEXT NOT NULL,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	author_karma INTEGER,
	upvotes      INTEGER NOT NULL DEFAULT 0,
	is_self      BOOLEAN NOT NULL DEFAULT TRUE,
	filter_pass  BOOLEAN NOT NULL,
	filter_reason TEXT NOT NULL DEFAULT '',
	posted_at    TIMESTAMPTZ NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signals (
	id              BIGSERIAL PRIMARY KEY,
	post_id         TEXT NOT NULL REFERENCES posts(id),
	ticker          TEXT NOT NULL,
	raw_direction   TEXT NOT NULL,
	final_direction TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	asset_type      TEXT NOT NULL,
	mode_applied    TEXT NOT NULL,
	reasoning       TEXT NOT NULL DEFAULT '',
	option_expiry   TEXT,
	option_strike   DOUBLE PRECISION,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_signals_ticker_created
	ON signals (ticker, created_at DESC);

CREATE TABLE IF NOT EXISTS positions (
	id            BIGSERIAL PRIMARY KEY,
	ticker        TEXT NOT NULL,
	asset_type    TEXT NOT NULL,
	direction     TEXT NOT NULL,
	qty           DOUBLE PRECISION NOT NULL,
	entry_price   DOUBLE PRECISION NOT NULL,
	current_price DOUBLE PRECISION NOT NULL,
	status        TEXT NOT NULL DEFAULT 'open',
	order_id      TEXT NOT NULL DEFAULT '',
	opened_at     TIMESTAMPTZ NOT NULL,
	closed_at     TIMESTAMPTZ,
	pnl           DOUBLE PRECISION
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_ticker
	ON positions (ticker) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS audit_records (
	id         BIGSERIAL PRIMARY KEY,
	post_id    TEXT NOT NULL,
	stage      TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_post ON audit_records (post_id, id);

CREATE TABLE IF NOT EXISTS pending_orders (
	id           BIGSERIAL PRIMARY KEY,
	post_id      TEXT NOT NULL,
	ticker       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          DOUBLE PRECISION NOT NULL,
	asset_type   TEXT NOT NULL,
	direction    TEXT NOT NULL,
	notional_usd DOUBLE PRECISION NOT NULL,
	option_expiry TEXT,
	option_strike DOUBLE PRECISION,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
