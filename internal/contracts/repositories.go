package contracts

import (
	"context"
	"time"
)

// PostRepository persists fetched posts with their filter outcome and
// answers the cross-poll dedup question.
type PostRepository interface {
	// SavePost records a post together with its filter verdict. Saving the
	// same post id twice is a no-op.
	SavePost(ctx context.Context, post *Post, passed bool, reason string) error

	// Seen reports whether a post id has already been processed.
	Seen(ctx context.Context, postID string) (bool, error)
}

// SignalRepository persists final signals.
type SignalRepository interface {
	SaveSignal(ctx context.Context, sig *FinalSignal) error

	// HasRecentSignal reports whether a signal for this ticker was produced
	// within the window, regardless of whether it became a position.
	HasRecentSignal(ctx context.Context, ticker string, window time.Duration) (bool, error)
}

// PositionRepository persists positions. Open positions must be
// reconstructable from storage alone after a crash.
type PositionRepository interface {
	Insert(ctx context.Context, pos *Position) (int64, error)
	Close(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error
	UpdatePrice(ctx context.Context, id int64, price, pnl float64) error
	OpenPositions(ctx context.Context) ([]Position, error)
	RealizedPnL(ctx context.Context) (float64, error)
}

// AuditRepository is the append-only audit sink. Records are never mutated
// or deleted.
type AuditRepository interface {
	Record(ctx context.Context, rec *AuditRecord) error
	ByPost(ctx context.Context, postID string) ([]AuditRecord, error)
}

// PendingOrder is a stock order queued while the market was closed.
type PendingOrder struct {
	ID        int64
	Order     OrderRequest
	CreatedAt time.Time
}

// PendingOrderRepository persists the queue of orders waiting for the
// market to open.
type PendingOrderRepository interface {
	SavePending(ctx context.Context, order *OrderRequest) error
	ListPending(ctx context.Context) ([]PendingOrder, error)
	DeletePending(ctx context.Context, id int64) error
}
