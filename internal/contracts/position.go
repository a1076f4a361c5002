package contracts

import "time"

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderRequest is a fully specified order produced by an admitted signal.
type OrderRequest struct {
	PostID      string         `json:"post_id"`
	Ticker      string         `json:"ticker"`
	Side        OrderSide      `json:"side"`
	Qty         float64        `json:"qty"`
	AssetType   AssetType      `json:"asset_type"`
	Direction   Direction      `json:"direction"`
	NotionalUSD float64        `json:"notional_usd"` // sizing estimate, not the fill value
	Option      *OptionDetails `json:"option_details,omitempty"`
}

// Confirmation is the venue's acknowledgement of a filled order.
type Confirmation struct {
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price"`
	FilledQty float64 `json:"filled_qty"`
}

// PositionStatus represents the position lifecycle state
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is one paper trade tracked by the ledger. Created only after a
// venue confirmation; mutated only by the ledger on close or price refresh.
// Closed positions are retained for P&L history.
type Position struct {
	ID           int64          `json:"id"`
	Ticker       string         `json:"ticker"`
	AssetType    AssetType      `json:"asset_type"`
	Direction    Direction      `json:"direction"`
	Qty          float64        `json:"qty"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	Status       PositionStatus `json:"status"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	PnL          *float64       `json:"pnl,omitempty"`
	OrderID      string         `json:"order_id"`
}

// IsOpen checks if the position is still open
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// UnrealizedPnL computes the mark-to-market P&L at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Qty * p.Direction.Sign()
}

// ExpiredAt reports whether the position has exceeded the holding period.
func (p *Position) ExpiredAt(now time.Time, holdingPeriod time.Duration) bool {
	return now.Sub(p.OpenedAt) >= holdingPeriod
}

// AdmissionResult is the ledger's decision for one final signal.
type AdmissionResult struct {
	Admitted bool          `json:"admitted"`
	Reason   string        `json:"reason,omitempty"`
	Order    *OrderRequest `json:"order,omitempty"`
}
