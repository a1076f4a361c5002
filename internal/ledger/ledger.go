package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
)

// Admission rejection reasons, in evaluation order.
const (
	ReasonDuplicateTicker = "duplicate_ticker"
	ReasonRecentSignal    = "recent_signal"
	ReasonMaxPositions    = "max_positions"
	ReasonSizingFailed    = "sizing_failed"
)

// recentSignalWindow is the per-ticker cooldown: once any signal for a
// ticker is acted on, further signals for it are rejected for this long.
const recentSignalWindow = 24 * time.Hour

// cryptoQtyPrecision is the decimal precision for fractional crypto orders.
const cryptoQtyPrecision = 6

// PriceLookup answers current-price questions during sizing and sweeps.
type PriceLookup interface {
	Price(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error)
}

// Summary is a snapshot of the ledger for reporting.
type Summary struct {
	OpenPositions int                  `json:"open_positions"`
	MaxPositions  int                  `json:"max_positions"`
	UnrealizedPnL float64              `json:"unrealized_pnl"`
	RealizedPnL   float64              `json:"realized_pnl"`
	Positions     []contracts.Position `json:"positions"`
}

// Ledger is the position book. All admission decisions, commits, closes and
// sweeps run under a single mutex so concurrent signals for the same ticker
// serialize: at most one open position per ticker, never more than the
// configured number of open positions.
type Ledger struct {
	mu   sync.Mutex
	open map[string]*contracts.Position // keyed by ticker

	positions contracts.PositionRepository
	signals   contracts.SignalRepository
	prices    PriceLookup

	maxPositions  int
	maxNotional   float64
	holdingPeriod time.Duration

	logger *logger.Logger
}

// New creates a ledger. Call Restore before first use so the in-memory book
// reflects positions that survived a restart.
func New(cfg *config.Config, positions contracts.PositionRepository, signals contracts.SignalRepository, prices PriceLookup, log *logger.Logger) *Ledger {
	return &Ledger{
		open:          make(map[string]*contracts.Position),
		positions:     positions,
		signals:       signals,
		prices:        prices,
		maxPositions:  cfg.Trading.MaxOpenPositions,
		maxNotional:   cfg.Trading.MaxPositionSizeUSD,
		holdingPeriod: time.Duration(cfg.Trading.HoldingPeriodDays) * 24 * time.Hour,
		logger:        log,
	}
}

// Restore loads open positions from storage into the in-memory book.
func (l *Ledger) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.positions.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore positions: %w", err)
	}

	l.open = make(map[string]*contracts.Position, len(rows))
	for i := range rows {
		pos := rows[i]
		l.open[pos.Ticker] = &pos
	}

	l.logger.WithField("count", len(l.open)).Info("Ledger restored")
	return nil
}

// TryAdmit decides whether a final signal becomes an order. Checks run in a
// fixed order under the lock; the first failing check is the recorded
// reason. On admission it returns a sized order request and persists the
// signal, which starts the per-ticker cooldown even if the order later
// fails at the venue.
func (l *Ledger) TryAdmit(ctx context.Context, sig *contracts.FinalSignal) (*contracts.AdmissionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.open[sig.Ticker]; exists {
		return &contracts.AdmissionResult{Reason: ReasonDuplicateTicker}, nil
	}

	recent, err := l.signals.HasRecentSignal(ctx, sig.Ticker, recentSignalWindow)
	if err != nil {
		return nil, contracts.NewUnavailable("signal store", err)
	}
	if recent {
		return &contracts.AdmissionResult{Reason: ReasonRecentSignal}, nil
	}

	if len(l.open) >= l.maxPositions {
		return &contracts.AdmissionResult{Reason: ReasonMaxPositions}, nil
	}

	order, ok := l.size(ctx, sig)
	if !ok {
		return &contracts.AdmissionResult{Reason: ReasonSizingFailed}, nil
	}

	if err := l.signals.SaveSignal(ctx, sig); err != nil {
		return nil, contracts.NewUnavailable("signal store", err)
	}

	return &contracts.AdmissionResult{Admitted: true, Order: order}, nil
}

// size converts a signal into order quantity at the current price, capped
// by the per-position notional limit. Price lookup failures and quantities
// that round to zero both fail sizing.
func (l *Ledger) size(ctx context.Context, sig *contracts.FinalSignal) (*contracts.OrderRequest, bool) {
	price, err := l.prices.Price(ctx, sig.Ticker, sig.AssetType)
	if err != nil || price <= 0 {
		l.logger.WithField("ticker", sig.Ticker).WithError(err).Warn("Sizing price lookup failed")
		return nil, false
	}

	var qty float64
	switch sig.AssetType {
	case contracts.AssetCrypto:
		qty = roundTo(l.maxNotional/price, cryptoQtyPrecision)
	case contracts.AssetOption:
		// One contract controls 100 shares; price here is the premium.
		if price*100 > l.maxNotional {
			return nil, false
		}
		qty = 1
	default:
		qty = math.Floor(l.maxNotional / price)
	}

	if qty <= 0 {
		return nil, false
	}

	// Controlled notional, not premium paid: an option contract covers
	// 100 shares.
	notional := qty * price
	if sig.AssetType == contracts.AssetOption {
		notional *= 100
	}

	return &contracts.OrderRequest{
		PostID:      sig.PostID,
		Ticker:      sig.Ticker,
		Side:        sig.FinalDirection.Side(),
		Qty:         qty,
		AssetType:   sig.AssetType,
		Direction:   sig.FinalDirection,
		NotionalUSD: notional,
		Option:      sig.Option,
	}, true
}

// Commit records a filled order as an open position. The admission checks
// for ticker uniqueness and capacity are re-run under the lock: admission
// and fill are separated by a venue round-trip, and another signal may have
// landed in between. A failure here means the venue holds a fill the book
// cannot accept; the caller must surface it for manual reconciliation.
func (l *Ledger) Commit(ctx context.Context, order *contracts.OrderRequest, conf *contracts.Confirmation) (*contracts.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.open[order.Ticker]; exists {
		return nil, &contracts.InvariantError{Ticker: order.Ticker, Detail: "position already open at commit"}
	}
	if len(l.open) >= l.maxPositions {
		return nil, &contracts.InvariantError{Ticker: order.Ticker, Detail: "position cap reached at commit"}
	}

	pos := &contracts.Position{
		Ticker:       order.Ticker,
		AssetType:    order.AssetType,
		Direction:    order.Direction,
		Qty:          conf.FilledQty,
		EntryPrice:   conf.FillPrice,
		CurrentPrice: conf.FillPrice,
		Status:       contracts.PositionOpen,
		OpenedAt:     time.Now().UTC(),
		OrderID:      conf.OrderID,
	}

	id, err := l.positions.Insert(ctx, pos)
	if err != nil {
		return nil, contracts.NewUnavailable("position store", err)
	}
	pos.ID = id
	l.open[order.Ticker] = pos

	l.logger.WithFields(map[string]interface{}{
		"ticker":      pos.Ticker,
		"direction":   string(pos.Direction),
		"qty":         pos.Qty,
		"entry_price": pos.EntryPrice,
	}).Info("Position opened")

	return pos, nil
}

// CloseTicker closes the open position for ticker at the given exit price.
func (l *Ledger) CloseTicker(ctx context.Context, ticker string, exitPrice float64) (*contracts.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(ctx, ticker, exitPrice)
}

func (l *Ledger) closeLocked(ctx context.Context, ticker string, exitPrice float64) (*contracts.Position, error) {
	pos, exists := l.open[ticker]
	if !exists {
		return nil, fmt.Errorf("no open position for %s", ticker)
	}

	pnl := pos.UnrealizedPnL(exitPrice)
	closedAt := time.Now().UTC()

	if err := l.positions.Close(ctx, pos.ID, exitPrice, pnl, closedAt); err != nil {
		return nil, contracts.NewUnavailable("position store", err)
	}

	delete(l.open, ticker)

	pos.Status = contracts.PositionClosed
	pos.CurrentPrice = exitPrice
	pos.ClosedAt = &closedAt
	pos.PnL = &pnl

	l.logger.WithFields(map[string]interface{}{
		"ticker":     ticker,
		"exit_price": exitPrice,
		"pnl":        pnl,
	}).Info("Position closed")

	return pos, nil
}

// SweepExpired closes every open position that has exceeded the holding
// period, at the current looked-up price. A position whose price cannot be
// fetched is left open and retried at the next sweep. Returns the positions
// closed by this sweep.
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) ([]contracts.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var closed []contracts.Position
	for ticker, pos := range l.open {
		if !pos.ExpiredAt(now, l.holdingPeriod) {
			continue
		}

		price, err := l.prices.Price(ctx, ticker, pos.AssetType)
		if err != nil || price <= 0 {
			l.logger.WithField("ticker", ticker).WithError(err).Warn("Sweep deferred, price unavailable")
			continue
		}

		done, err := l.closeLocked(ctx, ticker, price)
		if err != nil {
			l.logger.WithField("ticker", ticker).WithError(err).Error("Sweep close failed")
			continue
		}
		closed = append(closed, *done)
	}

	return closed, nil
}

// RefreshPnL re-marks every open position at the current price and persists
// the updated mark. Individual lookup failures skip that position.
func (l *Ledger) RefreshPnL(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ticker, pos := range l.open {
		price, err := l.prices.Price(ctx, ticker, pos.AssetType)
		if err != nil || price <= 0 {
			continue
		}

		pnl := pos.UnrealizedPnL(price)
		if err := l.positions.UpdatePrice(ctx, pos.ID, price, pnl); err != nil {
			l.logger.WithField("ticker", ticker).WithError(err).Warn("Price refresh persist failed")
			continue
		}
		pos.CurrentPrice = price
	}
}

// Snapshot returns a summary of the book, with open positions marked at
// their last refreshed price.
func (l *Ledger) Snapshot(ctx context.Context) (*Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	realized, err := l.positions.RealizedPnL(ctx)
	if err != nil {
		return nil, contracts.NewUnavailable("position store", err)
	}

	s := &Summary{
		OpenPositions: len(l.open),
		MaxPositions:  l.maxPositions,
		RealizedPnL:   realized,
		Positions:     make([]contracts.Position, 0, len(l.open)),
	}
	for _, pos := range l.open {
		s.UnrealizedPnL += pos.UnrealizedPnL(pos.CurrentPrice)
		s.Positions = append(s.Positions, *pos)
	}

	return s, nil
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
