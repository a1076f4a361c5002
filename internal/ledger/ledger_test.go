package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
)

// fakePositionRepo is an in-memory PositionRepository.
type fakePositionRepo struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*contracts.Position
	realized float64
	failNext bool
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{rows: make(map[int64]*contracts.Position)}
}

func (r *fakePositionRepo) Insert(ctx context.Context, pos *contracts.Position) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return 0, fmt.Errorf("insert failed")
	}
	r.nextID++
	cp := *pos
	cp.ID = r.nextID
	r.rows[r.nextID] = &cp
	return r.nextID, nil
}

func (r *fakePositionRepo) Close(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("position %d not found", id)
	}
	pos.Status = contracts.PositionClosed
	pos.CurrentPrice = exitPrice
	pos.PnL = &pnl
	pos.ClosedAt = &closedAt
	r.realized += pnl
	return nil
}

func (r *fakePositionRepo) UpdatePrice(ctx context.Context, id int64, price, pnl float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("position %d not found", id)
	}
	pos.CurrentPrice = price
	pos.PnL = &pnl
	return nil
}

func (r *fakePositionRepo) OpenPositions(ctx context.Context) ([]contracts.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contracts.Position
	for _, pos := range r.rows {
		if pos.Status == contracts.PositionOpen {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (r *fakePositionRepo) RealizedPnL(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realized, nil
}

// fakeSignalRepo is an in-memory SignalRepository.
type fakeSignalRepo struct {
	mu     sync.Mutex
	saved  []*contracts.FinalSignal
	recent map[string]bool
}

func newFakeSignalRepo() *fakeSignalRepo {
	return &fakeSignalRepo{recent: make(map[string]bool)}
}

func (r *fakeSignalRepo) SaveSignal(ctx context.Context, sig *contracts.FinalSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, sig)
	return nil
}

func (r *fakeSignalRepo) HasRecentSignal(ctx context.Context, ticker string, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recent[ticker], nil
}

// fakePrices is a static PriceLookup.
type fakePrices struct {
	mu     sync.Mutex
	quotes map[string]float64
}

func (p *fakePrices) Price(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.quotes[ticker]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ticker)
	}
	return price, nil
}

type ledgerFixture struct {
	ledger    *Ledger
	positions *fakePositionRepo
	signals   *fakeSignalRepo
	prices    *fakePrices
}

func newFixture(t *testing.T, maxPositions int) *ledgerFixture {
	t.Helper()
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Trading: config.TradingConfig{
			MaxOpenPositions:   maxPositions,
			MaxPositionSizeUSD: 500,
			HoldingPeriodDays:  7,
		},
	}
	f := &ledgerFixture{
		positions: newFakePositionRepo(),
		signals:   newFakeSignalRepo(),
		prices:    &fakePrices{quotes: map[string]float64{"TSLA": 250, "AAPL": 180, "BTC": 60000}},
	}
	f.ledger = New(cfg, f.positions, f.signals, f.prices, logger.New(cfg))
	return f
}

func stockSignal(postID, ticker string) *contracts.FinalSignal {
	return &contracts.FinalSignal{
		PostID:         postID,
		Ticker:         ticker,
		RawDirection:   contracts.DirectionLong,
		FinalDirection: contracts.DirectionShort,
		Confidence:     0.9,
		AssetType:      contracts.AssetStock,
		ModeApplied:    contracts.ModeAgainst,
	}
}

func TestTryAdmitSizesStockOrder(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	require.True(t, res.Admitted)
	require.NotNil(t, res.Order)

	// 500 / 250 = 2 whole shares.
	assert.Equal(t, 2.0, res.Order.Qty)
	assert.Equal(t, contracts.OrderSideSell, res.Order.Side)
	assert.Equal(t, contracts.DirectionShort, res.Order.Direction)
	assert.Len(t, f.signals.saved, 1)
}

func TestTryAdmitSizesCryptoFractional(t *testing.T) {
	f := newFixture(t, 10)

	sig := stockSignal("p1", "BTC")
	sig.AssetType = contracts.AssetCrypto
	sig.FinalDirection = contracts.DirectionLong

	res, err := f.ledger.TryAdmit(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, res.Admitted)
	// 500 / 60000 rounded to 6 decimal places.
	assert.Equal(t, 0.008333, res.Order.Qty)
}

func TestTryAdmitSizesOptionContract(t *testing.T) {
	f := newFixture(t, 10)
	f.prices.quotes["SPY"] = 4.5

	sig := stockSignal("p1", "SPY")
	sig.AssetType = contracts.AssetOption
	sig.RawDirection = contracts.DirectionCall
	sig.FinalDirection = contracts.DirectionPut
	sig.Option = &contracts.OptionDetails{Expiry: "2026-09-18", Strike: 640}

	res, err := f.ledger.TryAdmit(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, res.Admitted)

	assert.Equal(t, 1.0, res.Order.Qty)
	// One contract controls 100 shares, so notional is 100x the premium.
	assert.Equal(t, 450.0, res.Order.NotionalUSD)
}

func TestTryAdmitRejectsUnaffordableOption(t *testing.T) {
	f := newFixture(t, 10)
	f.prices.quotes["SPY"] = 6 // 6 * 100 > 500 cap

	sig := stockSignal("p1", "SPY")
	sig.AssetType = contracts.AssetOption

	res, err := f.ledger.TryAdmit(context.Background(), sig)
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonSizingFailed, res.Reason)
}

func TestTryAdmitRejectsDuplicateTicker(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	require.True(t, res.Admitted)

	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	res2, err := f.ledger.TryAdmit(ctx, stockSignal("p2", "TSLA"))
	require.NoError(t, err)
	assert.False(t, res2.Admitted)
	assert.Equal(t, ReasonDuplicateTicker, res2.Reason)
}

func TestTryAdmitRejectsRecentSignal(t *testing.T) {
	f := newFixture(t, 10)
	f.signals.recent["TSLA"] = true

	res, err := f.ledger.TryAdmit(context.Background(), stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonRecentSignal, res.Reason)
}

func TestTryAdmitRejectsAtCapacity(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	res2, err := f.ledger.TryAdmit(ctx, stockSignal("p2", "AAPL"))
	require.NoError(t, err)
	assert.False(t, res2.Admitted)
	assert.Equal(t, ReasonMaxPositions, res2.Reason)
}

func TestTryAdmitRejectsWhenPriceUnavailable(t *testing.T) {
	f := newFixture(t, 10)

	res, err := f.ledger.TryAdmit(context.Background(), stockSignal("p1", "ZZZZ"))
	require.NoError(t, err)
	assert.False(t, res.Admitted)
	assert.Equal(t, ReasonSizingFailed, res.Reason)
	assert.Empty(t, f.signals.saved, "rejected signals start no cooldown")
}

func TestTryAdmitRejectsWhenShareUnaffordable(t *testing.T) {
	f := newFixture(t, 10)
	f.prices.quotes["BRK"] = 700000

	res, err := f.ledger.TryAdmit(context.Background(), stockSignal("p1", "BRK"))
	require.NoError(t, err)
	assert.Equal(t, ReasonSizingFailed, res.Reason)
}

func TestCommitDetectsDuplicateRace(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res1, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	// Second admission for the same ticker before the first commit. The
	// cooldown does not save us here because the fake reports no recents.
	res2, err := f.ledger.TryAdmit(ctx, stockSignal("p2", "TSLA"))
	require.NoError(t, err)
	require.True(t, res2.Admitted)

	_, err = f.ledger.Commit(ctx, res1.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	_, err = f.ledger.Commit(ctx, res2.Order, &contracts.Confirmation{OrderID: "o2", FillPrice: 251, FilledQty: 2})
	require.Error(t, err)
	assert.True(t, contracts.IsInvariantViolation(err))
	assert.Equal(t, 1, f.ledger.OpenCount())
}

func TestCommitDetectsCapacityRace(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	res1, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	res2, err := f.ledger.TryAdmit(ctx, stockSignal("p2", "AAPL"))
	require.NoError(t, err)

	_, err = f.ledger.Commit(ctx, res1.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	_, err = f.ledger.Commit(ctx, res2.Order, &contracts.Confirmation{OrderID: "o2", FillPrice: 180, FilledQty: 2})
	assert.True(t, contracts.IsInvariantViolation(err))
}

func TestCloseTickerComputesPnL(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	// Short position, price dropped 10: profit 2 * 10 = 20.
	pos, err := f.ledger.CloseTicker(ctx, "TSLA", 240)
	require.NoError(t, err)
	require.NotNil(t, pos.PnL)
	assert.Equal(t, 20.0, *pos.PnL)
	assert.Equal(t, contracts.PositionClosed, pos.Status)
	assert.Equal(t, 0, f.ledger.OpenCount())

	realized, err := f.positions.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, realized)
}

func TestSweepExpiredClosesOldPositions(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	for _, ticker := range []string{"TSLA", "AAPL"} {
		res, err := f.ledger.TryAdmit(ctx, stockSignal("p-"+ticker, ticker))
		require.NoError(t, err)
		price := f.prices.quotes[ticker]
		_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o-" + ticker, FillPrice: price, FilledQty: res.Order.Qty})
		require.NoError(t, err)
	}

	// Nothing expires before the holding period elapses.
	closed, err := f.ledger.SweepExpired(ctx, time.Now().Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Equal(t, 2, f.ledger.OpenCount())

	closed, err = f.ledger.SweepExpired(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, closed, 2)
	assert.Equal(t, 0, f.ledger.OpenCount())
}

func TestSweepDefersWhenPriceUnavailable(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	f.prices.mu.Lock()
	delete(f.prices.quotes, "TSLA")
	f.prices.mu.Unlock()

	closed, err := f.ledger.SweepExpired(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Equal(t, 1, f.ledger.OpenCount(), "position stays open until a price is available")
}

func TestRestoreRebuildsBook(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	// A second ledger over the same storage sees the open position.
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Trading: config.TradingConfig{
			MaxOpenPositions:   10,
			MaxPositionSizeUSD: 500,
			HoldingPeriodDays:  7,
		},
	}
	fresh := New(cfg, f.positions, f.signals, f.prices, logger.New(cfg))
	require.NoError(t, fresh.Restore(ctx))
	assert.Equal(t, 1, fresh.OpenCount())

	res2, err := fresh.TryAdmit(ctx, stockSignal("p2", "TSLA"))
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicateTicker, res2.Reason)
}

func TestConcurrentAdmissionNeverExceedsInvariants(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	tickers := []string{"TSLA", "AAPL", "BTC", "TSLA", "AAPL", "BTC"}
	for _, tk := range tickers {
		f.prices.mu.Lock()
		if _, ok := f.prices.quotes[tk]; !ok {
			f.prices.quotes[tk] = 100
		}
		f.prices.mu.Unlock()
	}

	var wg sync.WaitGroup
	for i, tk := range tickers {
		wg.Add(1)
		go func(i int, tk string) {
			defer wg.Done()
			sig := stockSignal(fmt.Sprintf("p%d", i), tk)
			res, err := f.ledger.TryAdmit(ctx, sig)
			if err != nil || !res.Admitted {
				return
			}
			conf := &contracts.Confirmation{
				OrderID:   fmt.Sprintf("o%d", i),
				FillPrice: 100,
				FilledQty: res.Order.Qty,
			}
			// Commit may legitimately fail with an invariant violation when
			// two goroutines race the same ticker.
			_, _ = f.ledger.Commit(ctx, res.Order, conf)
		}(i, tk)
	}
	wg.Wait()

	assert.LessOrEqual(t, f.ledger.OpenCount(), 3)

	open, err := f.positions.OpenPositions(ctx)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, pos := range open {
		assert.False(t, seen[pos.Ticker], "one open position per ticker")
		seen[pos.Ticker] = true
	}
}

func TestSnapshotAggregates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.ledger.TryAdmit(ctx, stockSignal("p1", "TSLA"))
	require.NoError(t, err)
	_, err = f.ledger.Commit(ctx, res.Order, &contracts.Confirmation{OrderID: "o1", FillPrice: 250, FilledQty: 2})
	require.NoError(t, err)

	f.prices.mu.Lock()
	f.prices.quotes["TSLA"] = 240
	f.prices.mu.Unlock()
	f.ledger.RefreshPnL(ctx)

	s, err := f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Equal(t, 20.0, s.UnrealizedPnL, "short gained 2 * 10")
	assert.Len(t, s.Positions, 1)

	// The refresh must persist both the mark and the unrealized P&L, or a
	// restart would restore a book with no marks.
	f.positions.mu.Lock()
	row := f.positions.rows[1]
	f.positions.mu.Unlock()
	assert.Equal(t, 240.0, row.CurrentPrice)
	require.NotNil(t, row.PnL)
	assert.Equal(t, 20.0, *row.PnL)
}
