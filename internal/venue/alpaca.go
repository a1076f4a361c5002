package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
)

// ExecutionVenue fills orders and answers market questions. All paper
// trading flows through this interface so tests can swap the live client.
type ExecutionVenue interface {
	// SubmitOrder submits a market order and waits for the fill.
	SubmitOrder(ctx context.Context, order *contracts.OrderRequest) (*contracts.Confirmation, error)

	// ClosePosition liquidates the venue-side position and returns the
	// exit fill price.
	ClosePosition(ctx context.Context, pos *contracts.Position) (float64, error)

	// CurrentPrice returns the latest trade price for the instrument.
	CurrentPrice(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error)

	// MarketOpen reports whether the stock market is currently open.
	MarketOpen(ctx context.Context) (bool, error)
}

// fill polling knobs. A paper market order normally fills within one poll.
const (
	fillPollAttempts = 5
	fillPollDelay    = 500 * time.Millisecond
)

// AlpacaClient is the Alpaca paper-trading implementation of ExecutionVenue.
type AlpacaClient struct {
	client  *httputil.Client
	baseURL string
	dataURL string
	key     string
	secret  string
	logger  *logger.Logger
}

// NewAlpacaClient creates a paper-trading venue client.
func NewAlpacaClient(cfg *config.Config, client *httputil.Client, log *logger.Logger) *AlpacaClient {
	return &AlpacaClient{
		client:  client,
		baseURL: cfg.Alpaca.BaseURL,
		dataURL: cfg.Alpaca.DataURL,
		key:     cfg.Alpaca.APIKey,
		secret:  cfg.Alpaca.SecretKey,
		logger:  log,
	}
}

type orderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
}

func (o *orderResponse) filled() bool {
	return o.Status == "filled"
}

func (o *orderResponse) confirmation() (*contracts.Confirmation, error) {
	price, err := strconv.ParseFloat(o.FilledAvgPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable fill price %q: %w", o.FilledAvgPrice, err)
	}
	qty, err := strconv.ParseFloat(o.FilledQty, 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable fill qty %q: %w", o.FilledQty, err)
	}
	return &contracts.Confirmation{OrderID: o.ID, FillPrice: price, FilledQty: qty}, nil
}

// SubmitOrder places a market order and polls until it fills. An order the
// venue cannot shape-wise accept is a rejection, not a venue failure.
func (a *AlpacaClient) SubmitOrder(ctx context.Context, order *contracts.OrderRequest) (*contracts.Confirmation, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	symbol, err := TradeSymbol(order)
	if err != nil {
		return nil, contracts.NewRejection(contracts.StageOrder, "invalid_symbol")
	}

	tif := "day"
	if order.AssetType == contracts.AssetCrypto {
		tif = "gtc"
	}

	payload := map[string]interface{}{
		"symbol":        symbol,
		"qty":           strconv.FormatFloat(order.Qty, 'f', -1, 64),
		"side":          string(order.Side),
		"type":          "market",
		"time_in_force": tif,
	}

	var resp orderResponse
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/v2/orders", payload, &resp); err != nil {
		return nil, contracts.NewUnavailable("venue", err)
	}

	final, err := a.waitForFill(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return final.confirmation()
}

// waitForFill polls the order until the venue reports it filled.
func (a *AlpacaClient) waitForFill(ctx context.Context, ord *orderResponse) (*orderResponse, error) {
	if ord.filled() {
		return ord, nil
	}

	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, contracts.NewUnavailable("venue", ctx.Err())
		case <-time.After(fillPollDelay):
		}

		var current orderResponse
		if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/v2/orders/"+ord.ID, nil, &current); err != nil {
			return nil, contracts.NewUnavailable("venue", err)
		}
		if current.filled() {
			return &current, nil
		}
	}

	return nil, contracts.NewUnavailable("venue", fmt.Errorf("order %s not filled after %d polls", ord.ID, fillPollAttempts))
}

// ClosePosition liquidates the whole venue-side position for the ticker.
func (a *AlpacaClient) ClosePosition(ctx context.Context, pos *contracts.Position) (float64, error) {
	order := &contracts.OrderRequest{
		Ticker:    pos.Ticker,
		AssetType: pos.AssetType,
		Direction: pos.Direction,
	}
	symbol, err := TradeSymbol(order)
	if err != nil {
		return 0, fmt.Errorf("cannot derive close symbol for %s: %w", pos.Ticker, err)
	}

	var resp orderResponse
	if err := a.doJSON(ctx, http.MethodDelete, a.baseURL+"/v2/positions/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return 0, contracts.NewUnavailable("venue", err)
	}

	final, err := a.waitForFill(ctx, &resp)
	if err != nil {
		return 0, err
	}
	conf, err := final.confirmation()
	if err != nil {
		return 0, contracts.NewUnavailable("venue", err)
	}
	return conf.FillPrice, nil
}

// CurrentPrice returns the latest trade price from the data API.
func (a *AlpacaClient) CurrentPrice(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error) {
	switch asset {
	case contracts.AssetCrypto:
		return a.cryptoPrice(ctx, ticker)
	default:
		return a.stockPrice(ctx, ticker)
	}
}

func (a *AlpacaClient) stockPrice(ctx context.Context, ticker string) (float64, error) {
	var resp struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	u := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.dataURL, url.PathEscape(ticker))
	if err := a.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return 0, contracts.NewUnavailable("price feed", err)
	}
	if resp.Trade.Price <= 0 {
		return 0, contracts.NewUnavailable("price feed", fmt.Errorf("no trade for %s", ticker))
	}
	return resp.Trade.Price, nil
}

func (a *AlpacaClient) cryptoPrice(ctx context.Context, ticker string) (float64, error) {
	pair, ok := cryptoPairs[ticker]
	if !ok {
		pair = ticker + "/USD"
	}

	var resp struct {
		Trades map[string]struct {
			Price float64 `json:"p"`
		} `json:"trades"`
	}
	u := fmt.Sprintf("%s/v1beta3/crypto/us/latest/trades?symbols=%s", a.dataURL, url.QueryEscape(pair))
	if err := a.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return 0, contracts.NewUnavailable("price feed", err)
	}

	trade, ok := resp.Trades[pair]
	if !ok || trade.Price <= 0 {
		return 0, contracts.NewUnavailable("price feed", fmt.Errorf("no trade for %s", pair))
	}
	return trade.Price, nil
}

// MarketOpen reports the venue's market clock.
func (a *AlpacaClient) MarketOpen(ctx context.Context) (bool, error) {
	var resp struct {
		IsOpen bool `json:"is_open"`
	}
	if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/v2/clock", nil, &resp); err != nil {
		return false, contracts.NewUnavailable("venue", err)
	}
	return resp.IsOpen, nil
}

// doJSON executes an authenticated request and decodes the JSON response.
func (a *AlpacaClient) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.key)
	req.Header.Set("APCA-API-SECRET-KEY", a.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
