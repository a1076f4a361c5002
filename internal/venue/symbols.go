package venue

import (
	"fmt"
	"strings"
	"time"

	"github.com/mkearny/contrabot/internal/contracts"
)

// ReasonCryptoShortUnsupported rejects crypto sell-to-open orders: the
// paper venue has no crypto margin, so a short cannot be established.
const ReasonCryptoShortUnsupported = "crypto_short_unsupported"

// cryptoPairs maps bare coin tickers to the venue's trading pair notation.
var cryptoPairs = map[string]string{
	"BTC":   "BTC/USD",
	"ETH":   "ETH/USD",
	"SOL":   "SOL/USD",
	"DOGE":  "DOGE/USD",
	"ADA":   "ADA/USD",
	"XRP":   "XRP/USD",
	"AVAX":  "AVAX/USD",
	"DOT":   "DOT/USD",
	"LINK":  "LINK/USD",
	"LTC":   "LTC/USD",
	"UNI":   "UNI/USD",
	"MATIC": "MATIC/USD",
	"SHIB":  "SHIB/USD",
	"BCH":   "BCH/USD",
	"AAVE":  "AAVE/USD",
}

// TradeSymbol converts a signal ticker into the venue's order symbol.
func TradeSymbol(order *contracts.OrderRequest) (string, error) {
	switch order.AssetType {
	case contracts.AssetCrypto:
		if pair, ok := cryptoPairs[order.Ticker]; ok {
			return pair, nil
		}
		return order.Ticker + "/USD", nil
	case contracts.AssetOption:
		if order.Option == nil {
			return "", fmt.Errorf("option order for %s has no contract details", order.Ticker)
		}
		return occSymbol(order.Ticker, order.Direction, order.Option)
	default:
		return order.Ticker, nil
	}
}

// occSymbol builds the 21-character OCC option symbol:
// ticker, YYMMDD expiry, C or P, strike in thousandths padded to 8 digits.
func occSymbol(ticker string, dir contracts.Direction, opt *contracts.OptionDetails) (string, error) {
	expiry, err := time.Parse("2006-01-02", opt.Expiry)
	if err != nil {
		return "", fmt.Errorf("invalid option expiry %q: %w", opt.Expiry, err)
	}
	if opt.Strike <= 0 {
		return "", fmt.Errorf("invalid option strike %v", opt.Strike)
	}

	cp := "C"
	if dir == contracts.DirectionPut {
		cp = "P"
	}

	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(ticker),
		expiry.Format("060102"),
		cp,
		int64(opt.Strike*1000+0.5),
	), nil
}

// validateOrder rejects order shapes the venue cannot execute.
func validateOrder(order *contracts.OrderRequest) error {
	if order.AssetType == contracts.AssetCrypto && order.Direction == contracts.DirectionShort {
		return contracts.NewRejection(contracts.StageOrder, ReasonCryptoShortUnsupported)
	}
	return nil
}
