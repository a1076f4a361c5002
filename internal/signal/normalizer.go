package signal

import (
	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
)

// Normalizer rejection reasons, in evaluation order.
const (
	ReasonTickerMissing   = "ticker_missing"
	ReasonBelowConfidence = "below_confidence"
	ReasonMarketDisabled  = "market_disabled"
)

// Normalizer validates a raw signal against trading policy and applies the
// configured mode. In "against" mode the direction is inverted; in "with"
// mode it passes through unchanged.
type Normalizer struct {
	mode          contracts.Mode
	minConfidence float64
	markets       map[contracts.AssetType]bool
	logger        *logger.Logger
}

// NewNormalizer creates a normalizer from trading config.
func NewNormalizer(cfg *config.Config, log *logger.Logger) *Normalizer {
	mode, _ := contracts.ParseMode(cfg.Trading.Mode)

	markets := make(map[contracts.AssetType]bool, len(cfg.Trading.MarketsEnabled))
	for _, m := range cfg.Trading.MarketsEnabled {
		if at, ok := contracts.ParseAssetType(m); ok {
			markets[at] = true
		}
	}

	return &Normalizer{
		mode:          mode,
		minConfidence: cfg.Trading.MinConfidence,
		markets:       markets,
		logger:        log,
	}
}

// Normalize validates the raw signal and produces the final signal whose
// direction reflects the configured mode. Validation failures return a
// RejectionError; checks run in a fixed order so the recorded reason is
// deterministic.
func (n *Normalizer) Normalize(postID string, raw *contracts.RawSignal) (*contracts.FinalSignal, error) {
	if raw.Ticker == "" {
		return nil, contracts.NewRejection(contracts.StageSignal, ReasonTickerMissing)
	}

	if raw.Confidence < n.minConfidence {
		return nil, contracts.NewRejection(contracts.StageSignal, ReasonBelowConfidence)
	}

	if !n.markets[raw.AssetType] {
		return nil, contracts.NewRejection(contracts.StageSignal, ReasonMarketDisabled)
	}

	final := raw.Direction
	if n.mode == contracts.ModeAgainst {
		final = raw.Direction.Invert()
	}

	n.logger.WithFields(map[string]interface{}{
		"post_id":   postID,
		"ticker":    raw.Ticker,
		"raw":       string(raw.Direction),
		"final":     string(final),
		"mode":      string(n.mode),
		"confidence": raw.Confidence,
	}).Info("Signal normalized")

	return &contracts.FinalSignal{
		PostID:         postID,
		Ticker:         raw.Ticker,
		RawDirection:   raw.Direction,
		FinalDirection: final,
		Confidence:     raw.Confidence,
		AssetType:      raw.AssetType,
		ModeApplied:    n.mode,
		Reasoning:      raw.Reasoning,
		Option:         raw.Option,
	}, nil
}
