package contracts

import "strings"

// Direction is the trade direction alphabet shared by raw and final signals.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionCall  Direction = "call"
	DirectionPut   Direction = "put"
	DirectionNone  Direction = "none"
)

// inversionTable maps each direction to its contrarian counterpart.
// The mapping is total and self-inverse: applying it twice is the identity.
var inversionTable = map[Direction]Direction{
	DirectionLong:  DirectionShort,
	DirectionShort: DirectionLong,
	DirectionCall:  DirectionPut,
	DirectionPut:   DirectionCall,
	DirectionNone:  DirectionNone,
}

// Invert returns the contrarian counterpart of d.
func (d Direction) Invert() Direction {
	return inversionTable[d]
}

// Sign returns +1 for long/call and -1 for short/put, used in P&L math.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionShort, DirectionPut:
		return -1
	default:
		return 1
	}
}

// Side returns the order side used when opening a position in this direction.
// Options are always bought; the put's bearish exposure comes from the
// contract itself, not from selling.
func (d Direction) Side() OrderSide {
	if d == DirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ParseDirection validates a direction string from an external payload.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DirectionLong, DirectionShort, DirectionCall, DirectionPut, DirectionNone:
		return d, true
	}
	return "", false
}

// AssetType is the market class of an instrument.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetCrypto AssetType = "crypto"
	AssetOption AssetType = "option"
)

// ParseAssetType validates an asset type string from an external payload.
func ParseAssetType(s string) (AssetType, bool) {
	a := AssetType(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case AssetStock, AssetCrypto, AssetOption:
		return a, true
	}
	return "", false
}

// Mode is the global sentiment policy: follow the crowd or fade it.
type Mode string

const (
	ModeWith    Mode = "with"
	ModeAgainst Mode = "against"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeWith, ModeAgainst:
		return m, true
	}
	return "", false
}

// OptionDetails carries the contract fields for option signals.
type OptionDetails struct {
	Expiry string  `json:"expiry"` // YYYY-MM-DD
	Strike float64 `json:"strike"`
}

// RawSignal is the interpreter's structured output for one post,
// before validation and inversion.
type RawSignal struct {
	Ticker     string         `json:"ticker"`
	Direction  Direction      `json:"direction"`
	Confidence float64        `json:"confidence"` // [0,1]
	AssetType  AssetType      `json:"asset_type"`
	Reasoning  string         `json:"reasoning"`
	Option     *OptionDetails `json:"option_details,omitempty"`
}

// FinalSignal is a validated RawSignal with the mode policy applied.
// FinalDirection is a pure function of RawDirection and ModeApplied;
// confidence passes through unchanged.
type FinalSignal struct {
	PostID         string         `json:"post_id"`
	Ticker         string         `json:"ticker"`
	RawDirection   Direction      `json:"raw_direction"`
	FinalDirection Direction      `json:"final_direction"`
	Confidence     float64        `json:"confidence"`
	AssetType      AssetType      `json:"asset_type"`
	ModeApplied    Mode           `json:"mode_applied"`
	Reasoning      string         `json:"reasoning"`
	Option         *OptionDetails `json:"option_details,omitempty"`
}
