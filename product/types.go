package product

import "strings"

// Side is the buy/sell direction of a package or a leg, from the house perspective.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts the spellings used on desk sheets ("Buy", "b", "SELL", ...).
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "long":
		return Buy, true
	case "sell", "s", "short":
		return Sell, true
	default:
		return "", false
	}
}

// Sign is +1 for Buy and -1 for Sell.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Sell {
		return Buy
	}
	return Sell
}

// OptionType is call, put, or none for linear legs.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
	None OptionType = "NONE"
)

// ParseOptionType resolves call/put tokens. Linear legs never go through here.
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, true
	case "put", "p":
		return Put, true
	default:
		return "", false
	}
}

// Phi is +1 for calls (and linear legs) and -1 for puts.
func (o OptionType) Phi() float64 {
	if o == Put {
		return -1
	}
	return 1
}

// Family enumerates the leg families a structure can be built from.
type Family string

const (
	Vanilla         Family = "VANILLA"
	BarrierDownIn   Family = "BARRIER_DOWN_IN"
	BarrierDownOut  Family = "BARRIER_DOWN_OUT"
	BarrierUpIn     Family = "BARRIER_UP_IN"
	BarrierUpOut    Family = "BARRIER_UP_OUT"
	American        Family = "AMERICAN"
	Outright        Family = "OUTRIGHT"
	Asian           Family = "ASIAN"
	EuropeanDigital Family = "EUROPEAN_DIGITAL"
	Forward         Family = "FORWARD"
)

// IsBarrier reports whether the family is one of the four single-barrier kinds.
func (f Family) IsBarrier() bool {
	switch f {
	case BarrierDownIn, BarrierDownOut, BarrierUpIn, BarrierUpOut:
		return true
	default:
		return false
	}
}

// IsLinear reports whether the family has no optionality.
func (f Family) IsLinear() bool {
	return f == Outright || f == Forward
}

// IsDown reports whether the barrier sits below spot.
func (f Family) IsDown() bool {
	return f == BarrierDownIn || f == BarrierDownOut
}

// IsKnockIn reports whether the barrier activates the option.
func (f Family) IsKnockIn() bool {
	return f == BarrierDownIn || f == BarrierUpIn
}

// Quote selects which side of a two-way market a lookup consumes.
type Quote string

const (
	Bid Quote = "BID"
	Ask Quote = "ASK"
	Mid Quote = "MID"
)

// Flip swaps bid and ask; mid stays mid.
func (q Quote) Flip() Quote {
	switch q {
	case Bid:
		return Ask
	case Ask:
		return Bid
	default:
		return q
	}
}

// MarketSide is the per-leg quoting mode declared in a leg descriptor.
type MarketSide string

const (
	// MarketClient applies bid/ask conventions (optionally flipped for client-facing packages).
	MarketClient MarketSide = "CLIENT"
	// MarketMid forces every lookup for the leg to mid.
	MarketMid MarketSide = "MID"
)

// DigitalType distinguishes cash-or-nothing from asset-or-nothing digitals.
type DigitalType string

const (
	DigitalCash  DigitalType = "CASH"
	DigitalAsset DigitalType = "ASSET"
)

// AveragingMethod for Asian legs.
type AveragingMethod string

const (
	Arithmetic AveragingMethod = "ARITHMETIC"
	Geometric  AveragingMethod = "GEOMETRIC"
)

// StrikeType for Asian legs.
type StrikeType string

const (
	FixedStrike    StrikeType = "FIXED"
	FloatingStrike StrikeType = "FLOATING"
)

// Method is the pricing-method tag passed through to the engine.
type Method string

const (
	MethodAnalytic Method = "ANALYTIC"
	MethodBinomial Method = "BINOMIAL"
)

// Unit is the unit a target price is quoted in for calibration.
type Unit string

const (
	UnitAmount Unit = "AMOUNT"
	UnitPips   Unit = "PIPS"
)
