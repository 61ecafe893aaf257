package assembler

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

// Leg is one priced leg of an instrument. Amount is the signed notional (±leverage·notional).
type Leg struct {
	Index      int
	Descriptor structure.LegDescriptor
	Params     pricing.Params
	Handle     pricing.Leg
	Amount     float64
}

func (l Leg) sign() float64 {
	switch {
	case l.Amount > 0:
		return 1
	case l.Amount < 0:
		return -1
	default:
		return 0
	}
}

// Value is the signed price of the leg.
func (l Leg) Value() float64 {
	return l.sign() * l.Handle.Price()
}

// LegSnapshot is a read-only view of a leg for reporting.
type LegSnapshot struct {
	Index  int            `json:"index"`
	Leg    string         `json:"leg"`
	Amount float64        `json:"amount"`
	Value  float64        `json:"value"`
	Fields map[string]any `json:"fields"`
}

// KeySpot is a named spot level of interest for payoff diagrams.
type KeySpot struct {
	Name string  `json:"name"`
	Spot float64 `json:"spot"`
}

// Instrument is an assembled multi-leg structure. It is immutable; CloneWith builds a new one.
type Instrument struct {
	tmpl     structure.Template
	values   map[string]float64
	req      Request
	md       marketdata.MarketData
	opts     options
	legs     []Leg
	keySpots []KeySpot
}

func (inst *Instrument) Template() structure.Template { return inst.tmpl }

func (inst *Instrument) Request() Request { return inst.req }

// Values returns a copy of the bound strike and argument values.
func (inst *Instrument) Values() map[string]float64 {
	return copyValues(inst.values)
}

// Price is the signed sum of leg prices in the premium currency.
func (inst *Instrument) Price() float64 {
	var total float64
	for _, l := range inst.legs {
		total += l.Value()
	}
	return total
}

func (inst *Instrument) Legs() []LegSnapshot {
	out := make([]LegSnapshot, 0, len(inst.legs))
	for _, l := range inst.legs {
		out = append(out, LegSnapshot{
			Index:  l.Index,
			Leg:    l.Descriptor.String(),
			Amount: l.Amount,
			Value:  l.Value(),
			Fields: l.Handle.Fields(),
		})
	}
	return out
}

// MaxLegAmount is the largest absolute leg notional.
func (inst *Instrument) MaxLegAmount() float64 {
	var m float64
	for _, l := range inst.legs {
		m = math.Max(m, math.Abs(l.Amount))
	}
	return m
}

// pipsUnit prefers the preset of the market's currency pair over the configured unit.
func (inst *Instrument) pipsUnit() float64 {
	if p, ok := inst.md.(interface{ PipsUnit() float64 }); ok {
		if u := p.PipsUnit(); u > 0 {
			return u
		}
	}
	return inst.opts.cfg.PipsUnit
}

// Pips converts a premium amount to pips of the largest leg notional.
func (inst *Instrument) Pips(amount float64) decimal.Decimal {
	notional := inst.MaxLegAmount()
	if notional == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(amount).
		Div(decimal.NewFromFloat(notional)).
		Mul(decimal.NewFromFloat(inst.pipsUnit())).
		Round(inst.opts.cfg.PipsDecimals)
}

// FromPips converts pips of the largest leg notional to a premium amount.
func (inst *Instrument) FromPips(pips float64) float64 {
	unit := inst.pipsUnit()
	if unit == 0 {
		return 0
	}
	return pips / unit * inst.MaxLegAmount()
}

// PayoffBySpots values the structure at each spot. On or after expiry, or with a zero
// valueDate, legs pay intrinsic value; before expiry every leg is re-priced from valueDate.
func (inst *Instrument) PayoffBySpots(valueDate time.Time, spots []float64) ([]float64, error) {
	intrinsic := valueDate.IsZero() || !valueDate.Before(inst.req.ExpiryDate)
	out := make([]float64, len(spots))
	for i, s := range spots {
		if s <= 0 {
			return nil, fmt.Errorf("PayoffBySpots: spot %v is not positive", s)
		}
		var total float64
		for _, l := range inst.legs {
			if intrinsic {
				total += l.sign() * l.Handle.Payoff(s)
				continue
			}
			c, err := l.Handle.Clone(valueDate, s)
			if err != nil {
				return nil, fmt.Errorf("PayoffBySpots: leg %d: %w", l.Index, err)
			}
			total += l.sign() * c.Price()
		}
		out[i] = total
	}
	return out, nil
}

// Greek sums a sensitivity over the legs that support it.
func (inst *Instrument) Greek(g pricing.Greek) pricing.GreekValue {
	var (
		total     float64
		supported bool
	)
	for _, l := range inst.legs {
		gk, ok := l.Handle.(pricing.Greeker)
		if !ok {
			continue
		}
		v := gk.Greek(g)
		if !v.Supported {
			continue
		}
		supported = true
		total += l.sign() * v.Value
	}
	if !supported {
		return pricing.Unsupported()
	}
	return pricing.Supported(total)
}

func (inst *Instrument) Greeks(gs []pricing.Greek) map[pricing.Greek]pricing.GreekValue {
	out := make(map[pricing.Greek]pricing.GreekValue, len(gs))
	for _, g := range gs {
		out[g] = inst.Greek(g)
	}
	return out
}

// KeySpots lists strike levels followed by barrier levels and their offsets.
func (inst *Instrument) KeySpots() []KeySpot {
	return append([]KeySpot(nil), inst.keySpots...)
}

// CloneWith re-assembles the instrument with some bound values replaced.
// Every name must be declared by the template.
func (inst *Instrument) CloneWith(updates map[string]float64) (*Instrument, error) {
	values := copyValues(inst.values)
	for k, v := range updates {
		if !inst.tmpl.Declares(k) {
			return nil, fmt.Errorf("CloneWith: %s does not declare %q", inst.tmpl.PackageKey, k)
		}
		values[schema.NormalizeKey(k)] = v
	}
	return assemble(inst.tmpl, values, inst.req, inst.md, inst.opts)
}
