package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/utils"
)

// DefaultBinomialSteps is used when an engine or parameter set does not choose a tree size.
const DefaultBinomialSteps = 200

const (
	spotBumpRel = 1e-4
	volBump     = 1e-4
	rateBump    = 1e-4
)

// GK is the reference Garman-Kohlhagen engine.
type GK struct {
	steps int
}

// NewGK returns a GK engine; steps sizes the binomial trees.
func NewGK(steps int) *GK {
	if steps < 2 {
		steps = DefaultBinomialSteps
	}
	return &GK{steps: steps}
}

func (e *GK) Name() string { return "GK" }

// New validates p and returns a priced leg.
func (e *GK) New(p Params) (Leg, error) {
	c := p.Base()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("GK.New: %s: %w", p.Family(), err)
	}
	if !p.Family().IsLinear() {
		if c.Strike <= 0 {
			return nil, fmt.Errorf("GK.New: %s: strike must be positive, got %v", p.Family(), c.Strike)
		}
		if c.Vol <= 0 {
			return nil, fmt.Errorf("GK.New: %s: vol must be positive, got %v", p.Family(), c.Vol)
		}
		if c.OptionType != product.Call && c.OptionType != product.Put {
			return nil, fmt.Errorf("GK.New: %s: option type %q", p.Family(), c.OptionType)
		}
	}

	l := &gkLeg{family: p.Family(), c: c, extra: map[string]any{}}
	phi := c.OptionType.Phi()
	steps := e.steps

	switch p := p.(type) {
	case VanillaParams:
		if c.Method == product.MethodBinomial {
			l.value = func(c Common) float64 {
				return crr(phi, c.Spot, c.Strike, c.T(), c.AccrualRate, c.Carry(), c.Vol, steps, false)
			}
		} else {
			l.value = func(c Common) float64 {
				return gbs(phi, c.Spot, c.Strike, c.T(), c.AccrualRate, c.Carry(), c.Vol)
			}
		}
		l.payoff = func(s float64) float64 { return intrinsic(phi, s, c.Strike) }

	case BarrierParams:
		if !p.Kind.IsBarrier() {
			return nil, fmt.Errorf("GK.New: %s is not a barrier kind", p.Kind)
		}
		if p.Barrier <= 0 {
			return nil, fmt.Errorf("GK.New: %s: barrier must be positive, got %v", p.Kind, p.Barrier)
		}
		kind, h := p.Kind, p.Barrier
		l.extra["barrier"] = h
		l.value = func(c Common) float64 {
			return barrier(kind, phi, c.Spot, c.Strike, h, c.T(), c.AccrualRate, c.Carry(), c.Vol)
		}
		// Terminal spot only; path history is not tracked.
		l.payoff = func(s float64) float64 { return barrier(kind, phi, s, c.Strike, h, 0, 0, 0, c.Vol) }

	case DigitalParams:
		payout := p.Payout
		if p.Digital == product.DigitalCash && payout <= 0 {
			return nil, fmt.Errorf("GK.New: digital payout must be positive, got %v", payout)
		}
		kind := p.Digital
		l.extra["digital_type"] = string(kind)
		l.extra["payout"] = payout
		l.value = func(c Common) float64 {
			return digital(kind, phi, c.Spot, c.Strike, payout, c.T(), c.AccrualRate, c.Carry(), c.Vol)
		}
		l.payoff = func(s float64) float64 { return digital(kind, phi, s, c.Strike, payout, 0, 0, 0, c.Vol) }

	case AsianParams:
		if p.StrikeType == product.FloatingStrike {
			return nil, fmt.Errorf("GK.New: floating-strike asian: %w", ErrUnsupported)
		}
		avg := p.Averaging
		if avg == "" {
			avg = product.Arithmetic
		}
		l.extra["averaging"] = string(avg)
		l.extra["strike_type"] = string(product.FixedStrike)
		if avg == product.Geometric {
			l.value = func(c Common) float64 {
				return geometricAsian(phi, c.Spot, c.Strike, c.T(), c.AccrualRate, c.Carry(), c.Vol)
			}
		} else {
			l.value = func(c Common) float64 {
				return arithmeticAsian(phi, c.Spot, c.Strike, c.T(), c.AccrualRate, c.Carry(), c.Vol)
			}
		}
		// The average is taken to be the terminal spot.
		l.payoff = func(s float64) float64 { return intrinsic(phi, s, c.Strike) }

	case AmericanParams:
		if p.Steps >= 2 {
			steps = p.Steps
		}
		l.extra["steps"] = steps
		l.value = func(c Common) float64 {
			return crr(phi, c.Spot, c.Strike, c.T(), c.AccrualRate, c.Carry(), c.Vol, steps, true)
		}
		l.payoff = func(s float64) float64 { return intrinsic(phi, s, c.Strike) }

	case ForwardParams:
		if l.c.Strike <= 0 {
			l.c.Strike = c.Fwd()
		}
		l.linear(l.c.Strike)

	case OutrightParams:
		if c.Strike <= 0 {
			return nil, fmt.Errorf("GK.New: outright strike must be positive, got %v", c.Strike)
		}
		l.linear(c.Strike)

	default:
		return nil, fmt.Errorf("GK.New: %T: %w", p, ErrUnsupported)
	}
	return l, nil
}

type gkLeg struct {
	family product.Family
	c      Common
	value  func(Common) float64
	payoff func(float64) float64
	extra  map[string]any
	isLin  bool
}

var (
	_ Leg     = (*gkLeg)(nil)
	_ Greeker = (*gkLeg)(nil)
)

func (l *gkLeg) linear(k float64) {
	l.isLin = true
	l.value = func(c Common) float64 {
		return math.Exp(-c.AccrualRate*c.T()) * (c.Fwd() - k)
	}
	l.payoff = func(s float64) float64 { return s - k }
}

func (l *gkLeg) Price() float64 {
	return l.c.Notional * l.value(l.c)
}

func (l *gkLeg) Payoff(spot float64) float64 {
	return l.c.Notional * l.payoff(spot)
}

func (l *gkLeg) Fields() map[string]any {
	f := map[string]any{
		"family":          string(l.family),
		"option_type":     string(l.c.OptionType),
		"trade_date":      l.c.TradeDate.Format("2006-01-02"),
		"expiry_date":     l.c.ExpiryDate.Format("2006-01-02"),
		"spot":            l.c.Spot,
		"strike":          l.c.Strike,
		"forward":         l.c.Fwd(),
		"vol":             l.c.Vol,
		"accrual_rate":    l.c.AccrualRate,
		"underlying_rate": l.c.UnderlyingRate,
		"notional":        l.c.Notional,
		"day_count":       l.c.DayCount,
		"method":          string(l.c.Method),
		"t":               l.c.T(),
		"price":           l.Price(),
	}
	if !l.c.DeliveryDate.IsZero() {
		f["delivery_date"] = l.c.DeliveryDate.Format("2006-01-02")
	}
	for k, v := range l.extra {
		f[k] = v
	}
	return f
}

// Clone moves the valuation to refDate and spot. An explicit forward is carried with the spot.
func (l *gkLeg) Clone(refDate time.Time, spot float64) (Leg, error) {
	if spot <= 0 {
		return nil, fmt.Errorf("Clone: spot must be positive, got %v", spot)
	}
	c := l.c
	b := c.Carry()
	c.TradeDate = utils.Truncate(refDate)
	c.Spot = spot
	if c.Forward > 0 {
		c.Forward = spot * math.Exp(b*c.T())
	}
	out := *l
	out.c = c
	return &out, nil
}

func (l *gkLeg) at(mutate func(*Common)) float64 {
	c := l.c
	mutate(&c)
	return c.Notional * l.value(c)
}

func (l *gkLeg) bumpSpot(c *Common, h float64) {
	if c.Forward > 0 {
		c.Forward *= (c.Spot + h) / c.Spot
	}
	c.Spot += h
}

// Greek returns sensitivities by bump and reprice: delta and gamma per unit of spot,
// vega per vol point, theta over one calendar day, rho per point of the accrual rate.
func (l *gkLeg) Greek(g Greek) GreekValue {
	switch strings.ToLower(string(g)) {
	case string(Delta):
		h := l.c.Spot * spotBumpRel
		up := l.at(func(c *Common) { l.bumpSpot(c, h) })
		dn := l.at(func(c *Common) { l.bumpSpot(c, -h) })
		return Supported((up - dn) / (2 * h))
	case string(Gamma):
		if l.isLin {
			return Unsupported()
		}
		h := l.c.Spot * spotBumpRel * 10
		up := l.at(func(c *Common) { l.bumpSpot(c, h) })
		dn := l.at(func(c *Common) { l.bumpSpot(c, -h) })
		return Supported((up - 2*l.Price() + dn) / (h * h))
	case string(Vega):
		if l.isLin {
			return Unsupported()
		}
		up := l.at(func(c *Common) { c.Vol += volBump })
		dn := l.at(func(c *Common) { c.Vol -= volBump })
		return Supported((up - dn) / (2 * volBump) * 0.01)
	case string(Theta):
		next := l.at(func(c *Common) { c.TradeDate = c.TradeDate.AddDate(0, 0, 1) })
		return Supported(next - l.Price())
	case string(Rho):
		t := l.c.T()
		bump := func(c *Common, dr float64) {
			if c.Forward > 0 {
				c.Forward *= math.Exp(dr * t)
			}
			c.AccrualRate += dr
		}
		up := l.at(func(c *Common) { bump(c, rateBump) })
		dn := l.at(func(c *Common) { bump(c, -rateBump) })
		return Supported((up - dn) / (2 * rateBump) * 0.01)
	default:
		return Unsupported()
	}
}
