package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/meenmo/fxstruct/calendar"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/utils"
)

// Common holds the parameters every leg family shares.
// Rates are continuously compounded; AccrualRate belongs to the premium currency.
type Common struct {
	OptionType     product.OptionType
	TradeDate      time.Time
	ExpiryDate     time.Time
	DeliveryDate   time.Time
	Spot           float64
	Strike         float64
	AccrualRate    float64
	UnderlyingRate float64
	Forward        float64 // 0 derives the forward from spot and rates
	Vol            float64
	Notional       float64
	DayCount       string
	Calendar       calendar.CalendarID
	Method         product.Method
}

// T is the year fraction to expiry, floored at zero.
func (c Common) T() float64 {
	return math.Max(utils.YearFraction(c.TradeDate, c.ExpiryDate, c.DayCount), 0)
}

// Fwd returns the explicit forward or the covered-interest-parity forward.
func (c Common) Fwd() float64 {
	if c.Forward > 0 {
		return c.Forward
	}
	return c.Spot * math.Exp((c.AccrualRate-c.UnderlyingRate)*c.T())
}

// Carry is the cost of carry b implied by the forward.
func (c Common) Carry() float64 {
	t := c.T()
	if c.Forward <= 0 || t <= 0 || c.Spot <= 0 {
		return c.AccrualRate - c.UnderlyingRate
	}
	return math.Log(c.Forward/c.Spot) / t
}

func (c Common) validate() error {
	if c.ExpiryDate.IsZero() {
		return fmt.Errorf("expiry date is not set")
	}
	if c.Spot <= 0 {
		return fmt.Errorf("spot must be positive, got %v", c.Spot)
	}
	if c.Notional < 0 {
		return fmt.Errorf("notional must not be negative, got %v", c.Notional)
	}
	return nil
}

// Params is the closed set of family-specific parameter sets.
type Params interface {
	Family() product.Family
	Base() Common
}

type VanillaParams struct{ Common }

type BarrierParams struct {
	Common
	Kind    product.Family
	Barrier float64
}

type DigitalParams struct {
	Common
	Digital product.DigitalType
	Payout  float64
}

type AsianParams struct {
	Common
	Averaging  product.AveragingMethod
	StrikeType product.StrikeType
}

type AmericanParams struct {
	Common
	Steps int
}

// ForwardParams is a deliverable forward; a zero Strike trades at the market forward.
type ForwardParams struct{ Common }

type OutrightParams struct{ Common }

func (p VanillaParams) Family() product.Family  { return product.Vanilla }
func (p BarrierParams) Family() product.Family  { return p.Kind }
func (p DigitalParams) Family() product.Family  { return product.EuropeanDigital }
func (p AsianParams) Family() product.Family    { return product.Asian }
func (p AmericanParams) Family() product.Family { return product.American }
func (p ForwardParams) Family() product.Family  { return product.Forward }
func (p OutrightParams) Family() product.Family { return product.Outright }

func (p VanillaParams) Base() Common  { return p.Common }
func (p BarrierParams) Base() Common  { return p.Common }
func (p DigitalParams) Base() Common  { return p.Common }
func (p AsianParams) Base() Common    { return p.Common }
func (p AmericanParams) Base() Common { return p.Common }
func (p ForwardParams) Base() Common  { return p.Common }
func (p OutrightParams) Base() Common { return p.Common }

// Key identifies a parameter set for caching.
func Key(p Params) string {
	return fmt.Sprintf("%T%+v", p, p)
}
