package assembler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/meenmo/fxstruct/calendar"
	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
	"github.com/meenmo/fxstruct/utils"
)

type options struct {
	engine pricing.Engine
	cfg    config.Config
	cache  *cache.Cache
	log    *slog.Logger
}

// Option configures assembly.
type Option func(*options)

// WithEngine sets the pricing engine; the default is the GK engine.
func WithEngine(e pricing.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithConfig overrides the process configuration.
func WithConfig(c config.Config) Option {
	return func(o *options) { o.cfg = c }
}

// WithLegCache reuses priced legs with identical parameters.
func WithLegCache(c *cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger for per-leg diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{cfg: config.GetConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = pricing.NewGK(o.cfg.BinomialSteps)
	}
	o.log = logger.OrDefault(o.log)
	return o
}

// Assemble prices every leg of tmpl against md and aggregates them into an Instrument.
// values holds strike, barrier, payout and leverage values keyed by lower-cased name.
func Assemble(tmpl structure.Template, values map[string]float64, req Request, md marketdata.MarketData, opts ...Option) (*Instrument, error) {
	return assemble(tmpl, values, req, md, buildOptions(opts))
}

func assemble(tmpl structure.Template, values map[string]float64, req Request, md marketdata.MarketData, o options) (*Instrument, error) {
	if md == nil {
		return nil, fmt.Errorf("Assemble: %s: market data is nil", tmpl.PackageKey)
	}
	if req.ExpiryDate.IsZero() {
		return nil, fmt.Errorf("Assemble: %s: expiry date is not set", tmpl.PackageKey)
	}
	if req.TradeDate.IsZero() {
		req.TradeDate = md.ReferenceDate()
	}
	if req.DeliveryDate.IsZero() {
		req.DeliveryDate = calendar.DeliveryDate(md.Calendar(), req.ExpiryDate, md.SpotLag())
	}
	if req.DayCount == "" {
		req.DayCount = utils.Act365F
	}

	inst := &Instrument{
		tmpl:   tmpl,
		values: copyValues(values),
		req:    req,
		md:     md,
		opts:   o,
	}
	for _, name := range tmpl.StrikeNames {
		if v, ok := inst.values[schema.NormalizeKey(name)]; ok {
			inst.addKeySpot(name, v)
		}
	}

	for i, desc := range tmpl.Legs {
		leg, err := inst.buildLeg(i, desc)
		if err != nil {
			return nil, fmt.Errorf("Assemble: %s leg %d (%s): %w", tmpl.PackageKey, i, desc.Raw, err)
		}
		inst.legs = append(inst.legs, leg)
	}
	return inst, nil
}

func (inst *Instrument) lookup(name string) (float64, error) {
	v, ok := inst.values[schema.NormalizeKey(name)]
	if !ok {
		return 0, &MissingValueError{Name: name}
	}
	return v, nil
}

func (inst *Instrument) buildLeg(i int, desc structure.LegDescriptor) (Leg, error) {
	req, md := inst.req, inst.md

	leverage := desc.Leverage
	if desc.IsLeverageReference() {
		v, err := inst.lookup(desc.LeverageRef)
		if err != nil {
			return Leg{}, err
		}
		leverage = v
	}

	var strike float64
	switch {
	case desc.PrimaryStrike() != "":
		v, err := inst.lookup(desc.PrimaryStrike())
		if err != nil {
			return Leg{}, err
		}
		strike = v
	case desc.Family != product.Forward:
		return Leg{}, &MissingValueError{Name: "strike"}
	}

	sides := Conventions(desc.Side, desc.OptionType, inst.tmpl.ClientFacing, desc.MarketSide)
	expiry := req.ExpiryDate
	c := pricing.Common{
		OptionType:     desc.OptionType,
		TradeDate:      req.TradeDate,
		ExpiryDate:     expiry,
		DeliveryDate:   req.DeliveryDate,
		Spot:           md.Spot(sides.Spot),
		Strike:         strike,
		AccrualRate:    md.AccrualRate(expiry, sides.Accrual),
		UnderlyingRate: md.UnderlyingRate(expiry, sides.Underlying),
		Forward:        md.Forward(expiry, sides.Spot, sides.Accrual, sides.Underlying),
		Notional:       math.Abs(leverage * req.Notional),
		DayCount:       req.DayCount,
		Calendar:       md.Calendar(),
		Method:         req.Method,
	}
	volStrike := strike
	if volStrike <= 0 {
		volStrike = c.Forward
	}
	c.Vol = md.Vol(volStrike, expiry, sides.Vol)

	if o, ok := req.Overrides[i]; ok {
		if o.Spot != nil {
			c.Spot = *o.Spot
			c.Forward = 0
		}
		if o.AccrualRate != nil {
			c.AccrualRate = *o.AccrualRate
		}
		if o.UnderlyingRate != nil {
			c.UnderlyingRate = *o.UnderlyingRate
		}
		if o.Forward != nil {
			c.Forward = *o.Forward
		}
		if o.Vol != nil {
			c.Vol = *o.Vol
		}
	}

	params, err := inst.params(desc, c)
	if err != nil {
		return Leg{}, err
	}
	if !req.SkipRateCheck {
		if err := rateCheck(desc.Family, params); err != nil {
			return Leg{}, err
		}
	}

	handle, err := inst.price(params)
	if err != nil {
		if errors.Is(err, pricing.ErrUnsupported) {
			return Leg{}, &UnsupportedLegFamilyError{Family: desc.Family, Detail: err.Error()}
		}
		return Leg{}, err
	}

	amount := desc.Side.Sign() * leverage * req.Notional
	inst.opts.log.Debug("leg priced",
		"package", inst.tmpl.PackageKey, "leg", i, "family", desc.Family,
		"spot", sides.Spot, "accrual", sides.Accrual, "underlying", sides.Underlying, "vol_side", sides.Vol,
		"amount", amount, "price", handle.Price())
	return Leg{Index: i, Descriptor: desc, Params: params, Handle: handle, Amount: amount}, nil
}

// params builds the family-specific parameter set.
func (inst *Instrument) params(desc structure.LegDescriptor, c pricing.Common) (pricing.Params, error) {
	switch {
	case desc.Family == product.Vanilla:
		return pricing.VanillaParams{Common: c}, nil

	case desc.Family.IsBarrier():
		h, err := inst.lookup(desc.SecondaryName())
		if err != nil {
			return nil, err
		}
		inst.addBarrierSpots(desc.SecondaryName(), h)
		return pricing.BarrierParams{Common: c, Kind: desc.Family, Barrier: h}, nil

	case desc.Family == product.EuropeanDigital:
		payout := 1.0
		if name := desc.SecondaryName(); name != "" {
			v, err := inst.lookup(name)
			if err != nil {
				return nil, err
			}
			payout = v
		}
		return pricing.DigitalParams{Common: c, Digital: desc.DigitalType, Payout: payout}, nil

	case desc.Family == product.Asian:
		p := pricing.AsianParams{Common: c, Averaging: product.Arithmetic, StrikeType: product.FixedStrike}
		cat := schema.Builtin()
		if len(desc.SubArgs) > 0 {
			v, err := cat.LookupEnum("AveragingMethod", desc.SubArgs[0])
			if err != nil {
				return nil, &UnsupportedLegFamilyError{Family: desc.Family, Detail: err.Error()}
			}
			p.Averaging = v.(product.AveragingMethod)
		}
		if len(desc.SubArgs) > 1 {
			v, err := cat.LookupEnum("StrikeType", desc.SubArgs[1])
			if err != nil {
				return nil, &UnsupportedLegFamilyError{Family: desc.Family, Detail: err.Error()}
			}
			p.StrikeType = v.(product.StrikeType)
		}
		return p, nil

	case desc.Family == product.American:
		return pricing.AmericanParams{Common: c, Steps: inst.opts.cfg.BinomialSteps}, nil

	case desc.Family == product.Forward:
		return pricing.ForwardParams{Common: c}, nil

	case desc.Family == product.Outright:
		return pricing.OutrightParams{Common: c}, nil

	default:
		return nil, &UnsupportedLegFamilyError{Family: desc.Family}
	}
}

func (inst *Instrument) addBarrierSpots(name string, h float64) {
	off := inst.opts.cfg.BarrierOffsetBP
	label := fmt.Sprintf("%gbp", off)
	inst.addKeySpot(name, h)
	inst.addKeySpot(name+"+"+label, h*(1+off*1e-4))
	inst.addKeySpot(name+"-"+label, h*(1-off*1e-4))
}

func (inst *Instrument) addKeySpot(name string, spot float64) {
	for _, k := range inst.keySpots {
		if strings.EqualFold(k.Name, name) {
			return
		}
	}
	inst.keySpots = append(inst.keySpots, KeySpot{Name: name, Spot: spot})
}

// rateCheck enforces the per-family invariants that would otherwise produce meaningless prices.
func rateCheck(fam product.Family, p pricing.Params) error {
	c := p.Base()
	fail := func(format string, args ...any) error {
		return &RateCheckFailedError{Family: fam, Detail: fmt.Sprintf(format, args...)}
	}
	if c.Spot <= 0 {
		return fail("spot %v is not positive", c.Spot)
	}
	if fam == product.Forward {
		return nil
	}
	if c.Strike <= 0 {
		return fail("strike %v is not positive", c.Strike)
	}
	if fam.IsLinear() {
		return nil
	}
	if c.Vol <= 0 {
		return fail("vol %v is not positive", c.Vol)
	}
	switch p := p.(type) {
	case pricing.BarrierParams:
		if p.Barrier <= 0 {
			return fail("barrier %v is not positive", p.Barrier)
		}
		if fam.IsDown() && c.Spot <= p.Barrier {
			return fail("down barrier %v is not below spot %v", p.Barrier, c.Spot)
		}
		if !fam.IsDown() && c.Spot >= p.Barrier {
			return fail("up barrier %v is not above spot %v", p.Barrier, c.Spot)
		}
	case pricing.DigitalParams:
		if p.Digital == product.DigitalCash && p.Payout <= 0 {
			return fail("payout %v is not positive", p.Payout)
		}
	}
	return nil
}

func (inst *Instrument) price(p pricing.Params) (pricing.Leg, error) {
	c := inst.opts.cache
	if c == nil {
		return inst.opts.engine.New(p)
	}
	key := inst.opts.engine.Name() + "|" + pricing.Key(p)
	if v, ok := c.Get(key); ok {
		if leg, ok := v.(pricing.Leg); ok {
			return leg, nil
		}
	}
	leg, err := inst.opts.engine.New(p)
	if err != nil {
		return nil, err
	}
	c.Set(key, leg, cache.DefaultExpiration)
	return leg, nil
}

func copyValues(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[schema.NormalizeKey(k)] = v
	}
	return out
}
