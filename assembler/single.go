package assembler

import (
	"fmt"
	"strings"

	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

// singleFamilies maps each single-instrument schema to the leg family it prices.
// FXBarrier takes its family from the BarrierType argument.
var singleFamilies = []struct {
	id     string
	family product.Family
}{
	{schema.FXVanilla, product.Vanilla},
	{schema.FXBarrier, ""},
	{schema.FXDigital, product.EuropeanDigital},
	{schema.FXAsian, product.Asian},
	{schema.FXAmerican, product.American},
	{schema.FXForward, product.Forward},
	{schema.FXOutright, product.Outright},
}

// SingleSchemas lists the schema ids accepted by LegFromArgs.
func SingleSchemas() []string {
	out := make([]string, len(singleFamilies))
	for i, f := range singleFamilies {
		out[i] = f.id
	}
	return out
}

// IsSingleSchema reports whether LegFromArgs accepts schemaID.
func IsSingleSchema(schemaID string) bool {
	_, _, ok := singleFamily(schemaID)
	return ok
}

func singleFamily(schemaID string) (string, product.Family, bool) {
	for _, f := range singleFamilies {
		if strings.EqualFold(f.id, schemaID) {
			return f.id, f.family, true
		}
	}
	return "", "", false
}

// LegFromArgs assembles a one-leg instrument from arguments resolved against a
// single-instrument schema. Spot, AccrualRate, UnderlyingRate, Forward and Vol
// arguments override the market for that leg.
func LegFromArgs(schemaID string, args resolver.CanonicalArgs, md marketdata.MarketData, opts ...Option) (*Instrument, error) {
	id, family, ok := singleFamily(schemaID)
	if !ok {
		return nil, fmt.Errorf("LegFromArgs: %w", &schema.UnknownSchemaError{SchemaID: schemaID})
	}

	v, _ := args.Get("BuySell")
	side, ok := v.(product.Side)
	if !ok {
		return nil, fmt.Errorf("LegFromArgs: %s: %w", id, &MissingValueError{Name: "BuySell"})
	}
	desc := structure.LegDescriptor{Side: side, Leverage: 1, Family: family, OptionType: product.None, MarketSide: product.MarketClient}
	if v, ok := args.Get("CallPut"); ok {
		if cp, ok := v.(product.OptionType); ok {
			desc.OptionType = cp
		}
	}

	values := map[string]float64{}
	bind := func(name string) error {
		x, ok := args.Float(name)
		if !ok {
			return &MissingValueError{Name: name}
		}
		values[schema.NormalizeKey(name)] = x
		desc.StrikeNames = append(desc.StrikeNames, name)
		return nil
	}
	if _, ok := args.Float("Strike"); ok || family != product.Forward {
		if err := bind("Strike"); err != nil {
			return nil, fmt.Errorf("LegFromArgs: %s: %w", id, err)
		}
	}

	switch id {
	case schema.FXBarrier:
		v, _ := args.Get("BarrierType")
		kind, ok := v.(product.Family)
		if !ok || !kind.IsBarrier() {
			return nil, fmt.Errorf("LegFromArgs: %s: %w", id, &MissingValueError{Name: "BarrierType"})
		}
		desc.Family = kind
		if err := bind("Barrier"); err != nil {
			return nil, fmt.Errorf("LegFromArgs: %s: %w", id, err)
		}
	case schema.FXDigital:
		desc.DigitalType = product.DigitalCash
		if v, ok := args.Get("DigitalType"); ok {
			if dt, ok := v.(product.DigitalType); ok {
				desc.DigitalType = dt
			}
		}
		if err := bind("Payout"); err != nil {
			return nil, fmt.Errorf("LegFromArgs: %s: %w", id, err)
		}
	case schema.FXAsian:
		avg, st := product.Arithmetic, product.FixedStrike
		if v, ok := args.Get("AveragingMethod"); ok {
			if a, ok := v.(product.AveragingMethod); ok {
				avg = a
			}
		}
		if v, ok := args.Get("StrikeType"); ok {
			if s, ok := v.(product.StrikeType); ok {
				st = s
			}
		}
		desc.SubArgs = []string{string(avg), string(st)}
	}
	desc.Raw = desc.String()

	req, err := RequestFromArgs(args, md)
	if err != nil {
		return nil, fmt.Errorf("LegFromArgs: %s: %w", id, err)
	}
	var o LegOverride
	set := false
	for name, dst := range map[string]**float64{
		"Spot":           &o.Spot,
		"AccrualRate":    &o.AccrualRate,
		"UnderlyingRate": &o.UnderlyingRate,
		"Forward":        &o.Forward,
		"Vol":            &o.Vol,
	} {
		if x, ok := args.Float(name); ok {
			*dst = &x
			set = true
		}
	}
	if set {
		req.Overrides = map[int]LegOverride{0: o}
	}

	tmpl := structure.Template{
		PackageKey:  id,
		Side:        side,
		StrikeNames: append([]string(nil), desc.StrikeNames...),
		Legs:        []structure.LegDescriptor{desc},
	}
	inst, err := Assemble(tmpl, values, req, md, opts...)
	if err != nil {
		return nil, fmt.Errorf("LegFromArgs: %w", err)
	}
	return inst, nil
}
