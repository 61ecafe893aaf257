package assembler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meenmo/fxstruct/calendar"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/utils"
)

// LegOverride replaces market inputs of one leg. Nil fields keep the market value.
// An overridden spot without an explicit forward derives the forward from the rates.
type LegOverride struct {
	Spot           *float64
	AccrualRate    *float64
	UnderlyingRate *float64
	Forward        *float64
	Vol            *float64
}

// Request carries the trade-level inputs shared by every leg.
type Request struct {
	Notional      float64
	TradeDate     time.Time // zero uses the market reference date
	ExpiryDate    time.Time
	DeliveryDate  time.Time // zero settles spot-lag business days after expiry
	DayCount      string
	Method        product.Method
	SkipRateCheck bool
	Overrides     map[int]LegOverride
}

// RequestFromArgs reads a resolved StructurePricer (or StructureCalibrator) argument set.
// ExpiryTenor is rolled on the market calendar from the trade date.
func RequestFromArgs(args resolver.CanonicalArgs, md marketdata.MarketData) (Request, error) {
	req := Request{DayCount: utils.Act365F, Method: product.MethodAnalytic}

	n, ok := args.Float("Notional")
	if !ok {
		return Request{}, fmt.Errorf("RequestFromArgs: notional is missing")
	}
	req.Notional = n
	if d, ok := args.Date("TradeDate"); ok {
		req.TradeDate = d
	}
	ref := req.TradeDate
	if ref.IsZero() {
		ref = md.ReferenceDate()
	}

	if d, ok := args.Date("ExpiryDate"); ok {
		req.ExpiryDate = d
	} else if tenor, ok := args.Text("ExpiryTenor"); ok {
		exp, err := calendar.ExpiryFromTenor(md.Calendar(), ref, tenor, md.SpotLag())
		if err != nil {
			return Request{}, fmt.Errorf("RequestFromArgs: %w", err)
		}
		req.ExpiryDate = exp
	} else {
		return Request{}, fmt.Errorf("RequestFromArgs: expiry date or tenor is missing")
	}
	if d, ok := args.Date("DeliveryDate"); ok {
		req.DeliveryDate = d
	}

	if v, ok := args.Get("DayCount"); ok {
		if dc, ok := v.(string); ok {
			req.DayCount = dc
		}
	}
	if v, ok := args.Get("PricingMethod"); ok {
		if m, ok := v.(product.Method); ok {
			req.Method = m
		}
	}
	req.SkipRateCheck, _ = args.Bool("SkipRateCheck")

	if v, ok := args.Get("LegOverrides"); ok {
		list, ok := v.([]any)
		if !ok {
			return Request{}, fmt.Errorf("RequestFromArgs: leg overrides are %T, want a list of objects", v)
		}
		overrides, err := parseOverrides(list)
		if err != nil {
			return Request{}, fmt.Errorf("RequestFromArgs: %w", err)
		}
		req.Overrides = overrides
	} else if raw, ok := args.Raw("LegOverrides"); ok && raw != nil {
		return Request{}, fmt.Errorf("RequestFromArgs: leg overrides are not a list of objects: %v", raw)
	}
	return req, nil
}

func parseOverrides(list []any) (map[int]LegOverride, error) {
	out := make(map[int]LegOverride, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("leg override %d is %T", i, item)
		}
		idx := -1
		var o LegOverride
		for k, v := range m {
			f, err := number(v)
			if err != nil {
				return nil, fmt.Errorf("leg override %d: %s: %w", i, k, err)
			}
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "leg", "index":
				idx = int(f)
			case "spot":
				o.Spot = &f
			case "accrualrate":
				o.AccrualRate = &f
			case "underlyingrate":
				o.UnderlyingRate = &f
			case "forward":
				o.Forward = &f
			case "vol", "volatility":
				o.Vol = &f
			default:
				return nil, fmt.Errorf("leg override %d: unknown field %q", i, k)
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("leg override %d: leg index is missing", i)
		}
		out[idx] = o
	}
	return out, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}
