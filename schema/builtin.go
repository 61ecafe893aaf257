package schema

import (
	"sync"

	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/utils"
)

// Built-in schema ids.
const (
	FXVanilla           = "FXVanilla"
	FXBarrier           = "FXBarrier"
	FXDigital           = "FXDigital"
	FXAsian             = "FXAsian"
	FXAmerican          = "FXAmerican"
	FXForward           = "FXForward"
	FXOutright          = "FXOutright"
	StructureDefine     = "StructureDefine"
	StructurePricer     = "StructurePricer"
	StructureCalibrator = "StructureCalibrator"
	MarketSnapshot      = "MarketSnapshot"
)

// Method names registered on the structure pricer.
const (
	MethodPayoffBySpots = "PayoffBySpots"
	MethodGreeks        = "Greeks"
)

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the static catalog shared by the whole process.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		builtin = newBuiltin()
	})
	return builtin
}

func newBuiltin() *Catalog {
	c := NewCatalog()
	registerEnums(c)

	trailer := Layout{
		Opt("TradeDate", TypeDate),
		Opt("Spot", TypeFloat),
		Opt("AccrualRate", TypeFloat),
		Opt("UnderlyingRate", TypeFloat),
		Opt("Forward", TypeFloat),
		Opt("Vol", TypeFloat),
		Def("DayCount", TypeEnum, utils.Act365F),
	}
	dated := Layout{Req("ExpiryDate", TypeDate), Opt("DeliveryDate", TypeDate)}
	tenor := Layout{Req("ExpiryTenor", TypeString)}

	option := Layout{
		Req("BuySell", TypeEnum),
		Req("CallPut", TypeEnum),
		Req("Strike", TypeFloat),
		Req("Notional", TypeFloat),
	}
	analytic := Def("PricingMethod", TypeEnum, product.MethodAnalytic)

	c.MustRegister(FieldSchema{
		ID:      FXVanilla,
		Layouts: overloads(option, Layout{analytic}, trailer, dated, tenor),
	})
	c.MustRegister(FieldSchema{
		ID: FXBarrier,
		Layouts: overloads(option, Layout{
			Req("BarrierType", TypeEnum),
			Req("Barrier", TypeFloat),
			analytic,
		}, trailer, dated, tenor),
	})
	c.MustRegister(FieldSchema{
		ID: FXDigital,
		Layouts: overloads(option, Layout{
			Def("DigitalType", TypeEnum, product.DigitalCash),
			Def("Payout", TypeFloat, 1.0),
			analytic,
		}, trailer, dated, tenor),
	})
	c.MustRegister(FieldSchema{
		ID: FXAsian,
		Layouts: overloads(option, Layout{
			Def("AveragingMethod", TypeEnum, product.Arithmetic),
			Def("StrikeType", TypeEnum, product.FixedStrike),
			analytic,
		}, trailer, dated, tenor),
	})
	c.MustRegister(FieldSchema{
		ID:      FXAmerican,
		Layouts: overloads(option, Layout{Def("PricingMethod", TypeEnum, product.MethodBinomial)}, trailer, dated, tenor),
	})
	linear := func(strike FieldSpec) Layout {
		return Layout{Req("BuySell", TypeEnum), strike, Req("Notional", TypeFloat)}
	}
	c.MustRegister(FieldSchema{
		ID:      FXForward,
		Layouts: overloads(linear(Opt("Strike", TypeFloat)), nil, trailer, dated, tenor),
	})
	c.MustRegister(FieldSchema{
		ID:      FXOutright,
		Layouts: overloads(linear(Req("Strike", TypeFloat)), nil, trailer, dated, tenor),
	})

	c.MustRegister(FieldSchema{
		ID: StructureDefine,
		Layouts: []Layout{{
			Req("PackageName", TypeString),
			Req("BuySell", TypeEnum),
			Req("Strikes", TypeString),
			Req("ProductStructure", TypeString),
			Opt("Arguments", TypeString),
			Def("ClientFacing", TypeIntAsBool, false),
		}},
		IsWrapper: true,
	})

	pricer := Layout{
		Req("PackageName", TypeString),
		Req("BuySell", TypeEnum),
		Req("Notional", TypeFloat),
		Opt("TradeDate", TypeDate),
		Def("ClientFacing", TypeIntAsBool, false),
		Def("SkipRateCheck", TypeBool, false),
		analytic,
		Def("DayCount", TypeEnum, utils.Act365F),
		Opt("LegOverrides", TypeObjectList),
	}
	c.MustRegister(FieldSchema{
		ID:        StructurePricer,
		Layouts:   overloads(pricer, nil, nil, dated, tenor),
		IsWrapper: true,
		Methods: map[string]Layout{
			MethodPayoffBySpots: {Opt("ValueDate", TypeDate), Req("Spots", TypePlainList)},
			MethodGreeks:        {Def("Greeks", TypePlainList, []any{"delta", "gamma", "vega", "theta", "rho"})},
		},
	})

	calib := Layout{
		Req("SolveFor", TypeString),
		Req("Low", TypeFloat),
		Req("High", TypeFloat),
		Req("TargetPrice", TypeFloat),
		Def("TargetUnit", TypeEnum, product.UnitAmount),
		Opt("Tolerance", TypeFloat),
		Opt("MaxIterations", TypeInt),
		Opt("ScanFor", TypeString),
		Opt("ScanFrom", TypeFloat),
		Opt("ScanTo", TypeFloat),
		Opt("ScanStep", TypeFloat),
	}
	c.MustRegister(FieldSchema{
		ID:            StructureCalibrator,
		Layouts:       overloads(pricer, calib, nil, dated, tenor),
		EnumOverrides: map[string]string{"TargetUnit": "PriceUnit"},
		IsWrapper:     true,
	})

	c.MustRegister(FieldSchema{
		ID:      MarketSnapshot,
		Layouts: []Layout{{Req("Snapshot", TypeObject)}},
		Decoders: map[string]Decoder{
			"Snapshot": func(text string) (any, error) {
				return marketdata.ParseSnapshotYAML([]byte(text))
			},
		},
	})
	return c
}

// overloads builds the two standard layouts: explicit expiry date first, expiry tenor second.
func overloads(head, mid, tail, dated, tenor Layout) []Layout {
	build := func(expiry Layout) Layout {
		l := make(Layout, 0, len(head)+len(mid)+len(tail)+len(expiry))
		l = append(l, head...)
		l = append(l, mid...)
		l = append(l, expiry...)
		return append(l, tail...)
	}
	return []Layout{build(dated), build(tenor)}
}

func registerEnums(c *Catalog) {
	c.RegisterEnum("BuySell", map[string]any{
		"buy": product.Buy, "b": product.Buy, "long": product.Buy,
		"sell": product.Sell, "s": product.Sell, "short": product.Sell,
	})
	c.RegisterEnum("CallPut", map[string]any{
		"call": product.Call, "c": product.Call,
		"put": product.Put, "p": product.Put,
		"none": product.None, "outright": product.None, "forward": product.None,
	})
	c.RegisterEnum("BarrierType", map[string]any{
		"downin": product.BarrierDownIn, "di": product.BarrierDownIn,
		"downout": product.BarrierDownOut, "do": product.BarrierDownOut,
		"upin": product.BarrierUpIn, "ui": product.BarrierUpIn,
		"upout": product.BarrierUpOut, "uo": product.BarrierUpOut,
	})
	c.RegisterEnum("DigitalType", map[string]any{
		"cash": product.DigitalCash, "cashornothing": product.DigitalCash,
		"asset": product.DigitalAsset, "assetornothing": product.DigitalAsset,
	})
	c.RegisterEnum("AveragingMethod", map[string]any{
		"arithmetic": product.Arithmetic, "arith": product.Arithmetic,
		"geometric": product.Geometric, "geo": product.Geometric,
	})
	c.RegisterEnum("StrikeType", map[string]any{
		"fixed": product.FixedStrike, "floating": product.FloatingStrike, "float": product.FloatingStrike,
	})
	c.RegisterEnum("PricingMethod", map[string]any{
		"analytic": product.MethodAnalytic, "closedform": product.MethodAnalytic, "bs": product.MethodAnalytic,
		"binomial": product.MethodBinomial, "tree": product.MethodBinomial, "crr": product.MethodBinomial,
	})
	c.RegisterEnum("DayCount", map[string]any{
		"act/360": utils.Act360, "act360": utils.Act360,
		"act/365f": utils.Act365F, "act365f": utils.Act365F, "act/365": utils.Act365F, "act365": utils.Act365F,
		"30/360": utils.Thirty, "30e/360": utils.Thirty,
	})
	c.RegisterEnum("MarketSide", map[string]any{
		"mid": product.MarketMid, "client": product.MarketClient, "house": product.MarketClient,
	})
	c.RegisterEnum("PriceUnit", map[string]any{
		"amount": product.UnitAmount, "premium": product.UnitAmount,
		"pips": product.UnitPips, "pip": product.UnitPips,
	})
}
