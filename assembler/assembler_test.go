package assembler_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

var ref = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func market() *marketdata.Snapshot {
	return marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10)
}

func template(t *testing.T, pkg string, names []string, legs ...string) structure.Template {
	t.Helper()
	tmpl := structure.Template{PackageKey: pkg, Side: product.Buy, StrikeNames: names}
	for _, raw := range legs {
		leg, err := structure.ParseLeg(raw)
		require.NoError(t, err)
		tmpl.Legs = append(tmpl.Legs, leg)
	}
	return tmpl
}

func request() assembler.Request {
	return assembler.Request{Notional: 1_000_000, ExpiryDate: ref.AddDate(0, 6, 0)}
}

func rangeForward(t *testing.T) structure.Template {
	return template(t, "RF", []string{"K1", "K2"}, "buy vanilla call@K1", "sell 2x vanilla put@K2")
}

func rfValues() map[string]float64 {
	return map[string]float64{"K1": 1.15, "k2": 1.05}
}

func TestConventions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		side   product.Side
		opt    product.OptionType
		client bool
		market product.MarketSide
		want   assembler.Sides
	}{
		{product.Buy, product.Call, false, product.MarketClient, assembler.Sides{Spot: product.Bid, Accrual: product.Bid, Underlying: product.Ask, Vol: product.Bid}},
		{product.Sell, product.Put, false, product.MarketClient, assembler.Sides{Spot: product.Bid, Accrual: product.Bid, Underlying: product.Ask, Vol: product.Ask}},
		{product.Buy, product.Put, false, product.MarketClient, assembler.Sides{Spot: product.Ask, Accrual: product.Ask, Underlying: product.Bid, Vol: product.Bid}},
		{product.Sell, product.Call, false, product.MarketClient, assembler.Sides{Spot: product.Ask, Accrual: product.Ask, Underlying: product.Bid, Vol: product.Ask}},
		{product.Buy, product.Call, true, product.MarketClient, assembler.Sides{Spot: product.Ask, Accrual: product.Ask, Underlying: product.Bid, Vol: product.Ask}},
		{product.Buy, product.None, false, product.MarketClient, assembler.Sides{Spot: product.Bid, Accrual: product.Bid, Underlying: product.Ask, Vol: product.Bid}},
		{product.Sell, product.Put, true, product.MarketMid, assembler.Sides{Spot: product.Mid, Accrual: product.Mid, Underlying: product.Mid, Vol: product.Mid}},
	}
	for _, tc := range cases {
		got := assembler.Conventions(tc.side, tc.opt, tc.client, tc.market)
		assert.Equal(t, tc.want, got, "%s %s client=%v %s", tc.side, tc.opt, tc.client, tc.market)
	}
}

func TestAssemble_PriceIsSignedSumOfLegs(t *testing.T) {
	t.Parallel()

	inst, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market())
	require.NoError(t, err)

	legs := inst.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, 1_000_000.0, legs[0].Amount)
	assert.Equal(t, -2_000_000.0, legs[1].Amount)
	assert.Greater(t, legs[0].Value, 0.0)
	assert.Less(t, legs[1].Value, 0.0)
	assert.InDelta(t, legs[0].Fields["price"].(float64), legs[0].Value, 1e-9)
	assert.InDelta(t, -legs[1].Fields["price"].(float64), legs[1].Value, 1e-9)
	assert.InDelta(t, legs[0].Value+legs[1].Value, inst.Price(), 1e-9)
	assert.Equal(t, 2_000_000.0, inst.MaxLegAmount())

	// delivery defaults to expiry plus the spot lag
	assert.True(t, inst.Request().DeliveryDate.After(inst.Request().ExpiryDate))
	assert.Equal(t, ref, inst.Request().TradeDate)
}

func TestAssemble_MatchesEngineDirectly(t *testing.T) {
	t.Parallel()

	md := market()
	req := request()
	tmpl := template(t, "C", []string{"K"}, "buy vanilla call@K")
	inst, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.12}, req, md)
	require.NoError(t, err)

	leg, err := pricing.NewGK(0).New(pricing.VanillaParams{Common: pricing.Common{
		OptionType:     product.Call,
		TradeDate:      ref,
		ExpiryDate:     req.ExpiryDate,
		Spot:           1.10,
		Strike:         1.12,
		AccrualRate:    0.04,
		UnderlyingRate: 0.02,
		Vol:            0.10,
		Notional:       req.Notional,
		DayCount:       "ACT/365F",
	}})
	require.NoError(t, err)
	assert.InDelta(t, leg.Price(), inst.Price(), 1e-6)
}

func TestAssemble_RateCheck(t *testing.T) {
	t.Parallel()

	tmpl := template(t, "UO", []string{"K", "H"}, "buy barrierupout call@K,H")
	values := map[string]float64{"K": 1.10, "H": 1.05}

	_, err := assembler.Assemble(tmpl, values, request(), market())
	var rce *assembler.RateCheckFailedError
	require.True(t, errors.As(err, &rce), "got %v", err)
	assert.Equal(t, product.BarrierUpOut, rce.Family)
	assert.Contains(t, err.Error(), "UO leg 0")

	req := request()
	req.SkipRateCheck = true
	inst, err := assembler.Assemble(tmpl, values, req, market())
	require.NoError(t, err)
	assert.Zero(t, inst.Price(), "knocked out already")

	_, err = assembler.Assemble(template(t, "C", []string{"K"}, "buy vanilla call@K"),
		map[string]float64{"K": -1}, request(), market())
	require.True(t, errors.As(err, &rce))
}

func TestAssemble_MissingValue(t *testing.T) {
	t.Parallel()

	tmpl := template(t, "L", []string{"K"}, "buy lev vanilla call@K")
	tmpl.Arguments = []string{"lev"}

	_, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.1}, request(), market())
	var mve *assembler.MissingValueError
	require.True(t, errors.As(err, &mve))
	assert.Equal(t, "lev", mve.Name)

	inst, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.1, "LEV": 3}, request(), market())
	require.NoError(t, err)
	assert.Equal(t, 3_000_000.0, inst.Legs()[0].Amount)

	_, err = assembler.Assemble(tmpl, map[string]float64{"K": 1.1, "lev": 1}, assembler.Request{Notional: 1}, market())
	assert.Error(t, err, "expiry is required")
}

func TestAssemble_UnsupportedFamily(t *testing.T) {
	t.Parallel()

	tmpl := template(t, "A", []string{"K"}, "buy asian_arithmetic_floating call@K")
	_, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.1}, request(), market())
	var ufe *assembler.UnsupportedLegFamilyError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, product.Asian, ufe.Family)

	tmpl = template(t, "A", []string{"K"}, "buy asian_harmonic call@K")
	_, err = assembler.Assemble(tmpl, map[string]float64{"K": 1.1}, request(), market())
	require.True(t, errors.As(err, &ufe))

	tmpl = template(t, "A", []string{"K"}, "buy asian_geometric call@K")
	inst, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.1}, request(), market())
	require.NoError(t, err)
	assert.Equal(t, string(product.Geometric), inst.Legs()[0].Fields["averaging"])
}

func TestInstrument_CloneWith(t *testing.T) {
	t.Parallel()

	inst, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market())
	require.NoError(t, err)

	higher, err := inst.CloneWith(map[string]float64{"k1": 1.20})
	require.NoError(t, err)
	assert.Less(t, higher.Price(), inst.Price())
	assert.Equal(t, 1.15, inst.Values()["k1"], "original untouched")
	assert.Equal(t, 1.20, higher.Values()["k1"])

	_, err = inst.CloneWith(map[string]float64{"K3": 1})
	assert.Error(t, err)
}

func TestInstrument_Pips(t *testing.T) {
	t.Parallel()

	inst, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market())
	require.NoError(t, err)
	assert.Equal(t, "1.25", inst.Pips(250).String())

	cfg := config.DefaultConfig
	cfg.PipsUnit = 100
	cfg.PipsDecimals = 0
	jpy, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market(), assembler.WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, "3", jpy.Pips(50_000).String())

	md := market()
	md.Pair = "USDJPY"
	preset, err := assembler.Assemble(rangeForward(t), rfValues(), request(), md)
	require.NoError(t, err)
	assert.Equal(t, "2.5", preset.Pips(50_000).String())
	assert.InDelta(t, 50_000, preset.FromPips(2.5), 1e-6)
}

func TestInstrument_PayoffBySpots(t *testing.T) {
	t.Parallel()

	inst, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market())
	require.NoError(t, err)

	atExpiry, err := inst.PayoffBySpots(time.Time{}, []float64{1.20, 1.10, 1.00})
	require.NoError(t, err)
	assert.InDelta(t, 50_000, atExpiry[0], 1e-6)
	assert.InDelta(t, 0, atExpiry[1], 1e-6)
	assert.InDelta(t, -100_000, atExpiry[2], 1e-6)

	today, err := inst.PayoffBySpots(ref, []float64{1.10})
	require.NoError(t, err)
	assert.InDelta(t, inst.Price(), today[0], 1e-6)

	_, err = inst.PayoffBySpots(ref, []float64{0})
	assert.Error(t, err)
}

func TestInstrument_KeySpots(t *testing.T) {
	t.Parallel()

	tmpl := template(t, "UO", []string{"K", "H"}, "buy barrierupout call@K,H", "sell barrierupout put@K,H")
	inst, err := assembler.Assemble(tmpl, map[string]float64{"K": 1.10, "H": 1.20}, request(), market())
	require.NoError(t, err)

	spots := inst.KeySpots()
	names := make([]string, 0, len(spots))
	for _, s := range spots {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"K", "H", "H+1bp", "H-1bp"}, names)
	assert.InDelta(t, 1.20012, spots[2].Spot, 1e-12)
	assert.InDelta(t, 1.19988, spots[3].Spot, 1e-12)
}

func TestInstrument_Greeks(t *testing.T) {
	t.Parallel()

	inst, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market())
	require.NoError(t, err)
	gs := inst.Greeks([]pricing.Greek{pricing.Delta, pricing.Vega})
	assert.Greater(t, gs[pricing.Delta].Value, 0.0, "long call, short put")
	assert.True(t, gs[pricing.Vega].Supported)

	fwd := template(t, "F", nil, "buy forward")
	linear, err := assembler.Assemble(fwd, nil, request(), market())
	require.NoError(t, err)
	assert.False(t, linear.Greek(pricing.Vega).Supported)
	assert.True(t, linear.Greek(pricing.Delta).Supported)
	assert.InDelta(t, 0, linear.Price(), 1e-6)
}

func TestAssemble_Overrides(t *testing.T) {
	t.Parallel()

	tmpl := template(t, "C", []string{"K"}, "buy vanilla call@K")
	values := map[string]float64{"K": 1.12}
	base, err := assembler.Assemble(tmpl, values, request(), market())
	require.NoError(t, err)

	vol := 0.20
	req := request()
	req.Overrides = map[int]assembler.LegOverride{0: {Vol: &vol}}
	bumped, err := assembler.Assemble(tmpl, values, req, market())
	require.NoError(t, err)
	assert.Greater(t, bumped.Price(), base.Price())
	assert.Equal(t, 0.20, bumped.Legs()[0].Fields["vol"])
}

func TestAssemble_LegCache(t *testing.T) {
	t.Parallel()

	c := assembler.NewLegCache(time.Minute, 0)
	_, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market(), assembler.WithLegCache(c))
	require.NoError(t, err)
	assert.Equal(t, 2, c.ItemCount())

	again, err := assembler.Assemble(rangeForward(t), rfValues(), request(), market(), assembler.WithLegCache(c))
	require.NoError(t, err)
	assert.Equal(t, 2, c.ItemCount())

	moved, err := again.CloneWith(map[string]float64{"K1": 1.16})
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemCount())
	assert.NotEqual(t, again.Price(), moved.Price())

	flusher := &assembler.CacheFlusher{Cache: c}
	flusher.StructureChanged("RF@2")
	assert.Zero(t, c.ItemCount())
}

func TestRequestFromArgs(t *testing.T) {
	t.Parallel()

	md := market()
	res, err := resolver.Resolve(nil, schema.StructurePricer, resolver.Batch{resolver.KV(map[string]any{
		"PackageName":   "RF",
		"BuySell":       "buy",
		"Notional":      "1,000,000",
		"ExpiryTenor":   "3M",
		"PricingMethod": "binomial",
		"LegOverrides":  []any{map[string]any{"leg": 1, "vol": 0.12}},
	})})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	req, err := assembler.RequestFromArgs(res.Args, md)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, req.Notional)
	assert.Equal(t, product.MethodBinomial, req.Method)
	assert.True(t, req.ExpiryDate.After(ref.AddDate(0, 2, 25)))
	assert.True(t, req.ExpiryDate.Before(ref.AddDate(0, 3, 5)))
	require.Contains(t, req.Overrides, 1)
	assert.Equal(t, 0.12, *req.Overrides[1].Vol)
	assert.Nil(t, req.Overrides[1].Forward)

	res, err = resolver.Resolve(nil, schema.StructurePricer, resolver.Batch{resolver.KV(map[string]any{
		"PackageName":  "RF",
		"BuySell":      "buy",
		"Notional":     1,
		"ExpiryDate":   "2025-12-01",
		"LegOverrides": []any{map[string]any{"vol": 0.12}},
	})})
	require.NoError(t, err)
	_, err = assembler.RequestFromArgs(res.Args, md)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "leg index"))

	res, err = resolver.Resolve(nil, schema.StructurePricer, resolver.Batch{resolver.KV(map[string]any{
		"PackageName":  "RF",
		"BuySell":      "buy",
		"Notional":     1,
		"ExpiryDate":   "2025-12-01",
		"LegOverrides": []any{"leg=0 vol=0.5"},
	})})
	require.NoError(t, err)
	var ife *resolver.InvalidFieldsError
	require.True(t, errors.As(res.Err(), &ife))
	assert.Equal(t, []string{"LegOverrides"}, ife.Fields())
	_, err = assembler.RequestFromArgs(res.Args, md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leg overrides")
}

func resolveSingle(t *testing.T, schemaID string, data map[string]any) resolver.CanonicalArgs {
	t.Helper()
	base := map[string]any{"BuySell": "buy", "Notional": 1_000_000, "ExpiryDate": "2025-12-02"}
	for k, v := range data {
		base[k] = v
	}
	res, err := resolver.Resolve(nil, schemaID, resolver.Batch{resolver.KV(base)})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	return res.Args
}

func TestLegFromArgs_MatchesTemplate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		schemaID string
		data     map[string]any
		leg      string
		names    []string
		values   map[string]float64
	}{
		{schema.FXVanilla, map[string]any{"CallPut": "call", "Strike": 1.12},
			"buy vanilla call@K", []string{"K"}, map[string]float64{"K": 1.12}},
		{schema.FXBarrier, map[string]any{"CallPut": "put", "Strike": 1.10, "BarrierType": "Down-Out", "Barrier": 1.0},
			"buy barrierdownout put@K,H", []string{"K", "H"}, map[string]float64{"K": 1.10, "H": 1.0}},
		{schema.FXDigital, map[string]any{"CallPut": "call", "Strike": 1.12},
			"buy cash call@K", []string{"K"}, map[string]float64{"K": 1.12}},
		{schema.FXAsian, map[string]any{"CallPut": "call", "Strike": 1.10, "AveragingMethod": "geometric"},
			"buy asian_geometric_fixed call@K", []string{"K"}, map[string]float64{"K": 1.10}},
	}
	for _, tc := range cases {
		inst, err := assembler.LegFromArgs(tc.schemaID, resolveSingle(t, tc.schemaID, tc.data), market())
		require.NoError(t, err, tc.schemaID)
		require.Len(t, inst.Legs(), 1)

		want, err := assembler.Assemble(template(t, "T", tc.names, tc.leg), tc.values, request(), market())
		require.NoError(t, err, tc.leg)
		assert.InDelta(t, want.Price(), inst.Price(), 1e-6, tc.schemaID)
		assert.Equal(t, tc.schemaID, inst.Template().PackageKey)
	}
}

func TestLegFromArgs_LinearAndOverrides(t *testing.T) {
	t.Parallel()

	fwd, err := assembler.LegFromArgs(schema.FXForward, resolveSingle(t, schema.FXForward, nil), market())
	require.NoError(t, err)
	assert.InDelta(t, 0, fwd.Price(), 1e-6)

	out, err := assembler.LegFromArgs(schema.FXOutright, resolveSingle(t, schema.FXOutright, map[string]any{"Strike": 1.10}), market())
	require.NoError(t, err)
	bumped, err := assembler.LegFromArgs(schema.FXOutright,
		resolveSingle(t, schema.FXOutright, map[string]any{"Strike": 1.10, "Spot": 1.20}), market())
	require.NoError(t, err)
	assert.Greater(t, bumped.Price(), out.Price())

	base := map[string]any{"CallPut": "call", "Strike": 1.12}
	plain, err := assembler.LegFromArgs(schema.FXVanilla, resolveSingle(t, schema.FXVanilla, base), market())
	require.NoError(t, err)
	base["Vol"] = 0.20
	vol, err := assembler.LegFromArgs(schema.FXVanilla, resolveSingle(t, schema.FXVanilla, base), market())
	require.NoError(t, err)
	assert.Greater(t, vol.Price(), plain.Price())

	american, err := assembler.LegFromArgs(schema.FXAmerican,
		resolveSingle(t, schema.FXAmerican, map[string]any{"CallPut": "put", "Strike": 1.12}), market())
	require.NoError(t, err)
	assert.Greater(t, american.Price(), 0.0)
}

func TestLegFromArgs_Errors(t *testing.T) {
	t.Parallel()

	_, err := assembler.LegFromArgs(schema.StructurePricer, resolver.CanonicalArgs{}, market())
	var use *schema.UnknownSchemaError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, schema.StructurePricer, use.SchemaID)

	assert.Equal(t, []string{
		schema.FXVanilla, schema.FXBarrier, schema.FXDigital, schema.FXAsian,
		schema.FXAmerican, schema.FXForward, schema.FXOutright,
	}, assembler.SingleSchemas())

	args := resolveSingle(t, schema.FXBarrier, map[string]any{
		"CallPut": "put", "Strike": 1.10, "BarrierType": "up-out", "Barrier": 1.0,
	})
	_, err = assembler.LegFromArgs(schema.FXBarrier, args, market())
	var rce *assembler.RateCheckFailedError
	assert.True(t, errors.As(err, &rce), "got %v", err)
}
