package structure_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/structure"
)

func TestParseLeg_Examples(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want structure.LegDescriptor
	}{
		{
			raw:  "Buy Vanilla Call",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 1, Family: product.Vanilla, OptionType: product.Call},
		},
		{
			raw:  "Sell 2 Vanilla Put",
			want: structure.LegDescriptor{Side: product.Sell, Leverage: 2, Family: product.Vanilla, OptionType: product.Put},
		},
		{
			raw:  "Buy 2x Vanilla Call@K1",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 2, Family: product.Vanilla, OptionType: product.Call, StrikeNames: []string{"K1"}},
		},
		{
			raw: "Buy Cash Call",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 1, Family: product.EuropeanDigital,
				OptionType: product.Call, DigitalType: product.DigitalCash},
		},
		{
			raw: "Sell 3 Asset Put@K1,Pay",
			want: structure.LegDescriptor{Side: product.Sell, Leverage: 3, Family: product.EuropeanDigital,
				OptionType: product.Put, DigitalType: product.DigitalAsset, StrikeNames: []string{"K1", "Pay"}},
		},
		{
			raw:  "Buy X Outright",
			want: structure.LegDescriptor{Side: product.Buy, LeverageRef: "X", Family: product.Outright, OptionType: product.None},
		},
		{
			raw:  "sell forward@F",
			want: structure.LegDescriptor{Side: product.Sell, Leverage: 1, Family: product.Forward, OptionType: product.None, StrikeNames: []string{"F"}},
		},
		{
			raw:  "buy put@K2",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 1, Family: product.Vanilla, OptionType: product.Put, StrikeNames: []string{"K2"}},
		},
		{
			raw: "Sell Barrier_Down_Out Put@K2,B2",
			want: structure.LegDescriptor{Side: product.Sell, Leverage: 1, Family: product.BarrierDownOut,
				OptionType: product.Put, StrikeNames: []string{"K2", "B2"}},
		},
		{
			raw:  "Buy 0.5 American Call@K",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 0.5, Family: product.American, OptionType: product.Call, StrikeNames: []string{"K"}},
		},
		{
			raw: "Buy Asian_Geometric_Fixed Call@K",
			want: structure.LegDescriptor{Side: product.Buy, Leverage: 1, Family: product.Asian, OptionType: product.Call,
				StrikeNames: []string{"K"}, SubArgs: []string{"Geometric", "Fixed"}},
		},
	}
	for _, tc := range cases {
		got, err := structure.ParseLeg(tc.raw)
		require.NoError(t, err, tc.raw)
		tc.want.Raw = tc.raw
		tc.want.MarketSide = product.MarketClient
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseLeg_MidQualifier(t *testing.T) {
	t.Parallel()

	leg, err := structure.ParseLeg("K1,mid Sell Vanilla Call@K1")
	require.NoError(t, err)
	assert.Equal(t, product.MarketMid, leg.MarketSide)
	assert.Equal(t, product.Sell, leg.Side)
	assert.Equal(t, "K1", leg.PrimaryStrike())
}

func TestParseLeg_LeverageReference(t *testing.T) {
	t.Parallel()

	leg, err := structure.ParseLeg("Buy X Outright@K")
	require.NoError(t, err)
	assert.True(t, leg.IsLeverageReference())
	assert.Equal(t, "X", leg.LeverageRef)
}

func TestParseLeg_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                            "empty",
		"Hold Vanilla Call":           `"Hold"`,
		"Buy Vanilla":                 "tokens",
		"Buy Vanilla Straddle":        `"Straddle"`,
		"Buy Barrier_Sideways Call@K": `"Barrier_Sideways"`,
		"Buy Barrier_Up_In Call@K":    "barrier",
		"Buy Cash":                    `"Cash"`,
		"Buy Strangle":                `"Strangle"`,
		"Buy 0 Vanilla Call":          "positive",
		"Buy":                         "tokens",
	}
	for raw, reason := range cases {
		_, err := structure.ParseLeg(raw)
		var ile *structure.InvalidLegSpecError
		require.True(t, errors.As(err, &ile), raw)
		assert.Equal(t, raw, ile.Raw)
		assert.Contains(t, ile.Reason, reason, raw)
	}
}

func TestLegDescriptor_StringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"Buy 2 Vanilla Call@K1",
		"K1,mid Sell Barrier_Up_Out Call@K1,B",
		"Sell Y Asset Put@K,P",
		"Buy Asian_Arithmetic_Fixed Put@K",
		"Buy X Outright@K",
	} {
		first, err := structure.ParseLeg(raw)
		require.NoError(t, err, raw)
		second, err := structure.ParseLeg(first.String())
		require.NoError(t, err, first.String())
		second.Raw = first.Raw
		assert.Equal(t, first, second, raw)
	}
}
