package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/schema"
)

func TestCatalog_RegisterRejects(t *testing.T) {
	t.Parallel()

	c := schema.NewCatalog()
	assert.Error(t, c.Register(schema.FieldSchema{ID: " "}))
	assert.Error(t, c.Register(schema.FieldSchema{ID: "NoLayouts"}))
	assert.Error(t, c.Register(schema.FieldSchema{
		ID:      "Dup",
		Layouts: []schema.Layout{{schema.Req("Strike", schema.TypeFloat), schema.Opt("STRIKE", schema.TypeFloat)}},
	}))

	ok := schema.FieldSchema{ID: "Ok", Layouts: []schema.Layout{{schema.Req("A", schema.TypeInt)}}}
	require.NoError(t, c.Register(ok))
	assert.Error(t, c.Register(ok), "second registration of the same id")
}

func TestCatalog_SchemaLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	c := schema.Builtin()
	s, err := c.Schema("fxvanilla")
	require.NoError(t, err)
	assert.Equal(t, schema.FXVanilla, s.ID)
	assert.Len(t, s.Layouts, 2)

	_, err = c.Schema("FXRainbow")
	var unknown *schema.UnknownSchemaError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "FXRainbow", unknown.SchemaID)
}

func TestCatalog_LookupEnum(t *testing.T) {
	t.Parallel()

	c := schema.Builtin()
	cases := []struct {
		enum, value string
		want        any
	}{
		{"BuySell", "Buy", product.Buy},
		{"BuySell", " SHORT ", product.Sell},
		{"BarrierType", "Down-In", product.BarrierDownIn},
		{"BarrierType", "up_out", product.BarrierUpOut},
		{"DigitalType", "Cash Or Nothing", product.DigitalCash},
		{"PriceUnit", "Pips", product.UnitPips},
	}
	for _, tc := range cases {
		got, err := c.LookupEnum(tc.enum, tc.value)
		require.NoError(t, err, tc.value)
		assert.Equal(t, tc.want, got, tc.value)
	}

	_, err := c.LookupEnum("CallPut", "straddle")
	var bad *schema.UnknownEnumValueError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, "straddle", bad.Value)
}

func TestFieldSchema_EnumOverrideAndMethods(t *testing.T) {
	t.Parallel()

	c := schema.Builtin()
	s, err := c.Schema(schema.StructureCalibrator)
	require.NoError(t, err)
	assert.True(t, s.IsWrapper)
	assert.Equal(t, "PriceUnit", s.EnumFor(schema.Opt("targetUnit", schema.TypeEnum)))
	assert.Equal(t, "BuySell", s.EnumFor(schema.Req("BuySell", schema.TypeEnum)))

	p, err := c.Schema(schema.StructurePricer)
	require.NoError(t, err)
	m, ok := p.Method("payoffbyspots")
	require.True(t, ok)
	assert.Equal(t, "Spots", m[1].Name)
	_, ok = p.Method("Theta")
	assert.False(t, ok)
}

func TestBuiltin_SnapshotDecoder(t *testing.T) {
	t.Parallel()

	s, err := schema.Builtin().Schema(schema.MarketSnapshot)
	require.NoError(t, err)
	dec, ok := s.DecoderFor("SNAPSHOT")
	require.True(t, ok)

	v, err := dec("pair: EURUSD\nreference_date: 2025-06-02\nspot: {mid: 1.1}\n" +
		"accrual_curve: {flat: 0.04}\nunderlying_curve: {flat: 0.02}\nvol_surface: {flat: 0.08}\n")
	require.NoError(t, err)
	snap, ok := v.(*marketdata.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", snap.Pair)

	_, err = dec("reference_date: not-a-date")
	assert.Error(t, err)
}

func TestBuiltin_IDs(t *testing.T) {
	t.Parallel()

	ids := schema.Builtin().IDs()
	for _, id := range []string{schema.FXBarrier, schema.StructureDefine, schema.MarketSnapshot} {
		assert.Contains(t, ids, id)
	}
	assert.Same(t, schema.Builtin(), schema.Builtin())
}
