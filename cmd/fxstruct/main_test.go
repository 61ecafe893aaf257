package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionsYAML = `
definitions:
  - PackageName: RF
    BuySell: Buy
    Strikes: K1,K2
    ProductStructure: buy vanilla call@K1+sell vanilla put@K2
  - PackageName: RF
    BuySell: Sell
    Strikes: K1,K2
    ProductStructure: sell vanilla call@K1+buy vanilla put@K2
`

const snapshotYAML = `
pair: EURUSD
reference_date: 2025-06-02
calendar: USD
spot: {bid: 1.0999, ask: 1.1001}
accrual_curve: {flat: 0.04}
underlying_curve: {flat: 0.02}
vol_surface: {flat: 0.10}
`

func fixtures(t *testing.T) (defs, market string) {
	t.Helper()
	dir := t.TempDir()
	defs = filepath.Join(dir, "structures.yaml")
	market = filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(defs, []byte(definitionsYAML), 0o644))
	require.NoError(t, os.WriteFile(market, []byte(snapshotYAML), 0o644))
	return defs, market
}

func runCmd(t *testing.T, stdin string, args ...string) (int, map[string]any) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	out := map[string]any{}
	if s := strings.TrimSpace(stdout.String()); strings.HasPrefix(s, "{") {
		require.NoError(t, json.Unmarshal([]byte(s), &out), s)
	}
	return code, out
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: fxstruct")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"bogus"}, strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "bogus"`)

	assert.Equal(t, 0, run([]string{"help"}, strings.NewReader(""), &stdout, &stderr))
}

func TestRun_Leg(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"leg", "Sell 2 Vanilla Put@K"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code, stdout.String())

	var out []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0]["leverage"])
	assert.Equal(t, []any{"K"}, out[0]["strikes"])

	stdout.Reset()
	code = run([]string{"leg"}, strings.NewReader("buy vanilla@K\n"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "invalid leg")
}

func TestRun_Validate(t *testing.T) {
	defs, _ := fixtures(t)

	code, out := runCmd(t, `{"PackageName": "RF", "BuySell": "buy", "K2": 1.05}`, "validate", "-defs", defs)
	require.Equal(t, 0, code, out)
	assert.Equal(t, "RF", out["package"])
	assert.Equal(t, []any{"K1"}, out["missing"])
	assert.Equal(t, []any{}, out["invalid"])
	assert.Equal(t, map[string]any{"k2": 1.05}, out["values"])

	code, out = runCmd(t, `{"PackageName": "RF", "BuySell": "buy", "K1": "n/a", "K2": 1.05}`, "validate", "-defs", defs)
	require.Equal(t, 0, code, out)
	assert.Equal(t, []any{}, out["missing"])
	assert.Equal(t, []any{"K1"}, out["invalid"])

	code, out = runCmd(t, `{"PackageName": "NOPE", "BuySell": "buy"}`, "validate", "-defs", defs)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, out["error"])
}

const priceArgs = `
PackageName: RF
BuySell: buy
Notional: 1000000
ExpiryDate: 2025-12-02
K1: 1.15
K2: 1.05
`

func TestRun_Price(t *testing.T) {
	defs, market := fixtures(t)

	code, out := runCmd(t, priceArgs, "price", "-defs", defs, "-market", market,
		"-greeks", "delta,vega", "-spots", "1.0,1.1,1.2")
	require.Equal(t, 0, code, out)
	assert.Equal(t, "RF", out["package"])
	assert.Len(t, out["legs"], 2)
	assert.NotNil(t, out["greeks"].(map[string]any)["delta"])

	payoff := out["payoff"].([]any)
	require.Len(t, payoff, 3)
	assert.InDelta(t, -50_000, payoff[0].(float64), 1e-6)
	assert.InDelta(t, 0, payoff[1].(float64), 1e-6)
	assert.InDelta(t, 50_000, payoff[2].(float64), 1e-6)

	code, out = runCmd(t, strings.Replace(priceArgs, "K2: 1.05", "", 1), "price", "-defs", defs, "-market", market)
	assert.Equal(t, 1, code)
	assert.Equal(t, []any{"K2"}, out["missing"])

	code, out = runCmd(t, priceArgs+"DayCount: bogus\n", "price", "-defs", defs, "-market", market)
	assert.Equal(t, 1, code)
	assert.Equal(t, []any{"DayCount"}, out["invalid"])

	code, out = runCmd(t, priceArgs, "price", "-defs", defs)
	assert.Equal(t, 1, code)
	assert.Contains(t, out["error"], "no market snapshot")
}

const barrierArgs = `
BuySell: buy
CallPut: put
Strike: 1.05
BarrierType: down-out
Barrier: 0.95
Notional: 1000000
ExpiryDate: 2025-12-02
`

func TestRun_PriceSingleInstrument(t *testing.T) {
	_, market := fixtures(t)

	code, out := runCmd(t, barrierArgs, "price", "-schema", "FXBarrier", "-market", market, "-greeks", "delta")
	require.Equal(t, 0, code, out)
	assert.Equal(t, "FXBarrier", out["package"])
	assert.Len(t, out["legs"], 1)
	assert.Len(t, out["key_spots"], 4)
	assert.Greater(t, out["price"].(float64), 0.0)
	assert.NotNil(t, out["greeks"].(map[string]any)["delta"])

	code, out = runCmd(t, barrierArgs, "price", "-schema", "StructureDefine", "-market", market)
	assert.Equal(t, 1, code)
	assert.Contains(t, out["error"], "unknown schema")
}

func TestRun_Calibrate(t *testing.T) {
	defs, market := fixtures(t)

	args := strings.Replace(priceArgs, "K2: 1.05", "", 1) + `
SolveFor: K2
Low: 0.90
High: 1.099
TargetPrice: 0
Tolerance: 0.01
`
	code, out := runCmd(t, args, "calibrate", "-defs", defs, "-market", market)
	require.Equal(t, 0, code, out)
	assert.Equal(t, "K2", out["name"])
	assert.InDelta(t, 0, out["price"].(float64), 0.01)
	assert.Len(t, out["legs"], 2)
}
