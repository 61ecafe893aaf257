package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/fxstruct/api"
	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/structure"
)

var ref = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

const snapshotYAML = `
pair: EURUSD
reference_date: 2025-06-02
calendar: USD
spot: {bid: 1.0999, ask: 1.1001}
accrual_curve: {flat: 0.04}
underlying_curve: {flat: 0.02}
vol_surface: {flat: 0.10}
`

func newServer(t *testing.T, md marketdata.MarketData) (*api.Server, *structure.Registry) {
	t.Helper()
	reg := structure.NewRegistry()
	return api.NewServer(reg, md, api.WithLegCache(assembler.NewLegCache(time.Minute, 0))), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func register(t *testing.T, h http.Handler) {
	t.Helper()
	rec, body := do(t, h, http.MethodPost, "/api/v1/structures", map[string]any{
		"definitions": []map[string]any{
			{"PackageName": "RF", "BuySell": "Buy", "Strikes": "K1,K2", "ProductStructure": "buy vanilla call@K1+sell vanilla put@K2"},
			{"PackageName": "RF", "BuySell": "Sell", "Strikes": "K1,K2", "ProductStructure": "sell vanilla call@K1+buy vanilla put@K2"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"RF@1"}, body["versions"])
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, nil)
	rec, body := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["market"])
}

func TestServer_RegisterAndGet(t *testing.T) {
	t.Parallel()

	srv, reg := newServer(t, nil)
	h := srv.Handler()
	register(t, h)

	v, ok := reg.Version("RF")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	rec, body := do(t, h, http.MethodGet, "/api/v1/structures/rf/buy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RF", body["package"])
	assert.Equal(t, []any{"K1", "K2"}, body["strikes"])
	assert.Len(t, body["legs"], 2)

	rec, body = do(t, h, http.MethodGet, "/api/v1/structures/missing/buy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, api.ErrCodeUnknownStructure, errorCode(body))

	rec, body = do(t, h, http.MethodGet, "/api/v1/structures/RF/hold", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidInput, errorCode(body))

	rec, body = do(t, h, http.MethodGet, "/api/v1/structures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["structures"], 1)
}

func TestServer_RegisterRejectsBadLeg(t *testing.T) {
	t.Parallel()

	srv, reg := newServer(t, nil)
	rec, body := do(t, srv.Handler(), http.MethodPost, "/api/v1/structures", map[string]any{
		"definitions": []map[string]any{
			{"PackageName": "X", "BuySell": "Buy", "Strikes": "K", "ProductStructure": "buy vanilla@K"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidLegSpec, errorCode(body))
	assert.Empty(t, reg.Packages())

	rec, body = do(t, srv.Handler(), http.MethodPost, "/api/v1/structures", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidInput, errorCode(body))
}

func TestServer_ParseLeg(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, nil)
	rec, body := do(t, srv.Handler(), http.MethodPost, "/api/v1/legs/parse", map[string]any{"leg": "Sell 2 Vanilla Put@K"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["leverage"])
	assert.Equal(t, []any{"K"}, body["strikes"])
}

func TestServer_PriceLeg(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10))
	h := srv.Handler()

	args := []map[string]any{{"format": "KV", "data": map[string]any{
		"BuySell": "buy", "CallPut": "call", "Strike": 1.12, "Notional": 1_000_000, "ExpiryTenor": "6M",
	}}}
	rec, body := do(t, h, http.MethodPost, "/api/v1/legs/price", map[string]any{
		"schema": "FXVanilla",
		"args":   args,
		"greeks": []map[string]any{{"format": "KV", "data": map[string]any{"Greeks": []any{"delta", "vega"}}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "FXVanilla", body["package"])
	assert.Len(t, body["legs"], 1)
	assert.Greater(t, body["price"].(float64), 0.0)
	assert.NotNil(t, body["greeks"].(map[string]any)["vega"])

	rec, body = do(t, h, http.MethodPost, "/api/v1/legs/price", map[string]any{"schema": "StructurePricer", "args": args})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeUnknownSchema, errorCode(body))

	delete(args[0]["data"].(map[string]any), "Strike")
	rec, body = do(t, h, http.MethodPost, "/api/v1/legs/price", map[string]any{"schema": "FXVanilla", "args": args})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []any{"Strike"}, body["error"].(map[string]any)["missing"])
}

func pricerArgs(extra map[string]any) []map[string]any {
	args := map[string]any{
		"PackageName": "RF",
		"BuySell":     "buy",
		"Notional":    1_000_000,
		"ExpiryDate":  "2025-12-02",
		"K1":          1.15,
		"K2":          1.05,
	}
	for k, v := range extra {
		args[k] = v
	}
	return []map[string]any{{"format": "KV", "data": args}}
}

func TestServer_Price(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10))
	h := srv.Handler()
	register(t, h)

	rec, body := do(t, h, http.MethodPost, "/api/v1/price", map[string]any{
		"args":   pricerArgs(nil),
		"greeks": []map[string]any{{"data": map[string]any{"Greeks": []any{"delta", "vega"}}}},
		"payoff": []map[string]any{{"format": "VD", "data": []any{[]any{"Spots", 1.0, 1.1, 1.2}}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RF", body["package"])
	assert.Equal(t, 1.0, body["version"])
	assert.Len(t, body["legs"], 2)
	assert.Len(t, body["key_spots"], 2)

	greeks := body["greeks"].(map[string]any)
	assert.NotNil(t, greeks["delta"])
	assert.NotNil(t, greeks["vega"])

	payoff := body["payoff"].([]any)
	require.Len(t, payoff, 3)
	assert.InDelta(t, -50_000, payoff[0].(float64), 1e-6)
	assert.InDelta(t, 0, payoff[1].(float64), 1e-6)
	assert.InDelta(t, 50_000, payoff[2].(float64), 1e-6)
}

func TestServer_PriceErrors(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, nil)
	h := srv.Handler()
	register(t, h)

	rec, body := do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(nil)})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, api.ErrCodeMarketUnavailable, errorCode(body))

	srv.SetMarket(marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10))

	args := pricerArgs(nil)
	delete(args[0]["data"].(map[string]any), "K2")
	rec, body = do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": args})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, api.ErrCodeMissingFields, errorCode(body))
	assert.Equal(t, []any{"K2"}, body["error"].(map[string]any)["missing"])

	rec, body = do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(map[string]any{"K1": -1})})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, api.ErrCodeRateCheckFailed, errorCode(body))

	rec, body = do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(map[string]any{
		"LegOverrides": []any{"leg=0 vol=0.5"},
	})})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidFields, errorCode(body))
	assert.Equal(t, []any{"LegOverrides"}, body["error"].(map[string]any)["invalid"])

	rec, body = do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(map[string]any{"K1": "tbd"})})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrCodeInvalidFields, errorCode(body))
	assert.Equal(t, []any{"K1"}, body["error"].(map[string]any)["invalid"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/price", bytes.NewBufferString("{"))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestServer_MarketFromRequest(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, nil)
	h := srv.Handler()
	register(t, h)

	market := []map[string]any{{"format": "DT", "field": "Snapshot", "text": snapshotYAML}}
	rec, body := do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(nil), "market": market})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotZero(t, body["price"])

	rec, _ = do(t, h, http.MethodPut, "/api/v1/market", market)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, body = do(t, h, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, true, body["market"])
}

func TestServer_Validate(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, nil)
	h := srv.Handler()
	register(t, h)

	args := pricerArgs(nil)
	delete(args[0]["data"].(map[string]any), "K1")
	rec, body := do(t, h, http.MethodPost, "/api/v1/structures/validate", args)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"K1"}, body["missing"])
	assert.Equal(t, []any{}, body["invalid"])
	assert.Equal(t, map[string]any{"k2": 1.05}, body["values"])

	args = pricerArgs(map[string]any{"K1": "tbd"})
	rec, body = do(t, h, http.MethodPost, "/api/v1/structures/validate", args)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{}, body["missing"])
	assert.Equal(t, []any{"K1"}, body["invalid"])
}

func TestServer_Calibrate(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10))
	h := srv.Handler()
	register(t, h)

	args := pricerArgs(map[string]any{
		"SolveFor":    "K2",
		"Low":         0.90,
		"High":        1.099,
		"TargetPrice": 0,
		"Tolerance":   0.01,
	})
	delete(args[0]["data"].(map[string]any), "K2")
	rec, body := do(t, h, http.MethodPost, "/api/v1/calibrate", map[string]any{"args": args})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "K2", body["name"])
	assert.InDelta(t, 0, body["price"].(float64), 0.01)
	k2 := body["value"].(float64)
	assert.Greater(t, k2, 0.90)
	assert.Less(t, k2, 1.099)

	args[0]["data"].(map[string]any)["TargetPrice"] = 1e9
	args[0]["data"].(map[string]any)["MaxIterations"] = 10
	rec, body = do(t, h, http.MethodPost, "/api/v1/calibrate", map[string]any{"args": args})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, api.ErrCodeNoRoot, errorCode(body))
}

func TestServer_ReRegisterFlushesLegCache(t *testing.T) {
	t.Parallel()

	c := assembler.NewLegCache(time.Minute, 0)
	srv := api.NewServer(structure.NewRegistry(), marketdata.NewFlatSnapshot(ref, 1.10, 0.04, 0.02, 0.10), api.WithLegCache(c))
	h := srv.Handler()
	register(t, h)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/price", map[string]any{"args": pricerArgs(nil)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, c.ItemCount())

	rec, body := do(t, h, http.MethodPost, "/api/v1/structures", map[string]any{
		"definitions": []map[string]any{
			{"PackageName": "RF", "BuySell": "Buy", "Strikes": "K1,K2", "ProductStructure": "buy vanilla call@K1+sell 2 vanilla put@K2"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"RF@2"}, body["versions"])
	assert.Zero(t, c.ItemCount())
}
