package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/rs/cors"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/calibrate"
	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

const maxBodyBytes = 1 << 20

// Server exposes the registry, pricer and calibrator over HTTP.
type Server struct {
	router   *mux.Router
	registry *structure.Registry
	resolver *resolver.Resolver
	engine   pricing.Engine
	legCache *cache.Cache
	flusher  *assembler.CacheFlusher
	cfg      config.Config
	log      *slog.Logger

	mu     sync.RWMutex
	market marketdata.MarketData
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithLegCache shares a leg-price cache across requests.
func WithLegCache(c *cache.Cache) Option { return func(s *Server) { s.legCache = c } }

func WithEngine(e pricing.Engine) Option { return func(s *Server) { s.engine = e } }

func WithConfig(c config.Config) Option { return func(s *Server) { s.cfg = c } }

// NewServer creates a server over reg. md is the default market; requests may carry their own.
func NewServer(reg *structure.Registry, md marketdata.MarketData, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: reg,
		resolver: resolver.New(nil),
		cfg:      config.GetConfig(),
		market:   md,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrDefault(s.log)
	if s.legCache != nil {
		s.flusher = &assembler.CacheFlusher{Cache: s.legCache}
		s.watch()
	}
	s.routes()
	return s
}

// watch subscribes the leg-cache flusher to every registered package.
func (s *Server) watch() {
	if s.flusher == nil {
		return
	}
	for _, pkg := range s.registry.Packages() {
		s.registry.AddListener(pkg, s.flusher)
	}
}

// Handler wraps the router with CORS for the configured origins.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.withRequestLogger(s.router))
}

// SetMarket replaces the default market snapshot.
func (s *Server) SetMarket(md marketdata.MarketData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = md
}

func (s *Server) defaultMarket() marketdata.MarketData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth()).Methods("GET")
	s.router.HandleFunc("/api/v1/structures", s.handleListStructures()).Methods("GET")
	s.router.HandleFunc("/api/v1/structures", s.handleRegister()).Methods("POST")
	s.router.HandleFunc("/api/v1/structures/validate", s.handleValidate()).Methods("POST")
	s.router.HandleFunc("/api/v1/structures/{package}/{side}", s.handleGetStructure()).Methods("GET")
	s.router.HandleFunc("/api/v1/legs/parse", s.handleParseLeg()).Methods("POST")
	s.router.HandleFunc("/api/v1/legs/price", s.handlePriceLeg()).Methods("POST")
	s.router.HandleFunc("/api/v1/market", s.handleSetMarket()).Methods("PUT")
	s.router.HandleFunc("/api/v1/price", s.handlePrice()).Methods("POST")
	s.router.HandleFunc("/api/v1/calibrate", s.handleCalibrate()).Methods("POST")
}

func (s *Server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.log.With("request_id", uuid.NewString(), "method", r.Method, "path", r.URL.Path)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
		l.Debug("request served", "elapsed", time.Since(start))
	})
}

func writeJson(w http.ResponseWriter, v any) {
	writeJsonStatus(w, http.StatusOK, v)
}

func writeJsonStatus(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, apiErr := classify(err)
	l := logger.FromContext(r.Context())
	if code >= http.StatusInternalServerError {
		l.Error("request failed", "error", err)
	} else {
		l.Info("request rejected", "code", apiErr.Code, "error", err)
	}
	writeJsonError(w, code, apiErr)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJsonError(w, http.StatusBadRequest, ApiError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, map[string]any{
			"status":     "ok",
			"structures": len(s.registry.Packages()),
			"market":     s.defaultMarket() != nil,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// RegisterRequest submits definition rows. Definitions are plain key/value rows;
// Batches are fully tagged fragment batches. Both may be given.
type RegisterRequest struct {
	Definitions []map[string]any `json:"definitions"`
	Batches     []resolver.Batch `json:"batches"`
}

func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		rows := append([]resolver.Batch(nil), req.Batches...)
		for _, d := range req.Definitions {
			rows = append(rows, resolver.Batch{resolver.KV(d)})
		}
		if len(rows) == 0 {
			writeJsonError(w, http.StatusBadRequest, ApiError{Code: ErrCodeInvalidInput, Message: "no definitions submitted"})
			return
		}
		versions, err := s.registry.Register(rows...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.watch()
		writeJsonStatus(w, http.StatusCreated, map[string]any{"versions": versions})
	}
}

type structureSummary struct {
	Package string `json:"package"`
	Version int    `json:"version"`
}

func (s *Server) handleListStructures() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkgs := s.registry.Packages()
		out := make([]structureSummary, 0, len(pkgs))
		for _, p := range pkgs {
			v, _ := s.registry.Version(p)
			out = append(out, structureSummary{Package: p, Version: v})
		}
		writeJson(w, map[string]any{"structures": out})
	}
}

// TemplateView is the JSON form of a template.
type TemplateView struct {
	Package      string   `json:"package"`
	Side         string   `json:"side"`
	Version      int      `json:"version"`
	Strikes      []string `json:"strikes"`
	Arguments    []string `json:"arguments"`
	Legs         []string `json:"legs"`
	ClientFacing bool     `json:"client_facing"`
}

func viewOf(t structure.Template, version int) TemplateView {
	v := TemplateView{
		Package:      t.PackageKey,
		Side:         string(t.Side),
		Version:      version,
		Strikes:      append([]string{}, t.StrikeNames...),
		Arguments:    append([]string{}, t.Arguments...),
		ClientFacing: t.ClientFacing,
	}
	for _, l := range t.Legs {
		v.Legs = append(v.Legs, l.String())
	}
	return v
}

func (s *Server) handleGetStructure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		side, ok := product.ParseSide(vars["side"])
		if !ok {
			writeJsonError(w, http.StatusBadRequest, ApiError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid side %q", vars["side"])})
			return
		}
		t, err := s.registry.Template(vars["package"], side)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		v, _ := s.registry.Version(t.PackageKey)
		writeJson(w, viewOf(t, v))
	}
}

func (s *Server) handleParseLeg() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Leg string `json:"leg"`
		}
		if !decode(w, r, &req) {
			return
		}
		leg, err := structure.ParseLeg(req.Leg)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJson(w, map[string]any{
			"raw":          leg.Raw,
			"side":         leg.Side,
			"leverage":     leg.Leverage,
			"leverage_ref": leg.LeverageRef,
			"family":       leg.Family,
			"option_type":  leg.OptionType,
			"digital_type": leg.DigitalType,
			"strikes":      leg.StrikeNames,
			"market_side":  leg.MarketSide,
			"sub_args":     leg.SubArgs,
			"canonical":    leg.String(),
		})
	}
}

func (s *Server) handleValidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch resolver.Batch
		if !decode(w, r, &batch) {
			return
		}
		res, err := s.resolver.Resolve(schema.StructurePricer, batch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := s.registry.Validate(res.Args)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJson(w, map[string]any{
			"package": b.PackageKey,
			"side":    b.Side,
			"missing": append([]string{}, b.Missing...),
			"invalid": append([]string{}, b.Invalid...),
			"values":  b.Values,
			"args":    res.Args,
		})
	}
}

func (s *Server) handleSetMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var batch resolver.Batch
		if !decode(w, r, &batch) {
			return
		}
		md, err := s.resolveMarket(batch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.SetMarket(md)
		if s.legCache != nil {
			s.legCache.Flush()
		}
		logger.FromContext(r.Context()).Info("market replaced", "reference_date", md.ReferenceDate().Format("2006-01-02"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) resolveMarket(batch resolver.Batch) (marketdata.MarketData, error) {
	res, err := s.resolver.Resolve(schema.MarketSnapshot, batch)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	v, _ := res.Args.Get("Snapshot")
	md, ok := v.(marketdata.MarketData)
	if !ok {
		return nil, &resolver.MissingFieldsError{SchemaID: schema.MarketSnapshot, Missing: []string{"Snapshot"}}
	}
	return md, nil
}

// PriceRequest is the body of a pricing or calibration call. Args is resolved against
// StructurePricer (or StructureCalibrator); Market optionally overrides the default market.
type PriceRequest struct {
	Args   resolver.Batch `json:"args"`
	Market resolver.Batch `json:"market,omitempty"`
	Greeks resolver.Batch `json:"greeks,omitempty"`
	Payoff resolver.Batch `json:"payoff,omitempty"`
}

// PriceResponse reports an assembled instrument.
type PriceResponse struct {
	Package  string                  `json:"package"`
	Side     product.Side            `json:"side"`
	Version  int                     `json:"version"`
	Price    float64                 `json:"price"`
	Pips     string                  `json:"pips"`
	Legs     []assembler.LegSnapshot `json:"legs"`
	KeySpots []assembler.KeySpot     `json:"key_spots"`
	Greeks   map[string]*float64     `json:"greeks,omitempty"`
	Payoff   []float64               `json:"payoff,omitempty"`
	Args     resolver.CanonicalArgs  `json:"args"`
}

func (s *Server) marketFor(req PriceRequest) (marketdata.MarketData, error) {
	if len(req.Market) > 0 {
		return s.resolveMarket(req.Market)
	}
	md := s.defaultMarket()
	if md == nil {
		return nil, errNoMarket
	}
	return md, nil
}

var errNoMarket = errors.New("no market snapshot loaded")

func (s *Server) assemble(r *http.Request, schemaID string, req PriceRequest) (*assembler.Instrument, resolver.CanonicalArgs, error) {
	md, err := s.marketFor(req)
	if err != nil {
		return nil, resolver.CanonicalArgs{}, err
	}
	res, err := s.resolver.Resolve(schemaID, req.Args)
	if err != nil {
		return nil, resolver.CanonicalArgs{}, err
	}
	if err := res.Err(); err != nil {
		return nil, res.Args, err
	}
	opts := []assembler.Option{
		assembler.WithConfig(s.cfg),
		assembler.WithLogger(logger.FromContext(r.Context())),
	}
	if s.engine != nil {
		opts = append(opts, assembler.WithEngine(s.engine))
	}
	if s.legCache != nil {
		opts = append(opts, assembler.WithLegCache(s.legCache))
	}
	var inst *assembler.Instrument
	switch schemaID {
	case schema.StructureCalibrator:
		inst, err = calibrate.Assemble(s.registry, res.Args, md, opts...)
	case schema.StructurePricer:
		inst, _, err = assembler.FromArgs(s.registry, res.Args, md, opts...)
	default:
		inst, err = assembler.LegFromArgs(schemaID, res.Args, md, opts...)
	}
	return inst, res.Args, err
}

func (s *Server) respond(inst *assembler.Instrument, args resolver.CanonicalArgs) PriceResponse {
	t := inst.Template()
	v, _ := s.registry.Version(t.PackageKey)
	return PriceResponse{
		Package:  t.PackageKey,
		Side:     t.Side,
		Version:  v,
		Price:    inst.Price(),
		Pips:     inst.Pips(inst.Price()).String(),
		Legs:     inst.Legs(),
		KeySpots: inst.KeySpots(),
		Args:     args,
	}
}

// LegPriceRequest prices a single instrument. Schema names one of the single-instrument
// schemas (FXVanilla, FXBarrier, ...); the rest is read like a PriceRequest.
type LegPriceRequest struct {
	Schema string `json:"schema"`
	PriceRequest
}

func (s *Server) handlePrice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PriceRequest
		if !decode(w, r, &req) {
			return
		}
		s.price(w, r, schema.StructurePricer, req)
	}
}

func (s *Server) handlePriceLeg() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LegPriceRequest
		if !decode(w, r, &req) {
			return
		}
		if !assembler.IsSingleSchema(req.Schema) {
			s.fail(w, r, &schema.UnknownSchemaError{SchemaID: req.Schema})
			return
		}
		s.price(w, r, req.Schema, req.PriceRequest)
	}
}

func (s *Server) price(w http.ResponseWriter, r *http.Request, schemaID string, req PriceRequest) {
	inst, args, err := s.assemble(r, schemaID, req)
	if err != nil {
		s.marketOrFail(w, r, err)
		return
	}
	resp := s.respond(inst, args)

	if len(req.Greeks) > 0 {
		greeks, err := s.greeks(inst, req.Greeks)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Greeks = greeks
	}
	if len(req.Payoff) > 0 {
		payoff, err := s.payoff(inst, req.Payoff)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Payoff = payoff
	}
	writeJson(w, resp)
}

func (s *Server) marketOrFail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNoMarket) {
		writeJsonError(w, http.StatusServiceUnavailable, ApiError{Code: ErrCodeMarketUnavailable, Message: err.Error()})
		return
	}
	s.fail(w, r, err)
}

// greeks resolves the Greeks method; unsupported sensitivities are reported as null.
func (s *Server) greeks(inst *assembler.Instrument, batch resolver.Batch) (map[string]*float64, error) {
	res, err := s.resolver.ResolveMethod(schema.StructurePricer, schema.MethodGreeks, batch)
	if err != nil {
		return nil, err
	}
	raw, _ := res.Args.Get("Greeks")
	list, _ := raw.([]any)
	out := make(map[string]*float64, len(list))
	for _, item := range list {
		g, err := pricing.ParseGreek(fmt.Sprint(item))
		if err != nil {
			return nil, &resolver.FragmentError{Format: "Greeks", Reason: err.Error()}
		}
		v := inst.Greek(g)
		if !v.Supported {
			out[string(g)] = nil
			continue
		}
		val := v.Value
		out[string(g)] = &val
	}
	return out, nil
}

func (s *Server) payoff(inst *assembler.Instrument, batch resolver.Batch) ([]float64, error) {
	res, err := s.resolver.ResolveMethod(schema.StructurePricer, schema.MethodPayoffBySpots, batch)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	valueDate, _ := res.Args.Date("ValueDate")
	raw, _ := res.Args.Get("Spots")
	list, _ := raw.([]any)
	spots := make([]float64, 0, len(list))
	for _, item := range list {
		var f float64
		if _, err := fmt.Sscan(strings.ReplaceAll(fmt.Sprint(item), ",", ""), &f); err != nil {
			return nil, &resolver.FragmentError{Format: "Spots", Reason: fmt.Sprintf("spot %v is not a number", item)}
		}
		spots = append(spots, f)
	}
	return inst.PayoffBySpots(valueDate, spots)
}

// CalibrateResponse reports a calibration.
type CalibrateResponse struct {
	calibrate.FieldScanResult
	Legs []assembler.LegSnapshot `json:"legs"`
}

func (s *Server) handleCalibrate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PriceRequest
		if !decode(w, r, &req) {
			return
		}
		inst, args, err := s.assemble(r, schema.StructureCalibrator, req)
		if err != nil {
			s.marketOrFail(w, r, err)
			return
		}
		res, err := calibrate.FromArgs(inst, args, calibrate.Options{
			Tolerance:     s.cfg.Tolerance,
			MaxIterations: s.cfg.MaxIterations,
			Workers:       s.cfg.ScanWorkers,
			Logger:        logger.FromContext(r.Context()),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJson(w, CalibrateResponse{FieldScanResult: res, Legs: res.Instrument.Legs()})
	}
}
