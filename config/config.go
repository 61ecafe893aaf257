package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds solver, pricing and service parameters.
type Config struct {
	// Tolerance is the absolute price tolerance for bisection calibration.
	Tolerance float64 `yaml:"tolerance"`

	// MaxIterations caps bisection steps before a calibration reports no root.
	MaxIterations int `yaml:"max_iterations"`

	// ScanWorkers bounds concurrent outer-variable evaluations in a two-sided scan.
	ScanWorkers int `yaml:"scan_workers"`

	// PipsUnit scales premium per unit notional into pips (10000 for most pairs, 100 for JPY crosses).
	PipsUnit float64 `yaml:"pips_unit"`

	// PipsDecimals is the display precision of a pips figure.
	PipsDecimals int32 `yaml:"pips_decimals"`

	// BarrierOffsetBP is the offset of the synthetic payoff-sampling spots around a barrier.
	BarrierOffsetBP float64 `yaml:"barrier_offset_bp"`

	// BinomialSteps is the tree depth for American legs.
	BinomialSteps int `yaml:"binomial_steps"`

	// LegCacheTTL and LegCacheCleanup configure the leg-price cache; a non-positive TTL keeps entries until a structure change flushes them.
	LegCacheTTL     time.Duration `yaml:"leg_cache_ttl"`
	LegCacheCleanup time.Duration `yaml:"leg_cache_cleanup"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	DefinitionsPath string   `yaml:"definitions_path"`
	MarketDataPath  string   `yaml:"market_data_path"`
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	Tolerance:       1e-6,
	MaxIterations:   100,
	ScanWorkers:     4,
	PipsUnit:        10000,
	PipsDecimals:    2,
	BarrierOffsetBP: 1,
	BinomialSteps:   200,
	LegCacheTTL:     5 * time.Minute,
	LegCacheCleanup: 10 * time.Minute,
	LogLevel:        "info",
	Port:            "8080",
	AllowedOrigins:  []string{"*"},
}

var (
	mu  sync.RWMutex
	cfg = DefaultConfig
)

// SetConfig replaces the active configuration.
func SetConfig(c Config) {
	mu.Lock()
	defer mu.Unlock()
	cfg = c
}

// GetConfig returns the active configuration.
func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Load builds a Config from defaults, an optional YAML file, an optional .env file and
// FXSTRUCT_* environment variables, in that order of precedence (last wins).
func Load(path string) (Config, error) {
	c := DefaultConfig
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config.Load: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config.Load: parse %s: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := applyEnv(&c); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return c, nil
}

// Validate rejects values the solvers cannot work with.
func (c Config) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.PipsUnit <= 0 {
		return fmt.Errorf("pips_unit must be positive, got %g", c.PipsUnit)
	}
	if c.BinomialSteps < 2 {
		return fmt.Errorf("binomial_steps must be at least 2, got %d", c.BinomialSteps)
	}
	return nil
}

func applyEnv(c *Config) error {
	var err error
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && err == nil {
			var f float64
			if f, err = strconv.ParseFloat(v, 64); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && err == nil {
			var n int
			if n, err = strconv.Atoi(v); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && err == nil {
			var d time.Duration
			if d, err = time.ParseDuration(v); err != nil {
				err = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = d
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	setFloat("TOLERANCE", &c.Tolerance)
	setInt("MAX_ITERATIONS", &c.MaxIterations)
	setInt("SCAN_WORKERS", &c.ScanWorkers)
	setFloat("PIPS_UNIT", &c.PipsUnit)
	setFloat("BARRIER_OFFSET_BP", &c.BarrierOffsetBP)
	setInt("BINOMIAL_STEPS", &c.BinomialSteps)
	setDuration("LEG_CACHE_TTL", &c.LegCacheTTL)
	setDuration("LEG_CACHE_CLEANUP", &c.LegCacheCleanup)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("PORT", &c.Port)
	setString("DEFINITIONS_PATH", &c.DefinitionsPath)
	setString("MARKET_DATA_PATH", &c.MarketDataPath)

	if v, ok := lookup("PIPS_DECIMALS"); ok && err == nil {
		n, perr := strconv.ParseInt(v, 10, 32)
		if perr != nil {
			return fmt.Errorf("PIPS_DECIMALS: %w", perr)
		}
		c.PipsDecimals = int32(n)
	}
	if v, ok := lookup("LOG_JSON"); ok && err == nil {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return fmt.Errorf("LOG_JSON: %w", perr)
		}
		c.LogJSON = b
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return err
}

const envPrefix = "FXSTRUCT_"

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
