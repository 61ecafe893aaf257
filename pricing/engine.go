package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupported is returned by engines for parameter sets they cannot price.
var ErrUnsupported = errors.New("unsupported by engine")

// Engine builds priced leg handles from family parameters.
type Engine interface {
	Name() string
	New(p Params) (Leg, error)
}

// Leg is one priced leg. Amounts are in the premium currency for the leg notional.
type Leg interface {
	Price() float64
	Fields() map[string]any
	// Payoff is the undiscounted value at expiry for a terminal spot.
	Payoff(spot float64) float64
	// Clone re-prices the leg as seen from another reference date and spot.
	Clone(refDate time.Time, spot float64) (Leg, error)
}

// Greek names a sensitivity.
type Greek string

const (
	Delta Greek = "delta"
	Gamma Greek = "gamma"
	Vega  Greek = "vega"
	Theta Greek = "theta"
	Rho   Greek = "rho"
)

// ParseGreek accepts any casing.
func ParseGreek(s string) (Greek, error) {
	g := Greek(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case Delta, Gamma, Vega, Theta, Rho:
		return g, nil
	default:
		return "", fmt.Errorf("ParseGreek: unknown greek %q", s)
	}
}

// GreekValue is either a supported value or Unsupported.
type GreekValue struct {
	Value     float64
	Supported bool
}

func Supported(v float64) GreekValue { return GreekValue{Value: v, Supported: true} }

func Unsupported() GreekValue { return GreekValue{} }

// Greeker is implemented by legs that expose sensitivities.
type Greeker interface {
	Greek(g Greek) GreekValue
}

// NewEngine returns an engine by name. "" and "gk" select the Garman-Kohlhagen engine.
func NewEngine(name string, binomialSteps int) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gk", "garman-kohlhagen":
		return NewGK(binomialSteps), nil
	default:
		return nil, fmt.Errorf("NewEngine: unknown engine %q", name)
	}
}
