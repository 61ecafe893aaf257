package marketdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meenmo/fxstruct/product"
)

// Curve is a continuously-compounded zero-rate curve on ACT/365F year fractions.
// Rates are linear between pillars and flat beyond the first and last pillar.
type Curve struct {
	times []float64
	rates []float64

	// Spread is the half bid/ask spread applied around the mid rate.
	Spread float64
}

// NewCurve builds a curve from tenor pillars ("1W", "3M", "1Y").
func NewCurve(tenors []string, rates []float64, spread float64) (*Curve, error) {
	if len(tenors) == 0 {
		return nil, fmt.Errorf("NewCurve: no pillars")
	}
	if len(tenors) != len(rates) {
		return nil, fmt.Errorf("NewCurve: %d tenors but %d rates", len(tenors), len(rates))
	}
	type pillar struct{ t, r float64 }
	pillars := make([]pillar, 0, len(tenors))
	for i, tenor := range tenors {
		t, err := TenorToYears(tenor)
		if err != nil {
			return nil, fmt.Errorf("NewCurve: %w", err)
		}
		pillars = append(pillars, pillar{t, rates[i]})
	}
	sort.Slice(pillars, func(i, j int) bool { return pillars[i].t < pillars[j].t })

	c := &Curve{Spread: spread}
	for i, p := range pillars {
		if i > 0 && p.t == pillars[i-1].t {
			return nil, fmt.Errorf("NewCurve: duplicate pillar %s", tenors[i])
		}
		c.times = append(c.times, p.t)
		c.rates = append(c.rates, p.r)
	}
	return c, nil
}

// NewFlatCurve returns a single-rate curve.
func NewFlatCurve(rate, spread float64) *Curve {
	return &Curve{times: []float64{1}, rates: []float64{rate}, Spread: spread}
}

// Rate returns the zero rate at year fraction t on the requested quote side.
func (c *Curve) Rate(t float64, q product.Quote) float64 {
	return quoted(interpolate(c.times, c.rates, t), c.Spread, q)
}

// quoted shifts a mid level to the bid or ask side.
func quoted(mid, spread float64, q product.Quote) float64 {
	switch q {
	case product.Bid:
		return mid - spread
	case product.Ask:
		return mid + spread
	default:
		return mid
	}
}

// interpolate is linear between knots and flat outside. xs must be sorted ascending.
func interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if n == 1 || x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	idx := sort.SearchFloat64s(xs, x)
	if xs[idx] == x {
		return ys[idx]
	}
	x0, x1 := xs[idx-1], xs[idx]
	w := (x - x0) / (x1 - x0)
	return ys[idx-1] + w*(ys[idx]-ys[idx-1])
}

// TenorToYears converts tenor strings like "1W", "3M", "10Y" to year fractions.
// A bare number is read as years.
func TenorToYears(tenor string) (float64, error) {
	t := strings.TrimSpace(strings.ToUpper(tenor))
	if t == "ON" || t == "O/N" {
		return 1.0 / 365.0, nil
	}
	if t == "" {
		return 0, fmt.Errorf("TenorToYears: empty tenor")
	}
	scale := 0.0
	switch t[len(t)-1] {
	case 'D':
		scale = 1.0 / 365.0
	case 'W':
		scale = 7.0 / 365.0
	case 'M':
		scale = 1.0 / 12.0
	case 'Y':
		scale = 1.0
	}
	if scale == 0 {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("TenorToYears: invalid tenor %q", tenor)
		}
		return v, nil
	}
	v, err := strconv.Atoi(t[:len(t)-1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("TenorToYears: invalid tenor %q", tenor)
	}
	return float64(v) * scale, nil
}
