package calibrate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/product"
)

// ErrNoRoot is returned when bisection exhausts its iterations without meeting the tolerance.
var ErrNoRoot = errors.New("no root found")

// Options tunes a calibration. Zero fields fall back to the process configuration.
type Options struct {
	// Tolerance is the absolute tolerance on the price difference.
	Tolerance float64
	// MaxIterations caps the bisection steps.
	MaxIterations int
	// Workers bounds concurrent outer candidates in a scan.
	Workers int
	// Unit is the unit of the target price.
	Unit   product.Unit
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	cfg := config.GetConfig()
	if o.Tolerance <= 0 {
		o.Tolerance = cfg.Tolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = cfg.MaxIterations
	}
	if o.Workers <= 0 {
		o.Workers = cfg.ScanWorkers
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Unit == "" {
		o.Unit = product.UnitAmount
	}
	o.Logger = logger.OrDefault(o.Logger)
	return o
}

// Solve finds x in [low, high] with |fn(x) - target| <= tol by bisection.
//
// fn must change sign relative to target between low and high; this is not checked.
// When the iterations run out Solve returns ErrNoRoot. Errors from fn are returned wrapped.
func Solve(low, high, target float64, fn func(float64) (float64, error), tol float64, maxIter int) (float64, error) {
	x, _, err := bisect(low, high, target, fn, tol, maxIter, nil)
	return x, err
}

func bisect(low, high, target float64, fn func(float64) (float64, error), tol float64, maxIter int, log *slog.Logger) (float64, int, error) {
	log = logger.OrDefault(log)
	eval := func(x float64) (float64, error) {
		v, err := fn(x)
		if err != nil {
			return 0, fmt.Errorf("Solve: at %v: %w", x, err)
		}
		return v - target, nil
	}

	dLow, err := eval(low)
	if err != nil {
		return 0, 0, err
	}
	dHigh, err := eval(high)
	if err != nil {
		return 0, 0, err
	}
	log.Debug("bisection bracket", "low", low, "d_low", dLow, "high", high, "d_high", dHigh)

	for i := 1; i <= maxIter; i++ {
		mid := 0.5 * (low + high)
		dMid, err := eval(mid)
		if err != nil {
			return 0, i, err
		}
		log.Debug("bisection step", "iter", i, "mid", mid, "d_mid", dMid)
		if math.Abs(dMid) <= tol {
			return mid, i, nil
		}
		if sameSign(dMid, dHigh) {
			high, dHigh = mid, dMid
		} else {
			low, dLow = mid, dMid
		}
	}
	log.Debug("bisection exhausted", "low", low, "d_low", dLow, "high", high, "d_high", dHigh)
	return 0, maxIter, fmt.Errorf("Solve: %d iterations in [%v, %v]: %w", maxIter, low, high, ErrNoRoot)
}

func sameSign(a, b float64) bool {
	return (a < 0) == (b < 0)
}
