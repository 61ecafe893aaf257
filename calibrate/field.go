package calibrate

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/product"
)

// Result is a calibrated instrument.
type Result struct {
	Name       string          `json:"name"`
	Value      float64         `json:"value"`
	Price      float64         `json:"price"`
	Pips       decimal.Decimal `json:"pips"`
	Iterations int             `json:"iterations"`

	Instrument *assembler.Instrument `json:"-"`
}

// FieldScanResult adds the outer variable of a two-unknown calibration.
type FieldScanResult struct {
	ScanName  string  `json:"scan_name"`
	ScanValue float64 `json:"scan_value"`
	Tried     int     `json:"tried"`
	Result
}

// Field solves for the value of name in [low, high] at which inst prices at target.
// Each candidate re-assembles the whole instrument.
func Field(inst *assembler.Instrument, name string, low, high, target float64, opts Options) (Result, error) {
	opts = opts.withDefaults()
	if !inst.Template().Declares(name) {
		return Result{}, fmt.Errorf("Field: %s does not declare %q", inst.Template().PackageKey, name)
	}
	amount := target
	if opts.Unit == product.UnitPips {
		amount = inst.FromPips(target)
	}

	price := func(x float64) (float64, error) {
		c, err := inst.CloneWith(map[string]float64{name: x})
		if err != nil {
			return 0, err
		}
		return c.Price(), nil
	}
	log := opts.Logger.With("package", inst.Template().PackageKey, "solve_for", name)
	x, iters, err := bisect(low, high, amount, price, opts.Tolerance, opts.MaxIterations, log)
	if err != nil {
		return Result{}, fmt.Errorf("Field: %s: %w", name, err)
	}

	solved, err := inst.CloneWith(map[string]float64{name: x})
	if err != nil {
		return Result{}, fmt.Errorf("Field: %s: %w", name, err)
	}
	log.Info("calibrated", "value", x, "iterations", iters, "price", solved.Price())
	return Result{
		Name:       name,
		Value:      x,
		Price:      solved.Price(),
		Pips:       solved.Pips(solved.Price()),
		Iterations: iters,
		Instrument: solved,
	}, nil
}

// FieldScan fixes scanName at each outer value in turn and solves name by Field.
// The first outer value, in order, with a root wins.
func FieldScan(inst *assembler.Instrument, scanName string, outer []float64, name string, low, high, target float64, opts Options) (FieldScanResult, error) {
	opts = opts.withDefaults()
	if !inst.Template().Declares(scanName) {
		return FieldScanResult{}, fmt.Errorf("FieldScan: %s does not declare %q", inst.Template().PackageKey, scanName)
	}

	var (
		mu     sync.Mutex
		solved = make(map[float64]Result, len(outer))
	)
	sr, err := Scan(outer, func(o float64) (float64, error) {
		base, err := inst.CloneWith(map[string]float64{scanName: o})
		if err != nil {
			return 0, err
		}
		res, err := Field(base, name, low, high, target, opts)
		if err != nil {
			return 0, err
		}
		mu.Lock()
		solved[o] = res
		mu.Unlock()
		return res.Value, nil
	}, opts)
	if err != nil {
		return FieldScanResult{}, fmt.Errorf("FieldScan: %s over %s: %w", name, scanName, err)
	}
	return FieldScanResult{
		ScanName:  scanName,
		ScanValue: sr.Outer,
		Tried:     sr.Tried,
		Result:    solved[sr.Outer],
	}, nil
}
