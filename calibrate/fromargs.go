package calibrate

import (
	"fmt"
	"strings"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/structure"
)

// FromArgs runs the calibration described by resolved StructureCalibrator arguments.
// When ScanFor is set the result carries the scanned value; otherwise ScanName is empty.
func FromArgs(inst *assembler.Instrument, args resolver.CanonicalArgs, opts Options) (FieldScanResult, error) {
	name, _ := args.Text("SolveFor")
	low, okLow := args.Float("Low")
	high, okHigh := args.Float("High")
	target, okTarget := args.Float("TargetPrice")
	if name == "" || !okLow || !okHigh || !okTarget {
		return FieldScanResult{}, fmt.Errorf("FromArgs: %w", &resolver.MissingFieldsError{
			SchemaID: "StructureCalibrator", Missing: []string{"SolveFor", "Low", "High", "TargetPrice"},
		})
	}
	if v, ok := args.Get("TargetUnit"); ok {
		if u, ok := v.(product.Unit); ok {
			opts.Unit = u
		}
	}
	if tol, ok := args.Float("Tolerance"); ok && tol > 0 {
		opts.Tolerance = tol
	}
	if n, ok := args.Int("MaxIterations"); ok && n > 0 {
		opts.MaxIterations = n
	}

	scan, _ := args.Text("ScanFor")
	if scan == "" {
		res, err := Field(inst, name, low, high, target, opts)
		if err != nil {
			return FieldScanResult{}, fmt.Errorf("FromArgs: %w", err)
		}
		return FieldScanResult{Result: res}, nil
	}

	from, okFrom := args.Float("ScanFrom")
	to, okTo := args.Float("ScanTo")
	step, okStep := args.Float("ScanStep")
	if !okFrom || !okTo || !okStep {
		return FieldScanResult{}, fmt.Errorf("FromArgs: %w", &resolver.MissingFieldsError{
			SchemaID: "StructureCalibrator", Missing: []string{"ScanFrom", "ScanTo", "ScanStep"},
		})
	}
	outer, err := Steps(from, to, step)
	if err != nil {
		return FieldScanResult{}, fmt.Errorf("FromArgs: %w", err)
	}
	res, err := FieldScan(inst, scan, outer, name, low, high, target, opts)
	if err != nil {
		return FieldScanResult{}, fmt.Errorf("FromArgs: %w", err)
	}
	return res, nil
}

// Assemble binds StructureCalibrator arguments like assembler.FromArgs, except that the
// SolveFor and ScanFor names may be absent: they are seeded with the bracket midpoint
// and ScanFrom respectively.
func Assemble(reg *structure.Registry, args resolver.CanonicalArgs, md marketdata.MarketData, opts ...assembler.Option) (*assembler.Instrument, error) {
	b, err := reg.Validate(args)
	if err != nil {
		return nil, fmt.Errorf("Assemble: %w", err)
	}
	seeds := map[string]float64{}
	if name, ok := args.Text("SolveFor"); ok && name != "" {
		low, _ := args.Float("Low")
		high, _ := args.Float("High")
		seeds[name] = 0.5 * (low + high)
	}
	if name, ok := args.Text("ScanFor"); ok && name != "" {
		from, _ := args.Float("ScanFrom")
		seeds[name] = from
	}

	seed := func(names []string) []string {
		var rest []string
		for _, m := range names {
			seeded := false
			for name, v := range seeds {
				if strings.EqualFold(name, m) {
					b.Values[schema.NormalizeKey(m)] = v
					seeded = true
				}
			}
			if !seeded {
				rest = append(rest, m)
			}
		}
		return rest
	}
	b.Missing = seed(b.Missing)
	b.Invalid = seed(b.Invalid)

	inst, err := assembler.FromBinding(b, args, md, opts...)
	if err != nil {
		return nil, fmt.Errorf("Assemble: %w", err)
	}
	return inst, nil
}
