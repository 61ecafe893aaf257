package price

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/cli"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/utils"
)

// Output reports a priced structure. Greeks that no leg supports are null.
type Output struct {
	Package  string                  `json:"package"`
	Side     product.Side            `json:"side"`
	Version  int                     `json:"version"`
	Price    float64                 `json:"price"`
	Pips     string                  `json:"pips"`
	Legs     []assembler.LegSnapshot `json:"legs"`
	KeySpots []assembler.KeySpot     `json:"key_spots"`
	Greeks   map[string]*float64     `json:"greeks,omitempty"`
	Payoff   []float64               `json:"payoff,omitempty"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := cli.NewFlags(fs, true)
	greeks := fs.String("greeks", "", "comma-separated greeks to report (delta,gamma,vega,theta,rho)")
	spots := fs.String("spots", "", "comma-separated spots for a payoff profile")
	valueDate := fs.String("value-date", "", "payoff valuation date (default: expiry, i.e. intrinsic)")
	single := fs.String("schema", "", "price one instrument against a single-instrument schema ("+
		strings.Join(assembler.SingleSchemas(), ", ")+") instead of a registered structure")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	target := schema.StructurePricer
	if s := strings.TrimSpace(*single); s != "" {
		if !assembler.IsSingleSchema(s) {
			return cli.Fail(stdout, &schema.UnknownSchemaError{SchemaID: s})
		}
		target = s
		f.DefsOptional = true
	}
	if *f.Help {
		usage(stderr)
		return 0
	}
	if cli.Interactive(stdin, *f.Input) {
		usage(stderr)
		return 2
	}

	env, err := f.Env(stderr)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	b, err := cli.ReadInput(stdin, *f.Input)
	if err != nil {
		return cli.WriteError(stdout, fmt.Sprintf("failed to read input: %v", err))
	}
	batch, err := cli.ParseBatch(b)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	res, err := resolver.New(nil).Resolve(target, batch)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	if err := res.Err(); err != nil {
		return cli.Fail(stdout, err)
	}

	opts := []assembler.Option{assembler.WithConfig(env.Config), assembler.WithLogger(env.Log)}
	var inst *assembler.Instrument
	if target == schema.StructurePricer {
		inst, _, err = assembler.FromArgs(env.Registry, res.Args, env.Market, opts...)
	} else {
		inst, err = assembler.LegFromArgs(target, res.Args, env.Market, opts...)
	}
	if err != nil {
		return cli.Fail(stdout, err)
	}

	t := inst.Template()
	v, _ := env.Registry.Version(t.PackageKey)
	out := Output{
		Package:  t.PackageKey,
		Side:     t.Side,
		Version:  v,
		Price:    inst.Price(),
		Pips:     inst.Pips(inst.Price()).String(),
		Legs:     inst.Legs(),
		KeySpots: inst.KeySpots(),
	}

	if s := strings.TrimSpace(*greeks); s != "" {
		out.Greeks = map[string]*float64{}
		for _, name := range strings.Split(s, ",") {
			g, err := pricing.ParseGreek(name)
			if err != nil {
				return cli.Fail(stdout, err)
			}
			gv := inst.Greek(g)
			if !gv.Supported {
				out.Greeks[string(g)] = nil
				continue
			}
			val := gv.Value
			out.Greeks[string(g)] = &val
		}
	}

	if s := strings.TrimSpace(*spots); s != "" {
		var vd time.Time
		if d := strings.TrimSpace(*valueDate); d != "" {
			if vd, err = utils.ParseDate(d); err != nil {
				return cli.Fail(stdout, err)
			}
		}
		list, err := parseSpots(s)
		if err != nil {
			return cli.Fail(stdout, err)
		}
		if out.Payoff, err = inst.PayoffBySpots(vd, list); err != nil {
			return cli.Fail(stdout, err)
		}
	}
	return cli.WriteJSON(stdout, out)
}

func parseSpots(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid spot %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fxstruct price -defs structures.yaml -market snapshot.yaml < args.json")
	fmt.Fprintln(w, "  fxstruct price -defs structures.yaml -market snapshot.yaml -greeks delta,vega -spots 1.05,1.10,1.15 -input args.yaml")
	fmt.Fprintln(w, "  fxstruct price -schema FXBarrier -market snapshot.yaml < barrier.yaml")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Assemble a registered structure (or, with -schema, a single instrument) from pricing")
	fmt.Fprintln(w, "arguments and print its price, legs and key spots.")
}
