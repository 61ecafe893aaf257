package validate

import (
	"flag"
	"fmt"
	"io"

	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/cli"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
)

type Output struct {
	Package string             `json:"package"`
	Side    product.Side       `json:"side"`
	Version int                `json:"version"`
	Names   []string           `json:"names"`
	Missing []string           `json:"missing"`
	Invalid []string           `json:"invalid"`
	Values  map[string]float64 `json:"values"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := cli.NewFlags(fs, false)

	if err := fs.Parse(args); err != nil {
		return 2
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
	res, err := resolver.New(nil).Resolve(schema.StructurePricer, batch)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	binding, err := env.Registry.Validate(res.Args)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	v, _ := env.Registry.Version(binding.PackageKey)
	return cli.WriteJSON(stdout, Output{
		Package: binding.PackageKey,
		Side:    binding.Side,
		Version: v,
		Names:   binding.Template.Names(),
		Missing: append([]string{}, binding.Missing...),
		Invalid: append([]string{}, binding.Invalid...),
		Values:  binding.Values,
	})
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fxstruct validate -defs structures.yaml < args.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Bind pricing arguments to a registered structure and report missing or non-numeric strikes and arguments.")
}
