package calibrate

import (
	"flag"
	"fmt"
	"io"

	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/calibrate"
	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/cli"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
)

type Output struct {
	calibrate.FieldScanResult
	Legs []assembler.LegSnapshot `json:"legs"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := cli.NewFlags(fs, true)
	workers := fs.Int("workers", 0, "concurrent scan evaluations (default from config)")

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
	res, err := resolver.New(nil).Resolve(schema.StructureCalibrator, batch)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	if err := res.Err(); err != nil {
		return cli.Fail(stdout, err)
	}

	inst, err := calibrate.Assemble(env.Registry, res.Args, env.Market,
		assembler.WithConfig(env.Config),
		assembler.WithLogger(env.Log),
	)
	if err != nil {
		return cli.Fail(stdout, err)
	}

	opts := calibrate.Options{
		Tolerance:     env.Config.Tolerance,
		MaxIterations: env.Config.MaxIterations,
		Workers:       env.Config.ScanWorkers,
		Logger:        env.Log,
	}
	if *workers > 0 {
		opts.Workers = *workers
	}
	out, err := calibrate.FromArgs(inst, res.Args, opts)
	if err != nil {
		return cli.Fail(stdout, err)
	}
	return cli.WriteJSON(stdout, Output{FieldScanResult: out, Legs: out.Instrument.Legs()})
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  fxstruct calibrate -defs structures.yaml -market snapshot.yaml < args.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Solve one strike or argument so the structure reaches TargetPrice, optionally scanning")
	fmt.Fprintln(w, "a second name over ScanFrom..ScanTo by ScanStep until a root exists.")
}
