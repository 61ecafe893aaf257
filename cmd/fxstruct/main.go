package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/calibrate"
	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/leg"
	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/price"
	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/validate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "leg":
		return leg.Run(args[1:], stdin, stdout, stderr)
	case "validate":
		return validate.Run(args[1:], stdin, stdout, stderr)
	case "price":
		return price.Run(args[1:], stdin, stdout, stderr)
	case "calibrate":
		return calibrate.Run(args[1:], stdin, stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fxstruct <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  leg        Parse leg descriptors")
	fmt.Fprintln(w, "  validate   Bind arguments to a registered structure")
	fmt.Fprintln(w, "  price      Price a structure against a market snapshot")
	fmt.Fprintln(w, "  calibrate  Solve a strike or argument for a target price")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'fxstruct <command> -h' for command options.")
}
