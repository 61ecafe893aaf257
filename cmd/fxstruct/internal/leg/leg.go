package leg

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/meenmo/fxstruct/cmd/fxstruct/internal/cli"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/structure"
)

// Output is the parsed form of one leg descriptor.
type Output struct {
	Raw         string              `json:"raw"`
	Canonical   string              `json:"canonical"`
	Side        product.Side        `json:"side"`
	Leverage    float64             `json:"leverage"`
	LeverageRef string              `json:"leverage_ref,omitempty"`
	Family      product.Family      `json:"family"`
	OptionType  product.OptionType  `json:"option_type"`
	DigitalType product.DigitalType `json:"digital_type,omitempty"`
	Strikes     []string            `json:"strikes"`
	MarketSide  product.MarketSide  `json:"market_side,omitempty"`
	SubArgs     []string            `json:"sub_args,omitempty"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("leg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "file with one leg per line (optional; default stdin)")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
	}

	raws := fs.Args()
	if len(raws) == 0 {
		if cli.Interactive(stdin, *inputPath) {
			usage(stderr)
			return 2
		}
		b, err := cli.ReadInput(stdin, *inputPath)
		if err != nil {
			return cli.WriteError(stdout, fmt.Sprintf("failed to read input: %v", err))
		}
		sc := bufio.NewScanner(bytes.NewReader(b))
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
				raws = append(raws, line)
			}
		}
	}
	if len(raws) == 0 {
		return cli.WriteError(stdout, "no leg descriptors given")
	}

	out := make([]Output, 0, len(raws))
	for _, raw := range raws {
		d, err := structure.ParseLeg(raw)
		if err != nil {
			return cli.Fail(stdout, err)
		}
		out = append(out, view(d))
	}
	return cli.WriteJSON(stdout, out)
}

func view(d structure.LegDescriptor) Output {
	return Output{
		Raw:         d.Raw,
		Canonical:   d.String(),
		Side:        d.Side,
		Leverage:    d.Leverage,
		LeverageRef: d.LeverageRef,
		Family:      d.Family,
		OptionType:  d.OptionType,
		DigitalType: d.DigitalType,
		Strikes:     d.StrikeNames,
		MarketSide:  d.MarketSide,
		SubArgs:     d.SubArgs,
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, `  fxstruct leg "buy vanilla call@K1" "sell 2 barrier_down_out put@K2,B"`)
	fmt.Fprintln(w, "  fxstruct leg < legs.txt")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Parse leg descriptors and print their components as JSON.")
}
