package assembler

import (
	"fmt"

	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/structure"
)

// FromArgs binds resolved StructurePricer arguments to the registered template and
// assembles it. The returned Binding reports missing names.
func FromArgs(reg *structure.Registry, args resolver.CanonicalArgs, md marketdata.MarketData, opts ...Option) (*Instrument, structure.Binding, error) {
	b, err := reg.Validate(args)
	if err != nil {
		return nil, structure.Binding{}, fmt.Errorf("FromArgs: %w", err)
	}
	inst, err := FromBinding(b, args, md, opts...)
	return inst, b, err
}

// FromBinding assembles a validated binding with the trade inputs read from args.
// A ClientFacing argument set to true overrides the template flag.
func FromBinding(b structure.Binding, args resolver.CanonicalArgs, md marketdata.MarketData, opts ...Option) (*Instrument, error) {
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("FromArgs: %w", err)
	}
	req, err := RequestFromArgs(args, md)
	if err != nil {
		return nil, fmt.Errorf("FromArgs: %w", err)
	}
	tmpl := b.Template
	if cf, ok := args.Bool("ClientFacing"); ok && cf {
		tmpl.ClientFacing = true
	}
	inst, err := Assemble(tmpl, b.Values, req, md, opts...)
	if err != nil {
		return nil, fmt.Errorf("FromArgs: %w", err)
	}
	return inst, nil
}
