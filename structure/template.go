package structure

import (
	"fmt"
	"strings"

	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/schema"
)

// Template is the definition of one side of a package.
type Template struct {
	PackageKey   string
	Side         product.Side
	StrikeNames  []string
	Legs         []LegDescriptor
	Arguments    []string
	ClientFacing bool
}

// Names lists strike names followed by free argument names, in declared casing.
func (t Template) Names() []string {
	out := make([]string, 0, len(t.StrikeNames)+len(t.Arguments))
	out = append(out, t.StrikeNames...)
	return append(out, t.Arguments...)
}

// Declares reports whether name is a strike or argument of the template (case-insensitive).
func (t Template) Declares(name string) bool {
	for _, n := range t.Names() {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (t Template) clone() Template {
	c := t
	c.StrikeNames = append([]string(nil), t.StrikeNames...)
	c.Arguments = append([]string(nil), t.Arguments...)
	c.Legs = make([]LegDescriptor, len(t.Legs))
	for i, l := range t.Legs {
		l.StrikeNames = append([]string(nil), l.StrikeNames...)
		l.SubArgs = append([]string(nil), l.SubArgs...)
		c.Legs[i] = l
	}
	return c
}

// Define holds both sides of a package and its version counter.
type Define struct {
	PackageKey string
	BySide     map[product.Side]Template
	Version    int
}

// UnknownPackageError is returned when no template was registered for the package.
type UnknownPackageError struct {
	PackageKey string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("unknown package %q", e.PackageKey)
}

// UnknownSideError is returned when the package exists but not for the requested side.
type UnknownSideError struct {
	PackageKey string
	Side       product.Side
}

func (e *UnknownSideError) Error() string {
	return fmt.Sprintf("package %q has no %s template", e.PackageKey, e.Side)
}

// buildTemplate turns one resolved StructureDefine row-set into a template.
func buildTemplate(args resolver.CanonicalArgs) (Template, error) {
	var t Template
	t.PackageKey, _ = args.Text("PackageName")
	side, _ := args.Get("BuySell")
	t.Side, _ = side.(product.Side)
	t.ClientFacing, _ = args.Bool("ClientFacing")

	strikes, _ := args.Text("Strikes")
	t.StrikeNames = splitList(strikes, ",")
	arguments, _ := args.Text("Arguments")
	t.Arguments = splitList(arguments, ",")

	seen := make(map[string]struct{})
	for _, n := range t.Names() {
		k := schema.NormalizeKey(n)
		if _, dup := seen[k]; dup {
			return Template{}, fmt.Errorf("buildTemplate: %s: name %q declared twice", t.PackageKey, n)
		}
		seen[k] = struct{}{}
	}

	structure, _ := args.Text("ProductStructure")
	chunks := splitList(structure, "+")
	if len(chunks) == 0 {
		return Template{}, &InvalidLegSpecError{Raw: structure, Reason: "no legs"}
	}
	for _, chunk := range chunks {
		leg, err := ParseLeg(chunk)
		if err != nil {
			return Template{}, err
		}
		for _, name := range leg.StrikeNames {
			if !t.Declares(name) {
				return Template{}, &InvalidLegSpecError{Raw: chunk, Reason: fmt.Sprintf("strike %q is not declared", name)}
			}
		}
		if leg.IsLeverageReference() && !t.Declares(leg.LeverageRef) {
			return Template{}, &InvalidLegSpecError{Raw: chunk, Reason: fmt.Sprintf("leverage %q is not declared", leg.LeverageRef)}
		}
		t.Legs = append(t.Legs, leg)
	}
	return t, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
