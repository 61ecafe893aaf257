package structure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/meenmo/fxstruct/product"
)

// LegDescriptor is one parsed leg of a structure, e.g. "Sell 2 Barrier_Down_Out Put@K2,B2".
type LegDescriptor struct {
	Raw         string
	Side        product.Side
	Leverage    float64
	LeverageRef string
	Family      product.Family
	OptionType  product.OptionType
	DigitalType product.DigitalType
	StrikeNames []string
	MarketSide  product.MarketSide
	SubArgs     []string
}

// IsLeverageReference reports whether leverage is bound by name at pricing time.
func (l LegDescriptor) IsLeverageReference() bool {
	return l.LeverageRef != ""
}

// PrimaryStrike is the first strike name, or "" when the leg names none.
func (l LegDescriptor) PrimaryStrike() string {
	if len(l.StrikeNames) == 0 {
		return ""
	}
	return l.StrikeNames[0]
}

// SecondaryName is the barrier name of barrier legs and the payout name of digital legs.
func (l LegDescriptor) SecondaryName() string {
	if len(l.StrikeNames) < 2 {
		return ""
	}
	return l.StrikeNames[1]
}

// InvalidLegSpecError reports a leg descriptor grammar violation.
type InvalidLegSpecError struct {
	Raw    string
	Reason string
}

func (e *InvalidLegSpecError) Error() string {
	return fmt.Sprintf("invalid leg %q: %s", e.Raw, e.Reason)
}

var (
	nonWord      = regexp.MustCompile(`\W+`)
	tokenSep     = regexp.MustCompile(`[^\w.]+`)
	midQualifier = regexp.MustCompile(`(?i)^\s*(\w+)\s*,\s*mid\b`)
)

type digitalKind struct {
	digital product.DigitalType
	option  product.OptionType
}

var digitalTypes = map[string]digitalKind{
	"cashcall":           {product.DigitalCash, product.Call},
	"cashput":            {product.DigitalCash, product.Put},
	"cashornothingcall":  {product.DigitalCash, product.Call},
	"cashornothingput":   {product.DigitalCash, product.Put},
	"assetcall":          {product.DigitalAsset, product.Call},
	"assetput":           {product.DigitalAsset, product.Put},
	"assetornothingcall": {product.DigitalAsset, product.Call},
	"assetornothingput":  {product.DigitalAsset, product.Put},
}

var subFamilies = map[string]product.Family{
	"vanilla":        product.Vanilla,
	"european":       product.Vanilla,
	"american":       product.American,
	"barrierdownin":  product.BarrierDownIn,
	"barrierdi":      product.BarrierDownIn,
	"downin":         product.BarrierDownIn,
	"barrierdownout": product.BarrierDownOut,
	"barrierdo":      product.BarrierDownOut,
	"downout":        product.BarrierDownOut,
	"barrierupin":    product.BarrierUpIn,
	"barrierui":      product.BarrierUpIn,
	"upin":           product.BarrierUpIn,
	"barrierupout":   product.BarrierUpOut,
	"barrieruo":      product.BarrierUpOut,
	"upout":          product.BarrierUpOut,
}

// ParseLeg parses one leg descriptor:
//
//	<side> [leverage] <vanilla|european|american|barrier..|asian_..> <call|put>[@strike[,barrier]]
//	<side> [leverage] <cash|asset> <call|put>[@strike[,payout]]
//	<side> [leverage] <call|put|outright|forward>[@strike]
//
// A leading "<strike>,mid" qualifier prices the leg at mid.
func ParseLeg(raw string) (LegDescriptor, error) {
	leg := LegDescriptor{Raw: strings.TrimSpace(raw), Leverage: 1, MarketSide: product.MarketClient}
	fail := func(format string, args ...any) (LegDescriptor, error) {
		return LegDescriptor{}, &InvalidLegSpecError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	def, names, _ := strings.Cut(leg.Raw, "@")
	leg.StrikeNames = splitWords(nonWord, names)

	if m := midQualifier.FindStringSubmatchIndex(def); m != nil {
		leg.MarketSide = product.MarketMid
		def = def[m[1]:]
	}

	// Leverage may be fractional, so dots stay inside tokens.
	tokens := splitWords(tokenSep, def)
	lower := strings.ToLower(def)
	if len(tokens) == 0 {
		return fail("empty definition")
	}
	side, ok := product.ParseSide(tokens[0])
	if !ok {
		return fail("unknown side %q", tokens[0])
	}
	leg.Side = side

	switch {
	case containsAny(lower, "vanilla", "barrier", "european", "american", "asian"):
		if len(tokens) < 3 {
			return fail("want [side, leverage?, family, call/put], got %d tokens", len(tokens))
		}
		rest := tokens[1:]
		if len(tokens) >= 4 {
			leg.setLeverage(tokens[1])
			rest = tokens[2:]
		}
		if err := leg.setSubFamily(rest[0], strings.Contains(lower, "asian")); err != nil {
			return fail("%v", err)
		}
		cp, ok := product.ParseOptionType(rest[1])
		if !ok {
			return fail("unknown call/put %q", rest[1])
		}
		leg.OptionType = cp
		if leg.Family.IsBarrier() && len(leg.StrikeNames) < 2 {
			return fail("barrier legs need strike and barrier names")
		}

	case containsAny(lower, "cash", "asset"):
		idx := -1
		for i, tok := range tokens {
			if containsAny(strings.ToLower(tok), "cash", "asset") {
				idx = i
				break
			}
		}
		if idx < 1 || idx > 2 {
			return fail("want [side, leverage?, digital type], got %d tokens", len(tokens))
		}
		if idx == 2 {
			leg.setLeverage(tokens[1])
		}
		sub := tokens[idx]
		if idx+1 < len(tokens) {
			sub += tokens[idx+1]
		}
		if idx+2 < len(tokens) {
			return fail("unexpected token %q", tokens[idx+2])
		}
		kind, ok := digitalTypes[squash(sub)]
		if !ok {
			return fail("unknown digital type %q", sub)
		}
		leg.Family = product.EuropeanDigital
		leg.DigitalType = kind.digital
		leg.OptionType = kind.option

	default:
		if len(tokens) < 2 {
			return fail("want [side, leverage?, call/put/outright], got %d tokens", len(tokens))
		}
		tok := tokens[1]
		if len(tokens) >= 3 {
			leg.setLeverage(tokens[1])
			tok = tokens[2]
		}
		switch strings.ToLower(tok) {
		case "outright":
			leg.Family, leg.OptionType = product.Outright, product.None
		case "forward":
			leg.Family, leg.OptionType = product.Forward, product.None
		default:
			cp, ok := product.ParseOptionType(tok)
			if !ok {
				return fail("unknown call/put %q", tok)
			}
			leg.Family, leg.OptionType = product.Vanilla, cp
		}
	}

	if !leg.IsLeverageReference() && leg.Leverage <= 0 {
		return fail("leverage must be positive")
	}
	return leg, nil
}

// setLeverage reads "2", "2x" or "0.5" as a literal; anything else is a reference name.
func (l *LegDescriptor) setLeverage(tok string) {
	num := strings.TrimSuffix(strings.ToLower(tok), "x")
	if v, err := strconv.ParseFloat(num, 64); err == nil {
		l.Leverage = v
		return
	}
	l.Leverage = 0
	l.LeverageRef = tok
}

func (l *LegDescriptor) setSubFamily(tok string, asian bool) error {
	if asian {
		l.Family = product.Asian
		for _, part := range strings.Split(tok, "_") {
			if part != "" && !strings.EqualFold(part, "asian") {
				l.SubArgs = append(l.SubArgs, part)
			}
		}
		return nil
	}
	fam, ok := subFamilies[squash(tok)]
	if !ok {
		return fmt.Errorf("unknown family %q", tok)
	}
	l.Family = fam
	return nil
}

// String renders the leg back in descriptor grammar.
func (l LegDescriptor) String() string {
	var b strings.Builder
	if l.MarketSide == product.MarketMid && l.PrimaryStrike() != "" {
		b.WriteString(l.PrimaryStrike() + ",mid ")
	}
	b.WriteString(string(l.Side))
	switch {
	case l.IsLeverageReference():
		b.WriteString(" " + l.LeverageRef)
	case l.Leverage != 1:
		b.WriteString(" " + strconv.FormatFloat(l.Leverage, 'f', -1, 64))
	}
	switch {
	case l.Family == product.EuropeanDigital:
		b.WriteString(" " + string(l.DigitalType) + " " + string(l.OptionType))
	case l.Family == product.Asian:
		b.WriteString(" " + strings.Join(append([]string{"ASIAN"}, l.SubArgs...), "_") + " " + string(l.OptionType))
	case l.Family.IsLinear():
		b.WriteString(" " + string(l.Family))
	default:
		b.WriteString(" " + strings.ReplaceAll(string(l.Family), "_", "") + " " + string(l.OptionType))
	}
	if len(l.StrikeNames) > 0 {
		b.WriteString("@" + strings.Join(l.StrikeNames, ","))
	}
	return b.String()
}

func splitWords(re *regexp.Regexp, s string) []string {
	var out []string
	for _, w := range re.Split(s, -1) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func squash(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
