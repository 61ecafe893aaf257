package assembler

import (
	"fmt"

	"github.com/meenmo/fxstruct/product"
)

// RateCheckFailedError reports a leg whose inputs violate a family invariant.
type RateCheckFailedError struct {
	Family product.Family
	Detail string
}

func (e *RateCheckFailedError) Error() string {
	return fmt.Sprintf("rate check failed for %s: %s", e.Family, e.Detail)
}

// UnsupportedLegFamilyError reports a leg the engine cannot price.
type UnsupportedLegFamilyError struct {
	Family product.Family
	Detail string
}

func (e *UnsupportedLegFamilyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsupported leg family %s", e.Family)
	}
	return fmt.Sprintf("unsupported leg family %s: %s", e.Family, e.Detail)
}

// MissingValueError reports a strike, barrier, payout or leverage name with no bound value.
type MissingValueError struct {
	Name string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("no value bound for %q", e.Name)
}
