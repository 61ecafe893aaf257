package assembler

import "github.com/meenmo/fxstruct/product"

// Sides are the quote sides one leg consumes.
type Sides struct {
	Spot       product.Quote
	Accrual    product.Quote
	Underlying product.Quote
	Vol        product.Quote
}

// Conventions picks market sides from the house perspective. Buying a call (or selling a put)
// takes bid spot and accrual rate and ask underlying rate; other combinations take the reverse.
// Vol is bid when buying and ask when selling. Mid legs use mid throughout, and client-facing
// packages flip every side. Linear legs follow the call convention.
func Conventions(side product.Side, opt product.OptionType, clientFacing bool, market product.MarketSide) Sides {
	if market == product.MarketMid {
		return Sides{Spot: product.Mid, Accrual: product.Mid, Underlying: product.Mid, Vol: product.Mid}
	}

	var s Sides
	if (side == product.Buy) == (opt != product.Put) {
		s = Sides{Spot: product.Bid, Accrual: product.Bid, Underlying: product.Ask}
	} else {
		s = Sides{Spot: product.Ask, Accrual: product.Ask, Underlying: product.Bid}
	}
	if side == product.Buy {
		s.Vol = product.Bid
	} else {
		s.Vol = product.Ask
	}

	if clientFacing {
		s.Spot, s.Accrual, s.Underlying, s.Vol = s.Spot.Flip(), s.Accrual.Flip(), s.Underlying.Flip(), s.Vol.Flip()
	}
	return s
}
