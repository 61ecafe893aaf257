package pricing

import (
	"math"

	"github.com/meenmo/fxstruct/product"
)

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func intrinsic(phi, s, k float64) float64 {
	return math.Max(phi*(s-k), 0)
}

// gbs is the generalised Black-Scholes price with cost of carry b and discount rate r.
func gbs(phi, s, k, t, r, b, vol float64) float64 {
	if t <= 0 {
		return intrinsic(phi, s, k)
	}
	df := math.Exp(-r * t)
	fwd := s * math.Exp(b*t)
	if vol <= 0 || k <= 0 {
		return df * intrinsic(phi, fwd, k)
	}
	sd := vol * math.Sqrt(t)
	d1 := (math.Log(fwd/k) + 0.5*sd*sd) / sd
	d2 := d1 - sd
	return df * phi * (fwd*normCDF(phi*d1) - k*normCDF(phi*d2))
}

// barrier prices a single-barrier option without rebate (Reiner-Rubinstein).
func barrier(kind product.Family, phi, s, k, h, t, r, b, vol float64) float64 {
	down := kind.IsDown()
	in := kind.IsKnockIn()
	breached := (down && s <= h) || (!down && s >= h)
	if breached {
		if in {
			return gbs(phi, s, k, t, r, b, vol)
		}
		return 0
	}
	if t <= 0 {
		if in {
			return 0
		}
		return intrinsic(phi, s, k)
	}

	sd := vol * math.Sqrt(t)
	mu := (b - 0.5*vol*vol) / (vol * vol)
	eta := 1.0
	if !down {
		eta = -1
	}
	carry := s * math.Exp((b-r)*t)
	df := k * math.Exp(-r*t)

	x1 := math.Log(s/k)/sd + (1+mu)*sd
	x2 := math.Log(s/h)/sd + (1+mu)*sd
	y1 := math.Log(h*h/(s*k))/sd + (1+mu)*sd
	y2 := math.Log(h/s)/sd + (1+mu)*sd
	hs1 := math.Pow(h/s, 2*(mu+1))
	hs2 := math.Pow(h/s, 2*mu)

	A := phi*carry*normCDF(phi*x1) - phi*df*normCDF(phi*x1-phi*sd)
	B := phi*carry*normCDF(phi*x2) - phi*df*normCDF(phi*x2-phi*sd)
	C := phi*carry*hs1*normCDF(eta*y1) - phi*df*hs2*normCDF(eta*y1-eta*sd)
	D := phi*carry*hs1*normCDF(eta*y2) - phi*df*hs2*normCDF(eta*y2-eta*sd)

	above := k > h
	var v float64
	switch {
	case phi > 0 && kind == product.BarrierDownIn:
		v = pick(above, C, A-B+D)
	case phi > 0 && kind == product.BarrierUpIn:
		v = pick(above, A, B-C+D)
	case phi > 0 && kind == product.BarrierDownOut:
		v = pick(above, A-C, B-D)
	case phi > 0 && kind == product.BarrierUpOut:
		v = pick(above, 0, A-B+C-D)
	case kind == product.BarrierDownIn:
		v = pick(above, B-C+D, A)
	case kind == product.BarrierUpIn:
		v = pick(above, A-B+D, C)
	case kind == product.BarrierDownOut:
		v = pick(above, A-B+C-D, 0)
	default:
		v = pick(above, B-D, A-C)
	}
	return math.Max(v, 0)
}

func pick(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}

// digital prices cash-or-nothing (paying payout) and asset-or-nothing options.
func digital(kind product.DigitalType, phi, s, k, payout, t, r, b, vol float64) float64 {
	itm := phi*(s-k) > 0
	if t <= 0 {
		switch {
		case !itm:
			return 0
		case kind == product.DigitalAsset:
			return s
		default:
			return payout
		}
	}
	sd := vol * math.Sqrt(t)
	d1 := (math.Log(s/k) + (b+0.5*vol*vol)*t) / sd
	if kind == product.DigitalAsset {
		return s * math.Exp((b-r)*t) * normCDF(phi*d1)
	}
	return payout * math.Exp(-r*t) * normCDF(phi*(d1-sd))
}

// geometricAsian is the continuous-average fixed-strike closed form (Kemna-Vorst).
func geometricAsian(phi, s, k, t, r, b, vol float64) float64 {
	volA := vol / math.Sqrt(3)
	bA := 0.5 * (b - vol*vol/6)
	return gbs(phi, s, k, t, r, bA, volA)
}

// arithmeticAsian matches the first two moments of the continuous average to a lognormal (Levy).
func arithmeticAsian(phi, s, k, t, r, b, vol float64) float64 {
	if t <= 0 {
		return intrinsic(phi, s, k)
	}
	v2 := vol * vol
	var m1, m2 float64
	if math.Abs(b) < 1e-10 {
		m1 = 1
		m2 = 2 * (math.Exp(v2*t) - 1 - v2*t) / (v2 * v2 * t * t)
	} else {
		m1 = (math.Exp(b*t) - 1) / (b * t)
		m2 = 2*math.Exp((2*b+v2)*t)/((b+v2)*(2*b+v2)*t*t) +
			2/(b*t*t)*(1/(2*b+v2)-math.Exp(b*t)/(b+v2))
	}
	bA := math.Log(m1) / t
	volA := math.Sqrt(math.Max(math.Log(m2)/t-2*bA, 0))
	return gbs(phi, s, k, t, r, bA, volA)
}
