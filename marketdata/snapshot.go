package marketdata

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meenmo/fxstruct/calendar"
	"github.com/meenmo/fxstruct/product"
	"github.com/meenmo/fxstruct/utils"
)

// MarketData is the read-only view of a market the assembler prices against.
//
// Accrual is the premium (quote) currency and underlying is the base currency of the pair.
type MarketData interface {
	ReferenceDate() time.Time
	Calendar() calendar.CalendarID
	SpotLag() int
	Spot(q product.Quote) float64
	AccrualRate(expiry time.Time, q product.Quote) float64
	UnderlyingRate(expiry time.Time, q product.Quote) float64
	Forward(expiry time.Time, spotQ, accQ, undQ product.Quote) float64
	Vol(strike float64, expiry time.Time, q product.Quote) float64
}

// Snapshot is an in-memory market for one currency pair.
type Snapshot struct {
	Pair    string
	RefDate time.Time
	Cal     calendar.CalendarID
	Lag     int

	SpotBid float64
	SpotAsk float64

	Accrual    *Curve
	Underlying *Curve
	Surface    *VolSurface
}

var _ MarketData = (*Snapshot)(nil)

func (s *Snapshot) ReferenceDate() time.Time { return s.RefDate }
func (s *Snapshot) Calendar() calendar.CalendarID { return s.Cal }
func (s *Snapshot) SpotLag() int { return s.Lag }

// PipsUnit is the pips scale of the pair's preset convention, or 0 for an unknown pair.
func (s *Snapshot) PipsUnit() float64 {
	if c, ok := LookupPair(s.Pair); ok {
		return c.PipsUnit
	}
	return 0
}

// Spot returns the quoted spot; mid is the average of bid and ask.
func (s *Snapshot) Spot(q product.Quote) float64 {
	switch q {
	case product.Bid:
		return s.SpotBid
	case product.Ask:
		return s.SpotAsk
	default:
		return 0.5 * (s.SpotBid + s.SpotAsk)
	}
}

// YearFraction is the ACT/365F time from the reference date to t, floored at zero.
func (s *Snapshot) YearFraction(t time.Time) float64 {
	return math.Max(utils.YearFraction(s.RefDate, t, utils.Act365F), 0)
}

func (s *Snapshot) AccrualRate(expiry time.Time, q product.Quote) float64 {
	return s.Accrual.Rate(s.YearFraction(expiry), q)
}

func (s *Snapshot) UnderlyingRate(expiry time.Time, q product.Quote) float64 {
	return s.Underlying.Rate(s.YearFraction(expiry), q)
}

// Forward is covered-interest parity on continuously-compounded rates.
func (s *Snapshot) Forward(expiry time.Time, spotQ, accQ, undQ product.Quote) float64 {
	t := s.YearFraction(expiry)
	return s.Spot(spotQ) * math.Exp((s.AccrualRate(expiry, accQ)-s.UnderlyingRate(expiry, undQ))*t)
}

// Vol reads the smile at moneyness strike/forward (mid forward).
func (s *Snapshot) Vol(strike float64, expiry time.Time, q product.Quote) float64 {
	fwd := s.Forward(expiry, product.Mid, product.Mid, product.Mid)
	m := 1.0
	if fwd > 0 && strike > 0 {
		m = strike / fwd
	}
	return s.Surface.Vol(m, s.YearFraction(expiry), q)
}

// VolSurface holds smiles by moneyness (K/F) at tenor pillars.
// Each smile is linear in moneyness with flat wings; total variance is linear in time between pillars.
type VolSurface struct {
	Moneyness []float64
	times     []float64
	smiles    [][]float64

	// Spread is the half bid/ask spread in vol points.
	Spread float64
}

// NewVolSurface validates the grid. smiles[i] holds one vol per moneyness point for tenors[i].
func NewVolSurface(moneyness []float64, tenors []string, smiles [][]float64, spread float64) (*VolSurface, error) {
	if len(moneyness) == 0 || len(tenors) == 0 {
		return nil, fmt.Errorf("NewVolSurface: empty grid")
	}
	if !sort.Float64sAreSorted(moneyness) {
		return nil, fmt.Errorf("NewVolSurface: moneyness must be ascending")
	}
	if len(smiles) != len(tenors) {
		return nil, fmt.Errorf("NewVolSurface: %d tenors but %d smiles", len(tenors), len(smiles))
	}
	type pillar struct {
		t     float64
		smile []float64
	}
	pillars := make([]pillar, 0, len(tenors))
	for i, tenor := range tenors {
		t, err := TenorToYears(tenor)
		if err != nil {
			return nil, fmt.Errorf("NewVolSurface: %w", err)
		}
		if len(smiles[i]) != len(moneyness) {
			return nil, fmt.Errorf("NewVolSurface: smile %s has %d vols, want %d", tenor, len(smiles[i]), len(moneyness))
		}
		for _, v := range smiles[i] {
			if v <= 0 {
				return nil, fmt.Errorf("NewVolSurface: non-positive vol in smile %s", tenor)
			}
		}
		pillars = append(pillars, pillar{t, smiles[i]})
	}
	sort.Slice(pillars, func(i, j int) bool { return pillars[i].t < pillars[j].t })

	vs := &VolSurface{Moneyness: moneyness, Spread: spread}
	for _, p := range pillars {
		vs.times = append(vs.times, p.t)
		vs.smiles = append(vs.smiles, p.smile)
	}
	return vs, nil
}

// NewFlatVolSurface returns a surface with one vol everywhere.
func NewFlatVolSurface(vol, spread float64) *VolSurface {
	return &VolSurface{
		Moneyness: []float64{1},
		times:     []float64{1},
		smiles:    [][]float64{{vol}},
		Spread:    spread,
	}
}

// Vol returns the quoted vol at moneyness m and year fraction t.
func (v *VolSurface) Vol(m, t float64, q product.Quote) float64 {
	n := len(v.times)
	smileAt := func(i int) float64 { return interpolate(v.Moneyness, v.smiles[i], m) }

	var mid float64
	switch {
	case n == 1 || t <= v.times[0]:
		mid = smileAt(0)
	case t >= v.times[n-1]:
		mid = smileAt(n - 1)
	default:
		idx := sort.SearchFloat64s(v.times, t)
		t0, t1 := v.times[idx-1], v.times[idx]
		w0 := smileAt(idx-1) * smileAt(idx-1) * t0
		w1 := smileAt(idx) * smileAt(idx) * t1
		w := w0 + (t-t0)/(t1-t0)*(w1-w0)
		mid = math.Sqrt(w / t)
	}
	return math.Max(quoted(mid, v.Spread, q), 0)
}

// NewFlatSnapshot builds a market with flat curves and a flat vol; bid and ask coincide.
func NewFlatSnapshot(ref time.Time, spot, accrualRate, underlyingRate, vol float64) *Snapshot {
	return &Snapshot{
		Pair:       "FLAT",
		RefDate:    utils.Truncate(ref),
		Cal:        calendar.Joint(calendar.USD),
		Lag:        2,
		SpotBid:    spot,
		SpotAsk:    spot,
		Accrual:    NewFlatCurve(accrualRate, 0),
		Underlying: NewFlatCurve(underlyingRate, 0),
		Surface:    NewFlatVolSurface(vol, 0),
	}
}

type snapshotFile struct {
	Pair          string    `yaml:"pair"`
	ReferenceDate string    `yaml:"reference_date"`
	Calendar      string    `yaml:"calendar"`
	SpotLag       *int      `yaml:"spot_lag"`
	Holidays      []string  `yaml:"holidays"`
	Spot          quoteFile `yaml:"spot"`
	Accrual       curveFile `yaml:"accrual_curve"`
	Underlying    curveFile `yaml:"underlying_curve"`
	Vol           volFile   `yaml:"vol_surface"`
}

type quoteFile struct {
	Bid float64 `yaml:"bid"`
	Ask float64 `yaml:"ask"`
	Mid float64 `yaml:"mid"`
}

type curveFile struct {
	Spread float64  `yaml:"spread"`
	Flat   *float64 `yaml:"flat"`
	Points []struct {
		Tenor string  `yaml:"tenor"`
		Rate  float64 `yaml:"rate"`
	} `yaml:"points"`
}

type volFile struct {
	Spread    float64   `yaml:"spread"`
	Flat      *float64  `yaml:"flat"`
	Moneyness []float64 `yaml:"moneyness"`
	Smiles    []struct {
		Tenor string    `yaml:"tenor"`
		Vols  []float64 `yaml:"vols"`
	} `yaml:"smiles"`
}

// LoadSnapshot reads a YAML snapshot file. Calendar and spot lag default to the
// pair's preset convention, then to USD with a two-day lag.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSnapshot: %w", err)
	}
	s, err := ParseSnapshotYAML(b)
	if err != nil {
		return nil, fmt.Errorf("LoadSnapshot: %s: %w", path, err)
	}
	return s, nil
}

// ParseSnapshotYAML decodes a snapshot document.
func ParseSnapshotYAML(b []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("ParseSnapshotYAML: %w", err)
	}
	ref, err := utils.ParseDate(f.ReferenceDate)
	if err != nil {
		return nil, fmt.Errorf("ParseSnapshotYAML: reference_date: %w", err)
	}

	s := &Snapshot{Pair: f.Pair, RefDate: ref, Lag: 2, Cal: calendar.Joint(calendar.USD)}
	if conv, ok := LookupPair(f.Pair); ok {
		s.Cal, s.Lag = conv.Calendar, conv.SpotLag
	}
	if f.Calendar != "" {
		s.Cal = calendar.CalendarID(f.Calendar)
	}
	if f.SpotLag != nil {
		s.Lag = *f.SpotLag
	}
	if len(f.Holidays) > 0 {
		days := make([]time.Time, 0, len(f.Holidays))
		for _, h := range f.Holidays {
			d, err := utils.ParseDate(h)
			if err != nil {
				return nil, fmt.Errorf("ParseSnapshotYAML: holidays: %w", err)
			}
			days = append(days, d)
		}
		calendar.AddHolidays(s.Cal, days...)
	}

	switch {
	case f.Spot.Bid > 0 && f.Spot.Ask > 0:
		s.SpotBid, s.SpotAsk = f.Spot.Bid, f.Spot.Ask
	case f.Spot.Mid > 0:
		s.SpotBid, s.SpotAsk = f.Spot.Mid, f.Spot.Mid
	default:
		return nil, fmt.Errorf("ParseSnapshotYAML: spot is missing")
	}
	if s.SpotBid > s.SpotAsk {
		return nil, fmt.Errorf("ParseSnapshotYAML: spot bid %v above ask %v", s.SpotBid, s.SpotAsk)
	}

	if s.Accrual, err = f.Accrual.build(); err != nil {
		return nil, fmt.Errorf("ParseSnapshotYAML: accrual_curve: %w", err)
	}
	if s.Underlying, err = f.Underlying.build(); err != nil {
		return nil, fmt.Errorf("ParseSnapshotYAML: underlying_curve: %w", err)
	}
	if s.Surface, err = f.Vol.build(); err != nil {
		return nil, fmt.Errorf("ParseSnapshotYAML: vol_surface: %w", err)
	}
	return s, nil
}

func (c curveFile) build() (*Curve, error) {
	if c.Flat != nil {
		return NewFlatCurve(*c.Flat, c.Spread), nil
	}
	tenors := make([]string, 0, len(c.Points))
	rates := make([]float64, 0, len(c.Points))
	for _, p := range c.Points {
		tenors = append(tenors, p.Tenor)
		rates = append(rates, p.Rate)
	}
	return NewCurve(tenors, rates, c.Spread)
}

func (v volFile) build() (*VolSurface, error) {
	if v.Flat != nil {
		if *v.Flat <= 0 {
			return nil, fmt.Errorf("flat vol must be positive")
		}
		return NewFlatVolSurface(*v.Flat, v.Spread), nil
	}
	tenors := make([]string, 0, len(v.Smiles))
	smiles := make([][]float64, 0, len(v.Smiles))
	for _, s := range v.Smiles {
		tenors = append(tenors, s.Tenor)
		smiles = append(smiles, s.Vols)
	}
	return NewVolSurface(v.Moneyness, tenors, smiles, v.Spread)
}
