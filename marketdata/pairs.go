package marketdata

import (
	"strings"

	"github.com/meenmo/fxstruct/calendar"
)

// PairConvention holds the settlement and quoting conventions of a currency pair.
type PairConvention struct {
	Pair     string
	Calendar calendar.CalendarID
	SpotLag  int
	// PipsUnit scales premium per unit notional into pips.
	PipsUnit float64
}

// Preset conventions for the pairs the desk quotes.
var (
	EURUSD = PairConvention{Pair: "EURUSD", Calendar: calendar.Joint(calendar.TARGET, calendar.USD), SpotLag: 2, PipsUnit: 10000}
	GBPUSD = PairConvention{Pair: "GBPUSD", Calendar: calendar.Joint(calendar.GBP, calendar.USD), SpotLag: 2, PipsUnit: 10000}
	EURGBP = PairConvention{Pair: "EURGBP", Calendar: calendar.Joint(calendar.TARGET, calendar.GBP), SpotLag: 2, PipsUnit: 10000}
	USDJPY = PairConvention{Pair: "USDJPY", Calendar: calendar.Joint(calendar.USD, calendar.JPN), SpotLag: 2, PipsUnit: 100}
	EURJPY = PairConvention{Pair: "EURJPY", Calendar: calendar.Joint(calendar.TARGET, calendar.JPN), SpotLag: 2, PipsUnit: 100}
	USDKRW = PairConvention{Pair: "USDKRW", Calendar: calendar.Joint(calendar.USD, calendar.KRW), SpotLag: 2, PipsUnit: 1}
)

var pairConventions = map[string]PairConvention{
	EURUSD.Pair: EURUSD,
	GBPUSD.Pair: GBPUSD,
	EURGBP.Pair: EURGBP,
	USDJPY.Pair: USDJPY,
	EURJPY.Pair: EURJPY,
	USDKRW.Pair: USDKRW,
}

// LookupPair returns the preset for a pair written as "EURUSD", "EUR/USD" or "eur-usd".
func LookupPair(pair string) (PairConvention, bool) {
	key := strings.ToUpper(strings.NewReplacer("/", "", "-", "", " ", "").Replace(pair))
	c, ok := pairConventions[key]
	return c, ok
}
