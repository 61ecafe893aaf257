package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meenmo/fxstruct/utils"
)

// CalendarID identifies a holiday calendar. A joint calendar for a currency pair
// is written as "USD+TARGET".
type CalendarID string

const (
	TARGET CalendarID = "TARGET"
	USD    CalendarID = "USD"
	JPN    CalendarID = "JPN"
	GBP    CalendarID = "GBP"
	KRW    CalendarID = "KRW"
)

// Joint combines calendars; a day is a business day only if it is one in every member.
func Joint(ids ...CalendarID) CalendarID {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			parts = append(parts, string(id))
		}
	}
	return CalendarID(strings.Join(parts, "+"))
}

func (c CalendarID) members() []CalendarID {
	if !strings.Contains(string(c), "+") {
		return []CalendarID{c}
	}
	parts := strings.Split(string(c), "+")
	out := make([]CalendarID, 0, len(parts))
	for _, p := range parts {
		out = append(out, CalendarID(strings.TrimSpace(p)))
	}
	return out
}

type monthDay struct {
	month time.Month
	day   int
}

// fixed-date holidays observed every year.
var fixedHolidays = map[CalendarID][]monthDay{
	TARGET: {{time.January, 1}, {time.May, 1}, {time.December, 25}, {time.December, 26}},
	USD:    {{time.January, 1}, {time.June, 19}, {time.July, 4}, {time.November, 11}, {time.December, 25}},
	JPN:    {{time.January, 1}, {time.January, 2}, {time.January, 3}, {time.February, 11}, {time.April, 29}, {time.May, 3}, {time.May, 4}, {time.May, 5}, {time.November, 3}, {time.November, 23}, {time.December, 31}},
	GBP:    {{time.January, 1}, {time.December, 25}, {time.December, 26}},
	KRW:    {{time.January, 1}, {time.March, 1}, {time.May, 5}, {time.June, 6}, {time.August, 15}, {time.October, 3}, {time.October, 9}, {time.December, 25}},
}

const dateKeyLayout = "2006-01-02"

var (
	mu            sync.RWMutex
	extraHolidays = map[CalendarID]map[string]struct{}{}
)

// AddHolidays registers ad-hoc holidays (moving feasts, one-off closures) on a calendar.
// Holidays added to a joint calendar apply to that combination only.
func AddHolidays(cal CalendarID, dates ...time.Time) {
	mu.Lock()
	defer mu.Unlock()
	set, ok := extraHolidays[cal]
	if !ok {
		set = make(map[string]struct{}, len(dates))
		extraHolidays[cal] = set
	}
	for _, d := range dates {
		set[d.Format(dateKeyLayout)] = struct{}{}
	}
}

func isHoliday(cal CalendarID, t time.Time) bool {
	for _, md := range fixedHolidays[cal] {
		if t.Month() == md.month && t.Day() == md.day {
			return true
		}
	}
	mu.RLock()
	defer mu.RUnlock()
	_, ok := extraHolidays[cal][t.Format(dateKeyLayout)]
	return ok
}

// IsBusinessDay checks weekends and holiday sets of every member calendar.
func IsBusinessDay(cal CalendarID, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	members := cal.members()
	if len(members) > 1 && isHoliday(cal, t) {
		return false
	}
	for _, m := range members {
		if isHoliday(m, t) {
			return false
		}
	}
	return true
}

// Adjust applies Modified Following.
func Adjust(cal CalendarID, t time.Time) time.Time {
	origMonth := t.Month()
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	if t.Month() != origMonth {
		t = t.AddDate(0, 0, -1)
		for !IsBusinessDay(cal, t) {
			t = t.AddDate(0, 0, -1)
		}
	}
	return t
}

// AdjustFollowing applies a simple Following convention (no month preservation).
func AdjustFollowing(cal CalendarID, t time.Time) time.Time {
	for !IsBusinessDay(cal, t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddBusinessDays advances n business days (n can be negative).
func AddBusinessDays(cal CalendarID, t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if IsBusinessDay(cal, t) {
			n -= step
		}
	}
	return t
}

// SpotDate is the settlement date of a trade struck on tradeDate.
func SpotDate(cal CalendarID, tradeDate time.Time, spotLag int) time.Time {
	return AddBusinessDays(cal, tradeDate, spotLag)
}

// DeliveryDate settles an option expiring on expiry.
func DeliveryDate(cal CalendarID, expiry time.Time, spotLag int) time.Time {
	return AddBusinessDays(cal, expiry, spotLag)
}

// ExpiryFromTenor rolls a tenor ("1W", "3M", "1Y", "ON") from the reference date.
//
// Conventions:
// - day/week tenors count calendar days from the reference date then adjust following
// - month/year tenors roll from the spot date, and the expiry is the date whose delivery matches
func ExpiryFromTenor(cal CalendarID, ref time.Time, tenor string, spotLag int) (time.Time, error) {
	n, unit, err := splitTenor(tenor)
	if err != nil {
		return time.Time{}, err
	}
	switch unit {
	case 'D':
		return AdjustFollowing(cal, ref.AddDate(0, 0, n)), nil
	case 'W':
		return AdjustFollowing(cal, ref.AddDate(0, 0, 7*n)), nil
	case 'M', 'Y':
		months := n
		if unit == 'Y' {
			months = 12 * n
		}
		spot := SpotDate(cal, ref, spotLag)
		delivery := Adjust(cal, utils.AddMonth(spot, months))
		return AddBusinessDays(cal, delivery, -spotLag), nil
	default:
		return time.Time{}, fmt.Errorf("ExpiryFromTenor: unsupported tenor %q", tenor)
	}
}

func splitTenor(tenor string) (int, byte, error) {
	t := strings.ToUpper(strings.TrimSpace(tenor))
	switch t {
	case "ON", "O/N":
		return 1, 'D', nil
	case "":
		return 0, 0, fmt.Errorf("ExpiryFromTenor: empty tenor")
	}
	unit := t[len(t)-1]
	n, err := strconv.Atoi(t[:len(t)-1])
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("ExpiryFromTenor: invalid tenor %q", tenor)
	}
	return n, unit, nil
}
