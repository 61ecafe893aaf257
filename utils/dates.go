package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is day zero of the 1900 date system (serial 1 == 1900-01-01, with the leap-year bug).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"02/01/2006",
	"2006-01-02T15:04:05Z07:00",
	"02-Jan-2006",
}

// ParseDate accepts ISO dates, compact yyyymmdd, a few sheet formats and Excel serial numbers.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("ParseDate: empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Truncate(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return FromExcelSerial(serial)
	}
	return time.Time{}, fmt.Errorf("ParseDate: unrecognised date %q", s)
}

// FromExcelSerial converts a spreadsheet serial day number to a UTC date.
func FromExcelSerial(serial float64) (time.Time, error) {
	if serial <= 0 || serial > 2958465 || math.IsNaN(serial) {
		return time.Time{}, fmt.Errorf("FromExcelSerial: serial %v out of range", serial)
	}
	return excelEpoch.AddDate(0, 0, int(serial)), nil
}

// Truncate drops the clock so that dates compare as calendar days.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns the day count fraction in days between two dates.
func Days(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24
}

// AddMonth behaves like Excel's EDATE, avoiding Go's month normalization surprises.
func AddMonth(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := min(t.Day(), last)
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
