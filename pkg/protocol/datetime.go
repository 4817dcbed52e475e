package protocol

import (
	"strconv"
	"strings"
	"time"
)

// truncateFractional drops a "." and everything after it, as the D0
// positioning frame's utc_time/utc_date fields may carry a fractional
// tail. A field with no "." is returned unchanged.
func truncateFractional(value string) string {
	if i := strings.IndexByte(value, '.'); i >= 0 {
		return value[:i]
	}
	return value
}

// ParseDate parses a ddmmyy wire field (century 2000+) into a UTC
// midnight time.Time, rejecting anything that isn't a real calendar date.
func ParseDate(field string) (time.Time, error) {
	raw := field
	field = truncateFractional(field)
	if len(field) != 6 {
		return time.Time{}, newDecodeErr("date", raw, "must be exactly 6 digits (ddmmyy)")
	}
	day, err := strconv.Atoi(field[0:2])
	if err != nil {
		return time.Time{}, wrapDecodeErr("date", raw, "invalid day", err)
	}
	month, err := strconv.Atoi(field[2:4])
	if err != nil {
		return time.Time{}, wrapDecodeErr("date", raw, "invalid month", err)
	}
	year, err := strconv.Atoi(field[4:6])
	if err != nil {
		return time.Time{}, wrapDecodeErr("date", raw, "invalid year", err)
	}
	year += 2000

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, newDecodeErr("date", raw, "not a valid calendar date")
	}
	return t, nil
}

// ParseTimeOfDay parses an hhmmss wire field into hour/minute/second,
// rejecting out-of-range components instead of letting them normalize.
func ParseTimeOfDay(field string) (hour, minute, second int, err error) {
	raw := field
	field = truncateFractional(field)
	if len(field) != 6 {
		return 0, 0, 0, newDecodeErr("time", raw, "must be exactly 6 digits (hhmmss)")
	}
	hour, err = strconv.Atoi(field[0:2])
	if err != nil {
		return 0, 0, 0, wrapDecodeErr("time", raw, "invalid hour", err)
	}
	minute, err = strconv.Atoi(field[2:4])
	if err != nil {
		return 0, 0, 0, wrapDecodeErr("time", raw, "invalid minute", err)
	}
	second, err = strconv.Atoi(field[4:6])
	if err != nil {
		return 0, 0, 0, wrapDecodeErr("time", raw, "invalid second", err)
	}
	if hour >= 24 {
		return 0, 0, 0, newDecodeErr("time", raw, "out of range")
	}
	if minute >= 60 || second >= 60 {
		return 0, 0, 0, newDecodeErr("time", raw, "out of range")
	}
	return hour, minute, second, nil
}

// ParseDateTime combines a D0 frame's utc_time and utc_date fields into
// a single UTC time.Time. Both fields may carry a fractional tail after
// "."; the substring before the "." is used. A date field that is short
// is a decode error — the positioning frame must never fall back to
// reusing the time field's digits for the date.
func ParseDateTime(timeField, dateField string) (time.Time, error) {
	hour, minute, second, err := ParseTimeOfDay(timeField)
	if err != nil {
		return time.Time{}, err
	}
	date, err := ParseDate(dateField)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, second, 0, time.UTC), nil
}
