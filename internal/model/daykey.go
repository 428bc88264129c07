package model

import (
	"fmt"
	"time"
)

// DayKey is the canonical external identifier for a calendar day in the
// doctor's local calendar, formatted DD-MM-YYYY. It is distinct from the
// ISO-8601 UTC instants used for range boundaries.
type DayKey string

const dayKeyLayout = "02-01-2006"

// ParseDayKey validates and normalizes a DD-MM-YYYY day key.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return DayKey(t.Format(dayKeyLayout)), nil
}

// DayKeyFor formats the calendar day of t in its own location.
func DayKeyFor(t time.Time) DayKey {
	return DayKey(t.Format(dayKeyLayout))
}

// Date returns the key's calendar day as midnight in loc.
func (k DayKey) Date(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dayKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", string(k), err)
	}
	return t, nil
}

// ISODate converts the key to the YYYY-MM-DD form used by override maps.
func (k DayKey) ISODate() (string, error) {
	t, err := time.Parse(dayKeyLayout, string(k))
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", string(k), err)
	}
	return t.Format("2006-01-02"), nil
}

func (k DayKey) String() string {
	return string(k)
}

// DayKeysBetween expands an inclusive [from, to] range into individual day
// keys, ordered ascending. An inverted range is an error.
func DayKeysBetween(from, to DayKey) ([]DayKey, error) {
	start, err := from.Date(time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := to.Date(time.UTC)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("invalid day range: %s is after %s", from, to)
	}
	var keys []DayKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, DayKeyFor(d))
	}
	return keys, nil
}
