// Package daterange normalizes user-supplied day ranges into inclusive,
// ordered calendar-day windows.
package daterange

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DefaultWindowDays is the size of the trailing window used when no bounds are given.
const DefaultWindowDays = 30

// ErrInvalidDateFormat is returned when a bound is not a YYYY-MM-DD calendar date.
var ErrInvalidDateFormat = errors.New("invalid date format")

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Date is a calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Parse parses a YYYY-MM-DD string. Impossible dates such as 2026-02-30 are rejected.
func Parse(s string) (Date, error) {
	if !datePattern.MatchString(s) {
		return Date{}, fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDateFormat, s)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return Of(t), nil
}

// Of returns the calendar day of t in t's own location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsValid reports whether s has the YYYY-MM-DD shape and names a real day.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Start returns midnight of the day in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Of(d.Start(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	return d.Start(time.UTC).Compare(o.Start(time.UTC))
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

// Range is an inclusive [From, To] window of days with From <= To.
type Range struct {
	From Date
	To   Date
}

// Len returns the number of days in the range.
func (r Range) Len() int {
	return int(r.To.Start(time.UTC).Sub(r.From.Start(time.UTC)).Hours()/24) + 1
}

// Days returns every day in the range in ascending order.
func (r Range) Days() []Date {
	days := make([]Date, 0, r.Len())
	for d := r.From; !r.To.Before(d); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.From) && !r.To.Before(d)
}

func (r Range) String() string {
	return r.From.String() + ".." + r.To.String()
}

// Validate checks the shape of both bounds without resolving the range.
// Empty bounds are allowed.
func Validate(from, to string) error {
	for _, s := range []string{from, to} {
		if s == "" {
			continue
		}
		if _, err := Parse(s); err != nil {
			return err
		}
	}
	return nil
}

// Normalize resolves optional bounds into an inclusive range relative to today.
//
// Both bounds empty yields the trailing DefaultWindowDays window ending today.
// A lone from runs up to today and a lone to reaches back a full window.
// Reversed bounds are swapped rather than rejected.
func Normalize(from, to string, today Date) (Range, error) {
	if err := Validate(from, to); err != nil {
		return Range{}, err
	}

	var r Range
	switch {
	case from == "" && to == "":
		r = Range{From: today.AddDays(-(DefaultWindowDays - 1)), To: today}
	case to == "":
		f, _ := Parse(from)
		r = Range{From: f, To: today}
	case from == "":
		t, _ := Parse(to)
		r = Range{From: t.AddDays(-(DefaultWindowDays - 1)), To: t}
	default:
		f, _ := Parse(from)
		t, _ := Parse(to)
		r = Range{From: f, To: t}
	}

	if r.To.Before(r.From) {
		r.From, r.To = r.To, r.From
	}
	return r, nil
}
