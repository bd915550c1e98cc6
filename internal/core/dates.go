package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the wire format of every calendar date.
const ISOLayout = "2006-01-02"

var (
	isoDatePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	brDatePattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// Date is a calendar day at UTC midnight.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func Today() Date { return DateOf(time.Now()) }

// ParseISODate parses a strict YYYY-MM-DD date.
func ParseISODate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	m := isoDatePattern.FindStringSubmatch(s)
	if m == nil {
		return Date{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return buildDate(s, m[1], m[2], m[3])
}

// ParseDate accepts YYYY-MM-DD or DD/MM/YYYY, the two layouts found in
// imported balance sheets. A trailing time component is ignored.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return buildDate(s, m[1], m[2], m[3])
	}
	if m := brDatePattern.FindStringSubmatch(s); m != nil {
		return buildDate(s, m[3], m[2], m[1])
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func buildDate(raw, ys, ms, ds string) (Date, error) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	date := NewDate(y, m, d)
	// time.Date normalizes overflow (2025-02-30 -> 2025-03-02); reject it.
	if date.Year() != y || date.Month() != m || date.Day() != d {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return date, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(ISOLayout)
}

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// SameDay reports whether both dates denote the same calendar day.
func (d Date) SameDay(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsBusinessDay treats Saturdays and Sundays as the only non-business days.
func IsBusinessDay(d Date) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LastBusinessDay returns ref when it is a business day, else the closest earlier one.
func LastBusinessDay(ref Date) Date {
	for !IsBusinessDay(ref) {
		ref = ref.AddDays(-1)
	}
	return ref
}

// LastBusinessDays returns the n most recent business days up to ref, newest first.
func LastBusinessDays(n int, ref Date) []Date {
	days := make([]Date, 0, n)
	for d := ref; len(days) < n; d = d.AddDays(-1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewDateRange validates the bounds before returning the range.
func NewDateRange(start, end Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// ParseDateRange parses ISO bounds. An empty end means a single-day range.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseISODate(start)
	if err != nil {
		return DateRange{}, &InvalidRangeError{Start: start, End: end, Reason: "malformed start date"}
	}
	if strings.TrimSpace(end) == "" {
		return NewDateRange(s, s)
	}
	e, err := ParseISODate(end)
	if err != nil {
		return DateRange{}, &InvalidRangeError{Start: start, End: end, Reason: "malformed end date"}
	}
	return NewDateRange(s, e)
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &InvalidRangeError{Start: r.Start.String(), End: r.End.String(), Reason: "missing bound"}
	}
	if r.Start.After(r.End.Time) {
		return &InvalidRangeError{Start: r.Start.String(), End: r.End.String(), Reason: "start date after end date"}
	}
	return nil
}

// Len is the number of days in the range, bounds included.
func (r DateRange) Len() int {
	if r.Start.After(r.End.Time) {
		return 0
	}
	return int(r.End.Sub(r.Start.Time).Hours()/24) + 1
}

// Days lists every date of the range in ascending order.
func (r DateRange) Days() []Date {
	days := make([]Date, 0, r.Len())
	for d := r.Start; !d.After(r.End.Time); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start.Time) && !d.After(r.End.Time)
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
