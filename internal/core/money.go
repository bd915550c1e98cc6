// Package core provides money parsing and handling utilities.
//
// Amounts are fixed-point decimals with two fractional digits. Every
// constructor and every arithmetic step rounds half away from zero, so a
// long chain of additions never drifts.
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept on every amount.
const MoneyPlaces = 2

// Money is a signed amount rounded to cents.
type Money struct {
	d decimal.Decimal
}

// NewMoney rounds d to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d.Round(MoneyPlaces)}
}

// MoneyFromCents builds an amount from integer minor units.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyPlaces)}
}

// ParseMoney converts a decimal string to Money with half away from zero rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. When both
// appear, the last one is the decimal separator and the other is a thousands
// separator, so "1.234,56" and "1,234.56" both parse to 1234.56.
//
// Examples:
//
//	ParseMoney("12.34")   -> 12.34
//	ParseMoney("-12,345") -> -12.35
//	ParseMoney("1.005")   -> 1.01
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, " ", "")
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return NewMoney(d), nil
}

// MustMoney is ParseMoney for literals known to be valid.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Sum adds amounts left to right, rounding after every addition.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func (m Money) Add(o Money) Money { return NewMoney(m.d.Add(o.d)) }

func (m Money) Sub(o Money) Money { return NewMoney(m.d.Sub(o.d)) }

func (m Money) Neg() Money { return NewMoney(m.d.Neg()) }

func (m Money) Abs() Money { return NewMoney(m.d.Abs()) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Exceeds reports whether |m| is strictly greater than tolerance.
func (m Money) Exceeds(tolerance decimal.Decimal) bool {
	return m.d.Abs().GreaterThan(tolerance)
}

// Decimal exposes the underlying value, already rounded to cents.
func (m Money) Decimal() decimal.Decimal { return m.d.Round(MoneyPlaces) }

// Cents returns the amount in integer minor units.
func (m Money) Cents() int64 { return m.d.Shift(MoneyPlaces).Round(0).IntPart() }

// String always renders exactly two fractional digits.
func (m Money) String() string { return m.d.StringFixed(MoneyPlaces) }

// MarshalJSON encodes the amount as a bare JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if string(data) == "null" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
