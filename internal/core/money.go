// Package core provides money parsing and handling utilities.
//
// Amounts are signed: negative values are expenses and positive values are
// income. They are carried as integer cents and converted through
// shopspring/decimal at the edges.
package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// ParseAmount converts a signed decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Zero is rejected.
//
// Examples:
//
//	ParseAmount("12.34")   -> 1234, nil
//	ParseAmount("-12,34")  -> -1234, nil
//	ParseAmount("12.345")  -> 1235, nil (half away from zero)
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents, err := toCents(d)
	if err != nil || cents == 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// maxCents bounds amounts well inside int64 so sums of many stay exact.
var maxCents = decimal.New(1, 17)

func toCents(d decimal.Decimal) (int64, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// Decimal returns the amount as a decimal value in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Fixed formats the amount with exactly two decimals, e.g. "-12.50".
func (m Money) Fixed() string {
	return m.Decimal().StringFixed(2)
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// IsExpense reports whether the amount is negative.
func (m Money) IsExpense() bool {
	return m.Cents < 0
}

// Float returns the amount as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// MarshalJSON encodes the amount as a JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Fixed()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string within the range
// ParseAmount accepts. Zero is allowed here; callers validate it.
func (m *Money) UnmarshalJSON(b []byte) error {
	var raw json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ErrInvalidAmount
		}
		raw = json.Number(s)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw.String(), ",", "."))
	if err != nil {
		return ErrInvalidAmount
	}
	cents, err := toCents(d)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
