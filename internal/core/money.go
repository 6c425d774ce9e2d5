// Package core provides the domain model of the ledger engine: money
// handling, accounts, transactions and installment plans.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between minor units and decimal representations. The
// ledger itself never stores a floating value; every amount crossing the
// API boundary passes through these conversions first.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MinorUnitFactor is the multiplier between a decimal currency amount
// and its exact integer minor-unit representation (two-decimal currency).
const MinorUnitFactor = 100

// Money is an exact integer amount in minor units.
type Money struct {
	Units int64
}

// ParseDecimalToMinor converts a decimal string to minor units with proper
// rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the third decimal place. The result is
// always positive. Returns an error for invalid formats, negative values,
// or zero amounts.
//
// Examples:
//
//	ParseDecimalToMinor("12.34") -> 1234, nil
//	ParseDecimalToMinor("12,34") -> 1234, nil
//	ParseDecimalToMinor("12.345") -> 1234, nil (rounds down)
//	ParseDecimalToMinor("12.346") -> 1235, nil (rounds up)
func ParseDecimalToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by the minor-unit factor
	const maxSafeInt64 = (1<<63 - 1) / MinorUnitFactor
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracUnits int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracUnits = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracUnits += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracUnits++
				}
			}
		}
	}
	units := iv*MinorUnitFactor + fracUnits
	if units <= 0 {
		return 0, ErrInvalidAmount
	}
	return units, nil
}

// ToMinorUnits converts a decimal float to minor units, rounding half
// away from zero. JSON request bodies carry decimal floats; this is the
// single conversion point before they reach the ledger.
func ToMinorUnits(f float64) int64 {
	scaled := f * MinorUnitFactor
	if scaled < 0 {
		return -int64(math.Floor(-scaled + 0.5))
	}
	return int64(math.Floor(scaled + 0.5))
}

// ToDecimal converts minor units back to a decimal float for display and
// derived math. The result must never be re-persisted without going back
// through ToMinorUnits.
func ToDecimal(units int64) float64 {
	return float64(units) / MinorUnitFactor
}

// Decimal returns the decimal value as a float64 for display purposes.
// Use Units for calculations to avoid floating-point precision issues.
func (m Money) Decimal() float64 {
	return ToDecimal(m.Units)
}

func (m Money) Validate() error {
	if m.Units <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CeilDiv divides a by b rounding up; used for installment monthly
// amounts where rounding must never short the principal.
func CeilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
