// Package core implements the balance accounting engine: month-granular
// accrual of expected contributions, reconciliation against the transaction
// log, and the derived daily/monthly snapshot shapes. Everything in this
// package is pure; persistence and scheduling live elsewhere.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-supplied amount string to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rejects negative or malformed values. Zero is allowed: a zero-amount
// payment is meaningless but harmless, and zero targets are valid member
// configuration.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
