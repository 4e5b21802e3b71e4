package ledger

import (
	"github.com/shopspring/decimal"
)

// Amount is an optional monetary value. The zero Amount is unset and
// resolves to zero through OrZero, which is the only place that rule lives.
// Scan, Value and the JSON methods come from the embedded NullDecimal, so
// an unset Amount is stored as NULL and encoded as null.
type Amount struct {
	decimal.NullDecimal
}

// Some returns a set Amount.
func Some(d decimal.Decimal) Amount {
	return Amount{decimal.NullDecimal{Decimal: d, Valid: true}}
}

// None returns an unset Amount.
func None() Amount {
	return Amount{}
}

// IsSet reports whether the amount carries a value.
func (a Amount) IsSet() bool {
	return a.Valid
}

// OrZero resolves an unset amount to zero.
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Decimal
}

func (a Amount) String() string {
	if !a.Valid {
		return "unset"
	}
	return a.Decimal.StringFixed(2)
}
