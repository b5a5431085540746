package domain

import (
	"github.com/shopspring/decimal"
)

// Amount is an exact monetary value. It serializes as a two-decimal string
// ("42.50") and accepts either a JSON number or a numeric string.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// MustAmount parses s and panics on malformed input. Intended for tests and
// constants.
func MustAmount(s string) Amount {
	return Amount{Decimal: decimal.RequireFromString(s)}
}

// MarshalJSON renders the amount with exactly two fractional digits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.StringFixed(2) + `"`), nil
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.StringFixed(2)
}

// Cents rounds to two decimal places, half away from zero, the precision
// the ledger stores.
func (a Amount) Cents() Amount {
	return Amount{Decimal: a.Round(2)}
}

// Abs returns the magnitude.
func (a Amount) Abs() Amount {
	return Amount{Decimal: a.Decimal.Abs()}
}

// Neg returns the negated amount.
func (a Amount) Neg() Amount {
	return Amount{Decimal: a.Decimal.Neg()}
}

// SplitSigned applies the ledger sign convention: a negative amount is an
// expense, anything else is income, and the ledger keeps the magnitude.
func SplitSigned(a Amount) (Amount, TransactionType) {
	if a.IsNegative() {
		return a.Abs(), TransactionExpense
	}
	return a, TransactionIncome
}

// Signed is the inverse of SplitSigned: the balance delta of a ledger row.
func Signed(a Amount, t TransactionType) Amount {
	if t == TransactionExpense {
		return a.Abs().Neg()
	}
	return a.Abs()
}
