package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// NumberStyle picks how an ambiguous single separator is read.
type NumberStyle int

const (
	// StyleUS reads "1,234" as one thousand two hundred thirty-four.
	StyleUS NumberStyle = iota
	// StyleEU reads "1.234" as one thousand two hundred thirty-four and
	// "12,50" as twelve and a half.
	StyleEU
)

// ParseAmount accepts a JSON number or a formatted string ("1.234,56",
// "1,234.56", "€ 42,50", "-3.5").
func ParseAmount(v any, style NumberStyle) (domain.Amount, error) {
	switch n := v.(type) {
	case nil:
		return domain.Amount{}, &domain.ErrValidation{Field: "amount", Message: "amount is required"}
	case float64:
		return domain.NewAmount(decimal.NewFromFloat(n)), nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return domain.Amount{}, invalidAmount(n.String())
		}
		return domain.NewAmount(d), nil
	case string:
		return parseAmountString(n, style)
	default:
		return domain.Amount{}, &domain.ErrValidation{Field: "amount", Message: "amount must be a number or a numeric string"}
	}
}

func parseAmountString(s string, style NumberStyle) (domain.Amount, error) {
	raw := s
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = !negative
		case r == '+' && b.Len() == 0:
		case r == ' ', r == '\u00a0', r == '\'', r == '€', r == '$', r == '£':
		default:
			if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
				continue // currency codes such as EUR
			}
			return domain.Amount{}, invalidAmount(raw)
		}
	}
	digits := normalizeSeparators(b.String(), style)
	if digits == "" {
		return domain.Amount{}, invalidAmount(raw)
	}

	d, err := decimal.NewFromString(digits)
	if err != nil {
		return domain.Amount{}, invalidAmount(raw)
	}
	if negative {
		d = d.Neg()
	}
	return domain.NewAmount(d), nil
}

// normalizeSeparators rewrites s so that '.' is the only (decimal) separator.
func normalizeSeparators(s string, style NumberStyle) string {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		// the right-most separator is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas == 1:
		if style == StyleUS && groupOfThree(s, ",") {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(s, ",", ".")
	case dots == 1:
		if style == StyleEU && groupOfThree(s, ".") {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	}
	return s
}

// groupOfThree reports whether sep is followed by exactly three digits and
// preceded by one to three, the shape of a thousands group.
func groupOfThree(s, sep string) bool {
	i := strings.Index(s, sep)
	head, tail := s[:i], s[i+1:]
	return len(tail) == 3 && len(head) >= 1 && len(head) <= 3
}

func invalidAmount(raw string) error {
	return &domain.ErrValidation{Field: "amount", Message: fmt.Sprintf("invalid amount %q", raw)}
}

// ParseType maps free-form direction labels to a ledger transaction type.
func ParseType(s string) (domain.TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "expenses", "debit", "out", "spending":
		return domain.TransactionExpense, nil
	case "income", "credit", "in", "deposit":
		return domain.TransactionIncome, nil
	}
	return "", &domain.ErrValidation{Field: "type", Message: fmt.Sprintf("type must be income or expense, got %q", s)}
}

// requirePositive enforces the magnitude convention of webhook payloads:
// the direction comes from the type field.
func requirePositive(a domain.Amount) error {
	if !a.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	return nil
}
