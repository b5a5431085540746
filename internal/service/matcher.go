package service

import (
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// MatcherConfig holds the tolerances of the recurring expense matcher.
type MatcherConfig struct {
	DateToleranceDays  int
	AmountTolerancePct float64
	AmountToleranceAbs decimal.Decimal
	DefaultCurrency    string
}

// DefaultMatcherConfig is ±5 days and max(10 %, 0.01) in EUR.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		DateToleranceDays:  5,
		AmountTolerancePct: 0.10,
		AmountToleranceAbs: decimal.RequireFromString("0.01"),
		DefaultCurrency:    "EUR",
	}
}

type occurrence struct {
	expense  *domain.RecurringExpense
	expected time.Time
}

type candidatePair struct {
	occ        int
	tx         int
	dateDist   int
	amountDist decimal.Decimal
}

// Match compares expected occurrences of active recurring expenses against
// ledger expenses. Occurrences run monthly from each start date up to now;
// since, when non-nil, drops earlier occurrences. Assignment is global and
// greedy: the closest pairs bind first and neither side binds twice.
// currencies maps account ids to ISO codes for display.
func Match(expenses []domain.RecurringExpense, txs []domain.Transaction, now time.Time, since *time.Time, cfg MatcherConfig, currencies map[int64]string) *domain.MatchResult {
	today := truncateDay(now)

	var occs []occurrence
	for i := range expenses {
		exp := &expenses[i]
		if !exp.Active {
			continue
		}
		for _, d := range monthlyOccurrences(exp, today) {
			if since != nil && d.Before(truncateDay(*since)) {
				continue
			}
			occs = append(occs, occurrence{expense: exp, expected: d})
		}
	}

	txDates := make([]time.Time, len(txs))
	for i, tx := range txs {
		txDates[i], _ = time.Parse(domain.DateLayout, tx.Date)
	}

	var pairs []candidatePair
	for oi, occ := range occs {
		exp := occ.expense
		band := amountBand(exp.Amount.Decimal, cfg)
		for ti, tx := range txs {
			if tx.Type != domain.TransactionExpense || tx.CategoryID != exp.CategoryID {
				continue
			}
			if exp.AccountID != 0 && tx.AccountID != exp.AccountID {
				continue
			}
			if txDates[ti].IsZero() {
				continue
			}
			dd := absInt(domain.DaysBetween(occ.expected, txDates[ti]))
			if dd > cfg.DateToleranceDays {
				continue
			}
			ad := tx.Amount.Abs().Sub(exp.Amount.Decimal).Abs()
			if ad.GreaterThan(band) {
				continue
			}
			pairs = append(pairs, candidatePair{occ: oi, tx: ti, dateDist: dd, amountDist: ad})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.dateDist != b.dateDist {
			return a.dateDist < b.dateDist
		}
		if c := a.amountDist.Cmp(b.amountDist); c != 0 {
			return c < 0
		}
		if ea, eb := occs[a.occ].expected, occs[b.occ].expected; !ea.Equal(eb) {
			return ea.Before(eb)
		}
		if txs[a.tx].ID != txs[b.tx].ID {
			return txs[a.tx].ID < txs[b.tx].ID
		}
		return occs[a.occ].expense.ID < occs[b.occ].expense.ID
	})

	occMatch := make(map[int]int, len(occs))
	txUsed := make(map[int]bool, len(txs))
	for _, p := range pairs {
		if _, done := occMatch[p.occ]; done || txUsed[p.tx] {
			continue
		}
		occMatch[p.occ] = p.tx
		txUsed[p.tx] = true
	}

	result := &domain.MatchResult{
		Checks:              make([]domain.RecurringCheck, 0, len(occs)),
		MatchedTransactions: map[int64]domain.RecurringCheck{},
	}
	for oi, occ := range occs {
		exp := occ.expense
		check := domain.RecurringCheck{
			RecurringExpenseID:    exp.ID,
			Name:                  exp.Name,
			AccountID:             exp.AccountID,
			CategoryID:            exp.CategoryID,
			ExpectedDate:          occ.expected.Format(domain.DateLayout),
			ExpectedAmount:        exp.Amount,
			ExpectedAmountDisplay: displayAmount(exp.Amount.Decimal, currencyFor(exp.AccountID, currencies, cfg)),
		}
		if ti, ok := occMatch[oi]; ok {
			tx := txs[ti]
			id := tx.ID
			amt := tx.Amount
			check.Status = domain.CheckMatched
			check.TransactionID = &id
			check.MatchedDate = tx.Date
			check.MatchedAmount = &amt
			check.DaysOffset = domain.DaysBetween(occ.expected, txDates[ti])
			result.MatchedTransactions[id] = check
		} else if occ.expected.Before(today) {
			check.Status = domain.CheckMissing
			check.DaysOverdue = domain.DaysBetween(occ.expected, today)
		} else {
			check.Status = domain.CheckDue
		}
		result.Checks = append(result.Checks, check)
	}

	sort.SliceStable(result.Checks, func(i, j int) bool {
		if result.Checks[i].ExpectedDate != result.Checks[j].ExpectedDate {
			return result.Checks[i].ExpectedDate < result.Checks[j].ExpectedDate
		}
		return result.Checks[i].RecurringExpenseID < result.Checks[j].RecurringExpenseID
	})
	return result
}

// monthlyOccurrences lists expected dates from the start date through
// today. The day of month is clamped to the month's last day.
func monthlyOccurrences(exp *domain.RecurringExpense, today time.Time) []time.Time {
	start, err := time.Parse(domain.DateLayout, exp.StartDate)
	if err != nil || exp.DayOfMonth < 1 {
		return nil
	}
	var out []time.Time
	year, month := start.Year(), start.Month()
	for {
		d := clampDay(year, month, exp.DayOfMonth)
		if d.After(today) {
			return out
		}
		if !d.Before(start) {
			out = append(out, d)
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

func clampDay(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func amountBand(expected decimal.Decimal, cfg MatcherConfig) decimal.Decimal {
	pct := expected.Abs().Mul(decimal.NewFromFloat(cfg.AmountTolerancePct))
	if pct.GreaterThan(cfg.AmountToleranceAbs) {
		return pct
	}
	return cfg.AmountToleranceAbs
}

func currencyFor(accountID int64, currencies map[int64]string, cfg MatcherConfig) string {
	if c, ok := currencies[accountID]; ok && c != "" {
		return c
	}
	if cfg.DefaultCurrency != "" {
		return cfg.DefaultCurrency
	}
	return money.EUR
}

// displayAmount renders an amount in the currency's own format ("$1,200.00").
func displayAmount(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
