package service_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

func gym(start string, day int) domain.RecurringExpense {
	return domain.RecurringExpense{
		ID: 1, UserID: "u1", AccountID: 1, CategoryID: 11, Name: "Gym",
		Amount: domain.MustAmount("50.00"), Interval: domain.IntervalMonthly,
		DayOfMonth: day, StartDate: start, Active: true,
	}
}

func expense(id int64, date, amount string) domain.Transaction {
	return domain.Transaction{ID: id, AccountID: 1, CategoryID: 11, Date: date, Amount: domain.MustAmount(amount), Type: domain.TransactionExpense}
}

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

var usd = map[int64]string{1: "USD"}

func TestMatch_WithinTolerance(t *testing.T) {
	res := service.Match(
		[]domain.RecurringExpense{gym("2024-03-01", 5)},
		[]domain.Transaction{expense(7, "2024-03-07", "49.50")},
		day("2024-03-20"), nil, service.DefaultMatcherConfig(), usd,
	)

	require.Len(t, res.Checks, 1)
	c := res.Checks[0]
	assert.Equal(t, domain.CheckMatched, c.Status)
	assert.Equal(t, "2024-03-05", c.ExpectedDate)
	require.NotNil(t, c.TransactionID)
	assert.Equal(t, int64(7), *c.TransactionID)
	assert.Equal(t, 2, c.DaysOffset)
	assert.Equal(t, "$50.00", c.ExpectedAmountDisplay)
	assert.Contains(t, res.MatchedTransactions, int64(7))
}

func TestMatch_MissingAndDue(t *testing.T) {
	res := service.Match(
		[]domain.RecurringExpense{gym("2024-01-01", 5)},
		nil,
		day("2024-03-05"), nil, service.DefaultMatcherConfig(), usd,
	)

	require.Len(t, res.Checks, 3)
	assert.Equal(t, domain.CheckMissing, res.Checks[0].Status)
	assert.Equal(t, 60, res.Checks[0].DaysOverdue)
	assert.Equal(t, domain.CheckMissing, res.Checks[1].Status)
	assert.Equal(t, 29, res.Checks[1].DaysOverdue)
	assert.Equal(t, domain.CheckDue, res.Checks[2].Status)
	assert.Empty(t, res.MatchedTransactions)
}

func TestMatch_OutsideTolerance(t *testing.T) {
	cfg := service.DefaultMatcherConfig()
	res := service.Match(
		[]domain.RecurringExpense{gym("2024-03-01", 5)},
		[]domain.Transaction{
			expense(1, "2024-03-11", "50.00"),
			expense(2, "2024-03-05", "56.00"),
			{ID: 3, AccountID: 1, CategoryID: 11, Date: "2024-03-05", Amount: domain.MustAmount("50"), Type: domain.TransactionIncome},
			{ID: 4, AccountID: 9, CategoryID: 11, Date: "2024-03-05", Amount: domain.MustAmount("50"), Type: domain.TransactionExpense},
			{ID: 5, AccountID: 1, CategoryID: 12, Date: "2024-03-05", Amount: domain.MustAmount("50"), Type: domain.TransactionExpense},
		},
		day("2024-03-20"), nil, cfg, usd,
	)

	require.Len(t, res.Checks, 1)
	assert.Equal(t, domain.CheckMissing, res.Checks[0].Status)
	assert.Equal(t, 15, res.Checks[0].DaysOverdue)
}

func TestMatch_GreedyAssignsEachTransactionOnce(t *testing.T) {
	expenses := []domain.RecurringExpense{gym("2024-01-01", 31)}
	txs := []domain.Transaction{
		expense(1, "2024-01-31", "50.00"),
		expense(2, "2024-02-29", "50.00"),
	}

	res := service.Match(expenses, txs, day("2024-03-10"), nil, service.DefaultMatcherConfig(), usd)

	require.Len(t, res.Checks, 2)
	assert.Equal(t, "2024-01-31", res.Checks[0].ExpectedDate)
	assert.Equal(t, "2024-02-29", res.Checks[1].ExpectedDate, "day clamps to month end")
	assert.Equal(t, int64(1), *res.Checks[0].TransactionID)
	assert.Equal(t, int64(2), *res.Checks[1].TransactionID)

	// One transaction between two occurrences binds to the closer one only.
	res = service.Match(
		[]domain.RecurringExpense{gym("2024-01-01", 28)},
		[]domain.Transaction{expense(9, "2024-02-01", "50.00")},
		day("2024-02-28"), nil,
		service.MatcherConfig{DateToleranceDays: 30, AmountTolerancePct: 0.1, AmountToleranceAbs: decimal.NewFromFloat(0.01)},
		usd,
	)
	require.Len(t, res.Checks, 2)
	assert.Equal(t, domain.CheckMatched, res.Checks[0].Status)
	assert.Equal(t, domain.CheckDue, res.Checks[1].Status)
	assert.Len(t, res.MatchedTransactions, 1)
}

func TestMatch_SinceAndInactive(t *testing.T) {
	inactive := gym("2024-01-01", 5)
	inactive.ID = 2
	inactive.Active = false
	since := day("2024-03-01")

	res := service.Match(
		[]domain.RecurringExpense{gym("2024-01-01", 5), inactive},
		nil, day("2024-03-20"), &since, service.DefaultMatcherConfig(), nil,
	)

	require.Len(t, res.Checks, 1)
	assert.Equal(t, "2024-03-05", res.Checks[0].ExpectedDate)
	assert.Contains(t, res.Checks[0].ExpectedAmountDisplay, "50.00")
}

func TestMatch_AbsoluteToleranceFloor(t *testing.T) {
	exp := gym("2024-03-01", 5)
	exp.Amount = domain.MustAmount("0.05")
	cfg := service.DefaultMatcherConfig()
	cfg.AmountToleranceAbs = decimal.RequireFromString("0.02")

	res := service.Match([]domain.RecurringExpense{exp},
		[]domain.Transaction{expense(1, "2024-03-05", "0.07")},
		day("2024-03-20"), nil, cfg, usd)

	assert.Equal(t, domain.CheckMatched, res.Checks[0].Status)
}
