package kernel

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aqlanhadi/rekon/engine/common"
)

var (
	eur = &common.Currency{Code: "EUR", DecimalPlaces: 2}
	usd = &common.Currency{Code: "USD", DecimalPlaces: 2}
	gbp = &common.Currency{Code: "GBP", DecimalPlaces: 2}
)

type fixedRates map[string]decimal.Decimal

func (r fixedRates) Rate(from, to *common.Currency, _ time.Time) decimal.Decimal {
	if from.Equal(to) {
		return decimal.NewFromInt(1)
	}
	if rate, ok := r[from.Code+"->"+to.Code]; ok {
		return rate
	}
	return decimal.NewFromInt(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStLine(amount string, foreign *common.Currency, amountCurrency string) *common.StatementLine {
	company := &common.Company{
		Currency:               eur,
		IncomeExchangeAccount:  &common.Account{ID: 91, Code: "441000", Type: common.AccountIncome},
		ExpenseExchangeAccount: &common.Account{ID: 92, Code: "641000", Type: common.AccountExpense},
	}
	journal := &common.Journal{
		SuspenseAccount:  &common.Account{ID: 81, Code: "101402", Type: common.AccountSuspense},
		LiquidityAccount: &common.Account{ID: 82, Code: "101401", Type: common.AccountLiquidity},
	}
	st := &common.StatementLine{
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Journal: journal,
		Company: company,
		Amount:  dec(amount),
	}
	if foreign != nil {
		st.ForeignCurrency = foreign
		st.AmountCurrency = dec(amountCurrency)
	}
	return st
}

func TestStLineBalance_CompanyCurrency(t *testing.T) {
	k := New(newStLine("100", nil, ""), fixedRates{})

	got := k.StLineBalance(eur, dec("42.505"))

	// Banker's rounding: .505 at two decimals rounds to the even cent.
	assert.True(t, got.Equal(dec("42.50")), "got %s", got)
}

func TestStLineBalance_TransactionCurrencyUsesStatementRate(t *testing.T) {
	// 1200 USD for 550 EUR: the statement's own rate, not the market one.
	k := New(newStLine("550", usd, "1200"), fixedRates{"USD->EUR": dec("0.99")})

	got := k.StLineBalance(usd, dec("-1200"))

	assert.True(t, got.Equal(dec("-550")), "got %s", got)
}

func TestStLineBalance_UnrelatedCurrencyUsesMarketRate(t *testing.T) {
	k := New(newStLine("550", usd, "1200"), fixedRates{"GBP->EUR": dec("1.2")})

	got := k.StLineBalance(gbp, dec("100"))

	assert.True(t, got.Equal(dec("120")), "got %s", got)
}

func TestTransactionAmount_RoundTripsStatementRate(t *testing.T) {
	k := New(newStLine("550", usd, "1200"), fixedRates{})

	got := k.TransactionAmount(dec("-275"))

	assert.True(t, got.Equal(dec("-600")), "got %s", got)
}

func TestJournalToTransaction(t *testing.T) {
	k := New(newStLine("550", usd, "1200"), fixedRates{})

	got := k.JournalToTransaction(dec("55"))

	assert.True(t, got.Equal(dec("120")), "got %s", got)
}

func TestExchangeDiff_CompanyCurrencyLineHasNone(t *testing.T) {
	k := New(newStLine("550", usd, "1200"), fixedRates{})

	account, diff := k.ExchangeDiff(eur, dec("-100"), dec("-100"))

	assert.Nil(t, account)
	assert.True(t, diff.IsZero())
}

func TestExchangeDiff_LossGoesToExpenseAccount(t *testing.T) {
	// Booked at 600 EUR, worth 550 EUR at the statement rate: 50 EUR loss.
	k := New(newStLine("550", usd, "1200"), fixedRates{})

	account, diff := k.ExchangeDiff(usd, dec("-600"), dec("-1200"))

	if assert.NotNil(t, account) {
		assert.Equal(t, common.AccountExpense, account.Type)
	}
	assert.True(t, diff.Equal(dec("50")), "got %s", diff)
}

func TestExchangeDiff_GainGoesToIncomeAccount(t *testing.T) {
	k := New(newStLine("650", usd, "1200"), fixedRates{})

	account, diff := k.ExchangeDiff(usd, dec("-600"), dec("-1200"))

	if assert.NotNil(t, account) {
		assert.Equal(t, common.AccountIncome, account.Type)
	}
	assert.True(t, diff.Equal(dec("-50")), "got %s", diff)
}

func TestExchangeDiff_MarketRateWhenTransactionIsCompanyCurrency(t *testing.T) {
	// No foreign currency on the statement: foreign lines convert at market.
	k := New(newStLine("100", nil, ""), fixedRates{"USD->EUR": dec("0.5")})

	account, diff := k.ExchangeDiff(usd, dec("-90"), dec("-200"))

	if assert.NotNil(t, account) {
		assert.Equal(t, common.AccountIncome, account.Type)
	}
	// Expected -100 against booked -90.
	assert.True(t, diff.Equal(dec("-10")), "got %s", diff)
}

func TestExchangeDiff_SubCentDifferenceRoundsAway(t *testing.T) {
	k := New(newStLine("550", usd, "1200"), fixedRates{})

	account, diff := k.ExchangeDiff(usd, dec("-550.004"), dec("-1200"))

	assert.Nil(t, account)
	assert.True(t, diff.IsZero())
}

func TestCurrencyCompare_HalfUnitTolerance(t *testing.T) {
	assert.Equal(t, 0, eur.Compare(dec("10.001"), dec("10.00")))
	assert.Equal(t, 1, eur.Compare(dec("10.01"), dec("10.00")))
	assert.Equal(t, -1, eur.Compare(dec("9.98"), dec("10.00")))
}
