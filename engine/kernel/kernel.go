// Package kernel implements the session's amount arithmetic: currency
// conversion pinned to the statement line's observed rate, market-rate
// conversion for unrelated currencies, and exchange-difference derivation.
package kernel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// Kernel converts amounts for one statement line. The statement rate is
// reconstructed from the line's own amounts so conversions between the
// session's currencies never re-introduce FX noise.
type Kernel struct {
	amounts common.AccountingAmounts
	company *common.Company
	rates   common.RateProvider
	date    time.Time
}

func New(st *common.StatementLine, rates common.RateProvider) *Kernel {
	return &Kernel{
		amounts: st.AccountingAmounts(),
		company: st.Company,
		rates:   rates,
		date:    st.Date,
	}
}

func (k *Kernel) Amounts() common.AccountingAmounts { return k.amounts }

// StLineBalance projects an amount in the given currency onto the company
// currency using the statement line's own rate when the currency is one of
// the session's currencies, and the market rate otherwise.
func (k *Kernel) StLineBalance(currency *common.Currency, amountCurrency decimal.Decimal) decimal.Decimal {
	a := k.amounts
	switch {
	case currency.Equal(a.CompanyCurrency):
		return a.CompanyCurrency.Round(amountCurrency)
	case currency.Equal(a.TransactionCurrency) && !a.TransactionAmount.IsZero():
		rate := a.CompanyAmount.Div(a.TransactionAmount)
		return a.CompanyCurrency.Round(amountCurrency.Mul(rate))
	case currency.Equal(a.JournalCurrency) && !a.JournalAmount.IsZero():
		rate := a.CompanyAmount.Div(a.JournalAmount)
		return a.CompanyCurrency.Round(amountCurrency.Mul(rate))
	default:
		return k.MarketBalance(currency, amountCurrency)
	}
}

// MarketBalance converts an amount to the company currency at the market
// rate on the statement date.
func (k *Kernel) MarketBalance(currency *common.Currency, amountCurrency decimal.Decimal) decimal.Decimal {
	a := k.amounts
	rate := k.rates.Rate(currency, a.CompanyCurrency, k.date)
	return a.CompanyCurrency.Round(amountCurrency.Mul(rate))
}

// TransactionAmount projects a company-currency balance onto the transaction
// currency at the statement rate.
func (k *Kernel) TransactionAmount(balance decimal.Decimal) decimal.Decimal {
	a := k.amounts
	if a.CompanyAmount.IsZero() {
		return a.TransactionCurrency.Round(balance)
	}
	rate := a.TransactionAmount.Div(a.CompanyAmount)
	return a.TransactionCurrency.Round(balance.Mul(rate))
}

// JournalToTransaction projects a journal-currency amount onto the
// transaction currency at the statement rate.
func (k *Kernel) JournalToTransaction(amount decimal.Decimal) decimal.Decimal {
	a := k.amounts
	if a.JournalAmount.IsZero() {
		return a.TransactionCurrency.Round(amount)
	}
	rate := a.TransactionAmount.Div(a.JournalAmount)
	return a.TransactionCurrency.Round(amount.Mul(rate))
}

// ExchangeDiff returns the exchange gain/loss account and the difference
// between the statement-rate balance of amountCurrency and the stored
// balance. A nil account means the difference rounds to zero.
//
// Two jurisdictional rules apply:
//   - company-currency lines under a foreign transaction currency keep the
//     stored balance untouched;
//   - foreign-currency lines under a company-currency transaction convert at
//     the market rate of the line's own currency.
func (k *Kernel) ExchangeDiff(currency *common.Currency, balance, amountCurrency decimal.Decimal) (*common.Account, decimal.Decimal) {
	a := k.amounts
	if currency.Equal(a.CompanyCurrency) {
		return nil, decimal.Zero
	}

	var expected decimal.Decimal
	if a.TransactionCurrency.Equal(a.CompanyCurrency) {
		expected = k.MarketBalance(currency, amountCurrency)
	} else {
		expected = k.StLineBalance(currency, amountCurrency)
	}

	diff := a.CompanyCurrency.Round(expected.Sub(balance))
	if diff.IsZero() {
		return nil, decimal.Zero
	}
	if diff.Sign() > 0 {
		return k.company.ExpenseExchangeAccount, diff
	}
	return k.company.IncomeExchangeAccount, diff
}
