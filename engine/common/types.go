package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a currency with its declared rounding precision.
type Currency struct {
	Code          string `json:"code"`
	DecimalPlaces int32  `json:"decimal_places"`
}

// Round rounds an amount to the currency's precision using banker's rounding.
func (c *Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(c.DecimalPlaces)
}

// Compare is a three-way comparison with a tolerance of half the currency's
// unit in the last place. Returns -1, 0 or 1.
func (c *Currency) Compare(a, b decimal.Decimal) int {
	return c.Round(a.Sub(b)).Sign()
}

// IsZero reports whether the amount rounds to zero in this currency.
func (c *Currency) IsZero(amount decimal.Decimal) bool {
	return c.Round(amount).IsZero()
}

func (c *Currency) Equal(other *Currency) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Code == other.Code
}

// Format renders an amount with the currency code, e.g. "100.00 EUR".
func (c *Currency) Format(amount decimal.Decimal) string {
	return c.Round(amount).StringFixed(c.DecimalPlaces) + " " + c.Code
}

// AccountType mirrors the chart-of-accounts internal types the engine cares about.
type AccountType string

const (
	AccountReceivable AccountType = "asset_receivable"
	AccountPayable    AccountType = "liability_payable"
	AccountLiquidity  AccountType = "asset_cash"
	AccountSuspense   AccountType = "asset_current"
	AccountIncome     AccountType = "income"
	AccountExpense    AccountType = "expense"
)

type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Reconcile bool        `json:"reconcile"`
}

type Partner struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	CustomerRank      int      `json:"customer_rank"`
	SupplierRank      int      `json:"supplier_rank"`
	ReceivableAccount *Account `json:"receivable_account,omitempty"`
	PayableAccount    *Account `json:"payable_account,omitempty"`
	BankAccounts      []string `json:"bank_accounts,omitempty"`
}

type Company struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Currency               *Currency `json:"currency"`
	ExpenseExchangeAccount *Account  `json:"expense_exchange_account"`
	IncomeExchangeAccount  *Account  `json:"income_exchange_account"`
	// Accounts for early-payment discounts granted (inbound) and obtained (outbound).
	EarlyPayDiscountLossAccount *Account `json:"early_pay_discount_loss_account,omitempty"`
	EarlyPayDiscountGainAccount *Account `json:"early_pay_discount_gain_account,omitempty"`
}

// Journal is a bank journal. Currency nil means the company currency.
type Journal struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	CompanyID        int64     `json:"company_id"`
	Currency         *Currency `json:"currency,omitempty"`
	SuspenseAccount  *Account  `json:"suspense_account"`
	LiquidityAccount *Account  `json:"liquidity_account"`
}

// Aml is a posted journal-entry line in the host ledger.
type Aml struct {
	ID                     int64           `json:"id"`
	MoveID                 int64           `json:"move_id"`
	Name                   string          `json:"name"`
	Date                   time.Time       `json:"date"`
	Account                *Account        `json:"account"`
	Partner                *Partner        `json:"partner,omitempty"`
	Currency               *Currency       `json:"currency"`
	Balance                decimal.Decimal `json:"balance"`
	AmountCurrency         decimal.Decimal `json:"amount_currency"`
	AmountResidual         decimal.Decimal `json:"amount_residual"`
	AmountResidualCurrency decimal.Decimal `json:"amount_residual_currency"`
	Reconciled             bool            `json:"reconciled"`

	// Early-payment discount terms, zero-valued when none apply.
	DiscountDate           time.Time       `json:"discount_date,omitempty"`
	DiscountAmountCurrency decimal.Decimal `json:"discount_amount_currency,omitempty"`
	DiscountBalance        decimal.Decimal `json:"discount_balance,omitempty"`
}

// EligibleForEarlyPayment reports whether paying on date still grants the
// aml's early-payment discount.
func (a *Aml) EligibleForEarlyPayment(date time.Time) bool {
	if a.DiscountDate.IsZero() || a.Currency == nil {
		return false
	}
	if a.Currency.IsZero(a.DiscountAmountCurrency) {
		return false
	}
	return !date.After(a.DiscountDate)
}

// StatementLine is one imported bank transaction awaiting reconciliation.
// Immutable within a session.
type StatementLine struct {
	ID         int64     `json:"id"`
	MoveID     int64     `json:"move_id"`
	Date       time.Time `json:"date"`
	PaymentRef string    `json:"payment_ref"`
	Journal    *Journal  `json:"journal"`
	Company    *Company  `json:"company"`
	Partner    *Partner  `json:"partner,omitempty"`

	PartnerName   string `json:"partner_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	// Amount is in the journal currency. ForeignCurrency/AmountCurrency are
	// set when the bank booked the transaction in another currency.
	Amount          decimal.Decimal `json:"amount"`
	ForeignCurrency *Currency       `json:"foreign_currency,omitempty"`
	AmountCurrency  decimal.Decimal `json:"amount_currency,omitempty"`

	// CompanyAmount is the company-currency balance of the liquidity leg,
	// as booked on the statement line's move.
	CompanyAmount decimal.Decimal `json:"company_amount"`

	IsReconciled bool `json:"is_reconciled"`
	Checked      bool `json:"checked"`
	Sealed       bool `json:"sealed"`
}

// AccountingAmounts is the six-tuple of signed amounts and currencies the
// engine tracks per session.
type AccountingAmounts struct {
	TransactionAmount   decimal.Decimal
	TransactionCurrency *Currency
	JournalAmount       decimal.Decimal
	JournalCurrency     *Currency
	CompanyAmount       decimal.Decimal
	CompanyCurrency     *Currency
}

// AccountingAmounts resolves the statement line's three currencies and their
// signed amounts. The transaction currency falls back to the journal
// currency, which falls back to the company currency.
func (st *StatementLine) AccountingAmounts() AccountingAmounts {
	companyCur := st.Company.Currency
	journalCur := st.Journal.Currency
	if journalCur == nil {
		journalCur = companyCur
	}
	transactionCur := st.ForeignCurrency
	transactionAmount := st.AmountCurrency
	if transactionCur == nil {
		transactionCur = journalCur
		transactionAmount = st.Amount
	}
	companyAmount := st.CompanyAmount
	if journalCur.Equal(companyCur) {
		companyAmount = st.Amount
	}
	return AccountingAmounts{
		TransactionAmount:   transactionAmount,
		TransactionCurrency: transactionCur,
		JournalAmount:       st.Amount,
		JournalCurrency:     journalCur,
		CompanyAmount:       companyAmount,
		CompanyCurrency:     companyCur,
	}
}
