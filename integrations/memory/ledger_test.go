package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqlanhadi/rekon/engine/common"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type ledgerFx struct {
	led        *Ledger
	eur        *common.Currency
	bank       *common.Account
	suspense   *common.Account
	receivable *common.Account
	expense    *common.Account
	partner    *common.Partner
	company    *common.Company
	journal    *common.Journal
}

func newLedgerFx(t *testing.T) *ledgerFx {
	t.Helper()
	f := &ledgerFx{
		led: NewLedger(),
		eur: &common.Currency{Code: "EUR", DecimalPlaces: 2},
	}
	f.bank = f.led.AddAccount(&common.Account{Code: "101401", Type: common.AccountLiquidity})
	f.suspense = f.led.AddAccount(&common.Account{Code: "101402", Type: common.AccountSuspense})
	f.receivable = f.led.AddAccount(&common.Account{Code: "121000", Type: common.AccountReceivable, Reconcile: true})
	f.expense = f.led.AddAccount(&common.Account{Code: "641000", Type: common.AccountExpense})
	f.partner = f.led.AddPartner(&common.Partner{Name: "Deco Addict", CustomerRank: 1, ReceivableAccount: f.receivable})
	f.company = &common.Company{ID: 1, Currency: f.eur}
	f.journal = &common.Journal{ID: 1, SuspenseAccount: f.suspense, LiquidityAccount: f.bank}
	return f
}

func (f *ledgerFx) statement(amount string) *common.StatementLine {
	return f.led.AddStatementLine(&common.StatementLine{
		Date:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		PaymentRef: "BNK/2024/0042",
		Journal:    f.journal,
		Company:    f.company,
		Amount:     dec(amount),
	})
}

func (f *ledgerFx) openAml(balance string) *common.Aml {
	return f.led.AddOpenAml(&common.Aml{
		Name:           "INV/2024/00001",
		Account:        f.receivable,
		Partner:        f.partner,
		Currency:       f.eur,
		Balance:        dec(balance),
		AmountCurrency: dec(balance),
	})
}

// rewrite replaces the statement move with a liquidity leg and one
// counterpart, returning the counterpart.
func (f *ledgerFx) rewrite(t *testing.T, st *common.StatementLine, counterpart string) *common.Aml {
	t.Helper()
	created, err := f.led.RewriteStatementLines(context.Background(), st, []common.MoveLineVals{
		{Sequence: 0, Name: st.PaymentRef, Account: f.bank, Currency: f.eur, AmountCurrency: st.Amount, Balance: st.Amount},
		{Sequence: 1, Name: "INV/2024/00001", Account: f.receivable, Partner: f.partner, Currency: f.eur,
			AmountCurrency: dec(counterpart), Balance: dec(counterpart)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	return created[1]
}

func TestAddOpenAml_DefaultsResiduals(t *testing.T) {
	f := newLedgerFx(t)

	aml := f.openAml("100")

	assert.True(t, aml.AmountResidual.Equal(dec("100")))
	assert.True(t, aml.AmountResidualCurrency.Equal(dec("100")))
	assert.False(t, aml.Reconciled)
}

func TestOpenAmls_RejectsReconciled(t *testing.T) {
	f := newLedgerFx(t)
	aml := f.openAml("100")
	aml.Reconciled = true

	_, err := f.led.OpenAmls(context.Background(), []int64{aml.ID})

	assert.Error(t, err)
}

func TestSeekLines_Classification(t *testing.T) {
	f := newLedgerFx(t)
	st := f.statement("100")

	liquidity, suspense, other, err := f.led.SeekLines(context.Background(), st)

	require.NoError(t, err)
	require.Len(t, liquidity, 1)
	assert.True(t, liquidity[0].Balance.Equal(dec("100")))
	require.Len(t, suspense, 1)
	assert.True(t, suspense[0].Balance.Equal(dec("-100")))
	assert.Empty(t, other)
}

func TestRewriteStatementLines_ReplacesMove(t *testing.T) {
	f := newLedgerFx(t)
	st := f.statement("100")

	counterpart := f.rewrite(t, st, "-100")

	move := f.led.Move(st.MoveID)
	require.NotNil(t, move)
	require.Len(t, move.Lines, 2)
	assert.Equal(t, f.receivable.ID, counterpart.Account.ID)
	assert.True(t, counterpart.AmountResidual.Equal(dec("-100")))

	_, suspense, _, err := f.led.SeekLines(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, suspense)
}

func TestReconcile_FullMatch(t *testing.T) {
	f := newLedgerFx(t)
	source := f.openAml("100")
	st := f.statement("100")
	counterpart := f.rewrite(t, st, "-100")

	require.NoError(t, f.led.Reconcile(context.Background(), counterpart, source, 0))

	assert.True(t, source.Reconciled)
	assert.True(t, source.AmountResidual.IsZero())
	assert.True(t, counterpart.Reconciled)
	assert.True(t, counterpart.AmountResidual.IsZero())

	partials := f.led.Partials()
	require.Len(t, partials, 1)
	p := partials[0]
	assert.True(t, p.Amount.Equal(dec("100")))
	// Debit is the positive-balance side.
	assert.Equal(t, source.ID, p.DebitAmlID)
	assert.Equal(t, counterpart.ID, p.CreditAmlID)
	assert.Zero(t, p.ExchangeMoveID)
}

func TestReconcile_PartialLeavesResidual(t *testing.T) {
	f := newLedgerFx(t)
	source := f.openAml("100")
	st := f.statement("60")
	counterpart := f.rewrite(t, st, "-60")

	require.NoError(t, f.led.Reconcile(context.Background(), counterpart, source, 0))

	assert.True(t, counterpart.Reconciled)
	assert.False(t, source.Reconciled)
	assert.True(t, source.AmountResidual.Equal(dec("40")))
	require.Len(t, f.led.Partials(), 1)
	assert.True(t, f.led.Partials()[0].Amount.Equal(dec("60")))
}

func TestReconcile_SameSignRefused(t *testing.T) {
	f := newLedgerFx(t)
	source := f.openAml("100")
	st := f.statement("-100")
	counterpart := f.rewrite(t, st, "100")

	err := f.led.Reconcile(context.Background(), counterpart, source, 0)

	assert.Error(t, err)
}

func TestReconcile_ExchangeMoveSettlesLeftover(t *testing.T) {
	f := newLedgerFx(t)
	// Booked at 600, paid at 550: the 50 difference is an expense.
	source := f.led.AddOpenAml(&common.Aml{
		Name:           "INV/2024/00012",
		Account:        f.receivable,
		Partner:        f.partner,
		Currency:       f.eur,
		Balance:        dec("600"),
		AmountCurrency: dec("600"),
	})
	st := f.statement("550")
	counterpart := f.rewrite(t, st, "-550")

	moveID, offset, err := f.led.CreateExchangeMove(context.Background(), st, common.ExchangeResidual{
		Account:        f.expense,
		CounterAccount: f.receivable,
		Currency:       f.eur,
		AmountResidual: dec("50"),
	})
	require.NoError(t, err)
	require.NotZero(t, moveID)
	require.NotNil(t, offset)
	assert.True(t, offset.Balance.Equal(dec("-50")))

	require.NoError(t, f.led.Reconcile(context.Background(), counterpart, source, moveID))

	assert.True(t, source.Reconciled)
	assert.True(t, source.AmountResidual.IsZero())
	assert.True(t, counterpart.Reconciled)
	require.Len(t, f.led.Partials(), 1)
	assert.Equal(t, moveID, f.led.Partials()[0].ExchangeMoveID)
	assert.True(t, offset.AmountResidual.IsZero())
}

func TestResetStatementLine(t *testing.T) {
	f := newLedgerFx(t)
	source := f.openAml("100")
	st := f.statement("100")
	counterpart := f.rewrite(t, st, "-100")
	require.NoError(t, f.led.Reconcile(context.Background(), counterpart, source, 0))
	st.IsReconciled = true
	st.Checked = true

	require.NoError(t, f.led.ResetStatementLine(context.Background(), st))

	assert.False(t, st.IsReconciled)
	assert.False(t, st.Checked)
	assert.False(t, source.Reconciled)
	assert.True(t, source.AmountResidual.Equal(dec("100")))
	assert.Empty(t, f.led.Partials())

	// The counterpart leg is parked back on the suspense account.
	_, suspense, other, err := f.led.SeekLines(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, suspense, 1)
	assert.True(t, suspense[0].Balance.Equal(dec("-100")))
	assert.Empty(t, other)
}

func TestRate_InverseFallback(t *testing.T) {
	f := newLedgerFx(t)
	usd := &common.Currency{Code: "USD", DecimalPlaces: 2}
	gbp := &common.Currency{Code: "GBP", DecimalPlaces: 2}
	now := time.Now()
	f.led.Rates["USD->EUR"] = dec("0.5")

	assert.True(t, f.led.Rate(usd, f.eur, now).Equal(dec("0.5")))
	assert.True(t, f.led.Rate(f.eur, usd, now).Equal(dec("2")))
	// Unknown pairs fall back to parity.
	assert.True(t, f.led.Rate(gbp, f.eur, now).Equal(dec("1")))
}

func TestCandidateAmls(t *testing.T) {
	f := newLedgerFx(t)
	open := f.openAml("100")
	settled := f.openAml("50")
	settled.Reconciled = true
	expense := f.led.AddOpenAml(&common.Aml{
		Name: "EXP", Account: f.expense, Currency: f.eur, Balance: dec("10"), AmountCurrency: dec("10"),
	})
	_ = expense
	st := f.statement("100")

	candidates, err := f.led.CandidateAmls(st, nil)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, open.ID, candidates[0].ID)

	// Partner filtering.
	other := f.led.AddPartner(&common.Partner{Name: "Azure Interior"})
	candidates, err = f.led.CandidateAmls(st, other)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSetStatementPartnerAndBank(t *testing.T) {
	f := newLedgerFx(t)
	st := f.statement("100")

	require.NoError(t, f.led.SetStatementPartner(context.Background(), st, f.partner))
	assert.Equal(t, f.partner.ID, st.Partner.ID)

	require.NoError(t, f.led.CreatePartnerBank(context.Background(), f.partner, "BE123456"))
	assert.Contains(t, f.partner.BankAccounts, "BE123456")

	require.NoError(t, f.led.SetChecked(context.Background(), st, true))
	assert.True(t, st.Checked)
	move := f.led.Move(st.MoveID)
	require.NotNil(t, move)
	assert.True(t, move.Checked)
}
