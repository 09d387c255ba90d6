package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// OpenAmls implements common.Ledger.
func (l *Ledger) OpenAmls(_ context.Context, ids []int64) ([]*common.Aml, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*common.Aml, 0, len(ids))
	for _, id := range ids {
		aml, ok := l.amls[id]
		if !ok {
			return nil, fmt.Errorf("aml %d not found", id)
		}
		if aml.Reconciled {
			return nil, fmt.Errorf("aml %d is already reconciled", id)
		}
		out = append(out, aml)
	}
	return out, nil
}

// SeekLines returns the posted view of the statement line's move.
func (l *Ledger) SeekLines(_ context.Context, st *common.StatementLine) (liquidity, suspense, other []*common.Aml, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	move, ok := l.moves[st.MoveID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("move %d not found", st.MoveID)
	}
	for _, aml := range move.Lines {
		switch {
		case aml.Account != nil && st.Journal.LiquidityAccount != nil && aml.Account.ID == st.Journal.LiquidityAccount.ID:
			liquidity = append(liquidity, aml)
		case aml.Account != nil && st.Journal.SuspenseAccount != nil && aml.Account.ID == st.Journal.SuspenseAccount.ID:
			suspense = append(suspense, aml)
		default:
			other = append(other, aml)
		}
	}
	return liquidity, suspense, other, nil
}

// RewriteStatementLines clears and rewrites the statement line's move lines
// atomically under the ledger lock.
func (l *Ledger) RewriteStatementLines(_ context.Context, st *common.StatementLine, lines []common.MoveLineVals) ([]*common.Aml, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	move, ok := l.moves[st.MoveID]
	if !ok {
		return nil, fmt.Errorf("move %d not found", st.MoveID)
	}
	for _, old := range move.Lines {
		delete(l.amls, old.ID)
	}
	move.Lines = move.Lines[:0]

	created := make([]*common.Aml, 0, len(lines))
	for _, vals := range lines {
		aml := &common.Aml{
			ID:                     l.nextID(),
			MoveID:                 st.MoveID,
			Name:                   vals.Name,
			Date:                   vals.Date,
			Account:                vals.Account,
			Partner:                vals.Partner,
			Currency:               vals.Currency,
			AmountCurrency:         vals.AmountCurrency,
			Balance:                vals.Balance,
			AmountResidual:         vals.Balance,
			AmountResidualCurrency: vals.AmountCurrency,
		}
		l.amls[aml.ID] = aml
		move.Lines = append(move.Lines, aml)
		created = append(created, aml)
	}
	return created, nil
}

// CreateExchangeMove books a two-line exchange-difference move: the residual
// on the gain/loss account and its offset on the counterpart's account.
func (l *Ledger) CreateExchangeMove(_ context.Context, st *common.StatementLine, residual common.ExchangeResidual) (int64, *common.Aml, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if residual.Account == nil || residual.CounterAccount == nil {
		return 0, nil, fmt.Errorf("exchange residual needs both accounts")
	}
	moveID := l.nextID()
	gainLoss := &common.Aml{
		ID:             l.nextID(),
		MoveID:         moveID,
		Name:           "Exchange difference",
		Date:           st.Date,
		Account:        residual.Account,
		Currency:       st.Company.Currency,
		AmountCurrency: residual.AmountResidual,
		Balance:        residual.AmountResidual,
	}
	offset := &common.Aml{
		ID:                     l.nextID(),
		MoveID:                 moveID,
		Name:                   "Exchange difference",
		Date:                   st.Date,
		Account:                residual.CounterAccount,
		Currency:               residual.Currency,
		AmountCurrency:         residual.AmountResidualCurrency,
		Balance:                residual.AmountResidual.Neg(),
		AmountResidual:         residual.AmountResidual.Neg(),
		AmountResidualCurrency: residual.AmountResidualCurrency,
	}
	l.amls[gainLoss.ID] = gainLoss
	l.amls[offset.ID] = offset
	l.moves[moveID] = &Move{
		ID:    moveID,
		Name:  "Exchange difference",
		Date:  st.Date,
		Lines: []*common.Aml{gainLoss, offset},
	}
	return moveID, offset, nil
}

// Reconcile matches a created line with its source aml: residuals shrink by
// the matched amount and a partial records the pairing with its exchange
// move, if any.
func (l *Ledger) Reconcile(_ context.Context, created, source *common.Aml, exchangeMoveID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if created == nil || source == nil {
		return fmt.Errorf("reconcile needs both lines")
	}
	if created.Balance.Sign() == source.AmountResidual.Sign() && created.Balance.Sign() != 0 {
		return fmt.Errorf("cannot reconcile two lines of the same sign")
	}

	matched := decimal.Min(created.AmountResidual.Abs(), source.AmountResidual.Abs())
	debit, credit := created, source
	if created.Balance.Sign() < 0 {
		debit, credit = source, created
	}

	created.AmountResidual = shrink(created.AmountResidual, matched)
	source.AmountResidual = shrink(source.AmountResidual, matched)
	matchedCur := decimal.Min(created.AmountResidualCurrency.Abs(), source.AmountResidualCurrency.Abs())
	created.AmountResidualCurrency = shrink(created.AmountResidualCurrency, matchedCur)
	source.AmountResidualCurrency = shrink(source.AmountResidualCurrency, matchedCur)

	// An attached exchange move settles the leftover on whichever side still
	// carries a residual of its sign.
	if exchangeMoveID != 0 {
		if exchangeMove, ok := l.moves[exchangeMoveID]; ok {
			for _, line := range exchangeMove.Lines {
				if line.AmountResidual.IsZero() {
					continue
				}
				for _, side := range []*common.Aml{created, source} {
					if side.AmountResidual.Sign() != 0 && side.AmountResidual.Sign() == -line.AmountResidual.Sign() {
						settled := decimal.Min(side.AmountResidual.Abs(), line.AmountResidual.Abs())
						side.AmountResidual = shrink(side.AmountResidual, settled)
						line.AmountResidual = shrink(line.AmountResidual, settled)
						side.AmountResidualCurrency = decimal.Zero
						line.AmountResidualCurrency = decimal.Zero
					}
				}
			}
		}
	}

	created.Reconciled = created.AmountResidual.IsZero()
	source.Reconciled = source.AmountResidual.IsZero()

	l.partials = append(l.partials, &Partial{
		ID:             l.nextID(),
		DebitAmlID:     debit.ID,
		CreditAmlID:    credit.ID,
		Amount:         matched,
		ExchangeMoveID: exchangeMoveID,
	})
	return nil
}

func shrink(residual, by decimal.Decimal) decimal.Decimal {
	if residual.Sign() >= 0 {
		return residual.Sub(by)
	}
	return residual.Add(by)
}

// ResetStatementLine moves the counterpart legs back onto the suspense
// account and drops the partials touching the statement move.
func (l *Ledger) ResetStatementLine(_ context.Context, st *common.StatementLine) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	move, ok := l.moves[st.MoveID]
	if !ok {
		return fmt.Errorf("move %d not found", st.MoveID)
	}
	lineIDs := map[int64]bool{}
	for _, aml := range move.Lines {
		lineIDs[aml.ID] = true
	}
	kept := l.partials[:0]
	for _, p := range l.partials {
		if lineIDs[p.DebitAmlID] || lineIDs[p.CreditAmlID] {
			// Restore the counterpart's residual.
			for _, id := range []int64{p.DebitAmlID, p.CreditAmlID} {
				if aml, ok := l.amls[id]; ok && !lineIDs[id] {
					aml.AmountResidual = unshrink(aml.AmountResidual, aml.Balance, p.Amount)
					aml.Reconciled = false
				}
			}
			continue
		}
		kept = append(kept, p)
	}
	l.partials = kept

	amounts := st.AccountingAmounts()
	for _, aml := range move.Lines {
		if aml.Account != nil && st.Journal.LiquidityAccount != nil && aml.Account.ID == st.Journal.LiquidityAccount.ID {
			continue
		}
		aml.Account = st.Journal.SuspenseAccount
		aml.Currency = amounts.TransactionCurrency
		aml.AmountCurrency = amounts.TransactionAmount.Neg()
		aml.Balance = amounts.CompanyAmount.Neg()
		aml.AmountResidual = decimal.Zero
		aml.AmountResidualCurrency = decimal.Zero
		aml.Reconciled = false
	}
	st.IsReconciled = false
	st.Checked = false
	return nil
}

func unshrink(residual, booked, amount decimal.Decimal) decimal.Decimal {
	if booked.Sign() >= 0 {
		return residual.Add(amount)
	}
	return residual.Sub(amount)
}

func (l *Ledger) SetStatementPartner(_ context.Context, st *common.StatementLine, partner *common.Partner) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st.Partner = partner
	return nil
}

func (l *Ledger) CreatePartnerBank(_ context.Context, partner *common.Partner, accountNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	partner.BankAccounts = append(partner.BankAccounts, accountNumber)
	return nil
}

func (l *Ledger) SetChecked(_ context.Context, st *common.StatementLine, checked bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	st.Checked = checked
	if move, ok := l.moves[st.MoveID]; ok {
		move.Checked = checked
	}
	return nil
}
