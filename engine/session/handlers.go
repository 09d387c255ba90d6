package session

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// AddNewAmls mounts open counterpart lines into the working set.
func (s *Session) AddNewAmls(ctx context.Context, amlIDs []int64, allowPartial bool) error {
	if s.st.IsReconciled {
		return ErrAlreadyReconciled
	}
	snap := s.snapshot()
	if err := s.mountNewAmls(ctx, amlIDs, allowPartial); err != nil {
		s.restore(snap)
		return err
	}
	s.autoBalance()
	return nil
}

// mountNewAmls implements the mounting flow: filter out amls already
// represented, create the new_aml lines, then run the exchange, early-payment
// or partial, and auto-balance passes in order.
func (s *Session) mountNewAmls(ctx context.Context, amlIDs []int64, allowPartial bool) error {
	present := map[int64]bool{}
	for _, line := range s.lines {
		if line.SourceAml != nil {
			present[line.SourceAml.ID] = true
		}
	}
	var missing []int64
	for _, id := range amlIDs {
		if !present[id] {
			present[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	amls, err := s.deps.Ledger.OpenAmls(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch amls: %w", err)
	}
	for _, aml := range amls {
		if aml.Currency.IsZero(aml.AmountResidualCurrency) && s.kernel.Amounts().CompanyCurrency.IsZero(aml.AmountResidual) {
			return fmt.Errorf("aml %d: %w", aml.ID, ErrZeroResidual)
		}
		s.lines = append(s.lines, &Line{
			Index:                newIndex(),
			Flag:                 FlagNewAml,
			Name:                 aml.Name,
			Date:                 s.st.Date,
			Account:              aml.Account,
			Partner:              aml.Partner,
			Currency:             aml.Currency,
			AmountCurrency:       aml.AmountResidualCurrency.Neg(),
			Balance:              aml.AmountResidual.Neg(),
			SourceAml:            aml,
			SourceBalance:        aml.AmountResidual.Neg(),
			SourceAmountCurrency: aml.AmountResidualCurrency.Neg(),
		})
	}

	s.recomputeExchangeDiffs()
	applied, err := s.tryEarlyPayment()
	if err != nil {
		return err
	}
	if !applied && allowPartial {
		s.checkApplyPartial()
	}
	s.autoBalance()
	return nil
}

// RemoveNewAml removes the new_aml mounted from the given source aml.
func (s *Session) RemoveNewAml(ctx context.Context, amlID int64) error {
	for _, line := range s.lines {
		if line.Flag == FlagNewAml && line.SourceAml != nil && line.SourceAml.ID == amlID {
			return s.RemoveLine(ctx, line.Index)
		}
	}
	return ErrLineNotFound
}

// RemoveLine deletes a line, cascades its exchange diff, and re-runs the
// downstream passes. The liquidity and auto_balance lines are protected.
func (s *Session) RemoveLine(ctx context.Context, index string) error {
	if s.st.IsReconciled {
		return ErrAlreadyReconciled
	}
	line, i := s.findLine(index)
	if line == nil {
		return ErrLineNotFound
	}
	if line.Flag == FlagLiquidity || line.Flag == FlagAutoBalance {
		return ErrLineNotRemovable
	}

	snap := s.snapshot()
	s.removeAt(i)
	switch line.Flag {
	case FlagNewAml:
		s.dropOrphanExchangeDiffs()
	case FlagTaxLine:
		// Removing a tax line detaches the tax from its base lines and
		// restores their remembered pre-tax amount.
		s.detachTaxFromBases(line)
	}

	if err := s.recomputeTaxes(); err != nil {
		s.restore(snap)
		return err
	}
	s.recomputeExchangeDiffs()
	applied, err := s.tryEarlyPayment()
	if err != nil {
		s.restore(snap)
		return err
	}
	if !applied {
		s.checkApplyPartial()
	}
	s.autoBalance()
	return nil
}

func (s *Session) detachTaxFromBases(taxLine *Line) {
	detached := taxLine.TaxID
	if taxLine.GroupTaxID != 0 {
		detached = taxLine.GroupTaxID
	}
	if detached == 0 {
		return
	}
	for _, line := range s.lines {
		if line.Flag != FlagManual || !line.hasTax(detached) {
			continue
		}
		kept := line.TaxIDs[:0]
		for _, id := range line.TaxIDs {
			if id != detached {
				kept = append(kept, id)
			}
		}
		line.TaxIDs = kept
		if len(line.TaxIDs) == 0 && !line.TaxBaseAmountCurrency.IsZero() {
			line.AmountCurrency = line.TaxBaseAmountCurrency
			line.Balance = s.kernel.StLineBalance(line.Currency, line.AmountCurrency)
		}
	}
}

// recomputeAfterEdit re-runs the derived passes after a manual field change.
func (s *Session) recomputeAfterEdit(line *Line) error {
	if line.Flag == FlagAutoBalance {
		line.Flag = FlagManual
	}
	if err := s.recomputeTaxes(); err != nil {
		return err
	}
	s.recomputeExchangeDiffs()
	s.autoBalance()
	return nil
}

// SetLineAmount edits a line's amount in its own currency. On a new_aml the
// value is clamped to the source (sign kept, magnitude capped) and zero
// resets to the source amounts; the manually-modified latch is set so the
// partial dispatcher skips the line from now on.
func (s *Session) SetLineAmount(ctx context.Context, index string, amountCurrency decimal.Decimal) error {
	if s.st.IsReconciled {
		return ErrAlreadyReconciled
	}
	line, _ := s.findLine(index)
	if line == nil {
		return ErrLineNotFound
	}
	snap := s.snapshot()

	switch line.Flag {
	case FlagNewAml:
		line.AmountCurrency = clampToSource(amountCurrency, line.SourceAmountCurrency, line.Currency)
		if line.SourceAmountCurrency.IsZero() {
			line.Balance = line.SourceBalance
		} else {
			line.Balance = s.kernel.Amounts().CompanyCurrency.Round(
				line.AmountCurrency.Mul(line.SourceBalance).Div(line.SourceAmountCurrency))
		}
		line.ManuallyModified = true
	default:
		line.AmountCurrency = amountCurrency
		line.Balance = s.kernel.StLineBalance(line.Currency, amountCurrency)
		line.ManuallyModified = true
		if line.ForcePriceIncludedTaxes && len(line.TaxIDs) > 0 {
			line.TaxBaseAmountCurrency = amountCurrency
		}
	}

	if err := s.recomputeAfterEdit(line); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// clampToSource keeps the sign of the source and never exceeds it in
// absolute value; a zero amount resets to the source.
func clampToSource(amount, source decimal.Decimal, currency *common.Currency) decimal.Decimal {
	if currency.IsZero(amount) {
		return source
	}
	if amount.Sign() != source.Sign() {
		return source
	}
	if amount.Abs().GreaterThan(source.Abs()) {
		return source
	}
	return currency.Round(amount)
}

// SetLineAccount rewires a line to another account.
func (s *Session) SetLineAccount(ctx context.Context, index string, account *common.Account) error {
	return s.editLine(index, func(line *Line) {
		line.Account = account
		line.ManuallyModified = true
	})
}

// SetLinePartner changes the partner on a line.
func (s *Session) SetLinePartner(ctx context.Context, index string, partner *common.Partner) error {
	return s.editLine(index, func(line *Line) {
		line.Partner = partner
	})
}

// SetLineName relabels a line.
func (s *Session) SetLineName(ctx context.Context, index string, name string) error {
	return s.editLine(index, func(line *Line) {
		line.Name = name
	})
}

// SetLineTaxes replaces the taxes of a manual base line. Emptying the taxes
// restores the remembered pre-tax amount.
func (s *Session) SetLineTaxes(ctx context.Context, index string, taxIDs []int64) error {
	return s.editLine(index, func(line *Line) {
		if len(line.TaxIDs) == 0 && len(taxIDs) > 0 && line.TaxBaseAmountCurrency.IsZero() {
			line.TaxBaseAmountCurrency = line.AmountCurrency
		}
		line.TaxIDs = append([]int64(nil), taxIDs...)
		if len(taxIDs) == 0 && !line.TaxBaseAmountCurrency.IsZero() {
			line.AmountCurrency = line.TaxBaseAmountCurrency
			line.Balance = s.kernel.StLineBalance(line.Currency, line.AmountCurrency)
		}
		line.ManuallyModified = true
	})
}

// SetLineAnalytic replaces the analytic distribution of a line.
func (s *Session) SetLineAnalytic(ctx context.Context, index string, distribution map[string]decimal.Decimal) error {
	return s.editLine(index, func(line *Line) {
		line.AnalyticDistribution = distribution
	})
}

func (s *Session) editLine(index string, mutate func(*Line)) error {
	if s.st.IsReconciled {
		return ErrAlreadyReconciled
	}
	line, _ := s.findLine(index)
	if line == nil {
		return ErrLineNotFound
	}
	snap := s.snapshot()
	mutate(line)
	if err := s.recomputeAfterEdit(line); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ApplyLineSuggestion restores a partially-matched new_aml to its source
// amounts and lifts the manually-modified latch.
func (s *Session) ApplyLineSuggestion(ctx context.Context, index string) error {
	if s.st.IsReconciled {
		return ErrAlreadyReconciled
	}
	line, _ := s.findLine(index)
	if line == nil {
		return ErrLineNotFound
	}
	if line.Flag != FlagNewAml {
		return nil
	}
	snap := s.snapshot()
	line.AmountCurrency = line.SourceAmountCurrency
	line.Balance = line.SourceBalance
	line.ManuallyModified = false
	if err := s.recomputeAfterEdit(line); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Reset undoes a prior reconciliation on the statement line. Hash-sealed
// entries refuse: reconciled ones redirect to the reconciliation view,
// unreconciled ones are forbidden outright.
func (s *Session) Reset(ctx context.Context) (*common.Action, error) {
	if s.st.Sealed {
		if s.st.IsReconciled {
			return &common.Action{
				Type:     "open",
				ResModel: "reconciliation.view",
				ResID:    s.st.MoveID,
				Name:     "Open the reconciliation view",
			}, ErrSealedReconciled
		}
		return nil, ErrSealedUnreconciled
	}
	if !s.st.IsReconciled {
		return nil, ErrNotReconciled
	}
	if err := s.deps.Ledger.ResetStatementLine(ctx, s.st); err != nil {
		return nil, fmt.Errorf("reset statement line: %w", err)
	}
	s.st.IsReconciled = false
	s.st.Checked = false
	if err := s.MountStLine(ctx, s.st); err != nil {
		return nil, err
	}
	return nil, nil
}

// SetAsChecked marks an already-reconciled move as reviewed.
func (s *Session) SetAsChecked(ctx context.Context) error {
	if !s.st.IsReconciled {
		return ErrNotReconciled
	}
	if err := s.deps.Ledger.SetChecked(ctx, s.st, true); err != nil {
		return err
	}
	s.st.Checked = true
	return nil
}
