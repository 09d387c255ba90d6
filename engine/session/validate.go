package session

import (
	"context"
	"fmt"

	"github.com/aqlanhadi/rekon/engine/common"
)

// Validate commits the working set into the host ledger: it rewrites the
// statement line's move lines, reconciles each counterpart against its
// source aml, and books exchange-difference moves for the folded FX
// residuals. On success the session is re-mounted on the now-reconciled
// line.
func (s *Session) Validate(ctx context.Context, markToCheck bool) error {
	if state := s.State(); state != StateValid {
		if state == StateReconciled {
			return ErrAlreadyReconciled
		}
		return ErrInvalidState
	}

	partner := s.resolveMovePartner()

	var vals []common.MoveLineVals
	var pairs []common.ReconcilePair
	seq := 0
	for _, line := range s.lines {
		if line.Flag == FlagExchangeDiff {
			continue
		}
		lineVals := common.MoveLineVals{
			Sequence:             seq,
			Name:                 line.Name,
			Account:              line.Account,
			Partner:              line.Partner,
			Date:                 s.st.Date,
			Currency:             line.Currency,
			AmountCurrency:       line.AmountCurrency,
			Balance:              line.Balance,
			TaxRepartitionLineID: line.TaxRepartitionLineID,
			TaxTags:              line.TaxTags,
			AnalyticDistribution: line.AnalyticDistribution,
		}
		if line.Flag == FlagLiquidity || line.Flag == FlagAutoBalance {
			lineVals.Partner = partner
		}
		if line.Flag == FlagNewAml {
			pair := common.ReconcilePair{Sequence: seq, SourceAml: line.SourceAml}
			if exch := s.exchangeFor(line); exch != nil {
				lineVals.Balance = lineVals.Balance.Add(exch.Balance)
				pair.Exchange = &common.ExchangeResidual{
					Account:                exch.Account,
					CounterAccount:         line.Account,
					Currency:               line.Currency,
					AmountResidual:         exch.Balance,
					AmountResidualCurrency: exch.AmountCurrency,
					AnalyticDistribution:   exch.AnalyticDistribution,
				}
			}
			pairs = append(pairs, pair)
		}
		vals = append(vals, lineVals)
		seq++
	}

	created, err := s.deps.Ledger.RewriteStatementLines(ctx, s.st, vals)
	if err != nil {
		return fmt.Errorf("rewrite statement lines: %w", err)
	}

	for _, pair := range pairs {
		if pair.Sequence >= len(created) {
			return fmt.Errorf("ledger returned %d lines, need sequence %d", len(created), pair.Sequence)
		}
		var exchangeMoveID int64
		if pair.Exchange != nil {
			exchangeMoveID, _, err = s.deps.Ledger.CreateExchangeMove(ctx, s.st, *pair.Exchange)
			if err != nil {
				return fmt.Errorf("exchange move: %w", err)
			}
		}
		if err := s.deps.Ledger.Reconcile(ctx, created[pair.Sequence], pair.SourceAml, exchangeMoveID); err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
	}

	if s.st.Partner == nil && partner != nil {
		if err := s.deps.Ledger.SetStatementPartner(ctx, s.st, partner); err != nil {
			return fmt.Errorf("set partner: %w", err)
		}
		s.st.Partner = partner
	}
	if partner != nil && s.st.AccountNumber != "" && !partnerHasBank(partner, s.st.AccountNumber) {
		if err := s.deps.Ledger.CreatePartnerBank(ctx, partner, s.st.AccountNumber); err != nil {
			return fmt.Errorf("create partner bank: %w", err)
		}
	}

	checked := !markToCheck && !s.toCheck
	if err := s.deps.Ledger.SetChecked(ctx, s.st, checked); err != nil {
		return fmt.Errorf("set checked: %w", err)
	}
	s.st.Checked = checked
	s.st.IsReconciled = true

	return s.MountStLine(ctx, s.st)
}

// resolveMovePartner returns the partner shared by every counterpart line,
// or nil when they disagree.
func (s *Session) resolveMovePartner() *common.Partner {
	var partner *common.Partner
	for _, line := range s.lines {
		if line.Flag == FlagLiquidity || line.Flag == FlagAutoBalance {
			continue
		}
		if line.Partner == nil {
			return nil
		}
		if partner == nil {
			partner = line.Partner
			continue
		}
		if partner.ID != line.Partner.ID {
			return nil
		}
	}
	if partner == nil {
		partner = s.st.Partner
	}
	return partner
}

func partnerHasBank(partner *common.Partner, accountNumber string) bool {
	for _, acc := range partner.BankAccounts {
		if acc == accountNumber {
			return true
		}
	}
	return false
}
