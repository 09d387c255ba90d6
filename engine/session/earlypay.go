package session

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// tryEarlyPayment applies the early-payment discount flow when the open
// balance, with every counterpart reset to its source amounts, matches the
// total discount available on the statement date. Returns whether the
// discount was applied, so the caller can fall through to partial matching.
func (s *Session) tryEarlyPayment() (bool, error) {
	if s.deps.EarlyPayment == nil {
		return false, nil
	}
	newAmls := s.newAmlLines()
	if len(newAmls) == 0 {
		return false, nil
	}

	a := s.kernel.Amounts()
	var eligible []*common.Aml
	totalDiscount := decimal.Zero
	for _, line := range newAmls {
		if !line.Currency.Equal(a.TransactionCurrency) {
			return false, nil
		}
		aml := line.SourceAml
		if aml != nil && aml.EligibleForEarlyPayment(s.st.Date) {
			eligible = append(eligible, aml)
			totalDiscount = totalDiscount.Add(aml.AmountResidualCurrency.Sub(aml.DiscountAmountCurrency))
		}
	}
	if len(eligible) == 0 {
		return false, nil
	}

	// Open balance before partials: counterparts at source amounts, existing
	// early_payment lines ignored.
	open := a.TransactionAmount.Neg()
	for _, line := range s.lines {
		if !line.isCounterpart() || line.Flag == FlagEarlyPayment {
			continue
		}
		amount := line.AmountCurrency
		if line.Flag == FlagNewAml {
			amount = line.SourceAmountCurrency
		}
		if line.Currency.Equal(a.TransactionCurrency) {
			open = open.Sub(amount)
		} else {
			open = open.Sub(s.contributionInTransactionCurrency(line))
		}
	}
	if a.TransactionCurrency.Compare(open, totalDiscount) != 0 {
		return false, nil
	}

	epLines, err := s.deps.EarlyPayment.EarlyPaymentLines(s.st, eligible, totalDiscount)
	if err != nil {
		return false, fmt.Errorf("early-payment lines: %w", err)
	}
	if len(epLines) == 0 {
		return false, nil
	}

	for _, line := range newAmls {
		line.Balance = line.SourceBalance
		line.AmountCurrency = line.SourceAmountCurrency
	}
	s.recomputeExchangeDiffs()
	for i := len(s.lines) - 1; i >= 0; i-- {
		if s.lines[i].Flag == FlagEarlyPayment {
			s.removeAt(i)
		}
	}
	for _, ep := range epLines {
		s.lines = append(s.lines, &Line{
			Index:                newIndex(),
			Flag:                 FlagEarlyPayment,
			Name:                 ep.Name,
			Date:                 s.st.Date,
			Account:              ep.Account,
			Partner:              s.st.Partner,
			Currency:             a.TransactionCurrency,
			AmountCurrency:       ep.AmountCurrency,
			Balance:              s.kernel.StLineBalance(a.TransactionCurrency, ep.AmountCurrency),
			TaxRepartitionLineID: ep.TaxRepartitionLineID,
			GroupTaxID:           ep.GroupTaxID,
			TaxTags:              ep.TaxTags,
		})
	}
	return true, nil
}
