package session

import (
	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// openBalances computes the company-currency and transaction-currency open
// balances: what remains after subtracting every counterpart line's
// contribution from the statement line's signed amounts.
func (s *Session) openBalances() (openBalance, openAmountCurrency decimal.Decimal) {
	a := s.kernel.Amounts()
	openBalance = a.CompanyAmount.Neg()
	openAmountCurrency = a.TransactionAmount.Neg()
	for _, line := range s.lines {
		if !line.isCounterpart() {
			continue
		}
		openBalance = openBalance.Sub(line.Balance)
		openAmountCurrency = openAmountCurrency.Sub(s.contributionInTransactionCurrency(line))
	}
	openBalance = a.CompanyCurrency.Round(openBalance)
	openAmountCurrency = a.TransactionCurrency.Round(openAmountCurrency)
	return openBalance, openAmountCurrency
}

// contributionInTransactionCurrency projects one line onto the transaction
// currency: directly for transaction-currency lines, through the statement's
// journal rate for journal-currency lines, and through the company rate for
// everything else.
func (s *Session) contributionInTransactionCurrency(line *Line) decimal.Decimal {
	a := s.kernel.Amounts()
	switch {
	case line.Currency.Equal(a.TransactionCurrency):
		return line.AmountCurrency
	case line.Currency.Equal(a.JournalCurrency):
		return s.kernel.JournalToTransaction(line.AmountCurrency)
	default:
		return s.kernel.TransactionAmount(line.Balance)
	}
}

// autoBalance maintains the zero-open-balance invariant: it deletes any
// existing auto_balance line and appends a fresh one absorbing the remainder
// when the company-currency open balance does not round to zero.
func (s *Session) autoBalance() {
	s.updateDistributionWarning()
	for i := len(s.lines) - 1; i >= 0; i-- {
		if s.lines[i].Flag == FlagAutoBalance {
			s.removeAt(i)
		}
	}

	a := s.kernel.Amounts()
	openBalance, openAmountCurrency := s.openBalances()
	if openBalance.IsZero() {
		return
	}

	account, name := s.autoBalanceAccount(openAmountCurrency)
	s.lines = append(s.lines, &Line{
		Index:          newIndex(),
		Flag:           FlagAutoBalance,
		Name:           name,
		Date:           s.st.Date,
		Account:        account,
		Partner:        s.st.Partner,
		Currency:       a.TransactionCurrency,
		AmountCurrency: openAmountCurrency,
		Balance:        openBalance,
	})
}

// autoBalanceAccount picks the partner's receivable or payable account from
// the partner ranks and the statement sign, falling back to the journal's
// suspense account when there is no partner.
func (s *Session) autoBalanceAccount(openAmountCurrency decimal.Decimal) (*common.Account, string) {
	partner := s.st.Partner
	a := s.kernel.Amounts()
	if partner != nil {
		var account *common.Account
		switch {
		case partner.CustomerRank > 0 && partner.SupplierRank == 0:
			account = partner.ReceivableAccount
		case partner.SupplierRank > 0 && partner.CustomerRank == 0:
			account = partner.PayableAccount
		case s.st.Amount.Sign() > 0:
			account = partner.ReceivableAccount
		default:
			account = partner.PayableAccount
		}
		if account != nil {
			name := "Open balance of " + a.TransactionCurrency.Format(openAmountCurrency.Abs())
			return account, name
		}
	}
	return s.st.Journal.SuspenseAccount, s.st.PaymentRef
}

// updateDistributionWarning records the non-fatal "unable to distribute"
// condition: a manual line whose sign opposes the manual total and whose
// taxes match no line of the opposite sign. The caller may still validate;
// the entry is flagged for review.
func (s *Session) updateDistributionWarning() {
	s.unableToDistribute = false
	var manual []*Line
	for _, line := range s.lines {
		if line.Flag == FlagManual {
			manual = append(manual, line)
		}
	}
	if len(manual) < 2 {
		return
	}
	total := decimal.Zero
	for _, line := range manual {
		total = total.Add(line.AmountCurrency)
	}
	if total.IsZero() {
		return
	}
	for _, line := range manual {
		if line.AmountCurrency.Sign() == total.Sign() || line.AmountCurrency.IsZero() {
			continue
		}
		if !hasCompatiblePositive(manual, line) {
			s.unableToDistribute = true
			return
		}
	}
}

func hasCompatiblePositive(manual []*Line, neg *Line) bool {
	for _, other := range manual {
		if other == neg || other.AmountCurrency.Sign() != -neg.AmountCurrency.Sign() {
			continue
		}
		if other.AmountCurrency.Abs().LessThan(neg.AmountCurrency.Abs()) {
			continue
		}
		if sameTaxes(other.TaxIDs, neg.TaxIDs) {
			return true
		}
	}
	return false
}

func sameTaxes(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[int64]int{}
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
