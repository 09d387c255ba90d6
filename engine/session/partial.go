package session

// checkApplyPartial splits the last mounted new_aml when it overshoots the
// statement line's remaining balance, so the counterpart plus its exchange
// diff matches the remainder exactly. Lines the user touched are latched out
// of automatic partials.
func (s *Session) checkApplyPartial() {
	s.undoAutomaticPartials()

	newAmls := s.newAmlLines()
	if len(newAmls) == 0 {
		return
	}
	line := newAmls[len(newAmls)-1]
	if line.ManuallyModified {
		return
	}

	a := s.kernel.Amounts()
	openBalance, openAmountCurrency := s.openBalances()

	if line.Currency.Equal(a.TransactionCurrency) {
		// Overshoot expressed in the transaction currency.
		if line.AmountCurrency.Sign()*openAmountCurrency.Sign() != -1 {
			return
		}
		if openAmountCurrency.Abs().GreaterThanOrEqual(line.AmountCurrency.Abs()) {
			return
		}
		amountAfter := line.Currency.Round(line.AmountCurrency.Add(openAmountCurrency))
		line.AmountCurrency = amountAfter
		line.Balance = a.CompanyCurrency.Round(
			amountAfter.Mul(line.SourceBalance).Div(line.SourceAmountCurrency))
		s.recomputeExchangeDiffFor(line)
		s.reorderExchangeDiffs()
		return
	}

	// Overshoot expressed in the company currency; the rescale uses the
	// counterpart's own booked rate. The exchange diff, if any, already
	// absorbed the statement-rate component and is left untouched.
	if line.Balance.Sign()*openBalance.Sign() != -1 {
		return
	}
	if openBalance.Abs().GreaterThanOrEqual(line.Balance.Abs()) {
		return
	}
	balanceAfter := a.CompanyCurrency.Round(line.Balance.Add(openBalance))
	line.Balance = balanceAfter
	if !line.SourceBalance.IsZero() {
		line.AmountCurrency = line.Currency.Round(
			balanceAfter.Mul(line.SourceAmountCurrency).Div(line.SourceBalance))
	}
}

// undoAutomaticPartials restores every non-manually-modified new_aml to its
// source amounts before a new partial is applied, then refreshes the
// affected exchange diffs.
func (s *Session) undoAutomaticPartials() {
	touched := false
	for _, line := range s.newAmlLines() {
		if line.ManuallyModified {
			continue
		}
		if line.Balance.Equal(line.SourceBalance) && line.AmountCurrency.Equal(line.SourceAmountCurrency) {
			continue
		}
		line.Balance = line.SourceBalance
		line.AmountCurrency = line.SourceAmountCurrency
		touched = true
	}
	if touched {
		s.recomputeExchangeDiffs()
	}
}
