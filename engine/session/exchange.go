package session

import "github.com/shopspring/decimal"

// recomputeExchangeDiffs re-derives the exchange_diff line of every new_aml
// from the amount kernel, deleting stale ones and reordering so each diff
// sits directly after its counterpart.
func (s *Session) recomputeExchangeDiffs() {
	for _, line := range s.newAmlLines() {
		s.recomputeExchangeDiffFor(line)
	}
	s.dropOrphanExchangeDiffs()
	s.reorderExchangeDiffs()
}

// recomputeExchangeDiffFor updates, creates or deletes the exchange_diff
// paired with one new_aml line.
func (s *Session) recomputeExchangeDiffFor(line *Line) {
	account, diff := s.kernel.ExchangeDiff(line.Currency, line.Balance, line.AmountCurrency)
	existing := s.exchangeFor(line)
	if account == nil {
		if existing != nil {
			_, i := s.findLine(existing.Index)
			s.removeAt(i)
		}
		return
	}
	if existing != nil {
		existing.Account = account
		existing.Balance = diff
		existing.Currency = line.Currency
		existing.AmountCurrency = decimal.Zero
		return
	}
	s.lines = append(s.lines, &Line{
		Index:          newIndex(),
		Flag:           FlagExchangeDiff,
		Name:           "Exchange difference: " + line.Name,
		Date:           s.st.Date,
		Account:        account,
		Partner:        line.Partner,
		Currency:       line.Currency,
		AmountCurrency: decimal.Zero,
		Balance:        diff,
		SourceAml:      line.SourceAml,
	})
}

// dropOrphanExchangeDiffs cascades the deletion of new_aml lines onto their
// paired diffs.
func (s *Session) dropOrphanExchangeDiffs() {
	sources := map[int64]bool{}
	for _, l := range s.lines {
		if l.Flag == FlagNewAml && l.SourceAml != nil {
			sources[l.SourceAml.ID] = true
		}
	}
	for i := len(s.lines) - 1; i >= 0; i-- {
		l := s.lines[i]
		if l.Flag == FlagExchangeDiff && (l.SourceAml == nil || !sources[l.SourceAml.ID]) {
			s.removeAt(i)
		}
	}
}

// reorderExchangeDiffs moves every exchange_diff line directly after its
// new_aml, preserving the relative order of everything else.
func (s *Session) reorderExchangeDiffs() {
	diffs := map[int64]*Line{}
	ordered := make([]*Line, 0, len(s.lines))
	for _, l := range s.lines {
		if l.Flag == FlagExchangeDiff && l.SourceAml != nil {
			diffs[l.SourceAml.ID] = l
			continue
		}
		ordered = append(ordered, l)
	}
	withDiffs := make([]*Line, 0, len(s.lines))
	for _, l := range ordered {
		withDiffs = append(withDiffs, l)
		if l.Flag == FlagNewAml && l.SourceAml != nil {
			if diff, ok := diffs[l.SourceAml.ID]; ok {
				withDiffs = append(withDiffs, diff)
			}
		}
	}
	s.lines = withDiffs
}
