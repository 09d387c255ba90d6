// Package session implements the interactive editor over the working set of
// journal-entry lines attached to one bank statement line. A session is
// single-threaded: callers must not interleave handlers.
package session

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/kernel"
	"github.com/aqlanhadi/rekon/engine/reconmodel"
)

// State of the working set. Invalid while the suspense account is present,
// reconciled when the statement line is already posted-reconciled.
type State string

const (
	StateValid      State = "valid"
	StateInvalid    State = "invalid"
	StateReconciled State = "reconciled"
)

// InvoiceRequest asks the host to create a draft counterpart document.
type InvoiceRequest struct {
	MoveType string // out_invoice, out_refund, in_invoice, in_refund
	Partner  *common.Partner
	Date     string
	Lines    []InvoiceLineVals
}

type InvoiceLineVals struct {
	Name      string
	PriceUnit decimal.Decimal
	TaxIDs    []int64
}

// InvoiceFactory creates counterpart documents for sale/purchase models.
type InvoiceFactory interface {
	CreateDraftInvoice(ctx context.Context, req InvoiceRequest) (int64, error)
}

// IncludedPriceSolver back-solves a tax-included unit price from a total.
type IncludedPriceSolver interface {
	PriceUnitFromTotal(total decimal.Decimal, currency *common.Currency, taxIDs []int64) decimal.Decimal
}

// RuleMatcher proposes counterparts and write-off models on mount.
type RuleMatcher interface {
	ApplyRules(st *common.StatementLine, partner *common.Partner) (*reconmodel.MatchResult, error)
}

// Deps are the external collaborators a session consumes. Ledger, Rates and
// Taxes are required; the rest degrade gracefully when nil.
type Deps struct {
	Ledger       common.Ledger
	Rates        common.RateProvider
	Taxes        common.TaxEngine
	EarlyPayment common.EarlyPaymentProvider
	Rules        RuleMatcher
	Invoices     InvoiceFactory
	PriceSolver  IncludedPriceSolver
}

// Session is the in-memory working set bound to one statement line.
type Session struct {
	st     *common.StatementLine
	kernel *kernel.Kernel
	deps   Deps

	lines []*Line

	autoReconcile      bool
	toCheck            bool
	unableToDistribute bool
}

// New creates a session and mounts the statement line.
func New(st *common.StatementLine, deps Deps) (*Session, error) {
	s := &Session{deps: deps}
	if err := s.MountStLine(context.Background(), st); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) StatementLine() *common.StatementLine { return s.st }
func (s *Session) Kernel() *kernel.Kernel               { return s.kernel }
func (s *Session) AutoReconcile() bool                  { return s.autoReconcile }
func (s *Session) UnableToDistribute() bool             { return s.unableToDistribute }

// Lines returns the working set in order. The slice is shared; callers must
// treat it as read-only.
func (s *Session) Lines() []*Line { return s.lines }

// State derives the session state from the working set.
func (s *Session) State() State {
	if s.st.IsReconciled {
		return StateReconciled
	}
	suspense := s.st.Journal.SuspenseAccount
	for _, line := range s.lines {
		if line.Account != nil && suspense != nil && line.Account.ID == suspense.ID {
			return StateInvalid
		}
	}
	return StateValid
}

// MountStLine initialises the working set for the statement line and runs
// rule matching (unless the line is already reconciled).
func (s *Session) MountStLine(ctx context.Context, st *common.StatementLine) error {
	s.st = st
	s.kernel = kernel.New(st, s.deps.Rates)
	s.lines = nil
	s.autoReconcile = false
	s.toCheck = false
	s.unableToDistribute = false

	if st.IsReconciled {
		return s.mountReconciledView(ctx)
	}

	amounts := s.kernel.Amounts()
	s.lines = append(s.lines, &Line{
		Index:          newIndex(),
		Flag:           FlagLiquidity,
		Name:           st.PaymentRef,
		Date:           st.Date,
		Account:        st.Journal.LiquidityAccount,
		Partner:        st.Partner,
		Currency:       amounts.JournalCurrency,
		AmountCurrency: amounts.JournalAmount,
		Balance:        amounts.CompanyAmount,
	})

	if err := s.applyMatchingRules(ctx); err != nil {
		return err
	}
	s.autoBalance()
	return nil
}

// mountReconciledView loads the already-posted move lines read-only.
func (s *Session) mountReconciledView(ctx context.Context) error {
	liquidity, suspense, other, err := s.deps.Ledger.SeekLines(ctx, s.st)
	if err != nil {
		return fmt.Errorf("seek posted lines: %w", err)
	}
	for _, aml := range liquidity {
		s.lines = append(s.lines, lineFromPostedAml(aml, FlagLiquidity))
	}
	for _, aml := range append(suspense, other...) {
		s.lines = append(s.lines, lineFromPostedAml(aml, FlagAml))
	}
	return nil
}

func lineFromPostedAml(aml *common.Aml, flag Flag) *Line {
	return &Line{
		Index:          newIndex(),
		Flag:           flag,
		Name:           aml.Name,
		Date:           aml.Date,
		Account:        aml.Account,
		Partner:        aml.Partner,
		Currency:       aml.Currency,
		AmountCurrency: aml.AmountCurrency,
		Balance:        aml.Balance,
		SourceAml:      aml,
	}
}

// applyMatchingRules feeds the rule engine's proposal through the mounting
// flow. Partial matching is suppressed when the proposal is a write-off.
func (s *Session) applyMatchingRules(ctx context.Context) error {
	if s.deps.Rules == nil {
		return nil
	}
	res, err := s.deps.Rules.ApplyRules(s.st, s.st.Partner)
	if err != nil {
		return fmt.Errorf("matching rules: %w", err)
	}
	if res == nil {
		return nil
	}
	if len(res.AmlIDs) > 0 {
		allowPartial := res.Status != "write_off"
		if err := s.mountNewAmls(ctx, res.AmlIDs, allowPartial); err != nil {
			return err
		}
	}
	if res.Model != nil {
		if err := s.applyWriteoffModel(res.Model); err != nil {
			return err
		}
	}
	if res.AutoReconcile {
		s.autoReconcile = true
	}
	return nil
}

// snapshot captures the mutable session state so a failed handler can leave
// the working set exactly as it was at the start of the intent.
type snapshot struct {
	lines              []*Line
	autoReconcile      bool
	toCheck            bool
	unableToDistribute bool
}

func (s *Session) snapshot() snapshot {
	lines := make([]*Line, len(s.lines))
	for i, l := range s.lines {
		lines[i] = l.clone()
	}
	return snapshot{
		lines:              lines,
		autoReconcile:      s.autoReconcile,
		toCheck:            s.toCheck,
		unableToDistribute: s.unableToDistribute,
	}
}

func (s *Session) restore(snap snapshot) {
	s.lines = snap.lines
	s.autoReconcile = snap.autoReconcile
	s.toCheck = snap.toCheck
	s.unableToDistribute = snap.unableToDistribute
}

// Snapshot exports the working set for a client-held snapshot.
func (s *Session) Snapshot() []*Line {
	return s.snapshot().lines
}

// RestoreSnapshot rehydrates a snapshot the client holds and re-runs the
// computed passes so derived lines are consistent.
func (s *Session) RestoreSnapshot(lines []*Line) {
	restored := make([]*Line, len(lines))
	for i, l := range lines {
		restored[i] = l.clone()
	}
	s.lines = restored
	s.recomputeExchangeDiffs()
	s.autoBalance()
}

func (s *Session) findLine(index string) (*Line, int) {
	for i, l := range s.lines {
		if l.Index == index {
			return l, i
		}
	}
	return nil, -1
}

func (s *Session) removeAt(i int) {
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}

// exchangeFor returns the exchange-diff line paired with the given new_aml
// line, if any.
func (s *Session) exchangeFor(line *Line) *Line {
	if line.SourceAml == nil {
		return nil
	}
	for _, l := range s.lines {
		if l.Flag == FlagExchangeDiff && l.SourceAml != nil && l.SourceAml.ID == line.SourceAml.ID {
			return l
		}
	}
	return nil
}

func (s *Session) newAmlLines() []*Line {
	var out []*Line
	for _, l := range s.lines {
		if l.Flag == FlagNewAml {
			out = append(out, l)
		}
	}
	return out
}
