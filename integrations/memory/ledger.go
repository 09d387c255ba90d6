// Package memory is an in-memory host ledger. It backs the engine's tests
// and the demo command, and defines the reference semantics the postgres
// store persists.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// Move is a journal entry held by the ledger.
type Move struct {
	ID      int64
	Name    string
	Date    time.Time
	Lines   []*common.Aml
	Checked bool
}

// Partial records one partial reconciliation between two amls.
type Partial struct {
	ID             int64
	DebitAmlID     int64
	CreditAmlID    int64
	Amount         decimal.Decimal
	ExchangeMoveID int64
}

// Ledger is a process-local double of the host's persistence and messaging.
type Ledger struct {
	mu sync.Mutex

	seq        int64
	moves      map[int64]*Move
	amls       map[int64]*common.Aml
	statements map[int64]*common.StatementLine
	partials   []*Partial
	partners   map[int64]*common.Partner
	accounts   map[int64]*common.Account
	invoices   []*Invoice

	// Rates holds market rates keyed by "FROM->TO".
	Rates map[string]decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{
		moves:      map[int64]*Move{},
		amls:       map[int64]*common.Aml{},
		statements: map[int64]*common.StatementLine{},
		partners:   map[int64]*common.Partner{},
		accounts:   map[int64]*common.Account{},
		Rates:      map[string]decimal.Decimal{},
	}
}

func (l *Ledger) nextID() int64 {
	l.seq++
	return l.seq
}

// Seed helpers

func (l *Ledger) AddAccount(acc *common.Account) *common.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc.ID == 0 {
		acc.ID = l.nextID()
	}
	l.accounts[acc.ID] = acc
	return acc
}

func (l *Ledger) AddPartner(p *common.Partner) *common.Partner {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.ID == 0 {
		p.ID = l.nextID()
	}
	l.partners[p.ID] = p
	return p
}

// AddOpenAml seeds an open receivable/payable with its residual equal to its
// amount.
func (l *Ledger) AddOpenAml(aml *common.Aml) *common.Aml {
	l.mu.Lock()
	defer l.mu.Unlock()
	if aml.ID == 0 {
		aml.ID = l.nextID()
	}
	if aml.MoveID == 0 {
		aml.MoveID = l.nextID()
		l.moves[aml.MoveID] = &Move{ID: aml.MoveID, Name: aml.Name, Date: aml.Date, Lines: []*common.Aml{aml}}
	}
	if aml.AmountResidual.IsZero() {
		aml.AmountResidual = aml.Balance
	}
	if aml.AmountResidualCurrency.IsZero() {
		aml.AmountResidualCurrency = aml.AmountCurrency
	}
	l.amls[aml.ID] = aml
	return aml
}

// AddStatementLine seeds a statement line and its move (liquidity on the
// journal's default account, remainder on suspense).
func (l *Ledger) AddStatementLine(st *common.StatementLine) *common.StatementLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st.ID == 0 {
		st.ID = l.nextID()
	}
	if st.MoveID == 0 {
		st.MoveID = l.nextID()
	}
	amounts := st.AccountingAmounts()
	liquidity := &common.Aml{
		ID:             l.nextID(),
		MoveID:         st.MoveID,
		Name:           st.PaymentRef,
		Date:           st.Date,
		Account:        st.Journal.LiquidityAccount,
		Partner:        st.Partner,
		Currency:       amounts.JournalCurrency,
		AmountCurrency: amounts.JournalAmount,
		Balance:        amounts.CompanyAmount,
	}
	suspense := &common.Aml{
		ID:             l.nextID(),
		MoveID:         st.MoveID,
		Name:           st.PaymentRef,
		Date:           st.Date,
		Account:        st.Journal.SuspenseAccount,
		Partner:        st.Partner,
		Currency:       amounts.TransactionCurrency,
		AmountCurrency: amounts.TransactionAmount.Neg(),
		Balance:        amounts.CompanyAmount.Neg(),
	}
	l.amls[liquidity.ID] = liquidity
	l.amls[suspense.ID] = suspense
	l.moves[st.MoveID] = &Move{
		ID:    st.MoveID,
		Name:  st.PaymentRef,
		Date:  st.Date,
		Lines: []*common.Aml{liquidity, suspense},
	}
	l.statements[st.ID] = st
	return st
}

// Lookup surface consumed by the command bus.

func (l *Ledger) StatementLine(_ context.Context, id int64) (*common.StatementLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.statements[id]
	if !ok {
		return nil, fmt.Errorf("statement line %d not found", id)
	}
	return st, nil
}

func (l *Ledger) Account(id int64) *common.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id]
}

func (l *Ledger) Partner(id int64) *common.Partner {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.partners[id]
}

func (l *Ledger) Move(id int64) *Move {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moves[id]
}

func (l *Ledger) Partials() []*Partial {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Partial(nil), l.partials...)
}

// Rate implements common.RateProvider. Unknown pairs fall back to 1.
func (l *Ledger) Rate(from, to *common.Currency, _ time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from.Equal(to) {
		return decimal.NewFromInt(1)
	}
	if rate, ok := l.Rates[from.Code+"->"+to.Code]; ok {
		return rate
	}
	if rate, ok := l.Rates[to.Code+"->"+from.Code]; ok && !rate.IsZero() {
		return decimal.NewFromInt(1).Div(rate)
	}
	return decimal.NewFromInt(1)
}

// CandidateAmls implements reconmodel.AmlSource: open amls, optionally
// narrowed to the partner.
func (l *Ledger) CandidateAmls(st *common.StatementLine, partner *common.Partner) ([]*common.Aml, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*common.Aml
	for _, aml := range l.amls {
		if aml.Reconciled || aml.Account == nil {
			continue
		}
		if aml.Account.Type != common.AccountReceivable && aml.Account.Type != common.AccountPayable {
			continue
		}
		if aml.MoveID == st.MoveID {
			continue
		}
		if partner != nil && (aml.Partner == nil || aml.Partner.ID != partner.ID) {
			continue
		}
		out = append(out, aml)
	}
	return out, nil
}
