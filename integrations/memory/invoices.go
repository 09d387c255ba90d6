package memory

import (
	"context"
	"time"

	"github.com/aqlanhadi/rekon/engine/session"
)

// Invoice is a draft counterpart document created by a sale/purchase model.
type Invoice struct {
	ID       int64
	MoveType string
	Partner  int64
	Date     time.Time
	Lines    []session.InvoiceLineVals
}

// CreateDraftInvoice implements session.InvoiceFactory.
func (l *Ledger) CreateDraftInvoice(_ context.Context, req session.InvoiceRequest) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv := &Invoice{
		ID:       l.nextID(),
		MoveType: req.MoveType,
		Lines:    req.Lines,
	}
	if req.Partner != nil {
		inv.Partner = req.Partner.ID
	}
	if req.Date != "" {
		if date, err := time.Parse("2006-01-02", req.Date); err == nil {
			inv.Date = date
		}
	}
	l.invoices = append(l.invoices, inv)
	return inv.ID, nil
}

// Invoices returns the draft invoices created so far.
func (l *Ledger) Invoices() []*Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Invoice(nil), l.invoices...)
}
