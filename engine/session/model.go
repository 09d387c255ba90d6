package session

import (
	"context"
	"fmt"

	"github.com/aqlanhadi/rekon/engine/common"
	"github.com/aqlanhadi/rekon/engine/reconmodel"
)

// SelectReconcileModel applies a reconciliation model to the session: a
// write-off model materialises manual lines for the residual, a sale or
// purchase model asks the host to create a counterpart document and returns
// the action to open it.
func (s *Session) SelectReconcileModel(ctx context.Context, model *reconmodel.Model) (*common.Action, error) {
	if s.st.IsReconciled {
		return nil, ErrAlreadyReconciled
	}
	snap := s.snapshot()

	var action *common.Action
	var err error
	switch model.CounterpartType {
	case reconmodel.CounterpartSale, reconmodel.CounterpartPurchase:
		action, err = s.applyCounterpartModel(ctx, model)
	default:
		err = s.applyWriteoffModel(model)
	}
	if err != nil {
		s.restore(snap)
		return nil, err
	}
	if model.ToCheck {
		s.toCheck = true
	}
	return action, nil
}

// applyWriteoffModel materialises the model's write-off templates for the
// current residual. Lines sourced from a different model are removed first;
// the created lines remember their pre-tax base so tax removal can restore
// the original amount.
func (s *Session) applyWriteoffModel(model *reconmodel.Model) error {
	for i := len(s.lines) - 1; i >= 0; i-- {
		line := s.lines[i]
		if line.ReconcileModelID != 0 && line.ReconcileModelID != model.ID {
			s.removeAt(i)
		}
	}

	a := s.kernel.Amounts()
	_, residual := s.openBalances()
	if a.TransactionCurrency.IsZero(residual) {
		s.autoBalance()
		return nil
	}

	for _, value := range model.WriteoffValues(residual, a.TransactionCurrency, s.st.PaymentRef) {
		s.lines = append(s.lines, &Line{
			Index:                   newIndex(),
			Flag:                    FlagManual,
			Name:                    value.Name,
			Date:                    s.st.Date,
			Account:                 value.Account,
			Partner:                 s.st.Partner,
			Currency:                a.TransactionCurrency,
			AmountCurrency:          value.AmountCurrency,
			Balance:                 s.kernel.StLineBalance(a.TransactionCurrency, value.AmountCurrency),
			TaxIDs:                  value.TaxIDs,
			AnalyticDistribution:    value.AnalyticDistribution,
			ReconcileModelID:        model.ID,
			ForcePriceIncludedTaxes: true,
			TaxBaseAmountCurrency:   value.AmountCurrency,
		})
	}

	if err := s.recomputeTaxes(); err != nil {
		return err
	}
	s.autoBalance()
	return nil
}

// applyCounterpartModel creates a draft counter-document (invoice or refund)
// for the statement amount. The move type follows the statement sign crossed
// with the model's counterpart type; the engine never posts the document.
func (s *Session) applyCounterpartModel(ctx context.Context, model *reconmodel.Model) (*common.Action, error) {
	if s.deps.Invoices == nil {
		return nil, fmt.Errorf("model %q: no invoice factory available", model.Name)
	}
	a := s.kernel.Amounts()
	inbound := s.st.Amount.Sign() > 0

	var moveType string
	if model.CounterpartType == reconmodel.CounterpartSale {
		if inbound {
			moveType = "out_invoice"
		} else {
			moveType = "out_refund"
		}
	} else {
		if inbound {
			moveType = "in_refund"
		} else {
			moveType = "in_invoice"
		}
	}

	total := a.TransactionAmount.Abs()
	req := InvoiceRequest{
		MoveType: moveType,
		Partner:  s.st.Partner,
		Date:     s.st.Date.Format("2006-01-02"),
	}
	for _, tmpl := range model.Lines {
		priceUnit := total
		if s.deps.PriceSolver != nil && len(tmpl.TaxIDs) > 0 {
			priceUnit = s.deps.PriceSolver.PriceUnitFromTotal(total, a.TransactionCurrency, tmpl.TaxIDs)
		}
		name := tmpl.Label
		if name == "" {
			name = s.st.PaymentRef
		}
		req.Lines = append(req.Lines, InvoiceLineVals{
			Name:      name,
			PriceUnit: priceUnit,
			TaxIDs:    tmpl.TaxIDs,
		})
	}
	if len(req.Lines) == 0 {
		req.Lines = append(req.Lines, InvoiceLineVals{Name: s.st.PaymentRef, PriceUnit: total})
	}

	docID, err := s.deps.Invoices.CreateDraftInvoice(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create counterpart document: %w", err)
	}
	return &common.Action{
		Type:     "open",
		ResModel: "account.move",
		ResID:    docID,
		ViewMode: "form",
		Name:     model.Name,
	}, nil
}
