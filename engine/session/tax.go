package session

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// recomputeTaxes re-projects the tax lines from the manual base lines
// through the external tax engine. Base updates are applied first, then
// deletions, additions and updates, in that order.
func (s *Session) recomputeTaxes() error {
	if s.deps.Taxes == nil {
		return nil
	}
	req := common.TaxComputationRequest{}
	for _, line := range s.lines {
		switch {
		case line.Flag == FlagManual && line.TaxRepartitionLineID == 0:
			req.BaseLines = append(req.BaseLines, s.taxBaseLine(line))
		case line.Flag == FlagTaxLine:
			req.TaxLines = append(req.TaxLines, common.ExistingTaxLine{
				Index:                line.Index,
				TaxID:                line.TaxID,
				TaxRepartitionLineID: line.TaxRepartitionLineID,
				GroupTaxID:           line.GroupTaxID,
				Currency:             line.Currency,
				AmountCurrency:       line.AmountCurrency,
			})
		}
	}
	if len(req.BaseLines) == 0 && len(req.TaxLines) == 0 {
		return nil
	}

	res, err := s.deps.Taxes.Compute(req)
	if err != nil {
		return fmt.Errorf("tax computation: %w", err)
	}

	for _, upd := range res.BaseUpdates {
		line, _ := s.findLine(upd.Index)
		if line == nil {
			continue
		}
		line.AmountCurrency = upd.AmountCurrency
		line.Balance = s.kernel.StLineBalance(line.Currency, line.AmountCurrency)
		line.TaxTags = upd.TaxTags
	}
	for _, index := range res.ToDelete {
		if _, i := s.findLine(index); i >= 0 {
			s.removeAt(i)
		}
	}
	for _, vals := range res.ToAdd {
		s.lines = append(s.lines, &Line{
			Index:                newIndex(),
			Flag:                 FlagTaxLine,
			Name:                 vals.Name,
			Date:                 s.st.Date,
			Account:              vals.Account,
			Partner:              s.st.Partner,
			Currency:             vals.Currency,
			AmountCurrency:       vals.AmountCurrency,
			Balance:              s.kernel.StLineBalance(vals.Currency, vals.AmountCurrency),
			TaxID:                vals.TaxID,
			TaxRepartitionLineID: vals.TaxRepartitionLineID,
			GroupTaxID:           vals.GroupTaxID,
			TaxTags:              vals.TaxTags,
		})
	}
	for _, upd := range res.ToUpdate {
		line, _ := s.findLine(upd.Index)
		if line == nil {
			continue
		}
		line.AmountCurrency = upd.AmountCurrency
		line.Balance = s.kernel.StLineBalance(line.Currency, line.AmountCurrency)
		line.TaxTags = upd.TaxTags
	}
	return nil
}

// taxBaseLine projects a manual line into the tax engine's input shape.
// Sale taxes on a positive balance and purchase taxes on a negative one are
// refunds; the price-included special mode is kept only while the line still
// remembers it and carries taxes.
func (s *Session) taxBaseLine(line *Line) common.TaxBaseLine {
	specialMode := "total_excluded"
	if line.ForcePriceIncludedTaxes && len(line.TaxIDs) > 0 {
		specialMode = "total_included"
	}
	return common.TaxBaseLine{
		Index:                line.Index,
		PriceUnit:            basePriceUnit(line),
		Quantity:             decimal.NewFromInt(1),
		Currency:             line.Currency,
		TaxIDs:               line.TaxIDs,
		IsRefund:             line.Balance.Sign() > 0,
		SpecialMode:          specialMode,
		Partner:              line.Partner,
		AnalyticDistribution: line.AnalyticDistribution,
	}
}

// basePriceUnit is the remembered pre-tax base when the line has one, else
// the current amount.
func basePriceUnit(line *Line) decimal.Decimal {
	if line.ForcePriceIncludedTaxes && !line.TaxBaseAmountCurrency.IsZero() {
		return line.TaxBaseAmountCurrency
	}
	return line.AmountCurrency
}
