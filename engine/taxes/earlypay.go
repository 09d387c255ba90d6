package taxes

import (
	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// EarlyPaymentConfig routes discount counterpart lines. Loss is used when
// the company grants the discount (money received), gain when it obtains one
// (money paid).
type EarlyPaymentConfig struct {
	LossAccount *common.Account
	GainAccount *common.Account
	// TaxIDs optionally re-adjusts taxes proportionally on the discount.
	TaxIDs []int64
}

// EarlyPaymentProvider derives the counterpart lines expressing an
// early-payment discount, one per discounted aml, with tax adjustment lines
// when the discount carries taxes.
type EarlyPaymentProvider struct {
	Engine *Engine
	Config EarlyPaymentConfig
}

// EarlyPaymentLines returns lines whose amounts sum to totalDiscount in the
// transaction currency. The discount offsets the counterpart, so its sign
// follows the open remainder, not the residual.
func (p *EarlyPaymentProvider) EarlyPaymentLines(st *common.StatementLine, amls []*common.Aml, totalDiscount decimal.Decimal) ([]common.EarlyPaymentLine, error) {
	amounts := st.AccountingAmounts()
	currency := amounts.TransactionCurrency

	account := p.Config.LossAccount
	if totalDiscount.Sign() < 0 {
		account = p.Config.GainAccount
	}
	if account == nil {
		return nil, nil
	}

	var out []common.EarlyPaymentLine
	allocated := decimal.Zero
	for i, aml := range amls {
		discount := aml.AmountResidualCurrency.Sub(aml.DiscountAmountCurrency)
		if i == len(amls)-1 {
			// The last line absorbs the rounding remainder.
			discount = totalDiscount.Sub(allocated)
		}
		discount = currency.Round(discount)
		allocated = allocated.Add(discount)
		if discount.IsZero() {
			continue
		}

		if len(p.Config.TaxIDs) > 0 && p.Engine != nil {
			base, taxLines := p.splitDiscount(discount, currency)
			out = append(out, common.EarlyPaymentLine{
				Name:           "Early payment discount: " + aml.Name,
				Account:        account,
				AmountCurrency: base,
			})
			out = append(out, taxLines...)
			continue
		}
		out = append(out, common.EarlyPaymentLine{
			Name:           "Early payment discount: " + aml.Name,
			Account:        account,
			AmountCurrency: discount,
		})
	}
	return out, nil
}

// splitDiscount peels the configured taxes out of a tax-inclusive discount.
func (p *EarlyPaymentProvider) splitDiscount(discount decimal.Decimal, currency *common.Currency) (decimal.Decimal, []common.EarlyPaymentLine) {
	base := common.TaxBaseLine{
		PriceUnit:   discount,
		Quantity:    decimal.NewFromInt(1),
		Currency:    currency,
		TaxIDs:      p.Config.TaxIDs,
		SpecialMode: "total_included",
	}
	taxes, err := p.Engine.resolve(p.Config.TaxIDs)
	if err != nil {
		return discount, nil
	}
	baseAmount, amounts := p.Engine.split(base, taxes)
	refund := isRefund(taxes, base)

	var lines []common.EarlyPaymentLine
	for i, tax := range taxes {
		for _, rep := range tax.RepartitionLines {
			share := currency.Round(amounts[i].Mul(rep.Factor).Div(decimal.NewFromInt(100)))
			if share.IsZero() {
				continue
			}
			tags := rep.InvoiceTags
			if refund {
				tags = rep.RefundTags
			}
			groupID := int64(0)
			if tax.GroupID != 0 {
				groupID = tax.GroupID
			}
			lines = append(lines, common.EarlyPaymentLine{
				Name:                 tax.Name,
				Account:              rep.Account,
				AmountCurrency:       share,
				TaxRepartitionLineID: rep.ID,
				GroupTaxID:           groupID,
				TaxTags:              tags,
			})
		}
	}
	return baseAmount, lines
}
