// Package taxes is the reference tax engine: percent and fixed taxes,
// price-included back-solving, refund detection, and repartition with tag
// propagation. It answers the four-phase computation the session's tax
// recomputer consumes.
package taxes

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

type AmountType string

const (
	AmountPercent AmountType = "percent"
	AmountFixed   AmountType = "fixed"
)

type TaxUse string

const (
	UseSale     TaxUse = "sale"
	UsePurchase TaxUse = "purchase"
)

// RepartitionLine routes a share of the computed tax onto an account with
// its reporting tags.
type RepartitionLine struct {
	ID          int64
	Factor      decimal.Decimal // percentage of the tax amount, 100 for the whole
	Account     *common.Account
	InvoiceTags []string
	RefundTags  []string
}

// Tax is one configured tax.
type Tax struct {
	ID               int64
	Name             string
	Amount           decimal.Decimal // percent value or fixed amount per unit
	AmountType       AmountType
	TypeTaxUse       TaxUse
	PriceInclude     bool
	GroupID          int64 // non-zero when the tax belongs to a group
	BaseInvoiceTags  []string
	BaseRefundTags   []string
	RepartitionLines []RepartitionLine
}

// Engine computes tax lines from base lines.
type Engine struct {
	taxes map[int64]*Tax
}

func NewEngine(taxes ...*Tax) *Engine {
	m := make(map[int64]*Tax, len(taxes))
	for _, t := range taxes {
		m[t.ID] = t
	}
	return &Engine{taxes: m}
}

func (e *Engine) Tax(id int64) *Tax { return e.taxes[id] }

// taxKey aggregates computed tax amounts per repartition line and account.
type taxKey struct {
	taxID         int64
	repartitionID int64
	accountID     int64
}

type taxAccum struct {
	tax     *Tax
	rep     RepartitionLine
	amount  decimal.Decimal
	tags    []string
	isGroup bool
}

// Compute projects the base lines into tax lines and diffs them against the
// existing ones. Base amounts are rewritten for price-included taxes; the
// result lists lines to delete, add and update, applied in that order by the
// caller.
func (e *Engine) Compute(req common.TaxComputationRequest) (common.TaxComputationResult, error) {
	res := common.TaxComputationResult{}
	accum := map[taxKey]*taxAccum{}
	var order []taxKey

	for _, base := range req.BaseLines {
		taxes, err := e.resolve(base.TaxIDs)
		if err != nil {
			return res, err
		}
		if len(taxes) == 0 {
			// No taxes left on the base: only the tags are cleared.
			res.BaseUpdates = append(res.BaseUpdates, common.BaseLineUpdate{
				Index:          base.Index,
				AmountCurrency: base.PriceUnit.Mul(base.Quantity),
			})
			continue
		}

		refund := isRefund(taxes, base)
		baseAmount, taxAmounts := e.split(base, taxes)

		baseTags := make([]string, 0, 4)
		for _, tax := range taxes {
			if refund {
				baseTags = append(baseTags, tax.BaseRefundTags...)
			} else {
				baseTags = append(baseTags, tax.BaseInvoiceTags...)
			}
		}
		res.BaseUpdates = append(res.BaseUpdates, common.BaseLineUpdate{
			Index:          base.Index,
			AmountCurrency: baseAmount,
			TaxTags:        baseTags,
		})

		for i, tax := range taxes {
			for _, rep := range tax.RepartitionLines {
				share := base.Currency.Round(
					taxAmounts[i].Mul(rep.Factor).Div(decimal.NewFromInt(100)))
				if share.IsZero() {
					continue
				}
				var accountID int64
				if rep.Account != nil {
					accountID = rep.Account.ID
				}
				key := taxKey{taxID: tax.ID, repartitionID: rep.ID, accountID: accountID}
				entry, ok := accum[key]
				if !ok {
					tags := rep.InvoiceTags
					if refund {
						tags = rep.RefundTags
					}
					entry = &taxAccum{tax: tax, rep: rep, tags: tags, isGroup: tax.GroupID != 0}
					accum[key] = entry
					order = append(order, key)
				}
				entry.amount = entry.amount.Add(share)
			}
		}
	}

	// Diff against the existing tax lines.
	matched := map[taxKey]string{}
	for _, existing := range req.TaxLines {
		key := e.existingKey(existing)
		if entry, ok := accum[key]; ok {
			matched[key] = existing.Index
			res.ToUpdate = append(res.ToUpdate, common.TaxLineUpdate{
				Index:          existing.Index,
				AmountCurrency: entry.amount,
				TaxTags:        entry.tags,
			})
		} else {
			res.ToDelete = append(res.ToDelete, existing.Index)
		}
	}
	for _, key := range order {
		if _, ok := matched[key]; ok {
			continue
		}
		entry := accum[key]
		groupID := int64(0)
		if entry.isGroup {
			groupID = entry.tax.GroupID
		}
		res.ToAdd = append(res.ToAdd, common.TaxLineVals{
			Name:                 entry.tax.Name,
			Account:              entry.rep.Account,
			Currency:             firstCurrency(req.BaseLines),
			AmountCurrency:       entry.amount,
			TaxID:                entry.tax.ID,
			TaxRepartitionLineID: entry.rep.ID,
			GroupTaxID:           groupID,
			TaxTags:              entry.tags,
		})
	}
	return res, nil
}

func (e *Engine) existingKey(existing common.ExistingTaxLine) taxKey {
	key := taxKey{taxID: existing.TaxID, repartitionID: existing.TaxRepartitionLineID}
	if tax := e.taxes[existing.TaxID]; tax != nil {
		for _, rep := range tax.RepartitionLines {
			if rep.ID == existing.TaxRepartitionLineID && rep.Account != nil {
				key.accountID = rep.Account.ID
			}
		}
	}
	return key
}

func (e *Engine) resolve(ids []int64) ([]*Tax, error) {
	out := make([]*Tax, 0, len(ids))
	for _, id := range ids {
		tax, ok := e.taxes[id]
		if !ok {
			return nil, fmt.Errorf("unknown tax %d", id)
		}
		out = append(out, tax)
	}
	return out, nil
}

// isRefund applies the sign rule: a sale tax with a positive price (positive
// balance) or a purchase tax with a negative one flags a refund.
func isRefund(taxes []*Tax, base common.TaxBaseLine) bool {
	sign := base.PriceUnit.Sign()
	for _, tax := range taxes {
		if tax.TypeTaxUse == UseSale && sign > 0 {
			return true
		}
		if tax.TypeTaxUse == UsePurchase && sign < 0 {
			return true
		}
	}
	return false
}

// split derives the tax-excluded base and the per-tax amounts. In
// total_included mode the whole price is treated as tax-inclusive and a
// back-solve recovers the base; otherwise only taxes flagged price-included
// are peeled off.
func (e *Engine) split(base common.TaxBaseLine, taxes []*Tax) (decimal.Decimal, []decimal.Decimal) {
	price := base.PriceUnit.Mul(base.Quantity)
	hundred := decimal.NewFromInt(100)

	includedPercent := decimal.Zero
	includedFixed := decimal.Zero
	for _, tax := range taxes {
		included := tax.PriceInclude || base.SpecialMode == "total_included"
		if !included {
			continue
		}
		switch tax.AmountType {
		case AmountFixed:
			includedFixed = includedFixed.Add(signedFixed(tax.Amount, price))
		default:
			includedPercent = includedPercent.Add(tax.Amount)
		}
	}

	baseAmount := price.Sub(includedFixed).
		Div(decimal.NewFromInt(1).Add(includedPercent.Div(hundred)))
	baseAmount = base.Currency.Round(baseAmount)

	amounts := make([]decimal.Decimal, len(taxes))
	for i, tax := range taxes {
		switch tax.AmountType {
		case AmountFixed:
			amounts[i] = signedFixed(tax.Amount, price)
		default:
			amounts[i] = base.Currency.Round(baseAmount.Mul(tax.Amount).Div(hundred))
		}
	}
	return baseAmount, amounts
}

// signedFixed gives a fixed tax the sign of the priced line.
func signedFixed(amount, price decimal.Decimal) decimal.Decimal {
	if price.Sign() < 0 {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

func firstCurrency(bases []common.TaxBaseLine) *common.Currency {
	for _, b := range bases {
		if b.Currency != nil {
			return b.Currency
		}
	}
	return nil
}

// PriceUnitFromTotal back-solves a tax-included unit price: the returned
// price_unit plus the included-only taxes computed on it equals total.
func (e *Engine) PriceUnitFromTotal(total decimal.Decimal, currency *common.Currency, taxIDs []int64) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	includedPercent := decimal.Zero
	includedFixed := decimal.Zero
	for _, id := range taxIDs {
		tax, ok := e.taxes[id]
		if !ok || !tax.PriceInclude {
			continue
		}
		switch tax.AmountType {
		case AmountFixed:
			includedFixed = includedFixed.Add(signedFixed(tax.Amount, total))
		default:
			includedPercent = includedPercent.Add(tax.Amount)
		}
	}
	price := total.Sub(includedFixed).
		Div(decimal.NewFromInt(1).Add(includedPercent.Div(hundred)))
	return currency.Round(price)
}
