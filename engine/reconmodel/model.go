// Package reconmodel holds the reconciliation models: user-defined templates
// producing counterpart lines or write-offs for a statement line, and the
// rule engine matching them against open amls.
package reconmodel

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

type RuleType string

const (
	WriteoffButton     RuleType = "writeoff_button"
	WriteoffSuggestion RuleType = "writeoff_suggestion"
	InvoiceMatching    RuleType = "invoice_matching"
)

type CounterpartType string

const (
	CounterpartNone     CounterpartType = ""
	CounterpartSale     CounterpartType = "sale"
	CounterpartPurchase CounterpartType = "purchase"
)

// LineTemplate describes one write-off or counterpart line of a model.
type LineTemplate struct {
	Label                string
	Account              *common.Account
	AmountType           string // "percentage" or "fixed"
	Amount               decimal.Decimal
	TaxIDs               []int64
	AnalyticDistribution map[string]decimal.Decimal
}

// Model is a reconciliation model.
type Model struct {
	ID              int64
	Name            string
	RuleType        RuleType
	CounterpartType CounterpartType
	ToCheck         bool
	AutoReconcile   bool

	// Matching criteria for suggestion/invoice-matching models.
	MatchLabel   string
	MatchPartner bool

	Lines []LineTemplate
}

// WriteoffValue is a concrete line value produced for a residual amount.
type WriteoffValue struct {
	Name                 string
	Account              *common.Account
	AmountCurrency       decimal.Decimal
	TaxIDs               []int64
	AnalyticDistribution map[string]decimal.Decimal
}

// WriteoffValues materialises the model's templates for the given residual,
// expressed in the session's transaction currency. Percentage templates
// consume a share of the residual; fixed templates take the configured
// amount with the residual's sign.
func (m *Model) WriteoffValues(residual decimal.Decimal, currency *common.Currency, fallbackName string) []WriteoffValue {
	values := make([]WriteoffValue, 0, len(m.Lines))
	for _, tmpl := range m.Lines {
		var amount decimal.Decimal
		switch tmpl.AmountType {
		case "fixed":
			amount = tmpl.Amount
			if residual.Sign() < 0 {
				amount = amount.Neg()
			}
		default: // percentage
			amount = currency.Round(residual.Mul(tmpl.Amount).Div(decimal.NewFromInt(100)))
		}
		name := tmpl.Label
		if name == "" {
			name = fallbackName
		}
		values = append(values, WriteoffValue{
			Name:                 name,
			Account:              tmpl.Account,
			AmountCurrency:       amount,
			TaxIDs:               append([]int64(nil), tmpl.TaxIDs...),
			AnalyticDistribution: tmpl.AnalyticDistribution,
		})
	}
	return values
}

// MatchResult is the rule engine's proposal for a statement line.
type MatchResult struct {
	AmlIDs        []int64
	Model         *Model
	Status        string // "" or "write_off"
	AutoReconcile bool
}

// AmlSource lists candidate open amls for a statement line.
type AmlSource interface {
	CandidateAmls(st *common.StatementLine, partner *common.Partner) ([]*common.Aml, error)
}

// Engine runs the non-button models, in order, against a statement line.
type Engine struct {
	Models []*Model
	Source AmlSource
}

// ModelByID finds a configured model.
func (e *Engine) ModelByID(id int64) *Model {
	for _, m := range e.Models {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// ApplyRules proposes counterpart amls and/or a write-off model for the
// statement line. Models with rule_type writeoff_button are skipped; those
// are user-triggered only.
func (e *Engine) ApplyRules(st *common.StatementLine, partner *common.Partner) (*MatchResult, error) {
	res := &MatchResult{}
	if e == nil || e.Source == nil {
		return res, nil
	}
	candidates, err := e.Source.CandidateAmls(st, partner)
	if err != nil {
		return nil, err
	}
	for _, model := range e.Models {
		switch model.RuleType {
		case WriteoffButton:
			continue
		case InvoiceMatching:
			ids := matchAmls(st, partner, model, candidates)
			if len(ids) == 0 {
				continue
			}
			res.AmlIDs = ids
			res.AutoReconcile = res.AutoReconcile || model.AutoReconcile
			return res, nil
		case WriteoffSuggestion:
			if !labelMatches(st.PaymentRef, model.MatchLabel) {
				continue
			}
			if model.MatchPartner && (partner == nil || st.Partner == nil || partner.ID != st.Partner.ID) {
				continue
			}
			res.Model = model
			res.Status = "write_off"
			res.AutoReconcile = res.AutoReconcile || model.AutoReconcile
			return res, nil
		}
	}
	return res, nil
}

// matchAmls picks candidates whose name appears in the payment reference, or
// failing that, a single candidate whose residual matches the statement
// amount exactly.
func matchAmls(st *common.StatementLine, partner *common.Partner, model *Model, candidates []*common.Aml) []int64 {
	ref := strings.ToUpper(st.PaymentRef)
	var ids []int64
	for _, aml := range candidates {
		if model.MatchPartner && (partner == nil || aml.Partner == nil || aml.Partner.ID != partner.ID) {
			continue
		}
		if aml.Name != "" && ref != "" && strings.Contains(ref, strings.ToUpper(aml.Name)) {
			ids = append(ids, aml.ID)
		}
	}
	if len(ids) > 0 {
		return ids
	}
	amounts := st.AccountingAmounts()
	for _, aml := range candidates {
		if model.MatchPartner && (partner == nil || aml.Partner == nil || aml.Partner.ID != partner.ID) {
			continue
		}
		if !aml.Currency.Equal(amounts.TransactionCurrency) {
			continue
		}
		if amounts.TransactionCurrency.Compare(aml.AmountResidualCurrency, amounts.TransactionAmount) == 0 {
			return []int64{aml.ID}
		}
	}
	return nil
}

func labelMatches(paymentRef, matchLabel string) bool {
	if matchLabel == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(paymentRef), strings.ToUpper(matchLabel))
}
