package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// Flag tags the role of a line inside the working set.
type Flag string

const (
	FlagLiquidity    Flag = "liquidity"
	FlagAml          Flag = "aml"
	FlagNewAml       Flag = "new_aml"
	FlagExchangeDiff Flag = "exchange_diff"
	FlagManual       Flag = "manual"
	FlagTaxLine      Flag = "tax_line"
	FlagEarlyPayment Flag = "early_payment"
	FlagAutoBalance  Flag = "auto_balance"
)

// Line is one entry of the working set. Index is an opaque stable handle the
// client passes back; indices are never reused across deletions.
type Line struct {
	Index string    `json:"index"`
	Flag  Flag      `json:"flag"`
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`

	Account *common.Account `json:"account"`
	Partner *common.Partner `json:"partner,omitempty"`

	Currency       *common.Currency `json:"currency"`
	AmountCurrency decimal.Decimal  `json:"amount_currency"`
	Balance        decimal.Decimal  `json:"balance"`

	// Counterpart source, set on new_aml and exchange_diff lines.
	SourceAml            *common.Aml     `json:"source_aml,omitempty"`
	SourceBalance        decimal.Decimal `json:"source_balance,omitempty"`
	SourceAmountCurrency decimal.Decimal `json:"source_amount_currency,omitempty"`

	TaxIDs                []int64         `json:"tax_ids,omitempty"`
	TaxTags               []string        `json:"tax_tags,omitempty"`
	TaxID                 int64           `json:"tax_id,omitempty"`
	TaxRepartitionLineID  int64           `json:"tax_repartition_line_id,omitempty"`
	GroupTaxID            int64           `json:"group_tax_id,omitempty"`
	TaxBaseAmountCurrency decimal.Decimal `json:"tax_base_amount_currency,omitempty"`

	AnalyticDistribution map[string]decimal.Decimal `json:"analytic_distribution,omitempty"`

	ReconcileModelID        int64 `json:"reconcile_model_id,omitempty"`
	ManuallyModified        bool  `json:"manually_modified,omitempty"`
	ForcePriceIncludedTaxes bool  `json:"force_price_included_taxes,omitempty"`
}

func newIndex() string { return uuid.NewString() }

func (l *Line) clone() *Line {
	c := *l
	if l.TaxIDs != nil {
		c.TaxIDs = append([]int64(nil), l.TaxIDs...)
	}
	if l.TaxTags != nil {
		c.TaxTags = append([]string(nil), l.TaxTags...)
	}
	if l.AnalyticDistribution != nil {
		c.AnalyticDistribution = make(map[string]decimal.Decimal, len(l.AnalyticDistribution))
		for k, v := range l.AnalyticDistribution {
			c.AnalyticDistribution[k] = v
		}
	}
	return &c
}

func (l *Line) hasTax(taxID int64) bool {
	for _, id := range l.TaxIDs {
		if id == taxID {
			return true
		}
	}
	return false
}

// isCounterpart reports whether the line participates in the open-balance
// computation.
func (l *Line) isCounterpart() bool {
	return l.Flag != FlagLiquidity && l.Flag != FlagAutoBalance
}
