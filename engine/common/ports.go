package common

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateProvider resolves market rates on a given date. The returned rate is
// the amount of `to` one unit of `from` buys.
type RateProvider interface {
	Rate(from, to *Currency, date time.Time) decimal.Decimal
}

// TaxBaseLine is the tax-engine projection of a manual base line.
type TaxBaseLine struct {
	Index                string
	PriceUnit            decimal.Decimal
	Quantity             decimal.Decimal
	Currency             *Currency
	TaxIDs               []int64
	IsRefund             bool
	SpecialMode          string // "total_included" or "total_excluded"
	Partner              *Partner
	AnalyticDistribution map[string]decimal.Decimal
}

// ExistingTaxLine identifies a tax line already present in the working set.
type ExistingTaxLine struct {
	Index                string
	TaxID                int64
	TaxRepartitionLineID int64
	GroupTaxID           int64
	Currency             *Currency
	AmountCurrency       decimal.Decimal
}

// TaxLineVals is a tax line the tax engine wants added.
type TaxLineVals struct {
	Name                 string
	Account              *Account
	Currency             *Currency
	AmountCurrency       decimal.Decimal
	TaxID                int64
	TaxRepartitionLineID int64
	GroupTaxID           int64
	TaxTags              []string
}

// BaseLineUpdate rewrites a base line's amount and tags after tax projection.
type BaseLineUpdate struct {
	Index          string
	AmountCurrency decimal.Decimal
	TaxTags        []string
}

// TaxLineUpdate rewrites an existing tax line in place.
type TaxLineUpdate struct {
	Index          string
	AmountCurrency decimal.Decimal
	TaxTags        []string
}

type TaxComputationRequest struct {
	BaseLines []TaxBaseLine
	TaxLines  []ExistingTaxLine
}

// TaxComputationResult is the four-phase answer of the tax engine. The caller
// applies base updates first, then deletions, then additions, then updates.
type TaxComputationResult struct {
	BaseUpdates []BaseLineUpdate
	ToDelete    []string
	ToAdd       []TaxLineVals
	ToUpdate    []TaxLineUpdate
}

// TaxEngine re-projects tax lines from base lines.
type TaxEngine interface {
	Compute(req TaxComputationRequest) (TaxComputationResult, error)
}

// EarlyPaymentLine is a counterpart line expressing an early-payment discount.
type EarlyPaymentLine struct {
	Name                 string
	Account              *Account
	AmountCurrency       decimal.Decimal
	TaxRepartitionLineID int64
	GroupTaxID           int64
	TaxTags              []string
}

// EarlyPaymentProvider derives the counterpart lines required to express the
// discount granted on the given amls. Amounts are in the transaction currency
// and must sum to totalDiscount.
type EarlyPaymentProvider interface {
	EarlyPaymentLines(st *StatementLine, amls []*Aml, totalDiscount decimal.Decimal) ([]EarlyPaymentLine, error)
}

// MoveLineVals is one to-be-created move line handed to the host ledger.
type MoveLineVals struct {
	Sequence             int                        `json:"sequence"`
	Name                 string                     `json:"name"`
	Account              *Account                   `json:"account"`
	Partner              *Partner                   `json:"partner,omitempty"`
	Date                 time.Time                  `json:"date"`
	Currency             *Currency                  `json:"currency"`
	AmountCurrency       decimal.Decimal            `json:"amount_currency"`
	Balance              decimal.Decimal            `json:"balance"`
	TaxRepartitionLineID int64                      `json:"tax_repartition_line_id,omitempty"`
	TaxTags              []string                   `json:"tax_tags,omitempty"`
	AnalyticDistribution map[string]decimal.Decimal `json:"analytic_distribution,omitempty"`
}

// ExchangeResidual is the FX component folded out of a counterpart line at
// validation, to be booked as a separate exchange-difference move.
type ExchangeResidual struct {
	Account                *Account
	CounterAccount         *Account
	Currency               *Currency
	AmountResidual         decimal.Decimal
	AmountResidualCurrency decimal.Decimal
	AnalyticDistribution   map[string]decimal.Decimal
}

// ReconcilePair links a created move line to the open aml it reconciles,
// optionally with an exchange residual to book alongside.
type ReconcilePair struct {
	Sequence  int
	SourceAml *Aml
	Exchange  *ExchangeResidual
}

// Ledger is the host's persistence boundary. Implementations must make
// RewriteStatementLines plus the subsequent Reconcile calls transactional.
type Ledger interface {
	// OpenAmls fetches open receivable/payable lines by id.
	OpenAmls(ctx context.Context, ids []int64) ([]*Aml, error)
	// SeekLines returns the already-posted view of the statement line's move:
	// the liquidity leg, any suspense legs, and the other legs.
	SeekLines(ctx context.Context, st *StatementLine) (liquidity, suspense, other []*Aml, err error)
	// RewriteStatementLines clears and rewrites the statement line's move
	// lines, returning the created amls in input order.
	RewriteStatementLines(ctx context.Context, st *StatementLine, lines []MoveLineVals) ([]*Aml, error)
	// CreateExchangeMove books an exchange-difference move for the residual
	// and returns its id and the counterpart leg of the move.
	CreateExchangeMove(ctx context.Context, st *StatementLine, residual ExchangeResidual) (int64, *Aml, error)
	// Reconcile matches a created line with its source aml and attaches the
	// exchange move, if any, to the resulting partial.
	Reconcile(ctx context.Context, created, source *Aml, exchangeMoveID int64) error
	// ResetStatementLine undoes a prior reconciliation, moving the
	// counterpart back to the suspense account.
	ResetStatementLine(ctx context.Context, st *StatementLine) error
	SetStatementPartner(ctx context.Context, st *StatementLine, partner *Partner) error
	CreatePartnerBank(ctx context.Context, partner *Partner, accountNumber string) error
	SetChecked(ctx context.Context, st *StatementLine, checked bool) error
}

// Action is an external action descriptor handed back to the caller.
type Action struct {
	Type      string `json:"type"`
	ResModel  string `json:"res_model,omitempty"`
	ResID     int64  `json:"res_id,omitempty"`
	ViewMode  string `json:"view_mode,omitempty"`
	Name      string `json:"name,omitempty"`
}
