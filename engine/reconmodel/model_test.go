package reconmodel

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqlanhadi/rekon/engine/common"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	eur      = &common.Currency{Code: "EUR", DecimalPlaces: 2}
	feesAcc  = &common.Account{ID: 31, Code: "627000", Name: "Bank Fees"}
	deco     = &common.Partner{ID: 7, Name: "Deco Addict"}
	azure    = &common.Partner{ID: 8, Name: "Azure Interior"}
	stubLine = func(ref string, amount string, partner *common.Partner) *common.StatementLine {
		return &common.StatementLine{
			PaymentRef: ref,
			Amount:     dec(amount),
			Partner:    partner,
			Journal:    &common.Journal{},
			Company:    &common.Company{Currency: eur},
		}
	}
)

type stubSource struct {
	amls []*common.Aml
	err  error
}

func (s *stubSource) CandidateAmls(*common.StatementLine, *common.Partner) ([]*common.Aml, error) {
	return s.amls, s.err
}

func TestWriteoffValues_Percentage(t *testing.T) {
	model := &Model{
		ID:       1,
		RuleType: WriteoffButton,
		Lines: []LineTemplate{
			{Label: "Fees", Account: feesAcc, AmountType: "percentage", Amount: dec("100")},
		},
	}

	values := model.WriteoffValues(dec("-33.34"), eur, "fallback")

	require.Len(t, values, 1)
	assert.Equal(t, "Fees", values[0].Name)
	assert.True(t, values[0].AmountCurrency.Equal(dec("-33.34")))
	assert.Equal(t, feesAcc.ID, values[0].Account.ID)
}

func TestWriteoffValues_PercentageShare(t *testing.T) {
	model := &Model{
		Lines: []LineTemplate{
			{Account: feesAcc, AmountType: "percentage", Amount: dec("50")},
		},
	}

	values := model.WriteoffValues(dec("-33.33"), eur, "BNK/2024/0042")

	require.Len(t, values, 1)
	// Falls back to the payment ref when the template has no label.
	assert.Equal(t, "BNK/2024/0042", values[0].Name)
	// Banker's rounding on -16.665.
	assert.True(t, values[0].AmountCurrency.Equal(dec("-16.66")))
}

func TestWriteoffValues_FixedTakesResidualSign(t *testing.T) {
	model := &Model{
		Lines: []LineTemplate{
			{Account: feesAcc, AmountType: "fixed", Amount: dec("12.50")},
		},
	}

	values := model.WriteoffValues(dec("-200"), eur, "x")
	require.Len(t, values, 1)
	assert.True(t, values[0].AmountCurrency.Equal(dec("-12.50")))

	values = model.WriteoffValues(dec("200"), eur, "x")
	assert.True(t, values[0].AmountCurrency.Equal(dec("12.50")))
}

func TestModelByID(t *testing.T) {
	a := &Model{ID: 1}
	b := &Model{ID: 2}
	engine := &Engine{Models: []*Model{a, b}}

	assert.Same(t, b, engine.ModelByID(2))
	assert.Nil(t, engine.ModelByID(9))
}

func TestApplyRules_SkipsButtonModels(t *testing.T) {
	engine := &Engine{
		Models: []*Model{{ID: 1, RuleType: WriteoffButton, MatchLabel: "FEE"}},
		Source: &stubSource{},
	}

	res, err := engine.ApplyRules(stubLine("FEE 2024", "100", nil), nil)

	require.NoError(t, err)
	assert.Nil(t, res.Model)
	assert.Empty(t, res.AmlIDs)
}

func TestApplyRules_InvoiceMatchingByName(t *testing.T) {
	aml := &common.Aml{ID: 42, Name: "INV/2024/00012", Partner: deco, Currency: eur}
	engine := &Engine{
		Models: []*Model{{ID: 1, RuleType: InvoiceMatching, AutoReconcile: true}},
		Source: &stubSource{amls: []*common.Aml{aml}},
	}

	res, err := engine.ApplyRules(stubLine("payment inv/2024/00012", "100", nil), nil)

	require.NoError(t, err)
	assert.Equal(t, []int64{42}, res.AmlIDs)
	assert.True(t, res.AutoReconcile)
}

func TestApplyRules_InvoiceMatchingByResidual(t *testing.T) {
	miss := &common.Aml{ID: 41, Name: "INV/2024/00001", Currency: eur, AmountResidualCurrency: dec("99")}
	hit := &common.Aml{ID: 42, Name: "INV/2024/00002", Currency: eur, AmountResidualCurrency: dec("100")}
	engine := &Engine{
		Models: []*Model{{ID: 1, RuleType: InvoiceMatching}},
		Source: &stubSource{amls: []*common.Aml{miss, hit}},
	}

	res, err := engine.ApplyRules(stubLine("wire transfer", "100", nil), nil)

	require.NoError(t, err)
	assert.Equal(t, []int64{42}, res.AmlIDs)
	assert.False(t, res.AutoReconcile)
}

func TestApplyRules_InvoiceMatchingPartnerFilter(t *testing.T) {
	aml := &common.Aml{ID: 42, Name: "INV/2024/00012", Partner: deco, Currency: eur}
	engine := &Engine{
		Models: []*Model{{ID: 1, RuleType: InvoiceMatching, MatchPartner: true}},
		Source: &stubSource{amls: []*common.Aml{aml}},
	}

	res, err := engine.ApplyRules(stubLine("payment INV/2024/00012", "100", azure), azure)

	require.NoError(t, err)
	assert.Empty(t, res.AmlIDs)
}

func TestApplyRules_WriteoffSuggestion(t *testing.T) {
	model := &Model{ID: 2, RuleType: WriteoffSuggestion, MatchLabel: "BANK FEE"}
	engine := &Engine{Models: []*Model{model}, Source: &stubSource{}}

	res, err := engine.ApplyRules(stubLine("monthly bank fee", "-12.50", nil), nil)

	require.NoError(t, err)
	assert.Same(t, model, res.Model)
	assert.Equal(t, "write_off", res.Status)

	// No label match, no suggestion.
	res, err = engine.ApplyRules(stubLine("wire transfer", "-12.50", nil), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Model)
}

func TestApplyRules_WriteoffSuggestionPartnerFilter(t *testing.T) {
	model := &Model{ID: 2, RuleType: WriteoffSuggestion, MatchLabel: "FEE", MatchPartner: true}
	engine := &Engine{Models: []*Model{model}, Source: &stubSource{}}

	res, err := engine.ApplyRules(stubLine("FEE", "-12.50", deco), deco)
	require.NoError(t, err)
	assert.Same(t, model, res.Model)

	res, err = engine.ApplyRules(stubLine("FEE", "-12.50", deco), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Model)
}

func TestApplyRules_FirstModelWins(t *testing.T) {
	aml := &common.Aml{ID: 42, Name: "INV/2024/00012", Currency: eur}
	writeoff := &Model{ID: 1, RuleType: WriteoffSuggestion, MatchLabel: "INV"}
	matching := &Model{ID: 2, RuleType: InvoiceMatching}
	engine := &Engine{
		Models: []*Model{writeoff, matching},
		Source: &stubSource{amls: []*common.Aml{aml}},
	}

	res, err := engine.ApplyRules(stubLine("INV/2024/00012", "100", nil), nil)

	require.NoError(t, err)
	assert.Same(t, writeoff, res.Model)
	assert.Empty(t, res.AmlIDs)
}

func TestApplyRules_SourceError(t *testing.T) {
	boom := errors.New("boom")
	engine := &Engine{
		Models: []*Model{{ID: 1, RuleType: InvoiceMatching}},
		Source: &stubSource{err: boom},
	}

	_, err := engine.ApplyRules(stubLine("x", "1", nil), nil)

	assert.ErrorIs(t, err, boom)
}

func TestApplyRules_NilEngine(t *testing.T) {
	var engine *Engine

	res, err := engine.ApplyRules(stubLine("x", "1", nil), nil)

	require.NoError(t, err)
	assert.Empty(t, res.AmlIDs)
	assert.Nil(t, res.Model)
}
