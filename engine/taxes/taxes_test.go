package taxes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqlanhadi/rekon/engine/common"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var eur = &common.Currency{Code: "EUR", DecimalPlaces: 2}

var taxAccount = &common.Account{ID: 51, Code: "251000", Name: "Tax Received", Type: "liability_current"}

func percentSaleTax() *Tax {
	return &Tax{
		ID:              1,
		Name:            "15%",
		Amount:          dec("15"),
		AmountType:      AmountPercent,
		TypeTaxUse:      UseSale,
		BaseInvoiceTags: []string{"+B"},
		BaseRefundTags:  []string{"-B"},
		RepartitionLines: []RepartitionLine{{
			ID:          11,
			Factor:      dec("100"),
			Account:     taxAccount,
			InvoiceTags: []string{"+T"},
			RefundTags:  []string{"-T"},
		}},
	}
}

func baseLine(price string, taxIDs ...int64) common.TaxBaseLine {
	return common.TaxBaseLine{
		Index:     "base-1",
		PriceUnit: dec(price),
		Quantity:  decimal.NewFromInt(1),
		Currency:  eur,
		TaxIDs:    taxIDs,
	}
}

func TestCompute_PercentExclusive(t *testing.T) {
	engine := NewEngine(percentSaleTax())

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-100", 1)},
	})

	require.NoError(t, err)
	require.Len(t, res.BaseUpdates, 1)
	assert.True(t, res.BaseUpdates[0].AmountCurrency.Equal(dec("-100")))
	require.Len(t, res.ToAdd, 1)
	add := res.ToAdd[0]
	assert.True(t, add.AmountCurrency.Equal(dec("-15")))
	assert.Equal(t, taxAccount.ID, add.Account.ID)
	assert.Equal(t, int64(1), add.TaxID)
	assert.Equal(t, int64(11), add.TaxRepartitionLineID)
	assert.Empty(t, res.ToDelete)
	assert.Empty(t, res.ToUpdate)
}

func TestCompute_TotalIncludedBacksolves(t *testing.T) {
	engine := NewEngine(percentSaleTax())
	base := baseLine("-115", 1)
	base.SpecialMode = "total_included"

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{base},
	})

	require.NoError(t, err)
	require.Len(t, res.BaseUpdates, 1)
	assert.True(t, res.BaseUpdates[0].AmountCurrency.Equal(dec("-100")))
	require.Len(t, res.ToAdd, 1)
	assert.True(t, res.ToAdd[0].AmountCurrency.Equal(dec("-15")))
}

func TestCompute_FixedTaxFollowsPriceSign(t *testing.T) {
	fixed := &Tax{
		ID:         2,
		Name:       "Stamp",
		Amount:     dec("5"),
		AmountType: AmountFixed,
		TypeTaxUse: UsePurchase,
		RepartitionLines: []RepartitionLine{
			{ID: 21, Factor: dec("100"), Account: taxAccount},
		},
	}
	engine := NewEngine(fixed)

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-80", 2)},
	})

	require.NoError(t, err)
	require.Len(t, res.ToAdd, 1)
	assert.True(t, res.ToAdd[0].AmountCurrency.Equal(dec("-5")))
	assert.True(t, res.BaseUpdates[0].AmountCurrency.Equal(dec("-80")))
}

func TestCompute_RefundTags(t *testing.T) {
	engine := NewEngine(percentSaleTax())

	// A sale tax on a positive price is a refund.
	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("100", 1)},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"-B"}, res.BaseUpdates[0].TaxTags)
	require.Len(t, res.ToAdd, 1)
	assert.Equal(t, []string{"-T"}, res.ToAdd[0].TaxTags)

	// And on a negative price it is a plain invoice.
	res, err = engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-100", 1)},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"+B"}, res.BaseUpdates[0].TaxTags)
	assert.Equal(t, []string{"+T"}, res.ToAdd[0].TaxTags)
}

func TestCompute_NoTaxesClearsTags(t *testing.T) {
	engine := NewEngine()

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-42.50")},
	})

	require.NoError(t, err)
	require.Len(t, res.BaseUpdates, 1)
	assert.True(t, res.BaseUpdates[0].AmountCurrency.Equal(dec("-42.50")))
	assert.Empty(t, res.BaseUpdates[0].TaxTags)
	assert.Empty(t, res.ToAdd)
}

func TestCompute_UnknownTax(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-100", 99)},
	})

	assert.Error(t, err)
}

func TestCompute_UpdatesExistingTaxLine(t *testing.T) {
	engine := NewEngine(percentSaleTax())

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-200", 1)},
		TaxLines: []common.ExistingTaxLine{{
			Index:                "tax-1",
			TaxID:                1,
			TaxRepartitionLineID: 11,
			Currency:             eur,
			AmountCurrency:       dec("-15"),
		}},
	})

	require.NoError(t, err)
	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "tax-1", res.ToUpdate[0].Index)
	assert.True(t, res.ToUpdate[0].AmountCurrency.Equal(dec("-30")))
	assert.Empty(t, res.ToAdd)
	assert.Empty(t, res.ToDelete)
}

func TestCompute_DeletesStaleTaxLine(t *testing.T) {
	engine := NewEngine(percentSaleTax())

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-100")},
		TaxLines: []common.ExistingTaxLine{{
			Index:                "tax-1",
			TaxID:                1,
			TaxRepartitionLineID: 11,
			Currency:             eur,
			AmountCurrency:       dec("-15"),
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"tax-1"}, res.ToDelete)
	assert.Empty(t, res.ToAdd)
	assert.Empty(t, res.ToUpdate)
}

func TestCompute_SplitRepartition(t *testing.T) {
	childAccount := &common.Account{ID: 52, Code: "251100", Name: "Tax Received Child"}
	tax := percentSaleTax()
	tax.RepartitionLines = []RepartitionLine{
		{ID: 11, Factor: dec("60"), Account: taxAccount},
		{ID: 12, Factor: dec("40"), Account: childAccount},
	}
	engine := NewEngine(tax)

	res, err := engine.Compute(common.TaxComputationRequest{
		BaseLines: []common.TaxBaseLine{baseLine("-100", 1)},
	})

	require.NoError(t, err)
	require.Len(t, res.ToAdd, 2)
	assert.True(t, res.ToAdd[0].AmountCurrency.Equal(dec("-9")))
	assert.True(t, res.ToAdd[1].AmountCurrency.Equal(dec("-6")))
	assert.Equal(t, childAccount.ID, res.ToAdd[1].Account.ID)
}

func TestPriceUnitFromTotal(t *testing.T) {
	included := percentSaleTax()
	included.PriceInclude = true
	engine := NewEngine(included)

	price := engine.PriceUnitFromTotal(dec("-115"), eur, []int64{1})
	assert.True(t, price.Equal(dec("-100")))

	// Exclusive taxes do not contribute.
	exclusive := percentSaleTax()
	engine = NewEngine(exclusive)
	price = engine.PriceUnitFromTotal(dec("-115"), eur, []int64{1})
	assert.True(t, price.Equal(dec("-115")))
}

func TestEarlyPaymentLines_LossAccount(t *testing.T) {
	loss := &common.Account{ID: 61, Code: "709500", Name: "Cash Discount Loss"}
	provider := &EarlyPaymentProvider{Config: EarlyPaymentConfig{LossAccount: loss}}

	st := &common.StatementLine{
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Company: &common.Company{Currency: eur},
		Journal: &common.Journal{},
		Amount:  dec("98"),
	}
	aml := &common.Aml{
		Name:                   "INV/2024/00001",
		Currency:               eur,
		AmountResidualCurrency: dec("100"),
		DiscountAmountCurrency: dec("98"),
	}

	lines, err := provider.EarlyPaymentLines(st, []*common.Aml{aml}, dec("2"))

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, loss.ID, lines[0].Account.ID)
	assert.True(t, lines[0].AmountCurrency.Equal(dec("2")))
	assert.Equal(t, "Early payment discount: INV/2024/00001", lines[0].Name)
}

func TestEarlyPaymentLines_GainAccount(t *testing.T) {
	gain := &common.Account{ID: 62, Code: "609500", Name: "Cash Discount Gain"}
	provider := &EarlyPaymentProvider{Config: EarlyPaymentConfig{GainAccount: gain}}

	st := &common.StatementLine{
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Company: &common.Company{Currency: eur},
		Journal: &common.Journal{},
		Amount:  dec("-98"),
	}
	bill := &common.Aml{
		Name:                   "BILL/2024/00007",
		Currency:               eur,
		AmountResidualCurrency: dec("-100"),
		DiscountAmountCurrency: dec("-98"),
	}

	lines, err := provider.EarlyPaymentLines(st, []*common.Aml{bill}, dec("-2"))

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, gain.ID, lines[0].Account.ID)
	assert.True(t, lines[0].AmountCurrency.Equal(dec("-2")))
}

func TestEarlyPaymentLines_LastLineAbsorbsRounding(t *testing.T) {
	loss := &common.Account{ID: 61, Code: "709500"}
	provider := &EarlyPaymentProvider{Config: EarlyPaymentConfig{LossAccount: loss}}

	st := &common.StatementLine{
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Company: &common.Company{Currency: eur},
		Journal: &common.Journal{},
	}
	amls := []*common.Aml{
		{Name: "A", Currency: eur, AmountResidualCurrency: dec("50"), DiscountAmountCurrency: dec("49")},
		{Name: "B", Currency: eur, AmountResidualCurrency: dec("50"), DiscountAmountCurrency: dec("49")},
	}

	// The discount total carries an extra cent the last line must absorb.
	lines, err := provider.EarlyPaymentLines(st, amls, dec("2.01"))

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].AmountCurrency.Equal(dec("1")))
	assert.True(t, lines[1].AmountCurrency.Equal(dec("1.01")))
}

func TestEarlyPaymentLines_SplitsConfiguredTaxes(t *testing.T) {
	loss := &common.Account{ID: 61, Code: "709500"}
	engine := NewEngine(percentSaleTax())
	provider := &EarlyPaymentProvider{
		Engine: engine,
		Config: EarlyPaymentConfig{LossAccount: loss, TaxIDs: []int64{1}},
	}

	st := &common.StatementLine{
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Company: &common.Company{Currency: eur},
		Journal: &common.Journal{},
	}
	aml := &common.Aml{
		Name:                   "INV/2024/00001",
		Currency:               eur,
		AmountResidualCurrency: dec("115"),
		DiscountAmountCurrency: dec("112.70"),
	}

	// 2.30 tax-included: 2.00 base + 0.30 tax adjustment.
	lines, err := provider.EarlyPaymentLines(st, []*common.Aml{aml}, dec("2.30"))

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].AmountCurrency.Equal(dec("2")))
	assert.Equal(t, loss.ID, lines[0].Account.ID)
	assert.True(t, lines[1].AmountCurrency.Equal(dec("0.30")))
	assert.Equal(t, taxAccount.ID, lines[1].Account.ID)
	assert.Equal(t, int64(11), lines[1].TaxRepartitionLineID)
}
