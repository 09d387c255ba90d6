package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return d, nil
}

const amlSelect = `
	SELECT l.id, l.move_id, l.name, l.date, l.account_id, l.partner_id, l.currency_code,
	       l.amount_currency::text, l.balance::text,
	       l.amount_residual::text, l.amount_residual_currency::text,
	       l.reconciled,
	       l.discount_date, l.discount_amount_currency::text, l.discount_balance::text
	FROM move_lines l
`

type amlRow struct {
	id, moveID             int64
	name                   string
	date                   time.Time
	accountID              int64
	partnerID              *int64
	currencyCode           string
	amountCurrency         string
	balance                string
	amountResidual         string
	amountResidualCurrency string
	reconciled             bool
	discountDate           *time.Time
	discountAmountCurrency string
	discountBalance        string
}

func (db *DB) loadAml(ctx context.Context, id int64) (*common.Aml, error) {
	var row amlRow
	err := db.Pool.QueryRow(ctx, amlSelect+` WHERE l.id = $1`, id).Scan(
		&row.id, &row.moveID, &row.name, &row.date, &row.accountID, &row.partnerID, &row.currencyCode,
		&row.amountCurrency, &row.balance,
		&row.amountResidual, &row.amountResidualCurrency,
		&row.reconciled,
		&row.discountDate, &row.discountAmountCurrency, &row.discountBalance,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load move line %d: %w", id, err)
	}
	return db.hydrateAml(ctx, &row)
}

func (db *DB) loadMoveLines(ctx context.Context, moveID int64) ([]*common.Aml, error) {
	rows, err := db.Pool.Query(ctx, amlSelect+` WHERE l.move_id = $1 ORDER BY l.sequence, l.id`, moveID)
	if err != nil {
		return nil, fmt.Errorf("failed to load move %d lines: %w", moveID, err)
	}
	defer rows.Close()

	var raws []amlRow
	for rows.Next() {
		var row amlRow
		if err := rows.Scan(
			&row.id, &row.moveID, &row.name, &row.date, &row.accountID, &row.partnerID, &row.currencyCode,
			&row.amountCurrency, &row.balance,
			&row.amountResidual, &row.amountResidualCurrency,
			&row.reconciled,
			&row.discountDate, &row.discountAmountCurrency, &row.discountBalance,
		); err != nil {
			return nil, err
		}
		raws = append(raws, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*common.Aml, 0, len(raws))
	for i := range raws {
		aml, err := db.hydrateAml(ctx, &raws[i])
		if err != nil {
			return nil, err
		}
		out = append(out, aml)
	}
	return out, nil
}

func (db *DB) hydrateAml(ctx context.Context, row *amlRow) (*common.Aml, error) {
	aml := &common.Aml{
		ID:         row.id,
		MoveID:     row.moveID,
		Name:       row.name,
		Date:       row.date,
		Reconciled: row.reconciled,
	}
	var err error
	if aml.Account, err = db.loadAccount(ctx, row.accountID); err != nil {
		return nil, err
	}
	if row.partnerID != nil {
		if aml.Partner, err = db.loadPartner(ctx, *row.partnerID); err != nil {
			return nil, err
		}
	}
	if aml.Currency, err = db.loadCurrency(ctx, row.currencyCode); err != nil {
		return nil, err
	}
	if aml.AmountCurrency, err = parseDec(row.amountCurrency); err != nil {
		return nil, err
	}
	if aml.Balance, err = parseDec(row.balance); err != nil {
		return nil, err
	}
	if aml.AmountResidual, err = parseDec(row.amountResidual); err != nil {
		return nil, err
	}
	if aml.AmountResidualCurrency, err = parseDec(row.amountResidualCurrency); err != nil {
		return nil, err
	}
	if row.discountDate != nil {
		aml.DiscountDate = *row.discountDate
	}
	if aml.DiscountAmountCurrency, err = parseDec(row.discountAmountCurrency); err != nil {
		return nil, err
	}
	if aml.DiscountBalance, err = parseDec(row.discountBalance); err != nil {
		return nil, err
	}
	return aml, nil
}

// CreateOpenAml books a single-purpose move holding one open
// receivable/payable line, residual equal to its amount.
func (db *DB) CreateOpenAml(ctx context.Context, aml *common.Aml) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if aml.MoveID == 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO moves (name, date) VALUES ($1, $2) RETURNING id
		`, aml.Name, aml.Date).Scan(&aml.MoveID)
		if err != nil {
			return fmt.Errorf("failed to create move: %w", err)
		}
	}
	if aml.AmountResidual.IsZero() {
		aml.AmountResidual = aml.Balance
	}
	if aml.AmountResidualCurrency.IsZero() {
		aml.AmountResidualCurrency = aml.AmountCurrency
	}

	var partnerID *int64
	if aml.Partner != nil {
		partnerID = &aml.Partner.ID
	}
	var discountDate *time.Time
	if !aml.DiscountDate.IsZero() {
		discountDate = &aml.DiscountDate
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO move_lines (
			move_id, name, date, account_id, partner_id, currency_code,
			amount_currency, balance, amount_residual, amount_residual_currency,
			discount_date, discount_amount_currency, discount_balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		aml.MoveID, aml.Name, aml.Date, aml.Account.ID, partnerID, aml.Currency.Code,
		aml.AmountCurrency.String(), aml.Balance.String(),
		aml.AmountResidual.String(), aml.AmountResidualCurrency.String(),
		discountDate, aml.DiscountAmountCurrency.String(), aml.DiscountBalance.String(),
	).Scan(&aml.ID)
	if err != nil {
		return fmt.Errorf("failed to create move line: %w", err)
	}
	return tx.Commit(ctx)
}
