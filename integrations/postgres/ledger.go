package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aqlanhadi/rekon/engine/common"
)

// OpenAmls implements common.Ledger.
func (db *DB) OpenAmls(ctx context.Context, ids []int64) ([]*common.Aml, error) {
	out := make([]*common.Aml, 0, len(ids))
	for _, id := range ids {
		aml, err := db.loadAml(ctx, id)
		if err != nil {
			return nil, err
		}
		if aml.Reconciled {
			return nil, fmt.Errorf("move line %d is already reconciled", id)
		}
		out = append(out, aml)
	}
	return out, nil
}

// SeekLines implements common.Ledger.
func (db *DB) SeekLines(ctx context.Context, st *common.StatementLine) (liquidity, suspense, other []*common.Aml, err error) {
	lines, err := db.loadMoveLines(ctx, st.MoveID)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, aml := range lines {
		switch {
		case st.Journal.LiquidityAccount != nil && aml.Account.ID == st.Journal.LiquidityAccount.ID:
			liquidity = append(liquidity, aml)
		case st.Journal.SuspenseAccount != nil && aml.Account.ID == st.Journal.SuspenseAccount.ID:
			suspense = append(suspense, aml)
		default:
			other = append(other, aml)
		}
	}
	return liquidity, suspense, other, nil
}

// RewriteStatementLines implements common.Ledger. The delete and the bulk
// insert run in one transaction.
func (db *DB) RewriteStatementLines(ctx context.Context, st *common.StatementLine, lines []common.MoveLineVals) ([]*common.Aml, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM move_lines WHERE move_id = $1`, st.MoveID); err != nil {
		return nil, fmt.Errorf("failed to clear statement move lines: %w", err)
	}

	batch := &pgx.Batch{}
	for _, vals := range lines {
		var partnerID *int64
		if vals.Partner != nil {
			partnerID = &vals.Partner.ID
		}
		analytic := []byte("{}")
		if vals.AnalyticDistribution != nil {
			if analytic, err = json.Marshal(vals.AnalyticDistribution); err != nil {
				analytic = []byte("{}")
			}
		}
		tags := vals.TaxTags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(`
			INSERT INTO move_lines (
				move_id, sequence, name, date, account_id, partner_id, currency_code,
				amount_currency, balance, amount_residual, amount_residual_currency,
				tax_repartition_line_id, tax_tags, analytic_distribution
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`,
			st.MoveID, vals.Sequence, vals.Name, vals.Date, vals.Account.ID, partnerID, vals.Currency.Code,
			vals.AmountCurrency.String(), vals.Balance.String(),
			vals.Balance.String(), vals.AmountCurrency.String(),
			vals.TaxRepartitionLineID, tags, analytic,
		)
	}

	br := tx.SendBatch(ctx, batch)
	created := make([]*common.Aml, 0, len(lines))
	for _, vals := range lines {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			br.Close()
			return nil, fmt.Errorf("failed to insert move line: %w", err)
		}
		created = append(created, &common.Aml{
			ID:                     id,
			MoveID:                 st.MoveID,
			Name:                   vals.Name,
			Date:                   vals.Date,
			Account:                vals.Account,
			Partner:                vals.Partner,
			Currency:               vals.Currency,
			AmountCurrency:         vals.AmountCurrency,
			Balance:                vals.Balance,
			AmountResidual:         vals.Balance,
			AmountResidualCurrency: vals.AmountCurrency,
		})
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to insert move lines: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// CreateExchangeMove implements common.Ledger.
func (db *DB) CreateExchangeMove(ctx context.Context, st *common.StatementLine, residual common.ExchangeResidual) (int64, *common.Aml, error) {
	if residual.Account == nil || residual.CounterAccount == nil {
		return 0, nil, fmt.Errorf("exchange residual needs both accounts")
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var moveID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO moves (name, date) VALUES ('Exchange difference', $1) RETURNING id
	`, st.Date).Scan(&moveID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create exchange move: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO move_lines (
			move_id, sequence, name, date, account_id, currency_code,
			amount_currency, balance
		) VALUES ($1, 0, 'Exchange difference', $2, $3, $4, $5, $6)
	`,
		moveID, st.Date, residual.Account.ID, st.Company.Currency.Code,
		residual.AmountResidual.String(), residual.AmountResidual.String(),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create exchange line: %w", err)
	}

	offset := &common.Aml{
		MoveID:                 moveID,
		Name:                   "Exchange difference",
		Date:                   st.Date,
		Account:                residual.CounterAccount,
		Currency:               residual.Currency,
		AmountCurrency:         residual.AmountResidualCurrency,
		Balance:                residual.AmountResidual.Neg(),
		AmountResidual:         residual.AmountResidual.Neg(),
		AmountResidualCurrency: residual.AmountResidualCurrency,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO move_lines (
			move_id, sequence, name, date, account_id, currency_code,
			amount_currency, balance, amount_residual, amount_residual_currency
		) VALUES ($1, 1, 'Exchange difference', $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		moveID, st.Date, residual.CounterAccount.ID, residual.Currency.Code,
		offset.AmountCurrency.String(), offset.Balance.String(),
		offset.AmountResidual.String(), offset.AmountResidualCurrency.String(),
	).Scan(&offset.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create exchange counterpart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return moveID, offset, nil
}

// Reconcile implements common.Ledger. Residuals shrink by the matched
// amount; an attached exchange move settles the FX leftover.
func (db *DB) Reconcile(ctx context.Context, created, source *common.Aml, exchangeMoveID int64) error {
	if created == nil || source == nil {
		return fmt.Errorf("reconcile needs both lines")
	}
	if created.Balance.Sign() == source.AmountResidual.Sign() && created.Balance.Sign() != 0 {
		return fmt.Errorf("cannot reconcile two lines of the same sign")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	matched := decimal.Min(created.AmountResidual.Abs(), source.AmountResidual.Abs())
	debit, credit := created, source
	if created.Balance.Sign() < 0 {
		debit, credit = source, created
	}

	created.AmountResidual = shrink(created.AmountResidual, matched)
	source.AmountResidual = shrink(source.AmountResidual, matched)
	matchedCur := decimal.Min(created.AmountResidualCurrency.Abs(), source.AmountResidualCurrency.Abs())
	created.AmountResidualCurrency = shrink(created.AmountResidualCurrency, matchedCur)
	source.AmountResidualCurrency = shrink(source.AmountResidualCurrency, matchedCur)

	if exchangeMoveID != 0 {
		exchangeLines, err := db.loadMoveLines(ctx, exchangeMoveID)
		if err != nil {
			return err
		}
		for _, line := range exchangeLines {
			if line.AmountResidual.IsZero() {
				continue
			}
			for _, side := range []*common.Aml{created, source} {
				if side.AmountResidual.Sign() != 0 && side.AmountResidual.Sign() == -line.AmountResidual.Sign() {
					settled := decimal.Min(side.AmountResidual.Abs(), line.AmountResidual.Abs())
					side.AmountResidual = shrink(side.AmountResidual, settled)
					line.AmountResidual = shrink(line.AmountResidual, settled)
					side.AmountResidualCurrency = decimal.Zero
					line.AmountResidualCurrency = decimal.Zero
					if err := updateResidual(ctx, tx, line); err != nil {
						return err
					}
				}
			}
		}
	}

	created.Reconciled = created.AmountResidual.IsZero()
	source.Reconciled = source.AmountResidual.IsZero()
	for _, aml := range []*common.Aml{created, source} {
		if err := updateResidual(ctx, tx, aml); err != nil {
			return err
		}
	}

	var exchangeID *int64
	if exchangeMoveID != 0 {
		exchangeID = &exchangeMoveID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO partials (debit_line_id, credit_line_id, amount, exchange_move_id)
		VALUES ($1, $2, $3, $4)
	`, debit.ID, credit.ID, matched.String(), exchangeID)
	if err != nil {
		return fmt.Errorf("failed to create partial: %w", err)
	}
	return tx.Commit(ctx)
}

func updateResidual(ctx context.Context, tx pgx.Tx, aml *common.Aml) error {
	_, err := tx.Exec(ctx, `
		UPDATE move_lines
		SET amount_residual = $1, amount_residual_currency = $2, reconciled = $3
		WHERE id = $4
	`, aml.AmountResidual.String(), aml.AmountResidualCurrency.String(), aml.Reconciled, aml.ID)
	if err != nil {
		return fmt.Errorf("failed to update move line %d residual: %w", aml.ID, err)
	}
	return nil
}

func shrink(residual, by decimal.Decimal) decimal.Decimal {
	if residual.Sign() >= 0 {
		return residual.Sub(by)
	}
	return residual.Add(by)
}

// ResetStatementLine implements common.Ledger: the counterpart legs move
// back onto the suspense account, the partials touching the statement move
// are unwound and the counterparts' residuals restored.
func (db *DB) ResetStatementLine(ctx context.Context, st *common.StatementLine) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT p.id, p.debit_line_id, p.credit_line_id, p.amount::text
		FROM partials p
		JOIN move_lines d ON d.id = p.debit_line_id
		JOIN move_lines c ON c.id = p.credit_line_id
		WHERE d.move_id = $1 OR c.move_id = $1
	`, st.MoveID)
	if err != nil {
		return fmt.Errorf("failed to load partials: %w", err)
	}
	type partialRow struct {
		id, debitID, creditID int64
		amount                string
	}
	var partials []partialRow
	for rows.Next() {
		var p partialRow
		if err := rows.Scan(&p.id, &p.debitID, &p.creditID, &p.amount); err != nil {
			rows.Close()
			return err
		}
		partials = append(partials, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range partials {
		amount, err := parseDec(p.amount)
		if err != nil {
			return err
		}
		for _, lineID := range []int64{p.debitID, p.creditID} {
			var moveID int64
			var balance string
			if err := tx.QueryRow(ctx, `
				SELECT move_id, balance::text FROM move_lines WHERE id = $1
			`, lineID).Scan(&moveID, &balance); err != nil {
				return fmt.Errorf("failed to load partial side %d: %w", lineID, err)
			}
			if moveID == st.MoveID {
				continue
			}
			booked, err := parseDec(balance)
			if err != nil {
				return err
			}
			delta := amount
			if booked.Sign() < 0 {
				delta = amount.Neg()
			}
			if _, err := tx.Exec(ctx, `
				UPDATE move_lines
				SET amount_residual = amount_residual + $1, reconciled = false
				WHERE id = $2
			`, delta.String(), lineID); err != nil {
				return fmt.Errorf("failed to restore residual on %d: %w", lineID, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM partials WHERE id = $1`, p.id); err != nil {
			return fmt.Errorf("failed to delete partial %d: %w", p.id, err)
		}
	}

	amounts := st.AccountingAmounts()
	_, err = tx.Exec(ctx, `
		UPDATE move_lines
		SET account_id = $1, currency_code = $2,
		    amount_currency = $3, balance = $4,
		    amount_residual = 0, amount_residual_currency = 0,
		    reconciled = false, tax_repartition_line_id = 0,
		    tax_tags = '{}', analytic_distribution = '{}'
		WHERE move_id = $5 AND account_id != $6
	`,
		st.Journal.SuspenseAccount.ID, amounts.TransactionCurrency.Code,
		amounts.TransactionAmount.Neg().String(), amounts.CompanyAmount.Neg().String(),
		st.MoveID, st.Journal.LiquidityAccount.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset statement move lines: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE statement_lines SET is_reconciled = false, checked = false WHERE id = $1
	`, st.ID)
	if err != nil {
		return fmt.Errorf("failed to reset statement line: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	st.IsReconciled = false
	st.Checked = false
	return nil
}

// SetStatementPartner implements common.Ledger.
func (db *DB) SetStatementPartner(ctx context.Context, st *common.StatementLine, partner *common.Partner) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE statement_lines SET partner_id = $1 WHERE id = $2
	`, partner.ID, st.ID)
	if err != nil {
		return fmt.Errorf("failed to set statement partner: %w", err)
	}
	st.Partner = partner
	return nil
}

// CreatePartnerBank implements common.Ledger. Duplicate numbers are ignored.
func (db *DB) CreatePartnerBank(ctx context.Context, partner *common.Partner, accountNumber string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO partner_banks (partner_id, account_number)
		VALUES ($1, $2)
		ON CONFLICT (partner_id, account_number) DO NOTHING
	`, partner.ID, accountNumber)
	if err != nil {
		return fmt.Errorf("failed to create partner bank: %w", err)
	}
	partner.BankAccounts = append(partner.BankAccounts, accountNumber)
	return nil
}

// SetChecked implements common.Ledger.
func (db *DB) SetChecked(ctx context.Context, st *common.StatementLine, checked bool) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE statement_lines SET checked = $1 WHERE id = $2
	`, checked, st.ID)
	if err != nil {
		return fmt.Errorf("failed to set checked: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		UPDATE moves SET checked = $1 WHERE id = $2
	`, checked, st.MoveID)
	if err != nil {
		return fmt.Errorf("failed to set move checked: %w", err)
	}
	st.Checked = checked
	return nil
}

// CandidateAmls implements the rule engine's aml source: open
// receivable/payable lines outside the statement move, optionally narrowed
// to the partner.
func (db *DB) CandidateAmls(st *common.StatementLine, partner *common.Partner) ([]*common.Aml, error) {
	ctx := context.Background()
	query := amlSelect + `
	JOIN accounts a ON a.id = l.account_id
	WHERE NOT l.reconciled
	  AND a.type IN ('asset_receivable', 'liability_payable')
	  AND l.move_id != $1
	`
	args := []any{st.MoveID}
	if partner != nil {
		query += ` AND l.partner_id = $2`
		args = append(args, partner.ID)
	}
	query += ` ORDER BY l.date, l.id`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate move lines: %w", err)
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
