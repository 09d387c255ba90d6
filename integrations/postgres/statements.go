package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aqlanhadi/rekon/engine/common"
)

// CreateCompany inserts a new company
func (db *DB) CreateCompany(ctx context.Context, company *common.Company) error {
	accID := func(acc *common.Account) *int64 {
		if acc == nil {
			return nil
		}
		return &acc.ID
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO companies (
			name, currency_code,
			expense_exchange_account_id, income_exchange_account_id,
			early_pay_loss_account_id, early_pay_gain_account_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		company.Name, company.Currency.Code,
		accID(company.ExpenseExchangeAccount), accID(company.IncomeExchangeAccount),
		accID(company.EarlyPayDiscountLossAccount), accID(company.EarlyPayDiscountGainAccount),
	).Scan(&company.ID)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// CreateJournal inserts a new bank journal
func (db *DB) CreateJournal(ctx context.Context, journal *common.Journal) error {
	var curCode *string
	if journal.Currency != nil {
		curCode = &journal.Currency.Code
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO journals (name, company_id, currency_code, suspense_account_id, liquidity_account_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		journal.Name, journal.CompanyID, curCode,
		journal.SuspenseAccount.ID, journal.LiquidityAccount.ID,
	).Scan(&journal.ID)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	return nil
}

// CreateStatementLine inserts a statement line and books its move: the
// liquidity leg on the journal's default account and the remainder on
// suspense.
func (db *DB) CreateStatementLine(ctx context.Context, st *common.StatementLine) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO moves (name, date) VALUES ($1, $2) RETURNING id
	`, st.PaymentRef, st.Date).Scan(&st.MoveID)
	if err != nil {
		return fmt.Errorf("failed to create statement move: %w", err)
	}

	var partnerID *int64
	if st.Partner != nil {
		partnerID = &st.Partner.ID
	}
	var foreignCode *string
	if st.ForeignCurrency != nil {
		foreignCode = &st.ForeignCurrency.Code
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO statement_lines (
			move_id, journal_id, company_id, partner_id,
			date, payment_ref, partner_name, account_number,
			amount, foreign_currency_code, amount_currency, company_amount,
			is_reconciled, checked, sealed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		st.MoveID, st.Journal.ID, st.Company.ID, partnerID,
		st.Date, st.PaymentRef, st.PartnerName, st.AccountNumber,
		st.Amount.String(), foreignCode, st.AmountCurrency.String(), st.CompanyAmount.String(),
		st.IsReconciled, st.Checked, st.Sealed,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("failed to create statement line: %w", err)
	}

	amounts := st.AccountingAmounts()
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO move_lines (
			move_id, sequence, name, date, account_id, partner_id,
			currency_code, amount_currency, balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		st.MoveID, 0, st.PaymentRef, st.Date, st.Journal.LiquidityAccount.ID, partnerID,
		amounts.JournalCurrency.Code, amounts.JournalAmount.String(), amounts.CompanyAmount.String(),
	)
	batch.Queue(`
		INSERT INTO move_lines (
			move_id, sequence, name, date, account_id, partner_id,
			currency_code, amount_currency, balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		st.MoveID, 1, st.PaymentRef, st.Date, st.Journal.SuspenseAccount.ID, partnerID,
		amounts.TransactionCurrency.Code, amounts.TransactionAmount.Neg().String(), amounts.CompanyAmount.Neg().String(),
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create statement move lines: %w", err)
	}

	return tx.Commit(ctx)
}

// StatementLine loads a statement line with its journal and company fully
// hydrated. Implements the bus statement source.
func (db *DB) StatementLine(ctx context.Context, id int64) (*common.StatementLine, error) {
	st := &common.StatementLine{}
	var journalID, companyID int64
	var partnerID *int64
	var foreignCode *string
	var amount, amountCur, companyAmount string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, move_id, journal_id, company_id, partner_id,
		       date, payment_ref, partner_name, account_number,
		       amount::text, foreign_currency_code, amount_currency::text, company_amount::text,
		       is_reconciled, checked, sealed
		FROM statement_lines WHERE id = $1
	`, id).Scan(
		&st.ID, &st.MoveID, &journalID, &companyID, &partnerID,
		&st.Date, &st.PaymentRef, &st.PartnerName, &st.AccountNumber,
		&amount, &foreignCode, &amountCur, &companyAmount,
		&st.IsReconciled, &st.Checked, &st.Sealed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load statement line %d: %w", id, err)
	}
	if st.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	if st.AmountCurrency, err = parseDec(amountCur); err != nil {
		return nil, err
	}
	if st.CompanyAmount, err = parseDec(companyAmount); err != nil {
		return nil, err
	}
	if foreignCode != nil {
		if st.ForeignCurrency, err = db.loadCurrency(ctx, *foreignCode); err != nil {
			return nil, err
		}
	}
	if partnerID != nil {
		if st.Partner, err = db.loadPartner(ctx, *partnerID); err != nil {
			return nil, err
		}
	}
	if st.Company, err = db.loadCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if st.Journal, err = db.loadJournal(ctx, journalID); err != nil {
		return nil, err
	}
	return st, nil
}

func (db *DB) loadCompany(ctx context.Context, id int64) (*common.Company, error) {
	company := &common.Company{}
	var curCode string
	var expenseID, incomeID, lossID, gainID *int64
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, currency_code,
		       expense_exchange_account_id, income_exchange_account_id,
		       early_pay_loss_account_id, early_pay_gain_account_id
		FROM companies WHERE id = $1
	`, id).Scan(&company.ID, &company.Name, &curCode, &expenseID, &incomeID, &lossID, &gainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company %d: %w", id, err)
	}
	if company.Currency, err = db.loadCurrency(ctx, curCode); err != nil {
		return nil, err
	}
	for _, link := range []struct {
		id  *int64
		dst **common.Account
	}{
		{expenseID, &company.ExpenseExchangeAccount},
		{incomeID, &company.IncomeExchangeAccount},
		{lossID, &company.EarlyPayDiscountLossAccount},
		{gainID, &company.EarlyPayDiscountGainAccount},
	} {
		if link.id == nil {
			continue
		}
		if *link.dst, err = db.loadAccount(ctx, *link.id); err != nil {
			return nil, err
		}
	}
	return company, nil
}

func (db *DB) loadJournal(ctx context.Context, id int64) (*common.Journal, error) {
	journal := &common.Journal{}
	var curCode *string
	var suspenseID, liquidityID int64
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, company_id, currency_code, suspense_account_id, liquidity_account_id
		FROM journals WHERE id = $1
	`, id).Scan(&journal.ID, &journal.Name, &journal.CompanyID, &curCode, &suspenseID, &liquidityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal %d: %w", id, err)
	}
	if curCode != nil {
		if journal.Currency, err = db.loadCurrency(ctx, *curCode); err != nil {
			return nil, err
		}
	}
	if journal.SuspenseAccount, err = db.loadAccount(ctx, suspenseID); err != nil {
		return nil, err
	}
	if journal.LiquidityAccount, err = db.loadAccount(ctx, liquidityID); err != nil {
		return nil, err
	}
	return journal, nil
}
