package postgres

import (
	"context"
	"fmt"
)

const ddl = `
-- Currencies with their declared rounding precision
CREATE TABLE IF NOT EXISTS currencies (
    code VARCHAR(10) PRIMARY KEY,
    decimal_places INTEGER NOT NULL DEFAULT 2
);

-- Chart of accounts
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(50) NOT NULL,
    name VARCHAR(255) NOT NULL,
    type VARCHAR(50) NOT NULL,
    reconcile BOOLEAN DEFAULT false,
    created_at TIMESTAMPTZ DEFAULT NOW(),

    UNIQUE(code)
);

-- Partners (customers and vendors)
CREATE TABLE IF NOT EXISTS partners (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    customer_rank INTEGER DEFAULT 0,
    supplier_rank INTEGER DEFAULT 0,
    receivable_account_id BIGINT REFERENCES accounts(id),
    payable_account_id BIGINT REFERENCES accounts(id),
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS partner_banks (
    id BIGSERIAL PRIMARY KEY,
    partner_id BIGINT NOT NULL REFERENCES partners(id) ON DELETE CASCADE,
    account_number VARCHAR(64) NOT NULL,

    UNIQUE(partner_id, account_number)
);

-- Companies and their exchange/discount accounts
CREATE TABLE IF NOT EXISTS companies (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    currency_code VARCHAR(10) NOT NULL REFERENCES currencies(code),
    expense_exchange_account_id BIGINT REFERENCES accounts(id),
    income_exchange_account_id BIGINT REFERENCES accounts(id),
    early_pay_loss_account_id BIGINT REFERENCES accounts(id),
    early_pay_gain_account_id BIGINT REFERENCES accounts(id)
);

-- Bank journals
CREATE TABLE IF NOT EXISTS journals (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    company_id BIGINT NOT NULL REFERENCES companies(id),
    currency_code VARCHAR(10) REFERENCES currencies(code),
    suspense_account_id BIGINT NOT NULL REFERENCES accounts(id),
    liquidity_account_id BIGINT NOT NULL REFERENCES accounts(id)
);

-- Journal entries
CREATE TABLE IF NOT EXISTS moves (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL DEFAULT '',
    date DATE NOT NULL,
    checked BOOLEAN DEFAULT false,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS move_lines (
    id BIGSERIAL PRIMARY KEY,
    move_id BIGINT NOT NULL REFERENCES moves(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL DEFAULT '',
    date DATE NOT NULL,
    account_id BIGINT NOT NULL REFERENCES accounts(id),
    partner_id BIGINT REFERENCES partners(id),
    currency_code VARCHAR(10) NOT NULL REFERENCES currencies(code),
    amount_currency NUMERIC(18,6) NOT NULL DEFAULT 0,
    balance NUMERIC(18,6) NOT NULL DEFAULT 0,
    amount_residual NUMERIC(18,6) NOT NULL DEFAULT 0,
    amount_residual_currency NUMERIC(18,6) NOT NULL DEFAULT 0,
    reconciled BOOLEAN DEFAULT false,
    discount_date DATE,
    discount_amount_currency NUMERIC(18,6) NOT NULL DEFAULT 0,
    discount_balance NUMERIC(18,6) NOT NULL DEFAULT 0,
    tax_repartition_line_id BIGINT DEFAULT 0,
    tax_tags TEXT[] DEFAULT '{}',
    analytic_distribution JSONB DEFAULT '{}'
);

-- Bank statement lines awaiting reconciliation
CREATE TABLE IF NOT EXISTS statement_lines (
    id BIGSERIAL PRIMARY KEY,
    move_id BIGINT NOT NULL REFERENCES moves(id),
    journal_id BIGINT NOT NULL REFERENCES journals(id),
    company_id BIGINT NOT NULL REFERENCES companies(id),
    partner_id BIGINT REFERENCES partners(id),
    date DATE NOT NULL,
    payment_ref TEXT NOT NULL DEFAULT '',
    partner_name TEXT NOT NULL DEFAULT '',
    account_number VARCHAR(64) NOT NULL DEFAULT '',
    amount NUMERIC(18,6) NOT NULL,
    foreign_currency_code VARCHAR(10) REFERENCES currencies(code),
    amount_currency NUMERIC(18,6) NOT NULL DEFAULT 0,
    company_amount NUMERIC(18,6) NOT NULL DEFAULT 0,
    is_reconciled BOOLEAN DEFAULT false,
    checked BOOLEAN DEFAULT false,
    sealed BOOLEAN DEFAULT false,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

-- Partial reconciliations between two move lines
CREATE TABLE IF NOT EXISTS partials (
    id BIGSERIAL PRIMARY KEY,
    debit_line_id BIGINT NOT NULL REFERENCES move_lines(id),
    credit_line_id BIGINT NOT NULL REFERENCES move_lines(id),
    amount NUMERIC(18,6) NOT NULL,
    exchange_move_id BIGINT REFERENCES moves(id),
    created_at TIMESTAMPTZ DEFAULT NOW()
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_move_lines_move_id ON move_lines(move_id);
CREATE INDEX IF NOT EXISTS idx_move_lines_account_id ON move_lines(account_id);
CREATE INDEX IF NOT EXISTS idx_move_lines_open ON move_lines(account_id) WHERE NOT reconciled;
CREATE INDEX IF NOT EXISTS idx_statement_lines_move_id ON statement_lines(move_id);
CREATE INDEX IF NOT EXISTS idx_partials_debit ON partials(debit_line_id);
CREATE INDEX IF NOT EXISTS idx_partials_credit ON partials(credit_line_id);
`

// EnsureSchema creates the ledger tables if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
