package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aqlanhadi/rekon/engine/common"
)

// GetOrCreateCurrency upserts a currency by code
func (db *DB) GetOrCreateCurrency(ctx context.Context, cur *common.Currency) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO currencies (code, decimal_places) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET decimal_places = EXCLUDED.decimal_places
	`, cur.Code, cur.DecimalPlaces)
	if err != nil {
		return fmt.Errorf("failed to upsert currency %s: %w", cur.Code, err)
	}
	return nil
}

// GetOrCreateAccount finds an existing account by code or creates a new one
func (db *DB) GetOrCreateAccount(ctx context.Context, account *common.Account) error {
	err := db.Pool.QueryRow(ctx, `
		SELECT id FROM accounts WHERE code = $1
	`, account.Code).Scan(&account.ID)

	if err == nil {
		_, err = db.Pool.Exec(ctx, `
			UPDATE accounts SET name = $1, type = $2, reconcile = $3 WHERE id = $4
		`, account.Name, string(account.Type), account.Reconcile, account.ID)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		return nil
	}
	if err != pgx.ErrNoRows {
		return fmt.Errorf("failed to look up account: %w", err)
	}

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO accounts (code, name, type, reconcile)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, account.Code, account.Name, string(account.Type), account.Reconcile).Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// CreatePartner inserts a new partner
func (db *DB) CreatePartner(ctx context.Context, partner *common.Partner) error {
	var recvID, payID *int64
	if partner.ReceivableAccount != nil {
		recvID = &partner.ReceivableAccount.ID
	}
	if partner.PayableAccount != nil {
		payID = &partner.PayableAccount.ID
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO partners (name, customer_rank, supplier_rank, receivable_account_id, payable_account_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, partner.Name, partner.CustomerRank, partner.SupplierRank, recvID, payID).Scan(&partner.ID)
	if err != nil {
		return fmt.Errorf("failed to create partner: %w", err)
	}
	for _, bank := range partner.BankAccounts {
		if err := db.CreatePartnerBank(ctx, partner, bank); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) loadAccount(ctx context.Context, id int64) (*common.Account, error) {
	acc := &common.Account{}
	var accType string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, code, name, type, reconcile FROM accounts WHERE id = $1
	`, id).Scan(&acc.ID, &acc.Code, &acc.Name, &accType, &acc.Reconcile)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	acc.Type = common.AccountType(accType)
	return acc, nil
}

func (db *DB) loadCurrency(ctx context.Context, code string) (*common.Currency, error) {
	cur := &common.Currency{}
	err := db.Pool.QueryRow(ctx, `
		SELECT code, decimal_places FROM currencies WHERE code = $1
	`, code).Scan(&cur.Code, &cur.DecimalPlaces)
	if err != nil {
		return nil, fmt.Errorf("failed to load currency %s: %w", code, err)
	}
	return cur, nil
}

func (db *DB) loadPartner(ctx context.Context, id int64) (*common.Partner, error) {
	partner := &common.Partner{}
	var recvID, payID *int64
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, customer_rank, supplier_rank, receivable_account_id, payable_account_id
		FROM partners WHERE id = $1
	`, id).Scan(&partner.ID, &partner.Name, &partner.CustomerRank, &partner.SupplierRank, &recvID, &payID)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner %d: %w", id, err)
	}
	if recvID != nil {
		if partner.ReceivableAccount, err = db.loadAccount(ctx, *recvID); err != nil {
			return nil, err
		}
	}
	if payID != nil {
		if partner.PayableAccount, err = db.loadAccount(ctx, *payID); err != nil {
			return nil, err
		}
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT account_number FROM partner_banks WHERE partner_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load partner banks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bank string
		if err := rows.Scan(&bank); err != nil {
			return nil, err
		}
		partner.BankAccounts = append(partner.BankAccounts, bank)
	}
	return partner, rows.Err()
}

// Account implements the bus account source. Lookup failures surface as nil.
func (db *DB) Account(id int64) *common.Account {
	acc, err := db.loadAccount(context.Background(), id)
	if err != nil {
		return nil
	}
	return acc
}

// Partner implements the bus account source.
func (db *DB) Partner(id int64) *common.Partner {
	partner, err := db.loadPartner(context.Background(), id)
	if err != nil {
		return nil
	}
	return partner
}
