package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// PostgresAccountStore serializes writes per account with row locks; nothing
// here ever locks more than one row.
type PostgresAccountStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{
		db:  db,
		now: time.Now,
	}
}

func (p *PostgresAccountStore) CreateAccount(ctx context.Context, account models.Account) error {
	if account.ID == "" || !account.Role.Valid() {
		return xerrors.ErrInvalidInput
	}
	if account.Balance.IsNegative() || !models.FitsScale(account.Balance) {
		return xerrors.ErrInvalidAmount
	}

	const query = `INSERT INTO accounts (id, name, role, balance, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)`

	now := p.now()
	if _, err := p.db.ExecContext(ctx, query, account.ID, account.Name, account.Role, account.Balance, now); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s already exists: %w", account.ID, xerrors.ErrInvalidInput)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (p *PostgresAccountStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	const query = `SELECT id, name, role, balance, created_at, updated_at FROM accounts WHERE id = $1`

	var acc models.Account
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(
		&acc.ID,
		&acc.Name,
		&acc.Role,
		&acc.Balance,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

func (p *PostgresAccountStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM accounts WHERE id = $1`

	var balance decimal.Decimal
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (p *PostgresAccountStore) ListByRole(ctx context.Context, role models.Role) ([]models.Account, error) {
	const query = `SELECT id, name, role, balance, created_at, updated_at FROM accounts
	WHERE role = $1 ORDER BY created_at, id`

	rows, err := p.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acc models.Account
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Role, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *PostgresAccountStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !models.ValidAmount(amount) {
		return decimal.Zero, xerrors.ErrInvalidAmount
	}

	// a single-row UPDATE takes the row lock for its own duration
	const query = `UPDATE accounts SET balance = balance + $2, updated_at = $3
	WHERE id = $1 RETURNING balance`

	var balance decimal.Decimal
	err := p.db.QueryRowContext(ctx, query, accountID, amount, p.now()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit account: %w", err)
	}
	return balance, nil
}

func (p *PostgresAccountStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	if !models.ValidAmount(amount) {
		return decimal.Zero, xerrors.ErrInvalidAmount
	}

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin debit: %v: %w", err, xerrors.ErrNotApplied)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const lockQuery = `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`

	var current decimal.Decimal
	err = dbTx.QueryRowContext(ctx, lockQuery, accountID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock account: %v: %w", err, xerrors.ErrNotApplied)
	}

	if amount.GreaterThan(current) {
		err = fmt.Errorf("account %s: balance %s, need %s: %w", accountID, current, amount, xerrors.ErrInsufficientFunds)
		return current, err
	}

	const updateQuery = `UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`

	balance = current.Sub(amount)
	if _, err = dbTx.ExecContext(ctx, updateQuery, accountID, balance, p.now()); err != nil {
		return decimal.Zero, fmt.Errorf("debit account: %v: %w", err, xerrors.ErrNotApplied)
	}
	// a failed commit may still have landed
	if err = dbTx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit debit: %w", err)
	}
	return balance, nil
}

var _ interfaces.AccountStore = (*PostgresAccountStore)(nil)
