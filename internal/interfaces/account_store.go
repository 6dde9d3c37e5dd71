package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

// AccountStore owns balances. Every mutation on one account is serialized with
// every other mutation on that account; nothing spans two accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.Account, error)

	// Credit fails only with ErrAccountNotFound or ErrInvalidAmount.
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
	// Debit fails with ErrInsufficientFunds when amount exceeds the balance,
	// leaving it untouched.
	Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
}
