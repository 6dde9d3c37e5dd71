package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

func newAccounts(t *testing.T, balances map[string]int64) *MemoryAccountStore {
	t.Helper()
	store := NewMemoryAccountStore()
	for id, bal := range balances {
		require.NoError(t, store.CreateAccount(context.Background(), models.Account{
			ID:      id,
			Name:    id,
			Role:    models.RoleParent,
			Balance: decimal.NewFromInt(bal),
		}))
	}
	return store
}

func TestDebitRejectsOverdraftAndKeepsBalance(t *testing.T) {
	ctx := context.Background()
	store := newAccounts(t, map[string]int64{"p1": 100_000})

	_, err := store.Debit(ctx, "p1", decimal.NewFromInt(500_000))
	assert.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	bal, err := store.GetBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(100_000)), "balance changed to %s", bal)
}

func TestDebitCreditMoveBalance(t *testing.T) {
	ctx := context.Background()
	store := newAccounts(t, map[string]int64{"p1": 1000})

	bal, err := store.Debit(ctx, "p1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	bal, err = store.Credit(ctx, "p1", decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())
}

func TestUnknownAccountAndBadAmounts(t *testing.T) {
	ctx := context.Background()
	store := newAccounts(t, map[string]int64{"p1": 10})

	_, err := store.Credit(ctx, "nobody", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
	_, err = store.Debit(ctx, "nobody", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
	_, err = store.GetBalance(ctx, "nobody")
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)

	_, err = store.Debit(ctx, "p1", decimal.Zero)
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = store.Credit(ctx, "p1", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	err = store.CreateAccount(ctx, models.Account{ID: "p1", Role: models.RoleParent})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := newAccounts(t, map[string]int64{"p1": 1000})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Debit(ctx, "p1", decimal.NewFromInt(100))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, xerrors.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	bal, err := store.GetBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestListByRole(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAccountStore()
	require.NoError(t, store.CreateAccount(ctx, models.Account{ID: "p1", Role: models.RoleParent}))
	require.NoError(t, store.CreateAccount(ctx, models.Account{ID: "c1", Role: models.RoleChild}))
	require.NoError(t, store.CreateAccount(ctx, models.Account{ID: "p2", Role: models.RoleParent}))

	parents, err := store.ListByRole(ctx, models.RoleParent)
	require.NoError(t, err)
	require.Len(t, parents, 2)
	for _, p := range parents {
		assert.Equal(t, models.RoleParent, p.Role)
	}
}

func TestAmountsBeyondTwoDecimalsAreRefused(t *testing.T) {
	ctx := context.Background()
	store := newAccounts(t, map[string]int64{"p1": 100})

	_, err := store.Credit(ctx, "p1", decimal.RequireFromString("0.001"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)
	_, err = store.Debit(ctx, "p1", decimal.RequireFromString("1.999"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)

	// trailing zeros are not extra precision
	bal, err := store.Credit(ctx, "p1", decimal.RequireFromString("0.500"))
	require.NoError(t, err)
	assert.Equal(t, "100.5", bal.String())

	err = store.CreateAccount(ctx, models.Account{ID: "c1", Name: "Kid", Role: models.RoleChild, Balance: decimal.RequireFromString("3.141")})
	assert.ErrorIs(t, err, xerrors.ErrInvalidAmount)
}
