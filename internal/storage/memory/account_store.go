package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type accountSlot struct {
	mu      sync.Mutex // serializes read-modify-write on this one account
	account models.Account
}

// MemoryAccountStore keeps balances in process. Each account has its own
// mutex, so operations on different accounts never wait on each other.
type MemoryAccountStore struct {
	mapMu sync.RWMutex // protects the slots map itself
	slots map[string]*accountSlot
	now   func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		slots: make(map[string]*accountSlot),
		now:   time.Now,
	}
}

func (m *MemoryAccountStore) slot(accountID string) (*accountSlot, error) {
	m.mapMu.RLock()
	defer m.mapMu.RUnlock()

	s, ok := m.slots[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
	}
	return s, nil
}

func (m *MemoryAccountStore) CreateAccount(ctx context.Context, account models.Account) error {
	if account.ID == "" || !account.Role.Valid() {
		return xerrors.ErrInvalidInput
	}
	if account.Balance.IsNegative() || !models.FitsScale(account.Balance) {
		return xerrors.ErrInvalidAmount
	}

	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if _, exists := m.slots[account.ID]; exists {
		return fmt.Errorf("account %s already exists: %w", account.ID, xerrors.ErrInvalidInput)
	}
	now := m.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	m.slots[account.ID] = &accountSlot{account: account}
	return nil
}

func (m *MemoryAccountStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	s, err := m.slot(accountID)
	if err != nil {
		return models.Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, nil
}

func (m *MemoryAccountStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (m *MemoryAccountStore) ListByRole(ctx context.Context, role models.Role) ([]models.Account, error) {
	m.mapMu.RLock()
	slots := make([]*accountSlot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mapMu.RUnlock()

	var result []models.Account
	for _, s := range slots {
		s.mu.Lock()
		acc := s.account
		s.mu.Unlock()
		if acc.Role == role {
			result = append(result, acc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *MemoryAccountStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !models.ValidAmount(amount) {
		return decimal.Zero, xerrors.ErrInvalidAmount
	}
	s, err := m.slot(accountID)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.account.Balance = s.account.Balance.Add(amount)
	s.account.UpdatedAt = m.now()
	return s.account.Balance, nil
}

func (m *MemoryAccountStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !models.ValidAmount(amount) {
		return decimal.Zero, xerrors.ErrInvalidAmount
	}
	s, err := m.slot(accountID)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// check and write under the same lock
	if amount.GreaterThan(s.account.Balance) {
		return s.account.Balance, fmt.Errorf("account %s: balance %s, need %s: %w",
			accountID, s.account.Balance, amount, xerrors.ErrInsufficientFunds)
	}
	s.account.Balance = s.account.Balance.Sub(amount)
	s.account.UpdatedAt = m.now()
	return s.account.Balance, nil
}

// Compile-time check: ensure MemoryAccountStore implements AccountStore interface
var _ interfaces.AccountStore = (*MemoryAccountStore)(nil)
