package memory

import (
	"context"
	"sync"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Entries live in an append-only slice.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries []models.TransactionRecord
	byKey   map[string]string // dedupe key -> record id
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make([]models.TransactionRecord, 0),
		byKey:   make(map[string]string),
	}
}

func (m *MemoryLedgerStore) Append(ctx context.Context, record models.TransactionRecord) (string, error) {
	if record.ID == "" || record.AccountID == "" || !record.Kind.Valid() {
		return "", xerrors.ErrInvalidInput
	}
	if !models.ValidAmount(record.Amount) {
		return "", xerrors.ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.DedupeKey != "" {
		if id, seen := m.byKey[record.DedupeKey]; seen {
			return id, nil
		}
		m.byKey[record.DedupeKey] = record.ID
	}
	m.entries = append(m.entries, record)
	return record.ID, nil
}

func (m *MemoryLedgerStore) History(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.TransactionRecord
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID == accountID {
			result = append(result, m.entries[i])
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) FindByKey(ctx context.Context, dedupeKey string) (models.TransactionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[dedupeKey]
	if !ok || dedupeKey == "" {
		return models.TransactionRecord{}, false, nil
	}
	for _, e := range m.entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return models.TransactionRecord{}, false, nil
}

// Len is the total number of stored records across all accounts.
func (m *MemoryLedgerStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
