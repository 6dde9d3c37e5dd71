package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

func record(id, account, key string, at time.Time) models.TransactionRecord {
	return models.TransactionRecord{
		ID:        id,
		AccountID: account,
		Title:     "allowance",
		Amount:    decimal.NewFromInt(10),
		Kind:      models.KindIncome,
		DedupeKey: key,
		CreatedAt: at,
	}
}

func TestAppendDedupesOnKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	now := time.Now()

	id, err := store.Append(ctx, record("a", "c1", "req-1-credit", now))
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, err = store.Append(ctx, record("b", "c1", "req-1-credit", now))
	require.NoError(t, err)
	assert.Equal(t, "a", id, "retried append must resolve to the original line")
	assert.Equal(t, 1, store.Len())

	// no key, no dedupe
	_, err = store.Append(ctx, record("c", "c1", "", now))
	require.NoError(t, err)
	_, err = store.Append(ctx, record("d", "c1", "", now))
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()
	base := time.Now()

	for i, id := range []string{"r1", "r2", "r3"} {
		_, err := store.Append(ctx, record(id, "c1", "", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, record("other", "p1", "", base))
	require.NoError(t, err)

	history, err := store.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{history[0].ID, history[1].ID, history[2].ID})

	again, err := store.History(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestFindByKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLedgerStore()

	_, err := store.Append(ctx, record("a", "c1", "idem-1", time.Now()))
	require.NoError(t, err)

	rec, ok, err := store.FindByKey(ctx, "idem-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", rec.ID)

	_, ok, err = store.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
