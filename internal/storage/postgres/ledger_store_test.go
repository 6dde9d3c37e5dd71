package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

func debitLine(id string) models.TransactionRecord {
	return models.TransactionRecord{
		ID:        id,
		AccountID: "p1",
		Title:     "Fund request: books",
		Amount:    decimal.NewFromInt(500_000),
		Kind:      models.KindExpense,
		RequestID: "r1",
		DedupeKey: "r1-debit",
		CreatedAt: time.Now(),
	}
}

func TestAppendInserts(t *testing.T) {
	db, mock := newMock(t)
	store := NewPostgresLedgerStore(db)

	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs("e1", "p1", "Fund request: books", decimal.NewFromInt(500_000), models.KindExpense,
			"r1", "r1-debit", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1"))

	id, err := store.Append(context.Background(), debitLine("e1"))
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
}

func TestAppendDuplicateKeyResolvesExistingID(t *testing.T) {
	db, mock := newMock(t)
	store := NewPostgresLedgerStore(db)

	mock.ExpectQuery("INSERT INTO ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM ledger_entries WHERE dedupe_key").
		WithArgs("r1-debit").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1"))

	id, err := store.Append(context.Background(), debitLine("e2"))
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
}

func TestLedgerHistory(t *testing.T) {
	db, mock := newMock(t)
	store := NewPostgresLedgerStore(db)
	now := time.Now()

	cols := []string{"id", "account_id", "title", "amount", "kind", "request_id", "dedupe_key", "created_at"}
	mock.ExpectQuery("SELECT id, account_id, title, amount, kind, request_id, dedupe_key, created_at").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e3", "c1", "snack", "2000", "EXPENSE", nil, nil, now).
			AddRow("e2", "c1", "Fund request: books", "500000", "INCOME", "r1", "r1-credit", now.Add(-time.Minute)))

	history, err := store.History(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "e3", history[0].ID)
	assert.Empty(t, history[0].RequestID)
	assert.Equal(t, models.KindIncome, history[1].Kind)
	assert.Equal(t, "r1", history[1].RequestID)
	assert.Equal(t, "500000", history[1].Amount.String())
}

func TestFindByKey(t *testing.T) {
	db, mock := newMock(t)
	store := NewPostgresLedgerStore(db)

	cols := []string{"id", "account_id", "title", "amount", "kind", "request_id", "dedupe_key", "created_at"}
	mock.ExpectQuery("FROM ledger_entries WHERE dedupe_key").
		WithArgs("idem-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("e9", "c1", "snack", "2000", "EXPENSE", nil, "idem-1", time.Now()))
	mock.ExpectQuery("FROM ledger_entries WHERE dedupe_key").
		WithArgs("idem-2").
		WillReturnRows(sqlmock.NewRows(cols))

	rec, ok, err := store.FindByKey(context.Background(), "idem-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "e9", rec.ID)

	_, ok, err = store.FindByKey(context.Background(), "idem-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
