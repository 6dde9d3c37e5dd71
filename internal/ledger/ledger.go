package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/keylock"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// Ledger records balance movements. It never rewrites a line: corrections are
// new lines.
type Ledger struct {
	store    interfaces.LedgerStore
	accounts interfaces.AccountStore
	retrier  *Retrier
	logger   *zap.Logger
	now      func() time.Time

	keys *keylock.Map // one lock per idempotency key in flight
}

// NewLedger wires a ledger over its stores. retrier may be nil, in which case
// failed transfer appends are only reported.
func NewLedger(store interfaces.LedgerStore, accounts interfaces.AccountStore, retrier *Retrier, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:    store,
		accounts: accounts,
		retrier:  retrier,
		logger:   logger,
		now:      time.Now,
		keys:     keylock.New(),
	}
}

type RecordInput struct {
	AccountID string
	Title     string
	Amount    decimal.Decimal
	Kind      models.Kind
	// IdempotencyKey makes a retried call return the first call's record
	// instead of moving the balance again.
	IdempotencyKey string
}

// Record moves one account's balance and appends the matching line.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (models.TransactionResult, error) {
	if strings.TrimSpace(in.AccountID) == "" || strings.TrimSpace(in.Title) == "" || !in.Kind.Valid() {
		return models.TransactionResult{}, xerrors.ErrInvalidInput
	}
	if !models.ValidAmount(in.Amount) {
		return models.TransactionResult{}, xerrors.ErrInvalidAmount
	}

	dedupeKey := ""
	if in.IdempotencyKey != "" {
		dedupeKey = ClientKey(in.IdempotencyKey)
		unlock := l.keys.Lock(dedupeKey)
		defer unlock()

		existing, found, err := l.findByKey(ctx, dedupeKey)
		if err != nil {
			return models.TransactionResult{}, err
		}
		if found {
			balance, err := l.accounts.GetBalance(ctx, existing.AccountID)
			if err != nil {
				return models.TransactionResult{}, err
			}
			return models.TransactionResult{Transaction: existing, NewBalance: balance}, nil
		}
	}

	var (
		balance decimal.Decimal
		err     error
	)
	if in.Kind == models.KindIncome {
		balance, err = l.accounts.Credit(ctx, in.AccountID, in.Amount)
	} else {
		balance, err = l.accounts.Debit(ctx, in.AccountID, in.Amount)
	}
	if err != nil {
		return models.TransactionResult{}, err
	}

	rec := models.TransactionRecord{
		ID:        uuid.NewString(),
		AccountID: in.AccountID,
		Title:     in.Title,
		Amount:    in.Amount,
		Kind:      in.Kind,
		DedupeKey: dedupeKey,
		CreatedAt: l.now(),
	}
	id, err := l.store.Append(ctx, rec)
	if err != nil {
		// the balance already moved; the line must follow
		l.logger.Warn("ledger append failed, queued for retry",
			zap.String("account_id", in.AccountID),
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
		l.enqueue(rec)
		return models.TransactionResult{Transaction: rec, NewBalance: balance}, nil
	}
	rec.ID = id
	return models.TransactionResult{Transaction: rec, NewBalance: balance}, nil
}

func (l *Ledger) findByKey(ctx context.Context, key string) (models.TransactionRecord, bool, error) {
	if l.retrier != nil {
		if rec, ok := l.retrier.Lookup(key); ok {
			return rec, true, nil
		}
	}
	rec, found, err := l.store.FindByKey(ctx, key)
	if err != nil {
		return models.TransactionRecord{}, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return rec, found, nil
}

func (l *Ledger) enqueue(records ...models.TransactionRecord) {
	if l.retrier == nil {
		return
	}
	l.retrier.Enqueue(records...)
}

type Transfer struct {
	RequestID string
	Title     string
	PayerID   string
	PayeeID   string
	Amount    decimal.Decimal
	At        time.Time
}

// DebitKey and CreditKey name the two lines of a request's transfer. Appending
// either twice is a no-op. ClientKey holds caller-supplied keys in a separate
// namespace, so no caller can claim a transfer line's key.
func DebitKey(requestID string) string  { return "req:" + requestID + ":debit" }
func CreditKey(requestID string) string { return "req:" + requestID + ":credit" }
func ClientKey(key string) string       { return "tx:" + key }

// TransferRecords builds the payer EXPENSE line and the payee INCOME line.
func TransferRecords(t Transfer) []models.TransactionRecord {
	return []models.TransactionRecord{
		{
			ID:        uuid.NewString(),
			AccountID: t.PayerID,
			Title:     t.Title,
			Amount:    t.Amount,
			Kind:      models.KindExpense,
			RequestID: t.RequestID,
			DedupeKey: DebitKey(t.RequestID),
			CreatedAt: t.At,
		},
		{
			ID:        uuid.NewString(),
			AccountID: t.PayeeID,
			Title:     t.Title,
			Amount:    t.Amount,
			Kind:      models.KindIncome,
			RequestID: t.RequestID,
			DedupeKey: CreditKey(t.RequestID),
			CreatedAt: t.At,
		},
	}
}

// RecordTransfer appends both lines of an approved transfer. Lines that fail
// are handed to the retrier and the error wraps ErrLedgerWriteFailure.
func (l *Ledger) RecordTransfer(ctx context.Context, t Transfer) error {
	var (
		failed   []models.TransactionRecord
		firstErr error
	)
	for _, rec := range TransferRecords(t) {
		if _, err := l.store.Append(ctx, rec); err != nil {
			failed = append(failed, rec)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}

	l.enqueue(failed...)
	return fmt.Errorf("%w: request %s: %v", xerrors.ErrLedgerWriteFailure, t.RequestID, firstErr)
}

// History returns the account's lines, newest first.
func (l *Ledger) History(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	if _, err := l.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	records, err := l.store.History(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}
	return records, nil
}
