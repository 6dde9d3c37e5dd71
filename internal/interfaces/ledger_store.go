package interfaces

import (
	"context"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

// LedgerStore is append only. Appending a record whose non-empty DedupeKey is
// already stored returns the stored record's id and writes nothing.
type LedgerStore interface {
	Append(ctx context.Context, record models.TransactionRecord) (string, error)
	// History returns the account's records, most recent first.
	History(ctx context.Context, accountID string) ([]models.TransactionRecord, error)
	// FindByKey reports the record stored under a dedupe key, if any.
	FindByKey(ctx context.Context, dedupeKey string) (models.TransactionRecord, bool, error)
}
