package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCompleted is emitted once both balances of an approved request moved
type TransferCompleted struct {
	RequestID   string          `json:"request_id"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
