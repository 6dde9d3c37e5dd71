package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells whether a ledger line added to or took from a balance
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// TransactionRecord is one completed balance movement on one account.
// Records are immutable once appended.
type TransactionRecord struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"` // always positive, direction is in Kind
	Kind      Kind            `json:"kind"`
	RequestID string          `json:"request_id,omitempty"` // set when the movement came from a fund request
	DedupeKey string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// AmountScale is the number of decimal places kept for any amount.
const AmountScale = 2

// FitsScale reports whether d has no digits beyond AmountScale.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// ValidAmount reports whether d can be moved: positive and within AmountScale.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && FitsScale(d)
}
