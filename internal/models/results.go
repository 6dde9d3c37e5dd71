package models

import "github.com/shopspring/decimal"

// ApproveResult is only ever returned for a completed transfer. Failures come
// back as errors so a half-filled result cannot be mistaken for success.
type ApproveResult struct {
	Request      FundRequest     `json:"request"`
	PayerBalance decimal.Decimal `json:"parent_balance"`
	PayeeBalance decimal.Decimal `json:"child_balance"`
}

type TransactionResult struct {
	Transaction TransactionRecord `json:"transaction"`
	NewBalance  decimal.Decimal   `json:"new_balance"`
}
