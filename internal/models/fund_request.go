package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

func (s RequestStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// FundRequest is a child's ask for money from a parent
type FundRequest struct {
	ID            string          `json:"id"`
	RequesterID   string          `json:"requester_id"`
	RequesterName string          `json:"requester_name"`
	Title         string          `json:"title"`
	Description   *string         `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Deadline      *time.Time      `json:"deadline,omitempty"` // date only, UTC midnight
	Status        RequestStatus   `json:"status"`
	ApproverID    *string         `json:"approver_id,omitempty"` // parent that approved or rejected
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// An approval in flight holds the claim. It never shows up as a status.
	ClaimToken *string    `json:"-"`
	ClaimedAt  *time.Time `json:"-"`
}

// Claimed reports whether an approval currently holds the request.
func (r FundRequest) Claimed() bool {
	return r.ClaimToken != nil && *r.ClaimToken != ""
}
