package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

type RequestFilter struct {
	RequesterID string
	Status      models.RequestStatus
}

// StatusUpdate moves a PENDING request to To. ClaimToken must equal the
// request's current claim; an empty token matches an unclaimed request only.
type StatusUpdate struct {
	RequestID  string
	To         models.RequestStatus
	ClaimToken string
	ApproverID *string
	At         time.Time
}

// FundRequestStore persists fund requests. Claim, ReleaseClaim and
// UpdateStatus are compare-and-set: of two racing calls on one request at
// most one wins, the loser gets a *xerrors.TransitionError carrying the
// state it lost to.
type FundRequestStore interface {
	Insert(ctx context.Context, req models.FundRequest) error
	Get(ctx context.Context, requestID string) (models.FundRequest, error)
	// List returns matching requests, newest first.
	List(ctx context.Context, filter RequestFilter) ([]models.FundRequest, error)

	Claim(ctx context.Context, requestID, token string, at time.Time) (models.FundRequest, error)
	ReleaseClaim(ctx context.Context, requestID, token string) error
	UpdateStatus(ctx context.Context, update StatusUpdate) (models.FundRequest, error)
}
