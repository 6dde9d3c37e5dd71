// Package requests holds the fund request lifecycle. A request is created
// PENDING and leaves it exactly once, for APPROVED, REJECTED or CANCELLED.
package requests

import (
	"context"
	"errors"
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

type Registry struct {
	store    interfaces.FundRequestStore
	accounts interfaces.AccountStore
	logger   *zap.Logger
	now      func() time.Time

	// held by Create until the request is announced, and by every change
	locks *keylock.Map
}

func NewRegistry(store interfaces.FundRequestStore, accounts interfaces.AccountStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:    store,
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
		locks:    keylock.New(),
	}
}

type CreateInput struct {
	RequesterID   string          `json:"requester_id"`
	RequesterName string          `json:"requester_name"`
	Title         string          `json:"title"`
	Description   *string         `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
}

type CreateOption func(*createOptions)

type createOptions struct {
	announce func(models.FundRequest)
}

// Announce runs fn with the new request before anyone can claim, decide or
// cancel it, so whatever fn publishes comes first. fn must not call back
// into the registry for that request.
func Announce(fn func(models.FundRequest)) CreateOption {
	return func(o *createOptions) { o.announce = fn }
}

func (r *Registry) Create(ctx context.Context, in CreateInput, opts ...CreateOption) (models.FundRequest, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.RequesterID) == "" {
		return models.FundRequest{}, xerrors.ErrInvalidInput
	}
	if !models.ValidAmount(in.Amount) {
		return models.FundRequest{}, xerrors.ErrInvalidAmount
	}

	requester, err := r.accounts.GetAccount(ctx, in.RequesterID)
	if err != nil {
		return models.FundRequest{}, err
	}

	name := strings.TrimSpace(in.RequesterName)
	if name == "" {
		name = requester.Name
	}

	now := r.now()
	req := models.FundRequest{
		ID:            uuid.NewString(),
		RequesterID:   requester.ID,
		RequesterName: name,
		Title:         title,
		Description:   in.Description,
		Amount:        in.Amount,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC().Truncate(24 * time.Hour)
		req.Deadline = &d
	}

	unlock := r.locks.Lock(req.ID)
	defer unlock()

	if err := r.store.Insert(ctx, req); err != nil {
		return models.FundRequest{}, fmt.Errorf("insert fund request: %w", err)
	}
	if o.announce != nil {
		o.announce(req)
	}
	r.logger.Info("fund request created",
		zap.String("request_id", req.ID),
		zap.String("requester_id", req.RequesterID),
		zap.String("amount", req.Amount.String()),
	)
	return req, nil
}

type transitionOptions struct {
	claimToken string
}

type TransitionOption func(*transitionOptions)

// WithClaim presents the token returned by Claim. Moving to APPROVED needs it.
func WithClaim(token string) TransitionOption {
	return func(o *transitionOptions) { o.claimToken = token }
}

// Transition moves a PENDING request to target on behalf of actorID. Every
// refusal is a *xerrors.TransitionError and changes nothing.
func (r *Registry) Transition(ctx context.Context, requestID string, target models.RequestStatus, actorID string, opts ...TransitionOption) (models.FundRequest, error) {
	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !target.Valid() {
		return models.FundRequest{}, xerrors.ErrInvalidInput
	}

	unlock := r.locks.Lock(requestID)
	defer unlock()

	req, err := r.store.Get(ctx, requestID)
	if err != nil {
		return models.FundRequest{}, err
	}
	// a finished request reports what it became, whoever is asking
	if err := xerrors.TransitionConflict(req, target, o.claimToken); err != nil && req.Status.Terminal() {
		return models.FundRequest{}, err
	}

	switch target {
	case models.StatusApproved, models.StatusRejected:
		if err := r.checkApprover(ctx, req, target, actorID); err != nil {
			return models.FundRequest{}, err
		}
		if target == models.StatusApproved && o.claimToken == "" {
			return models.FundRequest{}, refuse(req, target, "approval needs a claim")
		}
	case models.StatusCancelled:
		if actorID != req.RequesterID {
			return models.FundRequest{}, refuse(req, target, "only the requester can cancel")
		}
	default:
		return models.FundRequest{}, refuse(req, target, "request cannot return to PENDING")
	}

	update := interfaces.StatusUpdate{
		RequestID:  requestID,
		To:         target,
		ClaimToken: o.claimToken,
		At:         r.now(),
	}
	if target != models.StatusCancelled {
		approver := actorID
		update.ApproverID = &approver
	}

	updated, err := r.store.UpdateStatus(ctx, update)
	if err != nil {
		return models.FundRequest{}, err
	}
	r.logger.Info("fund request transitioned",
		zap.String("request_id", requestID),
		zap.String("status", string(updated.Status)),
		zap.String("actor_id", actorID),
	)
	return updated, nil
}

// Claim reserves a PENDING request for one approval. Until the claim is used
// or released the request cannot be claimed again, rejected or cancelled.
func (r *Registry) Claim(ctx context.Context, requestID, approverID string) (models.FundRequest, string, error) {
	unlock := r.locks.Lock(requestID)
	defer unlock()

	req, err := r.store.Get(ctx, requestID)
	if err != nil {
		return models.FundRequest{}, "", err
	}
	if err := xerrors.TransitionConflict(req, models.StatusApproved, ""); err != nil {
		return models.FundRequest{}, "", err
	}
	if err := r.checkApprover(ctx, req, models.StatusApproved, approverID); err != nil {
		return models.FundRequest{}, "", err
	}

	token := uuid.NewString()
	claimed, err := r.store.Claim(ctx, requestID, token, r.now())
	if err != nil {
		return models.FundRequest{}, "", err
	}
	return claimed, token, nil
}

func (r *Registry) Release(ctx context.Context, requestID, token string) error {
	return r.store.ReleaseClaim(ctx, requestID, token)
}

func (r *Registry) checkApprover(ctx context.Context, req models.FundRequest, target models.RequestStatus, approverID string) error {
	if approverID == "" {
		return refuse(req, target, "no approver given")
	}
	if approverID == req.RequesterID {
		return refuse(req, target, "requester cannot decide their own request")
	}
	approver, err := r.accounts.GetAccount(ctx, approverID)
	if errors.Is(err, xerrors.ErrAccountNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("load approver: %w", err)
	}
	if approver.Role != models.RoleParent {
		return refuse(req, target, "approver is not a parent")
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, requestID string) (models.FundRequest, error) {
	return r.store.Get(ctx, requestID)
}

func (r *Registry) ListByRequester(ctx context.Context, requesterID string) ([]models.FundRequest, error) {
	return r.list(ctx, interfaces.RequestFilter{RequesterID: requesterID})
}

func (r *Registry) ListPending(ctx context.Context) ([]models.FundRequest, error) {
	return r.list(ctx, interfaces.RequestFilter{Status: models.StatusPending})
}

// List returns every request in status, or all requests when status is empty.
func (r *Registry) List(ctx context.Context, status models.RequestStatus) ([]models.FundRequest, error) {
	if status != "" && !status.Valid() {
		return nil, xerrors.ErrInvalidInput
	}
	return r.list(ctx, interfaces.RequestFilter{Status: status})
}

func (r *Registry) list(ctx context.Context, filter interfaces.RequestFilter) ([]models.FundRequest, error) {
	reqs, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []models.FundRequest{}
	}
	return reqs, nil
}

func refuse(req models.FundRequest, to models.RequestStatus, reason string) error {
	snapshot := req
	return &xerrors.TransitionError{
		RequestID: req.ID,
		From:      req.Status,
		To:        to,
		Reason:    reason,
		Request:   &snapshot,
	}
}
