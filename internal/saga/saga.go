// Package saga moves money for approved fund requests.
//
// The payer and payee balances live in separate stores with no shared
// transaction, so an approval is a sequence of steps: claim the request,
// check funds, debit the payer, credit the payee, write the ledger, mark the
// request APPROVED, publish, notify. A credit that certainly did not land is
// undone by crediting the payer back. A debit or credit whose outcome is
// unknown, a timeout for instance, is never reversed blindly: like a failed
// reversal it leaves the request claimed for an operator to reconcile.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/household-funds-ledger/internal/fanout"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/ledger"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models/events"
	"github.com/sheikh-saqib/household-funds-ledger/internal/notify"
	"github.com/sheikh-saqib/household-funds-ledger/internal/requests"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// Step names used in logs and SagaError.Step.
const (
	StepClaim      = "claim"
	StepFunds      = "check_funds"
	StepDebit      = "debit"
	StepCredit     = "credit"
	StepLedger     = "ledger"
	StepTransition = "transition"
)

type Config struct {
	// StepTimeout bounds every call to another component.
	StepTimeout time.Duration
	// CompensationAttempts is how many times a reversal is tried.
	CompensationAttempts int
	CompensationInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		StepTimeout:          5 * time.Second,
		CompensationAttempts: 3,
		CompensationInterval: 100 * time.Millisecond,
	}
}

type Deps struct {
	Registry *requests.Registry
	Accounts interfaces.AccountStore
	Ledger   *ledger.Ledger
	Hub      *fanout.Hub
	Notifier interfaces.Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

type Saga struct {
	registry *requests.Registry
	accounts interfaces.AccountStore
	ledger   *ledger.Ledger
	hub      *fanout.Hub
	notifier interfaces.Notifier
	logger   *zap.Logger
	metrics  *metrics.Collector
	cfg      Config
	now      func() time.Time
}

func New(d Deps, cfg Config) *Saga {
	def := DefaultConfig()
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if cfg.CompensationAttempts < 1 {
		cfg.CompensationAttempts = def.CompensationAttempts
	}
	if cfg.CompensationInterval <= 0 {
		cfg.CompensationInterval = def.CompensationInterval
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Saga{
		registry: d.Registry,
		accounts: d.Accounts,
		ledger:   d.Ledger,
		hub:      d.Hub,
		notifier: d.Notifier,
		logger:   d.Logger,
		metrics:  d.Metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Saga) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StepTimeout)
}

// Approve moves req.Amount from approverID to the requester and marks the
// request APPROVED. Repeating a finished approval changes nothing and returns
// a *xerrors.TransitionError whose Request shows the APPROVED state.
func (s *Saga) Approve(ctx context.Context, requestID, approverID string) (models.ApproveResult, error) {
	log := s.logger.With(zap.String("request_id", requestID), zap.String("approver_id", approverID))

	stepCtx, cancel := s.step(ctx)
	req, token, err := s.registry.Claim(stepCtx, requestID, approverID)
	cancel()
	if err != nil {
		s.outcome("approve", err)
		return models.ApproveResult{}, err
	}
	amount := req.Amount

	stepCtx, cancel = s.step(ctx)
	balance, err := s.accounts.GetBalance(stepCtx, approverID)
	cancel()
	if err != nil {
		s.release(log, requestID, token)
		s.outcome("approve", err)
		return models.ApproveResult{}, fmt.Errorf("%s: %w", StepFunds, err)
	}
	if balance.LessThan(amount) {
		s.release(log, requestID, token)
		err := fmt.Errorf("approver balance %s below %s: %w", balance, amount, xerrors.ErrInsufficientFunds)
		s.outcome("approve", err)
		return models.ApproveResult{}, err
	}

	if err := ctx.Err(); err != nil {
		s.release(log, requestID, token)
		s.outcome("approve", err)
		return models.ApproveResult{}, err
	}
	// money moves from here on: finish regardless of the caller going away
	ctx = context.WithoutCancel(ctx)

	stepCtx, cancel = s.step(ctx)
	payerBalance, err := s.accounts.Debit(stepCtx, approverID, amount)
	cancel()
	if err != nil {
		if !xerrors.NotApplied(err) {
			return models.ApproveResult{}, s.freeze(log, req, approverID, StepDebit, err, nil, 0)
		}
		s.release(log, requestID, token)
		if !errors.Is(err, xerrors.ErrInsufficientFunds) && !errors.Is(err, xerrors.ErrAccountNotFound) {
			err = &xerrors.SagaError{RequestID: requestID, Step: StepDebit, Kind: xerrors.ErrTransferFailed, Cause: err}
		}
		s.outcome("approve", err)
		return models.ApproveResult{}, err
	}

	stepCtx, cancel = s.step(ctx)
	payeeBalance, err := s.accounts.Credit(stepCtx, req.RequesterID, amount)
	cancel()
	if err != nil {
		// crediting the payer back after a credit that landed would create money
		if !xerrors.NotApplied(err) {
			return models.ApproveResult{}, s.freeze(log, req, approverID, StepCredit, err, nil, 0)
		}
		return models.ApproveResult{}, s.compensate(ctx, log, req, approverID, token, err)
	}

	at := s.now()
	stepCtx, cancel = s.step(ctx)
	err = s.ledger.RecordTransfer(stepCtx, ledger.Transfer{
		RequestID: requestID,
		Title:     "Fund request: " + req.Title,
		PayerID:   approverID,
		PayeeID:   req.RequesterID,
		Amount:    amount,
		At:        at,
	})
	cancel()
	if err != nil {
		log.Warn("ledger write deferred to retrier", zap.String("step", StepLedger), zap.Error(err))
	}

	approved, err := s.markApproved(ctx, log, requestID, approverID, token)
	if err != nil {
		s.outcome("approve", err)
		return models.ApproveResult{}, err
	}

	s.hub.Publish(events.TopicRequestLifecycle, events.TypeRequestApproved, requestID, approved)
	s.hub.Publish(events.TopicTransfers, events.TypeTransferDone, requestID, events.TransferCompleted{
		RequestID:   requestID,
		FromAccount: approverID,
		ToAccount:   req.RequesterID,
		Amount:      amount,
		OccurredAt:  at,
	})

	s.notify(ctx, log, notify.RequestApproved(approved))

	s.metrics.RecordSagaOutcome("approve", metrics.OutcomeApproved)
	log.Info("fund request approved",
		zap.String("amount", amount.String()),
		zap.String("payer_balance", payerBalance.String()),
		zap.String("payee_balance", payeeBalance.String()),
	)
	return models.ApproveResult{
		Request:      approved,
		PayerBalance: payerBalance,
		PayeeBalance: payeeBalance,
	}, nil
}

// compensate credits the payer back after a credit to the payee that certainly
// did not land. Only failures that did not apply are retried.
func (s *Saga) compensate(ctx context.Context, log *zap.Logger, req models.FundRequest, approverID, token string, creditErr error) error {
	log.Warn("credit failed, reversing debit", zap.String("step", StepCredit), zap.Error(creditErr))

	attempt := 0
	op := func() error {
		attempt++
		stepCtx, cancel := s.step(ctx)
		defer cancel()
		_, err := s.accounts.Credit(stepCtx, approverID, req.Amount)
		if err != nil && (errors.Is(err, xerrors.ErrAccountNotFound) || !xerrors.NotApplied(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.CompensationInterval), uint64(s.cfg.CompensationAttempts-1))
	compErr := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.Warn("compensation attempt failed", zap.Int("attempt", attempt), zap.Duration("next_in", next), zap.Error(err))
	})
	s.metrics.RecordCompensation(compErr)

	if compErr == nil {
		s.release(log, req.ID, token)
		err := &xerrors.SagaError{RequestID: req.ID, Step: StepCredit, Kind: xerrors.ErrTransferFailed, Cause: creditErr}
		s.outcome("approve", err)
		return err
	}
	return s.freeze(log, req, approverID, StepCredit, creditErr, compErr, attempt)
}

// freeze leaves the claim in place so nothing else can touch the request, and
// raises the alert for an operator to reconcile the balances.
func (s *Saga) freeze(log *zap.Logger, req models.FundRequest, approverID, step string, cause, compErr error, attempts int) error {
	fields := []zap.Field{
		zap.String("alert", "manual_reconciliation"),
		zap.String("step", step),
		zap.String("payer_id", approverID),
		zap.String("payee_id", req.RequesterID),
		zap.String("amount", req.Amount.String()),
		zap.NamedError("step_error", cause),
	}
	msg := step + " outcome unknown, manual reconciliation required"
	if compErr != nil {
		msg = "compensation failed, manual reconciliation required"
		fields = append(fields, zap.Int("attempts", attempts), zap.NamedError("compensation_error", compErr))
	}
	log.Error(msg, fields...)

	err := &xerrors.SagaError{
		RequestID:         req.ID,
		Step:              step,
		Kind:              xerrors.ErrSagaCompensationFailure,
		Cause:             cause,
		CompensationCause: compErr,
	}
	s.outcome("approve", err)
	return err
}

// markApproved uses the claim to enter APPROVED. Both balances have already
// moved, so a transient store error is retried like a compensation.
func (s *Saga) markApproved(ctx context.Context, log *zap.Logger, requestID, approverID, token string) (models.FundRequest, error) {
	var approved models.FundRequest
	op := func() error {
		stepCtx, cancel := s.step(ctx)
		defer cancel()
		req, err := s.registry.Transition(stepCtx, requestID, models.StatusApproved, approverID, requests.WithClaim(token))
		if err == nil {
			approved = req
			return nil
		}
		var te *xerrors.TransitionError
		if errors.As(err, &te) {
			if te.Request != nil && te.Request.Status == models.StatusApproved {
				approved = *te.Request
				return nil
			}
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.CompensationInterval), uint64(s.cfg.CompensationAttempts-1))
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		log.Error("transfer completed but request not marked approved, manual reconciliation required",
			zap.String("alert", "manual_reconciliation"),
			zap.String("step", StepTransition),
			zap.Error(err),
		)
		return models.FundRequest{}, &xerrors.SagaError{
			RequestID: requestID,
			Step:      StepTransition,
			Kind:      xerrors.ErrSagaCompensationFailure,
			Cause:     err,
		}
	}
	return approved, nil
}

func (s *Saga) release(log *zap.Logger, requestID, token string) {
	ctx, cancel := s.step(context.Background())
	defer cancel()
	if err := s.registry.Release(ctx, requestID, token); err != nil {
		log.Error("could not release approval claim", zap.Error(err))
	}
}

// Reject moves a PENDING request to REJECTED. No money moves.
func (s *Saga) Reject(ctx context.Context, requestID, approverID string) (models.FundRequest, error) {
	stepCtx, cancel := s.step(ctx)
	rejected, err := s.registry.Transition(stepCtx, requestID, models.StatusRejected, approverID)
	cancel()
	if err != nil {
		s.outcome("reject", err)
		return models.FundRequest{}, err
	}

	s.hub.Publish(events.TopicRequestLifecycle, events.TypeRequestRejected, requestID, rejected)
	log := s.logger.With(zap.String("request_id", requestID), zap.String("approver_id", approverID))
	s.notify(ctx, log, notify.RequestRejected(rejected))

	s.metrics.RecordSagaOutcome("reject", metrics.OutcomeRejected)
	log.Info("fund request rejected")
	return rejected, nil
}

// Cancel lets the requester withdraw a PENDING request that no approval holds.
func (s *Saga) Cancel(ctx context.Context, requestID, requesterID string) (models.FundRequest, error) {
	stepCtx, cancel := s.step(ctx)
	cancelled, err := s.registry.Transition(stepCtx, requestID, models.StatusCancelled, requesterID)
	cancel()
	if err != nil {
		s.outcome("cancel", err)
		return models.FundRequest{}, err
	}

	s.hub.Publish(events.TopicRequestLifecycle, events.TypeRequestCancelled, requestID, cancelled)
	s.metrics.RecordSagaOutcome("cancel", metrics.OutcomeCancelled)
	s.logger.Info("fund request cancelled", zap.String("request_id", requestID))
	return cancelled, nil
}

func (s *Saga) notify(ctx context.Context, log *zap.Logger, n interfaces.Notification) {
	if s.notifier == nil {
		return
	}
	stepCtx, cancel := s.step(ctx)
	defer cancel()
	if err := s.notifier.Send(stepCtx, n); err != nil {
		s.metrics.RecordNotificationFailure("saga")
		log.Warn("notification failed",
			zap.String("user_id", n.UserID),
			zap.Error(fmt.Errorf("%w: %v", xerrors.ErrNotificationDeliveryFailure, err)),
		)
	}
}

func (s *Saga) outcome(op string, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, xerrors.ErrSagaCompensationFailure):
		s.metrics.RecordSagaOutcome(op, metrics.OutcomeCompensationFailure)
	case errors.Is(err, xerrors.ErrTransferFailed):
		s.metrics.RecordSagaOutcome(op, metrics.OutcomeTransferFailed)
	case errors.Is(err, xerrors.ErrInsufficientFunds):
		s.metrics.RecordSagaOutcome(op, metrics.OutcomeInsufficientFunds)
	case errors.Is(err, xerrors.ErrInvalidStateTransition):
		s.metrics.RecordSagaOutcome(op, metrics.OutcomeInvalidTransition)
	default:
		s.metrics.RecordSagaOutcome(op, metrics.OutcomeInternalError)
	}
}
