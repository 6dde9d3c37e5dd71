package xerrors

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

var (
	ErrAccountNotFound             = errors.New("account not found")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInvalidStateTransition      = errors.New("invalid state transition")
	ErrTransferFailed              = errors.New("transfer failed")
	ErrSagaCompensationFailure     = errors.New("saga compensation failure")
	ErrLedgerWriteFailure          = errors.New("ledger write failure")
	ErrNotificationDeliveryFailure = errors.New("notification delivery failure")
)

var (
	ErrRequestNotFound = errors.New("fund request not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidInput    = errors.New("invalid input provided")
)

// ErrNotApplied marks a store failure known to have left state untouched,
// such as a connection that was never made or a rolled-back transaction.
var ErrNotApplied = errors.New("operation not applied")

// TransitionError is returned whenever a fund request refuses to move.
// Request holds the state the registry observed, so a caller retrying an
// approve can tell an already-completed approval from a rejection.
type TransitionError struct {
	RequestID string
	From      models.RequestStatus
	To        models.RequestStatus
	Reason    string
	Request   *models.FundRequest
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: cannot move %s -> %s: %s", e.RequestID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// SagaError reports a transfer saga that failed after it started moving money.
// Kind is ErrTransferFailed or ErrSagaCompensationFailure.
type SagaError struct {
	RequestID         string
	Step              string
	Kind              error
	Cause             error
	CompensationCause error
}

func (e *SagaError) Error() string {
	if e.CompensationCause != nil {
		return fmt.Sprintf("request %s: %v at %s: %v; compensation: %v",
			e.RequestID, e.Kind, e.Step, e.Cause, e.CompensationCause)
	}
	return fmt.Sprintf("request %s: %v at %s: %v", e.RequestID, e.Kind, e.Step, e.Cause)
}

func (e *SagaError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.CompensationCause != nil {
		errs = append(errs, e.CompensationCause)
	}
	return errs
}

// IsUnrecoverable reports whether err needs manual reconciliation. Such errors
// must not be retried automatically.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrSagaCompensationFailure)
}

// NotApplied reports whether a failed balance change certainly had no effect.
// Any other failure, a timeout in particular, may have been applied.
func NotApplied(err error) bool {
	return errors.Is(err, ErrNotApplied) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput)
}

// Code is the stable identifier transports put on the wire.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSagaCompensationFailure):
		return "SAGA_COMPENSATION_FAILURE"
	case errors.Is(err, ErrTransferFailed):
		return "TRANSFER_FAILED"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrInvalidStateTransition):
		return "INVALID_STATE_TRANSITION"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrRequestNotFound):
		return "REQUEST_NOT_FOUND"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	default:
		return "INTERNAL"
	}
}

// TransitionConflict returns the *TransitionError a compare-and-set on req
// would fail with, or nil if req is PENDING and its claim matches token ("" is
// unclaimed).
func TransitionConflict(req models.FundRequest, to models.RequestStatus, token string) error {
	reason := ""
	switch {
	case req.Status != models.StatusPending:
		reason = "request is already " + string(req.Status)
	case token == "" && req.Claimed():
		reason = "request is being approved"
	case token != "" && (!req.Claimed() || *req.ClaimToken != token):
		reason = "claim is not held by caller"
	default:
		return nil
	}
	snapshot := req
	return &TransitionError{
		RequestID: req.ID,
		From:      req.Status,
		To:        to,
		Reason:    reason,
		Request:   &snapshot,
	}
}

// FromCode is the inverse of Code for clients decoding a remote error.
func FromCode(code string) error {
	switch code {
	case "SAGA_COMPENSATION_FAILURE":
		return ErrSagaCompensationFailure
	case "TRANSFER_FAILED":
		return ErrTransferFailed
	case "INSUFFICIENT_FUNDS":
		return ErrInsufficientFunds
	case "INVALID_STATE_TRANSITION":
		return ErrInvalidStateTransition
	case "ACCOUNT_NOT_FOUND":
		return ErrAccountNotFound
	case "REQUEST_NOT_FOUND":
		return ErrRequestNotFound
	case "INVALID_AMOUNT":
		return ErrInvalidAmount
	case "INVALID_INPUT":
		return ErrInvalidInput
	}
	return nil
}
