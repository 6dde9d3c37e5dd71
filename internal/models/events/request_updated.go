package events

import "github.com/sheikh-saqib/household-funds-ledger/internal/models"

const (
	TopicRequestLifecycle = "request_lifecycle"
	TopicTransfers        = "transfers"
)

const (
	TypeRequestCreated   = "REQUEST_CREATED"
	TypeRequestApproved  = "REQUEST_APPROVED"
	TypeRequestRejected  = "REQUEST_REJECTED"
	TypeRequestCancelled = "REQUEST_CANCELLED"
	TypeTransferDone     = "TRANSFER_COMPLETED"
)

// TypeForStatus maps the status a request entered to its lifecycle event type.
func TypeForStatus(s models.RequestStatus) string {
	switch s {
	case models.StatusApproved:
		return TypeRequestApproved
	case models.StatusRejected:
		return TypeRequestRejected
	case models.StatusCancelled:
		return TypeRequestCancelled
	default:
		return TypeRequestCreated
	}
}
