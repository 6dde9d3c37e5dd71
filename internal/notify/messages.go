package notify

import (
	"fmt"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

// Notification categories understood by the notification service.
const (
	CategoryFundRequest      = "FUND_REQUEST"
	CategoryRequestApproved  = "REQUEST_APPROVED"
	CategoryRequestRejected  = "REQUEST_REJECTED"
	CategoryRequestCancelled = "REQUEST_CANCELLED"
)

func RequestCreated(parentID string, req models.FundRequest) interfaces.Notification {
	return interfaces.Notification{
		UserID:   parentID,
		Title:    "New fund request",
		Message:  fmt.Sprintf("%s requested %s for %s", req.RequesterName, req.Amount.String(), req.Title),
		Category: CategoryFundRequest,
	}
}

func RequestApproved(req models.FundRequest) interfaces.Notification {
	return interfaces.Notification{
		UserID:   req.RequesterID,
		Title:    "Request approved",
		Message:  fmt.Sprintf("Your request %q for %s was approved", req.Title, req.Amount.String()),
		Category: CategoryRequestApproved,
	}
}

func RequestRejected(req models.FundRequest) interfaces.Notification {
	return interfaces.Notification{
		UserID:   req.RequesterID,
		Title:    "Request rejected",
		Message:  fmt.Sprintf("Your request %q for %s was rejected", req.Title, req.Amount.String()),
		Category: CategoryRequestRejected,
	}
}

// RequestCancelled goes to the parent who would have decided, if known.
func RequestCancelled(parentID string, req models.FundRequest) interfaces.Notification {
	return interfaces.Notification{
		UserID:   parentID,
		Title:    "Request cancelled",
		Message:  fmt.Sprintf("%s cancelled the request %q", req.RequesterName, req.Title),
		Category: CategoryRequestCancelled,
	}
}
