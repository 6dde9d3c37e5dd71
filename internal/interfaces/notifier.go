package interfaces

import "context"

type Notification struct {
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Category string `json:"type"`
}

// Notifier delivers a human-readable message to one user. Callers treat every
// error as ErrNotificationDeliveryFailure: logged, never propagated.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ParentDirectory resolves which accounts may approve requests.
type ParentDirectory interface {
	ParentIDs(ctx context.Context) ([]string, error)
}
