package interfaces

import "context"

// EventPublisher ships an event to an outside broker. key groups events that
// must stay ordered relative to each other (the fund request id).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}
