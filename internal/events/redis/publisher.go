package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
)

const DefaultChannel = "household_funds_events"

// Message is the pub/sub payload.
type Message struct {
	Topic string `json:"topic"`
	Key   string `json:"key"`
	Event any    `json:"event"`
}

// Publisher mirrors events onto a Redis pub/sub channel for dashboards and
// other processes that only need live updates.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(Message{Topic: topic, Key: key, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
