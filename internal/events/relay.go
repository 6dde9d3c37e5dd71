// Package events forwards in-process fanout topics to external brokers.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/household-funds-ledger/internal/fanout"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
)

// Relay subscribes to topics on a hub and publishes every event it receives.
// It is a subscriber like any other: under a drop-oldest hub a slow broker
// loses events rather than slowing the saga down.
type Relay struct {
	name      string
	hub       *fanout.Hub
	publisher interfaces.EventPublisher
	topics    []string
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Collector
}

func NewRelay(name string, hub *fanout.Hub, publisher interfaces.EventPublisher, topics []string, logger *zap.Logger, m *metrics.Collector) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		name:      name,
		hub:       hub,
		publisher: publisher,
		topics:    topics,
		timeout:   5 * time.Second,
		logger:    logger.With(zap.String("relay", name)),
		metrics:   m,
	}
}

// Run forwards events until ctx is done. A relay disconnected for falling
// behind subscribes again; events published in between are not replayed.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range r.topics {
		g.Go(func() error {
			for ctx.Err() == nil {
				r.forward(ctx, r.hub.Subscribe(ctx, topic))
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Relay) forward(ctx context.Context, sub *fanout.Subscription) {
	defer sub.Close()
	for ev := range sub.C() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		err := r.publisher.Publish(pubCtx, ev.Topic, ev.Key, ev)
		cancel()
		if err != nil {
			r.metrics.RecordRelayFailure(r.name)
			r.logger.Warn("relay publish failed",
				zap.String("topic", ev.Topic),
				zap.Int64("seq", ev.Seq),
				zap.String("key", ev.Key),
				zap.Error(err),
			)
		}
	}
	if err := sub.Err(); err != nil {
		r.logger.Warn("relay fell behind and was disconnected", zap.Error(err))
	}
}
