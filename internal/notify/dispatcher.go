package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// Dispatcher queues notifications and sends them from a fixed set of workers,
// so a slow notification service never holds up a transfer. Send only fails
// when the queue is full.
type Dispatcher struct {
	target  interfaces.Notifier
	queue   chan interfaces.Notification
	workers int
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewDispatcher(target interfaces.Notifier, queueSize, workers int, timeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		target:  target,
		queue:   make(chan interfaces.Notification, queueSize),
		workers: workers,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

func (d *Dispatcher) Send(ctx context.Context, n interfaces.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		d.metrics.RecordNotificationFailure("queue_full")
		return fmt.Errorf("%w: queue full, dropped notification for %s", xerrors.ErrNotificationDeliveryFailure, n.UserID)
	}
}

// Run sends queued notifications until ctx is done, then flushes what is
// already queued before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
	d.flush()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(n interfaces.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.target.Send(ctx, n); err != nil {
		d.metrics.RecordNotificationFailure("send")
		d.logger.Warn("notification not delivered",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Category),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("notification sent", zap.String("user_id", n.UserID), zap.String("title", n.Title))
}

var _ interfaces.Notifier = (*Dispatcher)(nil)
