package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// Retrier re-appends ledger lines whose first write failed. Enqueue never
// blocks; one worker drains the queue in order, backing off on each line until
// it lands.
type Retrier struct {
	store   interfaces.LedgerStore
	logger  *zap.Logger
	metrics *metrics.Collector

	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	queue  []models.TransactionRecord
	signal chan struct{}
}

type RetrierOption func(*Retrier)

// WithBackOff replaces the default exponential policy.
func WithBackOff(fn func() backoff.BackOff) RetrierOption {
	return func(r *Retrier) { r.newBackOff = fn }
}

func WithMetrics(m *metrics.Collector) RetrierOption {
	return func(r *Retrier) { r.metrics = m }
}

func NewRetrier(store interfaces.LedgerStore, logger *zap.Logger, opts ...RetrierOption) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrier{
		store:  store,
		logger: logger,
		signal: make(chan struct{}, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0 // until it lands or the worker stops
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Enqueue(records ...models.TransactionRecord) {
	if len(records) == 0 {
		return
	}
	r.mu.Lock()
	r.queue = append(r.queue, records...)
	n := len(r.queue)
	r.mu.Unlock()

	r.metrics.RecordLedgerPending(n)
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Pending counts queued lines, including the one being retried.
func (r *Retrier) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Lookup finds a queued line by dedupe key.
func (r *Retrier) Lookup(dedupeKey string) (models.TransactionRecord, bool) {
	if dedupeKey == "" {
		return models.TransactionRecord{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.queue {
		if rec.DedupeKey == dedupeKey {
			return rec, true
		}
	}
	return models.TransactionRecord{}, false
}

// Run drains the queue until ctx is done. Lines still queued at shutdown are
// logged so they can be replayed by hand.
func (r *Retrier) Run(ctx context.Context) error {
	for {
		for {
			rec, ok := r.peek()
			if !ok {
				break
			}
			if err := r.retry(ctx, rec); err != nil {
				if ctx.Err() != nil {
					r.logAbandoned()
					return nil
				}
				r.logger.Error("dropping ledger line that cannot be written",
					zap.String("record_id", rec.ID),
					zap.String("dedupe_key", rec.DedupeKey),
					zap.Error(err),
				)
			}
			r.pop()
		}

		select {
		case <-ctx.Done():
			r.logAbandoned()
			return nil
		case <-r.signal:
		}
	}
}

func (r *Retrier) retry(ctx context.Context, rec models.TransactionRecord) error {
	op := func() error {
		_, err := r.store.Append(ctx, rec)
		if errors.Is(err, xerrors.ErrInvalidInput) || errors.Is(err, xerrors.ErrInvalidAmount) {
			return backoff.Permanent(err)
		}
		r.metrics.RecordLedgerRetry(err)
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("ledger retry failed",
			zap.String("record_id", rec.ID),
			zap.Duration("next_in", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify)
}

func (r *Retrier) peek() (models.TransactionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return models.TransactionRecord{}, false
	}
	return r.queue[0], true
}

func (r *Retrier) pop() {
	r.mu.Lock()
	r.queue = r.queue[1:]
	n := len(r.queue)
	r.mu.Unlock()
	r.metrics.RecordLedgerPending(n)
}

func (r *Retrier) logAbandoned() {
	if n := r.Pending(); n > 0 {
		r.logger.Error("ledger retrier stopped with unwritten lines", zap.Int("pending", n))
	}
}
