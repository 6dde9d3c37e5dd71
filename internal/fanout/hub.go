// Package fanout delivers events to live subscribers of a topic. Publish never
// waits for a subscriber: each one has a bounded buffer and an overflow policy.
package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
)

type Policy string

const (
	// DropOldest discards the oldest buffered event to make room.
	DropOldest Policy = "drop-oldest"
	// Disconnect closes a subscriber whose buffer is full.
	Disconnect Policy = "disconnect"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", DropOldest:
		return DropOldest, nil
	case Disconnect:
		return Disconnect, nil
	}
	return "", errors.New("unknown fanout policy " + s)
}

// ErrSlowConsumer is reported by a subscription closed under Disconnect.
var ErrSlowConsumer = errors.New("subscriber fell behind and was disconnected")

// Event is immutable once published. Seq increases by one per topic.
type Event struct {
	Seq        int64     `json:"seq"`
	Topic      string    `json:"topic"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

type topic struct {
	name    string
	mu      sync.Mutex
	nextSeq int64
	subs    map[int]*Subscription
}

type Hub struct {
	mu      sync.Mutex
	topics  map[string]*topic
	nextSub int

	buffer  int
	policy  Policy
	metrics *metrics.Collector
	now     func() time.Time
}

func NewHub(buffer int, policy Policy, m *metrics.Collector) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if policy == "" {
		policy = DropOldest
	}
	return &Hub{
		topics:  make(map[string]*topic),
		buffer:  buffer,
		policy:  policy,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) topic(name string) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[name]
	if !ok {
		t = &topic{name: name, subs: make(map[int]*Subscription)}
		h.topics[name] = t
	}
	return t
}

// Publish assigns the next sequence number on topicName and offers the event
// to every subscriber. Events are seen in the order they were sequenced.
func (h *Hub) Publish(topicName, eventType, key string, payload any) Event {
	t := h.topic(topicName)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	event := Event{
		Seq:        t.nextSeq,
		Topic:      topicName,
		Type:       eventType,
		Key:        key,
		Payload:    payload,
		OccurredAt: h.now(),
	}

	for id, sub := range t.subs {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		if h.policy == Disconnect {
			sub.err = ErrSlowConsumer
			delete(t.subs, id)
			sub.shut()
			h.metrics.RecordFanoutDisconnect(topicName)
			continue
		}

		// only publishers holding t.mu send, so one receive frees a slot
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			h.metrics.RecordFanoutDrop(topicName)
		default:
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			h.metrics.RecordFanoutDrop(topicName)
		}
	}
	return event
}

// Subscribe receives events published on topicName from now on. The
// subscription ends on Close or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, topicName string) *Subscription {
	t := h.topic(topicName)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.mu.Unlock()

	sub := &Subscription{
		id:    id,
		topic: t,
		ch:    make(chan Event, h.buffer),
		done:  make(chan struct{}),
	}

	t.mu.Lock()
	t.subs[id] = sub
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

// Subscribers counts live subscriptions on topicName.
func (h *Hub) Subscribers(topicName string) int {
	t := h.topic(topicName)
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

type Subscription struct {
	id    int
	topic *topic
	ch    chan Event
	done  chan struct{}
	once  sync.Once

	dropped atomic.Int64
	err     error // guarded by topic.mu
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()

	delete(s.topic.subs, s.id)
	s.shut()
}

// shut must be called with topic.mu held.
func (s *Subscription) shut() {
	s.once.Do(func() {
		close(s.ch)
		close(s.done)
	})
}

// Dropped counts events discarded from this subscriber's buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Err is ErrSlowConsumer if the hub disconnected the subscriber, nil otherwise.
func (s *Subscription) Err() error {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.err
}
