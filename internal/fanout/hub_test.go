package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishOrderAndSequence(t *testing.T) {
	hub := NewHub(16, DropOldest, nil)
	sub := hub.Subscribe(context.Background(), "requests")
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish("requests", "REQUEST_CREATED", "r1", i)
	}
	other := hub.Publish("transfers", "TRANSFER_COMPLETED", "r1", nil)
	assert.Equal(t, int64(1), other.Seq, "sequences are per topic")

	events := drain(sub)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, i, ev.Payload)
		assert.Equal(t, "requests", ev.Topic)
	}
}

func TestDropOldestKeepsNewest(t *testing.T) {
	hub := NewHub(3, DropOldest, nil)
	sub := hub.Subscribe(context.Background(), "requests")
	defer sub.Close()

	for i := 1; i <= 10; i++ {
		hub.Publish("requests", "REQUEST_UPDATED", "r", i)
	}

	events := drain(sub)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{8, 9, 10}, []int64{events[0].Seq, events[1].Seq, events[2].Seq})
	assert.Equal(t, int64(7), sub.Dropped())
	assert.NoError(t, sub.Err())
}

func TestDisconnectClosesSlowSubscriber(t *testing.T) {
	hub := NewHub(2, Disconnect, nil)
	slow := hub.Subscribe(context.Background(), "requests")
	fast := hub.Subscribe(context.Background(), "requests")
	defer fast.Close()

	hub.Publish("requests", "A", "r", nil)
	hub.Publish("requests", "B", "r", nil)
	drain(fast)
	hub.Publish("requests", "C", "r", nil)

	events := drain(slow)
	assert.Len(t, events, 2, "buffered events stay readable after disconnect")
	_, open := <-slow.C()
	assert.False(t, open)
	assert.ErrorIs(t, slow.Err(), ErrSlowConsumer)
	assert.Equal(t, 1, hub.Subscribers("requests"))

	got := drain(fast)
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].Type)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewHub(4, DropOldest, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx, "requests")

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription still open after context cancel")
	}
	assert.Equal(t, 0, hub.Subscribers("requests"))

	// publishing after the drop must not panic on the closed channel
	assert.NotPanics(t, func() { hub.Publish("requests", "A", "r", nil) })
	sub.Close()
}

func TestConcurrentPublishersKeepSequenceDense(t *testing.T) {
	hub := NewHub(1000, DropOldest, nil)
	sub := hub.Subscribe(context.Background(), "requests")
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish("requests", "A", "r", nil)
			}
		}()
	}
	wg.Wait()

	events := drain(sub)
	require.Len(t, events, 500)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	p, err = ParsePolicy("disconnect")
	require.NoError(t, err)
	assert.Equal(t, Disconnect, p)

	_, err = ParsePolicy("block")
	assert.Error(t, err)
}
