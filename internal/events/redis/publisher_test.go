package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "funds")
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	p := NewPublisher(rdb, "funds")
	require.NoError(t, p.Publish(ctx, "request_lifecycle", "r1", map[string]string{"status": "APPROVED"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "funds", msg.Channel)

	var got struct {
		Topic string            `json:"topic"`
		Key   string            `json:"key"`
		Event map[string]string `json:"event"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "request_lifecycle", got.Topic)
	assert.Equal(t, "r1", got.Key)
	assert.Equal(t, "APPROVED", got.Event["status"])
}

func TestPublishFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	p := NewPublisher(rdb, "")
	assert.Equal(t, DefaultChannel, p.channel)
	assert.Error(t, p.Publish(context.Background(), "transfers", "r1", struct{}{}))
}
