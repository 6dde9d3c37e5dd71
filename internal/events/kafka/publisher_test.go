package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishKeysByRequest(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	err := p.Publish(context.Background(), "request_lifecycle", "r1", map[string]string{"type": "REQUEST_APPROVED"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "r1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TopicHeader, msg.Headers[0].Key)
	assert.Equal(t, "request_lifecycle", string(msg.Headers[0].Value))

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "REQUEST_APPROVED", body["type"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishSurfacesWriterErrors(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: errors.New("leader not available")}}
	assert.Error(t, p.Publish(context.Background(), "transfers", "r1", struct{}{}))

	assert.Error(t, p.Publish(context.Background(), "transfers", "r1", make(chan int)))
}

func TestNewPublisherUsesHashBalancer(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "household_funds")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "household_funds", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
