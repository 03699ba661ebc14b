package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func newTestProducer(t *testing.T, w *fakeWriter) *KafkaProducer {
	t.Helper()
	kp, err := NewKafkaProducer(config.EventBusKafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "tron-indexer-events",
	}, "node-1", nil)
	require.NoError(t, err)
	kp.dial = func(ctx context.Context) (messageWriter, error) { return w, nil }
	return kp
}

func TestNewKafkaProducer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EventBusKafkaConfig
	}{
		{"no brokers", config.EventBusKafkaConfig{Topic: "events"}},
		{"empty brokers", config.EventBusKafkaConfig{Brokers: []string{}, Topic: "events"}},
		{"no topic", config.EventBusKafkaConfig{Brokers: []string{"localhost:9092"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := NewKafkaProducer(tt.cfg, "node-1", nil)
			assert.Nil(t, kp)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestKafkaProducer_ConnectUnreachable(t *testing.T) {
	kp, err := NewKafkaProducer(config.EventBusKafkaConfig{
		Brokers: []string{"127.0.0.1:1"},
		Topic:   "events",
	}, "node-1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, kp.Connect(context.Background()), ErrConnectionFailed)
	assert.False(t, kp.Stats().Connected)
}

func TestKafkaProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	kp := newTestProducer(t, w)

	assert.ErrorIs(t, kp.Publish(context.Background(), transferEvent()), ErrNotConnected)

	require.NoError(t, kp.Connect(context.Background()))
	assert.ErrorIs(t, kp.Connect(context.Background()), ErrAlreadyConnected)

	tx := transferEvent()
	tx.Tx.NotificationTopics = []string{types.TopicTransfer, types.TopicTokenTransfer}
	require.NoError(t, kp.Publish(context.Background(), tx))
	require.NoError(t, kp.Publish(context.Background(), events.NewBlockEvent(&types.ChainBlock{Number: 77})))

	require.Len(t, w.messages, 2)
	msg := w.messages[0]
	assert.Equal(t, "TSender", string(msg.Key))
	assert.Equal(t, "transaction", header(msg, "event_type"))
	assert.Equal(t, "node-1", header(msg, "node_id"))
	assert.Equal(t, "transfer:new,token_transfer:new", header(msg, "topics"))
	assert.NotEmpty(t, header(msg, "timestamp"))

	assert.Equal(t, "block:77", string(w.messages[1].Key))
	assert.Equal(t, "block", header(w.messages[1], "event_type"))

	stats := kp.Stats()
	assert.Equal(t, uint64(2), stats.MessagesWritten)
	assert.Equal(t, uint64(len(msg.Value)+len(w.messages[1].Value)), stats.BytesWritten)
	assert.Equal(t, "healthy", kp.GetHealthStatus().Status)
}

func TestKafkaProducer_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	kp := newTestProducer(t, w)
	require.NoError(t, kp.Connect(context.Background()))

	err := kp.Publish(context.Background(), transferEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, uint64(1), kp.Stats().Errors)
}

func TestKafkaProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	kp := newTestProducer(t, w)

	assert.ErrorIs(t, kp.Close(), ErrNotConnected)
	require.NoError(t, kp.Connect(context.Background()))
	require.NoError(t, kp.Close())
	assert.True(t, w.closed)
	assert.Equal(t, "unhealthy", kp.GetHealthStatus().Status)
}
