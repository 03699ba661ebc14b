package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

type fakeSink struct {
	kind       SinkType
	connectErr error

	mu        sync.Mutex
	connected bool
	events    []events.Event
}

func (s *fakeSink) Type() SinkType { return s.kind }

func (s *fakeSink) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *fakeSink) Publish(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.connected = false
	return nil
}

func (s *fakeSink) GetHealthStatus() HealthStatus { return HealthStatus{Status: "healthy"} }

func (s *fakeSink) received() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

func (s *fakeSink) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func TestFactory_Create(t *testing.T) {
	sinks, err := NewFactory(config.EventBusConfig{}, "node-1", nil).Create()
	require.NoError(t, err)
	assert.Empty(t, sinks)

	sinks, err = NewFactory(config.EventBusConfig{
		Redis: config.EventBusRedisConfig{Enabled: true, Addresses: []string{"localhost:6379"}},
		Kafka: config.EventBusKafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "events"},
	}, "node-1", nil).Create()
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, SinkTypeRedis, sinks[0].Type())
	assert.Equal(t, SinkTypeKafka, sinks[1].Type())
	assert.Equal(t, "eventbus-kafka", ObserverName(sinks[1]))
}

func TestFactory_CreateInvalid(t *testing.T) {
	_, err := NewFactory(config.EventBusConfig{
		Kafka: config.EventBusKafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}},
	}, "node-1", nil).Create()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConnectClosesOnFailure(t *testing.T) {
	first := &fakeSink{kind: SinkTypeRedis}
	second := &fakeSink{kind: SinkTypeKafka, connectErr: errors.New("no brokers reachable")}

	err := Connect(context.Background(), []Sink{first, second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka sink")
	assert.False(t, first.isConnected())
}

func TestCloseIgnoresUnconnected(t *testing.T) {
	connected := &fakeSink{kind: SinkTypeRedis}
	require.NoError(t, connected.Connect(context.Background()))

	assert.NoError(t, Close([]Sink{connected, &fakeSink{kind: SinkTypeKafka}}))
	assert.False(t, connected.isConnected())
}

func TestRegisterDeliversTransactions(t *testing.T) {
	sink := &fakeSink{kind: SinkTypeRedis}
	registry := observer.NewRegistry(observer.Config{MailboxSize: 4})
	t.Cleanup(registry.Stop)

	require.NoError(t, Register(registry, []Sink{sink}))
	assert.Equal(t, []string{"eventbus-redis"}, registry.Names())
	registry.Start()

	tx := &types.ClassifiedTransaction{ID: "abc", NotificationTopics: []string{types.TopicDelegation}}
	assert.Equal(t, 1, registry.Notify(tx, types.BlockContext{Number: 12}))
	require.NoError(t, registry.Flush(context.Background()))

	got := sink.received()
	require.Len(t, got, 1)
	te, ok := got[0].(*events.TransactionEvent)
	require.True(t, ok)
	assert.Equal(t, "abc", te.Tx.ID)
	assert.Equal(t, uint64(12), te.Block.Number)
}

func TestForwardBlocks(t *testing.T) {
	bus := events.NewEventBus(16, 16)
	go bus.Run()
	defer bus.Stop()

	sink := &fakeSink{kind: SinkTypeKafka}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ForwardBlocks(ctx, bus, []Sink{sink}, nil)
	}()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, bus.Publish(events.NewTransactionEvent(types.ClassifiedTransaction{ID: "ignored"}, types.BlockContext{})))
	require.True(t, bus.Publish(events.NewBlockEvent(&types.ChainBlock{Number: 7})))

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(7), sink.received()[0].(*events.BlockEvent).Number)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
	assert.Equal(t, 0, bus.SubscriberCount())
}
