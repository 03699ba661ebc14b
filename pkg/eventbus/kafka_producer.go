package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
)

// brokerProbeTimeout bounds the TCP probe done by Connect
const brokerProbeTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer streams indexer events to a Kafka topic. Transactions are
// keyed by sender so one address's history stays on one partition.
type KafkaProducer struct {
	config     config.EventBusKafkaConfig
	serializer EventSerializer
	nodeID     string
	logger     *zap.Logger

	// dial builds the writer on Connect
	dial func(ctx context.Context) (messageWriter, error)

	mu        sync.RWMutex
	writer    messageWriter
	connected atomic.Bool

	stats struct {
		messagesWritten atomic.Uint64
		bytesWritten    atomic.Uint64
		errors          atomic.Uint64
	}

	startTime time.Time
}

var _ Sink = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new Kafka producer; call Connect before publishing
func NewKafkaProducer(cfg config.EventBusKafkaConfig, nodeID string, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no Kafka brokers configured", ErrInvalidConfiguration)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: no Kafka topic configured", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kp := &KafkaProducer{
		config:     cfg,
		serializer: NewJSONSerializer(nodeID),
		nodeID:     nodeID,
		logger:     logger.With(zap.String("component", "kafka-producer"), zap.String("nodeID", nodeID)),
		startTime:  time.Now(),
	}
	kp.dial = kp.newWriter
	return kp, nil
}

// newWriter probes the brokers and builds a synchronous writer
func (kp *KafkaProducer) newWriter(ctx context.Context) (messageWriter, error) {
	if err := probeKafkaBrokers(ctx, kp.config.Brokers, brokerProbeTimeout); err != nil {
		return nil, err
	}

	transport, err := buildKafkaTransport(kp.config, kp.logger)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(kp.config.Brokers...),
		Topic:        kp.config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    kp.config.BatchSize,
		BatchTimeout: time.Duration(kp.config.LingerMs) * time.Millisecond,
		RequiredAcks: kafkaRequiredAcks(kp.config.RequiredAcks),
	}
	if codec, ok := kafkaCompression(kp.config.Compression); ok {
		w.Compression = codec
	}
	if transport != nil {
		w.Transport = transport
	}
	return w, nil
}

// Type implements Sink
func (kp *KafkaProducer) Type() SinkType {
	return SinkTypeKafka
}

// Connect establishes the connection to Kafka
func (kp *KafkaProducer) Connect(ctx context.Context) error {
	if kp.connected.Load() {
		return ErrAlreadyConnected
	}

	w, err := kp.dial(ctx)
	if err != nil {
		return err
	}

	kp.mu.Lock()
	kp.writer = w
	kp.mu.Unlock()
	kp.connected.Store(true)

	kp.logger.Info("Connected to Kafka",
		zap.Strings("brokers", kp.config.Brokers),
		zap.String("topic", kp.config.Topic),
		zap.String("compression", kp.config.Compression))
	return nil
}

// Publish writes one event to the topic
func (kp *KafkaProducer) Publish(ctx context.Context, event events.Event) error {
	if !kp.connected.Load() {
		return ErrNotConnected
	}

	data, err := kp.serializer.Serialize(event)
	if err != nil {
		kp.stats.errors.Add(1)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey(event)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type())},
			{Key: "node_id", Value: []byte(kp.nodeID)},
			{Key: "timestamp", Value: []byte(event.Timestamp().Format(time.RFC3339Nano))},
		},
	}
	if topics := eventTopics(event); len(topics) > 0 {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "topics", Value: []byte(strings.Join(topics, ","))})
	}

	kp.mu.RLock()
	w := kp.writer
	kp.mu.RUnlock()

	if err := w.WriteMessages(ctx, msg); err != nil {
		kp.stats.errors.Add(1)
		return fmt.Errorf("failed to write to Kafka: %w", err)
	}

	kp.stats.messagesWritten.Add(1)
	kp.stats.bytesWritten.Add(uint64(len(data)))
	return nil
}

// Close flushes pending batches and closes the writer
func (kp *KafkaProducer) Close() error {
	if !kp.connected.Swap(false) {
		return ErrNotConnected
	}

	kp.mu.Lock()
	w := kp.writer
	kp.writer = nil
	kp.mu.Unlock()

	if err := w.Close(); err != nil {
		kp.logger.Error("Error closing Kafka writer", zap.Error(err))
		return err
	}
	kp.logger.Info("Disconnected from Kafka")
	return nil
}

// KafkaProducerStats contains producer statistics
type KafkaProducerStats struct {
	MessagesWritten uint64        `json:"messages_written"`
	BytesWritten    uint64        `json:"bytes_written"`
	Errors          uint64        `json:"errors"`
	Connected       bool          `json:"connected"`
	Uptime          time.Duration `json:"uptime"`
}

// Stats returns producer statistics
func (kp *KafkaProducer) Stats() KafkaProducerStats {
	return KafkaProducerStats{
		MessagesWritten: kp.stats.messagesWritten.Load(),
		BytesWritten:    kp.stats.bytesWritten.Load(),
		Errors:          kp.stats.errors.Load(),
		Connected:       kp.connected.Load(),
		Uptime:          time.Since(kp.startTime),
	}
}

// GetHealthStatus implements Sink
func (kp *KafkaProducer) GetHealthStatus() HealthStatus {
	status, message := "healthy", "Kafka producer is operational"
	if !kp.connected.Load() {
		status, message = "unhealthy", "Not connected to Kafka"
	}

	stats := kp.Stats()
	return HealthStatus{
		Status:    status,
		Message:   message,
		LastCheck: time.Now(),
		Details: map[string]interface{}{
			"connected":        stats.Connected,
			"brokers":          kp.config.Brokers,
			"topic":            kp.config.Topic,
			"messages_written": stats.MessagesWritten,
			"bytes_written":    stats.BytesWritten,
			"errors":           stats.Errors,
			"uptime":           stats.Uptime.String(),
		},
	}
}
