// Package eventbus forwards classified transactions and processed blocks to
// external brokers (Redis Pub/Sub and Kafka). Each sink is registered as an
// observer, so a slow or unreachable broker never blocks ingestion.
package eventbus

import (
	"context"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// SinkType names an external broker implementation
type SinkType string

const (
	// SinkTypeRedis publishes to Redis Pub/Sub channels
	SinkTypeRedis SinkType = "redis"

	// SinkTypeKafka produces to a Kafka topic
	SinkTypeKafka SinkType = "kafka"
)

// Sink is an external destination for indexer events
type Sink interface {
	// Type returns the broker kind
	Type() SinkType

	// Connect establishes the connection to the backend
	Connect(ctx context.Context) error

	// Publish sends one event; it blocks until the backend accepts it or ctx ends
	Publish(ctx context.Context, event events.Event) error

	// Close releases the backend connection
	Close() error

	// GetHealthStatus reports the sink's connection state and counters
	GetHealthStatus() HealthStatus
}

// EventSerializer defines the interface for serializing/deserializing events
type EventSerializer interface {
	// Serialize converts an event to bytes
	Serialize(event events.Event) ([]byte, error)

	// Deserialize converts bytes back to an event
	Deserialize(data []byte) (events.Event, error)

	// ContentType returns the MIME type of the serialized format
	ContentType() string
}

// HealthStatus represents the health status of a sink
type HealthStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	LastCheck time.Time              `json:"last_check"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ObserverName returns the name a sink is registered under in the observer registry
func ObserverName(s Sink) string {
	return "eventbus-" + string(s.Type())
}

// Handler adapts a sink into an observer handler that publishes each
// delivered record as a TransactionEvent.
func Handler(s Sink) observer.Handler {
	return func(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error {
		return s.Publish(ctx, events.NewTransactionEvent(tx, block))
	}
}
