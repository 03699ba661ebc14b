package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// JSONSerializer implements EventSerializer using JSON encoding
type JSONSerializer struct {
	nodeID string
}

// NewJSONSerializer creates a serializer that stamps envelopes with nodeID
func NewJSONSerializer(nodeID string) *JSONSerializer {
	return &JSONSerializer{nodeID: nodeID}
}

var _ EventSerializer = (*JSONSerializer)(nil)

// eventEnvelope wraps an event with type information for deserialization
type eventEnvelope struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

type blockEventData struct {
	Block     *types.ChainBlock `json:"block"`
	CreatedAt time.Time         `json:"created_at"`
}

type transactionEventData struct {
	Tx        types.ClassifiedTransaction `json:"tx"`
	Block     types.BlockContext          `json:"block"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Serialize converts an event to JSON bytes
func (s *JSONSerializer) Serialize(event events.Event) ([]byte, error) {
	if event == nil {
		return nil, ErrSerializationFailed
	}

	var data []byte
	var err error

	switch e := event.(type) {
	case *events.BlockEvent:
		if e.Block == nil {
			return nil, fmt.Errorf("%w: block event without block", ErrSerializationFailed)
		}
		data, err = json.Marshal(blockEventData{Block: e.Block, CreatedAt: e.CreatedAt})
	case *events.TransactionEvent:
		data, err = json.Marshal(transactionEventData{Tx: e.Tx, Block: e.Block, CreatedAt: e.CreatedAt})
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEventType, event.Type())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	return json.Marshal(eventEnvelope{
		Type:      event.Type(),
		Timestamp: event.Timestamp(),
		NodeID:    s.nodeID,
		Data:      data,
	})
}

// Deserialize converts JSON bytes back to an event
func (s *JSONSerializer) Deserialize(data []byte) (events.Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}

	switch env.Type {
	case events.EventTypeBlock:
		var d blockEventData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		if d.Block == nil {
			return nil, fmt.Errorf("%w: block event without block", ErrDeserializationFailed)
		}
		return &events.BlockEvent{Block: d.Block, Number: d.Block.Number, CreatedAt: d.CreatedAt}, nil
	case events.EventTypeTransaction:
		var d transactionEventData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
		}
		return &events.TransactionEvent{Tx: d.Tx, Block: d.Block, CreatedAt: d.CreatedAt}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, env.Type)
	}
}

// ContentType returns the MIME type
func (s *JSONSerializer) ContentType() string {
	return "application/json"
}

// blockTopic is the channel suffix used for BlockEvents
const blockTopic = "block:new"

// partitionKey groups related events on the same broker partition
func partitionKey(event events.Event) string {
	switch e := event.(type) {
	case *events.BlockEvent:
		return fmt.Sprintf("block:%d", e.Number)
	case *events.TransactionEvent:
		if e.Tx.Participants.From != "" {
			return e.Tx.Participants.From
		}
		return e.Tx.ID
	}
	return string(event.Type())
}

// eventTopics returns the notification topics an event is published under
func eventTopics(event events.Event) []string {
	switch e := event.(type) {
	case *events.TransactionEvent:
		return e.Tx.NotificationTopics
	case *events.BlockEvent:
		return []string{blockTopic}
	}
	return nil
}
