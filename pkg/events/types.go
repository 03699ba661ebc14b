package events

import (
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// EventType represents the type of indexer event
type EventType string

const (
	// EventTypeBlock represents a processed block
	EventTypeBlock EventType = "block"

	// EventTypeTransaction represents a classified transaction carrying notification topics
	EventTypeTransaction EventType = "transaction"
)

// Event is the base interface for all indexer events
type Event interface {
	// Type returns the event type
	Type() EventType

	// Timestamp returns when the event was created
	Timestamp() time.Time
}

// BlockEvent is published once a block row has been persisted
type BlockEvent struct {
	Block     *types.ChainBlock `json:"block"`
	Number    uint64            `json:"number"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Type implements Event interface
func (e *BlockEvent) Type() EventType {
	return EventTypeBlock
}

// Timestamp implements Event interface
func (e *BlockEvent) Timestamp() time.Time {
	return e.CreatedAt
}

// TransactionEvent carries one classified transaction and its block context
type TransactionEvent struct {
	Tx        types.ClassifiedTransaction `json:"tx"`
	Block     types.BlockContext          `json:"block"`
	CreatedAt time.Time                   `json:"createdAt"`
}

// Type implements Event interface
func (e *TransactionEvent) Type() EventType {
	return EventTypeTransaction
}

// Timestamp implements Event interface
func (e *TransactionEvent) Timestamp() time.Time {
	return e.CreatedAt
}

// NewBlockEvent creates a new block event from a persisted row
func NewBlockEvent(block *types.ChainBlock) *BlockEvent {
	return &BlockEvent{
		Block:     block,
		Number:    block.Number,
		CreatedAt: time.Now(),
	}
}

// NewTransactionEvent creates a new transaction event
func NewTransactionEvent(tx types.ClassifiedTransaction, block types.BlockContext) *TransactionEvent {
	return &TransactionEvent{
		Tx:        tx,
		Block:     block,
		CreatedAt: time.Now(),
	}
}
