package eventbus

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

func transferEvent() *events.TransactionEvent {
	return &events.TransactionEvent{
		Tx: types.ClassifiedTransaction{
			Type:               types.TxTransfer,
			ID:                 "c0ffee",
			Participants:       types.Participants{From: "TSender", To: "TReceiver"},
			Amount:             big.NewInt(2_500_000),
			AmountUSD:          0.3,
			Asset:              "TRX",
			NotificationTopics: []string{types.TopicTransfer},
			Succeeded:          true,
		},
		Block:     types.BlockContext{Number: 100, ID: "00000064aa"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestJSONSerializer_ContentType(t *testing.T) {
	assert.Equal(t, "application/json", NewJSONSerializer("node-1").ContentType())
}

func TestJSONSerializer_TransactionEvent(t *testing.T) {
	s := NewJSONSerializer("node-1")
	original := transferEvent()

	data, err := s.Serialize(original)
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &env))
	assert.JSONEq(t, `"transaction"`, string(env["type"]))
	assert.JSONEq(t, `"node-1"`, string(env["node_id"]))

	event, err := s.Deserialize(data)
	require.NoError(t, err)
	te, ok := event.(*events.TransactionEvent)
	require.True(t, ok)

	assert.Equal(t, "c0ffee", te.Tx.ID)
	assert.Equal(t, types.TxTransfer, te.Tx.Type)
	assert.Equal(t, 0, big.NewInt(2_500_000).Cmp(te.Tx.Amount))
	assert.Equal(t, []string{types.TopicTransfer}, te.Tx.NotificationTopics)
	assert.Equal(t, uint64(100), te.Block.Number)
	assert.True(t, original.CreatedAt.Equal(te.CreatedAt))
}

func TestJSONSerializer_BlockEvent(t *testing.T) {
	s := NewJSONSerializer("")
	block := &types.ChainBlock{Number: 42, ID: "0000002a", TransactionCount: 3}

	data, err := s.Serialize(events.NewBlockEvent(block))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "node_id")

	event, err := s.Deserialize(data)
	require.NoError(t, err)
	be, ok := event.(*events.BlockEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(42), be.Number)
	assert.Equal(t, "0000002a", be.Block.ID)
	assert.Equal(t, uint64(3), be.Block.TransactionCount)
}

func TestJSONSerializer_Errors(t *testing.T) {
	s := NewJSONSerializer("node-1")

	_, err := s.Serialize(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = s.Serialize(&events.BlockEvent{Number: 1})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = s.Deserialize([]byte("not json"))
	assert.ErrorIs(t, err, ErrDeserializationFailed)

	_, err = s.Deserialize([]byte(`{"type":"log","data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

func TestPartitionKey(t *testing.T) {
	tx := transferEvent()
	assert.Equal(t, "TSender", partitionKey(tx))

	tx.Tx.Participants.From = ""
	assert.Equal(t, "c0ffee", partitionKey(tx))

	assert.Equal(t, "block:9", partitionKey(events.NewBlockEvent(&types.ChainBlock{Number: 9})))
}
