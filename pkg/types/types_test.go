package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlock = `{
  "blockID": "0000000003a7f2b1c0ffee",
  "block_header": {
    "raw_data": {
      "number": 61338289,
      "txTrieRoot": "aa",
      "witness_address": "41b487cdc02de90f15ac89a68c82f44cbfe3d915ea",
      "parentHash": "0000000003a7f2b0",
      "version": 30,
      "timestamp": 1714000000000
    }
  },
  "transactions": [
    {
      "ret": [{"contractRet": "SUCCESS"}],
      "txID": "ab01",
      "raw_data": {
        "contract": [{"type": "TransferContract", "parameter": {"value": {"amount": 1}, "type_url": "type.googleapis.com/protocol.TransferContract"}}],
        "timestamp": 1713999999000
      }
    }
  ]
}`

// --- RawBlock tests ---

func TestRawBlock_Decode(t *testing.T) {
	var b RawBlock
	require.NoError(t, json.Unmarshal([]byte(sampleBlock), &b))

	assert.Equal(t, uint64(61338289), b.Number())
	assert.Equal(t, time.UnixMilli(1714000000000).UTC(), b.Time())
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, "TransferContract", b.Transactions[0].RawData.Contract[0].Type)
	assert.JSONEq(t, `{"amount": 1}`, string(b.Transactions[0].RawData.Contract[0].Parameter.Value))

	h := b.Header()
	assert.Equal(t, "0000000003a7f2b1c0ffee", h.ID)
	assert.Equal(t, "0000000003a7f2b0", h.ParentHash)
}

func TestRawBlock_ZeroValues(t *testing.T) {
	b := &RawBlock{}
	assert.Equal(t, uint64(0), b.Number())
	assert.True(t, b.Time().IsZero())

	b.BlockHeader.RawData.Number = -5
	assert.Equal(t, uint64(0), b.Number())
}

// --- RawTransaction tests ---

func TestRawTransaction_Succeeded(t *testing.T) {
	tests := []struct {
		name string
		ret  []RawResult
		want bool
	}{
		{"no result", nil, true},
		{"empty result", []RawResult{{}}, true},
		{"success", []RawResult{{ContractRet: "SUCCESS"}}, true},
		{"revert", []RawResult{{ContractRet: "REVERT"}}, false},
		{"out of energy", []RawResult{{ContractRet: "OUT_OF_ENERGY"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &RawTransaction{Ret: tt.ret}
			assert.Equal(t, tt.want, tx.Succeeded())
		})
	}
}

// --- ClassifiedTransaction tests ---

func TestClassifiedTransaction_HasTopic(t *testing.T) {
	c := &ClassifiedTransaction{NotificationTopics: []string{TopicTransfer, TopicTokenTransfer}}
	assert.True(t, c.HasTopic(TopicTransfer))
	assert.True(t, c.HasTopic(TopicTokenTransfer))
	assert.False(t, c.HasTopic(TopicDelegation))
	assert.False(t, (&ClassifiedTransaction{}).HasTopic(TopicTransfer))
}

// --- SyncState tests ---

func TestSyncState_CloneIsDeep(t *testing.T) {
	s := SyncState{Cursor: Cursor{BlockNumber: 10}}
	s.Meta.BackfillQueue = []uint64{3, 4}

	c := s.Clone()
	c.Meta.BackfillQueue[0] = 99
	c.Cursor.BlockNumber = 11

	assert.Equal(t, []uint64{3, 4}, s.Meta.BackfillQueue)
	assert.Equal(t, uint64(10), s.Cursor.BlockNumber)
}

func TestSyncState_CloneNilQueue(t *testing.T) {
	c := SyncState{}.Clone()
	assert.Nil(t, c.Meta.BackfillQueue)
}
