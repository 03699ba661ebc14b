package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// storedBlock is the RLP layout of a ChainBlock row.
// Times are unix milliseconds; RLP has no native time type.
type storedBlock struct {
	Number           uint64
	ID               string
	ParentHash       string
	Producer         string
	TimestampMs      uint64
	TransactionCount uint64
	Stats            types.BlockStats
	ProcessedAtMs    uint64
}

// storedSyncState is the RLP layout of the sync document
type storedSyncState struct {
	Cursor               uint64
	LastProcessedAtMs    uint64
	LastProcessedBlockID string
	LastError            string
	LastErrorAtMs        uint64
	BackfillQueue        []uint64
	LastNetworkHeight    uint64
	Timings              storedTimings
	LastTransactionCount uint64
}

type storedTimings struct {
	FetchNs    uint64
	ClassifyNs uint64
	PersistNs  uint64
	NotifyNs   uint64
	TotalNs    uint64
}

// EncodeBlock encodes a block row using RLP
func EncodeBlock(block *types.ChainBlock) ([]byte, error) {
	if block == nil {
		return nil, fmt.Errorf("block cannot be nil")
	}

	sb := storedBlock{
		Number:           block.Number,
		ID:               block.ID,
		ParentHash:       block.ParentHash,
		Producer:         block.Producer,
		TimestampMs:      toMillis(block.Timestamp),
		TransactionCount: block.TransactionCount,
		Stats:            block.Stats,
		ProcessedAtMs:    toMillis(block.ProcessedAt),
	}

	var buf bytes.Buffer
	if err := rlp.Encode(&buf, &sb); err != nil {
		return nil, fmt.Errorf("failed to encode block: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlock decodes a block row from RLP
func DecodeBlock(data []byte) (*types.ChainBlock, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var sb storedBlock
	if err := rlp.DecodeBytes(data, &sb); err != nil {
		return nil, fmt.Errorf("%w: failed to decode block: %v", ErrInvalidData, err)
	}

	return &types.ChainBlock{
		Number:           sb.Number,
		ID:               sb.ID,
		ParentHash:       sb.ParentHash,
		Producer:         sb.Producer,
		Timestamp:        fromMillis(sb.TimestampMs),
		TransactionCount: sb.TransactionCount,
		Stats:            sb.Stats,
		ProcessedAt:      fromMillis(sb.ProcessedAtMs),
	}, nil
}

// EncodeSyncState encodes the sync document using RLP
func EncodeSyncState(state *types.SyncState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("sync state cannot be nil")
	}

	m := state.Meta
	ss := storedSyncState{
		Cursor:               state.Cursor.BlockNumber,
		LastProcessedAtMs:    toMillis(m.LastProcessedAt),
		LastProcessedBlockID: m.LastProcessedBlockID,
		LastError:            m.LastError,
		LastErrorAtMs:        toMillis(m.LastErrorAt),
		BackfillQueue:        m.BackfillQueue,
		LastNetworkHeight:    m.LastNetworkHeight,
		Timings: storedTimings{
			FetchNs:    durationNs(m.LastTimings.Fetch),
			ClassifyNs: durationNs(m.LastTimings.Classify),
			PersistNs:  durationNs(m.LastTimings.Persist),
			NotifyNs:   durationNs(m.LastTimings.Notify),
			TotalNs:    durationNs(m.LastTimings.Total),
		},
		LastTransactionCount: m.LastTransactionCount,
	}
	if ss.BackfillQueue == nil {
		ss.BackfillQueue = []uint64{}
	}

	var buf bytes.Buffer
	if err := rlp.Encode(&buf, &ss); err != nil {
		return nil, fmt.Errorf("failed to encode sync state: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSyncState decodes the sync document from RLP
func DecodeSyncState(data []byte) (*types.SyncState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	var ss storedSyncState
	if err := rlp.DecodeBytes(data, &ss); err != nil {
		return nil, fmt.Errorf("%w: failed to decode sync state: %v", ErrInvalidData, err)
	}

	state := &types.SyncState{
		Cursor: types.Cursor{BlockNumber: ss.Cursor},
		Meta: types.SyncMeta{
			LastProcessedAt:      fromMillis(ss.LastProcessedAtMs),
			LastProcessedBlockID: ss.LastProcessedBlockID,
			LastError:            ss.LastError,
			LastErrorAt:          fromMillis(ss.LastErrorAtMs),
			LastNetworkHeight:    ss.LastNetworkHeight,
			LastTimings: types.Timings{
				Fetch:    time.Duration(ss.Timings.FetchNs),
				Classify: time.Duration(ss.Timings.ClassifyNs),
				Persist:  time.Duration(ss.Timings.PersistNs),
				Notify:   time.Duration(ss.Timings.NotifyNs),
				Total:    time.Duration(ss.Timings.TotalNs),
			},
			LastTransactionCount: ss.LastTransactionCount,
		},
	}
	if len(ss.BackfillQueue) > 0 {
		state.Meta.BackfillQueue = ss.BackfillQueue
	}
	return state, nil
}

func toMillis(t time.Time) uint64 {
	if t.IsZero() || t.UnixMilli() < 0 {
		return 0
	}
	return uint64(t.UnixMilli())
}

func fromMillis(ms uint64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func durationNs(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}
