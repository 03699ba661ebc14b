// Package testutil provides fixtures and fakes shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Hex addresses used across fixtures
const (
	AliceHex   = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
	BobHex     = "4100000000000000000000000000000000000000b0"
	CarolHex   = "4100000000000000000000000000000000000000c0"
	WitnessHex = "4100000000000000000000000000000000000000ee"
)

// GenesisTime is the timestamp of fixture block 0
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTestLogger creates a development logger for tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// NewRawBlock creates a block at height n produced 3s after block n-1
func NewRawBlock(n uint64, txs ...types.RawTransaction) *types.RawBlock {
	b := &types.RawBlock{
		BlockID:      fmt.Sprintf("%016x%048x", n, n),
		Transactions: txs,
	}
	b.BlockHeader.RawData.Number = int64(n)
	b.BlockHeader.RawData.ParentHash = fmt.Sprintf("%016x%048x", n-1, n-1)
	b.BlockHeader.RawData.WitnessAddress = WitnessHex
	b.BlockHeader.RawData.Timestamp = GenesisTime.Add(time.Duration(n) * 3 * time.Second).UnixMilli()
	return b
}

// NewRawTx builds a transaction with a single contract entry
func NewRawTx(id, contractType string, value map[string]any) types.RawTransaction {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return types.RawTransaction{
		TxID: id,
		RawData: types.RawTxData{
			Contract: []types.RawContract{{
				Type:      contractType,
				Parameter: types.RawParameter{Value: raw},
			}},
		},
		Ret: []types.RawResult{{ContractRet: "SUCCESS"}},
	}
}

// TransferTx builds a TRX transfer
func TransferTx(id, from, to string, sun int64) types.RawTransaction {
	return NewRawTx(id, "TransferContract", map[string]any{
		"owner_address": from,
		"to_address":    to,
		"amount":        sun,
	})
}

// DelegateTx builds a resource delegation
func DelegateTx(id, from, to string, sun int64, resource string) types.RawTransaction {
	return NewRawTx(id, "DelegateResourceContract", map[string]any{
		"owner_address":    from,
		"receiver_address": to,
		"balance":          sun,
		"resource":         resource,
	})
}

// MemoryStore is an in-memory storage.Storage with failure injection
type MemoryStore struct {
	mu     sync.Mutex
	blocks map[uint64]*types.ChainBlock
	state  *types.SyncState

	// FailUpsert, when set, is returned by UpsertBlock
	FailUpsert error
	// FailPutState, when set, is returned by PutSyncState
	FailPutState error

	StateWrites int
}

var _ storage.Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[uint64]*types.ChainBlock)}
}

// UpsertBlock implements storage.BlockWriter
func (m *MemoryStore) UpsertBlock(ctx context.Context, block *types.ChainBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpsert != nil {
		return m.FailUpsert
	}
	cp := *block
	m.blocks[block.Number] = &cp
	return nil
}

// GetBlock implements storage.BlockReader
func (m *MemoryStore) GetBlock(ctx context.Context, number uint64) (*types.ChainBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[number]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// ListBlocks implements storage.BlockReader
func (m *MemoryStore) ListBlocks(ctx context.Context, from, to uint64) ([]*types.ChainBlock, error) {
	if from > to {
		return nil, storage.ErrInvalidRange
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.ChainBlock, 0)
	for n, b := range m.blocks {
		if n >= from && n <= to {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	if len(out) > storage.MaxRangeSize {
		out = out[:storage.MaxRangeSize]
	}
	return out, nil
}

// GetLatestBlock implements storage.BlockReader
func (m *MemoryStore) GetLatestBlock(ctx context.Context) (*types.ChainBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *types.ChainBlock
	for _, b := range m.blocks {
		if latest == nil || b.Number > latest.Number {
			latest = b
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// GetSyncState implements storage.SyncStateStore
func (m *MemoryStore) GetSyncState(ctx context.Context) (*types.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, storage.ErrNotFound
	}
	s := m.state.Clone()
	return &s, nil
}

// PutSyncState implements storage.SyncStateStore
func (m *MemoryStore) PutSyncState(ctx context.Context, state *types.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPutState != nil {
		return m.FailPutState
	}
	s := state.Clone()
	m.state = &s
	m.StateWrites++
	return nil
}

// Close implements storage.Storage
func (m *MemoryStore) Close() error {
	return nil
}

// BlockCount returns the number of stored rows
func (m *MemoryStore) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// FakeChain serves scripted blocks and a movable head
type FakeChain struct {
	mu     sync.Mutex
	head   uint64
	blocks map[uint64]*types.RawBlock
	fail   map[uint64]int
	calls  map[uint64]int

	// HeadErr, when set, is returned by GetHeadBlockNumber
	HeadErr error
}

// NewFakeChain creates a chain whose head is at head
func NewFakeChain(head uint64) *FakeChain {
	return &FakeChain{
		head:   head,
		blocks: make(map[uint64]*types.RawBlock),
		fail:   make(map[uint64]int),
		calls:  make(map[uint64]int),
	}
}

// SetHead moves the head
func (c *FakeChain) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

// AddBlock scripts the block served for its number
func (c *FakeChain) AddBlock(b *types.RawBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[b.Number()] = b
}

// FailBlock makes the next times fetches of n fail; negative fails forever
func (c *FakeChain) FailBlock(n uint64, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[n] = times
}

// Calls returns how often block n was fetched
func (c *FakeChain) Calls(n uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[n]
}

// GetHeadBlockNumber returns the current head
func (c *FakeChain) GetHeadBlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HeadErr != nil {
		return 0, c.HeadErr
	}
	return c.head, nil
}

// GetBlockByNumber serves a scripted block or an empty one at that height
func (c *FakeChain) GetBlockByNumber(ctx context.Context, n uint64) (*types.RawBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[n]++
	if left, ok := c.fail[n]; ok && left != 0 {
		if left > 0 {
			c.fail[n] = left - 1
		}
		return nil, fmt.Errorf("scripted failure for block %d", n)
	}
	if b, ok := c.blocks[n]; ok {
		return b, nil
	}
	return NewRawBlock(n), nil
}
