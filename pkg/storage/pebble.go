package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// PebbleStorage implements Storage interface using PebbleDB
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

var _ Storage = (*PebbleStorage)(nil)

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ReadOnly:                 cfg.ReadOnly,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ensureNotClosed checks if storage is closed
func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureNotReadOnly checks if storage is read-only
func (s *PebbleStorage) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// get returns a copy of the value stored under key
func (s *PebbleStorage) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// Copy the value as it's only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// UpsertBlock stores a block row, overwriting any previous row for the same number
func (s *PebbleStorage) UpsertBlock(ctx context.Context, block *types.ChainBlock) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	data, err := EncodeBlock(block)
	if err != nil {
		return err
	}

	if err := s.db.Set(BlockKey(block.Number), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store block %d: %w", block.Number, err)
	}
	return nil
}

// GetBlock returns the row stored for a block number
func (s *PebbleStorage) GetBlock(ctx context.Context, number uint64) (*types.ChainBlock, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	data, err := s.get(BlockKey(number))
	if err != nil {
		return nil, err
	}
	return DecodeBlock(data)
}

// ListBlocks returns stored rows in [from, to] in ascending order
func (s *PebbleStorage) ListBlocks(ctx context.Context, from, to uint64) ([]*types.ChainBlock, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if from > to {
		return nil, ErrInvalidRange
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: BlockKey(from),
		UpperBound: incrementPrefix(BlockKey(to)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	blocks := make([]*types.ChainBlock, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		block, err := DecodeBlock(iter.Value())
		if err != nil {
			s.logger.Warn("Skipping undecodable block row",
				zap.ByteString("key", iter.Key()),
				zap.Error(err),
			)
			continue
		}
		blocks = append(blocks, block)
		if len(blocks) >= MaxRangeSize {
			break
		}
	}

	return blocks, iter.Error()
}

// GetLatestBlock returns the row with the highest block number
func (s *PebbleStorage) GetLatestBlock(ctx context.Context) (*types.ChainBlock, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := BlockKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementPrefix(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return DecodeBlock(iter.Value())
}

// GetSyncState returns the persisted sync document
func (s *PebbleStorage) GetSyncState(ctx context.Context) (*types.SyncState, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	data, err := s.get(SyncStateKey())
	if err != nil {
		return nil, err
	}
	return DecodeSyncState(data)
}

// PutSyncState replaces the sync document
func (s *PebbleStorage) PutSyncState(ctx context.Context, state *types.SyncState) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	data, err := EncodeSyncState(state)
	if err != nil {
		return err
	}

	if err := s.db.Set(SyncStateKey(), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store sync state: %w", err)
	}
	return nil
}
