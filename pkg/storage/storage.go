package storage

import (
	"context"
	"errors"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrInvalidRange is returned when a range query has from > to
	ErrInvalidRange = errors.New("invalid range")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// MaxRangeSize caps the number of rows a single ListBlocks call returns
const MaxRangeSize = 1000

// BlockReader provides read access to processed block rows
type BlockReader interface {
	// GetBlock returns the row stored for a block number
	GetBlock(ctx context.Context, number uint64) (*types.ChainBlock, error)

	// ListBlocks returns rows in [from, to], ascending, skipping missing numbers
	ListBlocks(ctx context.Context, from, to uint64) ([]*types.ChainBlock, error)

	// GetLatestBlock returns the row with the highest block number
	GetLatestBlock(ctx context.Context) (*types.ChainBlock, error)
}

// BlockWriter provides write access to processed block rows
type BlockWriter interface {
	// UpsertBlock stores the row, replacing any previous row for the same number
	UpsertBlock(ctx context.Context, block *types.ChainBlock) error
}

// SyncStateStore reads and writes the singleton sync document
type SyncStateStore interface {
	// GetSyncState returns ErrNotFound before the first write
	GetSyncState(ctx context.Context) (*types.SyncState, error)

	PutSyncState(ctx context.Context, state *types.SyncState) error
}

// Storage combines all persistence operations used by the indexer
type Storage interface {
	BlockReader
	BlockWriter
	SyncStateStore

	// Close closes the storage and releases resources
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB
	Cache int

	// MaxOpenFiles is the maximum number of open files
	MaxOpenFiles int

	// WriteBuffer size in MB
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// ReadOnly opens the database in read-only mode
	ReadOnly bool

	// CompactionConcurrency for background compaction
	CompactionConcurrency int
}

// DefaultConfig returns default storage configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                  path,
		Cache:                 constants.DefaultCacheSize,
		MaxOpenFiles:          constants.DefaultMaxOpenFiles,
		WriteBuffer:           constants.DefaultWriteBuffer,
		CompactionConcurrency: constants.DefaultCompactionConcurrency,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}
