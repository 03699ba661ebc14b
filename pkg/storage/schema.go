package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes for different data types
const (
	prefixMeta   = "/meta/"
	prefixBlocks = "/data/blocks/"
)

// Metadata keys
const (
	keySyncState = prefixMeta + "sync_state"
)

// SyncStateKey returns the key of the singleton sync document
func SyncStateKey() []byte {
	return []byte(keySyncState)
}

// BlockKey returns the key for storing a block row
// Format: /data/blocks/{number}, zero-padded so keys sort by height
func BlockKey(number uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlocks, number))
}

// BlockKeyPrefix returns the prefix shared by all block rows
func BlockKeyPrefix() []byte {
	return []byte(prefixBlocks)
}

// ParseBlockKey parses a block key and returns the block number
func ParseBlockKey(key []byte) (uint64, error) {
	keyStr := string(key)
	if !strings.HasPrefix(keyStr, prefixBlocks) {
		return 0, fmt.Errorf("invalid block key prefix: %s", keyStr)
	}

	numStr := strings.TrimPrefix(keyStr, prefixBlocks)
	if numStr == "" {
		return 0, fmt.Errorf("invalid block key: missing number")
	}

	number, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number: %w", err)
	}
	return number, nil
}

// incrementPrefix returns a prefix that is one greater than the input
// Used for creating upper bounds in range scans
func incrementPrefix(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	result := make([]byte, len(prefix))
	copy(result, prefix)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] < 0xff {
			result[i]++
			return result
		}
		result[i] = 0
	}
	// All bytes were 0xff, extend with a null byte
	return append(result, 0)
}
