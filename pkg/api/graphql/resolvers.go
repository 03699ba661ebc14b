package graphql

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

func (s *Schema) resolveLatestHeight(p graphql.ResolveParams) (interface{}, error) {
	block, err := s.storage.GetLatestBlock(p.Context)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "0", nil
		}
		s.logger.Error("Failed to get latest block", zap.Error(err))
		return nil, err
	}
	return strconv.FormatUint(block.Number, 10), nil
}

func (s *Schema) resolveBlock(p graphql.ResolveParams) (interface{}, error) {
	number, err := uintArg(p, "number")
	if err != nil {
		return nil, err
	}

	block, err := s.storage.GetBlock(p.Context, number)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("Failed to get block", zap.Uint64("number", number), zap.Error(err))
		return nil, err
	}
	return blockToMap(block), nil
}

func (s *Schema) resolveBlocks(p graphql.ResolveParams) (interface{}, error) {
	from, err := uintArg(p, "from")
	if err != nil {
		return nil, err
	}
	to, err := uintArg(p, "to")
	if err != nil {
		return nil, err
	}
	if from > to {
		return nil, fmt.Errorf("from (%d) cannot be greater than to (%d)", from, to)
	}
	if to-from >= constants.DefaultMaxPaginationLimit {
		return nil, fmt.Errorf("range too large: at most %d blocks per query", constants.DefaultMaxPaginationLimit)
	}

	blocks, err := s.storage.ListBlocks(p.Context, from, to)
	if err != nil {
		s.logger.Error("Failed to list blocks",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Error(err))
		return nil, err
	}

	out := make([]interface{}, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockToMap(b))
	}
	return out, nil
}

func (s *Schema) resolveSyncStatus(p graphql.ResolveParams) (interface{}, error) {
	if s.status == nil {
		return nil, nil
	}
	st := s.status.Status()

	m := map[string]interface{}{
		"currentBlock":              strconv.FormatUint(st.CurrentBlock, 10),
		"networkBlock":              strconv.FormatUint(st.NetworkBlock, 10),
		"lag":                       strconv.FormatUint(st.Lag, 10),
		"backfillQueueSize":         st.BackfillQueueSize,
		"isHealthy":                 st.IsHealthy,
		"isKeepingUp":               st.IsKeepingUp,
		"processingBlocksPerMinute": st.ProcessingBlocksPerMinute,
		"networkBlocksPerMinute":    st.NetworkBlocksPerMinute,
		"averageDelaySeconds":       st.AverageDelay.Seconds(),
		"phase":                     string(st.Phase),
	}
	if st.EstimatedCatchUpTime != nil {
		m["estimatedCatchUpSeconds"] = st.EstimatedCatchUpTime.Seconds()
	}
	if st.LastError != "" {
		m["lastError"] = st.LastError
		m["lastErrorAt"] = formatTime(st.LastErrorAt)
	}
	if !st.LastProcessedAt.IsZero() {
		m["lastProcessedAt"] = formatTime(st.LastProcessedAt)
	}
	return m, nil
}

func uintArg(p graphql.ResolveParams, name string) (uint64, error) {
	raw, ok := p.Args[name].(string)
	if !ok {
		return 0, fmt.Errorf("invalid %s", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func blockToMap(b *types.ChainBlock) map[string]interface{} {
	st := b.Stats
	return map[string]interface{}{
		"number":           strconv.FormatUint(b.Number, 10),
		"id":               b.ID,
		"parentHash":       b.ParentHash,
		"producer":         b.Producer,
		"timestamp":        strconv.FormatInt(b.Timestamp.Unix(), 10),
		"transactionCount": int(b.TransactionCount),
		"processedAt":      formatTime(b.ProcessedAt),
		"stats": map[string]interface{}{
			"transfers":               int(st.Transfers),
			"tokenTransfers":          int(st.TokenTransfers),
			"delegations":             int(st.Delegations),
			"undelegations":           int(st.Undelegations),
			"tokenCreations":          int(st.TokenCreations),
			"contractCalls":           int(st.ContractCalls),
			"contractCreations":       int(st.ContractCreations),
			"stakes":                  int(st.Stakes),
			"votes":                   int(st.Votes),
			"unknown":                 int(st.Unknown),
			"unclassified":            int(st.Unclassified),
			"failed":                  int(st.Failed),
			"transferredSun":          strconv.FormatUint(st.TransferredSun, 10),
			"delegatedEnergySun":      strconv.FormatUint(st.DelegatedEnergySun, 10),
			"delegatedBandwidthSun":   strconv.FormatUint(st.DelegatedBandwidthSun, 10),
			"undelegatedEnergySun":    strconv.FormatUint(st.UndelegatedEnergySun, 10),
			"undelegatedBandwidthSun": strconv.FormatUint(st.UndelegatedBandwidthSun, 10),
		},
	}
}
