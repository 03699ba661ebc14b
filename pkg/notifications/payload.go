// Package notifications delivers classified records to outbound HTTP
// targets. Each target is an observer with its own topic filter.
package notifications

import (
	"math/big"
	"strings"
	"time"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Payload is the JSON body posted for one record
type Payload struct {
	ID        string                      `json:"id"`
	Topics    []string                    `json:"topics"`
	Timestamp string                      `json:"timestamp"`
	Block     types.BlockContext          `json:"block"`
	Data      types.ClassifiedTransaction `json:"data"`
}

func newPayload(tx types.ClassifiedTransaction, block types.BlockContext) *Payload {
	return &Payload{
		ID:        tx.ID,
		Topics:    tx.NotificationTopics,
		Timestamp: tx.Timestamp.UTC().Format(time.RFC3339),
		Block:     block,
		Data:      tx,
	}
}

var sunPerTRX = big.NewInt(constants.SunPerTRX)

// formatAmount renders native amounts in TRX and token amounts raw with their asset
func formatAmount(tx *types.ClassifiedTransaction) string {
	if tx.Amount == nil {
		return ""
	}
	if tx.Asset != "" {
		return tx.Amount.String() + " " + tx.Asset
	}

	s := new(big.Rat).SetFrac(tx.Amount, sunPerTRX).FloatString(6)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " TRX"
}

// minAmount selects native transfers of at least minTRX; records without
// an amount or with a token asset pass only when minTRX is zero
func minAmount(minTRX float64) observer.Predicate {
	if minTRX <= 0 {
		return func(*types.ClassifiedTransaction) bool { return true }
	}
	threshold, _ := new(big.Float).Mul(big.NewFloat(minTRX), new(big.Float).SetInt(sunPerTRX)).Int(nil)
	return func(tx *types.ClassifiedTransaction) bool {
		return tx.Amount != nil && tx.Asset == "" && tx.Amount.Cmp(threshold) >= 0
	}
}

func and(preds ...observer.Predicate) observer.Predicate {
	return func(tx *types.ClassifiedTransaction) bool {
		for _, p := range preds {
			if !p(tx) {
				return false
			}
		}
		return true
	}
}
