package events

import (
	"fmt"
	"math/big"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Filter defines subscription filter conditions.
// Empty fields mean no filtering on that dimension.
type Filter struct {
	// Topics passes transactions carrying any of the listed notification topics
	Topics []string

	// TxTypes passes transactions of any of the listed types
	TxTypes []types.TxType

	// Addresses passes transactions where any address is a participant
	Addresses []string

	// MinAmount filters transactions by minimum amount (inclusive)
	MinAmount *big.Int

	// FromBlock filters events from this block number (inclusive)
	FromBlock uint64

	// ToBlock filters events up to this block number (inclusive)
	ToBlock uint64
}

// Validate checks if the filter configuration is valid
func (f *Filter) Validate() error {
	if f.MinAmount != nil && f.MinAmount.Sign() < 0 {
		return fmt.Errorf("minAmount cannot be negative")
	}
	if f.FromBlock > 0 && f.ToBlock > 0 && f.FromBlock > f.ToBlock {
		return fmt.Errorf("fromBlock (%d) cannot be greater than toBlock (%d)",
			f.FromBlock, f.ToBlock)
	}
	return nil
}

// Match checks if an event matches this filter
func (f *Filter) Match(event Event) bool {
	switch e := event.(type) {
	case *BlockEvent:
		return f.MatchBlock(e)
	case *TransactionEvent:
		return f.MatchTransaction(e)
	default:
		return false
	}
}

// MatchBlock checks if a block event matches this filter
func (f *Filter) MatchBlock(event *BlockEvent) bool {
	return f.inRange(event.Number)
}

// MatchTransaction checks if a transaction event matches this filter
func (f *Filter) MatchTransaction(event *TransactionEvent) bool {
	if !f.inRange(event.Block.Number) {
		return false
	}

	tx := &event.Tx
	if len(f.Topics) > 0 && !anyTopic(tx, f.Topics) {
		return false
	}

	if len(f.TxTypes) > 0 {
		matched := false
		for _, t := range f.TxTypes {
			if tx.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Addresses) > 0 {
		matched := false
		for _, addr := range f.Addresses {
			if addr == tx.Participants.From || addr == tx.Participants.To {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.MinAmount != nil {
		if tx.Amount == nil || tx.Amount.Cmp(f.MinAmount) < 0 {
			return false
		}
	}

	return true
}

func (f *Filter) inRange(number uint64) bool {
	if f.FromBlock > 0 && number < f.FromBlock {
		return false
	}
	if f.ToBlock > 0 && number > f.ToBlock {
		return false
	}
	return true
}

func anyTopic(tx *types.ClassifiedTransaction, topics []string) bool {
	for _, t := range topics {
		if tx.HasTopic(t) {
			return true
		}
	}
	return false
}

// IsEmpty returns true if the filter has no conditions set
func (f *Filter) IsEmpty() bool {
	return len(f.Topics) == 0 &&
		len(f.TxTypes) == 0 &&
		len(f.Addresses) == 0 &&
		f.MinAmount == nil &&
		f.FromBlock == 0 &&
		f.ToBlock == 0
}

// Clone creates a deep copy of the filter
func (f *Filter) Clone() *Filter {
	clone := &Filter{
		Topics:    append([]string(nil), f.Topics...),
		TxTypes:   append([]types.TxType(nil), f.TxTypes...),
		Addresses: append([]string(nil), f.Addresses...),
		FromBlock: f.FromBlock,
		ToBlock:   f.ToBlock,
	}
	if f.MinAmount != nil {
		clone.MinAmount = new(big.Int).Set(f.MinAmount)
	}
	return clone
}
