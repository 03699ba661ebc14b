package fetch

import (
	"math"
	"math/big"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// accumulate adds one classified record to the block stats.
// Counts include failed transactions; sun totals only include successful ones.
func accumulate(stats *types.BlockStats, tx *types.ClassifiedTransaction) {
	if !tx.Succeeded {
		stats.Failed++
	}

	switch tx.Type {
	case types.TxTransfer:
		stats.Transfers++
		if tx.Succeeded {
			addSun(&stats.TransferredSun, tx.Amount)
		}
	case types.TxTRC10Transfer, types.TxTRC20Transfer:
		stats.TokenTransfers++
	case types.TxDelegateResource:
		stats.Delegations++
		if tx.Succeeded {
			switch tx.ResourceKind {
			case types.ResourceEnergy:
				addSun(&stats.DelegatedEnergySun, tx.Amount)
			case types.ResourceBandwidth:
				addSun(&stats.DelegatedBandwidthSun, tx.Amount)
			}
		}
	case types.TxUndelegateResource:
		stats.Undelegations++
		if tx.Succeeded {
			switch tx.ResourceKind {
			case types.ResourceEnergy:
				addSun(&stats.UndelegatedEnergySun, tx.Amount)
			case types.ResourceBandwidth:
				addSun(&stats.UndelegatedBandwidthSun, tx.Amount)
			}
		}
	case types.TxAssetIssue:
		stats.TokenCreations++
	case types.TxContractCall:
		stats.ContractCalls++
	case types.TxContractCreate:
		stats.ContractCreations++
	case types.TxStake, types.TxUnstake:
		stats.Stakes++
	case types.TxVote:
		stats.Votes++
	default:
		stats.Unknown++
	}
}

// addSun adds amount to total, saturating at MaxUint64
func addSun(total *uint64, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if !amount.IsUint64() || *total > math.MaxUint64-amount.Uint64() {
		*total = math.MaxUint64
		return
	}
	*total += amount.Uint64()
}
