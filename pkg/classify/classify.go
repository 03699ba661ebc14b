// Package classify maps raw chain transactions to analytics-ready records.
//
// Classification is a pure function of its inputs: it reads the relationship
// graph but never writes it, and it never fails on malformed payloads.
// Unparseable optional fields are left absent and listed in Degraded.
package classify

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// ErrClassification is returned when a transaction could not be classified at all
var ErrClassification = errors.New("classification failed")

const (
	// DefaultRelatedLimit caps RelatedAddresses when Context.RelatedLimit is zero
	DefaultRelatedLimit = 16

	// SunPerTRX is the number of sun in one TRX
	SunPerTRX = 1_000_000

	// blockInterval is the nominal block production interval
	blockInterval = 3 * time.Second
)

// Contract types as reported by the wallet API
const (
	ContractTransfer      = "TransferContract"
	ContractTransferAsset = "TransferAssetContract"
	ContractTrigger       = "TriggerSmartContract"
	ContractCreate        = "CreateSmartContract"
	ContractDelegate      = "DelegateResourceContract"
	ContractUndelegate    = "UnDelegateResourceContract"
	ContractAssetIssue    = "AssetIssueContract"
	ContractFreezeV2      = "FreezeBalanceV2Contract"
	ContractUnfreezeV2    = "UnfreezeBalanceV2Contract"
	ContractFreeze        = "FreezeBalanceContract"
	ContractUnfreeze      = "UnfreezeBalanceContract"
	ContractVote          = "VoteWitnessContract"
)

// Context carries the inputs of a classification pass besides the transaction
type Context struct {
	// PriceUSD is the TRX/USD estimate; zero means unknown
	PriceUSD float64
	// Graph is the in-run relationship graph, read-only here
	Graph GraphReader
	// BlockTime is the production time of the enclosing block
	BlockTime time.Time
	// RelatedLimit caps RelatedAddresses
	RelatedLimit int
}

type rule struct {
	pattern types.Pattern
	topics  []string
}

var rules = map[types.TxType]rule{
	types.TxTransfer:           {types.PatternTransfer, []string{types.TopicTransfer}},
	types.TxTRC10Transfer:      {types.PatternTokenTransfer, []string{types.TopicTransfer, types.TopicTokenTransfer}},
	types.TxTRC20Transfer:      {types.PatternTokenTransfer, []string{types.TopicTransfer, types.TopicTokenTransfer}},
	types.TxContractCall:       {types.PatternContractCall, nil},
	types.TxContractCreate:     {types.PatternDeploy, nil},
	types.TxDelegateResource:   {types.PatternDelegation, []string{types.TopicDelegation}},
	types.TxUndelegateResource: {types.PatternDelegation, []string{types.TopicDelegation}},
	// Creation is informational: no threshold topics
	types.TxAssetIssue: {types.PatternTokenCreation, []string{types.TopicTokenCreated}},
	types.TxStake:      {types.PatternStaking, nil},
	types.TxUnstake:    {types.PatternStaking, nil},
	types.TxVote:       {types.PatternGovernance, nil},
	types.TxUnknown:    {types.PatternUnknown, nil},
}

// trxDenominated lists types whose Amount is in sun
var trxDenominated = map[types.TxType]bool{
	types.TxTransfer:           true,
	types.TxContractCall:       true,
	types.TxDelegateResource:   true,
	types.TxUndelegateResource: true,
	types.TxStake:              true,
	types.TxUnstake:            true,
}

// Classify derives a ClassifiedTransaction from a raw transaction.
// It returns (nil, nil) for transactions without any operation entry and
// (nil, ErrClassification) if classification itself broke down.
func Classify(block *types.RawBlock, tx *types.RawTransaction, prior *types.BlockHeader, cctx Context) (result *types.ClassifiedTransaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrClassification, r)
		}
	}()

	if tx == nil || len(tx.RawData.Contract) == 0 {
		return nil, nil
	}

	contract := tx.RawData.Contract[0]
	f, ok := parseFields(contract.Parameter.Value)
	if !ok {
		f.degrade("value")
	}

	out := &types.ClassifiedTransaction{
		ID:        tx.TxID,
		Timestamp: txTime(block, tx, prior, cctx),
		Succeeded: tx.Succeeded(),
	}

	switch contract.Type {
	case ContractTransfer:
		out.Type = types.TxTransfer
		out.Participants = participants(f, "owner_address", "to_address")
		out.Amount, _ = f.amount("amount")

	case ContractTransferAsset:
		out.Type = types.TxTRC10Transfer
		out.Participants = participants(f, "owner_address", "to_address")
		out.Amount, _ = f.amount("amount")
		if name, ok := f.str("asset_name"); ok {
			out.Asset = decodeName(name)
		}

	case ContractTrigger:
		classifyTrigger(f, out)

	case ContractCreate:
		out.Type = types.TxContractCreate
		out.Participants.From, _ = f.address("owner_address")

	case ContractDelegate:
		out.Type = types.TxDelegateResource
		out.Participants = participants(f, "owner_address", "receiver_address")
		out.Amount, _ = f.amount("balance")
		out.ResourceKind = resourceKind(f)
		if lock, ok := f.flag("lock"); ok {
			out.Lock = &lock
		}
		if period, ok := f.num("lock_period"); ok {
			out.LockPeriod = &period
		}
		out.PoolID, _ = f.text("pool_id")

	case ContractUndelegate:
		out.Type = types.TxUndelegateResource
		out.Participants = participants(f, "owner_address", "receiver_address")
		out.Amount, _ = f.amount("balance")
		out.ResourceKind = resourceKind(f)
		out.PoolID, _ = f.text("pool_id")

	case ContractAssetIssue:
		out.Type = types.TxAssetIssue
		out.Participants.From, _ = f.address("owner_address")
		out.Amount, _ = f.amount("total_supply")
		if name, ok := f.str("name"); ok {
			out.Asset = decodeName(name)
		}

	case ContractFreezeV2, ContractFreeze:
		out.Type = types.TxStake
		out.Participants = participants(f, "owner_address", "receiver_address")
		out.Amount, _ = f.amount("frozen_balance")
		out.ResourceKind = resourceKind(f)

	case ContractUnfreezeV2, ContractUnfreeze:
		out.Type = types.TxUnstake
		out.Participants = participants(f, "owner_address", "receiver_address")
		out.Amount, _ = f.amount("unfreeze_balance")
		out.ResourceKind = resourceKind(f)

	case ContractVote:
		out.Type = types.TxVote
		out.Participants.From, _ = f.address("owner_address")
		out.Amount, _ = f.votes("votes")

	default:
		out.Type = types.TxUnknown
		out.Participants.From, _ = f.address("owner_address")
	}

	r := rules[out.Type]
	out.Pattern = r.pattern
	out.NotificationTopics = append(make([]string, 0, len(r.topics)), r.topics...)

	if tx.RawData.Data != "" {
		if memo, ok := DecodeMemo(tx.RawData.Data); ok {
			out.Memo = memo
		} else {
			f.degrade("memo")
		}
	}

	out.AmountUSD = usdValue(out, cctx.PriceUSD)
	out.RelatedAddresses = relatedAddresses(out.Participants, cctx)
	out.Degraded = f.degraded

	return out, nil
}

func classifyTrigger(f *fields, out *types.ClassifiedTransaction) {
	owner, _ := f.address("owner_address")
	contractAddr, _ := f.address("contract_address")

	if data, ok := f.str("data"); ok {
		if tt, ok := decodeTRC20Transfer(data); ok {
			out.Type = types.TxTRC20Transfer
			out.Participants = types.Participants{From: owner, To: tt.To}
			if tt.From != "" {
				out.Participants.From = tt.From
			}
			out.Amount = tt.Amount
			out.Asset = contractAddr
			return
		}
	}

	out.Type = types.TxContractCall
	out.Participants = types.Participants{From: owner, To: contractAddr}
	if v, ok := f.amount("call_value"); ok && v.Sign() > 0 {
		out.Amount = v
	}
}

func participants(f *fields, fromKey, toKey string) types.Participants {
	var p types.Participants
	p.From, _ = f.address(fromKey)
	p.To, _ = f.address(toKey)
	return p
}

// resourceKind reads the resource field; unspecified means bandwidth
func resourceKind(f *fields) types.ResourceKind {
	v, ok := f.text("resource")
	if !ok {
		return types.ResourceBandwidth
	}
	switch strings.ToUpper(v) {
	case "BANDWIDTH", "0":
		return types.ResourceBandwidth
	case "ENERGY", "1":
		return types.ResourceEnergy
	case "TRON_POWER", "2":
		return types.ResourceTronPower
	}
	f.degrade("resource")
	return types.ResourceBandwidth
}

// txTime picks the best available timestamp for a record
func txTime(block *types.RawBlock, tx *types.RawTransaction, prior *types.BlockHeader, cctx Context) time.Time {
	switch {
	case !cctx.BlockTime.IsZero():
		return cctx.BlockTime
	case block != nil && !block.Time().IsZero():
		return block.Time()
	case tx.RawData.Timestamp > 0:
		return time.UnixMilli(tx.RawData.Timestamp).UTC()
	case prior != nil && !prior.Timestamp.IsZero():
		return prior.Timestamp.Add(blockInterval)
	}
	return time.Time{}
}

func usdValue(c *types.ClassifiedTransaction, price float64) float64 {
	if price <= 0 || c.Amount == nil || !trxDenominated[c.Type] {
		return 0
	}
	trx := new(big.Float).Quo(new(big.Float).SetInt(c.Amount), big.NewFloat(SunPerTRX))
	usd, _ := new(big.Float).Mul(trx, big.NewFloat(price)).Float64()
	return usd
}

func relatedAddresses(p types.Participants, cctx Context) []string {
	out := make([]string, 0)
	if cctx.Graph == nil {
		return out
	}

	limit := cctx.RelatedLimit
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	seen := map[string]bool{p.From: true, p.To: true}
	for _, addr := range []string{p.From, p.To} {
		if addr == "" {
			continue
		}
		for _, n := range cctx.Graph.Neighbors(addr) {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}

	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
