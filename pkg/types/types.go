package types

import (
	"encoding/json"
	"math/big"
	"time"
)

// RawBlock represents a block as returned by /wallet/getnowblock and /wallet/getblockbynum
type RawBlock struct {
	BlockID      string           `json:"blockID"`
	BlockHeader  RawBlockHeader   `json:"block_header"`
	Transactions []RawTransaction `json:"transactions"`
}

// RawBlockHeader is the header envelope of a RawBlock
type RawBlockHeader struct {
	RawData          RawHeaderData `json:"raw_data"`
	WitnessSignature string        `json:"witness_signature"`
}

// RawHeaderData holds the signed header fields
type RawHeaderData struct {
	Number         int64  `json:"number"`
	TxTrieRoot     string `json:"txTrieRoot"`
	WitnessAddress string `json:"witness_address"`
	ParentHash     string `json:"parentHash"`
	Version        int32  `json:"version"`
	Timestamp      int64  `json:"timestamp"`
}

// Number returns the block height
func (b *RawBlock) Number() uint64 {
	if b.BlockHeader.RawData.Number < 0 {
		return 0
	}
	return uint64(b.BlockHeader.RawData.Number)
}

// Time returns the block production time
func (b *RawBlock) Time() time.Time {
	if b.BlockHeader.RawData.Timestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(b.BlockHeader.RawData.Timestamp).UTC()
}

// Header returns the normalized header of the block.
// Producer is left in its wire form; callers resolve it to base58.
func (b *RawBlock) Header() BlockHeader {
	return BlockHeader{
		Number:     b.Number(),
		ID:         b.BlockID,
		ParentHash: b.BlockHeader.RawData.ParentHash,
		Producer:   b.BlockHeader.RawData.WitnessAddress,
		Timestamp:  b.Time(),
	}
}

// RawTransaction represents a transaction as received from the chain RPC
type RawTransaction struct {
	TxID      string      `json:"txID"`
	RawData   RawTxData   `json:"raw_data"`
	Ret       []RawResult `json:"ret"`
	Signature []string    `json:"signature"`
}

// RawTxData holds the operation entries and the optional memo payload
type RawTxData struct {
	Contract   []RawContract `json:"contract"`
	Data       string        `json:"data"`
	Timestamp  int64         `json:"timestamp"`
	Expiration int64         `json:"expiration"`
	FeeLimit   int64         `json:"fee_limit"`
}

// RawContract is a single typed operation entry of a transaction
type RawContract struct {
	Type         string       `json:"type"`
	Parameter    RawParameter `json:"parameter"`
	PermissionID int          `json:"Permission_id"`
}

// RawParameter carries the operation payload; Value is decoded per contract type
type RawParameter struct {
	Value   json.RawMessage `json:"value"`
	TypeURL string          `json:"type_url"`
}

// RawResult is the execution result reported for a transaction
type RawResult struct {
	ContractRet string `json:"contractRet"`
}

// Succeeded reports whether the chain marked the transaction as successful.
// Transactions without a result entry are treated as successful.
func (tx *RawTransaction) Succeeded() bool {
	if len(tx.Ret) == 0 || tx.Ret[0].ContractRet == "" {
		return true
	}
	return tx.Ret[0].ContractRet == "SUCCESS"
}

// TransactionInfo is the execution receipt returned by /wallet/gettransactioninfobyid
type TransactionInfo struct {
	ID             string             `json:"id"`
	Fee            int64              `json:"fee"`
	BlockNumber    int64              `json:"blockNumber"`
	BlockTimeStamp int64              `json:"blockTimeStamp"`
	ContractResult []string           `json:"contractResult"`
	Receipt        TransactionReceipt `json:"receipt"`
	Result         string             `json:"result"`
	ResMessage     string             `json:"resMessage"`
}

// TransactionReceipt holds resource consumption of a transaction
type TransactionReceipt struct {
	EnergyUsage      int64  `json:"energy_usage"`
	EnergyUsageTotal int64  `json:"energy_usage_total"`
	EnergyFee        int64  `json:"energy_fee"`
	NetUsage         int64  `json:"net_usage"`
	NetFee           int64  `json:"net_fee"`
	Result           string `json:"result"`
}

// AccountResource is the bandwidth/energy view returned by /wallet/getaccountresource
type AccountResource struct {
	FreeNetUsed       int64 `json:"freeNetUsed"`
	FreeNetLimit      int64 `json:"freeNetLimit"`
	NetUsed           int64 `json:"NetUsed"`
	NetLimit          int64 `json:"NetLimit"`
	EnergyUsed        int64 `json:"EnergyUsed"`
	EnergyLimit       int64 `json:"EnergyLimit"`
	TotalNetLimit     int64 `json:"TotalNetLimit"`
	TotalNetWeight    int64 `json:"TotalNetWeight"`
	TotalEnergyLimit  int64 `json:"TotalEnergyLimit"`
	TotalEnergyWeight int64 `json:"TotalEnergyWeight"`
}

// BlockHeader is the normalized header used by the classifier and observers
type BlockHeader struct {
	Number     uint64
	ID         string
	ParentHash string
	Producer   string
	Timestamp  time.Time
}

// TxType identifies the classified operation type
type TxType string

const (
	TxTransfer           TxType = "transfer"
	TxTRC10Transfer      TxType = "trc10_transfer"
	TxTRC20Transfer      TxType = "trc20_transfer"
	TxContractCall       TxType = "contract_call"
	TxContractCreate     TxType = "contract_create"
	TxDelegateResource   TxType = "delegate_resource"
	TxUndelegateResource TxType = "undelegate_resource"
	TxAssetIssue         TxType = "asset_issue"
	TxStake              TxType = "stake"
	TxUnstake            TxType = "unstake"
	TxVote               TxType = "vote"
	TxUnknown            TxType = "unknown"
)

// Pattern is the behavioral pattern assigned to a classified transaction
type Pattern string

const (
	PatternTransfer      Pattern = "transfer"
	PatternTokenTransfer Pattern = "token_transfer"
	PatternDelegation    Pattern = "delegation"
	PatternTokenCreation Pattern = "token_creation"
	PatternContractCall  Pattern = "contract_call"
	PatternDeploy        Pattern = "contract_deploy"
	PatternStaking       Pattern = "staking"
	PatternGovernance    Pattern = "governance"
	PatternUnknown       Pattern = "unknown"
)

// Notification topics
const (
	TopicTransfer      = "transfer:new"
	TopicTokenTransfer = "token_transfer:new"
	TopicDelegation    = "delegation:new"
	TopicTokenCreated  = "token:created"
)

// ResourceKind is the staked resource a delegation refers to
type ResourceKind string

const (
	ResourceBandwidth ResourceKind = "BANDWIDTH"
	ResourceEnergy    ResourceKind = "ENERGY"
	ResourceTronPower ResourceKind = "TRON_POWER"
)

// Participants are the resolved base58 addresses of a transaction
type Participants struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// ClassifiedTransaction is the analytics-ready record derived from a RawTransaction
type ClassifiedTransaction struct {
	Type               TxType       `json:"type"`
	Timestamp          time.Time    `json:"timestamp"`
	ID                 string       `json:"id"`
	Participants       Participants `json:"participants"`
	Amount             *big.Int     `json:"amount,omitempty"`
	AmountUSD          float64      `json:"amountUsd,omitempty"`
	Asset              string       `json:"asset,omitempty"`
	ResourceKind       ResourceKind `json:"resourceKind,omitempty"`
	Lock               *bool        `json:"lock,omitempty"`
	LockPeriod         *int64       `json:"lockPeriod,omitempty"`
	PoolID             string       `json:"poolId,omitempty"`
	Memo               string       `json:"memo,omitempty"`
	Pattern            Pattern      `json:"pattern"`
	RelatedAddresses   []string     `json:"relatedAddresses"`
	NotificationTopics []string     `json:"notificationTopics"`
	Succeeded          bool         `json:"succeeded"`
	Degraded           []string     `json:"degraded,omitempty"`
}

// HasTopic reports whether the record carries the given notification topic
func (c *ClassifiedTransaction) HasTopic(topic string) bool {
	for _, t := range c.NotificationTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// BlockContext is the enclosing block handed to observers with each record
type BlockContext struct {
	Number           uint64    `json:"number"`
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Producer         string    `json:"producer"`
	TransactionCount int       `json:"transactionCount"`
}

// BlockStats holds per-category counts and resource totals of a block
type BlockStats struct {
	Transfers         uint64 `json:"transfers"`
	TokenTransfers    uint64 `json:"tokenTransfers"`
	Delegations       uint64 `json:"delegations"`
	Undelegations     uint64 `json:"undelegations"`
	TokenCreations    uint64 `json:"tokenCreations"`
	ContractCalls     uint64 `json:"contractCalls"`
	ContractCreations uint64 `json:"contractCreations"`
	Stakes            uint64 `json:"stakes"`
	Votes             uint64 `json:"votes"`
	Unknown           uint64 `json:"unknown"`
	Unclassified      uint64 `json:"unclassified"`
	Failed            uint64 `json:"failed"`

	// Totals in sun
	TransferredSun          uint64 `json:"transferredSun"`
	DelegatedEnergySun      uint64 `json:"delegatedEnergySun"`
	DelegatedBandwidthSun   uint64 `json:"delegatedBandwidthSun"`
	UndelegatedEnergySun    uint64 `json:"undelegatedEnergySun"`
	UndelegatedBandwidthSun uint64 `json:"undelegatedBandwidthSun"`
}

// ChainBlock is the persisted row for one processed block
type ChainBlock struct {
	Number           uint64     `json:"blockNumber"`
	ID               string     `json:"blockId"`
	ParentHash       string     `json:"parentHash"`
	Producer         string     `json:"producerAddress"`
	Timestamp        time.Time  `json:"timestamp"`
	TransactionCount uint64     `json:"transactionCount"`
	Stats            BlockStats `json:"statsByCategory"`
	ProcessedAt      time.Time  `json:"processedAt"`
}

// Timings records how long each pipeline phase took for one block
type Timings struct {
	Fetch    time.Duration `json:"fetch"`
	Classify time.Duration `json:"classify"`
	Persist  time.Duration `json:"persist"`
	Notify   time.Duration `json:"notify"`
	Total    time.Duration `json:"total"`
}

// Cursor is the last block number durably finished processing
type Cursor struct {
	BlockNumber uint64 `json:"blockNumber"`
}

// SyncMeta is the bookkeeping kept next to the cursor
type SyncMeta struct {
	LastProcessedAt      time.Time `json:"lastProcessedAt"`
	LastProcessedBlockID string    `json:"lastProcessedBlockId"`
	LastError            string    `json:"lastError,omitempty"`
	LastErrorAt          time.Time `json:"lastErrorAt"`
	BackfillQueue        []uint64  `json:"backfillQueue"`
	LastNetworkHeight    uint64    `json:"lastNetworkHeight"`
	LastTimings          Timings   `json:"lastTimings"`
	LastTransactionCount uint64    `json:"lastTransactionCount"`
}

// SyncState is the singleton sync document
type SyncState struct {
	Cursor Cursor   `json:"cursor"`
	Meta   SyncMeta `json:"meta"`
}

// Clone returns a deep copy of the state
func (s SyncState) Clone() SyncState {
	out := s
	if s.Meta.BackfillQueue != nil {
		out.Meta.BackfillQueue = append([]uint64(nil), s.Meta.BackfillQueue...)
	}
	return out
}
