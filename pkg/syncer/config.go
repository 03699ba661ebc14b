package syncer

import (
	"fmt"
	"time"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
)

// CatchUpPolicy chooses what a catching-up cycle works on first
type CatchUpPolicy string

const (
	// PolicyBackfillFirst drains the oldest backfill entry before new blocks
	PolicyBackfillFirst CatchUpPolicy = "backfill_first"

	// PolicySequentialFirst follows the head and drains backfill when no new block is due
	PolicySequentialFirst CatchUpPolicy = "sequential_first"
)

// Config holds sync controller configuration
type Config struct {
	// StartHeight is the first block indexed on a fresh store; 0 starts at the head
	StartHeight uint64

	// PollInterval is the spacing between two cycles
	PollInterval time.Duration

	// CatchUpThreshold is the lag above which a cycle processes several blocks
	CatchUpThreshold uint64

	// HealthLagThreshold is the lag at or above which the indexer is unhealthy
	HealthLagThreshold uint64

	// BackfillCap bounds the backfill queue; the oldest entry is evicted past it
	BackfillCap int

	// BackfillHealthThreshold is the backfill size at or above which the indexer is unhealthy
	BackfillHealthThreshold int

	CatchUpPolicy CatchUpPolicy

	// MaxBlocksPerCycle bounds the blocks attempted by one catching-up cycle
	MaxBlocksPerCycle int

	// WindowSize is the number of recent blocks used for rate estimates
	WindowSize int
}

// DefaultConfig returns default sync configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:            constants.DefaultPollInterval,
		CatchUpThreshold:        constants.DefaultCatchUpThreshold,
		HealthLagThreshold:      constants.DefaultHealthLagThreshold,
		BackfillCap:             constants.DefaultBackfillCap,
		BackfillHealthThreshold: constants.DefaultBackfillHealthThreshold,
		CatchUpPolicy:           PolicyBackfillFirst,
		MaxBlocksPerCycle:       constants.DefaultMaxBlocksPerCycle,
		WindowSize:              constants.DefaultMetricsWindowSize,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.BackfillCap < 1 {
		return fmt.Errorf("backfill cap must be at least 1")
	}
	if c.BackfillHealthThreshold < 1 {
		return fmt.Errorf("backfill health threshold must be at least 1")
	}
	if c.HealthLagThreshold < 1 {
		return fmt.Errorf("health lag threshold must be at least 1")
	}
	if c.MaxBlocksPerCycle < 1 {
		return fmt.Errorf("max blocks per cycle must be at least 1")
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("window size must be at least 2")
	}
	switch c.CatchUpPolicy {
	case PolicyBackfillFirst, PolicySequentialFirst:
	default:
		return fmt.Errorf("unknown catch-up policy %q", c.CatchUpPolicy)
	}
	return nil
}
