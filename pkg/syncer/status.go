package syncer

import "time"

// Status is the operator-facing view of sync progress. It is derived on
// demand and never persisted.
type Status struct {
	CurrentBlock              uint64         `json:"currentBlock"`
	NetworkBlock              uint64         `json:"networkBlock"`
	Lag                       uint64         `json:"lag"`
	BackfillQueueSize         int            `json:"backfillQueueSize"`
	IsHealthy                 bool           `json:"isHealthy"`
	EstimatedCatchUpTime      *time.Duration `json:"estimatedCatchUpTime"`
	ProcessingBlocksPerMinute float64        `json:"processingBlocksPerMinute"`
	NetworkBlocksPerMinute    float64        `json:"networkBlocksPerMinute"`
	AverageDelay              time.Duration  `json:"averageDelay"`
	// IsKeepingUp compares throughput, independent of the current lag
	IsKeepingUp     bool      `json:"isKeepingUp"`
	LastError       string    `json:"lastError,omitempty"`
	LastErrorAt     time.Time `json:"lastErrorAt"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	Phase           Phase     `json:"phase"`
}

// Status derives the current status. Before the sync document is loaded the
// indexer reports unhealthy.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	head := c.networkHead
	if head == 0 {
		head = c.state.Meta.LastNetworkHeight
	}
	cursor := c.state.Cursor.BlockNumber
	backfill := len(c.state.Meta.BackfillQueue)

	st := Status{
		CurrentBlock:      cursor,
		NetworkBlock:      head,
		Lag:               lag(head, cursor),
		BackfillQueueSize: backfill,
		LastError:         c.state.Meta.LastError,
		LastErrorAt:       c.state.Meta.LastErrorAt,
		LastProcessedAt:   c.state.Meta.LastProcessedAt,
		Phase:             c.phase,
	}
	if c.headErrAt.After(st.LastErrorAt) {
		st.LastError = c.headErr
		st.LastErrorAt = c.headErrAt
	}

	st.IsHealthy = c.loaded &&
		st.Lag < c.config.HealthLagThreshold &&
		backfill < c.config.BackfillHealthThreshold

	r := c.window.rates()
	st.ProcessingBlocksPerMinute = r.processingPerMinute
	st.NetworkBlocksPerMinute = r.networkPerMinute
	st.AverageDelay = r.averageDelay
	st.IsKeepingUp = r.samples >= 2 && r.processingPerMinute > 0 &&
		r.processingPerMinute >= r.networkPerMinute
	st.EstimatedCatchUpTime = r.eta(st.Lag)
	return st
}
