// Package syncer owns the ingestion cursor. Each cycle it polls the network
// head, picks the next block (live or backfill), runs it through the pipeline
// and persists the outcome in the sync document.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/fetch"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

var (
	// ErrNotLoaded is returned by operations that need the sync document
	ErrNotLoaded = errors.New("sync state not loaded")

	// ErrInvalidRange is returned by Backfill for an empty or oversized range
	ErrInvalidRange = errors.New("invalid backfill range")
)

// Phase is the controller's position in a cycle
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseFetchingHead Phase = "fetching_head"
	PhaseCatchingUp   Phase = "catching_up"
	PhaseLiveAhead    Phase = "live_ahead"
	PhaseProcessing   Phase = "processing"
)

// ChainClient reports the network head
type ChainClient interface {
	GetHeadBlockNumber(ctx context.Context) (uint64, error)
}

// BlockProcessor runs one block through fetch, classify, persist and notify
type BlockProcessor interface {
	ProcessOneBlock(ctx context.Context, n uint64) fetch.Result
}

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the time source
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithTicker sets the ticker driving Run
func WithTicker(t ticker.Ticker) Option {
	return func(c *Controller) { c.ticker = t }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithRegisterer registers the controller's metrics
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Controller) { c.registerer = reg }
}

// Attempt is the outcome of processing one target during a cycle
type Attempt struct {
	Block    uint64 `json:"block"`
	Backfill bool   `json:"backfill"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// CycleReport summarizes one cycle
type CycleReport struct {
	Mode     Phase     `json:"mode"`
	Head     uint64    `json:"head"`
	Lag      uint64    `json:"lag"`
	Attempts []Attempt `json:"attempts"`
}

// Succeeded returns the number of successful attempts
func (r CycleReport) Succeeded() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Success {
			n++
		}
	}
	return n
}

// Controller drives the ingestion cursor. Cycles are strictly serial: at
// most one block is in flight at any time.
type Controller struct {
	config     Config
	client     ChainClient
	processor  BlockProcessor
	store      storage.SyncStateStore
	clock      clock.Clock
	ticker     ticker.Ticker
	logger     *zap.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	// runMu serializes cycles and operator backfill requests
	runMu sync.Mutex

	mu          sync.RWMutex
	state       types.SyncState
	loaded      bool
	networkHead uint64
	phase       Phase
	headErr     string
	headErrAt   time.Time
	window      *window
}

// New creates a controller. Load is called lazily by the first cycle.
func New(cfg Config, client ChainClient, processor BlockProcessor, store storage.SyncStateStore, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("block processor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("sync state store is required")
	}

	c := &Controller{
		config:    cfg,
		client:    client,
		processor: processor,
		store:     store,
		phase:     PhaseIdle,
		window:    newWindow(cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		c.clock = clock.NewDefaultClock()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "syncer"))
	if c.ticker == nil {
		c.ticker = ticker.New(cfg.PollInterval)
	}
	c.metrics = newMetrics(c.registerer)

	return c, nil
}

// Load reads the sync document, creating it on first run
func (c *Controller) Load(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.load(ctx)
}

func (c *Controller) load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	stored, err := c.store.GetSyncState(ctx)
	switch {
	case err == nil:
		c.mu.Lock()
		c.state = stored.Clone()
		c.loaded = true
		c.mu.Unlock()

		c.logger.Info("Sync state loaded",
			zap.Uint64("cursor", stored.Cursor.BlockNumber),
			zap.Int("backfill", len(stored.Meta.BackfillQueue)))
		c.updateGauges()
		return nil

	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to read sync state: %w", err)
	}

	var cursor uint64
	if c.config.StartHeight > 0 {
		cursor = c.config.StartHeight - 1
	} else {
		head, err := c.client.GetHeadBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get head for initial cursor: %w", err)
		}
		if head > 0 {
			cursor = head - 1
		}
	}

	initial := types.SyncState{Cursor: types.Cursor{BlockNumber: cursor}}
	initial.Meta.BackfillQueue = []uint64{}
	if err := c.store.PutSyncState(ctx, &initial); err != nil {
		c.metrics.stateWriteErrors.Inc()
		return fmt.Errorf("failed to write initial sync state: %w", err)
	}

	c.mu.Lock()
	c.state = initial
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("Sync state initialized",
		zap.Uint64("cursor", cursor),
		zap.Uint64("startHeight", c.config.StartHeight))
	c.updateGauges()
	return nil
}

// RunCycle runs one cycle: poll the head, then process one or more targets.
// A cancelled context stops the cycle without recording a failure.
func (c *Controller) RunCycle(ctx context.Context) (CycleReport, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	defer c.setPhase(PhaseIdle)

	var report CycleReport
	if err := c.load(ctx); err != nil {
		return report, err
	}

	c.setPhase(PhaseFetchingHead)
	head, err := c.client.GetHeadBlockNumber(ctx)
	if err != nil {
		c.metrics.headErrors.Inc()
		c.mu.Lock()
		c.headErr = err.Error()
		c.headErrAt = c.clock.Now()
		c.mu.Unlock()
		return report, fmt.Errorf("failed to get network head: %w", err)
	}

	c.mu.Lock()
	c.networkHead = head
	cursor := c.state.Cursor.BlockNumber
	c.mu.Unlock()

	report.Head = head
	report.Lag = lag(head, cursor)

	mode := PhaseLiveAhead
	limit := 2
	if report.Lag > c.config.CatchUpThreshold {
		mode = PhaseCatchingUp
		limit = c.config.MaxBlocksPerCycle
	}
	report.Mode = mode
	c.setPhase(mode)
	c.metrics.cycles.WithLabelValues(string(mode)).Inc()

	attempted := make(map[uint64]bool)
	var usedSequential, usedBackfill bool
	for len(report.Attempts) < limit {
		target, fromBackfill, ok := c.nextTarget(mode, head, attempted, usedSequential, usedBackfill)
		if !ok {
			break
		}
		attempted[target] = true
		if fromBackfill {
			usedBackfill = true
		} else {
			usedSequential = true
		}

		attempt, err := c.process(ctx, target, fromBackfill, head)
		if attempt != nil {
			report.Attempts = append(report.Attempts, *attempt)
		}
		if err != nil {
			c.updateGauges()
			return report, err
		}
		c.setPhase(mode)
	}

	c.updateGauges()
	return report, nil
}

// nextTarget picks the next block for this cycle. Live cycles take at most
// one sequential block and one backfill entry; catching-up cycles follow
// the configured policy until the limit runs out.
func (c *Controller) nextTarget(mode Phase, head uint64, attempted map[uint64]bool, usedSequential, usedBackfill bool) (uint64, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seq, seqOK := c.nextSequential(head, attempted)
	bf, bfOK := c.oldestBackfill(attempted)

	if mode == PhaseLiveAhead {
		switch {
		case !usedSequential && seqOK:
			return seq, false, true
		case !usedBackfill && bfOK:
			return bf, true, true
		}
		return 0, false, false
	}

	if c.config.CatchUpPolicy == PolicyBackfillFirst {
		if bfOK {
			return bf, true, true
		}
		if seqOK {
			return seq, false, true
		}
		return 0, false, false
	}

	if seqOK {
		return seq, false, true
	}
	if bfOK {
		return bf, true, true
	}
	return 0, false, false
}

// nextSequential returns cursor+1, skipping blocks already tracked in
// backfill or attempted this cycle. Caller holds c.mu.
func (c *Controller) nextSequential(head uint64, attempted map[uint64]bool) (uint64, bool) {
	tracked := make(map[uint64]bool, len(c.state.Meta.BackfillQueue))
	for _, n := range c.state.Meta.BackfillQueue {
		tracked[n] = true
	}

	n := c.state.Cursor.BlockNumber + 1
	for tracked[n] || attempted[n] {
		n++
	}
	if n > head {
		return 0, false
	}
	return n, true
}

// oldestBackfill returns the oldest entry not yet attempted this cycle.
// Caller holds c.mu.
func (c *Controller) oldestBackfill(attempted map[uint64]bool) (uint64, bool) {
	for _, n := range c.state.Meta.BackfillQueue {
		if !attempted[n] {
			return n, true
		}
	}
	return 0, false
}

// process runs one target through the pipeline and persists the outcome.
// The in-memory state only changes after the sync document is written.
func (c *Controller) process(ctx context.Context, target uint64, fromBackfill bool, head uint64) (*Attempt, error) {
	c.setPhase(PhaseProcessing)
	res := c.processor.ProcessOneBlock(ctx, target)
	if !res.Success && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	source := "live"
	if fromBackfill {
		source = "backfill"
	}
	attempt := &Attempt{Block: target, Backfill: fromBackfill, Success: res.Success}

	now := c.clock.Now()
	c.mu.RLock()
	next := c.state.Clone()
	c.mu.RUnlock()

	next.Meta.LastNetworkHeight = head
	var evicted []uint64
	if res.Success {
		c.applySuccess(&next, target, res, now)
	} else {
		errMsg := "unknown error"
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		attempt.Error = errMsg
		evicted = c.applyFailure(&next, target, errMsg, now)
	}

	if err := c.store.PutSyncState(ctx, &next); err != nil {
		c.metrics.stateWriteErrors.Inc()
		c.logger.Error("Failed to persist sync state",
			zap.Uint64("block", target),
			zap.Bool("blockSucceeded", res.Success),
			zap.Error(err))
		attempt.Success = false
		attempt.Error = err.Error()
		return attempt, fmt.Errorf("failed to persist sync state for block %d: %w", target, err)
	}

	c.mu.Lock()
	c.state = next
	if res.Success && res.Block != nil {
		c.window.add(sample{
			block:       target,
			chainTime:   res.Block.Timestamp,
			processedAt: now,
		})
	}
	c.mu.Unlock()

	for _, n := range evicted {
		c.metrics.backfillEvictions.Inc()
		c.logger.Warn("Backfill queue full, dropping oldest entry; block will not be reprocessed",
			zap.Uint64("dropped", n),
			zap.Int("cap", c.config.BackfillCap))
	}

	if res.Success {
		c.metrics.attempts.WithLabelValues(source, "success").Inc()
	} else {
		c.metrics.attempts.WithLabelValues(source, "failure").Inc()
		c.logger.Warn("Block queued for backfill",
			zap.Uint64("block", target),
			zap.Bool("fromBackfill", fromBackfill),
			zap.Int("backfill", len(next.Meta.BackfillQueue)),
			zap.String("error", attempt.Error))
	}
	return attempt, nil
}

// applySuccess clears the target from backfill and advances the cursor when
// every block between the cursor and the target is tracked in backfill.
func (c *Controller) applySuccess(s *types.SyncState, target uint64, res fetch.Result, now time.Time) {
	s.Meta.BackfillQueue = without(s.Meta.BackfillQueue, target)

	if target > s.Cursor.BlockNumber && gapTracked(s.Meta.BackfillQueue, s.Cursor.BlockNumber, target) {
		s.Cursor.BlockNumber = target
	}

	s.Meta.LastProcessedAt = now
	s.Meta.LastTimings = res.Timings
	if res.Block != nil {
		s.Meta.LastProcessedBlockID = res.Block.ID
		s.Meta.LastTransactionCount = res.Block.TransactionCount
	}
}

// applyFailure moves the target to the backfill tail and returns the entries
// evicted to respect the cap.
func (c *Controller) applyFailure(s *types.SyncState, target uint64, errMsg string, now time.Time) []uint64 {
	q := append(without(s.Meta.BackfillQueue, target), target)

	var evicted []uint64
	if over := len(q) - c.config.BackfillCap; over > 0 {
		evicted = append(evicted, q[:over]...)
		q = append([]uint64(nil), q[over:]...)
	}

	s.Meta.BackfillQueue = q
	s.Meta.LastError = errMsg
	s.Meta.LastErrorAt = now
	return evicted
}

// Backfill queues [from, to] for reprocessing and returns how many blocks
// were added. Blocks already queued keep their position.
func (c *Controller) Backfill(ctx context.Context, from, to uint64) (int, error) {
	if from > to || to-from >= uint64(c.config.BackfillCap) {
		return 0, fmt.Errorf("%w: [%d, %d] with cap %d", ErrInvalidRange, from, to, c.config.BackfillCap)
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	if err := c.load(ctx); err != nil {
		return 0, err
	}

	c.mu.RLock()
	next := c.state.Clone()
	c.mu.RUnlock()

	queued := make(map[uint64]bool, len(next.Meta.BackfillQueue))
	for _, n := range next.Meta.BackfillQueue {
		queued[n] = true
	}

	added := 0
	for n := from; n <= to; n++ {
		if queued[n] {
			continue
		}
		next.Meta.BackfillQueue = append(next.Meta.BackfillQueue, n)
		added++
	}

	var evicted []uint64
	if over := len(next.Meta.BackfillQueue) - c.config.BackfillCap; over > 0 {
		evicted = append(evicted, next.Meta.BackfillQueue[:over]...)
		next.Meta.BackfillQueue = append([]uint64(nil), next.Meta.BackfillQueue[over:]...)
	}

	if err := c.store.PutSyncState(ctx, &next); err != nil {
		c.metrics.stateWriteErrors.Inc()
		return 0, fmt.Errorf("failed to persist sync state: %w", err)
	}

	c.mu.Lock()
	c.state = next
	c.mu.Unlock()

	for _, n := range evicted {
		c.metrics.backfillEvictions.Inc()
		c.logger.Warn("Backfill queue full, dropping oldest entry; block will not be reprocessed",
			zap.Uint64("dropped", n),
			zap.Int("cap", c.config.BackfillCap))
	}
	c.logger.Info("Backfill requested",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("added", added))
	c.updateGauges()
	return added, nil
}

// Run drives cycles from the ticker until ctx is done. While catching up,
// cycles run back-to-back without waiting for the next tick.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("Starting sync controller",
		zap.Duration("pollInterval", c.config.PollInterval),
		zap.String("policy", string(c.config.CatchUpPolicy)))

	c.ticker.Resume()
	defer c.ticker.Stop()

	for {
		c.runUntilCaughtUp(ctx)

		select {
		case <-ctx.Done():
			c.logger.Info("Sync controller stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-c.ticker.Ticks():
		}
	}
}

func (c *Controller) runUntilCaughtUp(ctx context.Context) {
	for ctx.Err() == nil {
		report, err := c.RunCycle(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Sync cycle failed", zap.Error(err))
			}
			return
		}
		if report.Mode != PhaseCatchingUp || report.Succeeded() == 0 {
			return
		}
	}
}

// State returns a copy of the in-memory sync document
func (c *Controller) State() types.SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) updateGauges() {
	st := c.Status()
	c.metrics.cursor.Set(float64(st.CurrentBlock))
	c.metrics.networkHead.Set(float64(st.NetworkBlock))
	c.metrics.lag.Set(float64(st.Lag))
	c.metrics.backfillSize.Set(float64(st.BackfillQueueSize))
	if st.IsHealthy {
		c.metrics.healthy.Set(1)
	} else {
		c.metrics.healthy.Set(0)
	}
}

func lag(head, cursor uint64) uint64 {
	if head > cursor {
		return head - cursor
	}
	return 0
}

func without(q []uint64, n uint64) []uint64 {
	out := make([]uint64, 0, len(q))
	for _, v := range q {
		if v != n {
			out = append(out, v)
		}
	}
	return out
}

// gapTracked reports whether every block strictly between cursor and target
// is in the backfill queue
func gapTracked(q []uint64, cursor, target uint64) bool {
	gap := target - cursor - 1
	if gap == 0 {
		return true
	}
	if gap > uint64(len(q)) {
		return false
	}
	tracked := make(map[uint64]bool, len(q))
	for _, n := range q {
		tracked[n] = true
	}
	for n := cursor + 1; n < target; n++ {
		if !tracked[n] {
			return false
		}
	}
	return true
}
