// Package fetch turns one block number into a persisted block row plus
// observer notifications.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/classify"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/price"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

var (
	// ErrPersistenceFailure wraps any failure to store a block row
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrBlockMismatch is returned when the upstream answers with a different block
	ErrBlockMismatch = errors.New("block number mismatch")
)

// Client defines the chain reads the pipeline needs
type Client interface {
	GetBlockByNumber(ctx context.Context, number uint64) (*types.RawBlock, error)
}

// Notifier receives records that carry notification topics
type Notifier interface {
	Notify(tx *types.ClassifiedTransaction, block types.BlockContext) int
}

// Config holds pipeline configuration
type Config struct {
	// Graph is the in-run relationship graph; nil disables RelatedAddresses
	Graph *classify.Graph

	// Oracle supplies the TRX/USD estimate; nil means unknown
	Oracle price.Oracle

	// EventBus receives a BlockEvent per persisted block (optional)
	EventBus *events.EventBus

	// RelatedLimit caps RelatedAddresses per record
	RelatedLimit int

	Clock      clock.Clock
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Result is the outcome of processing one block
type Result struct {
	Success  bool
	Block    *types.ChainBlock
	Stats    types.BlockStats
	Timings  types.Timings
	Notified int
	Err      error
}

// Pipeline processes one block at a time: fetch, classify, persist, notify
type Pipeline struct {
	client   Client
	store    storage.BlockWriter
	notifier Notifier
	config   Config
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics

	// prior is the header of the highest processed block
	mu    sync.Mutex
	prior *types.BlockHeader
}

// NewPipeline creates a pipeline. notifier may be nil.
func NewPipeline(client Client, store storage.BlockWriter, notifier Notifier, cfg Config) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		client:   client,
		store:    store,
		notifier: notifier,
		config:   cfg,
		clock:    clk,
		logger:   logger.With(zap.String("component", "pipeline")),
		metrics:  newMetrics(cfg.Registerer),
	}, nil
}

// ProcessOneBlock fetches, classifies, persists and announces block n.
// A failed fetch leaves storage untouched; a failed write is reported with
// ErrPersistenceFailure and no observer is notified.
func (p *Pipeline) ProcessOneBlock(ctx context.Context, n uint64) Result {
	start := p.clock.Now()
	var timings types.Timings

	raw, err := p.client.GetBlockByNumber(ctx, n)
	timings.Fetch = p.clock.Now().Sub(start)
	if err == nil && raw.Number() != n {
		err = fmt.Errorf("%w: requested %d, got %d", ErrBlockMismatch, n, raw.Number())
	}
	if err != nil {
		timings.Total = timings.Fetch
		return p.fail(n, timings, fmt.Errorf("failed to fetch block %d: %w", n, err))
	}

	// Classify
	phase := p.clock.Now()
	header := raw.Header()
	if producer, ok := classify.ResolveAddress(header.Producer); ok {
		header.Producer = producer
	}

	p.mu.Lock()
	prior := p.prior
	p.mu.Unlock()

	cctx := classify.Context{
		PriceUSD:     p.price(ctx),
		BlockTime:    header.Timestamp,
		RelatedLimit: p.config.RelatedLimit,
	}
	if p.config.Graph != nil {
		cctx.Graph = p.config.Graph
	}

	var stats types.BlockStats
	records := make([]*types.ClassifiedTransaction, 0, len(raw.Transactions))
	for i := range raw.Transactions {
		tx := &raw.Transactions[i]
		rec, err := classify.Classify(raw, tx, prior, cctx)
		if err != nil {
			stats.Unclassified++
			p.metrics.classifyErrors.Inc()
			p.logger.Warn("Failed to classify transaction",
				zap.Uint64("block", n),
				zap.String("txID", tx.TxID),
				zap.Error(err))
			continue
		}
		if rec == nil {
			stats.Unclassified++
			continue
		}
		accumulate(&stats, rec)
		p.metrics.transactions.WithLabelValues(string(rec.Type)).Inc()
		records = append(records, rec)
	}
	timings.Classify = p.clock.Now().Sub(phase)

	// Persist
	phase = p.clock.Now()
	block := &types.ChainBlock{
		Number:           n,
		ID:               header.ID,
		ParentHash:       header.ParentHash,
		Producer:         header.Producer,
		Timestamp:        header.Timestamp,
		TransactionCount: uint64(len(raw.Transactions)),
		Stats:            stats,
		ProcessedAt:      p.clock.Now(),
	}
	if err := p.store.UpsertBlock(ctx, block); err != nil {
		timings.Persist = p.clock.Now().Sub(phase)
		timings.Total = p.clock.Now().Sub(start)
		return p.fail(n, timings, fmt.Errorf("%w: block %d: %w", ErrPersistenceFailure, n, err))
	}
	timings.Persist = p.clock.Now().Sub(phase)

	// Graph and notify
	phase = p.clock.Now()
	if p.config.Graph != nil {
		for _, rec := range records {
			p.config.Graph.AddEdge(rec.Participants.From, rec.Participants.To)
		}
	}

	bctx := types.BlockContext{
		Number:           n,
		ID:               header.ID,
		Timestamp:        header.Timestamp,
		Producer:         header.Producer,
		TransactionCount: len(raw.Transactions),
	}
	notified := 0
	if p.notifier != nil {
		for _, rec := range records {
			if len(rec.NotificationTopics) == 0 {
				continue
			}
			p.notifier.Notify(rec, bctx)
			notified++
		}
	}
	p.metrics.notifications.Add(float64(notified))

	if p.config.EventBus != nil {
		if !p.config.EventBus.Publish(events.NewBlockEvent(block)) {
			p.logger.Warn("Failed to publish block event (channel full)",
				zap.Uint64("block", n))
		}
	}
	timings.Notify = p.clock.Now().Sub(phase)
	timings.Total = p.clock.Now().Sub(start)

	// backfill blocks never move prior backwards
	p.mu.Lock()
	if p.prior == nil || n > p.prior.Number {
		p.prior = &header
	}
	p.mu.Unlock()

	p.observe(timings)
	p.metrics.blocks.WithLabelValues("success").Inc()
	p.metrics.lastBlockNumber.Set(float64(n))

	p.logger.Info("Processed block",
		zap.Uint64("block", n),
		zap.String("id", header.ID),
		zap.Int("txs", len(raw.Transactions)),
		zap.Int("notified", notified),
		zap.Duration("took", timings.Total))

	return Result{
		Success:  true,
		Block:    block,
		Stats:    stats,
		Timings:  timings,
		Notified: notified,
	}
}

// Prior returns the header of the highest processed block, if any
func (p *Pipeline) Prior() *types.BlockHeader {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prior == nil {
		return nil
	}
	h := *p.prior
	return &h
}

func (p *Pipeline) fail(n uint64, timings types.Timings, err error) Result {
	p.metrics.blocks.WithLabelValues("failure").Inc()
	p.logger.Warn("Block processing failed",
		zap.Uint64("block", n),
		zap.Error(err))
	return Result{Success: false, Timings: timings, Err: err}
}

func (p *Pipeline) price(ctx context.Context) float64 {
	if p.config.Oracle == nil {
		return 0
	}
	v, err := p.config.Oracle.GetNativePrice(ctx)
	if err != nil {
		p.logger.Debug("Price unavailable", zap.Error(err))
		return 0
	}
	return v
}

func (p *Pipeline) observe(t types.Timings) {
	p.metrics.phaseDuration.WithLabelValues("fetch").Observe(t.Fetch.Seconds())
	p.metrics.phaseDuration.WithLabelValues("classify").Observe(t.Classify.Seconds())
	p.metrics.phaseDuration.WithLabelValues("persist").Observe(t.Persist.Seconds())
	p.metrics.phaseDuration.WithLabelValues("notify").Observe(t.Notify.Seconds())
	p.metrics.phaseDuration.WithLabelValues("total").Observe(t.Total.Seconds())
}
