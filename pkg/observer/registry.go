// Package observer fans classified transactions out to independently running
// handlers.
//
// Every observer owns a bounded mailbox drained by its own goroutine, so a slow
// or failing handler never stalls ingestion or its peers: when a mailbox is
// full the delivery is dropped and logged.
//
// Delivery is therefore at-most-once under overload: every matching handler
// is invoked exactly once per record while its mailbox has room, and a
// dropped delivery is counted in Stats().Dropped and never retried.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// DefaultMailboxSize is the per-observer buffer used when Config.MailboxSize is zero
const DefaultMailboxSize = 256

var (
	// ErrRegistryStarted is returned when registering after Start
	ErrRegistryStarted = errors.New("observer registry already started")

	// ErrRegistryNotStarted is returned by Flush before Start
	ErrRegistryNotStarted = errors.New("observer registry not started")

	// ErrDuplicateObserver is returned when a name is registered twice
	ErrDuplicateObserver = errors.New("observer already registered")
)

// Handler consumes one classified record. Slices in tx are shared between
// observers and must not be modified.
type Handler func(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error

// Config holds registry configuration
type Config struct {
	// MailboxSize is the capacity of each observer mailbox
	MailboxSize int
	// HandlerTimeout bounds a single handler invocation; zero means no bound
	HandlerTimeout time.Duration

	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// Stats is a snapshot of one observer's counters
type Stats struct {
	Name      string `json:"name"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

type delivery struct {
	tx    types.ClassifiedTransaction
	block types.BlockContext
	// flush, when set, marks a Flush barrier instead of a record
	flush chan struct{}
}

type observer struct {
	name    string
	match   Predicate
	handle  Handler
	mailbox chan delivery

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Registry holds the registered observers and dispatches records to them
type Registry struct {
	config  Config
	logger  *zap.Logger
	metrics *metrics

	mu        sync.RWMutex
	observers []*observer
	names     map[string]bool
	started   bool
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		config:  cfg,
		logger:  logger.With(zap.String("component", "observer")),
		metrics: newMetrics(cfg.Registerer),
		names:   make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds an observer. Registration is closed once Start has been called.
func (r *Registry) Register(name string, match Predicate, handle Handler) error {
	if name == "" {
		return fmt.Errorf("observer name is required")
	}
	if match == nil || handle == nil {
		return fmt.Errorf("observer %s: predicate and handler are required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrRegistryStarted
	}
	if r.names[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateObserver, name)
	}

	r.names[name] = true
	r.observers = append(r.observers, &observer{
		name:    name,
		match:   match,
		handle:  handle,
		mailbox: make(chan delivery, r.config.MailboxSize),
	})
	return nil
}

// Start launches one worker per observer
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	for _, o := range r.observers {
		r.wg.Add(1)
		go r.run(o)
	}

	r.logger.Info("Observer registry started", zap.Int("observers", len(r.observers)))
}

// Notify hands the record to every observer whose predicate matches.
// It never blocks; the number of queued deliveries is returned.
func (r *Registry) Notify(tx *types.ClassifiedTransaction, block types.BlockContext) int {
	if tx == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return 0
	}

	queued := 0
	for _, o := range r.observers {
		if !r.matches(o, tx) {
			continue
		}

		select {
		case o.mailbox <- delivery{tx: *tx, block: block}:
			queued++
			r.metrics.mailboxDepth.WithLabelValues(o.name).Set(float64(len(o.mailbox)))
		default:
			o.dropped.Add(1)
			r.metrics.deliveries.WithLabelValues(o.name, outcomeDropped).Inc()
			r.logger.Warn("Observer mailbox full, dropping delivery",
				zap.String("observer", o.name),
				zap.String("txID", tx.ID),
				zap.Uint64("block", block.Number),
				zap.Int("mailboxSize", cap(o.mailbox)))
		}
	}
	return queued
}

func (r *Registry) matches(o *observer, tx *types.ClassifiedTransaction) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Observer predicate panicked",
				zap.String("observer", o.name),
				zap.Any("panic", rec))
			ok = false
		}
	}()
	return o.match(tx)
}

// Flush waits until every delivery queued before the call has been handled
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.RLock()
	if !r.started {
		r.mu.RUnlock()
		return ErrRegistryNotStarted
	}
	if r.stopped {
		r.mu.RUnlock()
		return nil
	}

	barriers := make([]chan struct{}, 0, len(r.observers))
	for _, o := range r.observers {
		done := make(chan struct{})
		select {
		case o.mailbox <- delivery{flush: done}:
			barriers = append(barriers, done)
		case <-ctx.Done():
			r.mu.RUnlock()
			return ctx.Err()
		}
	}
	r.mu.RUnlock()

	for _, done := range barriers {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop lets every worker drain its mailbox and waits for them to exit
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	for _, o := range r.observers {
		close(o.mailbox)
	}
	started := r.started
	r.mu.Unlock()

	if started {
		r.wg.Wait()
	}
	r.cancel()

	r.logger.Info("Observer registry stopped")
}

// Stats returns per-observer counters in registration order
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.observers))
	for _, o := range r.observers {
		out = append(out, Stats{
			Name:      o.name,
			Delivered: o.delivered.Load(),
			Failed:    o.failed.Load(),
			Dropped:   o.dropped.Load(),
			Pending:   len(o.mailbox),
		})
	}
	return out
}

// Names returns the registered observer names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.observers))
	for _, o := range r.observers {
		names = append(names, o.name)
	}
	return names
}

func (r *Registry) run(o *observer) {
	defer r.wg.Done()

	for d := range o.mailbox {
		if d.flush != nil {
			close(d.flush)
			continue
		}
		r.deliver(o, d)
		r.metrics.mailboxDepth.WithLabelValues(o.name).Set(float64(len(o.mailbox)))
	}
}

func (r *Registry) deliver(o *observer, d delivery) {
	start := time.Now()
	outcome := outcomeDelivered

	defer func() {
		if rec := recover(); rec != nil {
			outcome = outcomePanicked
			o.failed.Add(1)
			r.logger.Error("Observer handler panicked",
				zap.String("observer", o.name),
				zap.String("txID", d.tx.ID),
				zap.Any("panic", rec))
		}
		r.metrics.deliveries.WithLabelValues(o.name, outcome).Inc()
		r.metrics.handlerDuration.WithLabelValues(o.name).Observe(time.Since(start).Seconds())
	}()

	ctx := r.ctx
	if r.config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.HandlerTimeout)
		defer cancel()
	}

	if err := o.handle(ctx, d.tx, d.block); err != nil {
		outcome = outcomeFailed
		o.failed.Add(1)
		r.logger.Warn("Observer handler failed",
			zap.String("observer", o.name),
			zap.String("txID", d.tx.ID),
			zap.Uint64("block", d.block.Number),
			zap.Error(err))
		return
	}
	o.delivered.Add(1)
}
