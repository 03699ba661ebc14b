package api

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/api/graphql"
	"github.com/0xmhha/tron-indexer-go/pkg/eventbus"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
)

// Health states, from best to worst
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DetailedHealth provides comprehensive health information for the indexer service
type DetailedHealth struct {
	Status    string                     `json:"status"`
	NodeID    string                     `json:"node_id"`
	Timestamp string                     `json:"timestamp"`
	Uptime    string                     `json:"uptime"`
	Version   string                     `json:"version"`
	Sync      *SyncHealth                `json:"sync,omitempty"`
	EventBus  *EventBusHealth            `json:"eventbus,omitempty"`
	Sinks     map[string]ComponentHealth `json:"sinks,omitempty"`
	Storage   *ComponentHealth           `json:"storage,omitempty"`
	Observers []observer.Stats           `json:"observers,omitempty"`
	Metrics   HealthMetrics              `json:"metrics"`
}

// SyncHealth summarizes the sync controller status
type SyncHealth struct {
	Healthy      bool   `json:"healthy"`
	Phase        string `json:"phase"`
	CurrentBlock uint64 `json:"current_block"`
	NetworkBlock uint64 `json:"network_block"`
	Lag          uint64 `json:"lag"`
	Backfill     int    `json:"backfill_queue_size"`
	LastError    string `json:"last_error,omitempty"`
}

// EventBusHealth contains local event bus health information
type EventBusHealth struct {
	Status          string  `json:"status"`
	Subscribers     int     `json:"subscribers"`
	TotalEvents     uint64  `json:"total_events"`
	TotalDeliveries uint64  `json:"total_deliveries"`
	DroppedEvents   uint64  `json:"dropped_events"`
	DropRate        float64 `json:"drop_rate_percent"`
}

// ComponentHealth represents the health of a component
type ComponentHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency string                 `json:"latency,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthMetrics contains process metrics
type HealthMetrics struct {
	MemoryUsageMB  float64 `json:"memory_usage_mb"`
	GoroutineCount int     `json:"goroutine_count"`
}

// dropRateThreshold marks the local bus degraded above this percentage
const dropRateThreshold = 10.0

// HealthChecker aggregates the health of the indexer components
type HealthChecker struct {
	mu sync.RWMutex

	nodeID    string
	version   string
	startTime time.Time

	status    graphql.StatusProvider
	eventBus  *events.EventBus
	sinks     []eventbus.Sink
	storage   storage.BlockReader
	observers *observer.Registry
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(nodeID, version string) *HealthChecker {
	return &HealthChecker{
		nodeID:    nodeID,
		version:   version,
		startTime: time.Now(),
	}
}

// SetStatusProvider sets the sync status source
func (hc *HealthChecker) SetStatusProvider(p graphql.StatusProvider) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.status = p
}

// SetEventBus sets the local event bus
func (hc *HealthChecker) SetEventBus(bus *events.EventBus) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.eventBus = bus
}

// SetSinks sets the remote event sinks
func (hc *HealthChecker) SetSinks(sinks []eventbus.Sink) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sinks = sinks
}

// SetStorage sets the block store
func (hc *HealthChecker) SetStorage(s storage.BlockReader) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.storage = s
}

// SetObservers sets the observer registry
func (hc *HealthChecker) SetObservers(r *observer.Registry) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.observers = r
}

// GetDetailedHealth returns comprehensive health information. A lagging
// sync or an unreadable store makes the service unhealthy; sink and local
// bus problems only degrade it.
func (hc *HealthChecker) GetDetailedHealth(ctx context.Context) DetailedHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	health := DetailedHealth{
		Status:    StatusHealthy,
		NodeID:    hc.nodeID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Version:   hc.version,
		Metrics:   processMetrics(),
	}

	if hc.status != nil {
		health.Sync = hc.checkSyncHealth()
		if !health.Sync.Healthy {
			health.Status = StatusUnhealthy
		}
	}

	if hc.eventBus != nil {
		health.EventBus = hc.checkEventBusHealth()
		if health.EventBus.Status != StatusHealthy {
			health.degrade()
		}
	}

	if len(hc.sinks) > 0 {
		health.Sinks = make(map[string]ComponentHealth, len(hc.sinks))
		for _, sink := range hc.sinks {
			hs := sink.GetHealthStatus()
			health.Sinks[string(sink.Type())] = ComponentHealth{
				Status:  hs.Status,
				Message: hs.Message,
				Details: hs.Details,
			}
			if hs.Status != StatusHealthy {
				health.degrade()
			}
		}
	}

	if hc.storage != nil {
		health.Storage = hc.checkStorageHealth(ctx)
		if health.Storage.Status != StatusHealthy {
			health.Status = StatusUnhealthy
		}
	}

	if hc.observers != nil {
		health.Observers = hc.observers.Stats()
	}

	return health
}

func (h *DetailedHealth) degrade() {
	if h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}

func (hc *HealthChecker) checkSyncHealth() *SyncHealth {
	st := hc.status.Status()
	return &SyncHealth{
		Healthy:      st.IsHealthy,
		Phase:        string(st.Phase),
		CurrentBlock: st.CurrentBlock,
		NetworkBlock: st.NetworkBlock,
		Lag:          st.Lag,
		Backfill:     st.BackfillQueueSize,
		LastError:    st.LastError,
	}
}

func (hc *HealthChecker) checkEventBusHealth() *EventBusHealth {
	totalEvents, totalDeliveries, droppedEvents := hc.eventBus.Stats()

	var dropRate float64
	if attempts := totalDeliveries + droppedEvents; attempts > 0 {
		dropRate = float64(droppedEvents) / float64(attempts) * 100
	}

	status := StatusHealthy
	if dropRate > dropRateThreshold {
		status = StatusDegraded
	}

	return &EventBusHealth{
		Status:          status,
		Subscribers:     hc.eventBus.SubscriberCount(),
		TotalEvents:     totalEvents,
		TotalDeliveries: totalDeliveries,
		DroppedEvents:   droppedEvents,
		DropRate:        dropRate,
	}
}

func (hc *HealthChecker) checkStorageHealth(ctx context.Context) *ComponentHealth {
	start := time.Now()
	block, err := hc.storage.GetLatestBlock(ctx)
	latency := time.Since(start)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &ComponentHealth{
			Status:  StatusHealthy,
			Message: "no blocks stored yet",
			Latency: latency.String(),
		}
	case err != nil:
		return &ComponentHealth{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: latency.String(),
		}
	}

	return &ComponentHealth{
		Status:  StatusHealthy,
		Latency: latency.String(),
		Details: map[string]interface{}{
			"latest_block": block.Number,
		},
	}
}

func processMetrics() HealthMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return HealthMetrics{
		MemoryUsageMB:  float64(m.Alloc) / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
	}
}
