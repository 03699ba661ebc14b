// Package events is the in-process fan-out of indexer events to live
// subscribers such as WebSocket clients.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/queue"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Default configuration values
const (
	// DefaultEventHistorySize is the default number of events kept for replay
	DefaultEventHistorySize = constants.DefaultEventHistorySize

	// DefaultChannelSize is the default subscriber channel buffer
	DefaultChannelSize = constants.DefaultEventChannelSize
)

// SubscriptionID is a unique identifier for a subscription
type SubscriptionID string

// SubscriptionStats tracks statistics for a subscription
type SubscriptionStats struct {
	EventsReceived atomic.Uint64
	EventsDropped  atomic.Uint64
	LastEventTime  atomic.Int64 // Unix nanoseconds
	CreatedAt      time.Time
}

// SubscribeOptions configures subscription behavior
type SubscribeOptions struct {
	// ReplayLast replays the last N matching events; 0 disables replay
	ReplayLast int

	// ChannelSize is the buffer size for the subscription channel
	ChannelSize int
}

// Subscription represents a client subscription to events
type Subscription struct {
	ID         SubscriptionID
	EventTypes map[EventType]bool
	// Filter is nil for no filtering
	Filter  *Filter
	Channel chan Event
	Stats   SubscriptionStats
}

// EventBus is the central broker for indexer events.
// Publishing never blocks; slow subscribers lose events.
type EventBus struct {
	subscribers map[SubscriptionID]*Subscription
	mu          sync.RWMutex

	publishCh chan Event
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	history   *queue.CircularBuffer
	historyMu sync.RWMutex

	stats struct {
		totalEvents     atomic.Uint64
		totalDeliveries atomic.Uint64
		droppedEvents   atomic.Uint64
	}

	metrics *Metrics
}

// NewEventBus creates a new EventBus with the given publish buffer and history size
func NewEventBus(publishBufferSize, historySize int) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	if historySize <= 0 {
		historySize = DefaultEventHistorySize
	}
	// size is positive, so the constructor cannot fail
	history, _ := queue.NewCircularBuffer(historySize)

	return &EventBus{
		subscribers: make(map[SubscriptionID]*Subscription),
		publishCh:   make(chan Event, publishBufferSize),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		history:     history,
	}
}

// SetMetrics enables Prometheus metrics for the EventBus
func (eb *EventBus) SetMetrics(metrics *Metrics) {
	eb.metrics = metrics
}

// Run starts the event bus main loop; call it in a goroutine
func (eb *EventBus) Run() {
	defer close(eb.done)

	for {
		select {
		case <-eb.ctx.Done():
			eb.closeAllSubscriptions()
			return

		case event := <-eb.publishCh:
			eb.stats.totalEvents.Add(1)
			eb.metrics.recordPublished(event.Type())

			eb.historyMu.Lock()
			eb.history.Add(event)
			eb.historyMu.Unlock()

			eb.broadcastEvent(event)
		}
	}
}

func (eb *EventBus) broadcastEvent(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	eventType := event.Type()
	for _, sub := range eb.subscribers {
		if !sub.EventTypes[eventType] {
			continue
		}
		if sub.Filter != nil && !sub.Filter.Match(event) {
			eb.metrics.recordFiltered(eventType)
			continue
		}

		select {
		case sub.Channel <- event:
			eb.stats.totalDeliveries.Add(1)
			sub.Stats.EventsReceived.Add(1)
			sub.Stats.LastEventTime.Store(time.Now().UnixNano())
			eb.metrics.recordDelivered(eventType)
		default:
			eb.stats.droppedEvents.Add(1)
			sub.Stats.EventsDropped.Add(1)
			eb.metrics.recordDropped(eventType)
		}
	}
}

func (eb *EventBus) closeAllSubscriptions() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, sub := range eb.subscribers {
		close(sub.Channel)
	}
	eb.subscribers = make(map[SubscriptionID]*Subscription)
}

// Stop gracefully stops the event bus
func (eb *EventBus) Stop() {
	eb.cancel()
	<-eb.done
}

// SubscriberCount returns the current number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Stats returns the current statistics
func (eb *EventBus) Stats() (totalEvents, totalDeliveries, droppedEvents uint64) {
	return eb.stats.totalEvents.Load(),
		eb.stats.totalDeliveries.Load(),
		eb.stats.droppedEvents.Load()
}

// Publish publishes an event to all interested subscribers.
// Returns false if the bus is stopped or the publish channel is full.
func (eb *EventBus) Publish(event Event) bool {
	select {
	case <-eb.ctx.Done():
		return false
	default:
	}

	select {
	case eb.publishCh <- event:
		return true
	default:
		return false
	}
}

// HandleTransaction publishes a classified record as a TransactionEvent.
// It has the observer handler signature so the bus can be registered as an observer.
func (eb *EventBus) HandleTransaction(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error {
	if !eb.Publish(NewTransactionEvent(tx, block)) {
		eb.stats.droppedEvents.Add(1)
		eb.metrics.recordDropped(EventTypeTransaction)
	}
	return nil
}

// Subscribe creates a new subscription for the given event types.
// filter can be nil for no filtering.
func (eb *EventBus) Subscribe(id SubscriptionID, eventTypes []EventType, filter *Filter, channelSize int) *Subscription {
	return eb.SubscribeWithOptions(id, eventTypes, filter, SubscribeOptions{ChannelSize: channelSize})
}

// SubscribeWithOptions creates a new subscription, active immediately upon return.
// Returns nil if the bus is stopped or the filter is invalid.
func (eb *EventBus) SubscribeWithOptions(id SubscriptionID, eventTypes []EventType, filter *Filter, opts SubscribeOptions) *Subscription {
	select {
	case <-eb.ctx.Done():
		return nil
	default:
	}

	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil
		}
		filter = filter.Clone()
	}

	eventTypeMap := make(map[EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		eventTypeMap[et] = true
	}

	channelSize := opts.ChannelSize
	if channelSize <= 0 {
		channelSize = DefaultChannelSize
	}

	sub := &Subscription{
		ID:         id,
		EventTypes: eventTypeMap,
		Filter:     filter,
		Channel:    make(chan Event, channelSize),
		Stats:      SubscriptionStats{CreatedAt: time.Now()},
	}

	eb.mu.Lock()
	if old, exists := eb.subscribers[id]; exists {
		close(old.Channel)
	}
	eb.subscribers[id] = sub
	count := len(eb.subscribers)
	eb.mu.Unlock()

	eb.metrics.updateGauges(count, len(eb.publishCh))

	if opts.ReplayLast > 0 {
		eb.replay(sub, opts.ReplayLast)
	}
	return sub
}

// replay sends the last n matching historical events, oldest first
func (eb *EventBus) replay(sub *Subscription, n int) {
	eb.historyMu.RLock()
	items := eb.history.List()
	eb.historyMu.RUnlock()

	matched := make([]Event, 0, len(items))
	for _, item := range items {
		event, ok := item.(Event)
		if !ok || !sub.EventTypes[event.Type()] {
			continue
		}
		if sub.Filter != nil && !sub.Filter.Match(event) {
			continue
		}
		matched = append(matched, event)
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}

	for _, event := range matched {
		select {
		case sub.Channel <- event:
			sub.Stats.EventsReceived.Add(1)
			sub.Stats.LastEventTime.Store(time.Now().UnixNano())
		default:
			sub.Stats.EventsDropped.Add(1)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel
func (eb *EventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	if sub, exists := eb.subscribers[id]; exists {
		close(sub.Channel)
		delete(eb.subscribers, id)
	}
	count := len(eb.subscribers)
	eb.mu.Unlock()

	eb.metrics.updateGauges(count, len(eb.publishCh))
}

// SubscriberInfo contains information about a subscriber
type SubscriberInfo struct {
	ID             SubscriptionID `json:"id"`
	EventTypes     []EventType    `json:"eventTypes"`
	HasFilter      bool           `json:"hasFilter"`
	EventsReceived uint64         `json:"eventsReceived"`
	EventsDropped  uint64         `json:"eventsDropped"`
	LastEventTime  time.Time      `json:"lastEventTime"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// GetSubscriberInfo returns information about a specific subscriber, or nil
func (eb *EventBus) GetSubscriberInfo(id SubscriptionID) *SubscriberInfo {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	sub, exists := eb.subscribers[id]
	if !exists {
		return nil
	}
	return subscriberInfo(sub)
}

// GetAllSubscriberInfo returns information about all subscribers
func (eb *EventBus) GetAllSubscriberInfo() []SubscriberInfo {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	infos := make([]SubscriberInfo, 0, len(eb.subscribers))
	for _, sub := range eb.subscribers {
		infos = append(infos, *subscriberInfo(sub))
	}
	return infos
}

func subscriberInfo(sub *Subscription) *SubscriberInfo {
	eventTypes := make([]EventType, 0, len(sub.EventTypes))
	for et := range sub.EventTypes {
		eventTypes = append(eventTypes, et)
	}

	var lastEventTime time.Time
	if nano := sub.Stats.LastEventTime.Load(); nano > 0 {
		lastEventTime = time.Unix(0, nano)
	}

	return &SubscriberInfo{
		ID:             sub.ID,
		EventTypes:     eventTypes,
		HasFilter:      sub.Filter != nil,
		EventsReceived: sub.Stats.EventsReceived.Load(),
		EventsDropped:  sub.Stats.EventsDropped.Load(),
		LastEventTime:  lastEventTime,
		CreatedAt:      sub.Stats.CreatedAt,
	}
}
