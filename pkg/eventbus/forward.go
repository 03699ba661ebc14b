package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/events"
)

// forwarderID is the local bus subscription used by ForwardBlocks
const forwarderID events.SubscriptionID = "eventbus-block-forwarder"

// ForwardBlocks relays BlockEvents from the local bus to every sink until
// ctx is cancelled or the bus stops. Sink failures are logged and skipped.
func ForwardBlocks(ctx context.Context, bus *events.EventBus, sinks []Sink, logger *zap.Logger) {
	if len(sinks) == 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sub := bus.Subscribe(forwarderID, []events.EventType{events.EventTypeBlock}, nil, 0)
	if sub == nil {
		return
	}
	defer bus.Unsubscribe(forwarderID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Channel:
			if !ok {
				return
			}
			for _, s := range sinks {
				if err := s.Publish(ctx, event); err != nil {
					logger.Warn("Failed to forward block event",
						zap.String("sink", string(s.Type())),
						zap.Error(err))
				}
			}
		}
	}
}
