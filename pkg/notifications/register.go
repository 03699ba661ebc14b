package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

// Target is one outbound notification observer
type Target interface {
	Name() string
	Predicate() observer.Predicate
	Handle(ctx context.Context, tx types.ClassifiedTransaction, block types.BlockContext) error
}

// NewTargets builds a handler for every configured webhook and Slack target
func NewTargets(cfg config.NotificationsConfig, logger *zap.Logger) ([]Target, error) {
	targets := make([]Target, 0, len(cfg.Webhooks)+len(cfg.Slack))
	for _, w := range cfg.Webhooks {
		h, err := NewWebhookHandler(w, logger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, h)
	}
	for _, s := range cfg.Slack {
		h, err := NewSlackHandler(s, logger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, h)
	}
	return targets, nil
}

// Register adds each target to the registry under its own name
func Register(registry *observer.Registry, targets []Target) error {
	for _, t := range targets {
		if err := registry.Register(t.Name(), t.Predicate(), t.Handle); err != nil {
			return err
		}
	}
	return nil
}
