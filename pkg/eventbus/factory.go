package eventbus

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
)

// Factory creates the external sinks enabled in configuration
type Factory struct {
	config config.EventBusConfig
	nodeID string
	logger *zap.Logger
}

// NewFactory creates a new sink factory
func NewFactory(cfg config.EventBusConfig, nodeID string, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		config: cfg,
		nodeID: nodeID,
		logger: logger,
	}
}

// Create builds every enabled sink without connecting it
func (f *Factory) Create() ([]Sink, error) {
	var sinks []Sink

	if f.config.Redis.Enabled {
		p, err := NewRedisPublisher(f.config.Redis, f.nodeID, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		sinks = append(sinks, p)
	}

	if f.config.Kafka.Enabled {
		kp, err := NewKafkaProducer(f.config.Kafka, f.nodeID, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		sinks = append(sinks, kp)
	}

	f.logger.Info("Created event sinks", zap.Int("count", len(sinks)))
	return sinks, nil
}

// Connect connects every sink. On failure the sinks already connected are closed.
func Connect(ctx context.Context, sinks []Sink) error {
	for i, s := range sinks {
		if err := s.Connect(ctx); err != nil {
			_ = Close(sinks[:i])
			return fmt.Errorf("%s sink: %w", s.Type(), err)
		}
	}
	return nil
}

// Register adds every sink to the registry as an observer of all topics
func Register(registry *observer.Registry, sinks []Sink) error {
	for _, s := range sinks {
		if err := registry.Register(ObserverName(s), observer.MatchAny(), Handler(s)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins the errors
func Close(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Type(), err))
		}
	}
	return errors.Join(errs...)
}
