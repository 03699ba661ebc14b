package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
)

// redisClient is the subset of redis.UniversalClient the publisher uses
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes indexer events to Redis Pub/Sub. Every event is
// sent once per notification topic on the channel "<prefix>:<topic>".
type RedisPublisher struct {
	client     redisClient
	config     config.EventBusRedisConfig
	serializer EventSerializer
	logger     *zap.Logger

	connected atomic.Bool

	stats struct {
		published   atomic.Uint64
		subscribers atomic.Uint64
		errors      atomic.Uint64
	}

	startTime time.Time
}

var _ Sink = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher; call Connect before publishing
func NewRedisPublisher(cfg config.EventBusRedisConfig, nodeID string, logger *zap.Logger) (*RedisPublisher, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("%w: no Redis addresses configured", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "redis-publisher"), zap.String("nodeID", nodeID))

	client, err := createRedisClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newRedisPublisher(client, cfg, nodeID, logger), nil
}

func newRedisPublisher(client redisClient, cfg config.EventBusRedisConfig, nodeID string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:     client,
		config:     cfg,
		serializer: NewJSONSerializer(nodeID),
		logger:     logger,
		startTime:  time.Now(),
	}
}

// createRedisClient creates a standalone or cluster client based on configuration
func createRedisClient(cfg config.EventBusRedisConfig, logger *zap.Logger) (redis.UniversalClient, error) {
	tlsConfig, err := buildTLSConfig(cfg.TLS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	if cfg.ClusterMode {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			TLSConfig:    tlsConfig,
		}), nil
	}

	// Standalone mode uses the first address
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addresses[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		TLSConfig:    tlsConfig,
	}), nil
}

// Type implements Sink
func (p *RedisPublisher) Type() SinkType {
	return SinkTypeRedis
}

// Connect pings Redis and marks the publisher connected
func (p *RedisPublisher) Connect(ctx context.Context) error {
	if p.connected.Load() {
		return ErrAlreadyConnected
	}
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	p.connected.Store(true)

	p.logger.Info("Connected to Redis",
		zap.Strings("addresses", p.config.Addresses),
		zap.Bool("clusterMode", p.config.ClusterMode))
	return nil
}

// Channel returns the Pub/Sub channel for a notification topic
func (p *RedisPublisher) Channel(topic string) string {
	if p.config.ChannelPrefix == "" {
		return topic
	}
	return p.config.ChannelPrefix + ":" + topic
}

// Publish sends the event to the channel of each of its topics.
// Every channel is attempted; the errors are joined.
func (p *RedisPublisher) Publish(ctx context.Context, event events.Event) error {
	if !p.connected.Load() {
		return ErrNotConnected
	}

	data, err := p.serializer.Serialize(event)
	if err != nil {
		p.stats.errors.Add(1)
		return err
	}

	if p.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.WriteTimeout)
		defer cancel()
	}

	var errs []error
	for _, topic := range eventTopics(event) {
		channel := p.Channel(topic)
		receivers, err := p.client.Publish(ctx, channel, data).Result()
		if err != nil {
			p.stats.errors.Add(1)
			errs = append(errs, fmt.Errorf("publish to %s: %w", channel, err))
			continue
		}
		p.stats.published.Add(1)
		p.stats.subscribers.Add(uint64(receivers))
	}
	return errors.Join(errs...)
}

// Close disconnects from Redis
func (p *RedisPublisher) Close() error {
	if !p.connected.Swap(false) {
		return ErrNotConnected
	}
	if err := p.client.Close(); err != nil {
		p.logger.Error("Error closing Redis client", zap.Error(err))
		return err
	}
	p.logger.Info("Disconnected from Redis")
	return nil
}

// GetHealthStatus implements Sink
func (p *RedisPublisher) GetHealthStatus() HealthStatus {
	status, message := "healthy", "Redis publisher is operational"
	if !p.connected.Load() {
		status, message = "unhealthy", "Not connected to Redis"
	}

	return HealthStatus{
		Status:    status,
		Message:   message,
		LastCheck: time.Now(),
		Details: map[string]interface{}{
			"connected":   p.connected.Load(),
			"addresses":   p.config.Addresses,
			"published":   p.stats.published.Load(),
			"subscribers": p.stats.subscribers.Load(),
			"errors":      p.stats.errors.Load(),
			"uptime":      time.Since(p.startTime).String(),
		},
	}
}
