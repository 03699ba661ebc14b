package price

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
)

// CachedOracle memoizes another oracle's price for a fixed TTL.
// When a refresh fails the last known price is served.
type CachedOracle struct {
	inner  Oracle
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewCachedOracle wraps inner with a TTL cache
func NewCachedOracle(inner Oracle, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *CachedOracle {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedOracle{inner: inner, ttl: ttl, clock: clk, logger: logger}
}

// IsAvailable reports whether a price is cached or the inner oracle is available
func (o *CachedOracle) IsAvailable() bool {
	o.mu.Lock()
	cached := o.price > 0
	o.mu.Unlock()
	return cached || o.inner.IsAvailable()
}

// GetNativePrice returns the cached price, refreshing it after the TTL
func (o *CachedOracle) GetNativePrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if !o.fetchedAt.IsZero() && now.Sub(o.fetchedAt) < o.ttl {
		return o.price, nil
	}

	price, err := o.inner.GetNativePrice(ctx)
	if err != nil {
		if o.price > 0 {
			o.logger.Warn("Price refresh failed, serving stale price",
				zap.Float64("price", o.price),
				zap.Time("fetchedAt", o.fetchedAt),
				zap.Error(err))
			return o.price, nil
		}
		return 0, err
	}

	o.price = price
	o.fetchedAt = now
	return price, nil
}
