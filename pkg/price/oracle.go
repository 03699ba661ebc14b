package price

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when an oracle has no price to offer
var ErrUnavailable = errors.New("price unavailable")

// Oracle provides the TRX/USD estimate attached to classified transactions
type Oracle interface {
	// IsAvailable checks if the oracle can currently produce a price
	IsAvailable() bool

	// GetNativePrice returns the price of one TRX in USD.
	// Returns 0 and no error if the price is not known.
	GetNativePrice(ctx context.Context) (float64, error)
}

// NoOpOracle is a placeholder oracle that returns no prices
type NoOpOracle struct{}

// NewNoOpOracle creates a new no-op oracle
func NewNoOpOracle() *NoOpOracle {
	return &NoOpOracle{}
}

// IsAvailable returns false - oracle is not available
func (o *NoOpOracle) IsAvailable() bool {
	return false
}

// GetNativePrice returns 0 - price not available
func (o *NoOpOracle) GetNativePrice(ctx context.Context) (float64, error) {
	return 0, nil
}

// StaticOracle always reports a configured price
type StaticOracle struct {
	price float64
}

// NewStaticOracle creates an oracle with a fixed price
func NewStaticOracle(price float64) *StaticOracle {
	return &StaticOracle{price: price}
}

// IsAvailable reports whether a positive price is configured
func (o *StaticOracle) IsAvailable() bool {
	return o.price > 0
}

// GetNativePrice returns the configured price
func (o *StaticOracle) GetNativePrice(ctx context.Context) (float64, error) {
	if o.price <= 0 {
		return 0, nil
	}
	return o.price, nil
}
