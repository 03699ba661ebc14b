package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
)

// RetryPolicy declares how a call site retries retryable failures.
// The zero value disables retries.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries uint64
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration
	// MaxInterval caps a single wait
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry
	Multiplier float64
	// Jitter randomizes each wait by +/- Jitter*interval (0..1)
	Jitter float64
}

// DefaultRetryPolicy returns the policy used for idempotent block reads
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      constants.DefaultMaxRetries,
		InitialInterval: constants.DefaultRetryDelay,
		MaxInterval:     constants.MaxRetryDelay,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// MethodRetryPolicies declares the policy of every wallet method from base.
// Head, block and transaction-info reads feed ingestion and use base;
// account-resource reads are advisory and retry at most once.
func MethodRetryPolicies(base RetryPolicy) map[string]RetryPolicy {
	return map[string]RetryPolicy{
		MethodGetNowBlock:        base,
		MethodGetBlockByNum:      base,
		MethodGetTransactionInfo: base,
		MethodGetAccountResource: base.WithMaxRetries(min(base.MaxRetries, 1)),
	}
}

// WithMaxRetries returns a copy of the policy with a different retry ceiling
func (p RetryPolicy) WithMaxRetries(n uint64) RetryPolicy {
	p.MaxRetries = n
	return p
}

// newBackOff builds the backoff schedule for one logical call. The returned
// hintedBackOff is the inner schedule, exposed so attempts can record Retry-After.
func (p RetryPolicy) newBackOff(ctx context.Context) (backoff.BackOff, *hintedBackOff) {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		exp.Multiplier = p.Multiplier
	}
	exp.RandomizationFactor = p.Jitter
	// Bounded by MaxRetries instead of elapsed time
	exp.MaxElapsedTime = 0

	hinted := &hintedBackOff{BackOff: exp}
	return backoff.WithContext(backoff.WithMaxRetries(hinted, p.MaxRetries), ctx), hinted
}

// hintedBackOff raises the next wait to the upstream's Retry-After guidance
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hintedBackOff) setHint(d time.Duration) {
	h.hint = d
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}
