package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 1000

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 2000
)

// API Paths
const (
	// DefaultGraphQLPath is the default GraphQL endpoint path
	DefaultGraphQLPath = "/graphql"

	// DefaultWebSocketPath is the default WebSocket endpoint path
	DefaultWebSocketPath = "/ws"

	// DefaultStatusPath serves the sync status document
	DefaultStatusPath = "/status"

	// DefaultHealthPath answers 200 when healthy and 503 otherwise
	DefaultHealthPath = "/health"

	// DefaultMetricsPath serves Prometheus metrics
	DefaultMetricsPath = "/metrics"
)

// RPC Constants
const (
	// DefaultRPCEndpoint is the public TRON full node HTTP API
	DefaultRPCEndpoint = "https://api.trongrid.io"

	// DefaultRPCTimeout bounds a single upstream request
	DefaultRPCTimeout = 10 * time.Second

	// DefaultRPCMinInterval is the minimum spacing between two upstream requests
	DefaultRPCMinInterval = 100 * time.Millisecond

	// DefaultRPCMaxQueueSize bounds the number of queued upstream requests
	DefaultRPCMaxQueueSize = 256

	// DefaultMaxRetries is the default maximum number of retries for failed operations
	DefaultMaxRetries = 4

	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 500 * time.Millisecond

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay = 10 * time.Second
)

// Sync Constants
const (
	// DefaultPollInterval is how often the controller runs a cycle
	DefaultPollInterval = BlockInterval

	// DefaultCatchUpThreshold is the lag above which a cycle processes several blocks
	DefaultCatchUpThreshold = 100

	// DefaultHealthLagThreshold is the lag at or above which the indexer is unhealthy
	DefaultHealthLagThreshold = 100

	// DefaultBackfillCap bounds the backfill queue
	DefaultBackfillCap = 1000

	// DefaultBackfillHealthThreshold is the backfill size at or above which the indexer is unhealthy
	DefaultBackfillHealthThreshold = 50

	// DefaultMaxBlocksPerCycle bounds the work done by one catching-up cycle
	DefaultMaxBlocksPerCycle = 50

	// DefaultMetricsWindowSize is the size of the sliding window for rate estimates
	DefaultMetricsWindowSize = 100
)

// Classifier Constants
const (
	// DefaultGraphSize bounds the number of addresses kept in the relationship graph
	DefaultGraphSize = 100000

	// DefaultGraphMaxNeighbors bounds the neighbor set of one address
	DefaultGraphMaxNeighbors = 64

	// DefaultRelatedLimit caps RelatedAddresses per record
	DefaultRelatedLimit = 16

	// DefaultPriceTTL is how long a fetched TRX/USD price is reused
	DefaultPriceTTL = 5 * time.Minute

	// DefaultPriceTimeout bounds one price request
	DefaultPriceTimeout = 5 * time.Second
)

// Observer Constants
const (
	// DefaultMailboxSize is the per-observer delivery buffer
	DefaultMailboxSize = 256

	// DefaultHandlerTimeout bounds one observer handler invocation
	DefaultHandlerTimeout = 10 * time.Second
)

// Storage Constants
const (
	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 64 // MB

	// DefaultCompactionConcurrency is the default number of concurrent compactions
	DefaultCompactionConcurrency = 4
)

// Pagination Constants
const (
	// DefaultMaxPaginationLimit caps the number of blocks one query returns
	DefaultMaxPaginationLimit = 100
)

// WebSocket Constants
const (
	// DefaultWSReadBufferSize is the default WebSocket read buffer size
	DefaultWSReadBufferSize = 1024

	// DefaultWSWriteBufferSize is the default WebSocket write buffer size
	DefaultWSWriteBufferSize = 1024

	// DefaultWSPingInterval is the default WebSocket ping interval
	DefaultWSPingInterval = 30 * time.Second

	// DefaultWSPongTimeout is the default WebSocket pong timeout
	DefaultWSPongTimeout = 60 * time.Second

	// DefaultWSWriteTimeout is the default WebSocket write timeout
	DefaultWSWriteTimeout = 10 * time.Second
)

// EventBus Constants
const (
	// DefaultEventBufferSize is the default event buffer size
	DefaultEventBufferSize = 1000

	// DefaultEventHistorySize is the number of events kept for replay
	DefaultEventHistorySize = 100

	// DefaultEventChannelSize is the default subscriber channel buffer
	DefaultEventChannelSize = 100
)
