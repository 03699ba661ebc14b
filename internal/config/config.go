package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
)

// Config holds all configuration for the indexer
type Config struct {
	RPC           RPCConfig           `yaml:"rpc"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Sync          SyncConfig          `yaml:"sync"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Observer      ObserverConfig      `yaml:"observer"`
	API           APIConfig           `yaml:"api"`
	EventBus      EventBusConfig      `yaml:"eventbus"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Node          NodeConfig          `yaml:"node"`
}

// RPCConfig holds chain client configuration
type RPCConfig struct {
	// Endpoint is the full node HTTP API; empty means the Network's public endpoint
	Endpoint string `yaml:"endpoint"`
	// Network is one of mainnet, shasta, nile
	Network string `yaml:"network"`
	// APIKeys are rotated round-robin, one per request
	APIKeys      []string      `yaml:"api_keys"`
	Timeout      time.Duration `yaml:"timeout"`
	MinInterval  time.Duration `yaml:"min_interval"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	MaxRetries   uint64        `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// ResolvedEndpoint returns Endpoint, or the public endpoint of Network when unset
func (r RPCConfig) ResolvedEndpoint() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	ep, _ := constants.EndpointForNetwork(r.Network)
	return ep
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
	// Cache is the Pebble block cache size in MB
	Cache int `yaml:"cache"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SyncConfig holds sync controller configuration
type SyncConfig struct {
	StartHeight             uint64        `yaml:"start_height"`
	PollInterval            time.Duration `yaml:"poll_interval"`
	CatchUpThreshold        uint64        `yaml:"catch_up_threshold"`
	HealthLagThreshold      uint64        `yaml:"health_lag_threshold"`
	BackfillCap             int           `yaml:"backfill_cap"`
	BackfillHealthThreshold int           `yaml:"backfill_health_threshold"`
	// CatchUpPolicy is backfill_first or sequential_first
	CatchUpPolicy     string `yaml:"catch_up_policy"`
	MaxBlocksPerCycle int    `yaml:"max_blocks_per_cycle"`
	WindowSize        int    `yaml:"window_size"`
}

// ClassifierConfig holds classification context configuration
type ClassifierConfig struct {
	// PriceUSD is a fixed TRX/USD price; ignored when PriceURL is set
	PriceUSD float64 `yaml:"price_usd"`
	// PriceURL is a JSON price endpoint
	PriceURL string `yaml:"price_url"`
	// PricePath is the dot path of the price inside the PriceURL response
	PricePath         string        `yaml:"price_path"`
	PriceTTL          time.Duration `yaml:"price_ttl"`
	GraphSize         int           `yaml:"graph_size"`
	GraphMaxNeighbors int           `yaml:"graph_max_neighbors"`
	RelatedLimit      int           `yaml:"related_limit"`
}

// ObserverConfig holds observer registry configuration
type ObserverConfig struct {
	MailboxSize    int           `yaml:"mailbox_size"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableGraphQL      bool     `yaml:"enable_graphql"`
	EnableWebSocket    bool     `yaml:"enable_websocket"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// EventBusConfig holds local event bus and remote sink configuration
type EventBusConfig struct {
	// PublishBufferSize is the size of the publish buffer
	PublishBufferSize int `yaml:"publish_buffer_size"`
	// HistorySize is the number of events to keep in history for replay
	HistorySize int `yaml:"history_size"`
	// Redis holds Redis publisher configuration
	Redis EventBusRedisConfig `yaml:"redis"`
	// Kafka holds Kafka producer configuration
	Kafka EventBusKafkaConfig `yaml:"kafka"`
}

// EventBusRedisConfig holds Redis Pub/Sub publisher configuration
type EventBusRedisConfig struct {
	// Enabled indicates whether classified events are published to Redis
	Enabled bool `yaml:"enabled"`
	// Addresses is the list of Redis server addresses (supports cluster mode)
	Addresses []string `yaml:"addresses"`
	// Password is the Redis password
	Password string `yaml:"password,omitempty"`
	// DB is the Redis database number (ignored in cluster mode)
	DB int `yaml:"db"`
	// PoolSize is the maximum number of socket connections
	PoolSize int `yaml:"pool_size"`
	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int `yaml:"min_idle_conns"`
	// DialTimeout is the timeout for establishing new connections
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// ReadTimeout is the timeout for socket reads
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout is the timeout for socket writes
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ChannelPrefix is the prefix for Redis Pub/Sub channels
	ChannelPrefix string `yaml:"channel_prefix"`
	// TLS holds TLS configuration for secure connections
	TLS TLSConfig `yaml:"tls"`
	// ClusterMode indicates whether to use Redis Cluster
	ClusterMode bool `yaml:"cluster_mode"`
}

// EventBusKafkaConfig holds Kafka producer configuration
type EventBusKafkaConfig struct {
	// Enabled indicates whether classified events are produced to Kafka
	Enabled bool `yaml:"enabled"`
	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`
	// Topic is the Kafka topic for events
	Topic string `yaml:"topic"`
	// ClientID is the client ID for this producer
	ClientID string `yaml:"client_id"`
	// SASLMechanism is the SASL mechanism: "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"
	SASLMechanism string `yaml:"sasl_mechanism"`
	// SASLUsername is the SASL username
	SASLUsername string `yaml:"sasl_username,omitempty"`
	// SASLPassword is the SASL password
	SASLPassword string `yaml:"sasl_password,omitempty"`
	// BatchSize is the maximum size of a message batch
	BatchSize int `yaml:"batch_size"`
	// LingerMs is the time to wait for the batch to fill
	LingerMs int `yaml:"linger_ms"`
	// Compression is the compression type: "none", "gzip", "snappy", "lz4", "zstd"
	Compression string `yaml:"compression"`
	// RequiredAcks is the number of acknowledgments required: 0, 1, -1 (all)
	RequiredAcks int `yaml:"required_acks"`
	// TLS holds TLS configuration for secure connections
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS configuration for secure connections
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `yaml:"enabled"`
	// CertFile is the path to the client certificate file
	CertFile string `yaml:"cert_file,omitempty"`
	// KeyFile is the path to the client key file
	KeyFile string `yaml:"key_file,omitempty"`
	// CAFile is the path to the CA certificate file
	CAFile string `yaml:"ca_file,omitempty"`
	// InsecureSkipVerify disables server certificate verification
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	// ServerName is the expected server name for verification
	ServerName string `yaml:"server_name,omitempty"`
}

// NotificationsConfig lists the outbound notification observers
type NotificationsConfig struct {
	Webhooks []WebhookTarget `yaml:"webhooks"`
	Slack    []SlackTarget   `yaml:"slack"`
}

// WebhookTarget posts signed JSON records to an HTTP endpoint
type WebhookTarget struct {
	// Name registers the observer as "webhook-<name>"
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Topics selects records; empty means every record with a topic
	Topics []string `yaml:"topics"`
	// Secret enables the HMAC-SHA256 signature header
	Secret     string            `yaml:"secret,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    time.Duration     `yaml:"timeout"`
	MaxRetries uint64            `yaml:"max_retries"`
}

// SlackTarget posts a short summary of each record to a Slack incoming webhook
type SlackTarget struct {
	Name       string   `yaml:"name"`
	WebhookURL string   `yaml:"webhook_url"`
	Topics     []string `yaml:"topics"`
	Channel    string   `yaml:"channel,omitempty"`
	Username   string   `yaml:"username,omitempty"`
	// MinAmountTRX skips smaller value transfers
	MinAmountTRX       float64       `yaml:"min_amount_trx"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	Timeout            time.Duration `yaml:"timeout"`
}

// NodeConfig identifies this indexer instance in published events
type NodeConfig struct {
	// ID is the unique identifier for this node
	ID string `yaml:"id"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Network == "" {
		c.RPC.Network = constants.NetworkMainnet
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.RPC.MinInterval == 0 {
		c.RPC.MinInterval = constants.DefaultRPCMinInterval
	}
	if c.RPC.MaxQueueSize == 0 {
		c.RPC.MaxQueueSize = constants.DefaultRPCMaxQueueSize
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = constants.DefaultMaxRetries
	}
	if c.RPC.RetryDelay == 0 {
		c.RPC.RetryDelay = constants.DefaultRetryDelay
	}

	// Database defaults
	if c.Database.Cache == 0 {
		c.Database.Cache = constants.DefaultCacheSize
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Sync defaults
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = constants.DefaultPollInterval
	}
	if c.Sync.CatchUpThreshold == 0 {
		c.Sync.CatchUpThreshold = constants.DefaultCatchUpThreshold
	}
	if c.Sync.HealthLagThreshold == 0 {
		c.Sync.HealthLagThreshold = constants.DefaultHealthLagThreshold
	}
	if c.Sync.BackfillCap == 0 {
		c.Sync.BackfillCap = constants.DefaultBackfillCap
	}
	if c.Sync.BackfillHealthThreshold == 0 {
		c.Sync.BackfillHealthThreshold = constants.DefaultBackfillHealthThreshold
	}
	if c.Sync.CatchUpPolicy == "" {
		c.Sync.CatchUpPolicy = "backfill_first"
	}
	if c.Sync.MaxBlocksPerCycle == 0 {
		c.Sync.MaxBlocksPerCycle = constants.DefaultMaxBlocksPerCycle
	}
	if c.Sync.WindowSize == 0 {
		c.Sync.WindowSize = constants.DefaultMetricsWindowSize
	}

	// Classifier defaults
	if c.Classifier.PricePath == "" {
		c.Classifier.PricePath = "tron.usd"
	}
	if c.Classifier.PriceTTL == 0 {
		c.Classifier.PriceTTL = constants.DefaultPriceTTL
	}
	if c.Classifier.GraphSize == 0 {
		c.Classifier.GraphSize = constants.DefaultGraphSize
	}
	if c.Classifier.GraphMaxNeighbors == 0 {
		c.Classifier.GraphMaxNeighbors = constants.DefaultGraphMaxNeighbors
	}
	if c.Classifier.RelatedLimit == 0 {
		c.Classifier.RelatedLimit = constants.DefaultRelatedLimit
	}

	// Observer defaults
	if c.Observer.MailboxSize == 0 {
		c.Observer.MailboxSize = constants.DefaultMailboxSize
	}
	if c.Observer.HandlerTimeout == 0 {
		c.Observer.HandlerTimeout = constants.DefaultHandlerTimeout
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}

	// EventBus defaults
	if c.EventBus.PublishBufferSize == 0 {
		c.EventBus.PublishBufferSize = constants.DefaultEventBufferSize
	}
	if c.EventBus.HistorySize == 0 {
		c.EventBus.HistorySize = constants.DefaultEventHistorySize
	}

	// Redis defaults
	if c.EventBus.Redis.PoolSize == 0 {
		c.EventBus.Redis.PoolSize = 10
	}
	if c.EventBus.Redis.MinIdleConns == 0 {
		c.EventBus.Redis.MinIdleConns = 2
	}
	if c.EventBus.Redis.DialTimeout == 0 {
		c.EventBus.Redis.DialTimeout = 5 * time.Second
	}
	if c.EventBus.Redis.ReadTimeout == 0 {
		c.EventBus.Redis.ReadTimeout = 3 * time.Second
	}
	if c.EventBus.Redis.WriteTimeout == 0 {
		c.EventBus.Redis.WriteTimeout = 3 * time.Second
	}
	if c.EventBus.Redis.ChannelPrefix == "" {
		c.EventBus.Redis.ChannelPrefix = "tron-indexer"
	}

	// Kafka defaults
	if c.EventBus.Kafka.Topic == "" {
		c.EventBus.Kafka.Topic = "tron-indexer-events"
	}
	if c.EventBus.Kafka.ClientID == "" {
		c.EventBus.Kafka.ClientID = "tron-indexer"
	}
	if c.EventBus.Kafka.BatchSize == 0 {
		c.EventBus.Kafka.BatchSize = 100
	}
	if c.EventBus.Kafka.LingerMs == 0 {
		c.EventBus.Kafka.LingerMs = 10
	}
	if c.EventBus.Kafka.Compression == "" {
		c.EventBus.Kafka.Compression = "snappy"
	}
	if c.EventBus.Kafka.SASLMechanism == "" {
		c.EventBus.Kafka.SASLMechanism = "PLAIN"
	}

	// Notification defaults
	for i := range c.Notifications.Webhooks {
		w := &c.Notifications.Webhooks[i]
		if w.Timeout == 0 {
			w.Timeout = 10 * time.Second
		}
		if w.MaxRetries == 0 {
			w.MaxRetries = 3
		}
	}
	for i := range c.Notifications.Slack {
		sl := &c.Notifications.Slack[i]
		if sl.Timeout == 0 {
			sl.Timeout = 10 * time.Second
		}
		if sl.RateLimitPerMinute == 0 {
			sl.RateLimitPerMinute = 30
		}
		if sl.Username == "" {
			sl.Username = "TRON Indexer"
		}
	}

	// Node defaults
	if c.Node.ID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "indexer"
		}
		c.Node.ID = hostname
	}
}

// LoadFromEnv loads configuration from INDEXER_* environment variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv("INDEXER_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if network := os.Getenv("INDEXER_RPC_NETWORK"); network != "" {
		c.RPC.Network = network
	}
	if keys := os.Getenv("INDEXER_RPC_API_KEYS"); keys != "" {
		c.RPC.APIKeys = splitList(keys)
	}
	if err := envDuration("INDEXER_RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}
	if err := envDuration("INDEXER_RPC_MIN_INTERVAL", &c.RPC.MinInterval); err != nil {
		return err
	}
	if err := envInt("INDEXER_RPC_MAX_QUEUE_SIZE", &c.RPC.MaxQueueSize); err != nil {
		return err
	}
	if err := envUint("INDEXER_RPC_MAX_RETRIES", &c.RPC.MaxRetries); err != nil {
		return err
	}

	// Database configuration
	if path := os.Getenv("INDEXER_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("INDEXER_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}

	// Log configuration
	if level := os.Getenv("INDEXER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("INDEXER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Sync configuration
	if err := envUint("INDEXER_START_HEIGHT", &c.Sync.StartHeight); err != nil {
		return err
	}
	if err := envDuration("INDEXER_SYNC_POLL_INTERVAL", &c.Sync.PollInterval); err != nil {
		return err
	}
	if err := envUint("INDEXER_SYNC_CATCH_UP_THRESHOLD", &c.Sync.CatchUpThreshold); err != nil {
		return err
	}
	if err := envUint("INDEXER_SYNC_HEALTH_LAG_THRESHOLD", &c.Sync.HealthLagThreshold); err != nil {
		return err
	}
	if err := envInt("INDEXER_SYNC_BACKFILL_CAP", &c.Sync.BackfillCap); err != nil {
		return err
	}
	if policy := os.Getenv("INDEXER_SYNC_CATCH_UP_POLICY"); policy != "" {
		c.Sync.CatchUpPolicy = policy
	}
	if err := envInt("INDEXER_SYNC_MAX_BLOCKS_PER_CYCLE", &c.Sync.MaxBlocksPerCycle); err != nil {
		return err
	}

	// Classifier configuration
	if price := os.Getenv("INDEXER_PRICE_USD"); price != "" {
		val, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_PRICE_USD: %w", err)
		}
		c.Classifier.PriceUSD = val
	}
	if url := os.Getenv("INDEXER_PRICE_URL"); url != "" {
		c.Classifier.PriceURL = url
	}
	if path := os.Getenv("INDEXER_PRICE_PATH"); path != "" {
		c.Classifier.PricePath = path
	}
	if err := envDuration("INDEXER_PRICE_TTL", &c.Classifier.PriceTTL); err != nil {
		return err
	}

	// Observer configuration
	if err := envInt("INDEXER_OBSERVER_MAILBOX_SIZE", &c.Observer.MailboxSize); err != nil {
		return err
	}

	// API configuration
	if err := envBool("INDEXER_API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	if host := os.Getenv("INDEXER_API_HOST"); host != "" {
		c.API.Host = host
	}
	if err := envInt("INDEXER_API_PORT", &c.API.Port); err != nil {
		return err
	}
	if err := envBool("INDEXER_API_GRAPHQL", &c.API.EnableGraphQL); err != nil {
		return err
	}
	if err := envBool("INDEXER_API_WEBSOCKET", &c.API.EnableWebSocket); err != nil {
		return err
	}
	if err := envBool("INDEXER_API_RATE_LIMIT", &c.API.EnableRateLimit); err != nil {
		return err
	}

	// EventBus sinks
	if err := envBool("INDEXER_EVENTBUS_REDIS_ENABLED", &c.EventBus.Redis.Enabled); err != nil {
		return err
	}
	if addrs := os.Getenv("INDEXER_EVENTBUS_REDIS_ADDRESSES"); addrs != "" {
		c.EventBus.Redis.Addresses = splitList(addrs)
	}
	if password := os.Getenv("INDEXER_EVENTBUS_REDIS_PASSWORD"); password != "" {
		c.EventBus.Redis.Password = password
	}
	if err := envBool("INDEXER_EVENTBUS_KAFKA_ENABLED", &c.EventBus.Kafka.Enabled); err != nil {
		return err
	}
	if brokers := os.Getenv("INDEXER_EVENTBUS_KAFKA_BROKERS"); brokers != "" {
		c.EventBus.Kafka.Brokers = splitList(brokers)
	}
	if topic := os.Getenv("INDEXER_EVENTBUS_KAFKA_TOPIC"); topic != "" {
		c.EventBus.Kafka.Topic = topic
	}
	if username := os.Getenv("INDEXER_EVENTBUS_KAFKA_SASL_USERNAME"); username != "" {
		c.EventBus.Kafka.SASLUsername = username
	}
	if password := os.Getenv("INDEXER_EVENTBUS_KAFKA_SASL_PASSWORD"); password != "" {
		c.EventBus.Kafka.SASLPassword = password
	}

	// Node configuration
	if nodeID := os.Getenv("INDEXER_NODE_ID"); nodeID != "" {
		c.Node.ID = nodeID
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint(key string, dst *uint64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Network != "" && !constants.IsValidNetwork(c.RPC.Network) {
		return fmt.Errorf("invalid network %q, must be one of: mainnet, shasta, nile", c.RPC.Network)
	}
	if c.RPC.ResolvedEndpoint() == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPC.MinInterval < 0 {
		return fmt.Errorf("RPC min interval cannot be negative")
	}
	if c.RPC.MaxQueueSize <= 0 {
		return fmt.Errorf("RPC max queue size must be positive")
	}

	// Validate database configuration
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate sync configuration
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync poll interval must be positive")
	}
	if c.Sync.BackfillCap <= 0 {
		return fmt.Errorf("sync backfill cap must be positive")
	}
	if c.Sync.MaxBlocksPerCycle <= 0 {
		return fmt.Errorf("sync max blocks per cycle must be positive")
	}
	validPolicies := map[string]bool{
		"backfill_first":   true,
		"sequential_first": true,
	}
	if !validPolicies[c.Sync.CatchUpPolicy] {
		return fmt.Errorf("invalid catch-up policy %q, must be one of: backfill_first, sequential_first", c.Sync.CatchUpPolicy)
	}

	// Validate classifier configuration
	if c.Classifier.PriceUSD < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if c.Classifier.GraphSize <= 0 {
		return fmt.Errorf("graph size must be positive")
	}

	// Validate API configuration
	if c.API.Enabled && (c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort) {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}

	// Validate EventBus configuration
	if c.EventBus.PublishBufferSize <= 0 {
		return fmt.Errorf("eventbus publish buffer size must be positive")
	}
	if c.EventBus.HistorySize < 0 {
		return fmt.Errorf("eventbus history size cannot be negative")
	}
	// Validate Redis configuration if enabled
	if c.EventBus.Redis.Enabled {
		if len(c.EventBus.Redis.Addresses) == 0 {
			return fmt.Errorf("redis eventbus enabled but no addresses configured")
		}
		if c.EventBus.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis pool size must be positive")
		}
	}
	// Validate Kafka configuration if enabled
	if c.EventBus.Kafka.Enabled {
		if len(c.EventBus.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka eventbus enabled but no brokers configured")
		}
		if c.EventBus.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	// Validate notification targets
	names := make(map[string]bool)
	for _, w := range c.Notifications.Webhooks {
		if w.Name == "" || w.URL == "" {
			return fmt.Errorf("webhook notifications require a name and url")
		}
		if names["webhook-"+w.Name] {
			return fmt.Errorf("duplicate webhook name %q", w.Name)
		}
		names["webhook-"+w.Name] = true
	}
	for _, sl := range c.Notifications.Slack {
		if sl.Name == "" || sl.WebhookURL == "" {
			return fmt.Errorf("slack notifications require a name and webhook_url")
		}
		if names["slack-"+sl.Name] {
			return fmt.Errorf("duplicate slack name %q", sl.Name)
		}
		names["slack-"+sl.Name] = true
		if sl.MinAmountTRX < 0 {
			return fmt.Errorf("slack %q: min amount must not be negative", sl.Name)
		}
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
