package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Wallet API methods
const (
	MethodGetNowBlock        = "/wallet/getnowblock"
	MethodGetBlockByNum      = "/wallet/getblockbynum"
	MethodGetTransactionInfo = "/wallet/gettransactioninfobyid"
	MethodGetAccountResource = "/wallet/getaccountresource"
)

const (
	// APIKeyHeader carries the rotated credential
	APIKeyHeader = "TRON-PRO-API-KEY"

	// DefaultMaxQueueSize bounds the request queue when Config.MaxQueueSize is zero
	DefaultMaxQueueSize = 256

	maxResponseBytes = 64 << 20
)

// Config holds client configuration
type Config struct {
	Endpoint string
	// APIKeys are rotated round-robin, one per request
	APIKeys []string
	// Timeout bounds a single upstream request
	Timeout time.Duration
	// MinInterval is the minimum time between the completion of one upstream
	// request and the start of the next, so completions are at least this far apart
	MinInterval time.Duration
	// MaxQueueSize bounds the number of requests waiting for the worker
	MaxQueueSize int
	// Retry is the policy for methods without an entry in MethodRetry
	Retry RetryPolicy
	// MethodRetry overrides Retry per method
	MethodRetry map[string]RetryPolicy
	// HTTPClient is optional; a default client is used when nil
	HTTPClient *http.Client
	// Clock paces requests; the wall clock is used when nil
	Clock  clock.Clock
	Logger *zap.Logger
	// Registerer is optional; metrics are not registered when nil
	Registerer prometheus.Registerer
}

// Stats is a snapshot of the client's shared counters
type Stats struct {
	QueueDepth    int
	MaxQueueSize  int
	LastRequestAt time.Time
	TotalRequests uint64
	Retries       uint64
	Overflows     uint64
	// KeyUsage counts requests per configured API key, in configuration order
	KeyUsage []uint64
}

// Client is a throttled TRON wallet API client. All calls, from any
// goroutine, pass through one bounded queue served by a single worker.
type Client struct {
	endpoint   string
	keys       []string
	httpClient *http.Client
	timeout    time.Duration
	interval   time.Duration
	clock      clock.Clock
	retry      RetryPolicy
	policies   map[string]RetryPolicy
	logger     *zap.Logger
	metrics    *metrics

	queue  chan *ticket
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// nextKey and lastDone are only touched by the worker
	nextKey  int
	lastDone time.Time

	mu            sync.Mutex
	lastRequestAt time.Time
	totalRequests uint64
	retries       uint64
	overflows     uint64
	keyUsage      []uint64
}

// ticket is one queued upstream request
type ticket struct {
	method     string
	payload    []byte
	enqueuedAt time.Time
	// done is buffered so the worker never blocks on an abandoned caller
	done chan response
}

type response struct {
	body []byte
	err  error
}

// NewClient creates a new client and starts its worker
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", cfg.Endpoint)
	}
	if cfg.MaxQueueSize < 0 {
		return nil, fmt.Errorf("max queue size cannot be negative")
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min interval cannot be negative")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	queueSize := cfg.MaxQueueSize
	if queueSize == 0 {
		queueSize = DefaultMaxQueueSize
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	policies := make(map[string]RetryPolicy, len(cfg.MethodRetry))
	for m, p := range cfg.MethodRetry {
		policies[m] = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		keys:       keys,
		httpClient: httpClient,
		timeout:    cfg.Timeout,
		interval:   cfg.MinInterval,
		clock:      clk,
		retry:      cfg.Retry,
		policies:   policies,
		logger:     logger,
		metrics:    newMetrics(cfg.Registerer),
		queue:      make(chan *ticket, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		keyUsage:   make([]uint64, len(keys)),
	}

	c.wg.Add(1)
	go c.worker()

	logger.Info("chain client started",
		zap.String("endpoint", c.endpoint),
		zap.Int("api_keys", len(keys)),
		zap.Duration("min_interval", cfg.MinInterval),
		zap.Int("max_queue_size", queueSize),
	)

	return c, nil
}

// Close stops the worker. Queued requests fail with ErrClientClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	c.wg.Wait()
}

// Stats returns a snapshot of the shared counters
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		QueueDepth:    len(c.queue),
		MaxQueueSize:  cap(c.queue),
		LastRequestAt: c.lastRequestAt,
		TotalRequests: c.totalRequests,
		Retries:       c.retries,
		Overflows:     c.overflows,
		KeyUsage:      append([]uint64(nil), c.keyUsage...),
	}
}

// GetNowBlock returns the current head block
func (c *Client) GetNowBlock(ctx context.Context) (*types.RawBlock, error) {
	var block types.RawBlock
	if err := c.call(ctx, MethodGetNowBlock, nil, &block); err != nil {
		return nil, fmt.Errorf("failed to get now block: %w", err)
	}
	return &block, nil
}

// GetHeadBlockNumber returns the network head height
func (c *Client) GetHeadBlockNumber(ctx context.Context) (uint64, error) {
	block, err := c.GetNowBlock(ctx)
	if err != nil {
		return 0, err
	}
	return block.Number(), nil
}

// GetBlockByNumber fetches a block with its transactions
func (c *Client) GetBlockByNumber(ctx context.Context, number uint64) (*types.RawBlock, error) {
	var block types.RawBlock
	params := map[string]interface{}{"num": number}
	if err := c.call(ctx, MethodGetBlockByNum, params, &block); err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if block.BlockID == "" {
		return nil, fmt.Errorf("failed to get block %d: %w", number, &RPCError{
			Kind:       ErrUpstreamRejected,
			Method:     MethodGetBlockByNum,
			StatusCode: http.StatusOK,
			Err:        ErrBlockNotFound,
		})
	}
	return &block, nil
}

// GetTransactionInfo fetches the execution receipt of a transaction
func (c *Client) GetTransactionInfo(ctx context.Context, txID string) (*types.TransactionInfo, error) {
	var info types.TransactionInfo
	params := map[string]interface{}{"value": txID}
	if err := c.call(ctx, MethodGetTransactionInfo, params, &info); err != nil {
		return nil, fmt.Errorf("failed to get transaction info %s: %w", txID, err)
	}
	return &info, nil
}

// GetAccountResource fetches the bandwidth and energy view of an account.
// Addresses may be base58 (T...) or hex (41...).
func (c *Client) GetAccountResource(ctx context.Context, address string) (*types.AccountResource, error) {
	var res types.AccountResource
	params := map[string]interface{}{
		"address": address,
		"visible": strings.HasPrefix(address, "T"),
	}
	if err := c.call(ctx, MethodGetAccountResource, params, &res); err != nil {
		return nil, fmt.Errorf("failed to get account resource %s: %w", address, err)
	}
	return &res, nil
}

// RetryPolicyFor returns the retry policy declared for a method
func (c *Client) RetryPolicyFor(method string) RetryPolicy {
	if p, ok := c.policies[method]; ok {
		return p
	}
	return c.retry
}

// call runs one logical operation: enqueue, wait, classify, retry per policy.
// Each retry goes back through the queue and is throttled like any other call.
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := []byte("{}")
	if params != nil {
		var err error
		payload, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", method, err)
		}
	}

	b, hinted := c.RetryPolicyFor(method).newBackOff(ctx)
	attempt := 0

	op := func() error {
		attempt++
		body, err := c.submit(ctx, method, payload)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			hinted.setHint(retryAfter(err))
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(&RPCError{
				Kind:       ErrUpstreamRejected,
				Method:     method,
				StatusCode: http.StatusOK,
				Body:       string(body),
				Err:        fmt.Errorf("undecodable response: %w", err),
			})
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.mu.Lock()
		c.retries++
		c.mu.Unlock()
		c.metrics.retries.WithLabelValues(method).Inc()

		c.logger.Warn("Retrying chain RPC call",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(op, b, notify)
}

// submit enqueues one request and waits for its response.
// A full queue fails immediately; a cancelled ctx abandons the wait only.
func (c *Client) submit(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	t := &ticket{
		method:     method,
		payload:    payload,
		enqueuedAt: time.Now(),
		done:       make(chan response, 1),
	}

	select {
	case c.queue <- t:
		c.metrics.queueDepth.Set(float64(len(c.queue)))
	default:
		c.mu.Lock()
		c.overflows++
		c.mu.Unlock()
		c.metrics.overflows.Inc()

		c.logger.Warn("Chain RPC queue full, rejecting request",
			zap.String("method", method),
			zap.Int("max_queue_size", cap(c.queue)),
		)
		return nil, fmt.Errorf("%s: %w", method, ErrQueueFull)
	}

	select {
	case r := <-t.done:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClientClosed
	}
}

// worker serves the queue in FIFO order, one request at a time
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case t := <-c.queue:
			c.metrics.queueDepth.Set(float64(len(c.queue)))

			if err := c.pace(); err != nil {
				t.done <- response{err: err}
				continue
			}

			body, err := c.execute(t)
			c.lastDone = c.clock.Now()
			t.done <- response{body: body, err: err}
		}
	}
}

// pace blocks until MinInterval has passed since the previous request
// completed, so completions are at least MinInterval apart.
func (c *Client) pace() error {
	if c.interval <= 0 || c.lastDone.IsZero() {
		return nil
	}
	wait := c.lastDone.Add(c.interval).Sub(c.clock.Now())
	if wait <= 0 {
		return nil
	}
	select {
	case <-c.clock.TickAfter(wait):
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	}
}

// drain fails every ticket still queued at shutdown
func (c *Client) drain() {
	for {
		select {
		case t := <-c.queue:
			t.done <- response{err: ErrClientClosed}
		default:
			return
		}
	}
}

// nextAPIKey picks the credential for the next request (round-robin)
func (c *Client) nextAPIKey() (int, string) {
	if len(c.keys) == 0 {
		return -1, ""
	}
	idx := c.nextKey % len(c.keys)
	c.nextKey++
	return idx, c.keys[idx]
}

// execute performs one HTTP request and classifies the outcome
func (c *Client) execute(t *ticket) ([]byte, error) {
	keyIdx, key := c.nextAPIKey()
	start := time.Now()

	c.mu.Lock()
	c.lastRequestAt = start
	c.totalRequests++
	if keyIdx >= 0 {
		c.keyUsage[keyIdx]++
	}
	c.mu.Unlock()

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := c.roundTrip(ctx, t, key)

	c.metrics.requests.WithLabelValues(t.method, outcomeLabel(err)).Inc()
	c.metrics.duration.WithLabelValues(t.method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Debug("chain RPC call failed",
			zap.String("method", t.method),
			zap.Duration("queued", start.Sub(t.enqueuedAt)),
			zap.Error(err),
		)
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, t *ticket, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+t.method, bytes.NewReader(t.payload))
	if err != nil {
		return nil, &RPCError{Kind: ErrTransport, Method: t.method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RPCError{Kind: ErrTransport, Method: t.method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RPCError{Kind: ErrTransport, Method: t.method, StatusCode: resp.StatusCode, Err: err}
	}

	if err := classifyResponse(t.method, resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyResponse maps an HTTP response onto the error taxonomy
func classifyResponse(method string, status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RPCError{
			Kind:       ErrRateLimited,
			Method:     method,
			StatusCode: status,
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
			Body:       string(body),
		}
	case status >= 500:
		return &RPCError{Kind: ErrTransport, Method: method, StatusCode: status, Body: string(body)}
	case status < 200 || status >= 300:
		kind := ErrUpstreamRejected
		if mentionsRateLimit(string(body)) {
			kind = ErrRateLimited
		}
		return &RPCError{
			Kind:       kind,
			Method:     method,
			StatusCode: status,
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	// The wallet API reports failures as {"Error": "..."} with status 200
	var envelope struct {
		Error string `json:"Error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		kind := ErrUpstreamRejected
		if mentionsRateLimit(envelope.Error) {
			kind = ErrRateLimited
		}
		return &RPCError{Kind: kind, Method: method, StatusCode: status, Body: string(body)}
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
