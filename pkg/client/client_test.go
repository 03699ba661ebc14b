package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- Mock wallet API infrastructure ----

type walletRequest struct {
	Method string
	APIKey string
	Body   map[string]interface{}
	At     time.Time
}

type walletHandler func(req walletRequest) (int, string)

// mockWallet records every request and dispatches by method path
type mockWallet struct {
	mu       sync.Mutex
	requests []walletRequest
	handlers map[string]walletHandler
}

func newMockWallet(t *testing.T, handlers map[string]walletHandler) (*mockWallet, *httptest.Server) {
	t.Helper()
	m := &mockWallet{handlers: handlers}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		defer r.Body.Close()

		req := walletRequest{
			Method: r.URL.Path,
			APIKey: r.Header.Get(APIKeyHeader),
			At:     time.Now(),
		}
		_ = json.Unmarshal(raw, &req.Body)

		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()

		handler, ok := m.handlers[r.URL.Path]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return m, server
}

func (m *mockWallet) recorded() []walletRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]walletRequest(nil), m.requests...)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, err := NewClient(&cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// ---- JSON response helpers ----

func makeBlockJSON(number uint64) string {
	return fmt.Sprintf(`{
		"blockID": "%064x",
		"block_header": {"raw_data": {"number": %d, "timestamp": %d, "parentHash": "%064x",
			"witness_address": "41b487cdc02de90f15ac89a68c82f44cbfe3d915ea"}},
		"transactions": []
	}`, number, number, 1714000000000+int64(number)*3000, number-1)
}

func blockHandler(req walletRequest) (int, string) {
	num, _ := req.Body["num"].(float64)
	return http.StatusOK, makeBlockJSON(uint64(num))
}

func fastRetry(n uint64) RetryPolicy {
	return RetryPolicy{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

// ---- Tests ----

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&Config{})
	assert.Error(t, err)

	_, err = NewClient(&Config{Endpoint: "not a url"})
	assert.Error(t, err)

	_, err = NewClient(&Config{Endpoint: "http://localhost:8090", MaxQueueSize: -1})
	assert.Error(t, err)

	c, err := NewClient(&Config{Endpoint: "http://localhost:8090"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultMaxQueueSize, c.Stats().MaxQueueSize)
}

func TestClient_GetBlockByNumber(t *testing.T) {
	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: blockHandler,
	})
	c := newTestClient(t, Config{Endpoint: server.URL + "/", APIKeys: []string{"key-1"}})

	block, err := c.GetBlockByNumber(context.Background(), 61338289)
	require.NoError(t, err)
	assert.Equal(t, uint64(61338289), block.Number())
	assert.Equal(t, fmt.Sprintf("%064x", 61338289), block.BlockID)

	reqs := wallet.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "key-1", reqs[0].APIKey)
	assert.Equal(t, float64(61338289), reqs[0].Body["num"])
}

func TestClient_GetHeadBlockNumber(t *testing.T) {
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) { return http.StatusOK, makeBlockJSON(1000) },
	})
	c := newTestClient(t, Config{Endpoint: server.URL})

	head, err := c.GetHeadBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), head)
}

func TestClient_BlockNotFound(t *testing.T) {
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: func(walletRequest) (int, string) { return http.StatusOK, `{}` },
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Retry: fastRetry(3)})

	_, err := c.GetBlockByNumber(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRejected)
	assert.ErrorIs(t, err, ErrBlockNotFound)
	assert.Equal(t, uint64(0), c.Stats().Retries)
}

func TestClient_TransactionInfoAndAccountResource(t *testing.T) {
	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetTransactionInfo: func(req walletRequest) (int, string) {
			return http.StatusOK, fmt.Sprintf(`{"id": %q, "fee": 345000, "blockNumber": 100, "receipt": {"net_usage": 268, "result": "SUCCESS"}}`, req.Body["value"])
		},
		MethodGetAccountResource: func(walletRequest) (int, string) {
			return http.StatusOK, `{"freeNetLimit": 600, "EnergyLimit": 12000, "TotalEnergyWeight": 99}`
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL})
	ctx := context.Background()

	info, err := c.GetTransactionInfo(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcd", info.ID)
	assert.Equal(t, int64(345000), info.Fee)
	assert.Equal(t, int64(268), info.Receipt.NetUsage)

	res, err := c.GetAccountResource(ctx, "TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH")
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.FreeNetLimit)
	assert.Equal(t, int64(12000), res.EnergyLimit)

	reqs := wallet.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, true, reqs[1].Body["visible"])
}

func TestClient_QueueSerialization(t *testing.T) {
	const (
		calls    = 6
		interval = 30 * time.Millisecond
	)
	// odd blocks are slow so a start-to-start throttle would let the next
	// call complete right behind them
	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: func(req walletRequest) (int, string) {
			if num, _ := req.Body["num"].(float64); int(num)%2 == 1 {
				time.Sleep(3 * interval)
			}
			return blockHandler(req)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, MinInterval: interval})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done []time.Time
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			_, err := c.GetBlockByNumber(context.Background(), n)
			assert.NoError(t, err)
			mu.Lock()
			done = append(done, time.Now())
			mu.Unlock()
		}(uint64(i + 1))
	}
	wg.Wait()

	require.Len(t, wallet.recorded(), calls)
	require.Len(t, done, calls)
	sort.Slice(done, func(i, j int) bool { return done[i].Before(done[j]) })

	tolerance := 5 * time.Millisecond
	for i := 1; i < len(done); i++ {
		gap := done[i].Sub(done[i-1])
		assert.GreaterOrEqual(t, gap, interval-tolerance, "call %d completed %v after the previous one", i, gap)
	}
	assert.Equal(t, uint64(calls), c.Stats().TotalRequests)
}

func TestClient_SpacingStartsAtCompletion(t *testing.T) {
	const interval = 100 * time.Millisecond
	start := time.Date(2024, 4, 25, 0, 0, 0, 0, time.UTC)
	tickSignal := make(chan time.Duration, 1)
	clk := clock.NewTestClockWithTickSignal(start, tickSignal)

	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: func(req walletRequest) (int, string) {
			// block 1 takes 250ms of clock time
			if num, _ := req.Body["num"].(float64); num == 1 {
				clk.SetTime(start.Add(250 * time.Millisecond))
			}
			return blockHandler(req)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, MinInterval: interval, Clock: clk})

	_, err := c.GetBlockByNumber(context.Background(), 1)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := c.GetBlockByNumber(context.Background(), 2)
		result <- err
	}()

	select {
	case wait := <-tickSignal:
		assert.Equal(t, interval, wait)
	case <-time.After(time.Second):
		t.Fatal("second call was not paced")
	}
	assert.Len(t, wallet.recorded(), 1)

	clk.SetTime(start.Add(350 * time.Millisecond))
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second call did not run after the interval")
	}
	assert.Len(t, wallet.recorded(), 2)
}

func TestClient_QueueOverflow(t *testing.T) {
	const maxQueue = 3
	release := make(chan struct{})
	started := make(chan struct{}, 16)

	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: func(req walletRequest) (int, string) {
			started <- struct{}{}
			<-release
			return blockHandler(req)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, MaxQueueSize: maxQueue})
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	call := func(n uint64) {
		defer wg.Done()
		if _, err := c.GetBlockByNumber(ctx, n); err == nil {
			succeeded.Add(1)
		}
	}

	// Occupy the worker
	wg.Add(1)
	go call(1)
	<-started

	// Fill the queue
	for i := 0; i < maxQueue; i++ {
		wg.Add(1)
		go call(uint64(i + 2))
	}
	require.Eventually(t, func() bool { return c.Stats().QueueDepth == maxQueue }, time.Second, time.Millisecond)

	begin := time.Now()
	_, err := c.GetBlockByNumber(ctx, 99)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.Equal(t, uint64(1), c.Stats().Overflows)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(maxQueue+1), succeeded.Load())
}

func TestClient_CredentialRotation(t *testing.T) {
	const calls = 10
	keys := []string{"key-a", "key-b", "key-c"}
	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: blockHandler,
	})
	c := newTestClient(t, Config{Endpoint: server.URL, APIKeys: keys})

	for i := 0; i < calls; i++ {
		_, err := c.GetBlockByNumber(context.Background(), uint64(i+1))
		require.NoError(t, err)
	}

	reqs := wallet.recorded()
	require.Len(t, reqs, calls)
	for i, r := range reqs {
		assert.Equal(t, keys[i%len(keys)], r.APIKey, "request %d", i)
	}

	// ceil(10/3) = 4, floor(10/3) = 3
	assert.Equal(t, []uint64{4, 3, 3}, c.Stats().KeyUsage)
}

// flakyTransport fails the first n requests with a dial error
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(makeBlockJSON(42))),
		Request:    req,
	}, nil
}

func TestClient_RetryAfterTransportFailures(t *testing.T) {
	transport := &flakyTransport{failures: 2}
	c := newTestClient(t, Config{
		Endpoint:   "http://tron.invalid",
		HTTPClient: &http.Client{Transport: transport},
		Retry:      fastRetry(5),
	})

	block, err := c.GetBlockByNumber(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block.Number())

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Retries)
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestClient_RetryCeiling(t *testing.T) {
	transport := &flakyTransport{failures: 100}
	c := newTestClient(t, Config{
		Endpoint:   "http://tron.invalid",
		HTTPClient: &http.Client{Transport: transport},
		Retry:      fastRetry(2),
	})

	_, err := c.GetBlockByNumber(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, uint64(2), c.Stats().Retries)
	assert.Equal(t, int32(3), transport.calls.Load())
}

func TestClient_PerMethodPolicy(t *testing.T) {
	transport := &flakyTransport{failures: 100}
	c := newTestClient(t, Config{
		Endpoint:    "http://tron.invalid",
		HTTPClient:  &http.Client{Transport: transport},
		Retry:       fastRetry(3),
		MethodRetry: map[string]RetryPolicy{MethodGetAccountResource: {}},
	})

	_, err := c.GetAccountResource(context.Background(), "TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, uint64(0), c.Stats().Retries)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestMethodRetryPolicies(t *testing.T) {
	base := fastRetry(4)
	policies := MethodRetryPolicies(base)

	assert.Equal(t, base, policies[MethodGetNowBlock])
	assert.Equal(t, base, policies[MethodGetBlockByNum])
	assert.Equal(t, base, policies[MethodGetTransactionInfo])
	assert.Equal(t, uint64(1), policies[MethodGetAccountResource].MaxRetries)
	assert.Equal(t, uint64(0), MethodRetryPolicies(RetryPolicy{})[MethodGetAccountResource].MaxRetries)

	transport := &flakyTransport{failures: 100}
	c := newTestClient(t, Config{
		Endpoint:    "http://tron.invalid",
		HTTPClient:  &http.Client{Transport: transport},
		Retry:       base,
		MethodRetry: policies,
	})
	_, err := c.GetAccountResource(context.Background(), "TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestClient_UpstreamRejectedIsNotRetried(t *testing.T) {
	const payload = `{"Error":"class org.tron.core.exception.BadItemException : invalid num"}`
	wallet, server := newMockWallet(t, map[string]walletHandler{
		MethodGetBlockByNum: func(walletRequest) (int, string) { return http.StatusOK, payload },
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Retry: fastRetry(3)})

	_, err := c.GetBlockByNumber(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRejected)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, payload, rpcErr.Body)
	assert.Len(t, wallet.recorded(), 1)
	assert.Equal(t, uint64(0), c.Stats().Retries)
}

func TestClient_UndecodableBody(t *testing.T) {
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) { return http.StatusOK, `<html>gateway</html>` },
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Retry: fastRetry(3)})

	_, err := c.GetNowBlock(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamRejected)
	assert.Equal(t, uint64(0), c.Stats().Retries)
}

func TestClient_RateLimitedThenSuccess(t *testing.T) {
	var hits atomic.Int32
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) {
			if hits.Add(1) == 1 {
				return http.StatusTooManyRequests, `{"Error":"request rate exceeded"}`
			}
			return http.StatusOK, makeBlockJSON(7)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Retry: fastRetry(3)})

	head, err := c.GetHeadBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), head)
	assert.Equal(t, uint64(1), c.Stats().Retries)
}

func TestClient_RateLimitedInBody(t *testing.T) {
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) {
			return http.StatusOK, `{"Error":"The key exceeds the frequency limit(15), and the query server is suspended for 30s"}`
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Retry: fastRetry(1)})

	_, err := c.GetNowBlock(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, uint64(1), c.Stats().Retries)
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) { return http.StatusBadGateway, "bad gateway" },
	})
	c := newTestClient(t, Config{Endpoint: server.URL})

	_, err := c.GetNowBlock(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) {
			select {
			case <-release:
			case <-time.After(time.Second):
			}
			return http.StatusOK, makeBlockJSON(1)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL, Timeout: 20 * time.Millisecond})

	_, err := c.GetNowBlock(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_AbandonedWaitStillRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_, server := newMockWallet(t, map[string]walletHandler{
		MethodGetNowBlock: func(walletRequest) (int, string) {
			started <- struct{}{}
			<-release
			return http.StatusOK, makeBlockJSON(1)
		},
	})
	c := newTestClient(t, Config{Endpoint: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetNowBlock(ctx)
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return c.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), c.Stats().TotalRequests)
	assert.False(t, c.Stats().LastRequestAt.IsZero())
}

func TestClient_Closed(t *testing.T) {
	c, err := NewClient(&Config{Endpoint: "http://localhost:8090"})
	require.NoError(t, err)
	c.Close()
	c.Close()

	_, err = c.GetNowBlock(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"ok", 200, `{"blockID":"aa"}`, nil},
		{"ok array", 200, `[]`, nil},
		{"too many requests", 429, ``, ErrRateLimited},
		{"bad gateway", 502, ``, ErrTransport},
		{"unavailable", 503, ``, ErrTransport},
		{"forbidden rate limit", 403, `{"Error":"rate limit reached"}`, ErrRateLimited},
		{"bad request", 400, `{"Error":"bad"}`, ErrUpstreamRejected},
		{"error envelope", 200, `{"Error":"contract validate error"}`, ErrUpstreamRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse("/wallet/x", tt.status, http.Header{}, []byte(tt.body))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 30*time.Second)
}

func TestHintedBackOff_UsesRetryAfterFloor(t *testing.T) {
	b, hinted := fastRetry(3).newBackOff(context.Background())
	b.Reset()

	hinted.setHint(2 * time.Second)
	assert.Equal(t, 2*time.Second, b.NextBackOff())

	// Hint applies to one wait only
	assert.Less(t, b.NextBackOff(), time.Second)
}
