package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/testutil"
	"github.com/0xmhha/tron-indexer-go/pkg/eventbus"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/syncer"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

type staticStatus struct {
	status syncer.Status
}

func (s staticStatus) Status() syncer.Status { return s.status }

type brokenStore struct {
	*testutil.MemoryStore
}

func (brokenStore) GetLatestBlock(ctx context.Context) (*types.ChainBlock, error) {
	return nil, errors.New("pebble: closed")
}

type fakeSink struct {
	health eventbus.HealthStatus
}

func (f *fakeSink) Type() eventbus.SinkType                           { return eventbus.SinkTypeRedis }
func (f *fakeSink) Connect(ctx context.Context) error                 { return nil }
func (f *fakeSink) Publish(ctx context.Context, e events.Event) error { return nil }
func (f *fakeSink) Close() error                                      { return nil }
func (f *fakeSink) GetHealthStatus() eventbus.HealthStatus            { return f.health }

func healthyStatus() syncer.Status {
	return syncer.Status{
		CurrentBlock: 120,
		NetworkBlock: 125,
		Lag:          5,
		IsHealthy:    true,
		Phase:        syncer.PhaseProcessing,
	}
}

func newTestServer(t *testing.T, opts *ServerOptions) *Server {
	t.Helper()
	store := testutil.NewMemoryStore()
	if err := store.UpsertBlock(context.Background(), &types.ChainBlock{Number: 120, ID: "id-120"}); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	if opts == nil {
		opts = &ServerOptions{}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}

	s, err := NewServer(DefaultConfig(), zap.NewNop(), store, opts)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "invalid port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "empty host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "zero read timeout", mutate: func(c *Config) { c.ReadTimeout = 0 }, wantErr: true},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.EnableRateLimit = true
				c.RateLimitBurst = 0
			},
			wantErr: true,
		},
		{
			name: "only status endpoints",
			mutate: func(c *Config) {
				c.EnableGraphQL = false
				c.EnableWebSocket = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			s, err := NewServer(cfg, zap.NewNop(), testutil.NewMemoryStore(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "0.0.0.0"
	cfg.Port = 9090
	if got := cfg.Address(); got != "0.0.0.0:9090" {
		t.Errorf("Address() = %q", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, &ServerOptions{Status: staticStatus{healthyStatus()}})

		rec := get(t, s, "/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var health DetailedHealth
		if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if health.Status != StatusHealthy {
			t.Errorf("status = %q, want healthy", health.Status)
		}
		if health.Sync == nil || health.Sync.Lag != 5 || health.Sync.Phase != string(syncer.PhaseProcessing) {
			t.Errorf("unexpected sync section: %+v", health.Sync)
		}
		if health.Storage == nil || health.Storage.Status != StatusHealthy {
			t.Errorf("unexpected storage section: %+v", health.Storage)
		}
	})

	t.Run("lagging sync", func(t *testing.T) {
		st := healthyStatus()
		st.IsHealthy = false
		st.Lag = 500
		s := newTestServer(t, &ServerOptions{Status: staticStatus{st}})

		if rec := get(t, s, "/health"); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		if rec := get(t, s, "/health/live"); rec.Code != http.StatusOK {
			t.Errorf("liveness should not depend on sync, got %d", rec.Code)
		}
	})
}

func TestHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("disconnected sink degrades", func(t *testing.T) {
		hc := NewHealthChecker("node-1", "v1")
		hc.SetStatusProvider(staticStatus{healthyStatus()})
		hc.SetSinks([]eventbus.Sink{&fakeSink{health: eventbus.HealthStatus{Status: "unhealthy", Message: "not connected"}}})

		health := hc.GetDetailedHealth(ctx)
		if health.Status != StatusDegraded {
			t.Errorf("status = %q, want degraded", health.Status)
		}
		if health.Sinks["redis"].Message != "not connected" {
			t.Errorf("unexpected sink section: %+v", health.Sinks)
		}
		if health.NodeID != "node-1" || health.Version != "v1" {
			t.Errorf("unexpected identity: %s %s", health.NodeID, health.Version)
		}
	})

	t.Run("broken storage is unhealthy", func(t *testing.T) {
		hc := NewHealthChecker("node-1", "v1")
		hc.SetStorage(brokenStore{testutil.NewMemoryStore()})
		hc.SetSinks([]eventbus.Sink{&fakeSink{health: eventbus.HealthStatus{Status: "unhealthy"}}})

		health := hc.GetDetailedHealth(ctx)
		if health.Status != StatusUnhealthy {
			t.Errorf("status = %q, want unhealthy", health.Status)
		}
		if health.Storage.Message != "pebble: closed" {
			t.Errorf("unexpected storage message: %q", health.Storage.Message)
		}
	})

	t.Run("empty storage is healthy", func(t *testing.T) {
		hc := NewHealthChecker("", "")
		hc.SetStorage(testutil.NewMemoryStore())

		health := hc.GetDetailedHealth(ctx)
		if health.Status != StatusHealthy {
			t.Errorf("status = %q, want healthy", health.Status)
		}
	})
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, &ServerOptions{Status: staticStatus{healthyStatus()}})

	rec := get(t, s, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st syncer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if st.CurrentBlock != 120 || st.NetworkBlock != 125 || !st.IsHealthy {
		t.Errorf("unexpected status: %+v", st)
	}

	bare := newTestServer(t, nil)
	if rec := get(t, bare, "/status"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a status provider, got %d", rec.Code)
	}
}

func TestGraphQLRoute(t *testing.T) {
	s := newTestServer(t, &ServerOptions{Status: staticStatus{healthyStatus()}})

	body := strings.NewReader(`{"query":"{ block(number: \"120\") { id } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "id-120") {
		t.Errorf("expected block id in response, got %s", rec.Body.String())
	}
}

func TestObserversEndpoint(t *testing.T) {
	registry := observer.NewRegistry(observer.Config{})
	if err := registry.Register("audit", observer.MatchAny(), func(ctx context.Context, tx types.ClassifiedTransaction, b types.BlockContext) error {
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(registry.Stop)

	s := newTestServer(t, &ServerOptions{Observers: registry})
	rec := get(t, s, "/observers")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats []observer.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "audit" {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if rec := get(t, newTestServer(t, nil), "/observers"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without registry, got %d", rec.Code)
	}
}

func TestSubscribersEndpoint(t *testing.T) {
	bus := events.NewEventBus(16, 16)
	go bus.Run()
	t.Cleanup(bus.Stop)

	bus.Subscribe("dashboard", []events.EventType{events.EventTypeBlock}, nil, 1)

	s := newTestServer(t, &ServerOptions{EventBus: bus})
	rec := get(t, s, "/subscribers")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SubscribersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.TotalCount != 1 || resp.Subscribers[0].ID != "dashboard" {
		t.Errorf("unexpected subscribers: %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "indexer", Name: "test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := newTestServer(t, &ServerOptions{Gatherer: reg})
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "indexer_test_total 1") {
		t.Errorf("expected counter in output, got %s", rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://explorer.example"}
	s, err := NewServer(cfg, zap.NewNop(), testutil.NewMemoryStore(), &ServerOptions{Gatherer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://explorer.example")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://explorer.example" {
		t.Errorf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin should get no CORS header, got %q", got)
	}
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 18931
	s, err := NewServer(cfg, zap.NewNop(), testutil.NewMemoryStore(), &ServerOptions{Gatherer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://127.0.0.1:18931/health/live")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() returned %v", err)
	}
}
