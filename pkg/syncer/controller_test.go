package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/0xmhha/tron-indexer-go/internal/testutil"
	"github.com/0xmhha/tron-indexer-go/pkg/fetch"
	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

type harness struct {
	chain  *testutil.FakeChain
	store  *testutil.MemoryStore
	clock  *clock.TestClock
	ticker *ticker.Force
	ctrl   *Controller
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartHeight = 1
	return cfg
}

func newHarness(t *testing.T, cfg Config, head uint64, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		chain:  testutil.NewFakeChain(head),
		store:  testutil.NewMemoryStore(),
		clock:  clock.NewTestClock(testutil.GenesisTime.Add(time.Hour)),
		ticker: ticker.NewForce(time.Hour),
	}
	p, err := fetch.NewPipeline(h.chain, h.store, nil, fetch.Config{Clock: h.clock})
	require.NoError(t, err)

	opts = append([]Option{WithClock(h.clock), WithTicker(h.ticker), WithLogger(zap.NewNop())}, opts...)
	h.ctrl, err = New(cfg, h.chain, p, h.store, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) seed(t *testing.T, state types.SyncState) {
	t.Helper()
	require.NoError(t, h.store.PutSyncState(context.Background(), &state))
}

func (h *harness) cycle(t *testing.T) CycleReport {
	t.Helper()
	report, err := h.ctrl.RunCycle(context.Background())
	require.NoError(t, err)
	return report
}

func blocks(report CycleReport) []uint64 {
	out := make([]uint64, 0, len(report.Attempts))
	for _, a := range report.Attempts {
		out = append(out, a.Block)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero backfill cap", func(c *Config) { c.BackfillCap = 0 }},
		{"zero backfill health threshold", func(c *Config) { c.BackfillHealthThreshold = 0 }},
		{"zero lag threshold", func(c *Config) { c.HealthLagThreshold = 0 }},
		{"zero blocks per cycle", func(c *Config) { c.MaxBlocksPerCycle = 0 }},
		{"tiny window", func(c *Config) { c.WindowSize = 1 }},
		{"unknown policy", func(c *Config) { c.CatchUpPolicy = "newest_first" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadInitializesCursor(t *testing.T) {
	t.Run("from start height", func(t *testing.T) {
		cfg := testConfig()
		cfg.StartHeight = 100
		h := newHarness(t, cfg, 500)

		require.NoError(t, h.ctrl.Load(context.Background()))
		assert.Equal(t, uint64(99), h.ctrl.State().Cursor.BlockNumber)

		stored, err := h.store.GetSyncState(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(99), stored.Cursor.BlockNumber)
	})

	t.Run("from head", func(t *testing.T) {
		cfg := testConfig()
		cfg.StartHeight = 0
		h := newHarness(t, cfg, 500)

		require.NoError(t, h.ctrl.Load(context.Background()))
		assert.Equal(t, uint64(499), h.ctrl.State().Cursor.BlockNumber)
	})

	t.Run("existing state", func(t *testing.T) {
		h := newHarness(t, testConfig(), 500)
		h.seed(t, types.SyncState{Cursor: types.Cursor{BlockNumber: 321}})

		require.NoError(t, h.ctrl.Load(context.Background()))
		assert.Equal(t, uint64(321), h.ctrl.State().Cursor.BlockNumber)
		assert.Equal(t, 1, h.store.StateWrites)
	})
}

func TestLiveCyclesAdvanceCursor(t *testing.T) {
	cfg := testConfig()
	cfg.StartHeight = 10
	h := newHarness(t, cfg, 12)

	var last uint64
	for _, want := range []uint64{10, 11, 12} {
		report := h.cycle(t)
		assert.Equal(t, PhaseLiveAhead, report.Mode)
		assert.Equal(t, []uint64{want}, blocks(report))

		cursor := h.ctrl.State().Cursor.BlockNumber
		assert.GreaterOrEqual(t, cursor, last)
		assert.Equal(t, want, cursor)
		last = cursor
	}

	report := h.cycle(t)
	assert.Empty(t, report.Attempts)
	assert.Equal(t, uint64(12), h.ctrl.State().Cursor.BlockNumber)
	assert.Equal(t, 3, h.store.BlockCount())

	meta := h.ctrl.State().Meta
	assert.Equal(t, uint64(12), meta.LastNetworkHeight)
	assert.Equal(t, h.clock.Now(), meta.LastProcessedAt)
	assert.NotEmpty(t, meta.LastProcessedBlockID)
	assert.Equal(t, PhaseIdle, h.ctrl.Status().Phase)
}

func TestCatchUpProcessesCycleLimitWithoutRepolling(t *testing.T) {
	cfg := testConfig()
	cfg.CatchUpThreshold = 100
	cfg.MaxBlocksPerCycle = 10
	h := newHarness(t, cfg, 300)

	report := h.cycle(t)
	assert.Equal(t, PhaseCatchingUp, report.Mode)
	assert.Equal(t, uint64(300), report.Head)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, blocks(report))
	assert.Equal(t, 10, report.Succeeded())
	assert.Equal(t, uint64(10), h.ctrl.State().Cursor.BlockNumber)
}

func TestFailedBlockIsBackfilled(t *testing.T) {
	cfg := testConfig()
	cfg.StartHeight = 10
	h := newHarness(t, cfg, 20)
	h.chain.FailBlock(10, 1)

	report := h.cycle(t)
	require.Len(t, report.Attempts, 1)
	assert.False(t, report.Attempts[0].Success)
	assert.NotEmpty(t, report.Attempts[0].Error)

	state := h.ctrl.State()
	assert.Equal(t, uint64(9), state.Cursor.BlockNumber)
	assert.Equal(t, []uint64{10}, state.Meta.BackfillQueue)
	assert.Contains(t, state.Meta.LastError, "block 10")
	assert.Equal(t, h.clock.Now(), state.Meta.LastErrorAt)

	// The next sequential block skips the tracked gap, then the backfill entry is retried
	report = h.cycle(t)
	assert.Equal(t, []uint64{11, 10}, blocks(report))
	assert.Equal(t, 2, report.Succeeded())

	state = h.ctrl.State()
	assert.Equal(t, uint64(11), state.Cursor.BlockNumber)
	assert.Empty(t, state.Meta.BackfillQueue)
	assert.Equal(t, 2, h.chain.Calls(10))
}

func TestBackfillCapEvictsOldest(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	cfg := testConfig()
	cfg.StartHeight = 10
	cfg.BackfillCap = 3
	cfg.CatchUpThreshold = 0
	cfg.CatchUpPolicy = PolicySequentialFirst
	h := newHarness(t, cfg, 14, WithLogger(zap.New(core)))
	for n := uint64(10); n <= 14; n++ {
		h.chain.FailBlock(n, -1)
	}

	report := h.cycle(t)
	assert.Equal(t, []uint64{10, 11, 12, 13, 14}, blocks(report))
	assert.Equal(t, 0, report.Succeeded())

	state := h.ctrl.State()
	assert.Equal(t, []uint64{12, 13, 14}, state.Meta.BackfillQueue)
	assert.Equal(t, uint64(9), state.Cursor.BlockNumber)

	evictions := logs.FilterMessageSnippet("Backfill queue full")
	require.Equal(t, 2, evictions.Len())
	assert.Equal(t, uint64(10), evictions.All()[0].ContextMap()["dropped"])
}

func TestCatchUpPolicies(t *testing.T) {
	tests := []struct {
		policy CatchUpPolicy
		want   uint64
	}{
		{PolicyBackfillFirst, 5},
		{PolicySequentialFirst, 10},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := testConfig()
			cfg.CatchUpThreshold = 100
			cfg.MaxBlocksPerCycle = 1
			cfg.CatchUpPolicy = tt.policy
			h := newHarness(t, cfg, 200)
			h.seed(t, types.SyncState{
				Cursor: types.Cursor{BlockNumber: 9},
				Meta:   types.SyncMeta{BackfillQueue: []uint64{5}},
			})

			report := h.cycle(t)
			assert.Equal(t, []uint64{tt.want}, blocks(report))
		})
	}
}

func TestPersistFailureKeepsState(t *testing.T) {
	h := newHarness(t, testConfig(), 5)
	require.NoError(t, h.ctrl.Load(context.Background()))
	before := h.ctrl.State()

	h.store.FailPutState = errors.New("disk full")
	report, err := h.ctrl.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, report.Attempts, 1)
	assert.False(t, report.Attempts[0].Success)
	assert.Equal(t, before, h.ctrl.State())

	// The block is reprocessed once the store recovers
	h.store.FailPutState = nil
	report = h.cycle(t)
	assert.Equal(t, []uint64{1}, blocks(report))
	assert.Equal(t, uint64(1), h.ctrl.State().Cursor.BlockNumber)
}

type cancellingProcessor struct {
	cancel context.CancelFunc
}

func (p *cancellingProcessor) ProcessOneBlock(ctx context.Context, n uint64) fetch.Result {
	p.cancel()
	return fetch.Result{Err: ctx.Err()}
}

func TestCancelledCycleRecordsNoFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain := testutil.NewFakeChain(10)
	store := testutil.NewMemoryStore()
	ctrl, err := New(testConfig(), chain, &cancellingProcessor{cancel: cancel}, store,
		WithTicker(ticker.NewForce(time.Hour)))
	require.NoError(t, err)

	_, err = ctrl.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	state := ctrl.State()
	assert.Empty(t, state.Meta.BackfillQueue)
	assert.Empty(t, state.Meta.LastError)
	assert.Equal(t, uint64(0), state.Cursor.BlockNumber)
}

func TestHeadFailureSurfacesInStatus(t *testing.T) {
	h := newHarness(t, testConfig(), 10)
	h.chain.HeadErr = errors.New("connection refused")

	_, err := h.ctrl.RunCycle(context.Background())
	require.Error(t, err)

	st := h.ctrl.Status()
	assert.Contains(t, st.LastError, "connection refused")
	assert.Equal(t, h.clock.Now(), st.LastErrorAt)
	assert.Equal(t, uint64(0), h.ctrl.State().Cursor.BlockNumber)
}

func TestHealthDerivation(t *testing.T) {
	tests := []struct {
		name     string
		cursor   uint64
		backfill []uint64
		healthy  bool
		lag      uint64
	}{
		{"far behind", 850, nil, false, 150},
		{"close to head", 960, nil, true, 40},
		{"backlog", 960, make([]uint64, 50), false, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.HealthLagThreshold = 100
			cfg.BackfillHealthThreshold = 50
			h := newHarness(t, cfg, 1000)
			h.seed(t, types.SyncState{
				Cursor: types.Cursor{BlockNumber: tt.cursor},
				Meta: types.SyncMeta{
					BackfillQueue:     tt.backfill,
					LastNetworkHeight: 1000,
				},
			})
			require.NoError(t, h.ctrl.Load(context.Background()))

			st := h.ctrl.Status()
			assert.Equal(t, uint64(1000), st.NetworkBlock)
			assert.Equal(t, tt.lag, st.Lag)
			assert.Equal(t, tt.healthy, st.IsHealthy)
		})
	}
}

func TestStatusBeforeLoadIsUnhealthy(t *testing.T) {
	h := newHarness(t, testConfig(), 10)
	st := h.ctrl.Status()
	assert.False(t, st.IsHealthy)
	assert.Nil(t, st.EstimatedCatchUpTime)
	assert.False(t, st.IsKeepingUp)
}

func TestStatusRates(t *testing.T) {
	cfg := testConfig()
	cfg.CatchUpThreshold = 2000
	h := newHarness(t, cfg, 1000)

	for i := 0; i < 11; i++ {
		h.clock.SetTime(h.clock.Now().Add(time.Second))
		h.cycle(t)
	}

	st := h.ctrl.Status()
	assert.Equal(t, uint64(11), st.CurrentBlock)
	assert.Equal(t, uint64(989), st.Lag)
	// 10 intervals of 1s locally, 10 blocks over 30s of chain time
	assert.InDelta(t, 60.0, st.ProcessingBlocksPerMinute, 0.001)
	assert.InDelta(t, 20.0, st.NetworkBlocksPerMinute, 0.001)
	assert.True(t, st.IsKeepingUp)
	// processed at genesis+1h+i s, produced at genesis+3i s
	assert.Equal(t, 3588*time.Second, st.AverageDelay)

	require.NotNil(t, st.EstimatedCatchUpTime)
	want := time.Duration(989.0 / 40.0 * float64(time.Minute))
	assert.InDelta(t, float64(want), float64(*st.EstimatedCatchUpTime), float64(time.Millisecond))
}

func TestETA(t *testing.T) {
	tests := []struct {
		name string
		r    rates
		lag  uint64
		want *time.Duration
	}{
		{"outpacing network", rates{processingPerMinute: 30, networkPerMinute: 20}, 100, durationPtr(10 * time.Minute)},
		{"slower than network", rates{processingPerMinute: 10, networkPerMinute: 20}, 100, durationPtr(10 * time.Minute)},
		{"no throughput", rates{}, 100, nil},
		{"caught up", rates{processingPerMinute: 30, networkPerMinute: 20}, 0, durationPtr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.eta(tt.lag))
		})
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestOperatorBackfill(t *testing.T) {
	cfg := testConfig()
	cfg.BackfillCap = 10
	h := newHarness(t, cfg, 100)
	ctx := context.Background()

	added, err := h.ctrl.Backfill(ctx, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = h.ctrl.Backfill(ctx, 6, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []uint64{5, 6, 7, 8}, h.ctrl.State().Meta.BackfillQueue)

	_, err = h.ctrl.Backfill(ctx, 9, 8)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = h.ctrl.Backfill(ctx, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)

	stored, err := h.store.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6, 7, 8}, stored.Meta.BackfillQueue)
}

func TestRunDrainsCatchUpThenFollowsTicks(t *testing.T) {
	cfg := testConfig()
	cfg.CatchUpThreshold = 5
	cfg.MaxBlocksPerCycle = 5
	h := newHarness(t, cfg, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	// catching-up cycles run back-to-back until lag is within the threshold,
	// then one live cycle takes the next block
	require.Eventually(t, func() bool {
		return h.ctrl.State().Cursor.BlockNumber == 26
	}, 2*time.Second, 5*time.Millisecond)

	h.ticker.Force <- time.Now()
	require.Eventually(t, func() bool {
		return h.ctrl.State().Cursor.BlockNumber == 27
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
