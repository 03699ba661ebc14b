package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/config"
	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/internal/logger"
	"github.com/0xmhha/tron-indexer-go/pkg/api"
	"github.com/0xmhha/tron-indexer-go/pkg/classify"
	"github.com/0xmhha/tron-indexer-go/pkg/client"
	"github.com/0xmhha/tron-indexer-go/pkg/eventbus"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/fetch"
	"github.com/0xmhha/tron-indexer-go/pkg/notifications"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/price"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/syncer"
)

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "start indexing and serve the API",
	Action: runIndexer,
}

// indexer holds the wired components of one process
type indexer struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry

	client    *client.Client
	store     *storage.PebbleStorage
	bus       *events.EventBus
	observers *observer.Registry
	sinks     []eventbus.Sink
	pipeline  *fetch.Pipeline
	syncer    *syncer.Controller
}

func runIndexer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("network", cfg.RPC.Network),
		zap.String("rpc_endpoint", cfg.RPC.ResolvedEndpoint()),
		zap.String("db_path", cfg.Database.Path),
		zap.Uint64("start_height", cfg.Sync.StartHeight),
		zap.String("catch_up_policy", cfg.Sync.CatchUpPolicy),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ix, err := newIndexer(cfg, log)
	if err != nil {
		return err
	}
	defer ix.close()

	// Sinks are registered before the registry starts
	if err := ix.connectSinks(ctx); err != nil {
		return err
	}
	ix.observers.Start()

	var wg sync.WaitGroup
	if len(ix.sinks) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eventbus.ForwardBlocks(ctx, ix.bus, ix.sinks, log)
		}()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = ix.newAPIServer()
		if err != nil {
			return err
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
				cancel()
			}
		}()
	}

	log.Info("Indexer initialized, starting sync")
	err = ix.syncer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Sync controller stopped with error", zap.Error(err))
	}

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer shutdownCancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	// Let observers finish what ingestion already handed them
	if err := ix.observers.Flush(shutdownCtx); err != nil {
		log.Warn("Observers did not drain before shutdown", zap.Error(err))
	}
	wg.Wait()

	st := ix.syncer.Status()
	log.Info("Indexer stopped",
		zap.Uint64("current_block", st.CurrentBlock),
		zap.Uint64("network_block", st.NetworkBlock),
		zap.Int("backfill_queue", st.BackfillQueueSize),
	)
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		NodeID: cfg.Node.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// newIndexer wires storage, the chain client, the classifier context, the
// observer registry and the sync controller. Nothing is started.
func newIndexer(cfg *config.Config, log *zap.Logger) (*indexer, error) {
	ix := &indexer{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	ix.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	ix.store, err = openStorage(cfg, log, false)
	if err != nil {
		return nil, err
	}

	retry := client.DefaultRetryPolicy().WithMaxRetries(cfg.RPC.MaxRetries)
	if cfg.RPC.RetryDelay > 0 {
		retry.InitialInterval = cfg.RPC.RetryDelay
	}
	ix.client, err = client.NewClient(&client.Config{
		Endpoint:     cfg.RPC.ResolvedEndpoint(),
		APIKeys:      cfg.RPC.APIKeys,
		Timeout:      cfg.RPC.Timeout,
		MinInterval:  cfg.RPC.MinInterval,
		MaxQueueSize: cfg.RPC.MaxQueueSize,
		Retry:        retry,
		MethodRetry:  client.MethodRetryPolicies(retry),
		Logger:       logger.WithComponent(log, "client"),
		Registerer:   ix.registry,
	})
	if err != nil {
		ix.close()
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	ix.bus = events.NewEventBus(cfg.EventBus.PublishBufferSize, cfg.EventBus.HistorySize)
	ix.bus.SetMetrics(events.NewMetrics(ix.registry))
	go ix.bus.Run()

	ix.observers = observer.NewRegistry(observer.Config{
		MailboxSize:    cfg.Observer.MailboxSize,
		HandlerTimeout: cfg.Observer.HandlerTimeout,
		Logger:         log,
		Registerer:     ix.registry,
	})
	// Live subscribers see every record that carries a topic
	if err := ix.observers.Register("websocket", observer.MatchAny(), ix.bus.HandleTransaction); err != nil {
		ix.close()
		return nil, err
	}

	targets, err := notifications.NewTargets(cfg.Notifications, log)
	if err == nil {
		err = notifications.Register(ix.observers, targets)
	}
	if err != nil {
		ix.close()
		return nil, fmt.Errorf("failed to set up notifications: %w", err)
	}

	graph, err := classify.NewGraph(cfg.Classifier.GraphSize, cfg.Classifier.GraphMaxNeighbors)
	if err != nil {
		ix.close()
		return nil, fmt.Errorf("failed to create relationship graph: %w", err)
	}

	oracle, err := newOracle(cfg.Classifier, log)
	if err != nil {
		ix.close()
		return nil, err
	}

	ix.pipeline, err = fetch.NewPipeline(ix.client, ix.store, ix.observers, fetch.Config{
		Graph:        graph,
		Oracle:       oracle,
		EventBus:     ix.bus,
		RelatedLimit: cfg.Classifier.RelatedLimit,
		Logger:       log,
		Registerer:   ix.registry,
	})
	if err != nil {
		ix.close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	ix.syncer, err = syncer.New(syncConfig(cfg.Sync), ix.client, ix.pipeline, ix.store,
		syncer.WithLogger(log),
		syncer.WithRegisterer(ix.registry),
	)
	if err != nil {
		ix.close()
		return nil, err
	}

	return ix, nil
}

// connectSinks creates the enabled remote sinks, connects them and
// registers each as an observer
func (ix *indexer) connectSinks(ctx context.Context) error {
	factory := eventbus.NewFactory(ix.cfg.EventBus, ix.cfg.Node.ID, ix.log)
	sinks, err := factory.Create()
	if err != nil {
		return fmt.Errorf("failed to create event sinks: %w", err)
	}
	if len(sinks) == 0 {
		return nil
	}

	if err := eventbus.Connect(ctx, sinks); err != nil {
		return fmt.Errorf("failed to connect event sinks: %w", err)
	}
	ix.sinks = sinks

	if err := eventbus.Register(ix.observers, sinks); err != nil {
		return fmt.Errorf("failed to register event sinks: %w", err)
	}
	for _, s := range sinks {
		ix.log.Info("Event sink connected", zap.String("type", string(s.Type())))
	}
	return nil
}

func (ix *indexer) newAPIServer() (*api.Server, error) {
	health := api.NewHealthChecker(ix.cfg.Node.ID, version)
	health.SetStatusProvider(ix.syncer)
	health.SetEventBus(ix.bus)
	health.SetSinks(ix.sinks)
	health.SetStorage(ix.store)
	health.SetObservers(ix.observers)

	apiCfg := api.DefaultConfig()
	apiCfg.Host = ix.cfg.API.Host
	apiCfg.Port = ix.cfg.API.Port
	apiCfg.EnableGraphQL = ix.cfg.API.EnableGraphQL
	apiCfg.EnableWebSocket = ix.cfg.API.EnableWebSocket
	apiCfg.EnableRateLimit = ix.cfg.API.EnableRateLimit
	apiCfg.RateLimitPerSecond = ix.cfg.API.RateLimitPerSecond
	apiCfg.RateLimitBurst = ix.cfg.API.RateLimitBurst
	if len(ix.cfg.API.AllowedOrigins) > 0 {
		apiCfg.AllowedOrigins = ix.cfg.API.AllowedOrigins
	}

	server, err := api.NewServer(apiCfg, ix.log, ix.store, &api.ServerOptions{
		Status:    ix.syncer,
		EventBus:  ix.bus,
		Observers: ix.observers,
		Health:    health,
		Gatherer:  ix.registry,
		Version:   version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	return server, nil
}

// close stops components in reverse dependency order
func (ix *indexer) close() {
	if ix.observers != nil {
		ix.observers.Stop()
	}
	if len(ix.sinks) > 0 {
		if err := eventbus.Close(ix.sinks); err != nil {
			ix.log.Warn("Failed to close event sinks", zap.Error(err))
		}
	}
	if ix.bus != nil {
		ix.bus.Stop()
	}
	if ix.client != nil {
		ix.client.Close()
	}
	if ix.store != nil {
		if err := ix.store.Close(); err != nil {
			ix.log.Error("Failed to close storage", zap.Error(err))
		}
	}
}

func openStorage(cfg *config.Config, log *zap.Logger, readOnly bool) (*storage.PebbleStorage, error) {
	storageConfig := storage.DefaultConfig(cfg.Database.Path)
	storageConfig.ReadOnly = readOnly || cfg.Database.ReadOnly
	if cfg.Database.Cache > 0 {
		storageConfig.Cache = cfg.Database.Cache
	}

	store, err := storage.NewPebbleStorage(storageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store.SetLogger(log)

	log.Info("Storage initialized",
		zap.String("path", cfg.Database.Path),
		zap.Bool("read_only", storageConfig.ReadOnly),
	)
	return store, nil
}

// newOracle picks the price source: an HTTP endpoint behind a TTL cache,
// a fixed price, or none
func newOracle(cfg config.ClassifierConfig, log *zap.Logger) (price.Oracle, error) {
	switch {
	case cfg.PriceURL != "":
		httpOracle, err := price.NewHTTPOracle(cfg.PriceURL, cfg.PricePath, constants.DefaultPriceTimeout, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create price oracle: %w", err)
		}
		return price.NewCachedOracle(httpOracle, cfg.PriceTTL, nil, log), nil
	case cfg.PriceUSD > 0:
		return price.NewStaticOracle(cfg.PriceUSD), nil
	default:
		return price.NewNoOpOracle(), nil
	}
}

func syncConfig(c config.SyncConfig) syncer.Config {
	return syncer.Config{
		StartHeight:             c.StartHeight,
		PollInterval:            c.PollInterval,
		CatchUpThreshold:        c.CatchUpThreshold,
		HealthLagThreshold:      c.HealthLagThreshold,
		BackfillCap:             c.BackfillCap,
		BackfillHealthThreshold: c.BackfillHealthThreshold,
		CatchUpPolicy:           syncer.CatchUpPolicy(c.CatchUpPolicy),
		MaxBlocksPerCycle:       c.MaxBlocksPerCycle,
		WindowSize:              c.WindowSize,
	}
}
