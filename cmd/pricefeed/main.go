package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/aggregator"
	"github.com/feedcore/pricefeed-go/pkg/feed/health"
	"github.com/feedcore/pricefeed-go/pkg/feed/history"
	"github.com/feedcore/pricefeed-go/pkg/feed/manager"
	"github.com/feedcore/pricefeed-go/pkg/feed/quality"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
	"github.com/feedcore/pricefeed-go/pkg/server/api"
	"github.com/feedcore/pricefeed-go/pkg/version"

	// Import adapters to register them
	_ "github.com/feedcore/pricefeed-go/pkg/feed/sources/httpjson"
	_ "github.com/feedcore/pricefeed-go/pkg/feed/sources/simulated"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env", "", "Optional .env file to load before reading config")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("pricefeed-go version %s\n", version.Version)
		os.Exit(0)
	}

	// An explicit env file must load; the default .env is best effort.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting pricefeed-go", "version", version.Version,
		"adapters", len(cfg.Adapters), "feeds", len(cfg.Feeds))

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
			cancel()
		}
	}

	// Give the run goroutine time to unwind its shutdown hooks.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	select {
	case <-errChan:
	case <-shutdownCtx.Done():
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}

	hist := history.NewStore(history.DefaultCapacity)
	scorer := quality.NewScorer(cfg.Scoring, cfg.Validation, hist, logger.With("quality"))
	agg := aggregator.New(scorer, cfg.Fetch.AggregationTimeout.ToDuration(), logger.With("aggregator"))
	mgr := manager.New(cfg, adapters, scorer, agg, logger.With("manager"))

	monitor := health.NewMonitor(mgr,
		cfg.Health.Interval.ToDuration(),
		cfg.Health.PingTimeout.ToDuration(),
		logger.With("health"))
	monitor.Start(ctx)

	if err := mgr.StartRefresh(); err != nil {
		monitor.Stop()
		return fmt.Errorf("failed to start refresh schedules: %w", err)
	}

	server := api.NewServer(cfg.Server.HTTP.Addr, mgr, monitor, logger.With("api"))

	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, logger.With("websocket"))
		server.SetWebSocketServer(wsServer)
		mgr.Subscribe(wsServer.Updates())

		go func() {
			if err := wsServer.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Stop(shutdownCtx)
		if wsServer != nil {
			wsServer.Stop()
		}
		monitor.Stop()
		mgr.Cleanup()
	}()

	return server.Start()
}

// buildAdapters constructs every enabled adapter from the registry, keyed by
// adapter name. A single broken adapter is skipped, not fatal; having none at
// all is.
func buildAdapters(cfg *config.Config, logger *logging.Logger) (map[string]sources.Adapter, error) {
	adapters := make(map[string]sources.Adapter)

	for _, adapterCfg := range cfg.Adapters {
		if !adapterCfg.Enabled {
			continue
		}

		logger.Info("Initializing adapter", "type", adapterCfg.Type, "name", adapterCfg.Name)

		// Hand the shared logger down so adapters don't create their own
		if adapterCfg.Config == nil {
			adapterCfg.Config = make(map[string]interface{})
		}
		adapterCfg.Config["logger"] = logger

		adapter, err := sources.Create(adapterCfg.Type, adapterCfg.Name, adapterCfg.Config)
		if err != nil {
			logger.Warn("Failed to create adapter", "type", adapterCfg.Type,
				"name", adapterCfg.Name, "error", err.Error())
			continue
		}
		adapters[adapter.Name()] = adapter
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters available")
	}
	return adapters, nil
}
