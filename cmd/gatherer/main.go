package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kucoin-data/internal/config"
	"github.com/rickgao/kucoin-data/internal/connection"
	"github.com/rickgao/kucoin-data/internal/database"
	"github.com/rickgao/kucoin-data/internal/logging"
	"github.com/rickgao/kucoin-data/internal/market"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/poller"
	"github.com/rickgao/kucoin-data/internal/router"
	"github.com/rickgao/kucoin-data/internal/version"
	"github.com/rickgao/kucoin-data/internal/writer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gatherer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional env file expanded into the config")
	migrate := flag.Bool("migrate", true, "create tables on startup")
	timescale := flag.Bool("timescale", true, "convert tables to hypertables when migrating")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"build", version.Get(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Metrics.Namespace)

	creds, err := cfg.Credentials.Build()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	client := newAPIClient(cfg.API, creds, m, logger.With("component", "rest"))

	serverTime, err := client.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("reach REST API: %w", err)
	}
	logger.Info("REST API reachable",
		"url", cfg.API.RestURL,
		"clock_skew", time.Since(serverTime).Round(time.Millisecond),
		"authenticated", client.HasCredentials(),
	)

	// Database
	pool, err := database.Connect(ctx, cfg.Database.Timescale, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if *migrate {
		if err := database.Migrate(ctx, pool, *timescale); err != nil {
			return err
		}
		logger.Info("schema migrated", "timescale", *timescale)
	}

	// Symbol registry
	registry := market.NewRegistry(market.Config{
		Market:            cfg.Registry.Market,
		ReconcileInterval: cfg.Registry.SyncInterval,
	}, client, logger.With("component", "registry"))
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("symbol registry: %w", err)
	}
	defer stopWithTimeout(registry.Stop)

	publicTopics, err := cfg.Feed.PublicTopics()
	if err != nil {
		return err
	}
	privateTopics, err := cfg.Feed.PrivateTopicList()
	if err != nil {
		return err
	}
	if err := registry.ValidateTopics(append(append([]router.Topic(nil), publicTopics...), privateTopics...)); err != nil {
		return err
	}

	// Writers
	tickerBuf := router.NewGrowableBuffer[writer.TickerEvent](cfg.Writers.BufferSize)
	matchBuf := router.NewGrowableBuffer[writer.MatchEvent](cfg.Writers.BufferSize)
	snapshotBuf := router.NewGrowableBuffer[model.OrderbookSnapshot](cfg.Writers.BufferSize)

	wcfg := writerConfig(cfg.Writers)
	tickerWriter := writer.NewTickerWriter(wcfg, tickerBuf, pool, m, logger.With("component", "ticker_writer"))
	matchWriter := writer.NewMatchWriter(wcfg, matchBuf, pool, m, logger.With("component", "match_writer"))
	snapshotWriter := writer.NewSnapshotWriter(wcfg, snapshotBuf, pool, m, logger.With("component", "snapshot_writer"))

	type lifecycle interface {
		Start(context.Context) error
		Stop(context.Context) error
	}
	writers := []lifecycle{tickerWriter, matchWriter, snapshotWriter}
	for _, w := range writers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	// Writers stop after the feeds so everything buffered is flushed.
	defer func() {
		for _, w := range writers {
			stopWithTimeout(w.Stop)
		}
	}()

	sink := writer.NewEventSink(tickerBuf, matchBuf, snapshotBuf, logger.With("component", "sink"))

	// Feeds
	feeds := map[string]*connection.Supervisor{}
	if len(publicTopics) > 0 {
		feeds["public"] = connection.NewSupervisor(client, supervisorConfig(cfg.Feed, false, m),
			logger.With("component", "feed_public"))
	}
	if len(privateTopics) > 0 {
		if creds == nil {
			return errors.New("feed.private_topics requires credentials")
		}
		feeds["private"] = connection.NewSupervisor(client, supervisorConfig(cfg.Feed, true, m),
			logger.With("component", "feed_private"))
	}
	// No session is open yet, so these only record the desired set.
	for _, t := range publicTopics {
		if err := feeds["public"].Subscribe(ctx, t, false); err != nil {
			return err
		}
	}
	for _, t := range privateTopics {
		if err := feeds["private"].Subscribe(ctx, t, true); err != nil {
			return err
		}
	}

	// Poller
	var snapshotPoller *poller.Poller
	if cfg.Poller.Enabled {
		pcfg, err := pollerConfig(cfg.Poller)
		if err != nil {
			return err
		}
		symbols := poller.SymbolSourceFunc(func() []string {
			return registry.Tradable(cfg.Poller.Symbols)
		})
		snapshotPoller = poller.New(pcfg, client, symbols, sink, m, logger.With("component", "poller"))
	}

	// HTTP
	deps := healthDeps{
		db:       pool,
		registry: registry,
		feeds:    map[string]feedStatus{},
		writers: map[string]func() writer.WriterMetrics{
			"tickers":   tickerWriter.Stats,
			"trades":    matchWriter.Stats,
			"snapshots": snapshotWriter.Stats,
		},
		sink: sink,
	}
	for name, sup := range feeds {
		deps.feeds[name] = sup
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(deps, cfg.Metrics.Path, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	for name, sup := range feeds {
		if err := sup.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			if err := sink.Run(gctx, sup.Events()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if err := sup.Err(); err != nil {
				return fmt.Errorf("%s feed: %w", name, err)
			}
			return nil
		})
	}

	if snapshotPoller != nil {
		if err := snapshotPoller.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		watchSymbolChanges(gctx, registry, logger)
		return nil
	})

	logger.Info("gatherer running",
		"feeds", len(feeds),
		"public_topics", len(publicTopics),
		"private_topics", len(privateTopics),
		"poller", cfg.Poller.Enabled,
	)

	err = g.Wait()

	logger.Info("shutting down...")
	for _, sup := range feeds {
		stopWithTimeout(sup.Stop)
	}
	if snapshotPoller != nil {
		stopWithTimeout(snapshotPoller.Stop)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gatherer stopped")
	return nil
}

// watchSymbolChanges logs registry changes until ctx is done.
func watchSymbolChanges(ctx context.Context, registry market.Registry, logger *slog.Logger) {
	changes := registry.SubscribeChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-changes:
			logger.Info("symbol changed",
				"symbol", c.Symbol,
				"event", c.EventType,
				"trading", c.Trading,
			)
		}
	}
}

func stopWithTimeout(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("component stop failed", "error", err)
	}
}
