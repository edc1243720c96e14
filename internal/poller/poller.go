package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/model"
)

// SymbolSource provides the symbols to poll.
type SymbolSource interface {
	PollSymbols() []string
}

// StaticSymbols is a fixed SymbolSource.
type StaticSymbols []string

func (s StaticSymbols) PollSymbols() []string { return s }

// SymbolSourceFunc is a function adapter for SymbolSource.
type SymbolSourceFunc func() []string

func (f SymbolSourceFunc) PollSymbols() []string { return f() }

// OrderBookFetcher fetches REST order books. *api.Client implements it.
type OrderBookFetcher interface {
	GetOrderBook(ctx context.Context, symbol string, depth api.OrderBookDepth) (*model.OrderBook, error)
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(snapshot model.OrderbookSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(model.OrderbookSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s model.OrderbookSnapshot) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration      // Poll interval (default: 1m)
	Concurrency int                // Max concurrent requests (default: 4)
	Timeout     time.Duration      // Per-request timeout (default: 10s)
	Depth       api.OrderBookDepth // Depth20, Depth100 or DepthFull (default: Depth100)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Depth:       api.Depth100,
	}
}

// Stats reports poller counters.
type Stats struct {
	Cycles  int64
	Fetched int64
	Errors  int64
}

// Poller periodically fetches order book snapshots via the REST API.
type Poller struct {
	cfg     Config
	client  OrderBookFetcher
	symbols SymbolSource
	handler SnapshotHandler
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles  atomic.Int64
	fetched atomic.Int64
	errors  atomic.Int64
}

// New creates a new Poller.
func New(cfg Config, client OrderBookFetcher, symbols SymbolSource, handler SnapshotHandler, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		symbols: symbols,
		handler: handler,
		metrics: m,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"depth", p.cfg.Depth.String(),
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:  p.cycles.Load(),
		Fetched: p.fetched.Load(),
		Errors:  p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches order books for all symbols with bounded concurrency.
func (p *Poller) pollAll() {
	start := time.Now()

	symbols := p.symbols.PollSymbols()
	if len(symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}
	p.cycles.Add(1)

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, symbol := range symbols {
		if err := sem.Acquire(p.ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := p.pollSymbol(symbol); err != nil {
				p.logger.Warn("failed to poll order book",
					"symbol", symbol,
					"error", err,
				)
				failed.Add(1)
				return
			}
			fetched.Add(1)
		}(symbol)
	}

	wg.Wait()

	p.fetched.Add(fetched.Load())
	p.errors.Add(failed.Load())
	p.logger.Info("poll cycle complete",
		"symbols", len(symbols),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollSymbol fetches and handles one symbol's order book.
func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	ob, err := p.client.GetOrderBook(ctx, symbol, p.cfg.Depth)
	if err != nil {
		p.metrics.Snapshot("fetch_error")
		return err
	}

	snapshot, err := api.OrderBookToSnapshot(symbol, ob, api.NowMicro())
	if err != nil {
		p.metrics.Snapshot("invalid")
		return fmt.Errorf("convert %s: %w", symbol, err)
	}

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(snapshot); err != nil {
			p.metrics.Snapshot("handler_error")
			return err
		}
	}

	p.metrics.Snapshot("ok")
	return nil
}
