package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// SymbolFetcher lists the venue's symbols. *api.Client implements it.
type SymbolFetcher interface {
	GetSymbols(ctx context.Context, market string) ([]model.SymbolInfo, error)
}

// Config holds Symbol Registry configuration.
type Config struct {
	Market             string // Restrict the sync to one market; empty for all
	ReconcileInterval  time.Duration
	InitialLoadTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval:  10 * time.Minute,
		InitialLoadTimeout: time.Minute,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg    Config
	rest   SymbolFetcher
	logger *slog.Logger

	state *registryState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new Symbol Registry.
func NewRegistry(cfg Config, rest SymbolFetcher, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = d.ReconcileInterval
	}
	if cfg.InitialLoadTimeout <= 0 {
		cfg.InitialLoadTimeout = d.InitialLoadTimeout
	}

	return &registryImpl{
		cfg:    cfg,
		rest:   rest,
		logger: logger,
		state:  newState(),
	}
}

// Start performs the initial sync and starts background reconciliation.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	loadCtx, cancel := context.WithTimeout(r.ctx, r.cfg.InitialLoadTimeout)
	err := r.initialSync(loadCtx)
	cancel()
	if err != nil {
		r.cancel()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconciliationLoop(r.ctx)
	}()

	r.logger.Info("symbol registry started",
		"tradable_symbols", len(r.state.enabled("")),
		"market", r.cfg.Market,
	)
	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("symbol registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *registryImpl) Lookup(symbol string) (model.Symbol, bool) {
	return r.state.lookup(symbol)
}

func (r *registryImpl) EnabledSymbols(market string) []model.Symbol {
	return r.state.enabled(market)
}

func (r *registryImpl) Tradable(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if r.state.isTradable(n) {
			out = append(out, n)
		}
	}
	return out
}

// ValidateTopics rejects topics naming symbols the venue does not list.
// Topics without symbol parameters, "all" and currency parameters of
// account topics are not checked.
func (r *registryImpl) ValidateTopics(topics []router.Topic) error {
	for _, t := range topics {
		for _, sym := range topicSymbols(t) {
			if _, ok := r.state.lookup(sym); !ok {
				return fmt.Errorf("topic %s: unknown symbol %q", t, sym)
			}
		}
	}
	return nil
}

func (r *registryImpl) SubscribeChanges() <-chan SymbolChange {
	return r.state.changes
}

// topicSymbols returns the symbol parameters of market data topics.
func topicSymbols(t router.Topic) []string {
	switch t.Kind {
	case router.TopicTicker, router.TopicOrderBook, router.TopicOrderBookDepth5,
		router.TopicOrderBookDepth50, router.TopicMatch, router.TopicFullMatch,
		router.TopicLevel3Public, router.TopicLevel3Private:
		return t.Params
	}
	return nil
}
