package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// fakeFetcher serves a mutable symbol list.
type fakeFetcher struct {
	mu      sync.Mutex
	symbols []model.SymbolInfo
	err     error
	markets []string
}

func (f *fakeFetcher) GetSymbols(ctx context.Context, market string) ([]model.SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, market)
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.SymbolInfo(nil), f.symbols...), nil
}

func (f *fakeFetcher) set(symbols ...model.SymbolInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = symbols
}

func info(name, market string, trading bool) model.SymbolInfo {
	return model.SymbolInfo{
		Symbol:         name,
		Name:           name,
		Market:         market,
		EnableTrading:  trading,
		PriceIncrement: "0.1",
		BaseIncrement:  "0.00000001",
	}
}

func TestState_UpsertAndLookup(t *testing.T) {
	s := newState()
	s.upsert(model.Symbol{Symbol: "BTC-USDT", Market: "USDS", EnableTrading: true})

	got, ok := s.lookup("BTC-USDT")
	if !ok {
		t.Fatal("symbol not found")
	}
	if got.Market != "USDS" || !got.EnableTrading {
		t.Errorf("symbol = %+v", got)
	}

	if _, ok := s.lookup("NOPE-USDT"); ok {
		t.Error("expected symbol not found")
	}
}

func TestState_Enabled(t *testing.T) {
	s := newState()
	for _, sym := range []model.Symbol{
		{Symbol: "ETH-USDT", Market: "USDS", EnableTrading: true},
		{Symbol: "BTC-USDT", Market: "USDS", EnableTrading: true},
		{Symbol: "ETH-BTC", Market: "BTC", EnableTrading: true},
		{Symbol: "OLD-USDT", Market: "USDS", EnableTrading: false},
	} {
		s.upsert(sym)
	}

	all := s.enabled("")
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].Symbol != "BTC-USDT" || all[1].Symbol != "ETH-BTC" || all[2].Symbol != "ETH-USDT" {
		t.Errorf("order = %v", all)
	}

	usds := s.enabled("USDS")
	if len(usds) != 2 {
		t.Errorf("len(USDS) = %d, want 2", len(usds))
	}
}

func TestState_UpsertTogglesTradable(t *testing.T) {
	s := newState()
	s.upsert(model.Symbol{Symbol: "BTC-USDT", EnableTrading: true})
	if !s.isTradable("BTC-USDT") {
		t.Fatal("expected tradable")
	}
	s.upsert(model.Symbol{Symbol: "BTC-USDT", EnableTrading: false})
	if s.isTradable("BTC-USDT") {
		t.Error("expected not tradable after update")
	}
	if _, ok := s.lookup("BTC-USDT"); !ok {
		t.Error("disabled symbol should stay known")
	}
}

func TestState_UpsertIsolatedCopy(t *testing.T) {
	s := newState()
	sym := model.Symbol{Symbol: "BTC-USDT", Name: "before"}
	s.upsert(sym)
	sym.Name = "after"

	got, _ := s.lookup("BTC-USDT")
	if got.Name != "before" {
		t.Errorf("Name = %q, state aliased the caller's value", got.Name)
	}
}

func TestState_NotifyChange_ChannelFull(t *testing.T) {
	s := newState()
	for i := 0; i < ChangeBufferSize; i++ {
		s.notifyChange(SymbolChange{Symbol: "FILL"})
	}
	s.notifyChange(SymbolChange{Symbol: "LAST"})

	if len(s.changes) != ChangeBufferSize {
		t.Fatalf("len(changes) = %d, want %d", len(s.changes), ChangeBufferSize)
	}
	var last SymbolChange
	for len(s.changes) > 0 {
		last = <-s.changes
	}
	if last.Symbol != "LAST" {
		t.Errorf("newest change = %q, want LAST", last.Symbol)
	}
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := newState()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.upsert(model.Symbol{Symbol: "BTC-USDT", EnableTrading: i%2 == 0})
		}(i)
		go func() {
			defer wg.Done()
			s.enabled("")
			s.lookup("BTC-USDT")
		}()
	}
	wg.Wait()
}

func TestRegistry_StartAndStop(t *testing.T) {
	f := &fakeFetcher{}
	f.set(info("BTC-USDT", "USDS", true), info("ETH-BTC", "BTC", true), info("OLD-USDT", "USDS", false))

	r := NewRegistry(Config{Market: "USDS"}, f, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sym, ok := r.Lookup("BTC-USDT")
	if !ok {
		t.Fatal("BTC-USDT not found")
	}
	if sym.PriceIncrement.String() != "0.1" || sym.UpdatedAt == 0 {
		t.Errorf("symbol = %+v", sym)
	}
	if got := r.EnabledSymbols("USDS"); len(got) != 1 || got[0].Symbol != "BTC-USDT" {
		t.Errorf("EnabledSymbols(USDS) = %v", got)
	}
	if got := r.Tradable([]string{"OLD-USDT", "BTC-USDT", "NOPE"}); len(got) != 1 || got[0] != "BTC-USDT" {
		t.Errorf("Tradable = %v, want [BTC-USDT]", got)
	}
	if f.markets[0] != "USDS" {
		t.Errorf("fetched market = %q, want USDS", f.markets[0])
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestRegistry_StartFails(t *testing.T) {
	f := &fakeFetcher{err: errors.New("unavailable")}
	r := NewRegistry(DefaultConfig(), f, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected initial sync error")
	}
}

func TestRegistry_Stop_NilCancel(t *testing.T) {
	r := NewRegistry(DefaultConfig(), &fakeFetcher{}, nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop without Start = %v", err)
	}
}

func TestRegistry_Reconcile(t *testing.T) {
	f := &fakeFetcher{}
	f.set(info("BTC-USDT", "USDS", true), info("ETH-USDT", "USDS", true), info("XRP-USDT", "USDS", true))

	r := NewRegistry(DefaultConfig(), f, nil).(*registryImpl)
	ctx := context.Background()
	if err := r.initialSync(ctx); err != nil {
		t.Fatalf("initialSync failed: %v", err)
	}
	if len(r.state.changes) != 0 {
		t.Fatalf("initial sync emitted %d changes", len(r.state.changes))
	}

	// ETH halts, XRP is delisted, SOL is listed.
	f.set(info("BTC-USDT", "USDS", true), info("ETH-USDT", "USDS", false), info("SOL-USDT", "USDS", true))
	r.reconcile(ctx)

	got := map[string]SymbolChange{}
	for len(r.state.changes) > 0 {
		c := <-r.state.changes
		got[c.Symbol] = c
	}
	if len(got) != 3 {
		t.Fatalf("changes = %v, want 3", got)
	}
	if c := got["ETH-USDT"]; c.EventType != ChangeStatus || c.Trading {
		t.Errorf("ETH change = %+v", c)
	}
	if c := got["XRP-USDT"]; c.EventType != ChangeDelisted || c.Info != nil {
		t.Errorf("XRP change = %+v", c)
	}
	if c := got["SOL-USDT"]; c.EventType != ChangeListed || c.Info == nil || !c.Trading {
		t.Errorf("SOL change = %+v", c)
	}

	if _, ok := r.Lookup("XRP-USDT"); ok {
		t.Error("delisted symbol still known")
	}
	if got := r.Tradable([]string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}); len(got) != 2 {
		t.Errorf("Tradable = %v", got)
	}
}

func TestRegistry_ReconcileErrorKeepsState(t *testing.T) {
	f := &fakeFetcher{}
	f.set(info("BTC-USDT", "USDS", true))
	r := NewRegistry(DefaultConfig(), f, nil).(*registryImpl)
	ctx := context.Background()
	r.initialSync(ctx)

	f.mu.Lock()
	f.err = errors.New("timeout")
	f.mu.Unlock()
	r.reconcile(ctx)

	if _, ok := r.Lookup("BTC-USDT"); !ok {
		t.Error("failed reconcile dropped state")
	}
}

func TestRegistry_ValidateTopics(t *testing.T) {
	f := &fakeFetcher{}
	f.set(info("BTC-USDT", "USDS", true), info("ETH-USDT", "USDS", true))
	r := NewRegistry(DefaultConfig(), f, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	ok := []router.Topic{
		router.NewTopic(router.TopicTicker, "BTC-USDT", "ETH-USDT"),
		router.NewTopic(router.TopicAllTicker),
		router.NewTopic(router.TopicSnapshot, "BTC"),
		router.NewTopic(router.TopicBalances),
	}
	if err := r.ValidateTopics(ok); err != nil {
		t.Errorf("ValidateTopics = %v", err)
	}

	bad := []router.Topic{router.NewTopic(router.TopicMatch, "BTC-USDT", "NOPE-USDT")}
	if err := r.ValidateTopics(bad); err == nil {
		t.Error("expected unknown symbol error")
	}
}

func TestRegistry_ThroughRESTClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/symbols" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "200000",
			"data": []map[string]any{
				{"symbol": "BTC-USDT", "market": "USDS", "enableTrading": true, "priceIncrement": "0.1"},
			},
		})
	}))
	defer server.Close()

	r := NewRegistry(DefaultConfig(), api.NewClient(server.URL), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	if got := r.EnabledSymbols(""); len(got) != 1 || got[0].Symbol != "BTC-USDT" {
		t.Errorf("EnabledSymbols = %v", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReconcileInterval != 10*time.Minute {
		t.Errorf("ReconcileInterval = %v, want 10m", cfg.ReconcileInterval)
	}
	if cfg.InitialLoadTimeout != time.Minute {
		t.Errorf("InitialLoadTimeout = %v, want 1m", cfg.InitialLoadTimeout)
	}
}
