package market

import (
	"context"
	"time"

	"github.com/rickgao/kucoin-data/internal/api"
)

// initialSync loads the symbol list on startup.
func (r *registryImpl) initialSync(ctx context.Context) error {
	r.logger.Info("starting initial symbol sync", "market", r.cfg.Market)
	start := time.Now()

	infos, err := r.rest.GetSymbols(ctx, r.cfg.Market)
	if err != nil {
		return err
	}
	now := api.NowMicro()

	r.state.mu.Lock()
	for _, info := range infos {
		r.state.upsertLocked(api.SymbolToModel(info, now))
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	r.logger.Info("initial sync complete",
		"total_symbols", len(infos),
		"tradable_symbols", len(r.state.enabled("")),
		"duration", time.Since(start),
	)
	return nil
}

// reconciliationLoop periodically syncs with the REST API.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile fetches the symbol list and reports listings, delistings and
// trading status changes.
func (r *registryImpl) reconcile(ctx context.Context) {
	start := time.Now()

	infos, err := r.rest.GetSymbols(ctx, r.cfg.Market)
	if err != nil {
		r.logger.Error("reconciliation failed fetching symbols", "error", err)
		return
	}
	now := api.NowMicro()

	var listed, changed, delisted int
	seen := make(map[string]struct{}, len(infos))

	r.state.mu.Lock()
	for _, info := range infos {
		sym := api.SymbolToModel(info, now)
		seen[sym.Symbol] = struct{}{}
		existing, ok := r.state.symbols[sym.Symbol]
		r.state.upsertLocked(sym)

		switch {
		case !ok:
			r.state.notifyChange(SymbolChange{
				Symbol:    sym.Symbol,
				EventType: ChangeListed,
				Trading:   sym.EnableTrading,
				Info:      &sym,
			})
			listed++
		case existing.EnableTrading != sym.EnableTrading:
			r.state.notifyChange(SymbolChange{
				Symbol:    sym.Symbol,
				EventType: ChangeStatus,
				Trading:   sym.EnableTrading,
				Info:      &sym,
			})
			changed++
		}
	}
	for name := range r.state.symbols {
		if _, ok := seen[name]; ok {
			continue
		}
		r.state.removeLocked(name)
		r.state.notifyChange(SymbolChange{Symbol: name, EventType: ChangeDelisted})
		delisted++
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	if listed > 0 || changed > 0 || delisted > 0 {
		r.logger.Info("reconciliation found changes",
			"listed", listed,
			"changed", changed,
			"delisted", delisted,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("reconciliation complete",
			"total_symbols", len(infos),
			"duration", time.Since(start),
		)
	}
}
